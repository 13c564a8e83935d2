package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/chain/btc/blockstream"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

const (
	p2wpkhInputSize  = 68 // SegWit P2WPKH input size
	p2wpkhOutputSize = 31 // SegWit P2WPKH output size
	txOverhead       = 10 // Transaction overhead

	dustLimit = 546

	// recipient, payout tag, change
	payoutOutputs = 3

	maxHistoryPages = 4
)

// Payout sends BTC from the treasury wallet. Every payout carries an OP_RETURN
// tag derived from its ledger key so FindExisting can spot it in history.
type Payout struct {
	client          blockstream.IBlockStream
	params          *chaincfg.Params
	privKey         *secp256k1.PrivateKey
	address         *btcutil.AddressWitnessPubKeyHash
	feeTargetBlocks int
	logger          *logger.Logger
}

func NewPayout(client blockstream.IBlockStream, params *chaincfg.Params, wif string, feeTargetBlocks int, logger *logger.Logger) (*Payout, error) {
	privKey, address, err := selfPrivKeyAndAddress(wif, params)
	if err != nil {
		return nil, err
	}
	if feeTargetBlocks <= 0 {
		feeTargetBlocks = 6
	}
	return &Payout{
		client:          client,
		params:          params,
		privKey:         privKey,
		address:         address,
		feeTargetBlocks: feeTargetBlocks,
		logger:          logger,
	}, nil
}

func (p *Payout) Chain() model.Chain {
	return model.ChainBTC
}

// Address is the treasury wallet address derived from the signing key.
func (p *Payout) Address() string {
	return p.address.EncodeAddress()
}

func (p *Payout) FindExisting(ctx context.Context, key string) (string, bool, error) {
	tag := PayoutTag(key)
	from := ""

	for page := 0; page < maxHistoryPages; page++ {
		txs, err := p.client.GetTransactionsByAddress(ctx, p.Address(), from)
		if err != nil {
			return "", false, err
		}
		if len(txs) == 0 {
			return "", false, nil
		}

		for _, tx := range txs {
			for _, out := range tx.Vout {
				if out.ScriptPubKeyType != "op_return" {
					continue
				}
				if data, ok := DecodeMemo(out.ScriptPubKey); ok && bytes.Equal(data, tag) {
					return tx.TxID, true, nil
				}
			}
		}

		last := txs[len(txs)-1]
		if !last.Status.Confirmed || last.TxID == from {
			return "", false, nil
		}
		from = last.TxID
	}
	return "", false, nil
}

func (p *Payout) Broadcast(ctx context.Context, t chain.Transfer) (string, error) {
	if t.Amount < dustLimit {
		return "", fmt.Errorf("%w: amount %d below dust limit", chain.ErrRejected, t.Amount)
	}

	receiver, err := btcutil.DecodeAddress(t.Address, p.params)
	if err != nil || !receiver.IsForNet(p.params) {
		return "", fmt.Errorf("%w: %q", chain.ErrInvalidAddress, t.Address)
	}

	selected, changeAmount, err := p.selectUTXOs(ctx, t.Amount)
	if err != nil {
		return "", err
	}

	tx, err := p.prepareTx(selected, receiver, t.Amount, changeAmount, PayoutTag(t.Key))
	if err != nil {
		return "", err
	}

	if err := p.sign(tx, selected); err != nil {
		return "", err
	}

	txID, err := p.broadcast(ctx, tx)
	if err != nil {
		return "", err
	}

	p.logger.Info("[Broadcast] btc payout sent", map[string]string{
		"key":    t.Key,
		"txid":   txID,
		"amount": strconv.FormatInt(t.Amount, 10),
	})
	return txID, nil
}

// calculateTxFee estimates the transaction fee based on current network conditions
func calculateTxFee(feeRates map[string]float64, numInputs, numOutputs, targetBlocks int) (int64, error) {
	feeRate, ok := feeRates[strconv.Itoa(targetBlocks)]
	if !ok {
		return 0, chain.Unavailable(fmt.Errorf("no fee rate available for target %d blocks", targetBlocks))
	}
	return int64(float64(calculateTxSize(numInputs, numOutputs)) * feeRate), nil
}

func calculateTxSize(numInputs, numOutputs int) int {
	return txOverhead + (numInputs * p2wpkhInputSize) + (numOutputs * p2wpkhOutputSize)
}

func selfPrivKeyAndAddress(wifStr string, params *chaincfg.Params) (*secp256k1.PrivateKey, *btcutil.AddressWitnessPubKeyHash, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode wif: %v", err)
	}
	if !wif.IsForNet(params) {
		return nil, nil, fmt.Errorf("wif is not for network %s", params.Name)
	}

	pubKeyHash := btcutil.Hash160(wif.PrivKey.PubKey().SerializeCompressed())
	address, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sender address: %v", err)
	}
	return wif.PrivKey, address, nil
}

func (p *Payout) confirmedUTXOs(ctx context.Context) ([]blockstream.UTXO, error) {
	utxos, err := p.client.GetUTXOs(ctx, p.Address())
	if err != nil {
		return nil, err
	}

	var confirmed []blockstream.UTXO
	for _, utxo := range utxos {
		if utxo.Status.Confirmed {
			confirmed = append(confirmed, utxo)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool {
		return confirmed[i].Value > confirmed[j].Value
	})
	return confirmed, nil
}

// selectUTXOs picks the largest UTXOs until they cover amount plus fee and
// returns them with the change owed back to the treasury.
func (p *Payout) selectUTXOs(ctx context.Context, amount int64) ([]blockstream.UTXO, int64, error) {
	confirmed, err := p.confirmedUTXOs(ctx)
	if err != nil {
		return nil, 0, err
	}

	feeRates, err := p.client.EstimateFees(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		selected []blockstream.UTXO
		total    int64
		fee      int64
	)
	for _, utxo := range confirmed {
		selected = append(selected, utxo)
		total += utxo.Value

		fee, err = calculateTxFee(feeRates, len(selected), payoutOutputs, p.feeTargetBlocks)
		if err != nil {
			return nil, 0, err
		}
		if total >= amount+fee {
			return selected, total - amount - fee, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: have %d satoshis, need %d satoshis", chain.ErrInsufficientFunds, total, amount+fee)
}

func (p *Payout) prepareTx(utxos []blockstream.UTXO, receiver btcutil.Address, amount, change int64, tag []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	for _, utxo := range utxos {
		hash, err := chainhash.NewHashFromStr(utxo.TxID)
		if err != nil {
			return nil, fmt.Errorf("failed to create hash: %v", err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
	}

	pkScript, err := txscript.PayToAddrScript(receiver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrInvalidAddress, err)
	}
	tx.AddTxOut(wire.NewTxOut(amount, pkScript))

	tagScript, err := txscript.NullDataScript(tag)
	if err != nil {
		return nil, fmt.Errorf("failed to build payout tag: %v", err)
	}
	tx.AddTxOut(wire.NewTxOut(0, tagScript))

	// change below dust goes to the miner
	if change >= dustLimit {
		changeScript, err := txscript.PayToAddrScript(p.address)
		if err != nil {
			return nil, fmt.Errorf("failed to create change output script: %v", err)
		}
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	}

	return tx, nil
}

func (p *Payout) sign(tx *wire.MsgTx, selected []blockstream.UTXO) error {
	prevOutScript, err := txscript.PayToAddrScript(p.address)
	if err != nil {
		return fmt.Errorf("failed to create sender output script: %v", err)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(make(map[wire.OutPoint]*wire.TxOut, len(selected)))
	for i, utxo := range selected {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(utxo.Value, prevOutScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, utxo := range selected {
		witness, err := txscript.WitnessSignature(tx, sigHashes, i, utxo.Value, prevOutScript, txscript.SigHashAll, p.privKey, true)
		if err != nil {
			return fmt.Errorf("failed to sign transaction input %d: %v", i, err)
		}
		tx.TxIn[i].Witness = witness
		tx.TxIn[i].SignatureScript = nil
	}
	return nil
}

func (p *Payout) broadcast(ctx context.Context, tx *wire.MsgTx) (string, error) {
	var signed bytes.Buffer
	if err := tx.Serialize(&signed); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %v", err)
	}

	hash, err := p.client.BroadcastTx(ctx, hex.EncodeToString(signed.Bytes()))
	if err != nil {
		return "", err
	}
	if hash == "" {
		hash = tx.TxHash().String()
	}
	return hash, nil
}
