package sol

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/zenz-bridge/internal/chain"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

func key(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func sig(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 64))
}

var (
	programID = key(1)
	treasury  = key(2)
	custody   = key(3)
	user      = key(4)
	attacker  = key(5)
)

func encodeBurnEvent(ev BurnEvent) string {
	var buf bytes.Buffer
	if ev.Name == EventBurnToBTC {
		buf.Write(burnToBTCDiscriminator)
	} else {
		buf.Write(burnSwapDiscriminator)
	}
	buf.Write(base58.Decode(ev.User))
	binary.Write(&buf, binary.LittleEndian, ev.Amount)
	if ev.Name == EventBurnToBTC {
		binary.Write(&buf, binary.LittleEndian, uint32(len(ev.PayoutAddress)))
		buf.WriteString(ev.PayoutAddress)
		if ev.Encrypted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	binary.Write(&buf, binary.LittleEndian, ev.Timestamp)
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeBurnEvents(t *testing.T) {
	btcEvent := BurnEvent{Name: EventBurnToBTC, User: user, Amount: 50000, PayoutAddress: "bc1qpayout", Encrypted: true, Timestamp: 1700000000}
	swapEvent := BurnEvent{Name: EventBurnSwap, User: user, Amount: 7, Timestamp: 1700000001}
	forged := BurnEvent{Name: EventBurnToBTC, User: attacker, Amount: 1 << 40, PayoutAddress: "bc1qevil", Timestamp: 1}

	logs := []string{
		"Program " + programID + " invoke [1]",
		"Program log: Instruction: BurnForBtc",
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA invoke [2]",
		encodeBurnEvent(forged),
		"Program TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA success",
		encodeBurnEvent(btcEvent),
		"Program " + programID + " consumed 5000 of 200000 compute units",
		"Program " + programID + " success",
		"Program " + attacker + " invoke [1]",
		encodeBurnEvent(forged),
		"Program " + attacker + " success",
		"Program " + programID + " invoke [1]",
		encodeBurnEvent(swapEvent),
		"Program " + programID + " success",
	}

	events, err := DecodeBurnEvents(logs, programID)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, btcEvent, events[0])
	swapEvent.PayoutAddress = user
	assert.Equal(t, swapEvent, events[1])
}

func TestDecodeBurnEvents_Truncated(t *testing.T) {
	line := encodeBurnEvent(BurnEvent{Name: EventBurnToBTC, User: user, Amount: 1, PayoutAddress: "bc1q"})
	raw, err := base64.StdEncoding.DecodeString(line[len(programDataPrefix):])
	require.NoError(t, err)
	short := programDataPrefix + base64.StdEncoding.EncodeToString(raw[:30])

	_, err = DecodeBurnEvents([]string{"Program " + programID + " invoke [1]", short}, programID)

	assert.ErrorIs(t, err, errShortEvent)
}

func TestParsePayoutMemo(t *testing.T) {
	c, addr := ParsePayoutMemo("zec:t1abc")
	assert.Equal(t, model.ChainZEC, c)
	assert.Equal(t, "t1abc", addr)

	c, addr = ParsePayoutMemo("bc1qnoprefix")
	assert.Empty(t, c)
	assert.Empty(t, addr)

	c, _ = ParsePayoutMemo("doge:abc")
	assert.Empty(t, c)
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress(user))
	assert.False(t, IsAddress("addr_X"))
	assert.False(t, IsAddress(sig(9)))
}

type fakeRPC struct {
	t        *testing.T
	txs      map[string]interface{}
	statuses map[string]interface{}
	sigs     []interface{}
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(f.t, json.Unmarshal(body, &req))

	var result interface{}
	switch req.Method {
	case "getTransaction":
		var s string
		require.NoError(f.t, json.Unmarshal(req.Params[0], &s))
		result = f.txs[s]
	case "getSignatureStatuses":
		var s []string
		require.NoError(f.t, json.Unmarshal(req.Params[0], &s))
		result = map[string]interface{}{"context": map[string]int{"slot": 1}, "value": []interface{}{f.statuses[s[0]]}}
	case "getSignaturesForAddress":
		result = f.sigs
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func newFakeRPC(t *testing.T) (*fakeRPC, Client) {
	f := &fakeRPC{t: t, txs: map[string]interface{}{}, statuses: map[string]interface{}{}}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	c, err := Dial(context.Background(), server.URL)
	require.NoError(t, err)
	return f, c
}

func finalized() map[string]interface{} {
	return map[string]interface{}{"slot": 10, "confirmations": nil, "err": nil, "confirmationStatus": "finalized"}
}

func confirmedWith(n int) map[string]interface{} {
	return map[string]interface{}{"slot": 10, "confirmations": n, "err": nil, "confirmationStatus": "confirmed"}
}

func solTx(signature string, logs []string, instructions ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"slot": 10,
		"meta": map[string]interface{}{"err": nil, "fee": 5000, "logMessages": logs, "innerInstructions": []interface{}{}},
		"transaction": map[string]interface{}{
			"signatures": []string{signature},
			"message":    map[string]interface{}{"accountKeys": []interface{}{}, "instructions": instructions},
		},
	}
}

func systemTransfer(from, to string, lamports uint64) map[string]interface{} {
	return map[string]interface{}{
		"program": "system", "programId": "11111111111111111111111111111111",
		"parsed": map[string]interface{}{"type": "transfer", "info": map[string]interface{}{"source": from, "destination": to, "lamports": lamports}},
	}
}

func memoIx(text string) map[string]interface{} {
	return map[string]interface{}{"program": "spl-memo", "programId": "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr", "parsed": text}
}

func tokenTransferChecked(authority, to, amount string) map[string]interface{} {
	return map[string]interface{}{
		"program": "spl-token", "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"parsed": map[string]interface{}{"type": "transferChecked", "info": map[string]interface{}{
			"source": key(8), "destination": to, "authority": authority,
			"tokenAmount": map[string]interface{}{"amount": amount, "decimals": 8},
		}},
	}
}

func TestDepositVerifier(t *testing.T) {
	f, c := newFakeRPC(t)
	s1, s2 := sig(11), sig(12)
	f.txs[s1] = solTx(s1, nil, systemTransfer(user, treasury, 1000), systemTransfer(user, treasury, 500), memoIx(key(9)))
	f.statuses[s1] = finalized()
	f.txs[s2] = solTx(s2, nil, systemTransfer(user, treasury, 700))
	f.statuses[s2] = confirmedWith(5)
	v := NewDepositVerifier(c, treasury, 32, logger.New(environments.Test))

	res, err := v.Verify(context.Background(), chain.Expectation{TxID: s1, Amount: 1500, Destination: key(9)})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, finalizedConfirmations, res.Confirmations)
	assert.Equal(t, user, res.ActualSender)

	res, err = v.Verify(context.Background(), chain.Expectation{TxID: s2, Amount: 700, Destination: user})
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, 5, res.Confirmations)
	assert.Equal(t, user, res.ActualDestination, "destination defaults to the sender")

	_, err = v.Verify(context.Background(), chain.Expectation{TxID: s1, Amount: 1499, Destination: key(9)})
	assert.ErrorIs(t, err, chain.ErrAmountMismatch)
}

func TestDepositVerifier_NotFoundAndBadSignature(t *testing.T) {
	_, c := newFakeRPC(t)
	v := NewDepositVerifier(c, treasury, 1, logger.New(environments.Test))

	_, err := v.Verify(context.Background(), chain.Expectation{TxID: sig(13), Amount: 1})
	assert.ErrorIs(t, err, chain.ErrTransactionNotFound)

	_, err = v.Verify(context.Background(), chain.Expectation{TxID: "sol_sig_1", Amount: 1})
	assert.ErrorIs(t, err, chain.ErrInvalidTransaction)
}

func TestDepositVerifier_FailedTransaction(t *testing.T) {
	f, c := newFakeRPC(t)
	s := sig(14)
	tx := solTx(s, nil, systemTransfer(user, treasury, 10))
	tx["meta"].(map[string]interface{})["err"] = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	f.txs[s] = tx
	v := NewDepositVerifier(c, treasury, 1, logger.New(environments.Test))

	_, err := v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 10})

	assert.ErrorIs(t, err, chain.ErrInvalidTransaction)
}

func TestDepositVerifier_NoTreasuryTransfer(t *testing.T) {
	f, c := newFakeRPC(t)
	pending, settled := sig(15), sig(16)
	f.txs[pending] = solTx(pending, nil, systemTransfer(user, key(7), 10))
	f.statuses[pending] = confirmedWith(3)
	f.txs[settled] = solTx(settled, nil, systemTransfer(user, key(7), 10))
	f.statuses[settled] = finalized()
	v := NewDepositVerifier(c, treasury, 32, logger.New(environments.Test))

	res, err := v.Verify(context.Background(), chain.Expectation{TxID: pending, Amount: 10})
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Equal(t, 3, res.Confirmations)

	res, err = v.Verify(context.Background(), chain.Expectation{TxID: settled, Amount: 10})
	assert.ErrorIs(t, err, chain.ErrInvalidTransaction)
	assert.True(t, chain.IsPermanent(err))
	assert.False(t, res.Confirmed)
}

func TestWithdrawalVerifier_Burn(t *testing.T) {
	f, c := newFakeRPC(t)
	s := sig(21)
	ev := BurnEvent{Name: EventBurnToBTC, User: user, Amount: 50000, PayoutAddress: "bc1qpayout", Timestamp: 1}
	f.txs[s] = solTx(s, []string{"Program " + programID + " invoke [1]", encodeBurnEvent(ev), "Program " + programID + " success"})
	f.statuses[s] = finalized()
	v := NewWithdrawalVerifier(c, WithdrawalModeBurn, programID, custody, 32, logger.New(environments.Test))

	res, err := v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 50000, Destination: "bc1qpayout", Sender: user, Asset: model.ChainBTC})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, model.ChainBTC, res.ActualAsset)

	_, err = v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 50000, Destination: "bc1qpayout", Asset: model.ChainZEC})
	assert.ErrorIs(t, err, chain.ErrDestinationMismatch)

	_, err = v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 50000, Sender: attacker})
	assert.ErrorIs(t, err, chain.ErrSenderMismatch)
}

func TestWithdrawalVerifier_BurnWithoutEvent(t *testing.T) {
	f, c := newFakeRPC(t)
	s := sig(22)
	f.txs[s] = solTx(s, []string{"Program " + programID + " invoke [1]", "Program " + programID + " success"})
	v := NewWithdrawalVerifier(c, WithdrawalModeBurn, programID, custody, 32, logger.New(environments.Test))

	_, err := v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 1})

	assert.ErrorIs(t, err, chain.ErrInvalidTransaction)
	assert.True(t, chain.IsPermanent(err))
}

func TestWithdrawalVerifier_Transfer(t *testing.T) {
	f, c := newFakeRPC(t)
	s := sig(23)
	f.txs[s] = solTx(s, nil, tokenTransferChecked(user, custody, "80000"), memoIx("zec:t1payout"))
	f.statuses[s] = finalized()
	v := NewWithdrawalVerifier(c, WithdrawalModeTransfer, programID, custody, 32, logger.New(environments.Test))

	tx, err := c.GetTransaction(context.Background(), s)
	require.NoError(t, err)
	w, err := v.Decode(tx)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, &Withdrawal{Signature: s, Sender: user, Amount: 80000, PayoutChain: model.ChainZEC, PayoutAddress: "t1payout"}, w)

	res, err := v.Verify(context.Background(), chain.Expectation{TxID: s, Amount: 80000, Destination: "t1payout", Asset: model.ChainZEC})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
}

func TestGetSignaturesForAddress(t *testing.T) {
	f, c := newFakeRPC(t)
	f.sigs = []interface{}{
		map[string]interface{}{"signature": sig(31), "slot": 5, "err": nil, "confirmationStatus": "finalized"},
		map[string]interface{}{"signature": sig(32), "slot": 4, "err": map[string]interface{}{"x": 1}},
	}

	out, err := c.GetSignaturesForAddress(context.Background(), treasury, SignaturesOptions{Limit: 10})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[0].Failed())
	assert.True(t, out[1].Failed())
}
