package blockstream

import "fmt"

type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

type Prevout struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type Vin struct {
	TxID    string   `json:"txid"`
	Vout    uint32   `json:"vout"`
	Prevout *Prevout `json:"prevout"`
}

type Vout struct {
	ScriptPubKey        string `json:"scriptpubkey"`
	ScriptPubKeyType    string `json:"scriptpubkey_type"`
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// Transaction is the esplora view of a bitcoin transaction.
type Transaction struct {
	TxID   string   `json:"txid"`
	Vin    []Vin    `json:"vin"`
	Vout   []Vout   `json:"vout"`
	Fee    int64    `json:"fee"`
	Status TxStatus `json:"status"`
}

// BroadcastTxError is returned when the node refuses a transaction for paying
// less than the minimum relay fee; MinFee is the fee it asked for.
type BroadcastTxError struct {
	Message    string
	StatusCode int
	MinFee     int64
}

func (e *BroadcastTxError) Error() string {
	return fmt.Sprintf("broadcast rejected (status %d, min fee %d): %s", e.StatusCode, e.MinFee, e.Message)
}
