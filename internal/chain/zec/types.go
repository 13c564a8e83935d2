package zec

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type ScriptPubKey struct {
	Hex       string   `json:"hex"`
	Type      string   `json:"type"`
	Addresses []string `json:"addresses"`
}

type Vout struct {
	Value        json.Number  `json:"value"`
	ValueZat     *int64       `json:"valueZat"`
	N            int          `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// Zats returns the output value in zatoshis, falling back to the decimal
// value on nodes that do not report valueZat.
func (v Vout) Zats() (int64, bool) {
	if v.ValueZat != nil {
		return *v.ValueZat, true
	}
	return ToZats(v.Value)
}

// RawTransaction is the verbose getrawtransaction result.
type RawTransaction struct {
	TxID          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
	Vout          []Vout `json:"vout"`
}

// WalletTransaction is one listtransactions entry.
type WalletTransaction struct {
	Address       string      `json:"address"`
	Category      string      `json:"category"`
	Amount        json.Number `json:"amount"`
	AmountZat     *int64      `json:"amountZat"`
	Confirmations int64       `json:"confirmations"`
	TxID          string      `json:"txid"`
	Comment       string      `json:"comment"`
	Time          int64       `json:"time"`
}

func (w WalletTransaction) Zats() (int64, bool) {
	if w.AmountZat != nil {
		return abs(*w.AmountZat), true
	}
	z, ok := ToZats(w.Amount)
	return abs(z), ok
}

var zatsPerCoin = decimal.New(1, 8)

// ToZats converts a ZEC amount to zatoshis, refusing anything finer than one zatoshi.
func ToZats(n json.Number) (int64, bool) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, false
	}
	z := d.Mul(zatsPerCoin)
	if !z.IsInteger() {
		return 0, false
	}
	return z.IntPart(), true
}

// FromZats renders zatoshis as a ZEC amount for RPC parameters.
func FromZats(zats int64) json.Number {
	return json.Number(decimal.New(zats, -8).String())
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
