package sol

import (
	"encoding/json"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

type parsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

type systemTransferInfo struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Lamports    flexUint `json:"lamports"`
}

type tokenTransferInfo struct {
	Source            string    `json:"source"`
	Destination       string    `json:"destination"`
	Authority         string    `json:"authority"`
	MultisigAuthority string    `json:"multisigAuthority"`
	Amount            *flexUint `json:"amount"`
	TokenAmount       *struct {
		Amount flexUint `json:"amount"`
	} `json:"tokenAmount"`
}

// transfer is a value movement found in a transaction.
type transfer struct {
	From   string
	To     string
	Amount uint64
}

func parse(ix Instruction) (parsedInstruction, bool) {
	var p parsedInstruction
	if len(ix.Parsed) == 0 || ix.Parsed[0] != '{' {
		return p, false
	}
	if err := json.Unmarshal(ix.Parsed, &p); err != nil {
		return p, false
	}
	return p, true
}

// systemTransfers lists lamport transfers to recipient.
func systemTransfers(tx *Transaction, recipient string) ([]transfer, bool) {
	var out []transfer
	for _, ix := range tx.AllInstructions() {
		if ix.Program != "system" {
			continue
		}
		p, ok := parse(ix)
		if !ok || (p.Type != "transfer" && p.Type != "transferWithSeed") {
			continue
		}
		var info systemTransferInfo
		if err := json.Unmarshal(p.Info, &info); err != nil {
			return nil, false
		}
		if info.Destination == recipient {
			out = append(out, transfer{From: info.Source, To: info.Destination, Amount: uint64(info.Lamports)})
		}
	}
	return out, true
}

// tokenTransfers lists spl-token transfers into the account.
func tokenTransfers(tx *Transaction, account string) ([]transfer, bool) {
	var out []transfer
	for _, ix := range tx.AllInstructions() {
		if ix.Program != "spl-token" && ix.Program != "spl-token-2022" {
			continue
		}
		p, ok := parse(ix)
		if !ok || (p.Type != "transfer" && p.Type != "transferChecked") {
			continue
		}
		var info tokenTransferInfo
		if err := json.Unmarshal(p.Info, &info); err != nil {
			return nil, false
		}
		if info.Destination != account {
			continue
		}

		var amount uint64
		switch {
		case info.Amount != nil:
			amount = uint64(*info.Amount)
		case info.TokenAmount != nil:
			amount = uint64(info.TokenAmount.Amount)
		default:
			return nil, false
		}

		from := info.Authority
		if from == "" {
			from = info.MultisigAuthority
		}
		out = append(out, transfer{From: from, To: info.Destination, Amount: amount})
	}
	return out, true
}

// memo returns the first spl-memo text in the transaction.
func memo(tx *Transaction) string {
	for _, ix := range tx.AllInstructions() {
		if ix.Program != "spl-memo" || len(ix.Parsed) == 0 {
			continue
		}
		var text string
		if err := json.Unmarshal(ix.Parsed, &text); err == nil {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// IsAddress reports whether s is a base58 encoded 32-byte public key.
func IsAddress(s string) bool {
	return len(s) >= 32 && len(s) <= 44 && len(base58.Decode(s)) == 32
}
