package sol

import (
	"encoding/json"
	"strconv"
)

type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is a jsonParsed instruction. Parsed is an object for known
// programs, a string for spl-memo, and absent for unknown programs.
type Instruction struct {
	Program   string          `json:"program"`
	ProgramID string          `json:"programId"`
	Parsed    json.RawMessage `json:"parsed"`
	Accounts  []string        `json:"accounts"`
	Data      string          `json:"data"`
}

type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

type Meta struct {
	Err               json.RawMessage     `json:"err"`
	Fee               uint64              `json:"fee"`
	LogMessages       []string            `json:"logMessages"`
	InnerInstructions []InnerInstructions `json:"innerInstructions"`
}

// Failed reports whether the transaction executed with an error.
func (m *Meta) Failed() bool {
	return len(m.Err) > 0 && string(m.Err) != "null"
}

type Message struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

type Transaction struct {
	Slot        uint64 `json:"slot"`
	BlockTime   *int64 `json:"blockTime"`
	Meta        *Meta  `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    Message  `json:"message"`
	} `json:"transaction"`
}

// AllInstructions returns top-level instructions followed by inner ones.
func (t *Transaction) AllInstructions() []Instruction {
	out := append([]Instruction(nil), t.Transaction.Message.Instructions...)
	if t.Meta != nil {
		for _, inner := range t.Meta.InnerInstructions {
			out = append(out, inner.Instructions...)
		}
	}
	return out
}

type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *int            `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

type SignatureInfo struct {
	Signature          string          `json:"signature"`
	Slot               uint64          `json:"slot"`
	Err                json.RawMessage `json:"err"`
	Memo               *string         `json:"memo"`
	BlockTime          *int64          `json:"blockTime"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// flexUint accepts both JSON numbers and decimal strings, as token amounts
// are strings while lamports are numbers.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexUint(v)
	return nil
}
