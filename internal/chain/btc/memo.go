package btc

import (
	"bytes"
	"encoding/hex"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/sha3"
)

const payoutTagSize = 20

// DecodeMemo returns the data pushed after OP_RETURN in a hex output script.
func DecodeMemo(scriptHex string) ([]byte, bool) {
	script, err := hex.DecodeString(scriptHex)
	if err != nil || len(script) == 0 {
		return nil, false
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}

	var data []byte
	for tokenizer.Next() {
		data = append(data, tokenizer.Data()...)
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	return data, true
}

// MemoText decodes a memo carrying a destination address.
func MemoText(scriptHex string) (string, bool) {
	data, ok := DecodeMemo(scriptHex)
	if !ok || len(data) == 0 || !utf8.Valid(data) {
		return "", false
	}
	return string(bytes.TrimSpace(data)), true
}

// PayoutTag is the OP_RETURN payload that marks the payout for a ledger key.
func PayoutTag(key string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("payout:"))
	h.Write([]byte(key))
	return h.Sum(nil)[:payoutTagSize]
}
