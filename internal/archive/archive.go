// Package archive keeps a write-once JSON receipt for every settled record so
// operators can reconcile the ledger against chain activity after the fact.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

const (
	DriverS3     = "s3"
	DriverMemory = "memory"
	DriverNone   = "none"
)

var (
	ErrInvalidConfig = errors.New("archive: invalid config")
	ErrInvalidKey    = errors.New("archive: invalid key")
	ErrNotFound      = errors.New("archive: not found")
)

// Store persists opaque receipt blobs.
type Store interface {
	Put(ctx context.Context, key string, payload []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type Receipt struct {
	Kind           model.RecordKind `json:"kind"`
	Key            string           `json:"key"`
	SourceChain    model.Chain      `json:"source_chain"`
	SourceTxID     string           `json:"source_tx_id"`
	TargetChain    model.Chain      `json:"target_chain"`
	SettlementTxID string           `json:"settlement_tx_id"`
	Amount         int64            `json:"amount"`
	Status         string           `json:"status"`
	SettledAt      time.Time        `json:"settled_at"`
}

// Archiver writes receipts under <kind>/<key>.json.
type Archiver struct {
	store Store
}

func NewArchiver(s Store) *Archiver {
	return &Archiver{store: s}
}

func (a *Archiver) Archive(ctx context.Context, r Receipt) error {
	if a == nil || a.store == nil {
		return nil
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("archive: encode receipt: %w", err)
	}
	return a.store.Put(ctx, receiptKey(r.Kind, r.Key), body)
}

func (a *Archiver) Receipt(ctx context.Context, kind model.RecordKind, key string) (*Receipt, error) {
	if a == nil || a.store == nil {
		return nil, ErrNotFound
	}
	body, err := a.store.Get(ctx, receiptKey(kind, key))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("archive: decode receipt: %w", err)
	}
	return &r, nil
}

func receiptKey(kind model.RecordKind, key string) string {
	return string(kind) + "/" + strings.ReplaceAll(key, ":", "_") + ".json"
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: control character in key", ErrInvalidKey)
		}
	}
	return key, nil
}

func joinPrefix(prefix, key string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
