package relayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/store/depositrecord"
	"github.com/dwarvesf/zenz-bridge/internal/store/withdrawalrecord"
)

// RecordStatus is the caller-facing view of a deposit or withdrawal.
type RecordStatus struct {
	Kind               model.RecordKind         `json:"kind"`
	Key                string                   `json:"key"`
	Status             string                   `json:"status"`
	Reason             model.FailureReason      `json:"reason,omitempty"`
	ReasonClass        string                   `json:"reason_class,omitempty"`
	SourceChain        model.Chain              `json:"source_chain"`
	TargetChain        model.Chain              `json:"target_chain"`
	SourceTxID         string                   `json:"source_tx_id"`
	Amount             int64                    `json:"amount"`
	Address            string                   `json:"address"`
	AddressEncrypted   bool                     `json:"address_encrypted,omitempty"`
	SettlementTxID     string                   `json:"settlement_tx_id,omitempty"`
	Confirmations      int                      `json:"confirmations"`
	SettlementAttempts int                      `json:"settlement_attempts"`
	LastError          string                   `json:"last_error,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	History            []model.StatusTransition `json:"history,omitempty"`
}

// GetRecordStatus accepts a deposit key ("BTC:<txid>"), a bare deposit txid
// or a withdrawal signature.
func (r *Relayer) GetRecordStatus(ctx context.Context, key string) (*RecordStatus, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidRequest)
	}

	if prefix, txID, ok := strings.Cut(key, ":"); ok {
		if c, err := model.ParseChain(prefix); err == nil {
			rec, err := r.ledger.Deposit(ctx, c, txID)
			if err != nil {
				return nil, notFound(err, key)
			}
			return r.depositStatus(ctx, rec)
		}
	}

	w, err := r.ledger.Withdrawal(ctx, key)
	if err == nil {
		return r.withdrawalStatus(ctx, w)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	deposits, err := r.ledger.DepositsByTxID(ctx, key)
	if err != nil {
		return nil, err
	}
	switch len(deposits) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case 1:
		return r.depositStatus(ctx, &deposits[0])
	default:
		return nil, fmt.Errorf("%w: txid %s exists on several chains, use <chain>:<txid>", ErrInvalidRequest, key)
	}
}

// RecordFilter selects a page of deposits or withdrawals. Chain is the source
// chain for deposits and the payout chain for withdrawals.
type RecordFilter struct {
	Kind   model.RecordKind
	Chain  model.Chain
	Status string
	Limit  int
	Offset int
}

type RecordPage struct {
	Records []RecordStatus `json:"records"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListRecords returns records newest first, without their history.
func (r *Relayer) ListRecords(ctx context.Context, f RecordFilter) (*RecordPage, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidRequest)
	}

	page := &RecordPage{Records: []RecordStatus{}, Limit: f.Limit, Offset: f.Offset}
	switch f.Kind {
	case model.RecordKindDeposit:
		status := model.DepositStatus(f.Status)
		if f.Status != "" && !status.Valid() {
			return nil, fmt.Errorf("%w: unknown deposit status %q", ErrInvalidRequest, f.Status)
		}
		recs, total, err := r.ledger.ListDeposits(ctx, depositrecord.ListFilter{
			Chain: f.Chain, Status: status, Limit: f.Limit, Offset: f.Offset,
		})
		if err != nil {
			return nil, err
		}
		page.Total = total
		for i := range recs {
			page.Records = append(page.Records, *depositView(&recs[i], nil))
		}
	case model.RecordKindWithdrawal:
		status := model.WithdrawalStatus(f.Status)
		if f.Status != "" && !status.Valid() {
			return nil, fmt.Errorf("%w: unknown withdrawal status %q", ErrInvalidRequest, f.Status)
		}
		recs, total, err := r.ledger.ListWithdrawals(ctx, withdrawalrecord.ListFilter{
			PayoutChain: f.Chain, Status: status, Limit: f.Limit, Offset: f.Offset,
		})
		if err != nil {
			return nil, err
		}
		page.Total = total
		for i := range recs {
			page.Records = append(page.Records, *withdrawalView(&recs[i], nil))
		}
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalidRequest, f.Kind)
	}
	return page, nil
}

func (r *Relayer) depositStatus(ctx context.Context, rec *model.DepositRecord) (*RecordStatus, error) {
	history, err := r.ledger.History(ctx, model.RecordKindDeposit, ledger.DepositKey(rec.SourceChain, rec.SourceTxID))
	if err != nil {
		return nil, err
	}
	return depositView(rec, history), nil
}

func depositView(rec *model.DepositRecord, history []model.StatusTransition) *RecordStatus {
	res := depositResult(rec, "")
	return &RecordStatus{
		Kind:               model.RecordKindDeposit,
		Key:                res.Key,
		Status:             string(rec.Status),
		Reason:             rec.FailureReason,
		ReasonClass:        reasonClass(rec.FailureReason),
		SourceChain:        rec.SourceChain,
		TargetChain:        model.ChainSOL,
		SourceTxID:         rec.SourceTxID,
		Amount:             rec.Amount,
		Address:            rec.DestinationAddress,
		SettlementTxID:     res.SettlementTxID,
		Confirmations:      rec.Confirmations,
		SettlementAttempts: rec.SettlementAttempts,
		LastError:          rec.LastError,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		History:            history,
	}
}

func (r *Relayer) withdrawalStatus(ctx context.Context, rec *model.WithdrawalRecord) (*RecordStatus, error) {
	history, err := r.ledger.History(ctx, model.RecordKindWithdrawal, rec.SourceTxSignature)
	if err != nil {
		return nil, err
	}
	return withdrawalView(rec, history), nil
}

func withdrawalView(rec *model.WithdrawalRecord, history []model.StatusTransition) *RecordStatus {
	res := withdrawalResult(rec, "")
	return &RecordStatus{
		Kind:               model.RecordKindWithdrawal,
		Key:                rec.SourceTxSignature,
		Status:             string(rec.Status),
		Reason:             rec.FailureReason,
		ReasonClass:        reasonClass(rec.FailureReason),
		SourceChain:        model.ChainSOL,
		TargetChain:        rec.PayoutChain,
		SourceTxID:         rec.SourceTxSignature,
		Amount:             rec.RequestedAmount,
		Address:            rec.PayoutAddress,
		AddressEncrypted:   rec.AddressEncrypted,
		SettlementTxID:     res.SettlementTxID,
		Confirmations:      rec.Confirmations,
		SettlementAttempts: rec.SettlementAttempts,
		LastError:          rec.LastError,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		History:            history,
	}
}

// reasonClass separates validation failures from settlement ones.
func reasonClass(reason model.FailureReason) string {
	switch {
	case reason == model.FailureReasonNone:
		return ""
	case reason.IsValidation():
		return "validation"
	case reason == model.FailureReasonRetriesExhausted:
		return "retries_exhausted"
	default:
		return "settlement"
	}
}

func notFound(err error, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
