package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

type fakeBackend struct {
	deposits    []relayer.DepositRequest
	withdrawals []relayer.WithdrawalRequest

	result   relayer.Result
	status   *relayer.RecordStatus
	report   relayer.RecoveryReport
	retried  int
	reserves []model.ReserveLedger
	err      error
	closed   bool
}

func (f *fakeBackend) SubmitDeposit(_ context.Context, req relayer.DepositRequest) (relayer.Result, error) {
	f.deposits = append(f.deposits, req)
	return f.result, f.err
}

func (f *fakeBackend) SubmitWithdrawalClaim(_ context.Context, req relayer.WithdrawalRequest) (relayer.Result, error) {
	f.withdrawals = append(f.withdrawals, req)
	return f.result, f.err
}

func (f *fakeBackend) GetRecordStatus(_ context.Context, key string) (*relayer.RecordStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.status == nil || f.status.Key != key {
		return nil, relayer.ErrNotFound
	}
	return f.status, nil
}

func (f *fakeBackend) RecoverStuck(context.Context) (relayer.RecoveryReport, error) {
	return f.report, f.err
}

func (f *fakeBackend) RetryPending(context.Context) (int, error) {
	return f.retried, f.err
}

func (f *fakeBackend) Reserves(context.Context) ([]model.ReserveLedger, error) {
	return f.reserves, f.err
}

func (f *fakeBackend) Bootstrap(_ context.Context, asset model.Chain, amount int64) (*model.ReserveLedger, error) {
	if f.err != nil {
		return nil, f.err
	}
	if amount < 0 {
		return nil, ledger.ErrInvalidAmount
	}
	r := &model.ReserveLedger{Asset: asset, BootstrapAmount: amount}
	f.reserves = append(f.reserves, *r)
	return r, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// execute runs bridgectl with args against backend and returns stdout.
func execute(backend *fakeBackend, args ...string) (string, error) {
	cmd := NewRootCommand(func(context.Context, string) (Backend, error) {
		return backend, nil
	})
	return executeCommand(cmd, args...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var errUnreachable = errors.New("dial tcp: connection refused")
