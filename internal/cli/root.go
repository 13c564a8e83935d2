// Package cli implements bridgectl, the operator tool for the relayer. It
// runs the same relayer and ledger as the API server against the same
// database.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

// Backend is what the commands drive.
type Backend interface {
	SubmitDeposit(ctx context.Context, req relayer.DepositRequest) (relayer.Result, error)
	SubmitWithdrawalClaim(ctx context.Context, req relayer.WithdrawalRequest) (relayer.Result, error)
	GetRecordStatus(ctx context.Context, key string) (*relayer.RecordStatus, error)
	RecoverStuck(ctx context.Context) (relayer.RecoveryReport, error)
	RetryPending(ctx context.Context) (int, error)
	Reserves(ctx context.Context) ([]model.ReserveLedger, error)
	Bootstrap(ctx context.Context, asset model.Chain, amount int64) (*model.ReserveLedger, error)
	Close() error
}

// Connector opens a Backend. It is called once per command, after flags are
// parsed, so --help and flag errors never touch the database.
type Connector func(ctx context.Context, runID string) (Backend, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	RunID   string

	connect Connector
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Operate the zenz bridge relayer",
		Long: `Operate the zenz bridge relayer.

Submits deposits and withdrawal claims, inspects records and reserves, and
runs the recovery sweep and pending retry by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", msg)
				return NewExitError(ExitCommandError, msg)
			}
			opts.RunID = uuid.NewString()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewDepositCommand(opts))
	cmd.AddCommand(NewWithdrawCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))
	cmd.AddCommand(NewReserveCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		RunID:     o.RunID,
	}
}

// run connects, hands the backend to fn and closes it afterwards.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, b Backend, f *OutputFormatter) error) error {
	f := o.formatter(cmd)
	if o.connect == nil {
		_ = f.Error(CodeConnect, "no backend configured", nil)
		return NewExitError(ExitCommandError, "no backend configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f.VerboseLog("run %s: connecting", o.RunID)
	b, err := o.connect(ctx, o.RunID)
	if err != nil {
		_ = f.Error(CodeConnect, "connect backend", err.Error())
		return WrapExitError(ExitCommandError, "connect backend", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			f.VerboseLog("run %s: close backend: %v", o.RunID, cerr)
		}
	}()

	return fn(ctx, b, f)
}

// fail reports a backend error with the code and exit status matching its
// kind.
func fail(f *OutputFormatter, message string, err error) error {
	code, exit := CodeBackend, ExitCommandError
	switch {
	case errors.Is(err, relayer.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAmount):
		code = CodeInvalidRequest
	case errors.Is(err, relayer.ErrUnsupportedChain):
		code = CodeUnsupported
	case errors.Is(err, relayer.ErrNotFound):
		code = CodeNotFound
	}
	_ = f.Error(code, message, err.Error())
	return WrapExitError(exit, message, err)
}
