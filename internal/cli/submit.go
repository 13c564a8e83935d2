package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dwarvesf/zenz-bridge/internal/model"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

type DepositOptions struct {
	*RootOptions
	Chain  string
	TxID   string
	Amount int64
	To     string
}

func NewDepositCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DepositOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Submit a deposit for verification and minting",
		Long: `Submit a deposit for verification and minting.

Resubmitting a deposit that is already settled is a no-op.

Example:
  bridgectl deposit --chain BTC --tx 4a5e1e... --amount 120000 --to 9xQe...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := model.ParseChain(opts.Chain)
			if err != nil {
				f := opts.formatter(cmd)
				_ = f.Error(CodeUnsupported, err.Error(), nil)
				return WrapExitError(ExitCommandError, "parse chain", err)
			}
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				res, err := b.SubmitDeposit(ctx, relayer.DepositRequest{
					Chain:              chain,
					SourceTxID:         opts.TxID,
					Amount:             opts.Amount,
					DestinationAddress: opts.To,
				})
				if err != nil {
					return fail(f, "submit deposit", err)
				}
				return reportResult(f, res)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Chain, "chain", "", "source chain (BTC|ZEC|SOL)")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "source transaction id")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "amount in base units")
	cmd.Flags().StringVar(&opts.To, "to", "", "solana address to mint to")
	for _, name := range []string{"chain", "tx", "amount", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

type WithdrawOptions struct {
	*RootOptions
	Signature   string
	Amount      int64
	PayoutChain string
	To          string
	Encrypted   bool
	Sender      string
}

func NewWithdrawCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WithdrawOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Submit a withdrawal claim for a burn or custody transfer",
		Long: `Submit a withdrawal claim for a burn or custody transfer.

With --encrypted the payout address is an envelope sealed to the relayer
and --sender is the solana address that sealed it.

Example:
  bridgectl withdraw --sig 3nYt... --amount 50000 --payout-chain ZEC --to t1Vz...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payout, err := model.ParseChain(opts.PayoutChain)
			if err != nil {
				f := opts.formatter(cmd)
				_ = f.Error(CodeUnsupported, err.Error(), nil)
				return WrapExitError(ExitCommandError, "parse payout chain", err)
			}
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				res, err := b.SubmitWithdrawalClaim(ctx, relayer.WithdrawalRequest{
					Signature:     opts.Signature,
					Amount:        opts.Amount,
					PayoutChain:   payout,
					PayoutAddress: opts.To,
					Encrypted:     opts.Encrypted,
					Sender:        opts.Sender,
				})
				if err != nil {
					return fail(f, "submit withdrawal", err)
				}
				return reportResult(f, res)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Signature, "sig", "", "solana burn or transfer signature")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "amount in base units")
	cmd.Flags().StringVar(&opts.PayoutChain, "payout-chain", "", "chain to pay out on (BTC|ZEC|SOL)")
	cmd.Flags().StringVar(&opts.To, "to", "", "payout address, or its envelope with --encrypted")
	cmd.Flags().BoolVar(&opts.Encrypted, "encrypted", false, "the payout address is encrypted")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "solana address that encrypted the payout address")
	for _, name := range []string{"sig", "amount", "payout-chain", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// reportResult prints the result and fails the command when the relayer
// refused the request.
func reportResult(f *OutputFormatter, res relayer.Result) error {
	switch res.Outcome {
	case relayer.OutcomeRejected, relayer.OutcomePaused, relayer.OutcomeInsufficientReserve:
		message := fmt.Sprintf("%s %s: %s", res.Kind, res.Key, res.Outcome)
		_ = f.Error(CodeRefused, message, res)
		return NewExitError(ExitFailure, message)
	}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s: %s (%s)\n", res.Kind, res.Key, res.Outcome, res.Status)
		if res.SettlementTxID != "" {
			fmt.Fprintf(w, "settlement tx: %s\n", res.SettlementTxID)
		}
	})
}
