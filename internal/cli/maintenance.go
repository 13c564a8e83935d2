package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Resolve records stuck in processing",
		Long: `Resolve records stuck in processing.

Each record older than the processing timeout is finalized when its
settlement is found on chain, reset for retry when it is not, or failed
once it has used up its attempts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				report, err := b.RecoverStuck(ctx)
				if err != nil {
					return fail(f, "recover stuck records", err)
				}
				return f.Success(report, func(w io.Writer) {
					fmt.Fprintf(w, "finalized %d, reset %d, failed %d, errors %d\n",
						report.Finalized, report.Reset, report.Failed, report.Errors)
				})
			})
		},
	}
}

type retryResult struct {
	Retried int `json:"retried"`
}

func NewRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "retry",
		Short:         "Resubmit pending and confirmed records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				n, err := b.RetryPending(ctx)
				if err != nil {
					return fail(f, "retry pending records", err)
				}
				return f.Success(retryResult{Retried: n}, func(w io.Writer) {
					fmt.Fprintf(w, "retried %d records\n", n)
				})
			})
		},
	}
}
