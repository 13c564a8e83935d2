package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dwarvesf/zenz-bridge/internal/relayer"
)

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <key>",
		Short: "Show a deposit or withdrawal record",
		Long: `Show a deposit or withdrawal record.

The key is a deposit's source transaction id or a withdrawal's burn
signature.

Example:
  bridgectl status 5e0b1c...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				st, err := b.GetRecordStatus(ctx, args[0])
				if err != nil {
					return fail(f, "lookup record", err)
				}
				return f.Success(st, func(w io.Writer) { renderStatus(w, st) })
			})
		},
	}
}

func renderStatus(w io.Writer, st *relayer.RecordStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "kind\t%s\n", st.Kind)
	fmt.Fprintf(tw, "key\t%s\n", st.Key)
	fmt.Fprintf(tw, "status\t%s\n", st.Status)
	if st.Reason != "" {
		fmt.Fprintf(tw, "reason\t%s (%s)\n", st.Reason, st.ReasonClass)
	}
	fmt.Fprintf(tw, "route\t%s -> %s\n", st.SourceChain, st.TargetChain)
	fmt.Fprintf(tw, "amount\t%s %s\n", st.SourceChain.FormatAmount(st.Amount), st.SourceChain)
	fmt.Fprintf(tw, "confirmations\t%d\n", st.Confirmations)
	fmt.Fprintf(tw, "attempts\t%d\n", st.SettlementAttempts)
	if st.SettlementTxID != "" {
		fmt.Fprintf(tw, "settlement tx\t%s\n", st.SettlementTxID)
	}
	if st.LastError != "" {
		fmt.Fprintf(tw, "last error\t%s\n", st.LastError)
	}
}
