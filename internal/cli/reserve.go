package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dwarvesf/zenz-bridge/internal/model"
)

type reserveView struct {
	Asset      model.Chain `json:"asset"`
	Bootstrap  int64       `json:"bootstrap"`
	Deposited  int64       `json:"deposited"`
	Withdrawn  int64       `json:"withdrawn"`
	Reserved   int64       `json:"reserved"`
	Available  int64       `json:"available"`
	Consistent bool        `json:"consistent"`
}

func toReserveView(r *model.ReserveLedger) reserveView {
	return reserveView{
		Asset:      r.Asset,
		Bootstrap:  r.BootstrapAmount,
		Deposited:  r.DepositedAmount,
		Withdrawn:  r.WithdrawnAmount,
		Reserved:   r.ReservedAmount,
		Available:  r.Available(),
		Consistent: r.Consistent(),
	}
}

func NewReserveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Inspect and bootstrap reserve balances",
	}
	cmd.AddCommand(newReserveShowCommand(opts))
	cmd.AddCommand(newReserveBootstrapCommand(opts))
	return cmd
}

func newReserveShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "List reserve balances per asset",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				rows, err := b.Reserves(ctx)
				if err != nil {
					return fail(f, "list reserves", err)
				}
				views := make([]reserveView, 0, len(rows))
				for i := range rows {
					views = append(views, toReserveView(&rows[i]))
				}
				return f.Success(views, func(w io.Writer) { renderReserves(w, views) })
			})
		},
	}
}

type BootstrapOptions struct {
	*RootOptions
	Asset  string
	Amount int64
}

func newReserveBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BootstrapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Set the opening balance of an asset",
		Long: `Set the opening balance of an asset.

The amount replaces the current bootstrap value. It is refused when the
result would leave less available than is already reserved.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := model.ParseChain(opts.Asset)
			if err != nil {
				f := opts.formatter(cmd)
				_ = f.Error(CodeUnsupported, err.Error(), nil)
				return WrapExitError(ExitCommandError, "parse asset", err)
			}
			return opts.run(cmd, func(ctx context.Context, b Backend, f *OutputFormatter) error {
				r, err := b.Bootstrap(ctx, asset, opts.Amount)
				if err != nil {
					return fail(f, "bootstrap reserve", err)
				}
				view := toReserveView(r)
				return f.Success(view, func(w io.Writer) { renderReserves(w, []reserveView{view}) })
			})
		},
	}

	cmd.Flags().StringVar(&opts.Asset, "asset", "", "asset (BTC|ZEC|SOL)")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "bootstrap amount in base units")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func renderReserves(w io.Writer, views []reserveView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ASSET\tBOOTSTRAP\tDEPOSITED\tWITHDRAWN\tRESERVED\tAVAILABLE")
	for _, v := range views {
		flag := ""
		if !v.Consistent {
			flag = "\t!"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s%s\n", v.Asset,
			v.Asset.FormatAmount(v.Bootstrap),
			v.Asset.FormatAmount(v.Deposited),
			v.Asset.FormatAmount(v.Withdrawn),
			v.Asset.FormatAmount(v.Reserved),
			v.Asset.FormatAmount(v.Available),
			flag)
	}
}
