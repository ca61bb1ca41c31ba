package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"valuta/internal/core"
	applog "valuta/internal/log"
)

func newConvertCommand() *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "convert <amount> <from> <to>",
		Short: "Convert an amount with the latest rates",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), nil, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return runConvert(cmd.Context(), a, cmd.OutOrStdout(), base, args[0], args[1], args[2])
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base currency to fetch rates for (default: saved base)")

	return cmd
}

func runConvert(ctx context.Context, a *app, out io.Writer, base, amount, from, to string) error {
	if _, ok := core.ParseAmount(amount); !ok {
		return fmt.Errorf("invalid amount %q", amount)
	}
	from, to = core.NormalizeCode(from), core.NormalizeCode(to)
	base = core.NormalizeCode(base)
	if base == "" {
		base = a.prefs.LoadBase(ctx)
	}

	var table core.RateTable
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := a.rates.Fetch(gctx, base)
		if err != nil {
			return err
		}
		table = t
		return nil
	})
	g.Go(func() error {
		// Warms the catalog cache that label reads from. Names are cosmetic;
		// codes alone still convert.
		if _, err := a.catalog.FetchAll(gctx); err != nil {
			a.logger.Warn("Currency names unavailable", applog.FieldError, err.Error())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch rates: %s", core.Describe(err))
	}

	for _, code := range []string{from, to} {
		if !table.Has(code) {
			return fmt.Errorf("unknown currency %q for base %s", code, table.BaseCode)
		}
	}

	result := table.Convert(amount, from, to)
	rate := table.Convert("1", from, to)
	fmt.Fprintf(out, "%s %s = %s %s\n", amount, label(a.catalog, from), core.FormatAmount(result), label(a.catalog, to))
	fmt.Fprintf(out, "1 %s = %s %s\n", from, decimalText(rate), to)
	if !table.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Last updated: %s\n", table.UpdatedAt.UTC().Format("Jan 2, 2006 15:04"))
	}
	return nil
}

type namer interface {
	Name(code string) string
}

func label(names namer, code string) string {
	name := names.Name(code)
	if name == "" || name == code {
		return code
	}
	return fmt.Sprintf("%s (%s)", code, name)
}

func decimalText(v float64) string {
	return fmt.Sprintf("%.6g", v)
}
