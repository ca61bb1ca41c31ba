package commands

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"valuta/internal/core"
)

func newCodesCommand() *cobra.Command {
	var favoritesOnly bool

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "List supported currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.catalog.FetchAll(ctx)
			if err != nil {
				return fmt.Errorf("fetch currencies: %s", core.Describe(err))
			}
			favorites := a.prefs.LoadFavorites(ctx)

			codes := make([]string, 0, len(names))
			for code := range names {
				if favoritesOnly && !slices.Contains(favorites, code) {
					continue
				}
				codes = append(codes, code)
			}
			slices.Sort(codes)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, code := range codes {
				mark := ""
				if slices.Contains(favorites, code) {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", core.Flag(code), code, names[code], mark)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&favoritesOnly, "favorites", false, "only list saved favorites")

	return cmd
}
