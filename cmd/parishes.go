package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parish-cli/internal/parish"
)

var parishesCmd = &cobra.Command{
	Use:   "parishes",
	Short: "Inspect stored parishes",
}

// -- parishes list --

var parishesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parishes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		countryCode, _ := cmd.Flags().GetString("country")
		src, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		if src != "" && !parish.Source(src).Valid() {
			return eris.Errorf("unknown source %q", src)
		}

		records, err := st.List(ctx, parish.ListFilter{
			Country: countryCode,
			Source:  parish.Source(src),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return eris.Wrap(err, "parishes list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No parishes found.")
			return nil
		}
		formatParishList(os.Stdout, records)
		return nil
	},
}

func formatParishList(w io.Writer, records []parish.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCITY\tCOUNTRY\tSOURCE\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			truncate(r.Name, 40),
			truncate(r.Address.City, 24),
			r.Address.Country,
			r.ImportSource,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// -- migrate --

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the parish store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		fmt.Fprintf(os.Stdout, "%s store migrated\n", cfg.Store.Driver)
		return nil
	},
}

func init() {
	parishesListCmd.Flags().String("country", "", "filter by country code")
	parishesListCmd.Flags().String("source", "", "filter by import source (google_places, google_my_maps, manual, import)")
	parishesListCmd.Flags().Int("limit", 50, "max results")
	parishesListCmd.Flags().Int("offset", 0, "results to skip")
	parishesListCmd.Flags().Bool("json", false, "print as JSON")

	parishesCmd.AddCommand(parishesListCmd)
	rootCmd.AddCommand(parishesCmd, migrateCmd)
}
