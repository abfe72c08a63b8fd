package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parish-cli/internal/reconcile"
)

var (
	importCountry string
	importURL     string
	importFile    string
	importPath    string
	importJSON    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import parishes into the store",
	Long:  "Runs a place search import for a country or a straight-through import from a spreadsheet, My Maps feed or local file.",
}

// -- import places --

var importPlacesCmd = &cobra.Command{
	Use:   "places",
	Short: "Search Google Places for parishes in a country",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if importCountry == "" {
			return eris.New("--country is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "places")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.ImportFromPlaceSearch(ctx, importCountry)
		if err != nil {
			return eris.Wrap(err, "import places")
		}
		return printResult(os.Stdout, res, importJSON)
	},
}

// -- import sheet --

var importSheetCmd = &cobra.Command{
	Use:   "sheet",
	Short: "Import rows from a Google Sheets spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if importURL == "" {
			return eris.New("--url is required")
		}
		return runStructured(cmd, reconcile.SourceDescriptor{Kind: reconcile.KindSpreadsheet, Location: importURL})
	},
}

// -- import mymaps --

var importMyMapsCmd = &cobra.Command{
	Use:   "mymaps",
	Short: "Import features from a My Maps GeoJSON export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		loc, _ := cmd.Flags().GetString("url")
		if loc == "" {
			loc = importFile
		}
		if loc == "" {
			return eris.New("one of --url or --file is required")
		}
		return runStructured(cmd, reconcile.SourceDescriptor{Kind: reconcile.KindMyMaps, Location: loc})
	},
}

// -- import file --

var importFileCmd = &cobra.Command{
	Use:   "file",
	Short: "Import a local CSV, XLSX, GeoJSON or shapefile",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if importPath == "" {
			return eris.New("--path is required")
		}
		d, err := reconcile.DescriptorForFile(importPath)
		if err != nil {
			return err
		}
		return runStructured(cmd, d)
	},
}

func runStructured(cmd *cobra.Command, d reconcile.SourceDescriptor) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEngine(ctx, "structured")
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.Engine.ImportFromStructuredSource(ctx, d)
	if err != nil {
		return eris.Wrapf(err, "import %s", d.Kind)
	}
	return printResult(os.Stdout, res, importJSON)
}

func printResult(w io.Writer, res *reconcile.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(w, res.Message)
	fmt.Fprintf(w, "  imported: %d\n  updated:  %d\n  rejected: %d\n  failed:   %d\n",
		res.ImportedCount, res.UpdatedCount, res.RejectedCount, res.FailedCount)
	return nil
}

func init() {
	importPlacesCmd.Flags().StringVar(&importCountry, "country", "", "ISO-3166 alpha-2 country code (required)")

	importSheetCmd.Flags().StringVar(&importURL, "url", "", "spreadsheet URL (required)")

	importMyMapsCmd.Flags().String("url", "", "GeoJSON feed URL")
	importMyMapsCmd.Flags().StringVar(&importFile, "file", "", "GeoJSON file path")

	importFileCmd.Flags().StringVar(&importPath, "path", "", "file to import (.csv, .xlsx, .geojson, .shp)")

	importCmd.PersistentFlags().BoolVar(&importJSON, "json", false, "print the result as JSON")
	importCmd.AddCommand(importPlacesCmd, importSheetCmd, importMyMapsCmd, importFileCmd)
	rootCmd.AddCommand(importCmd)
}
