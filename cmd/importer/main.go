// Command importer loads ClinicalTrials.gov studies and custom field values
// into the trialnotes database, and optionally writes an export of the
// resulting rows.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/rpattn/trialnotes/internal/config"
	"github.com/rpattn/trialnotes/internal/db"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/internal/ingestion"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/internal/query"
	"github.com/rpattn/trialnotes/internal/repository"
	"github.com/rpattn/trialnotes/internal/settings"
)

type options struct {
	configDir   string
	studies     string
	apiQuery    string
	description string
	values      string
	headerRow   int
	format      string
	pivotRows   string
	pivotCols   string
	allRows     bool
}

func parseFlags() options {
	var opts options
	flag.StringVarP(&opts.configDir, "config", "c", ".", "directory holding config.yaml")
	flag.StringVarP(&opts.studies, "studies", "s", "", "ClinicalTrials.gov v2 JSON file to import")
	flag.StringVar(&opts.apiQuery, "query", "", "search query that produced the studies file")
	flag.StringVar(&opts.description, "description", "", "note recorded in each entry's history")
	flag.StringVarP(&opts.values, "values", "v", "", "CSV or XLSX file of custom field values keyed by nctId")
	flag.IntVar(&opts.headerRow, "header-row", -1, "0-based header row of the values file (default: first non-empty row)")
	flag.StringVarP(&opts.format, "export", "e", "", "write an export after importing: csv or xlsx")
	flag.StringVar(&opts.pivotRows, "pivot-rows", "", "row field of the xlsx pivot sheet")
	flag.StringVar(&opts.pivotCols, "pivot-cols", "", "column field of the xlsx pivot sheet")
	flag.BoolVar(&opts.allRows, "all", false, "export every row instead of the saved filter")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if opts.studies == "" && opts.values == "" && opts.format == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		logger.NewLogger("trialnotes-importer", "info").Fatal().Err(err).Msg("error loading config")
	}
	log := logger.NewLogger("trialnotes-importer", cfg.Log.Level)

	if err := run(context.Background(), cfg, opts, log); err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *logger.Logger) error {
	conn, err := db.Open(ctx, cfg.Database, log.Component("db"))
	if err != nil {
		return err
	}
	defer conn.Close()

	if !cfg.Database.MigrationsDisabled {
		if err := conn.Migrate(); err != nil {
			return err
		}
	}

	store := repository.NewStore(conn, log.Component("repository"))
	importer := ingestion.NewService(store.Entries, store.CustomFields, log.Component("ingestion"))

	if opts.studies != "" {
		file, err := os.Open(opts.studies)
		if err != nil {
			return fmt.Errorf("open studies file: %w", err)
		}
		summary, err := importer.ImportStudies(ctx, ingestion.StudyRequest{
			Query:       opts.apiQuery,
			Description: opts.description,
			Data:        file,
		})
		_ = file.Close()
		if err != nil {
			return err
		}
		for _, rowErr := range summary.Errors {
			log.Warn().Int("study", rowErr.Row).Str("nct_id", rowErr.NCTID).Msg(rowErr.Message)
		}
	}

	if opts.values != "" {
		file, err := os.Open(opts.values)
		if err != nil {
			return fmt.Errorf("open values file: %w", err)
		}
		req := ingestion.ValuesRequest{FileName: filepath.Base(opts.values), Data: file}
		if opts.headerRow >= 0 {
			req.HeaderRowIndex = &opts.headerRow
		}
		summary, err := importer.ImportValues(ctx, req)
		_ = file.Close()
		if err != nil {
			return err
		}
		for _, rowErr := range summary.Errors {
			log.Warn().Int("row", rowErr.Row).Str("nct_id", rowErr.NCTID).Msg(rowErr.Message)
		}
		if len(summary.UnknownColumns) > 0 {
			log.Warn().Strs("columns", summary.UnknownColumns).Msg("columns matched no custom field")
		}
	}

	if opts.format == "" {
		return nil
	}

	querySvc := query.NewService(store, log.Component("query"))
	settingsSvc := settings.NewService(store.Settings, store.CustomFields, querySvc.Registry(), log.Component("settings"))
	rules, err := settingsSvc.Rules(ctx)
	if err != nil {
		return err
	}
	req := export.Request{
		Name:      "entries",
		Format:    opts.format,
		Rules:     rules,
		PivotRows: opts.pivotRows,
		PivotCols: opts.pivotCols,
	}
	if !opts.allRows {
		if req.Filter, err = settingsSvc.Filter(ctx); err != nil {
			return err
		}
	}

	exporter := export.NewService(querySvc, log.Component("export"), export.WithExportDirectory(cfg.Export.Directory))
	result, err := exporter.Export(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(cfg.Export.Directory, result.FileName))
	return nil
}
