package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// ValidOutputs are the formats the dedupe command can print
var ValidOutputs = []string{"table", "json", "yaml"}

// DedupeOptions holds the flags of the dedupe command
type DedupeOptions struct {
	BatchPath string
	PoolPath  string
	Mode      string
	Output    string
	ProjectID string
	LogLevel  string
}

// NewDedupeCommand creates the offline dedupe command
func NewDedupeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DedupeOptions{}

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Deduplicate a batch file against a pool file",
		Long: `Runs the reconciliation engine on local files without touching any store.

Batch and pool files hold a list of test cases in JSON or YAML, either at the top level or
under a "records" key. Field names may use any of the supported aliases.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			logger, flush, err := logging.New(opts.LogLevel, true)
			if err != nil {
				return err
			}
			defer flush()
			return runDedupe(cmd.Context(), cfg.Dedupe, opts, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.BatchPath, "batch", "", "file with the incoming records")
	cmd.Flags().StringVar(&opts.PoolPath, "pool", "", "file with the existing records")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(models.ModeSmart), "dedupe mode (off|strict|smart)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "output format (table|json|yaml)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id stamped on the records")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "error", "log level")
	_ = cmd.MarkFlagRequired("batch")

	return cmd
}

func runDedupe(ctx context.Context, cfg dedupe.Config, opts *DedupeOptions, out io.Writer, logger ectologger.Logger) error {
	if !isValidOutput(opts.Output) {
		return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
	}
	mode, err := models.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	pipeline, err := dedupe.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	batch, err := loadRecords(opts.BatchPath, opts.ProjectID, pipeline)
	if err != nil {
		return err
	}
	var pool []models.Record
	if opts.PoolPath != "" {
		if pool, err = loadRecords(opts.PoolPath, opts.ProjectID, pipeline); err != nil {
			return err
		}
		for i := range pool {
			if pool[i].Version == 0 {
				pool[i].Version = 1
			}
		}
	}

	run, err := pipeline.Run(ctx, batch, pool, mode)
	if err != nil {
		return err
	}
	run.ProjectID = opts.ProjectID

	return writeRun(out, opts.Output, run)
}

func writeRun(out io.Writer, format string, run *models.BatchRun) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(run); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "Batch %s (%s)\n", run.ID, run.Mode)
	fmt.Fprintln(out, summaryTable(run))
	if len(run.Result.PendingConflicts) > 0 {
		fmt.Fprintln(out, "\nPending review")
		fmt.Fprintln(out, conflictTable(run.Result.PendingConflicts))
	}
	if len(run.Errors) > 0 {
		fmt.Fprintln(out, "\nRejected records")
		fmt.Fprintln(out, errorTable(run.Errors))
	}
	return nil
}

// loadRecords reads a JSON or YAML record file and normalizes its entries. Records without an
// id get a fresh one.
func loadRecords(path, projectID string, pipeline *dedupe.Pipeline) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	raw, err := decodeRecords(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	records := make([]models.Record, len(raw))
	for i, r := range raw {
		rec := normalizers.Normalize(r)
		if rec.ID == "" {
			rec.ID = pipeline.NewID()
		}
		if projectID != "" {
			rec.ProjectID = projectID
		}
		records[i] = rec
	}
	return records, nil
}

func decodeRecords(data []byte, ext string) ([]normalizers.RawRecord, error) {
	var doc any
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	if obj, ok := doc.(map[string]any); ok {
		doc = obj["records"]
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of records")
	}

	out := make([]normalizers.RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		out = append(out, normalizers.RawRecord(obj))
	}
	return out, nil
}

func isValidOutput(format string) bool {
	for _, f := range ValidOutputs {
		if f == format {
			return true
		}
	}
	return false
}
