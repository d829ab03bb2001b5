package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/goldedit/internal/config"
	"github.com/goldedit/internal/model"
	"github.com/goldedit/internal/report"
	"github.com/goldedit/internal/storage"
)

// ReportCommand returns the CLI command that prints annotation statistics
// for every file under the data root, without starting the server.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Summarize annotation progress across the dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-root",
				Aliases: []string{"d"},
				Usage:   "Data root containing the JSONL files",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the report as JSON instead of text",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("data-root") {
		cfg.OverrideDataRoot(c.String("data-root"))
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	schema := model.DefaultSchema()
	if cfg.SlotsSchema != "" {
		if schema, err = model.LoadSchema(cfg.SlotsSchema); err != nil {
			return fmt.Errorf("failed to load slot schema: %w", err)
		}
	}

	st := &storage.Store{DataRoot: cfg.DataRoot}
	rep, err := report.Build(st, schema)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	rep.WriteText(os.Stdout, schema)
	return nil
}
