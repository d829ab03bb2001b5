package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/goldedit/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "goldedit.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("data_root           = %s\n", cfg.DataRoot)
	fmt.Printf("host                = %s\n", cfg.Host)
	fmt.Printf("port                = %d\n", cfg.Port)
	fmt.Printf("backup_on_save      = %t\n", cfg.BackupOnSave)
	fmt.Printf("backup_dir          = %s\n", cfg.BackupDir)
	fmt.Printf("audit_log           = %s\n", cfg.AuditLog)
	fmt.Printf("reviewed_output_dir = %s\n", cfg.ReviewedOutputDir)
	fmt.Printf("skipped_output_dir  = %s\n", cfg.SkippedOutputDir)
	fmt.Printf("slots_schema        = %s\n", cfg.SlotsSchema)
	return nil
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}
