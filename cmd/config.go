package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewradar/internal/config"
	"github.com/reviewradar/internal/filter"
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
						Value:   "reviewradar.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file, including project filter rules",
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets redacted",
				Action: runConfigShow,
			},
		},
	}
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

	// Filter rules are validated per project so a bad pattern is caught at
	// config time instead of being silently skipped during sync.
	bad := 0
	for _, p := range cfg.Projects {
		ok, errs := filter.ValidateFilterRules(p.FilterRules)
		if ok {
			continue
		}
		bad++
		for _, e := range errs {
			fmt.Printf("project %s: filter rule %v\n", p.ID, e)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d project(s) have invalid filter rules", bad)
	}

	fmt.Println("Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Secrets never reach stdout.
	for i := range cfg.Projects {
		if cfg.Projects[i].AccessToken != "" {
			cfg.Projects[i].AccessToken = "<redacted>"
		}
		if cfg.Projects[i].WebhookSecret != "" {
			cfg.Projects[i].WebhookSecret = "<redacted>"
		}
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
