package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewradar/internal/api"
	"github.com/reviewradar/internal/config"
	"github.com/reviewradar/internal/gitclient"
	"github.com/reviewradar/internal/logging"
	"github.com/reviewradar/internal/notify"
	"github.com/reviewradar/internal/poller"
	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/stats"
	"github.com/reviewradar/internal/store"
)

// ServeCommand returns the CLI command for running the sync engine and API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync engine and API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	port := cfg.Server.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}

	st, err := store.New(cfg.Sync.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}

	registry := projects.NewRegistry(cfg.ProjectModels())
	clients := gitclient.NewPool(cfg.Sync.RequestTimeout)
	calc := stats.NewCalculator(st, registry)

	p := poller.New(registry, st, clients, poller.Options{
		CommitInterval: cfg.Sync.CommitInterval,
		NoteInterval:   cfg.Sync.NoteInterval,
		BranchEvery:    cfg.Sync.BranchEvery,
	})
	p.Start()
	defer p.Stop()

	if cfg.Notify.Enabled {
		scheduler := notify.NewScheduler(notify.NewReporter(calc), notify.LogSink{}, cfg.Notify.At)
		scheduler.Start()
		defer scheduler.Stop()
	}

	fmt.Printf("Starting ReviewRadar API server on port %d...\n", port)
	server := api.NewServer(port, registry, p, calc, clients)
	return server.Start()
}
