// Package cmd provides the CLI for the contest rating predictor.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baoliay2008/lccn-predictor/internal/api"
	"github.com/baoliay2008/lccn-predictor/internal/config"
	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/fetch"
	"github.com/baoliay2008/lccn-predictor/internal/handler"
	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/logging"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
	"github.com/baoliay2008/lccn-predictor/internal/scheduler"
	"github.com/baoliay2008/lccn-predictor/pkg/version"
)

// NewRootCmd creates the root command. Running it starts the long-lived
// process: scheduler plus read API, stopped by SIGINT/SIGTERM.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "lccn-predictor",
		Short: "Contest rating predictor",
		Long: `lccn-predictor crawls contest rankings from both regional sites,
predicts every participant's rating delta right after a contest ends,
and serves the predictions over a small read-only HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.SetVersionTemplate("lccn-predictor version {{.Version}}\n")
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config YAML (missing file keeps defaults)")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLogs, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.MongoDB.URI(), cfg.MongoDB.DB)
	if err != nil {
		return err
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}
	repos := repo.NewMongo(database)

	queue := fetch.NewQueue(logger)
	client := leetcode.NewClient(queue, logger)
	service := handler.New(logger, client, repos)

	sched := scheduler.New(logger, service)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	server := api.New(logger, repos, cfg.API)
	err = server.Serve(ctx)

	// The serve loop only returns on signal or listener failure; either
	// way, drain the scheduler's in-flight jobs before exiting.
	stop()
	sched.Wait()

	logger.Info("shutdown complete", "version", version.Version)
	return err
}
