package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/metasync/internal/core/config"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain deferred metadata work",
	Long:  `worker runs the async lane: it polls the deferred work queue and reconciles queued mappings until interrupted. Use --once to drain a single batch and exit.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Int("concurrency", 4, "items processed in parallel")
	workerCmd.Flags().String("descriptors", "./descriptors", "descriptor file or directory")
	workerCmd.Flags().Bool("once", false, "process one batch and exit")
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, config.FlagBindings{
		"worker.concurrency": "concurrency",
		"descriptors.path":   "descriptors",
	})
	if err != nil {
		return err
	}

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := rt.newWorker()
	if once, _ := cmd.Flags().GetBool("once"); once {
		n, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d item(s)\n", n)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.watchDescriptors(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	return g.Wait()
}
