package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/metasync/internal/core/api"
	"github.com/solatis/metasync/internal/core/auth"
	"github.com/solatis/metasync/internal/core/config"
	"github.com/solatis/metasync/internal/core/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC metadata service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().Int("admin-port", 8081, "admin HTTP port (0 disables)")
	serveCmd.Flags().String("descriptors", "./descriptors", "descriptor file or directory")
	serveCmd.Flags().Bool("worker", true, "drain deferred work in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, config.FlagBindings{
		"api.host":         "host",
		"api.port":         "port",
		"admin.port":       "admin-port",
		"descriptors.path": "descriptors",
	})
	if err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set MS_HMAC_SECRET environment variable)")
	}

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	service, err := api.NewService(rt.service, cfg.API.RequestTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.API, service, auth.NewAuthenticator(secrets, rt.queries, logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	logger.Info("starting metasync", slog.String("version", Version), slog.String("address", grpcServer.Addr()))
	g.Go(func() error {
		return grpcServer.Start(gctx)
	})

	var admin *server.Admin
	if cfg.Admin.Port != 0 {
		admin = server.NewAdmin(cfg.Admin, rt.holder, rt.reloader, rt.queue, logger)
		g.Go(admin.Start)
	}

	g.Go(func() error {
		return rt.watchDescriptors(gctx)
	})

	if runWorker, _ := cmd.Flags().GetBool("worker"); runWorker {
		g.Go(func() error {
			return rt.newWorker().Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var errs []error
		if admin != nil {
			errs = append(errs, admin.Shutdown(shutdownCtx))
		}
		errs = append(errs, grpcServer.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	return g.Wait()
}
