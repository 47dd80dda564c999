package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farellandr/cashback/config"
	"github.com/farellandr/cashback/internal/logger"
	"github.com/farellandr/cashback/internal/server"
	"github.com/farellandr/cashback/internal/tracing"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const serviceName = "cashback"

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load(".env")

	log, err := logger.Init(logger.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := newRootCmd(log).Execute(); err != nil {
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd(log *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Coupons and cashback backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(log), newSweepCmd(log), newMigrateCmd(log))
	return root
}

func newServeCmd(log *zap.Logger) *cobra.Command {
	var withSweeper bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := config.Migrate(db, cfg, log); err != nil {
				return errors.Wrap(err, "migrate")
			}

			shutdownTracer, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint, log)
			if err != nil {
				return errors.Wrap(err, "init tracer")
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracer(sctx); err != nil {
					log.Warn("tracer shutdown", zap.Error(err))
				}
			}()

			app, err := server.Wire(cfg, db, log)
			if err != nil {
				return err
			}
			defer app.Close()

			if os.Getenv("GIN_MODE") == "" {
				gin.SetMode(gin.ReleaseMode)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx, ":"+cfg.Port, server.NewRouter(app), log)
			})
			if withSweeper {
				g.Go(func() error {
					return app.Sweeper.Run(gctx, cfg.SweepInterval)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withSweeper, "sweeper", true, "run the confirmation sweeper in-process")
	return cmd
}

// newSweepCmd runs a single confirmation pass. The exit code reports the
// outcome: 0 ok, 1 unreachable or failed, 2 lease held elsewhere.
func newSweepCmd(log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Confirm pending cashback whose window has elapsed, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			app, err := server.Wire(cfg, db, log)
			if err != nil {
				return err
			}

			rep := app.Sweeper.Tick(cmd.Context())
			releaseCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			if err := app.Sweeper.Release(releaseCtx); err != nil {
				log.Warn("release sweeper lease", zap.Error(err))
			}
			cancel()
			_ = app.Close()

			log.Info("sweep finished",
				zap.String("result", string(rep.Result)),
				zap.Int("confirmed", rep.Confirmed),
				zap.String("holder", app.Sweeper.Holder()),
			)
			_ = log.Sync()
			os.Exit(rep.Result.ExitCode())
			return nil
		},
	}
}

func newMigrateCmd(log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed the bootstrap admin",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			if err := config.Migrate(db, cfg, log); err != nil {
				return errors.Wrap(err, "migrate")
			}
			log.Info("migration complete")
			return nil
		},
	}
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	db, err := config.InitDatabase(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect database")
	}
	return cfg, db, nil
}
