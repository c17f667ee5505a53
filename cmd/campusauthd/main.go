// Package main provides the campusauthd server binary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/internal/api"
	"github.com/MrEthical07/campusauth/internal/config"
	"github.com/MrEthical07/campusauth/internal/logging"
	"github.com/MrEthical07/campusauth/internal/store"
	promexport "github.com/MrEthical07/campusauth/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const appName = "campusauthd"

// Set at link time with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Campus session and authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(createUserCmd(&configPath, &logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	var embeddedRedis bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath, *logLevel, embeddedRedis)
		},
	}
	cmd.Flags().BoolVar(&embeddedRedis, "embedded-redis", false, "Run an in-process Redis instead of connecting to redis.addr (development only)")
	return cmd
}

func createUserCmd(configPath, logLevel *string) *cobra.Command {
	var email, password, role, name string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account directly in the database",
		Long: `create-user writes an account straight into the SQLite database,
bypassing the HTTP API. Use it to bootstrap the first admin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer rt.close()

			// Registration never touches Redis; an unconnected client is enough
			// to satisfy the builder.
			rdb := redis.NewClient(&redis.Options{Addr: rt.cfg.Redis.Addr})
			defer rdb.Close()

			engine, err := rt.engine(rdb)
			if err != nil {
				return err
			}
			id, err := engine.Register(cmd.Context(), campusauth.RegisterRequest{
				Email:       email,
				Password:    password,
				Role:        campusauth.Role(role),
				DisplayName: name,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", id.Email, id.Role, id.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&role, "role", string(campusauth.RoleStudent), "Role (admin, faculty, student)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// runtimeDeps is what every subcommand needs before it can build an engine.
type runtimeDeps struct {
	cfg    *config.Config
	logger *slog.Logger
	users  *store.Store
}

func setup(ctx context.Context, configPath, logLevel string) (*runtimeDeps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.New(cfg.Logging, os.Stderr, Version)
	slog.SetDefault(logger)

	users, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &runtimeDeps{cfg: cfg, logger: logger, users: users}, nil
}

func (r *runtimeDeps) engine(rdb redis.UniversalClient) (*campusauth.Engine, error) {
	ec, err := r.cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	engine, err := campusauth.New().
		WithConfig(ec).
		WithRedis(rdb).
		WithCredentialStore(r.users).
		WithLogger(r.logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return engine, nil
}

func (r *runtimeDeps) close() {
	if err := r.users.Close(); err != nil {
		r.logger.Warn("closing database", "error", err)
	}
}

func serve(ctx context.Context, configPath, logLevel string, embeddedRedis bool) error {
	rt, err := setup(ctx, configPath, logLevel)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	rdb, closeRedis, err := connectRedis(ctx, rt.cfg.Redis, embeddedRedis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	engine, err := rt.engine(rdb)
	if err != nil {
		return err
	}

	srv, err := api.New(api.Deps{
		Config:  rt.cfg.Server,
		Engine:  engine,
		Metrics: promexport.NewExporter(engine).Handler(),
		Logger:  logger,
		Version: Version,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("campusauthd started", "addr", srv.Addr(), "version", Version)

	<-ctx.Done()
	logger.Info("shutting down")
	return srv.Close()
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, embedded bool, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if embedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("using embedded redis; sessions are lost on exit", "addr", addr)
	}

	opts := &redis.UniversalOptions{Addrs: []string{addr}, DB: cfg.DB}
	if !embedded {
		opts.Username = cfg.Username
		opts.Password = cfg.Password
	}
	client := redis.NewUniversalClient(opts)
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, cleanup, nil
}
