package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/homeops/internal/auth"
	"github.com/gosuda/homeops/internal/config"
	"github.com/gosuda/homeops/internal/domain"
	"github.com/gosuda/homeops/internal/jobs"
	"github.com/gosuda/homeops/internal/scheduler"
	"github.com/gosuda/homeops/internal/server"
	"github.com/gosuda/homeops/internal/store/postgres"
	redisstore "github.com/gosuda/homeops/internal/store/redis"
	"github.com/gosuda/homeops/internal/tenant"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = issueToken(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("homeops failed")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, parseErr := zerolog.ParseLevel(cfg.Level)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func toInt32(name string, v int) (int32, error) {
	if v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%s %d out of int32 range", name, v)
	}
	return int32(v), nil //nolint:gosec // bounds checked above
}

// issueToken prints an operator API token signed with HOMEOPS_JWT_SECRET.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "operator name")
	role := fs.String("role", "operator", "admin, operator or viewer")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tok, err := auth.IssueToken(cfg.JWT.Secret, *subject, *role, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, tok)
	return err
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	controlConns, err := toInt32("database max_conns", cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	tenantConns, err := toInt32("tenant max_conns", cfg.Tenant.MaxConns)
	if err != nil {
		return err
	}

	// Control database: the list of houses.
	store, err := postgres.New(ctx, cfg.Database.DSN(), controlConns)
	if err != nil {
		return err
	}
	defer store.Close()

	// One pool per house database, opened on first use.
	dbName := func(houseID int64) string { return domain.DatabaseName(cfg.Tenant.DBPrefix, houseID) }
	registry := tenant.NewRegistry(tenant.NewPgxFactory(func(houseID int64) string {
		return cfg.Database.DSNFor(dbName(houseID))
	}, tenantConns))
	defer registry.Close()

	provisioner := tenant.NewProvisioner(
		tenant.NewPgxAdminConnector(cfg.Database.AdminDSN()),
		registry,
		dbName,
		cfg.Tenant.SchemaPath,
	)

	// Redis is optional: without it notifications are not fanned out and runs
	// are only guarded within this process.
	var (
		notifier jobs.Notifier
		locker   jobs.RunLocker
	)
	if cfg.Redis.Enabled() {
		pubsub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer pubsub.Close()
		notifier, locker = pubsub, pubsub
	} else {
		log.Warn().Msg("HOMEOPS_REDIS_ADDR not set; notification fan-out and cross-replica run locks disabled")
	}

	clock := jobs.SystemClock{Location: cfg.Schedule.Location}
	houses := postgres.NewHouses(registry)

	runner := jobs.NewRunner(store.Houses(), locker, clock, jobs.RunnerConfig{
		Workers: cfg.Jobs.Workers,
		Timeout: cfg.Jobs.Timeout,
		LockTTL: cfg.Jobs.LockTTL,
	})

	sched := scheduler.New(runner, clock, cfg.Schedule.Location)
	schedules := []struct {
		job  jobs.Job
		spec string
	}{
		{jobs.NewRecurrenceEngine(houses, clock), cfg.Schedule.Recurrence},
		{jobs.NewDigestNotifier(houses, clock, notifier), cfg.Schedule.Digest},
		{jobs.NewOverdueSweeper(houses, clock, notifier), cfg.Schedule.Overdue},
	}
	for _, s := range schedules {
		if err := sched.Add(s.job, s.spec); err != nil {
			return err
		}
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx)

	srv := server.New(ctx, cfg, server.Deps{
		Store:       store,
		Provisioner: provisioner,
		Pools:       registry,
		Scheduler:   sched,
	})

	// Start server in background goroutine.
	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("server shutdown")
	}
	sched.Stop(shutdownCtx)

	log.Info().Msg("stopped")
	return nil
}
