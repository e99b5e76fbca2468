package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"stock-trader/config"
	"stock-trader/database"
	"stock-trader/handlers"
	"stock-trader/jobs"
	"stock-trader/market"
	"stock-trader/middleware"
	"stock-trader/session"
	"stock-trader/trading"
)

const (
	shutdownTimeout = 10 * time.Second
	refreshTimeout  = 5 * time.Minute
)

// openStore connects to the database and brings the schema up to date.
// The returned func closes the connection pool.
func openStore(cfg *config.Config, log *logrus.Logger) (*database.Store, func(), error) {
	db, err := config.OpenDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	store := database.New(db)
	if err := store.Migrate(); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return store, func() { sqlDB.Close() }, nil
}

type migrateCmd struct {
	log *logrus.Logger
}

func (*migrateCmd) Name() string { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate

  Creates the users, stocks, transactions and stock_prices tables, or adds
  what is missing from them, then exits.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (m *migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		m.log.Error(err)
		return subcommands.ExitFailure
	}
	_, closeDB, err := openStore(cfg, m.log)
	if err != nil {
		m.log.Error(err)
		return subcommands.ExitFailure
	}
	defer closeDB()

	m.log.WithField("driver", cfg.DBDriver).Info("database migrated")
	return subcommands.ExitSuccess
}

type serveCmd struct {
	log  *logrus.Logger
	port string
}

func (*serveCmd) Name() string { return "serve" }
func (*serveCmd) Synopsis() string { return "migrate the database and serve the web application" }
func (*serveCmd) Usage() string {
	return `serve [-port <port>]

  Migrates the database, starts the quote refresher and serves the
  simulator until SIGINT or SIGTERM.
`
}

func (s *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.port, "port", "", "Port to listen on. Overrides PORT.")
}

func (s *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := s.serve(ctx); err != nil {
		s.log.Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (s *serveCmd) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if s.port != "" {
		cfg.Port = s.port
	}
	cash, err := cfg.Cash()
	if err != nil {
		return err
	}

	store, closeDB, err := openStore(cfg, s.log)
	if err != nil {
		return err
	}
	defer closeDB()

	rdb, err := config.OpenRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Initialize layers
	if cfg.AlphaVantageKey == "" {
		s.log.Warn("ALPHA_VANTAGE_API_KEY is not set, quotes will fail")
	}
	upstream := market.NewAlphaVantage(cfg.AlphaVantageURL, cfg.AlphaVantageKey, cfg.QuoteTimeout, s.log)
	quoter := market.NewCachedQuoter(upstream, rdb, cfg.QuoteCacheTTL, store, s.log)
	svc := trading.NewService(store, quoter, cash, s.log)
	sessions := session.NewStore(rdb, cfg.SessionSecret, cfg.SessionTTL)

	if !s.log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := handlers.NewHandler(svc, sessions, s.log)
	router := handlers.NewRouter(handler, middleware.NewAuth(sessions, s.log, handler.Apologize))

	scheduler, err := jobs.NewRefresher(store, quoter, refreshTimeout, s.log).Schedule(cfg.RefreshSchedule)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Infof("Starting server on %s", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
