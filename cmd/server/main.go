package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pmr_assist/backend/internal/config"
	"github.com/pmr_assist/backend/internal/db"
	"github.com/pmr_assist/backend/internal/geocode"
	httpapi "github.com/pmr_assist/backend/internal/http"
	"github.com/pmr_assist/backend/internal/http/handlers"
	"github.com/pmr_assist/backend/internal/notify"
	"github.com/pmr_assist/backend/internal/service"
	"github.com/pmr_assist/backend/internal/signals"
)

const incidentCacheEntries = 10_000

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	var source signals.Source
	if cfg.SignalsURL == "" {
		source = signals.MockAdapter{}
		logger.Info().Msg("using mock signal adapter")
	} else {
		source = signals.HTTPAdapter{BaseURL: cfg.SignalsURL, Client: &http.Client{Timeout: cfg.RequestTimeout}}
	}
	incidents, err := signals.NewCachedIncidentFeed(source, cfg.IncidentCacheTTL, incidentCacheEntries)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init incident cache")
	}
	defer incidents.Close()

	senders := []notify.Sender{notify.LogSender{Logger: logger}}
	if cfg.NATSURL != "" {
		natsSender, err := notify.ConnectNATS(ctx, cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer natsSender.Close()
		senders = append(senders, natsSender)
	}
	notifier := notify.NewService(logger, senders...)

	engine := &service.Engine{
		Store:   store,
		Signals: signals.Composite{Incidents: incidents, Connections: source, Delays: source},
		Policy:  policyFromConfig(cfg),
		Logger:  logger,
	}
	if cfg.GeocoderURL != "" {
		geocoder, err := geocode.NewNominatimGeocoder(cfg.GeocoderURL, cfg.GeocoderUserAgent)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init geocoder")
		}
		engine.Geocoder = geocoder
	}

	router := httpapi.Router(cfg, store, engine, notifier, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	if cfg.MonitorInterval > 0 {
		go runMonitorLoop(ctx, engine, store, notifier, cfg.MonitorInterval, logger)
	}

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC822}
	}
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	return log.Output(out).Level(level).With().Str("service", "pmr-backend").Logger()
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (handlers.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store with demo data")
		mem := db.NewMemoryStore()
		if err := db.SeedDemo(ctx, mem, time.Now().UTC()); err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			return nil, nil, err
		}
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SeedDemo {
		if err := db.SeedDemo(ctx, store, time.Now().UTC()); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info().Msg("demo data loaded")
	}
	return store, store.Close, nil
}

func policyFromConfig(cfg config.Config) service.Policy {
	p := service.DefaultPolicy()
	p.MinScore = cfg.MinScore
	p.CriticalDelayMinutes = cfg.CriticalDelayMinutes
	p.BetterAgentMargin = cfg.BetterAgentMargin
	if cfg.MonitorConcurrency > 0 {
		p.MonitorConcurrency = cfg.MonitorConcurrency
	}
	return p
}

// runMonitorLoop sweeps active missions every interval and resets the daily
// mission counters on the first tick of a new day.
func runMonitorLoop(ctx context.Context, engine *service.Engine, store handlers.Store, notifier *notify.Service, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	day := time.Now().UTC().YearDay()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if d := now.UTC().YearDay(); d != day {
				day = d
				n, err := store.ResetDailyCounters(ctx)
				if err != nil {
					logger.Error().Err(err).Msg("daily counter reset failed")
				} else {
					logger.Info().Int64("agents", n).Msg("daily counters reset")
				}
			}

			res, err := engine.RecordedMonitor(ctx, store)
			if err != nil {
				logger.Error().Err(err).Msg("scheduled monitor sweep failed")
				continue
			}
			notifier.Dispatch(ctx, res.Events)
		}
	}
}
