package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tutu-network/trail/internal/api"
	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/events"
	"github.com/tutu-network/trail/internal/infra/governance"
	"github.com/tutu-network/trail/internal/infra/memory"
	"github.com/tutu-network/trail/internal/infra/observability"
	"github.com/tutu-network/trail/internal/infra/sqlite"
)

// Daemon owns the long-lived components of a Trail node.
type Daemon struct {
	Config   Config
	Engine   *governance.Engine
	Auth     *api.Authenticator
	Server   *api.Server
	Tracer   *observability.Tracer
	Recorder *events.Recorder

	db    *sqlite.DB
	redis *events.RedisPublisher
}

// New opens storage and builds the engine and API server from cfg.
func New(ctx context.Context, cfg Config) (*Daemon, error) {
	auth, err := api.NewAuthenticator(cfg.API.JWTSecret, cfg.API.Admin)
	if err != nil {
		return nil, fmt.Errorf("api auth: %w (run 'trail config init')", err)
	}

	d := &Daemon{Config: cfg, Auth: auth}

	var store domain.Store
	switch cfg.Storage.Driver {
	case "memory":
		store = memory.New()
	case "sqlite", "":
		db, err := sqlite.Open(cfg.DataDir())
		if err != nil {
			return nil, err
		}
		d.db = db
		store = db
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	d.Tracer = observability.NewTracer(observability.TracerConfig{
		Enabled:  cfg.Tracing.Enabled,
		MaxSpans: cfg.Tracing.MaxSpans,
	})
	d.Recorder = events.NewRecorder(cfg.Events.Recent)

	pubs := events.Multi{d.Recorder}
	if cfg.Events.RedisURL != "" {
		rp, err := events.NewRedisPublisher(events.RedisConfig{
			URL:    cfg.Events.RedisURL,
			Stream: cfg.Events.Stream,
			MaxLen: cfg.Events.MaxLen,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rp.Ping(pingCtx); err != nil {
			log.Printf("[daemon] redis unreachable at startup: %v", err)
		}
		cancel()
		d.redis = rp
		pubs = append(pubs, rp)
	}

	d.Engine = governance.NewEngine(cfg.EngineConfig(), store,
		governance.WithTracer(d.Tracer),
		governance.WithPublisher(pubs),
	)

	if cfg.Ledger.Apply {
		lc, err := cfg.LedgerConfig()
		if err != nil {
			d.Close()
			return nil, err
		}
		if err := d.Engine.SetConfig(ctx, lc); err != nil {
			d.Close()
			return nil, fmt.Errorf("apply ledger config: %w", err)
		}
	}

	if err := d.syncGauges(ctx); err != nil {
		d.Close()
		return nil, err
	}

	d.Server = api.NewServer(d.Engine, auth)
	d.Server.SetTracer(d.Tracer)
	d.Server.SetRecorder(d.Recorder)
	d.Server.SetTimeout(parseDuration(cfg.API.Timeout, 30*time.Second))
	if cfg.Metrics.Enabled {
		d.Server.EnableMetrics()
	}
	return d, nil
}

// syncGauges seeds gauges from stored state; counters start at zero.
func (d *Daemon) syncGauges(ctx context.Context) error {
	st, err := d.Engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	observability.BallotsOpen.Set(float64(st.OpenBallots))
	log.Printf("[daemon] ledger %s: %d registries, %d ballots (%d open), %d voters",
		st.Version, st.Registries, st.Ballots, st.OpenBallots, st.Voters)
	return nil
}

// Handler returns the HTTP handler.
func (d *Daemon) Handler() http.Handler { return d.Server.Handler() }

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.Config.API.Addr(),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[daemon] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases storage and publisher connections.
func (d *Daemon) Close() error {
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}
