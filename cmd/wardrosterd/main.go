// Command wardrosterd serves the ward roster to the local UI and keeps it
// reconciled with the shared remote copy.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wardroster/internal/auth"
	"wardroster/internal/blob"
	"wardroster/internal/config"
	"wardroster/internal/httpapi"
	"wardroster/internal/localstore"
	"wardroster/internal/logging"
	"wardroster/internal/remote"
	"wardroster/internal/remote/drive"
	"wardroster/internal/roster"
	"wardroster/internal/syncengine"
)

var exitFunc = os.Exit

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardrosterd: %v\n", err)
		exitFunc(2)
		return
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardrosterd: build logger: %v\n", err)
		exitFunc(2)
		return
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Error("wardrosterd stopped", zap.Error(err))
		exitFunc(1)
	}
}

// app is the wired daemon.
type app struct {
	store  *localstore.Store
	engine *syncengine.Engine
	server *httpapi.Server
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	backend, err := localstore.OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	store, err := localstore.Open(ctx, backend, localstore.WithLogger(logger.Named("localstore")))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}
	res, authn, session, err := buildRemote(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := syncengine.NewPrometheusRecorder(reg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := syncengine.New(store, res, authn,
		syncengine.WithInterval(cfg.SyncInterval),
		syncengine.WithPolicy(cfg.ConflictPolicy),
		syncengine.WithResourceName(cfg.ResourceName),
		syncengine.WithAutoSync(cfg.AutoSync),
		syncengine.WithRecorder(rec),
		syncengine.WithLogger(logger.Named("sync")),
	)
	server := httpapi.New(httpapi.Deps{
		Roster:      roster.NewManager(store, roster.WithLogger(logger.Named("roster"))),
		Store:       store,
		Engine:      engine,
		Session:     session,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:      logger.Named("http"),
		CORSOrigins: cfg.CORSOrigins,
	})
	return &app{store: store, engine: engine, server: server}, nil
}

// buildRemote returns the configured remote and the authenticator guarding
// it. session is nil for blob drivers, which carry their own credentials.
func buildRemote(ctx context.Context, cfg config.Config, logger *zap.Logger) (remote.Resources, auth.Authenticator, *auth.Session, error) {
	switch cfg.Remote {
	case config.RemoteDrive:
		session := auth.NewSession()
		if cfg.DriveToken != "" {
			session.SignIn(cfg.DriveToken, time.Time{})
		}
		client := drive.New(session,
			drive.WithBaseURL(cfg.DriveBaseURL),
			drive.WithFolderName(cfg.DriveFolder),
			drive.WithLogger(logger.Named("drive")),
		)
		return client, session, session, nil
	case config.RemoteBlob, "":
		store, err := blob.Open(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open blob store: %w", err)
		}
		logger.Info("blob remote ready", zap.String("driver", string(store.Driver())))
		return remote.NewBlobResources(store, cfg.RemotePrefix), auth.Always{}, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown remote driver %s", cfg.Remote)
	}
}

// run serves HTTP and drives the sync loop until ctx is cancelled. ready, if
// set, receives the bound listener address.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, ready chan<- string) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		a.server.Close()
		if err := a.store.Close(); err != nil {
			logger.Warn("close local store", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	logger.Info("wardrosterd listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("device_id", a.store.DeviceID()),
		zap.String("remote", string(cfg.Remote)),
	)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	// Request contexts derive from gctx so open event streams end on shutdown.
	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
