package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"attune/internal/config"
	"attune/internal/converge"
	"attune/internal/llm"
	"attune/internal/profile"
	"attune/internal/provenance"
)

// App owns the fully wired gateway: transport, controller, sinks, hub
// and HTTP server. Build one with NewApp, run Start, stop with Shutdown.
type App struct {
	server    *Server
	svc       *Service
	transport *llm.Transport
	pg        *provenance.PostgresSink
	log       *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.RequireOracleKey(); err != nil {
		return nil, err
	}

	var client llm.Client
	if cfg.Oracle.Offline {
		log.Info("oracle running offline, replies are scripted echoes")
		client = llm.NewFakeClient()
	} else {
		gc, err := llm.NewGeminiClient(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model)
		if err != nil {
			return nil, fmt.Errorf("dial oracle: %w", err)
		}
		client = gc
	}

	ledger := llm.NewUsageLedger(cfg.Store.UsageFile)
	transport := llm.NewTransport(client, llm.TransportOptions{
		Retry: llm.RetryPolicy{
			MaxTries:  cfg.Oracle.MaxTries,
			BaseDelay: cfg.Oracle.RetryBase,
		},
		RPS:         cfg.Oracle.RPS,
		Burst:       cfg.Oracle.Burst,
		CallTimeout: cfg.Oracle.CallTimeout,
		Ledger:      ledger,
		Log:         log,
	})

	profiles, err := profile.NewCatalogStore(cfg.Store.ProfileDir, log)
	if err != nil {
		return nil, fmt.Errorf("open profile catalog: %w", err)
	}

	sinks := []provenance.Sink{provenance.NewFlowSink(cfg.Store.FlowDir, log)}
	var pg *provenance.PostgresSink
	if cfg.Store.PostgresDSN != "" {
		pg, err = provenance.NewPostgresSink(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
	}
	if cfg.Store.S3.Enabled {
		obj, err := provenance.NewObjectSink(provenance.ObjectConfig{
			Endpoint:  cfg.Store.S3.Endpoint,
			Region:    cfg.Store.S3.Region,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			Bucket:    cfg.Store.S3.Bucket,
			UseSSL:    cfg.Store.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("open object sink: %w", err)
		}
		sinks = append(sinks, obj)
	}

	ctrl, err := converge.New(converge.Deps{
		Profiles: profiles,
		Oracle:   transport,
		Sink:     provenance.NewMultiSink(sinks...),
		Log:      log,
	}, converge.Options{
		MaxAttempts:  cfg.Run.MaxAttempts,
		Threshold:    cfg.Run.Threshold,
		AttemptDelay: cfg.Run.AttemptDelay,
		Template:     cfg.Run.Template,
	})
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}

	hub := NewHub(log)
	svc := NewService(ctrl, profiles, ledger, hub, cfg.Run.MaxConcurrent, log)
	handler := NewHandler(svc, hub, log)
	server := NewServer(cfg.Addr, NewMux(handler, log), log)

	return &App{
		server:    server,
		svc:       svc,
		transport: transport,
		pg:        pg,
		log:       log,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown drains the HTTP server, waits for detached batches, then
// releases the transport and sinks.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.svc.Close()
	if cerr := a.transport.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if a.pg != nil {
		if cerr := a.pg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
