package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/config"
	"github.com/aretw0/switchyard/internal/logging"
	httpAdapter "github.com/aretw0/switchyard/pkg/adapters/http"
	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/adapters/process"
	redisAdapter "github.com/aretw0/switchyard/pkg/adapters/redis"
	"github.com/aretw0/switchyard/pkg/adapters/sqlite"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/observability"
	backend "github.com/redis/go-redis/v9"
)

// App is a configured engine together with the infrastructure it owns.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Engine  *switchyard.Engine
	Metrics *observability.Metrics
	Streams *httpAdapter.StreamManager

	// Set only with the redis driver.
	Redis *backend.Client
	Pause *redisAdapter.PauseFlag
	Audit *redisAdapter.AuditStream

	closers []func() error
}

// Close releases storage connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build creates the engine described by cfg. A bootstrap definition is
// applied on every start; without one the engine is only sealed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(observability.DefaultNamespace),
		Streams: httpAdapter.NewStreamManager(logger),
	}

	invoker, err := BuildInvoker(cfg)
	if err != nil {
		return nil, err
	}

	opts := []switchyard.Option{
		switchyard.WithName(cfg.Workflow.Name),
		switchyard.WithLogger(logger),
		switchyard.WithInvoker(invoker),
		switchyard.WithHookBudget(cfg.Workflow.HookBudget),
		switchyard.WithValidatorTimeout(cfg.Workflow.ValidatorTimeout),
		switchyard.WithLifecycleHooks(observability.Chain(
			observability.LoggingHooks(logger),
			app.Metrics.Hooks(),
			app.Streams.Hooks(),
		)),
	}
	if !cfg.Workflow.EngineAddress.IsZero() {
		opts = append(opts, switchyard.WithEngineAddress(cfg.Workflow.EngineAddress))
	}

	storageOpts, err := app.openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	opts = append(opts, storageOpts...)

	eng, err := switchyard.New(cfg.Workflow.Admin, opts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = eng

	if cfg.Bootstrap != nil {
		err = eng.Apply(ctx, cfg.Workflow.Admin, *cfg.Bootstrap)
	} else {
		err = eng.Seal(ctx, cfg.Workflow.Admin)
	}
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("error bootstrapping workflow %q: %w", cfg.Workflow.Name, err)
	}

	logger.Info("Workflow ready",
		"driver", cfg.Storage.Driver,
		"engine", eng.Address(),
		"targets", len(cfg.Targets))
	return app, nil
}

func (a *App) openStorage(ctx context.Context, sc config.StorageConfig) ([]switchyard.Option, error) {
	switch sc.Driver {
	case config.DriverRedis:
		rc := sc.Redis
		store := redisAdapter.New(rc.Addr, rc.Password, rc.DB, redisAdapter.WithPrefix(rc.Prefix))
		a.Redis = store.Client()
		a.closers = append(a.closers, a.Redis.Close)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
		}

		opts := []switchyard.Option{
			switchyard.WithBackend(store),
			switchyard.WithLocker(redisAdapter.NewLocker(a.Redis, rc.Prefix)),
			switchyard.WithLockTTL(rc.LockTTL),
		}
		if rc.AuditStream != "" {
			a.Audit = redisAdapter.NewAuditStream(a.Redis, rc.Prefix+rc.AuditStream, rc.AuditMaxLen)
			opts = append(opts, switchyard.WithAuditSink(a.Audit))
		}
		if rc.PauseKey != "" {
			a.Pause = redisAdapter.NewPauseFlag(a.Redis, rc.Prefix+rc.PauseKey)
			opts = append(opts, switchyard.WithPauseSwitch(a.Pause))
		}
		return opts, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(sqlite.Config{
			Path:            sc.SQLite.Path,
			MaxOpenConns:    sc.SQLite.MaxOpenConns,
			MaxIdleConns:    sc.SQLite.MaxIdleConns,
			ConnMaxLifetime: sc.SQLite.ConnMaxLifetime,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return []switchyard.Option{switchyard.WithBackend(sqlite.NewStore(db))}, nil

	default:
		return []switchyard.Option{switchyard.WithBackend(memory.NewStore())}, nil
	}
}

// BuildInvoker routes every configured target address to its HTTP endpoint
// or local command. Process targets from targets_file are merged in; inline
// targets win on conflict.
func BuildInvoker(cfg *config.Config) (*memory.Registry, error) {
	fileTargets := map[domain.Address]process.ProcessConfig{}
	baseDir := ""
	if cfg.TargetsFile != "" {
		var err error
		if fileTargets, err = process.LoadTargets(cfg.TargetsFile); err != nil {
			return nil, err
		}
		baseDir = filepath.Dir(cfg.TargetsFile)
	}

	inline := make(map[domain.Address]process.ProcessConfig)
	endpoints := make(map[domain.Address]httpAdapter.Endpoint)
	for _, t := range cfg.Targets {
		switch t.Kind {
		case config.TargetHTTP:
			endpoints[t.Address] = httpAdapter.Endpoint{URL: t.URL, Secret: t.Secret, Header: t.Header}
		case config.TargetProcess:
			inline[t.Address] = process.ProcessConfig{
				Address:     t.Address,
				Name:        t.Name,
				Command:     t.Command,
				Args:        t.Args,
				Environment: upperKeys(t.Env),
			}
		}
	}

	// Inline commands resolve from the working directory, file commands from the file's directory.
	fileRunner := process.NewRunner(process.WithRegistry(fileTargets), process.WithBaseDir(baseDir))
	runner := process.NewRunner(process.WithRegistry(inline))
	invoker := httpAdapter.NewInvoker(endpoints)

	registry := memory.NewRegistry()
	for addr := range fileTargets {
		registry.Register(addr, bind(fileRunner.Invoke, addr))
	}
	for addr := range inline {
		registry.Register(addr, bind(runner.Invoke, addr))
	}
	for addr := range endpoints {
		registry.Register(addr, bind(invoker.Invoke, addr))
	}
	return registry, nil
}

func bind(invoke func(context.Context, domain.Address, []byte) ([]byte, error), target domain.Address) memory.Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		return invoke(ctx, target, payload)
	}
}

// upperKeys undoes viper's key lowercasing for environment variables.
func upperKeys(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// WriteStderr prints an operator-facing line that stays out of stdout protocol traffic.
func WriteStderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, ">>> %s\n", fmt.Sprintf(format, args...))
}
