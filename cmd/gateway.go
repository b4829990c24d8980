package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/bus"
	"github.com/nextlevelbuilder/groupclaw/internal/channels"
	"github.com/nextlevelbuilder/groupclaw/internal/config"
	"github.com/nextlevelbuilder/groupclaw/internal/cron"
	"github.com/nextlevelbuilder/groupclaw/internal/gateway"
	"github.com/nextlevelbuilder/groupclaw/internal/ipc"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/pairing"
	"github.com/nextlevelbuilder/groupclaw/internal/sessions"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/store/pg"
	"github.com/nextlevelbuilder/groupclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/groupclaw/internal/tenants"
	"github.com/nextlevelbuilder/groupclaw/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// loadConfig reads the config file and resolves the timezone. An unknown
// timezone is logged and the host falls back to local time.
func loadConfig() (*config.Config, *time.Location, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		slog.Warn("invalid timezone, using local time", "error", err)
	}
	return cfg, loc, nil
}

// openStores opens the configured backend and migrates its schema.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		slog.Info("using postgres store (managed mode)")
		return pg.NewPGStores(store.StoreConfig{PostgresDSN: cfg.Database.PostgresDSN})
	}
	if cfg.Database.Mode == "managed" {
		slog.Warn("managed mode requested but GROUPCLAW_POSTGRES_DSN is not set, using sqlite")
	}
	path := cfg.SQLitePath()
	slog.Info("using sqlite store", "path", path)
	return sqlite.NewStores(store.StoreConfig{SQLitePath: path})
}

// loadRegistry loads registered tenants and makes sure the main tenant exists.
func loadRegistry(ctx context.Context, cfg *config.Config, stores *store.Stores, mbox *mailbox.DirStore) (*tenants.Registry, error) {
	registry := tenants.NewRegistry(stores.Tenants, mbox, cfg.TenantsDir())
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	err := registry.EnsureMain(ctx, cfg.Gateway.MainTenant, "Main", "@"+cfg.AssistantName, cfg.Gateway.MainDestination)
	if err != nil {
		return nil, fmt.Errorf("register main tenant: %w", err)
	}
	return registry, nil
}

func runGateway(ctx context.Context) error {
	cfg, loc, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	mbox := mailbox.NewDirStore(cfg.IPCDir())
	registry, err := loadRegistry(ctx, cfg, stores, mbox)
	if err != nil {
		return err
	}

	pairingSvc := pairing.NewService(stores.Pairing)
	if err := pairingSvc.Load(ctx); err != nil {
		return fmt.Errorf("load pairing state: %w", err)
	}
	sessionMgr := sessions.NewManager(stores.Sessions)
	if err := sessionMgr.Load(ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	runner := agent.NewContainerRunner(agent.ContainerRunnerConfig{
		Command: cfg.Runner.Command,
		Args:    cfg.Runner.Args,
		Image:   cfg.Runner.Image,
		Env:     cfg.Runner.Env,
	})
	invoker := agent.NewInvoker(runner, registry, sessionMgr, agent.Config{
		AssistantName: cfg.AssistantName,
		Timeout:       cfg.RunnerTimeout(),
		Mounts: agent.MountPolicy{
			TenantsDir:   cfg.TenantsDir(),
			IPCDir:       cfg.IPCDir(),
			ProjectRoot:  config.ExpandHome(cfg.Runner.ProjectRoot),
			AllowedRoots: cfg.Runner.AllowedMountRoots,
		},
	})

	msgBus := bus.New()
	channelMgr := channels.NewManager(msgBus)
	registerChannels(channelMgr, cfg, msgBus, pairingSvc)

	snapshots := ipc.NewSnapshots(mbox, stores.Tasks, registry.IsMain)
	drainer := ipc.NewDrainer(ipc.Config{
		Mailbox:      mbox,
		Snapshots:    snapshots,
		Tenants:      registry,
		Tasks:        stores.Tasks,
		Pairing:      pairingSvc,
		Sender:       msgBus,
		Notifier:     channelMgr,
		Location:     loc,
		PollInterval: cfg.IPCPollInterval(),
	})
	scheduler := cron.NewService(cron.ServiceConfig{
		Tasks:        stores.Tasks,
		Invoker:      invoker,
		Sender:       msgBus,
		Snapshots:    snapshots,
		Location:     loc,
		PollInterval: cfg.SchedulerPollInterval(),
	})
	router := gateway.NewRouter(gateway.Config{
		Bus:             msgBus,
		Tenants:         registry,
		Invoker:         invoker,
		Snapshots:       snapshots,
		AssistantName:   cfg.AssistantName,
		AutoRegister:    cfg.Gateway.AutoRegister,
		MaxMessageChars: cfg.Gateway.MaxMessageChars,
	})

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	mainID := ""
	if m, ok := registry.Main(); ok {
		mainID = m.ID
	}
	slog.Info("groupclaw starting",
		"version", Version,
		"mode", mode,
		"main_tenant", mainID,
		"tenants", len(registry.List()),
		"channels", channelMgr.GetEnabledChannels(),
	)

	channelMgr.StartAll(ctx)

	g, gctx := errgroup.WithContext(ctx)

	var nudge <-chan struct{}
	if cfg.IPCWatch() {
		watcher, err := mailbox.NewWatcher(mbox)
		if err != nil {
			slog.Warn("mailbox watcher unavailable, polling only", "error", err)
		} else {
			nudge = watcher.C()
			g.Go(func() error { watcher.Run(gctx); return nil })
		}
	}
	g.Go(func() error { drainer.Run(gctx, nudge); return nil })
	g.Go(func() error { scheduler.Run(gctx); return nil })
	g.Go(func() error { router.Run(gctx); return nil })
	g.Go(func() error { channelMgr.DispatchOutbound(gctx); return nil })

	<-gctx.Done()
	slog.Info("graceful shutdown initiated")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	channelMgr.StopAll(sctx)

	return g.Wait()
}
