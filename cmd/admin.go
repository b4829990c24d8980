package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/groupclaw/internal/config"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/tenants"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

// admin is the state the administrative commands need. Reads go straight to
// the store; mutations are queued as entries in the main tenant's mailbox so
// the running host applies them through the same authorization path as
// worker requests.
type admin struct {
	cfg      *config.Config
	loc      *time.Location
	stores   *store.Stores
	registry *tenants.Registry
	mbox     *mailbox.DirStore
}

func openAdmin(ctx context.Context) (*admin, error) {
	cfg, loc, err := loadConfig()
	if err != nil {
		return nil, err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	mbox := mailbox.NewDirStore(cfg.IPCDir())
	registry := tenants.NewRegistry(stores.Tenants, mbox, cfg.TenantsDir())
	if err := registry.Load(ctx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	return &admin{cfg: cfg, loc: loc, stores: stores, registry: registry, mbox: mbox}, nil
}

func (a *admin) Close() { a.stores.Close() }

// submit queues e in the main tenant's control mailbox.
func (a *admin) submit(e *protocol.Entry) error {
	main, ok := a.registry.Main()
	if !ok {
		return fmt.Errorf("no main tenant registered yet; start the host once first")
	}
	name, err := mailbox.Write(filepath.Join(a.mbox.TenantDir(main.ID), protocol.DirTasks), e)
	if err != nil {
		return fmt.Errorf("queue %s: %w", e.Type, err)
	}
	fmt.Printf("Queued %s (%s). The host applies it on its next mailbox drain.\n", e.Type, name)
	return nil
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// clip fits s into w terminal columns.
func clip(s string, w int) string {
	return runewidth.Truncate(strings.Join(strings.Fields(s), " "), w, "…")
}
