package mailbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

// Watcher nudges the drainer when entry files appear. fsnotify is not
// recursive, so every tenant's messages/ and tasks/ directory is watched
// individually and new tenant directories are picked up as they are created.
// The drainer's ticker stays the source of truth; a missed event only delays
// an entry until the next tick.
type Watcher struct {
	store *DirStore
	fw    *fsnotify.Watcher
	nudge chan struct{}
}

// NewWatcher starts watching the mailbox root.
func NewWatcher(s *DirStore) (*Watcher, error) {
	if err := os.MkdirAll(s.Root(), 0755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{store: s, fw: fw, nudge: make(chan struct{}, 1)}
	if err := fw.Add(s.Root()); err != nil {
		fw.Close()
		return nil, err
	}
	w.Sync()
	return w, nil
}

// C delivers at most one pending nudge.
func (w *Watcher) C() <-chan struct{} { return w.nudge }

// Sync adds watches for every current tenant directory. Adding an existing
// watch is a no-op.
func (w *Watcher) Sync() {
	tenants, err := w.store.Tenants()
	if err != nil {
		slog.Debug("mailbox watcher: list tenants failed", "error", err)
		return
	}
	for _, t := range tenants {
		w.addTenant(t)
	}
}

func (w *Watcher) addTenant(tenant string) {
	dir := w.store.TenantDir(tenant)
	_ = w.fw.Add(dir)
	for _, kind := range []string{protocol.DirMessages, protocol.DirTasks} {
		if err := w.fw.Add(filepath.Join(dir, kind)); err != nil && !os.IsNotExist(err) {
			slog.Debug("mailbox watcher: add failed", "dir", filepath.Join(dir, kind), "error", err)
		}
	}
}

// Run forwards fsnotify events as nudges until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("mailbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			rel, err := filepath.Rel(w.store.Root(), ev.Name)
			if err == nil {
				// A new tenant dir or one of its kind subdirectories.
				tenant := strings.Split(rel, string(filepath.Separator))[0]
				if ValidTenantID(tenant) {
					w.addTenant(tenant)
				}
			}
			w.notify()
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if strings.HasSuffix(ev.Name, ".json") && !strings.HasPrefix(filepath.Base(ev.Name), ".") {
		w.notify()
	}
}

func (w *Watcher) notify() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}
