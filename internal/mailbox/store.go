// Package mailbox is the filesystem side of the worker IPC protocol: one
// directory per tenant, one JSON file per entry.
//
//	<root>/<tenant>/messages/*.json
//	<root>/<tenant>/tasks/*.json
//	<root>/errors/<tenant>-<file>     quarantined entries
package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

// ErrorsDir is the quarantine directory name under the mailbox root. It can
// never be a tenant id.
const ErrorsDir = "errors"

// ErrGone is returned by Read when the entry was removed between listing and
// reading, e.g. drained by a previous tick.
var ErrGone = errors.New("mailbox entry gone")

var tenantIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidTenantID reports whether id is usable as a single safe path segment.
func ValidTenantID(id string) bool {
	return tenantIDRe.MatchString(id) && id != ErrorsDir
}

// Ref identifies one entry file.
type Ref struct {
	Tenant string
	Kind   string // protocol.DirMessages or protocol.DirTasks
	Name   string
}

func (r Ref) String() string { return r.Tenant + "/" + r.Kind + "/" + r.Name }

// Store is the mailbox contract the drainer depends on.
type Store interface {
	Tenants() ([]string, error)
	List(tenant, kind string) ([]Ref, error)
	Read(ref Ref) ([]byte, error)
	Remove(ref Ref) error
	Quarantine(ref Ref) error
}

// DirStore implements Store on a directory tree.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at root. The directory is created lazily.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Root returns the mailbox root directory.
func (s *DirStore) Root() string { return s.root }

// TenantDir returns <root>/<tenant>.
func (s *DirStore) TenantDir(tenant string) string { return filepath.Join(s.root, tenant) }

// Tenants lists tenant directories. Names that are not valid tenant ids are
// skipped, which also excludes the quarantine directory.
func (s *DirStore) Tenants() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && ValidTenantID(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// List returns the *.json entries of one kind in listing order. Hidden files
// (in-progress atomic writes) are skipped.
func (s *DirStore) List(tenant, kind string) ([]Ref, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, tenant, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Ref
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, Ref{Tenant: tenant, Kind: kind, Name: name})
	}
	return out, nil
}

func (s *DirStore) path(ref Ref) string {
	return filepath.Join(s.root, ref.Tenant, ref.Kind, ref.Name)
}

// Read returns the entry body, or ErrGone if it no longer exists.
func (s *DirStore) Read(ref Ref) ([]byte, error) {
	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrGone
	}
	return data, err
}

// Remove deletes the entry. Removing an absent entry is a no-op.
func (s *DirStore) Remove(ref Ref) error {
	err := os.Remove(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Quarantine moves the entry to <root>/errors/<tenant>-<name>. An existing
// file with the same name gets a timestamp suffix instead of being replaced.
func (s *DirStore) Quarantine(ref Ref) error {
	dir := filepath.Join(s.root, ErrorsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}
	dst := filepath.Join(dir, ref.Tenant+"-"+ref.Name)
	if _, err := os.Stat(dst); err == nil {
		dst = fmt.Sprintf("%s.%d", dst, time.Now().UnixNano())
	}
	if err := os.Rename(s.path(ref), dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("quarantine %s: %w", ref, err)
	}
	return nil
}

// EnsureTenant creates the tenant's messages/ and tasks/ directories.
func (s *DirStore) EnsureTenant(tenant string) error {
	if !ValidTenantID(tenant) {
		return fmt.Errorf("invalid tenant id %q", tenant)
	}
	for _, kind := range []string{protocol.DirMessages, protocol.DirTasks} {
		if err := os.MkdirAll(filepath.Join(s.root, tenant, kind), 0755); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot atomically writes v as JSON to <root>/<tenant>/<name>.
func (s *DirStore) WriteSnapshot(tenant, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.root, tenant), name, data)
}

// Write atomically drops an entry into dir (a tenant's messages/ or tasks/
// directory) and returns the file name. Workers and the admin CLI use it.
func Write(dir string, e *protocol.Entry) (string, error) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), uuid.NewString())
	if err := writeAtomic(dir, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// writeAtomic writes to a hidden temp file in the same directory, syncs and
// renames so readers never observe a partial file.
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
