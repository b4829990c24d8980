package agent

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// Container-side mount points.
const (
	ContainerGroupDir   = "/workspace/group"
	ContainerIPCDir     = "/workspace/ipc"
	ContainerProjectDir = "/workspace/project"
	ContainerExtraDir   = "/workspace/extra"
)

// Environment variables the worker-side mailbox tools read.
const (
	EnvIPCDir = "GROUPCLAW_IPC_DIR"
	EnvChat   = "GROUPCLAW_CHAT"
)

// MountPolicy decides what a tenant's worker can see.
type MountPolicy struct {
	TenantsDir   string   // <data>/groups; each tenant gets <TenantsDir>/<id> rw
	IPCDir       string   // <data>/ipc; each tenant gets <IPCDir>/<id> rw
	ProjectRoot  string   // main tenant only, read-only
	AllowedRoots []string // extra mounts must resolve under one of these
}

// Resolve returns the mounts for tenant. Extra mounts outside the allowlist
// are dropped with a warning; non-main tenants always get them read-only.
func (p MountPolicy) Resolve(t *store.Tenant) []store.Mount {
	mounts := []store.Mount{
		{HostPath: filepath.Join(p.TenantsDir, t.ID), ContainerPath: ContainerGroupDir},
		{HostPath: filepath.Join(p.IPCDir, t.ID), ContainerPath: ContainerIPCDir},
	}
	if t.IsMain && p.ProjectRoot != "" {
		mounts = append(mounts, store.Mount{HostPath: p.ProjectRoot, ContainerPath: ContainerProjectDir, ReadOnly: true})
	}
	for _, m := range t.Mounts {
		host, ok := p.allowed(m.HostPath)
		if !ok {
			slog.Warn("extra mount rejected: outside allowed roots", "tenant", t.ID, "host_path", m.HostPath)
			continue
		}
		name := m.ContainerPath
		if name == "" {
			name = filepath.Base(host)
		}
		name = strings.Trim(filepath.Clean("/"+name), "/")
		if name == "" || strings.Contains(name, "..") {
			slog.Warn("extra mount rejected: bad container path", "tenant", t.ID, "container_path", m.ContainerPath)
			continue
		}
		mounts = append(mounts, store.Mount{
			HostPath:      host,
			ContainerPath: ContainerExtraDir + "/" + name,
			ReadOnly:      m.ReadOnly || !t.IsMain,
		})
	}
	return mounts
}

// allowed cleans path and reports whether it lives under an allowed root.
func (p MountPolicy) allowed(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return "", false
	}
	clean := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		clean = resolved
	}
	for _, root := range p.AllowedRoots {
		r := filepath.Clean(root)
		if resolved, err := filepath.EvalSymlinks(r); err == nil {
			r = resolved
		}
		rel, err := filepath.Rel(r, clean)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return clean, true
		}
	}
	return "", false
}
