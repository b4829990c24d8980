package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    string
		wantErr bool
	}{
		{"clean", OutputStartMarker + `{"status":"success","result":"hi"}` + OutputEndMarker, "hi", false},
		{"noise around", "log line\n" + OutputStartMarker + "\n{\"status\":\"success\",\"result\":\"a\"}\n" + OutputEndMarker + "\ntrailing", "a", false},
		{"last pair wins",
			OutputStartMarker + `{"status":"success","result":"first"}` + OutputEndMarker +
				OutputStartMarker + `{"status":"success","result":"second"}` + OutputEndMarker, "second", false},
		{"no markers", `{"status":"success"}`, "", true},
		{"bad json", OutputStartMarker + `{oops` + OutputEndMarker, "", true},
		{"bad status", OutputStartMarker + `{"status":"maybe"}` + OutputEndMarker, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutput([]byte(tt.stdout))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutput err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && out.Result != tt.want {
				t.Errorf("Result = %q, want %q", out.Result, tt.want)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	r := NewContainerRunner(ContainerRunnerConfig{
		Command: "docker", Args: []string{"run", "-i", "--rm"}, Image: "agent:latest",
	})
	args := r.BuildArgs(Input{Mounts: []store.Mount{
		{HostPath: "/data/groups/main", ContainerPath: ContainerGroupDir},
		{HostPath: "/src", ContainerPath: ContainerProjectDir, ReadOnly: true},
	}}, "groupclaw-main-1")
	want := []string{"run", "-i", "--rm", "--name", "groupclaw-main-1", "-v", "/data/groups/main:/workspace/group", "-v", "/src:/workspace/project:ro", "agent:latest"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args = %v, want %v", args, want)
		}
	}
}

func TestBuildArgsProcessModeIgnoresName(t *testing.T) {
	r := NewContainerRunner(ContainerRunnerConfig{Command: "sh", Args: []string{"-c", "true"}})
	args := r.BuildArgs(Input{Destination: "tg:42"}, "groupclaw-main-1")
	if strings.Join(args, " ") != "-c true" {
		t.Errorf("args = %v", args)
	}
}

func TestContainerName(t *testing.T) {
	got := ContainerName("family", time.Unix(0, 42))
	if got != "groupclaw-family-42" {
		t.Errorf("ContainerName = %q", got)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := &tailBuffer{n: 8}
	for i := 0; i < 10; i++ {
		b.Write([]byte("noise-"))
	}
	b.Write([]byte("RESULT"))
	if got := string(b.Bytes()); got != "e-RESULT" {
		t.Errorf("Bytes() = %q", got)
	}
	if len(b.buf) > 2*b.n {
		t.Errorf("buffer grew to %d bytes", len(b.buf))
	}
}

func TestMountPolicy(t *testing.T) {
	allowed := t.TempDir()
	photos := filepath.Join(allowed, "photos")
	if err := os.Mkdir(photos, 0755); err != nil {
		t.Fatal(err)
	}
	p := MountPolicy{
		TenantsDir:   "/data/groups",
		IPCDir:       "/data/ipc",
		ProjectRoot:  "/src",
		AllowedRoots: []string{allowed},
	}
	extra := []store.Mount{
		{HostPath: photos},
		{HostPath: "/etc"},
		{HostPath: filepath.Join(allowed, "..", "escape")},
		{HostPath: "relative/path"},
	}

	mainMounts := p.Resolve(&store.Tenant{ID: "main", IsMain: true, Mounts: extra})
	if len(mainMounts) != 4 {
		t.Fatalf("main mounts = %+v", mainMounts)
	}
	if mainMounts[2].ContainerPath != ContainerProjectDir || !mainMounts[2].ReadOnly {
		t.Errorf("project mount = %+v", mainMounts[2])
	}
	if mainMounts[3].ReadOnly {
		t.Error("main extra mount forced read-only")
	}

	famMounts := p.Resolve(&store.Tenant{ID: "family", Mounts: extra})
	if len(famMounts) != 3 {
		t.Fatalf("family mounts = %+v", famMounts)
	}
	for _, m := range famMounts {
		if m.ContainerPath == ContainerProjectDir {
			t.Error("non-main tenant got project root")
		}
	}
	if famMounts[0].HostPath != "/data/groups/family" || famMounts[0].ReadOnly {
		t.Errorf("group mount = %+v", famMounts[0])
	}
	if famMounts[2].ContainerPath != ContainerExtraDir+"/photos" || !famMounts[2].ReadOnly {
		t.Errorf("extra mount = %+v", famMounts[2])
	}
}

func TestBuildArgsPassesChat(t *testing.T) {
	r := NewContainerRunner(ContainerRunnerConfig{Command: "docker", Args: []string{"run"}, Image: "agent"})
	args := r.BuildArgs(Input{Destination: "tg:42"}, "")
	want := []string{"run", "-e", EnvChat + "=tg:42", "agent"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestProcessEnv(t *testing.T) {
	env := processEnv(Input{
		Destination: "dc:55",
		Mounts: []store.Mount{
			{HostPath: "/data/groups/work", ContainerPath: ContainerGroupDir},
			{HostPath: "/data/ipc/work", ContainerPath: ContainerIPCDir},
		},
	})
	want := []string{EnvIPCDir + "=/data/ipc/work", EnvChat + "=dc:55"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Errorf("env = %v, want %v", env, want)
	}
}
