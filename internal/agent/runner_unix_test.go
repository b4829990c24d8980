//go:build !windows

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestContainerRunnerProcess(t *testing.T) {
	script := `cat >/dev/null; echo booting >&2; echo "noise"; ` +
		`echo '` + OutputStartMarker + `'; echo '{"status":"success","result":"done","newSessionId":"s1"}'; echo '` + OutputEndMarker + `'`
	r := NewContainerRunner(ContainerRunnerConfig{Command: "sh", Args: []string{"-c", script}})
	out, err := r.Run(context.Background(), Input{Prompt: "hi", TenantID: "main"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != "done" || out.NewSessionID != "s1" {
		t.Errorf("out = %+v", out)
	}
}

func TestContainerRunnerCrash(t *testing.T) {
	r := NewContainerRunner(ContainerRunnerConfig{Command: "sh", Args: []string{"-c", "echo nope >&2; exit 3"}})
	_, err := r.Run(context.Background(), Input{})
	if !errors.Is(err, ErrRunnerCrashed) {
		t.Errorf("err = %v, want ErrRunnerCrashed", err)
	}
}

func TestContainerRunnerTimeoutKillsGroup(t *testing.T) {
	// The child sleep inherits stdout; without a group kill Run would block
	// until it exits.
	r := NewContainerRunner(ContainerRunnerConfig{Command: "sh", Args: []string{"-c", "sleep 30 & sleep 30"}})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, Input{})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v, process group not killed", elapsed)
	}
}

func TestContainerRunnerTimeoutKillsNamedContainer(t *testing.T) {
	// Extra args after the script become positional parameters of sh.
	r := NewContainerRunner(ContainerRunnerConfig{
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
		Image:   "agent:latest",
	})
	killed := make(chan string, 1)
	r.killContainer = func(name string) error {
		killed <- name
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, Input{TenantID: "family"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	select {
	case name := <-killed:
		if !strings.HasPrefix(name, "groupclaw-family-") {
			t.Errorf("killed %q", name)
		}
	default:
		t.Error("container was not killed")
	}
}

func TestContainerRunnerLargeStdoutKeepsResult(t *testing.T) {
	script := `cat >/dev/null; head -c 6000000 /dev/zero | tr '\0' 'x'; echo; ` +
		`echo '` + OutputStartMarker + `'; echo '{"status":"success","result":"ok"}'; echo '` + OutputEndMarker + `'`
	r := NewContainerRunner(ContainerRunnerConfig{Command: "sh", Args: []string{"-c", script}})
	out, err := r.Run(context.Background(), Input{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Result != "ok" {
		t.Errorf("out = %+v", out)
	}
}
