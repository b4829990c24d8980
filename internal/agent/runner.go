package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// Output sentinels. Workers may print logs freely; only the JSON between the
// last pair of markers is the result.
const (
	OutputStartMarker = "---GROUPCLAW_OUTPUT_START---"
	OutputEndMarker   = "---GROUPCLAW_OUTPUT_END---"
)

// Output statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Input is written to the worker's stdin as JSON.
type Input struct {
	Prompt        string        `json:"prompt"`
	SessionID     string        `json:"sessionId,omitempty"`
	TenantID      string        `json:"groupFolder"`
	IsMain        bool          `json:"isMain"`
	IsScheduled   bool          `json:"isScheduledTask,omitempty"`
	AssistantName string        `json:"assistantName,omitempty"`
	Destination   string        `json:"chatJid,omitempty"`
	Mounts        []store.Mount `json:"-"`
}

// Output is the worker's JSON result.
type Output struct {
	Status       string `json:"status"`
	Result       string `json:"result"`
	NewSessionID string `json:"newSessionId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Runner executes one worker run. Implementations must honor ctx
// cancellation and return ErrTimeout or ErrRunnerCrashed for the respective
// failures.
type Runner interface {
	Run(ctx context.Context, in Input) (*Output, error)
}

// ContainerRunnerConfig configures ContainerRunner.
type ContainerRunnerConfig struct {
	Command string            // e.g. "docker"
	Args    []string          // e.g. ["run", "-i", "--rm"]
	Image   string            // appended after mount flags when set
	Env     map[string]string // passed with -e when Image is set, else via the process env
}

// Output buffer limits. Stdout keeps its tail since the result markers come
// last.
const (
	maxStdoutBytes = 4 << 20
	maxStderrBytes = 64 << 10
	killTimeout    = 10 * time.Second
)

// ContainerRunner runs the worker as an external process, by default a
// throwaway container.
type ContainerRunner struct {
	cfg ContainerRunnerConfig
	// killContainer stops a named container. Killing the docker client does
	// not stop the container it started.
	killContainer func(name string) error
}

// NewContainerRunner creates a runner.
func NewContainerRunner(cfg ContainerRunnerConfig) *ContainerRunner {
	if cfg.Command == "" {
		cfg.Command = "docker"
		if len(cfg.Args) == 0 {
			cfg.Args = []string{"run", "-i", "--rm"}
		}
	}
	r := &ContainerRunner{cfg: cfg}
	r.killContainer = r.dockerKill
	return r
}

// ContainerName returns a unique container name for one run of tenant.
func ContainerName(tenant string, now time.Time) string {
	return fmt.Sprintf("groupclaw-%s-%d", tenant, now.UnixNano())
}

func (r *ContainerRunner) dockerKill(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, r.cfg.Command, "kill", name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("kill container %s: %w: %s", name, err, tail(string(out), 200))
	}
	return nil
}

// BuildArgs returns the argv (without the command) for one run. name is the
// container name and is only used when an image is set.
func (r *ContainerRunner) BuildArgs(in Input, name string) []string {
	args := append([]string(nil), r.cfg.Args...)
	if r.cfg.Image == "" {
		return args
	}
	if name != "" {
		args = append(args, "--name", name)
	}
	for _, m := range in.Mounts {
		args = append(args, "-v", m.MountSpec())
	}
	for k, v := range r.cfg.Env {
		args = append(args, "-e", k+"="+v)
	}
	if in.Destination != "" {
		args = append(args, "-e", EnvChat+"="+in.Destination)
	}
	return append(args, r.cfg.Image)
}

// Run starts the process, writes in as JSON on stdin, and parses the result.
// The process runs in its own process group, which is killed as a whole when
// ctx is done. A named container is killed first.
func (r *ContainerRunner) Run(ctx context.Context, in Input) (*Output, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}

	var name string
	if r.cfg.Image != "" {
		name = ContainerName(in.TenantID, time.Now())
	}
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.BuildArgs(in, name)...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	stdout := &tailBuffer{n: maxStdoutBytes}
	cmd.Stdout = stdout
	cmd.Stderr = &limitedWriter{w: &stderr, n: maxStderrBytes}
	if r.cfg.Image == "" {
		cmd.Env = append(cmd.Environ(), processEnv(in)...)
		for k, v := range r.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	setProcessGroup(cmd, func() {
		if name == "" {
			return
		}
		if err := r.killContainer(name); err != nil {
			slog.Warn("agent container kill failed", "tenant", in.TenantID, "container", name, "error", err)
		}
	})
	cmd.WaitDelay = 5 * time.Second

	slog.Debug("starting agent runner", "tenant", in.TenantID, "command", r.cfg.Command, "container", name, "mounts", len(in.Mounts))
	runErr := cmd.Run()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, tail(stderr.String(), 500))
		}
		return nil, ctx.Err()
	}

	out, parseErr := ParseOutput(stdout.Bytes())
	if runErr != nil {
		if parseErr == nil && out.Status == StatusError {
			return out, nil
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrRunnerCrashed, runErr, tail(stderr.String(), 500))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunnerCrashed, parseErr)
	}
	return out, nil
}

// processEnv tells a worker running without a container where its mailbox
// lives on the host and which chat it is serving.
func processEnv(in Input) []string {
	var env []string
	for _, m := range in.Mounts {
		if m.ContainerPath == ContainerIPCDir {
			env = append(env, EnvIPCDir+"="+m.HostPath)
		}
	}
	if in.Destination != "" {
		env = append(env, EnvChat+"="+in.Destination)
	}
	return env
}

// ParseOutput extracts the JSON between the last pair of output markers.
func ParseOutput(stdout []byte) (*Output, error) {
	s := string(stdout)
	end := strings.LastIndex(s, OutputEndMarker)
	if end < 0 {
		return nil, errors.New("no output end marker")
	}
	start := strings.LastIndex(s[:end], OutputStartMarker)
	if start < 0 {
		return nil, errors.New("no output start marker")
	}
	body := strings.TrimSpace(s[start+len(OutputStartMarker) : end])
	var out Output
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	if out.Status != StatusSuccess && out.Status != StatusError {
		return nil, fmt.Errorf("unknown output status %q", out.Status)
	}
	return &out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// limitedWriter keeps the first n bytes and discards the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	keep := p
	if len(keep) > l.n {
		keep = keep[:l.n]
	}
	if _, err := l.w.Write(keep); err != nil {
		return 0, err
	}
	l.n -= len(keep)
	return len(p), nil
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	buf []byte
	n   int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > 2*t.n {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.n:]...)
	}
	return len(p), nil
}

// Bytes returns at most the last n bytes written.
func (t *tailBuffer) Bytes() []byte {
	if len(t.buf) > t.n {
		return t.buf[len(t.buf)-t.n:]
	}
	return t.buf
}
