package cron_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/agent"
	"github.com/nextlevelbuilder/groupclaw/internal/cron"
	"github.com/nextlevelbuilder/groupclaw/internal/ipc"
	"github.com/nextlevelbuilder/groupclaw/internal/mailbox"
	"github.com/nextlevelbuilder/groupclaw/internal/pairing"
	"github.com/nextlevelbuilder/groupclaw/internal/store"
	"github.com/nextlevelbuilder/groupclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/groupclaw/internal/tenants"
	"github.com/nextlevelbuilder/groupclaw/pkg/protocol"
)

type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, req agent.Request) (*agent.Result, error) {
	return &agent.Result{Text: req.Prompt}, nil
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) Send(_ context.Context, dest, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, dest+" "+text)
	return nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

// A once task submitted by the main tenant is delivered to its destination
// and removed within a couple of poll intervals.
func TestOnceTaskFromMailboxFiresAndDisappears(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := sqlite.NewStores(store.StoreConfig{SQLitePath: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	mbox := mailbox.NewDirStore(filepath.Join(dir, "ipc"))
	reg := tenants.NewRegistry(st.Tenants, mbox, filepath.Join(dir, "groups"))
	if err := reg.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := reg.EnsureMain(ctx, "main", "Main", "@Andy", "tg:1"); err != nil {
		t.Fatal(err)
	}
	sender := &captureSender{}
	drainer := ipc.NewDrainer(ipc.Config{
		Mailbox: mbox, Tenants: reg, Tasks: st.Tasks,
		Pairing: pairing.NewService(st.Pairing), Sender: sender, Location: time.UTC,
	})
	sched := cron.NewService(cron.ServiceConfig{
		Tasks: st.Tasks, Invoker: echoInvoker{}, Sender: sender, Location: time.UTC,
	})

	fireAt := time.Now().Add(time.Second).UTC().Format(time.RFC3339Nano)
	if _, err := mailbox.Write(filepath.Join(mbox.Root(), "main", protocol.DirTasks), &protocol.Entry{
		Type: protocol.TypeScheduleTask, Prompt: "ping",
		ScheduleType: protocol.ScheduleOnce, ScheduleValue: protocol.FlexibleString(fireAt),
		Destination: "tg:42",
	}); err != nil {
		t.Fatal(err)
	}

	const poll = time.Second
	deadline := time.Now().Add(2*poll + time.Second)
	for time.Now().Before(deadline) {
		drainer.Drain(ctx)
		sched.Tick(ctx)
		sched.Wait()
		if len(sender.all()) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	got := sender.all()
	if len(got) != 1 || !strings.HasPrefix(got[0], "tg:42 ") {
		t.Fatalf("sent = %v, want one message to tg:42", got)
	}
	left, err := st.Tasks.ListTasks(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("task rows left = %+v", left)
	}
}
