package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/handler"
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/mention"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/transport"
)

// fakeTransport feeds a scripted sequence of check() payloads and
// records every send() call, for driving the engine deterministically
// in tests without a real MCP session.
type fakeTransport struct {
	mu      sync.Mutex
	inbox   []mention.Payload
	sent    []string
	closed  bool
	checkN  int
}

func newFakeTransport(payloads ...mention.Payload) *fakeTransport {
	return &fakeTransport{inbox: payloads}
}

func (f *fakeTransport) Send(_ context.Context, content, _ string) (transport.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return transport.Ack{}, nil
}

func (f *fakeTransport) Check(ctx context.Context, opts transport.CheckOptions) (mention.Payload, error) {
	f.mu.Lock()
	if f.checkN < len(f.inbox) {
		p := f.inbox[f.checkN]
		f.checkN++
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	if opts.Wait {
		<-ctx.Done()
		return mention.Payload{}, ctx.Err()
	}
	return mention.Payload{}, nil
}

func (f *fakeTransport) SendPing(context.Context) (transport.PingResult, error) {
	return transport.PingResult{Status: "ok"}, nil
}

func (f *fakeTransport) Close() error   { f.closed = true; return nil }
func (f *fakeTransport) IsRemote() bool { return false }

func (f *fakeTransport) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeHandler returns a scripted reply and records every mention it saw.
type fakeHandler struct {
	mu    sync.Mutex
	reply string
	seen  []string
}

func (f *fakeHandler) Handle(_ context.Context, _ string, m *mention.CanonicalMention) (handler.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, m.ID)
	f.mu.Unlock()
	return handler.Result{Reply: f.reply}, nil
}

func textPayload(id, sender, agent, body string) mention.Payload {
	return mention.Payload{Text: fmt.Sprintf("[id:%s] • %s: @%s %s", id, sender, agent, body)}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEngine_EchoHappyPath(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft := newFakeTransport(textPayload("00000000-0000-0000-0000-000000000001", "bob", "agent", "hello"))
	fh := &fakeHandler{reply: "hi bob"}

	e := New(Config{
		AgentID:   "agent",
		Store:     s,
		Transport: ft,
		Handler:   fh,
		Log:       zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go e.Run(ctx)

	waitFor(t, 250*time.Millisecond, func() bool {
		return len(ft.sentMessages()) == 1
	})
	if got := ft.sentMessages()[0]; got != "hi bob" {
		t.Fatalf("expected reply %q, got %q", "hi bob", got)
	}

	n, _ := s.CountPending("agent")
	if n != 0 {
		t.Fatalf("expected message marked processed, got %d pending", n)
	}
}

func TestEngine_SelfMentionSuppressed(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft := newFakeTransport(textPayload("00000000-0000-0000-0000-000000000002", "agent", "agent", "echo of myself"))
	fh := &fakeHandler{reply: "should never run"}

	e := New(Config{
		AgentID:   "agent",
		Store:     s,
		Transport: ft,
		Handler:   fh,
		Log:       zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx)

	if len(ft.sentMessages()) != 0 {
		t.Fatalf("expected no replies to a self-mention, got %v", ft.sentMessages())
	}
	fh.mu.Lock()
	seen := len(fh.seen)
	fh.mu.Unlock()
	if seen != 0 {
		t.Fatalf("expected handler never invoked, saw %d calls", seen)
	}
}

func TestEngine_FanOutPerAgentIsolation(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Put("shared-id", "agent-a", "bob", "hi all"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put("shared-id", "agent-b", "bob", "hi all"); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkProcessing("shared-id", "agent-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkProcessed("shared-id", "agent-a"); err != nil {
		t.Fatal(err)
	}

	n, _ := s.CountPending("agent-b")
	if n != 1 {
		t.Fatalf("expected agent-b's copy of the fan-out message untouched, got %d pending", n)
	}
}

func TestEngine_DoneTokenPausesWithAutoResume(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ft := newFakeTransport(textPayload("00000000-0000-0000-0000-000000000003", "bob", "agent", "wrap up"))
	fh := &fakeHandler{reply: "all set #done"}

	e := New(Config{
		AgentID:   "agent",
		Store:     s,
		Transport: ft,
		Handler:   fh,
		Log:       zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go e.Run(ctx)

	waitFor(t, 150*time.Millisecond, func() bool {
		status, _ := s.GetStatus("agent")
		return status.Status == "paused"
	})

	status, err := s.GetStatus("agent")
	if err != nil {
		t.Fatal(err)
	}
	if status.ResumeAt == nil {
		t.Fatal("expected resume_at to be set by #done")
	}
}

func TestEngine_KillSwitchBlocksProcessingNotPolling(t *testing.T) {
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	kill, err := killswitch.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer kill.Close()
	if err := kill.Activate(); err != nil {
		t.Fatal(err)
	}

	ft := newFakeTransport(textPayload("00000000-0000-0000-0000-000000000004", "bob", "agent", "hello"))
	fh := &fakeHandler{reply: "should not run while killed"}

	e := New(Config{
		AgentID:    "agent",
		Store:      s,
		Transport:  ft,
		Handler:    fh,
		Log:        zap.NewNop(),
		KillSwitch: kill,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// The poller keeps accumulating the message into the store even
	// though the kill switch is active; give the processor several
	// chances to run before asserting it never touched the row.
	waitFor(t, 500*time.Millisecond, func() bool {
		n, _ := s.CountPending("agent")
		return n == 1
	})
	time.Sleep(150 * time.Millisecond)
	n, err := s.CountPending("agent")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected message to remain queued while kill switch active, got %d pending", n)
	}
	fh.mu.Lock()
	seen := len(fh.seen)
	fh.mu.Unlock()
	if seen != 0 {
		t.Fatalf("expected handler never invoked while kill switch active, saw %d calls", seen)
	}

	if err := kill.Deactivate(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool {
		n, _ := s.CountPending("agent")
		return n == 0
	})
	fh.mu.Lock()
	seen = len(fh.seen)
	fh.mu.Unlock()
	if seen != 1 {
		t.Fatalf("expected handler invoked exactly once after kill switch deactivated, saw %d calls", seen)
	}

	cancel()
	<-done
}
