package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/mention"
	"github.com/adamavenir/mentionrunner/internal/transport"
)

type fakeSession struct {
	pings int
	fail  bool
}

func (f *fakeSession) Send(ctx context.Context, content, parentMessageID string) (transport.Ack, error) {
	return transport.Ack{}, nil
}

func (f *fakeSession) Check(ctx context.Context, opts transport.CheckOptions) (mention.Payload, error) {
	return mention.Payload{}, nil
}

func (f *fakeSession) SendPing(ctx context.Context) (transport.PingResult, error) {
	f.pings++
	if f.fail {
		return transport.PingResult{}, context.DeadlineExceeded
	}
	return transport.PingResult{Status: "ok", Timestamp: time.Now()}, nil
}

func (f *fakeSession) Close() error   { return nil }
func (f *fakeSession) IsRemote() bool { return true }

func TestHeartbeat_Disabled(t *testing.T) {
	fs := &fakeSession{}
	h := New("messaging", fs, 0, zap.NewNop(), nil)
	if h.Enabled() {
		t.Fatal("expected disabled heartbeat for interval <= 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = h.Run(ctx)

	if fs.pings != 0 {
		t.Fatalf("disabled heartbeat should never ping, got %d", fs.pings)
	}
}

func TestHeartbeat_ClampsToMaxInterval(t *testing.T) {
	fs := &fakeSession{}
	h := New("messaging", fs, time.Hour, zap.NewNop(), nil)
	if h.interval != maxInterval {
		t.Fatalf("expected clamp to %v, got %v", maxInterval, h.interval)
	}
}

func TestHeartbeat_PingsRepeatedly(t *testing.T) {
	fs := &fakeSession{}
	h := New("messaging", fs, 5*time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	_ = h.Run(ctx)

	if fs.pings < 2 {
		t.Fatalf("expected multiple pings within the test window, got %d", fs.pings)
	}
}

func TestHeartbeat_SurvivesFailedPing(t *testing.T) {
	fs := &fakeSession{fail: true}
	h := New("messaging", fs, 5*time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	err := h.Run(ctx)

	if fs.pings == 0 {
		t.Fatal("expected at least one ping attempt")
	}
	if err == nil {
		t.Fatal("expected context deadline error once ctx expires")
	}
}

func TestHeartbeat_ReportsEveryFailure(t *testing.T) {
	fs := &fakeSession{fail: true}
	var failures int32
	h := New("messaging", fs, 5*time.Millisecond, zap.NewNop(), func() {
		atomic.AddInt32(&failures, 1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_ = h.Run(ctx)

	if got := atomic.LoadInt32(&failures); got == 0 {
		t.Fatal("expected onFailure to be called at least once")
	}
	if got := atomic.LoadInt32(&failures); int(got) != fs.pings {
		t.Fatalf("expected one onFailure call per failed ping, got %d failures for %d pings", got, fs.pings)
	}
}
