package killswitch

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestKillSwitch_ActivateDeactivate(t *testing.T) {
	dir := t.TempDir()
	k, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	if k.Active() {
		t.Fatal("expected inactive on fresh directory")
	}

	if err := k.Activate(); err != nil {
		t.Fatal(err)
	}
	if !k.Active() {
		t.Fatal("expected active immediately after Activate")
	}

	if err := k.Deactivate(); err != nil {
		t.Fatal(err)
	}
	if k.Active() {
		t.Fatal("expected inactive after Deactivate")
	}
}

func TestKillSwitch_DetectsExternalFileCreation(t *testing.T) {
	dir := t.TempDir()
	k, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	other, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	if err := k.Activate(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if other.Active() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected second watcher to observe externally-created sentinel")
}
