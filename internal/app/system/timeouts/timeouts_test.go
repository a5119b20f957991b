package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(Reset)

	if Short() != DefaultShort || Medium() != DefaultMedium {
		t.Fatalf("defaults = %v / %v", Short(), Medium())
	}

	Configure(2*time.Second, 0)
	if Short() != 2*time.Second {
		t.Errorf("Short() = %v, want 2s", Short())
	}
	if Medium() != DefaultMedium {
		t.Errorf("Medium() = %v, zero should keep the default", Medium())
	}

	Reset()
	if Short() != DefaultShort {
		t.Errorf("Short() after Reset = %v", Short())
	}
}

func TestWithTimeout_LogsOnDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, log, "blob upload")
	<-ctx.Done()
	cancel()

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	if op := logs.All()[0].ContextMap()["operation"]; op != "blob upload" {
		t.Errorf("operation = %v", op)
	}
}

func TestWithTimeout_QuietOnCancel(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	_, cancel := WithTimeout(context.Background(), time.Minute, zap.New(core), "blob delete")
	cancel()

	if logs.Len() != 0 {
		t.Errorf("logged %d entries on a normal cancel", logs.Len())
	}
}
