package adapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/domain"
)

func TestBase_WaitOperation_EnforcesMinInterval(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", time.Second, 100, 10, 3, 10*time.Millisecond)

	start := time.Now()
	b.WaitOperation(context.Background(), "search")
	b.WaitOperation(context.Background(), "search")
	b.WaitOperation(context.Background(), "search")
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
}

func TestBase_WaitOperation_SeparateKeysIndependent(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", time.Second, 100, 10, 3, 10*time.Millisecond)

	start := time.Now()
	b.WaitOperation(context.Background(), "search")
	b.WaitOperation(context.Background(), "createTicket")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestBase_Retry_RetriesRetryableErrors(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", 0, 1000, 10, 3, time.Millisecond)

	attempts := 0
	err := b.Retry(context.Background(), func(error) string { return "timeout" }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBase_Retry_StopsOnNonRetryable(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", 0, 1000, 10, 3, time.Millisecond)

	attempts := 0
	err := b.Retry(context.Background(), func(error) string { return "401" }, func() error {
		attempts++
		return errors.New("unauthorized")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBase_Emit_NonBlockingWhenFull(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", 0, 1000, 10, 0, time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Emit(domain.EventSyncStarted, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked despite full channel")
	}
}

func TestBase_StateAndStatusTransitions(t *testing.T) {
	b := adapter.NewBase("int-1", domain.ToolTypeSIEM, "splunk", 0, 1000, 10, 0, time.Millisecond)

	assert.Equal(t, adapter.StateIdle, b.GetState())
	b.SetState(adapter.StateConnecting)
	assert.Equal(t, adapter.StateConnecting, b.GetState())

	assert.Equal(t, adapter.StatusDisconnected, b.GetStatus())
	b.SetStatus(adapter.StatusConnected)
	assert.Equal(t, adapter.StatusConnected, b.GetStatus())
}
