package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/eventbus"
)

func TestBus_FansOutToAllSubscribers(t *testing.T) {
	bus := eventbus.New()
	sub1, unsub1 := bus.Subscribe(4)
	defer unsub1()
	sub2, unsub2 := bus.Subscribe(4)
	defer unsub2()

	source := make(chan domain.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Pump(ctx, source)

	source <- domain.Event{Kind: domain.EventSyncStarted, IntegrationID: "int-1"}

	select {
	case ev := <-sub1:
		assert.Equal(t, domain.EventSyncStarted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive event")
	}

	select {
	case ev := <-sub2:
		assert.Equal(t, domain.EventSyncStarted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive event")
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := eventbus.New()
	sub, unsub := bus.Subscribe(1)
	unsub()

	_, ok := <-sub
	assert.False(t, ok)
}

func TestBus_PumpStopsOnContextCancel(t *testing.T) {
	bus := eventbus.New()
	source := make(chan domain.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.Pump(ctx, source)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pump did not stop after context cancellation")
	}
}

func TestBus_DropsEventsForFullSubscriberChannel(t *testing.T) {
	bus := eventbus.New()
	sub, unsub := bus.Subscribe(1)
	defer unsub()

	source := make(chan domain.Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Pump(ctx, source)

	for i := 0; i < 5; i++ {
		source <- domain.Event{Kind: domain.EventSyncStarted}
	}

	require.Eventually(t, func() bool { return len(source) == 0 }, time.Second, 10*time.Millisecond)
	// The subscriber channel only ever holds 1 buffered item; excess
	// events are dropped rather than blocking the pump.
	assert.LessOrEqual(t, len(sub), 1)
}
