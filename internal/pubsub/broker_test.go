package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)

	n, err := broker.Publish(NotifyEvent, "sidecar-error")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	select {
	case event := <-ch:
		require.Equal(t, "sidecar-error", event.Payload)
		require.Equal(t, NotifyEvent, event.Type)
		require.False(t, event.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for event")
	}
}

func TestBroker_FanOut_AllSubscribersReceive(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx := context.Background()
	subs := []<-chan Event[int]{
		broker.Subscribe(ctx),
		broker.Subscribe(ctx),
		broker.Subscribe(ctx),
	}
	require.Equal(t, 3, broker.SubscriberCount())

	n, err := broker.Publish(OutputEvent, 7)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for i, ch := range subs {
		select {
		case event := <-ch:
			require.Equal(t, 7, event.Payload, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for event", "subscriber %d", i)
		}
	}
}

func TestBroker_NoSubscribers_PublishIsNotAnError(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	n, err := broker.Publish(NotifyEvent, "nobody listening")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBroker_ContextCancellation_RemovesSubscriber(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

// TestBroker_FullBuffer_DropsInsteadOfBlocking verifies a slow subscriber
// cannot stall the publisher.
func TestBroker_FullBuffer_DropsInsteadOfBlocking(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	n, _ := broker.Publish(OutputEvent, 1)
	require.Equal(t, 1, n)

	done := make(chan int)
	go func() {
		n, _ := broker.Publish(OutputEvent, 2)
		done <- n
	}()

	select {
	case dropped := <-done:
		require.Zero(t, dropped)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "Publish blocked")
	}

	event := <-ch
	require.Equal(t, 1, event.Payload)
}

func TestBroker_Close_ClosesSubscribersAndRejectsPublish(t *testing.T) {
	broker := NewBroker[string]()

	ch1 := broker.Subscribe(context.Background())
	ch2 := broker.Subscribe(context.Background())

	broker.Close()
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Zero(t, broker.SubscriberCount())

	_, err := broker.Publish(NotifyEvent, "late")
	require.ErrorIs(t, err, ErrClosed)

	late := broker.Subscribe(context.Background())
	_, ok := <-late
	require.False(t, ok, "subscribing after close yields a closed channel")
}

func TestBroker_CancelAfterClose_DoesNotPanic(t *testing.T) {
	broker := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	_ = broker.Subscribe(ctx)

	broker.Close()
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestBroker_ConcurrentPublish(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1000)
	defer broker.Close()

	ch := broker.Subscribe(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = broker.Publish(OutputEvent, base*100+j)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, ch, 500)
}
