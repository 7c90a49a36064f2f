package sidecar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type relayFixture struct {
	slot     *Slot
	handle   *fakeHandle
	notifier *fakeNotifier
	host     *fakeHost
	rec      *recorder
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	rec := &recorder{}
	f := &relayFixture{
		slot:     NewSlot(),
		handle:   &fakeHandle{pid: 100, rec: rec},
		notifier: &fakeNotifier{rec: rec},
		host:     &fakeHost{rec: rec},
		rec:      rec,
	}
	require.NoError(t, f.slot.Store(f.handle))
	return f
}

func (f *relayFixture) relay(opts ...RelayOption) *Relay {
	return NewRelay(f.slot, f.notifier, f.host, opts...)
}

func feed(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	return ch
}

func TestRelay_OutputLines_AreNotTerminal(t *testing.T) {
	f := newRelayFixture(t)

	seen := make(chan Event, 3)
	events := make(chan Event, 3)
	events <- StdoutEvent("one")
	events <- StderrEvent("two")
	events <- StdoutEvent("three")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ExitReason, 1)
	go func() {
		done <- f.relay(WithObserver(func(ev Event) { seen <- ev })).Run(ctx, events)
	}()

	var kinds []EventKind
	for i := 0; i < 3; i++ {
		select {
		case ev := <-seen:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for output events")
		}
	}
	cancel()

	require.Equal(t, ReasonCancelled, <-done)
	require.Equal(t, []EventKind{EventStdout, EventStderr, EventStdout}, kinds)
	require.True(t, f.slot.Occupied(), "output lines never touch the slot")
	require.Empty(t, f.host.exitCodes())
}

// TestRelay_LaunchError_TeardownThenNotifyThenExit verifies the total order
// chosen for the error path.
func TestRelay_LaunchError_TeardownThenNotifyThenExit(t *testing.T) {
	f := newRelayFixture(t)

	reason := f.relay().Run(context.Background(), feed(StdoutEvent("booting"), ErrorEvent("disk full")))

	require.Equal(t, ReasonLaunchError, reason)
	require.Equal(t, []string{"terminate", "notify", "exit"}, f.rec.list())
	require.Equal(t, []int{1}, f.host.exitCodes())
	require.Equal(t, []string{ErrorEventName}, f.notifier.names)
	payload, ok := f.notifier.payloads[0].(ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "[Sidecar error] disk full", payload.Message)
	require.False(t, f.slot.Occupied())
}

func TestRelay_LaunchError_NotifyFailureIgnored(t *testing.T) {
	f := newRelayFixture(t)
	f.notifier.err = errKillFailed

	reason := f.relay().Run(context.Background(), feed(ErrorEvent("boom")))

	require.Equal(t, ReasonLaunchError, reason)
	require.Equal(t, []int{1}, f.host.exitCodes())
}

func TestRelay_Terminated_ExitsNonZeroRegardlessOfStatus(t *testing.T) {
	for _, status := range []ExitStatus{{Code: 0}, {Code: 3}, {Code: -1, Signal: "SIGKILL"}} {
		t.Run(status.String(), func(t *testing.T) {
			f := newRelayFixture(t)

			var gotReason ExitReason
			var gotStatus ExitStatus
			reason := f.relay(WithRelayShutdown(func(r ExitReason, s ExitStatus) {
				gotReason, gotStatus = r, s
			})).Run(context.Background(), feed(TerminatedEvent(status)))

			require.Equal(t, ReasonTerminated, reason)
			require.Equal(t, []int{1}, f.host.exitCodes())
			require.Zero(t, f.notifier.count(), "termination is not forwarded to the UI")
			require.Equal(t, ReasonTerminated, gotReason)
			require.Equal(t, status, gotStatus)
		})
	}
}

// TestRelay_StreamEnd_TreatedLikeTerminated verifies stream exhaustion takes
// the same shutdown path as an explicit Terminated event.
func TestRelay_StreamEnd_TreatedLikeTerminated(t *testing.T) {
	f := newRelayFixture(t)
	events := make(chan Event)
	close(events)

	reason := f.relay().Run(context.Background(), events)

	require.Equal(t, ReasonStreamEnded, reason)
	require.Equal(t, []int{1}, f.host.exitCodes())
	require.EqualValues(t, 1, f.handle.terminated.Load())
	require.False(t, f.slot.Occupied())
}

// TestRelay_SlotAlreadyEmpty_NoDuplicateShutdown verifies that when a hook
// emptied the slot first, Terminated and stream end do nothing.
func TestRelay_SlotAlreadyEmpty_NoDuplicateShutdown(t *testing.T) {
	f := newRelayFixture(t)
	_, _ = f.slot.TakeAndTerminate()

	reason := f.relay().Run(context.Background(), feed(TerminatedEvent(ExitStatus{Code: -1, Signal: "SIGKILL"})))
	require.Equal(t, ReasonTerminated, reason)

	closed := make(chan Event)
	close(closed)
	reason = f.relay().Run(context.Background(), closed)
	require.Equal(t, ReasonStreamEnded, reason)

	require.Empty(t, f.host.exitCodes())
	require.EqualValues(t, 1, f.handle.terminated.Load())
}

func TestRelay_CancelledContext_IgnoresPendingEvents(t *testing.T) {
	f := newRelayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reason := f.relay().Run(ctx, feed(ErrorEvent("late"), TerminatedEvent(ExitStatus{})))

	require.Equal(t, ReasonCancelled, reason)
	require.Empty(t, f.host.exitCodes())
	require.Zero(t, f.notifier.count())
	require.True(t, f.slot.Occupied())
}
