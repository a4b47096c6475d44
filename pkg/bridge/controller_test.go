package bridge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, session *fakeSession, opts ...ControllerOption) (*SessionController, *atomic.Bool) {
	t.Helper()
	tun := DefaultTunables()
	var ready atomic.Bool
	uplink := newUplinkPipeline(session, tun, &ready, nil)
	downlink := newDownlinkPipeline(tun, nil)
	c := newSessionController(session, uplink, downlink, DefaultSessionConfig("be helpful", "alloy"), tun, nil, &ready, opts...)
	t.Cleanup(func() {
		uplink.close()
		downlink.Close()
	})
	return c, &ready
}

func TestControllerStartSendsSessionUpdate(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	events := session.sentClientEvents()
	require.Len(t, events, 1)
	assert.Equal(t, ClientEventSessionUpdate, events[0].Type)
	assert.Equal(t, StateConfiguring, c.State())
}

func TestControllerBecomesReadyOnSessionUpdated(t *testing.T) {
	session := newFakeSession()
	c, ready := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	session.emit(ServerEvent{Type: EventSessionUpdated})

	require.NoError(t, c.WaitReady(context.Background()))
	assert.True(t, ready.Load())
	assert.Equal(t, StateReady, c.State())
}

func TestControllerProactiveGreetingFiresOnce(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session, WithProactiveGreeting(true))
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	session.emit(ServerEvent{Type: EventSessionUpdated})
	require.NoError(t, c.WaitReady(context.Background()))
	// A second session.updated (e.g. after a later re-configuration)
	// must not fire a second greeting.
	session.emit(ServerEvent{Type: EventSessionUpdated})

	require.Eventually(t, func() bool {
		return len(session.sentClientEvents()) == 2
	}, time.Second, time.Millisecond)

	events := session.sentClientEvents()
	assert.Equal(t, ClientEventResponseCreate, events[1].Type)
}

func TestControllerNoGreetingWhenDisabled(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	session.emit(ServerEvent{Type: EventSessionUpdated})
	require.NoError(t, c.WaitReady(context.Background()))

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, session.sentClientEvents(), 1, "only the initial session.update, no response.create")
}

func TestControllerResponseLifecycleDrivesDownlink(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	session.emit(ServerEvent{Type: EventSessionUpdated})
	require.NoError(t, c.WaitReady(context.Background()))

	session.emit(ServerEvent{Type: EventResponseCreated})
	require.Eventually(t, func() bool { return c.State() == StateResponding }, time.Second, time.Millisecond)

	session.emit(ServerEvent{Type: EventResponseAudioDelta, AudioDelta: make([]byte, 4800)})
	require.Eventually(t, func() bool { return c.downlink.queue.size() > 0 }, time.Second, time.Millisecond)

	session.emit(ServerEvent{Type: EventResponseAudioDone})
	require.Eventually(t, func() bool { return c.downlink.responseDone.Load() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == StateReady }, time.Second, time.Millisecond)
}

func TestControllerAccumulatesTranscript(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	session.emit(ServerEvent{Type: EventResponseTextDelta, TextDelta: "Hello"})
	session.emit(ServerEvent{Type: EventResponseTextDelta, TextDelta: ", world"})

	require.Eventually(t, func() bool {
		return c.ResponseTranscript() == "Hello, world"
	}, time.Second, time.Millisecond)
}

func TestControllerLocalBargeInClearsDownlinkWhenEnabled(t *testing.T) {
	session := newFakeSession()
	tun := DefaultTunables()
	tun.LocalBargeInOnSpeechStarted = true
	var ready atomic.Bool
	uplink := newUplinkPipeline(session, tun, &ready, nil)
	downlink := newDownlinkPipeline(tun, nil)
	c := newSessionController(session, uplink, downlink, DefaultSessionConfig("", "alloy"), tun, nil, &ready)
	t.Cleanup(func() { uplink.close(); downlink.Close() })

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	downlink.packetizeAndEnqueue(make([]byte, 160*5))
	require.Equal(t, 5, downlink.queue.size())

	session.emit(ServerEvent{Type: EventSpeechStarted})

	require.Eventually(t, func() bool { return downlink.queue.size() == 0 }, time.Second, time.Millisecond)
}

func TestControllerLocalBargeInDisabledByDefault(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session) // DefaultTunables: LocalBargeInOnSpeechStarted=false
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	c.downlink.packetizeAndEnqueue(make([]byte, 160*5))
	require.Equal(t, 5, c.downlink.queue.size())

	session.emit(ServerEvent{Type: EventSpeechStarted})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, c.downlink.queue.size(), "local barge-in is opt-in; default leaves server-side semantic VAD in control")
}

func TestControllerDispatchContinuesAfterErrorEvent(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close(context.Background()) })

	// An error event must be logged, not treated as fatal to the
	// dispatch loop. Emit a recognized event right after to prove the
	// loop kept running.
	session.emit(ServerEvent{Type: EventError, ErrorType: "fatal", ErrorCode: "x", ErrorMessage: "boom"})
	session.emit(ServerEvent{Type: EventSessionUpdated})

	require.NoError(t, c.WaitReady(context.Background()))
}

func TestControllerCloseStopsDispatch(t *testing.T) {
	session := newFakeSession()
	c, _ := newTestController(t, session)
	require.NoError(t, c.Start(context.Background()))

	c.Close(context.Background())
	assert.Equal(t, StateClosed, c.State())

	// Further events must not be processed; emit must not block or
	// panic, since dispatchLoop has already returned.
	session.emit(ServerEvent{Type: EventResponseTextDelta, TextDelta: "ignored"})
}
