package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// SessionState enumerates the per-call lifecycle states of §3.
const (
	StateCreated     = "created"
	StateConfiguring = "configuring"
	StateReady       = "ready"
	StateResponding  = "responding"
	StateClosed      = "closed"
)

// newSessionFSM builds the monotonic §3 session state machine. There is
// no transition back to an earlier state in the table below, so
// monotonicity is enforced structurally rather than by a runtime check.
func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: "configure", Src: []string{StateCreated}, Dst: StateConfiguring},
			{Name: "ready", Src: []string{StateConfiguring, StateReady, StateResponding}, Dst: StateReady},
			{Name: "respond", Src: []string{StateReady, StateResponding}, Dst: StateResponding},
			{Name: "close", Src: []string{StateCreated, StateConfiguring, StateReady, StateResponding}, Dst: StateClosed},
		},
		nil,
	)
}

// SessionController owns the session lifecycle: it configures the
// session, consumes typed events, drives the proactive greeting, signals
// readiness, tracks response boundaries, and coordinates interrupt
// handling between the two pipelines, per §4.5.
type SessionController struct {
	session  Session
	uplink   *UplinkPipeline
	downlink *DownlinkPipeline
	cfg      SessionConfig
	t        Tunables
	metrics  *Metrics

	greetingEnabled bool
	greeting        func() ResponseCreate

	fsmMu sync.Mutex
	fsm   *fsm.FSM

	ready             *atomic.Bool
	readyOnce         sync.Once
	readyCh           chan struct{}
	conversationStarted atomic.Bool

	transcriptMu sync.Mutex
	transcript   strings.Builder

	wg   sync.WaitGroup
	stop chan struct{}
}

// ControllerOption customizes controller construction.
type ControllerOption func(*SessionController)

// WithProactiveGreeting enables the proactive greeting behavior of
// §4.5: after session.updated the controller requests a response with
// no user input.
func WithProactiveGreeting(enabled bool) ControllerOption {
	return func(c *SessionController) { c.greetingEnabled = enabled }
}

func newSessionController(session Session, uplink *UplinkPipeline, downlink *DownlinkPipeline, cfg SessionConfig, t Tunables, metrics *Metrics, ready *atomic.Bool, opts ...ControllerOption) *SessionController {
	c := &SessionController{
		session:  session,
		uplink:   uplink,
		downlink: downlink,
		cfg:      cfg,
		t:        t,
		metrics:  metrics,
		fsm:      newSessionFSM(),
		ready:    ready,
		readyCh:  make(chan struct{}),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's current SessionState.
func (c *SessionController) State() string {
	c.fsmMu.Lock()
	defer c.fsmMu.Unlock()
	return c.fsm.Current()
}

func (c *SessionController) transition(ctx context.Context, event string) {
	c.fsmMu.Lock()
	defer c.fsmMu.Unlock()
	if err := c.fsm.Event(ctx, event); err != nil {
		slog.Debug("session state transition rejected", "event", event, "err", err, "current", c.fsm.Current())
	}
}

// Start sends the initial session configuration and begins dispatching
// events from the session until the dispatcher is stopped.
func (c *SessionController) Start(ctx context.Context) error {
	c.transition(ctx, "configure")

	if err := c.session.SendEvent(ClientEvent{Type: ClientEventSessionUpdate, Session: &c.cfg}); err != nil {
		return newError(ErrorCodeSessionReadinessTimeout, "failed to send session configuration", err)
	}

	c.wg.Add(1)
	go c.dispatchLoop(ctx)
	return nil
}

// WaitReady blocks until session.updated has been processed or ctx is
// done, whichever comes first.
func (c *SessionController) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return ErrSessionReadinessTimeout
	}
}

func (c *SessionController) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()
	events := c.session.Events()
	for {
		select {
		case <-c.stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.dispatch(ctx, evt)
		}
	}
}

// dispatch pattern-matches the tagged ServerEvent and calls the
// appropriate handler. Handlers never propagate errors/panics into the
// dispatch loop (§7): a local recover + log boundary keeps one bad
// event from killing the stream.
func (c *SessionController) dispatch(ctx context.Context, evt ServerEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in session event handler", "event", evt.Type, "recovered", r)
		}
	}()

	switch evt.Type {
	case EventSessionCreated:
		slog.Info("session created", "session_id", evt.SessionID)

	case EventSessionUpdated:
		c.transition(ctx, "ready")
		c.ready.Store(true)
		c.readyOnce.Do(func() { close(c.readyCh) })
		if c.greetingEnabled && !c.conversationStarted.Swap(true) {
			if err := c.session.SendEvent(ClientEvent{Type: ClientEventResponseCreate, Response: &ResponseCreate{}}); err != nil {
				slog.Warn("failed to request proactive greeting", "err", err)
			}
		}

	case EventResponseCreated:
		c.transition(ctx, "respond")
		c.downlink.onResponseCreated()

	case EventResponseAudioDelta:
		c.downlink.EnqueueChunk(evt.AudioDelta)

	case EventResponseAudioDone:
		c.downlink.onResponseAudioDone()
		c.transition(ctx, "ready")

	case EventResponseTextDelta:
		c.transcriptMu.Lock()
		c.transcript.WriteString(evt.TextDelta)
		c.transcriptMu.Unlock()

	case EventResponseAudioTimestampDelta:
		slog.Debug("audio timestamp", "offset_ms", evt.AudioOffsetMs, "duration_ms", evt.AudioDurationMs, "text", evt.TextDelta)

	case EventResponseAnimationViseme:
		slog.Debug("viseme", "offset_ms", evt.AudioOffsetMs, "viseme_id", evt.VisemeID)

	case EventSpeechStarted:
		slog.Debug("speech started")
		if c.t.LocalBargeInOnSpeechStarted {
			c.downlink.clearBuffer()
		}

	case EventSpeechStopped:
		slog.Debug("speech stopped")

	case EventTranscriptionCompleted:
		slog.Info("user transcript", "item_id", evt.ItemID, "transcript", evt.Transcript)

	case EventError:
		slog.Error("session error event", "type", evt.ErrorType, "code", evt.ErrorCode, "message", evt.ErrorMessage)

	default:
		slog.Debug("unhandled session event", "type", evt.Type)
	}
}

// ResponseTranscript returns the accumulated response text delta so
// far.
func (c *SessionController) ResponseTranscript() string {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	return c.transcript.String()
}

// Close stops event dispatch and transitions the FSM to Closed.
func (c *SessionController) Close(ctx context.Context) {
	close(c.stop)
	c.wg.Wait()
	c.transition(ctx, "close")
}
