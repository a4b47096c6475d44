// Package bridge implements the audio bridging core of the voice
// gateway: a per-call MediaBridge that transcodes, resamples, paces,
// buffers, and rate-adapts between a telephony-side µ-law 8kHz RTP flow
// and a remote conversational service's PCM16 24kHz event stream.
package bridge

import (
	"context"
	"io"
	"sync/atomic"
)

// Sink is the opaque byte sink handed to the SIP/RTP collaborator for
// uplink audio. Write never fails from the caller's perspective (§4.3:
// send failures are logged, not propagated) and always reports the
// full length written.
type Sink interface {
	io.Writer
}

// Source is the opaque byte source handed to the SIP/RTP collaborator
// for downlink audio. Read returns (0, nil) for "no data now" and
// (0, io.EOF) once the bridge has been closed, per §6.
type Source interface {
	io.Reader
}

// MediaBridge is the per-call assembly of §4.6: it binds the uplink and
// downlink pipelines and the session controller, and hands opaque
// sink/source handles to the signalling collaborator. Bridge lifetime
// equals call lifetime.
type MediaBridge struct {
	session    Session
	uplink     *UplinkPipeline
	downlink   *DownlinkPipeline
	controller *SessionController
	ready      atomic.Bool
	metrics    *Metrics
}

// Option customizes MediaBridge construction.
type Option func(*buildOptions)

type buildOptions struct {
	tunableOpts     []TunableOption
	greetingEnabled bool
	metrics         *Metrics
}

// WithTunables applies one or more TunableOption overrides.
func WithTunables(opts ...TunableOption) Option {
	return func(b *buildOptions) { b.tunableOpts = append(b.tunableOpts, opts...) }
}

// WithGreeting enables or disables the proactive greeting of §4.5.
func WithGreeting(enabled bool) Option {
	return func(b *buildOptions) { b.greetingEnabled = enabled }
}

// WithMetrics attaches a Metrics instance to every component of the
// bridge.
func WithMetrics(m *Metrics) Option {
	return func(b *buildOptions) { b.metrics = m }
}

// NewMediaBridge constructs the bridge for an already-started session:
// it sends the session configuration, awaits readiness (bounded by
// Tunables.SessionReadyTimeout), and returns the bridge ready for the
// signalling collaborator to obtain its Sink and Source. A readiness
// timeout is fatal per §7 SessionReadinessTimeout.
func NewMediaBridge(ctx context.Context, session Session, cfg SessionConfig, opts ...Option) (*MediaBridge, error) {
	var b buildOptions
	for _, opt := range opts {
		opt(&b)
	}

	t := newTunables(b.tunableOpts...)

	bridge := &MediaBridge{session: session, metrics: b.metrics}
	bridge.downlink = newDownlinkPipeline(t, b.metrics)
	bridge.uplink = newUplinkPipeline(session, t, &bridge.ready, b.metrics)
	bridge.controller = newSessionController(session, bridge.uplink, bridge.downlink, cfg, t, b.metrics, &bridge.ready, WithProactiveGreeting(b.greetingEnabled))

	if err := bridge.controller.Start(ctx); err != nil {
		bridge.uplink.close()
		return nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, t.SessionReadyTimeout)
	defer cancel()
	if err := bridge.controller.WaitReady(readyCtx); err != nil {
		bridge.controller.Close(ctx)
		bridge.uplink.close()
		return nil, ErrSessionReadinessTimeout
	}

	return bridge, nil
}

// Sink returns the opaque byte sink the RTP receiver should write
// decoded µ-law payloads into.
func (b *MediaBridge) Sink() Sink {
	return uplinkSink{b.uplink}
}

// Source returns the opaque byte source the RTP sender should read
// µ-law payloads from.
func (b *MediaBridge) Source() Source {
	return b.downlink
}

// Transcript returns the accumulated response text delta for this call
// so far.
func (b *MediaBridge) Transcript() string {
	return b.controller.ResponseTranscript()
}

// State returns the current SessionState.
func (b *MediaBridge) State() string {
	return b.controller.State()
}

// Close tears down the bridge: it closes the downlink reader
// (subsequent reads return io.EOF), flushes the uplink buffer, and
// releases the session handle, per §4.6.
func (b *MediaBridge) Close() error {
	_ = b.downlink.Close()
	b.uplink.Flush()
	b.uplink.close()
	b.controller.Close(context.Background())
	return b.session.Close()
}

// uplinkSink adapts UplinkPipeline's fire-and-forget Write to io.Writer.
type uplinkSink struct{ p *UplinkPipeline }

func (s uplinkSink) Write(p []byte) (int, error) {
	s.p.Write(p)
	return len(p), nil
}
