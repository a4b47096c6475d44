package bridge

import "time"

// Tunables holds every configurable knob of the media bridge, all with
// the defaults specified in §6, and all overridable by the caller.
type Tunables struct {
	// RTPPayloadBytes is the size of one downlink packet: 20ms @ 8kHz
	// µ-law.
	RTPPayloadBytes int

	// MinPrebufferPackets is the queue depth that must be reached before
	// the downlink reader starts playing audio.
	MinPrebufferPackets int

	// LowWaterPackets: below this (and responseDone == false) the reader
	// pauses.
	LowWaterPackets int

	// HighWaterPackets: at/above this the reader resumes from Paused.
	HighWaterPackets int

	// QueueWarnPackets is a soft logging threshold; the queue itself is
	// never capped (§7 QueueSaturation policy, §9 Open Question 2).
	QueueWarnPackets int

	// MaxDeltaChunkBytes: audio deltas larger than this are split before
	// processing.
	MaxDeltaChunkBytes int

	// MinUplinkChunkBytes is the accumulator threshold (in PCM16 @
	// 24kHz bytes) that triggers an uplink flush to the session sink.
	MinUplinkChunkBytes int

	// ReadFirstTimeout bounds how long the paced reader waits for the
	// first packet of a batch.
	ReadFirstTimeout time.Duration

	// ReadBatchTimeout bounds how long the paced reader waits for each
	// subsequent packet within the same read() call.
	ReadBatchTimeout time.Duration

	// SessionReadyTimeout bounds the wait for session.updated during
	// bridge construction.
	SessionReadyTimeout time.Duration

	// LocalBargeInOnSpeechStarted resolves §9 Open Question 1: when
	// true, input_audio_buffer.speech_started also clears the downlink
	// buffer locally instead of relying solely on server-side
	// interruption. Default false.
	LocalBargeInOnSpeechStarted bool
}

// DefaultTunables returns the §6 tunables table defaults.
func DefaultTunables() Tunables {
	return Tunables{
		RTPPayloadBytes:             160,
		MinPrebufferPackets:         25,
		LowWaterPackets:             100,
		HighWaterPackets:            150,
		QueueWarnPackets:            800,
		MaxDeltaChunkBytes:          9600,
		MinUplinkChunkBytes:         4800, // 100ms @ 24kHz PCM16
		ReadFirstTimeout:            40 * time.Millisecond,
		ReadBatchTimeout:            5 * time.Millisecond,
		SessionReadyTimeout:         10 * time.Second,
		LocalBargeInOnSpeechStarted: false,
	}
}

// TunableOption customizes a Tunables value away from its defaults.
type TunableOption func(*Tunables)

// WithLocalBargeIn resolves §9 Open Question 1 explicitly for callers
// who have measured that the remote service does not reliably cease
// emitting audio after detecting user speech.
func WithLocalBargeIn(enabled bool) TunableOption {
	return func(t *Tunables) { t.LocalBargeInOnSpeechStarted = enabled }
}

// WithSessionReadyTimeout overrides the readiness wait timeout.
func WithSessionReadyTimeout(d time.Duration) TunableOption {
	return func(t *Tunables) { t.SessionReadyTimeout = d }
}

// WithWatermarks overrides the prebuffer/low/high queue watermarks.
func WithWatermarks(prebuffer, low, high int) TunableOption {
	return func(t *Tunables) {
		t.MinPrebufferPackets = prebuffer
		t.LowWaterPackets = low
		t.HighWaterPackets = high
	}
}

func newTunables(opts ...TunableOption) Tunables {
	t := DefaultTunables()
	for _, opt := range opts {
		opt(&t)
	}
	return t
}
