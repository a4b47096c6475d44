package bridge

// Session is the external, session-side contract declared in §6: an
// already-started remote conversational-service session that the core
// drives but never owns the transport of. Concrete implementations
// (e.g. pkg/voicelive) own the connection, authentication and event
// framing; the core only calls this interface.
type Session interface {
	// SendInputAudio sends raw PCM16 little-endian audio at the
	// configured input sample rate, with no framing. The returned
	// channel receives exactly one value (nil on success) once the send
	// completes; it models the "completion future" of §6.
	SendInputAudio(pcm []byte) <-chan error

	// SendEvent sends a control event (session.update, response.create)
	// to the remote service.
	SendEvent(evt ClientEvent) error

	// Events yields typed server events for the lifetime of the
	// session. The channel is closed when the underlying stream
	// terminates.
	Events() <-chan ServerEvent

	// Close releases the session handle.
	Close() error
}

// EventType enumerates the server event variants the controller
// dispatches on, per §4.5's event taxonomy table.
type EventType string

const (
	EventSessionCreated              EventType = "session.created"
	EventSessionUpdated              EventType = "session.updated"
	EventResponseCreated             EventType = "response.created"
	EventResponseAudioDelta          EventType = "response.audio.delta"
	EventResponseAudioDone           EventType = "response.audio.done"
	EventResponseTextDelta           EventType = "response.text.delta"
	EventResponseAudioTimestampDelta EventType = "response.audio_timestamp.delta"
	EventResponseAnimationViseme     EventType = "response.animation_viseme.delta"
	EventSpeechStarted                EventType = "input_audio_buffer.speech_started"
	EventSpeechStopped                EventType = "input_audio_buffer.speech_stopped"
	EventTranscriptionCompleted        EventType = "conversation.item.input_audio_transcription.completed"
	EventError                         EventType = "error"
)

// ServerEvent is the tagged sum type for events arriving from the
// remote service (§9's "model the event set as a tagged sum type").
// Only the fields relevant to Type are populated.
type ServerEvent struct {
	Type EventType

	SessionID string // session.created, session.updated

	ResponseID string // response.*
	ItemID     string // response.*, transcription

	AudioDelta []byte // response.audio.delta: raw PCM16 24kHz bytes
	TextDelta  string // response.text.delta

	AudioOffsetMs   int    // response.audio_timestamp.delta, viseme
	AudioDurationMs int    // response.audio_timestamp.delta
	TimestampType   string // response.audio_timestamp.delta
	VisemeID        int    // response.animation_viseme.delta

	Transcript string // transcription.completed

	ErrorType    string // error
	ErrorCode    string // error
	ErrorMessage string // error

	Raw any // opaque payload, populated for unrecognized event types
}

// ClientEventType enumerates the control events the controller may send
// to the remote service.
type ClientEventType string

const (
	ClientEventSessionUpdate  ClientEventType = "session.update"
	ClientEventResponseCreate ClientEventType = "response.create"
)

// ClientEvent is a control event sent to the remote service.
type ClientEvent struct {
	Type     ClientEventType
	Session  *SessionConfig  // populated for session.update
	Response *ResponseCreate // populated for response.create
}

// ResponseCreate requests that the remote service generate a response.
// An empty value requests a response with no new user input, per §4.5's
// proactive greeting.
type ResponseCreate struct{}

// SessionConfig is the configuration payload sent once immediately
// after session start, per §4.5, supplemented from
// original_source/VoiceLiveConfig.java.
type SessionConfig struct {
	Instructions string
	Modalities   []string // e.g. {"text", "audio"}
	Voice        string

	InputAudioFormat  AudioFormat
	OutputAudioFormat AudioFormat

	TurnDetection     TurnDetectionConfig
	NoiseSuppression  NoiseSuppressionConfig
	EchoCancellation  bool
	Transcription     TranscriptionConfig

	// MaxResponseOutputTokens is carried per §9 Open Question 3: an
	// aspirational field, omitted from the outgoing payload unless the
	// caller explicitly sets it (non-nil).
	MaxResponseOutputTokens *int
}

// AudioFormat describes a PCM16 stream's sample rate.
type AudioFormat struct {
	Encoding   string // "pcm16"
	SampleRate int
}

// TurnDetectionConfig configures server-side semantic voice-activity
// detection, per §4.5.
type TurnDetectionConfig struct {
	Type                string // "semantic_vad"
	Threshold           float64
	PrefixPaddingMs     int
	SilenceDurationMs   int
	InterruptOnSpeech   bool
	AutoTruncate        bool
	AutoCreateResponse  bool
}

// NoiseSuppressionConfig configures remote-side noise suppression.
type NoiseSuppressionConfig struct {
	Enabled bool
	Type    string // e.g. "deep"
}

// TranscriptionKind selects the input-audio transcription backend.
type TranscriptionKind string

const (
	TranscriptionReferenceASR TranscriptionKind = "reference_asr"
	TranscriptionWhisper      TranscriptionKind = "whisper"
)

// TranscriptionConfig configures input-audio transcription, per §4.5.
type TranscriptionConfig struct {
	Kind     TranscriptionKind
	Language string // set for TranscriptionReferenceASR
}

// DefaultSessionConfig returns the §4.5 configuration with its stated
// default tunable values (VAD threshold 0.3, prefix pad 300ms, silence
// 500ms, noise suppression + echo cancellation enabled).
func DefaultSessionConfig(instructions, voice string) SessionConfig {
	return SessionConfig{
		Instructions:      instructions,
		Modalities:        []string{"text", "audio"},
		Voice:              voice,
		InputAudioFormat:   AudioFormat{Encoding: "pcm16", SampleRate: 24000},
		OutputAudioFormat:  AudioFormat{Encoding: "pcm16", SampleRate: 24000},
		EchoCancellation:   true,
		NoiseSuppression:   NoiseSuppressionConfig{Enabled: true, Type: "deep"},
		TurnDetection: TurnDetectionConfig{
			Type:               "semantic_vad",
			Threshold:          0.3,
			PrefixPaddingMs:    300,
			SilenceDurationMs:  500,
			InterruptOnSpeech:  true,
			AutoTruncate:       true,
			AutoCreateResponse: true,
		},
		Transcription: TranscriptionConfig{
			Kind:     TranscriptionReferenceASR,
			Language: "en-US",
		},
	}
}
