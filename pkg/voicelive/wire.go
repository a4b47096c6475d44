package voicelive

import "github.com/arzzra/voicegateway/pkg/bridge"

// This file defines the JSON wire shapes exchanged with the remote
// service, grounded on the event taxonomy and field names of
// original_source/VoiceLiveEventHandler.java and pkg/bridge/session.go's
// ServerEvent/ClientEvent. The remote protocol follows the same
// session/response event-naming convention the original Java client
// consumed (Azure Voice Live, layered on the realtime API family); the
// exact field layout below is this client's own framing, since
// original_source delegates wire parsing to the Azure SDK rather than
// exposing it.
type wireEnvelope struct {
	Type string `json:"type"`
}

type wireSessionUpdate struct {
	Type    string            `json:"type"`
	Session wireSessionConfig `json:"session"`
}

type wireSessionConfig struct {
	Instructions            string                  `json:"instructions,omitempty"`
	Modalities              []string                `json:"modalities,omitempty"`
	Voice                   string                  `json:"voice,omitempty"`
	InputAudioFormat        wireAudioFormat         `json:"input_audio_format"`
	OutputAudioFormat       wireAudioFormat         `json:"output_audio_format"`
	TurnDetection           wireTurnDetection       `json:"turn_detection"`
	NoiseSuppression        wireNoiseSuppression    `json:"noise_suppression"`
	EchoCancellation        bool                    `json:"echo_cancellation"`
	InputAudioTranscription wireTranscriptionConfig `json:"input_audio_transcription"`
	MaxResponseOutputTokens *int                    `json:"max_response_output_tokens,omitempty"`
}

type wireAudioFormat struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
}

type wireTurnDetection struct {
	Type               string  `json:"type"`
	Threshold          float64 `json:"threshold"`
	PrefixPaddingMs    int     `json:"prefix_padding_ms"`
	SilenceDurationMs  int     `json:"silence_duration_ms"`
	InterruptOnSpeech  bool    `json:"interrupt_response"`
	AutoTruncate       bool    `json:"auto_truncate"`
	AutoCreateResponse bool    `json:"create_response"`
}

type wireNoiseSuppression struct {
	Type string `json:"type,omitempty"`
}

type wireTranscriptionConfig struct {
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

type wireResponseCreate struct {
	Type string `json:"type"`
}

type wireInputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type wireSessionCreated struct {
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
}

type wireResponseCreated struct {
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
}

type wireAudioDelta struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"` // base64-encoded PCM16 24kHz
}

type wireAudioDone struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

type wireTextDelta struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

type wireAudioTimestampDelta struct {
	ResponseID      string `json:"response_id"`
	ItemID          string `json:"item_id"`
	AudioOffsetMs   int    `json:"audio_offset_ms"`
	AudioDurationMs int    `json:"audio_duration_ms"`
	Text            string `json:"text"`
	TimestampType   string `json:"timestamp_type"`
}

type wireVisemeDelta struct {
	ResponseID    string `json:"response_id"`
	ItemID        string `json:"item_id"`
	AudioOffsetMs int    `json:"audio_offset_ms"`
	VisemeID      int    `json:"viseme_id"`
}

type wireTranscriptionCompleted struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildSessionUpdate translates a bridge.SessionConfig into the wire
// session.update payload.
func buildSessionUpdate(cfg bridge.SessionConfig) wireSessionUpdate {
	return wireSessionUpdate{
		Type: "session.update",
		Session: wireSessionConfig{
			Instructions:      cfg.Instructions,
			Modalities:        cfg.Modalities,
			Voice:             cfg.Voice,
			InputAudioFormat:  wireAudioFormat{Type: cfg.InputAudioFormat.Encoding, SampleRate: cfg.InputAudioFormat.SampleRate},
			OutputAudioFormat: wireAudioFormat{Type: cfg.OutputAudioFormat.Encoding, SampleRate: cfg.OutputAudioFormat.SampleRate},
			TurnDetection: wireTurnDetection{
				Type:               cfg.TurnDetection.Type,
				Threshold:          cfg.TurnDetection.Threshold,
				PrefixPaddingMs:    cfg.TurnDetection.PrefixPaddingMs,
				SilenceDurationMs:  cfg.TurnDetection.SilenceDurationMs,
				InterruptOnSpeech:  cfg.TurnDetection.InterruptOnSpeech,
				AutoTruncate:       cfg.TurnDetection.AutoTruncate,
				AutoCreateResponse: cfg.TurnDetection.AutoCreateResponse,
			},
			NoiseSuppression: noiseSuppressionWire(cfg.NoiseSuppression),
			EchoCancellation: cfg.EchoCancellation,
			InputAudioTranscription: wireTranscriptionConfig{
				Model:    string(cfg.Transcription.Kind),
				Language: cfg.Transcription.Language,
			},
			MaxResponseOutputTokens: cfg.MaxResponseOutputTokens,
		},
	}
}

func noiseSuppressionWire(cfg bridge.NoiseSuppressionConfig) wireNoiseSuppression {
	if !cfg.Enabled {
		return wireNoiseSuppression{}
	}
	if cfg.Type == "" {
		return wireNoiseSuppression{Type: "near_field"}
	}
	return wireNoiseSuppression{Type: cfg.Type}
}
