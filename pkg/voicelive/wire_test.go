package voicelive

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/arzzra/voicegateway/pkg/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSessionUpdateCarriesAllFields(t *testing.T) {
	cfg := bridge.DefaultSessionConfig("be brief", "alloy")
	w := buildSessionUpdate(cfg)

	assert.Equal(t, "session.update", w.Type)
	assert.Equal(t, "be brief", w.Session.Instructions)
	assert.Equal(t, "alloy", w.Session.Voice)
	assert.Equal(t, 24000, w.Session.InputAudioFormat.SampleRate)
	assert.Equal(t, "semantic_vad", w.Session.TurnDetection.Type)
	assert.Equal(t, "near_field", w.Session.NoiseSuppression.Type)
	assert.True(t, w.Session.EchoCancellation)
	assert.Nil(t, w.Session.MaxResponseOutputTokens)
}

func TestBuildSessionUpdateOmitsMaxTokensUnlessSet(t *testing.T) {
	cfg := bridge.DefaultSessionConfig("", "alloy")
	n := 200
	cfg.MaxResponseOutputTokens = &n

	w := buildSessionUpdate(cfg)
	require.NotNil(t, w.Session.MaxResponseOutputTokens)
	assert.Equal(t, 200, *w.Session.MaxResponseOutputTokens)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max_response_output_tokens":200`)
}

func TestDecodeServerEventAudioDelta(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	payload, err := json.Marshal(map[string]any{
		"type":        "response.audio.delta",
		"response_id": "resp-1",
		"item_id":     "item-1",
		"delta":       raw,
	})
	require.NoError(t, err)

	evt, err := decodeServerEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, bridge.EventResponseAudioDelta, evt.Type)
	assert.Equal(t, "resp-1", evt.ResponseID)
	assert.Equal(t, []byte{1, 2, 3, 4}, evt.AudioDelta)
}

func TestDecodeServerEventError(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    "invalid_request_error",
			"code":    "standalone_audio_chunk",
			"message": "rejected: standalone audio chunk not allowed",
		},
	})
	require.NoError(t, err)

	evt, err := decodeServerEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, bridge.EventError, evt.Type)
	assert.Equal(t, "invalid_request_error", evt.ErrorType)
	assert.Contains(t, evt.ErrorMessage, "standalone audio chunk")
}

func TestDecodeServerEventTranscriptionCompleted(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"type":       "conversation.item.input_audio_transcription.completed",
		"item_id":    "item-9",
		"transcript": "hello there",
	})
	require.NoError(t, err)

	evt, err := decodeServerEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, bridge.EventTranscriptionCompleted, evt.Type)
	assert.Equal(t, "hello there", evt.Transcript)
}

func TestDecodeServerEventUnknownPassesThroughRaw(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"type": "rate_limits.updated",
		"foo":  "bar",
	})
	require.NoError(t, err)

	evt, err := decodeServerEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, bridge.EventType("rate_limits.updated"), evt.Type)
	assert.NotNil(t, evt.Raw)
}
