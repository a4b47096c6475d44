package voicelive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/voicegateway/pkg/bridge"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const dialTimeout = 15 * time.Second

// Client implements bridge.Session over a websocket connection to the
// remote voice-live service, grounded on the teacher pack's websocket
// client pattern (vango-go-vai-lite sdk/live.go: dial, single read loop
// decoding a typed JSON envelope, writeMu-guarded sends, closeOnce
// teardown).
type Client struct {
	cfg  Config
	conn *websocket.Conn

	events chan bridge.ServerEvent

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// Dial opens the websocket connection to the voice-live endpoint and
// starts the read loop. The returned Client implements bridge.Session
// and is ready for bridge.NewMediaBridge.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	return dialRaw(ctx, cfg, cfg.WebSocketURL())
}

// dialRaw connects to an explicit websocket URL, bypassing
// Config.WebSocketURL's https->wss rewrite. Exists as a seam for tests
// that dial an httptest server directly.
func dialRaw(ctx context.Context, cfg Config, wsURL string) (*Client, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	headers := make(http.Header)
	headers.Set("Api-Key", cfg.APIKey)
	headers.Set("X-Client-Request-Id", uuid.NewString())

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voicelive: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("voicelive: dial failed: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		conn:   conn,
		events: make(chan bridge.ServerEvent, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SendInputAudio implements bridge.Session: it base64-encodes the PCM16
// payload into an input_audio_buffer.append event.
func (c *Client) SendInputAudio(pcm []byte) <-chan error {
	ch := make(chan error, 1)
	err := c.sendJSON(wireInputAudioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
	ch <- err
	return ch
}

// SendEvent implements bridge.Session.
func (c *Client) SendEvent(evt bridge.ClientEvent) error {
	switch evt.Type {
	case bridge.ClientEventSessionUpdate:
		if evt.Session == nil {
			return fmt.Errorf("voicelive: session.update requires a SessionConfig")
		}
		return c.sendJSON(buildSessionUpdate(*evt.Session))
	case bridge.ClientEventResponseCreate:
		return c.sendJSON(wireResponseCreate{Type: "response.create"})
	default:
		return fmt.Errorf("voicelive: unknown client event type %q", evt.Type)
	}
}

// Events implements bridge.Session.
func (c *Client) Events() <-chan bridge.ServerEvent {
	return c.events
}

// Close implements bridge.Session.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Client) sendJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("voicelive: session closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				slog.Warn("voicelive connection closed", "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		evt, err := decodeServerEvent(data)
		if err != nil {
			slog.Warn("voicelive: failed to decode server event", "err", err)
			continue
		}
		c.emit(evt)
	}
}

func (c *Client) emit(evt bridge.ServerEvent) {
	select {
	case c.events <- evt:
	default:
		slog.Warn("voicelive: event channel full, dropping event", "type", evt.Type)
	}
}

// decodeServerEvent pattern-matches the wire envelope's "type" field and
// decodes into the corresponding bridge.ServerEvent, per
// original_source/VoiceLiveEventHandler.java's event set.
func decodeServerEvent(data []byte) (bridge.ServerEvent, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return bridge.ServerEvent{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch bridge.EventType(env.Type) {
	case bridge.EventSessionCreated:
		var w wireSessionCreated
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventSessionCreated, SessionID: w.Session.ID}, nil

	case bridge.EventSessionUpdated:
		var w wireSessionCreated
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventSessionUpdated, SessionID: w.Session.ID}, nil

	case bridge.EventResponseCreated:
		var w wireResponseCreated
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventResponseCreated, ResponseID: w.Response.ID}, nil

	case bridge.EventResponseAudioDelta:
		var w wireAudioDelta
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		pcm, err := base64.StdEncoding.DecodeString(w.Delta)
		if err != nil {
			return bridge.ServerEvent{}, fmt.Errorf("decode audio delta: %w", err)
		}
		return bridge.ServerEvent{Type: bridge.EventResponseAudioDelta, ResponseID: w.ResponseID, ItemID: w.ItemID, AudioDelta: pcm}, nil

	case bridge.EventResponseAudioDone:
		var w wireAudioDone
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventResponseAudioDone, ResponseID: w.ResponseID, ItemID: w.ItemID}, nil

	case bridge.EventResponseTextDelta:
		var w wireTextDelta
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventResponseTextDelta, ResponseID: w.ResponseID, ItemID: w.ItemID, TextDelta: w.Delta}, nil

	case bridge.EventResponseAudioTimestampDelta:
		var w wireAudioTimestampDelta
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{
			Type: bridge.EventResponseAudioTimestampDelta, ResponseID: w.ResponseID, ItemID: w.ItemID,
			AudioOffsetMs: w.AudioOffsetMs, AudioDurationMs: w.AudioDurationMs,
			TextDelta: w.Text, TimestampType: w.TimestampType,
		}, nil

	case bridge.EventResponseAnimationViseme:
		var w wireVisemeDelta
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{
			Type: bridge.EventResponseAnimationViseme, ResponseID: w.ResponseID, ItemID: w.ItemID,
			AudioOffsetMs: w.AudioOffsetMs, VisemeID: w.VisemeID,
		}, nil

	case bridge.EventSpeechStarted:
		return bridge.ServerEvent{Type: bridge.EventSpeechStarted}, nil

	case bridge.EventSpeechStopped:
		return bridge.ServerEvent{Type: bridge.EventSpeechStopped}, nil

	case bridge.EventTranscriptionCompleted:
		var w wireTranscriptionCompleted
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{Type: bridge.EventTranscriptionCompleted, ItemID: w.ItemID, Transcript: w.Transcript}, nil

	case bridge.EventError:
		var w wireError
		if err := json.Unmarshal(data, &w); err != nil {
			return bridge.ServerEvent{}, err
		}
		return bridge.ServerEvent{
			Type: bridge.EventError, ErrorType: w.Error.Type, ErrorCode: w.Error.Code, ErrorMessage: w.Error.Message,
		}, nil

	default:
		var raw map[string]any
		_ = json.Unmarshal(data, &raw)
		return bridge.ServerEvent{Type: bridge.EventType(env.Type), Raw: raw}, nil
	}
}
