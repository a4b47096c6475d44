package bridge

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arzzra/voicegateway/pkg/codec"
	"github.com/arzzra/voicegateway/pkg/resample"
)

// DownlinkPipeline mediates between the bursty remote-service audio
// producer and the strict, rate-limited RTP sender consumer, per §4.4.
// The producer side (EnqueueChunk) is called by the SessionController
// for every audio-delta event; the consumer side (Read) is called by
// the RTP sender roughly once per 20ms.
type DownlinkPipeline struct {
	t       Tunables
	metrics *Metrics

	queue *downlinkQueue

	// partial is the partial-packet work buffer shared between the
	// producer path and clearBuffer, guarded by partialMu (§4.4.1
	// point 3, §5).
	partialMu sync.Mutex
	partial   []byte

	prebuffered  atomic.Bool
	paused       atomic.Bool
	responseDone atomic.Bool
	closed       atomic.Bool
}

func newDownlinkPipeline(t Tunables, metrics *Metrics) *DownlinkPipeline {
	return &DownlinkPipeline{
		t:       t,
		metrics: metrics,
		queue:   newDownlinkQueue(),
	}
}

// EnqueueChunk implements §4.4.1: splits oversized deltas, downsamples
// and encodes each piece, and packetizes the result onto DownlinkQueue.
func (d *DownlinkPipeline) EnqueueChunk(pcm24k []byte) {
	if d.closed.Load() {
		return
	}
	for len(pcm24k) > 0 {
		n := len(pcm24k)
		if n > d.t.MaxDeltaChunkBytes {
			n = d.t.MaxDeltaChunkBytes
			n -= n % 2
		}
		d.processChunk(pcm24k[:n])
		pcm24k = pcm24k[n:]
	}
}

func (d *DownlinkPipeline) processChunk(pcm24k []byte) {
	pcm8k := resample.Downsample24to8(pcm24k)
	ulawData := codec.Encode(pcm8k)
	d.packetizeAndEnqueue(ulawData)
}

func (d *DownlinkPipeline) packetizeAndEnqueue(ulawData []byte) {
	d.partialMu.Lock()
	defer d.partialMu.Unlock()

	d.partial = append(d.partial, ulawData...)
	for len(d.partial) >= d.t.RTPPayloadBytes {
		pkt := make([]byte, d.t.RTPPayloadBytes)
		copy(pkt, d.partial[:d.t.RTPPayloadBytes])
		d.partial = append([]byte(nil), d.partial[d.t.RTPPayloadBytes:]...)

		size := d.queue.enqueue(pkt)
		if size >= d.t.MinPrebufferPackets {
			d.prebuffered.Store(true)
		}
		if size > d.t.QueueWarnPackets {
			slog.Warn("downlink queue growing large", "packets", size)
		}
		if d.metrics != nil {
			d.metrics.downlinkPacketsQueued.Inc()
			d.metrics.downlinkQueueDepth.Set(float64(size))
		}
	}
}

// onResponseCreated resets responseDone for the new response, per
// §4.5's response.created handler.
func (d *DownlinkPipeline) onResponseCreated() {
	d.responseDone.Store(false)
}

// onResponseAudioDone marks the current response's audio as fully
// delivered to the queue, per §4.5's response.audio.done handler. It
// only sets responseDone; Read then treats responseDone with audio
// already queued as satisfying the "ready to play" gate even when the
// burst never reached MinPrebufferPackets — the rationale (§4.4.2) for
// prebuffering is surviving burstiness mid-response; once the response
// is finished there is nothing left to wait for.
func (d *DownlinkPipeline) onResponseAudioDone() {
	d.responseDone.Store(true)
}

// clearBuffer implements the §4.4.3 interrupt/barge-in: drops all
// queued packets, resets the partial-packet buffer, and clears
// prebuffered/paused so the next response re-prebuffers from scratch.
func (d *DownlinkPipeline) clearBuffer() {
	d.queue.clear()

	d.partialMu.Lock()
	d.partial = nil
	d.partialMu.Unlock()

	d.prebuffered.Store(false)
	d.paused.Store(false)
}

// updatePauseState applies the §4.4.2 pause/resume hysteresis given a
// queue size and responseDone observation, updates d.paused, and
// returns the resulting paused state. Factored out of Read so the
// watermark logic can be exercised directly against a synthetic queue
// size trace in tests.
func (d *DownlinkPipeline) updatePauseState(queueSize int, responseDone bool) bool {
	if !d.paused.Load() && queueSize < d.t.LowWaterPackets && !responseDone {
		d.paused.Store(true)
		if d.metrics != nil {
			d.metrics.downlinkPauses.Inc()
		}
	}
	if d.paused.Load() && (responseDone || queueSize >= d.t.HighWaterPackets) {
		d.paused.Store(false)
	}
	return d.paused.Load()
}

// Read implements the §4.4.2 paced reader contract: it returns a
// silence-filled buffer while not-yet-prebuffered or paused, batches
// queued packets up to len(buf) while Flowing, returns (0, nil) for "no
// data now", and (0, io.EOF) once closed.
func (d *DownlinkPipeline) Read(buf []byte) (int, error) {
	if d.closed.Load() {
		return 0, io.EOF
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if !d.prebuffered.Load() {
		// A response that finished (responseDone) with audio already
		// queued needs no burstiness cushion; play it immediately
		// rather than waiting for a threshold that a short response
		// will never reach.
		if d.responseDone.Load() && d.queue.size() > 0 {
			d.prebuffered.Store(true)
		} else {
			fillSilence(buf)
			return len(buf), nil
		}
	}

	if d.updatePauseState(d.queue.size(), d.responseDone.Load()) {
		fillSilence(buf)
		return len(buf), nil
	}

	total := 0
	first := true
	for total+d.t.RTPPayloadBytes <= len(buf) {
		timeout := d.t.ReadBatchTimeout
		if first {
			timeout = d.t.ReadFirstTimeout
		}

		pkt, ok := d.queue.dequeue(timeout)
		if !ok {
			if first {
				if d.queue.size() == 0 && d.responseDone.Load() {
					// Response fully drained; reset so the next
					// response re-prebuffers.
					d.prebuffered.Store(false)
					return 0, nil
				}
				slog.Debug("downlink underrun, no packet available")
				return 0, nil
			}
			break
		}

		copy(buf[total:], pkt)
		total += len(pkt)
		first = false
	}

	return total, nil
}

// Close marks the pipeline closed; subsequent Reads return io.EOF
// promptly, per §5's cancellation requirement.
func (d *DownlinkPipeline) Close() error {
	d.closed.Store(true)
	d.queue.clear()
	return nil
}

func fillSilence(buf []byte) {
	for i := range buf {
		buf[i] = 0xFF
	}
}
