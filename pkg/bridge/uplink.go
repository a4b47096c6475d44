package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arzzra/voicegateway/pkg/codec"
	"github.com/arzzra/voicegateway/pkg/resample"
)

// UplinkPipeline carries caller audio into the remote session: decode
// µ-law → upsample → accumulate → flush to the session sink, per §4.3.
type UplinkPipeline struct {
	session Session
	t       Tunables
	metrics *Metrics

	mu   sync.Mutex
	acc  []byte // accumulating PCM16 @ 24kHz bytes

	ready *atomic.Bool // shared with the controller; read-only here

	loggedNotReady atomic.Bool

	// sendCh serializes session sends onto a single background
	// goroutine so per-call ordering is preserved even though the RTP
	// receive goroutine never blocks on the send (§5, §9).
	sendCh chan []byte
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newUplinkPipeline(session Session, t Tunables, ready *atomic.Bool, metrics *Metrics) *UplinkPipeline {
	p := &UplinkPipeline{
		session: session,
		t:       t,
		metrics: metrics,
		ready:   ready,
		sendCh:  make(chan []byte, 64),
		stop:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sendLoop()
	return p
}

// sendLoop is the per-call mailbox that preserves send ordering while
// keeping the caller (Write) non-blocking.
func (p *UplinkPipeline) sendLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case chunk, ok := <-p.sendCh:
			if !ok {
				return
			}
			done := p.session.SendInputAudio(chunk)
			err := <-done
			if err == nil {
				if p.metrics != nil {
					p.metrics.uplinkChunksSent.Inc()
				}
				continue
			}
			if IsTransientSessionSendError(err) {
				// Expected during an active response; §4.3, §7.
				slog.Debug("uplink send suppressed (transient)", "err", err)
				continue
			}
			slog.Warn("uplink send failed", "err", err)
			if p.metrics != nil {
				p.metrics.uplinkSendErrors.Inc()
			}
		}
	}
}

// Write decodes and upsamples a µ-law byte sequence from the RTP
// receiver and buffers it for the session. It never blocks on the
// session send (§4.3, §5).
func (p *UplinkPipeline) Write(ulawFrame []byte) {
	if !p.ready.Load() {
		if !p.loggedNotReady.Swap(true) {
			slog.Debug("uplink audio dropped, session not ready")
		}
		return
	}
	p.loggedNotReady.Store(false)

	pcm8k := codec.Decode(ulawFrame)
	pcm24k := resample.Upsample8to24(pcm8k)

	p.mu.Lock()
	p.acc = append(p.acc, pcm24k...)
	var chunk []byte
	if len(p.acc) >= p.t.MinUplinkChunkBytes {
		n := len(p.acc) - (len(p.acc) % 2)
		chunk = p.acc[:n:n]
		p.acc = append([]byte(nil), p.acc[n:]...)
	}
	p.mu.Unlock()

	if chunk != nil {
		p.dispatch(chunk)
	}
}

// Flush emits any residual buffered audio, per §4.3 point 4. Intended
// for call teardown.
func (p *UplinkPipeline) Flush() {
	p.mu.Lock()
	n := len(p.acc) - (len(p.acc) % 2)
	chunk := p.acc[:n:n]
	p.acc = nil
	p.mu.Unlock()

	if len(chunk) > 0 {
		p.dispatch(chunk)
	}
}

func (p *UplinkPipeline) dispatch(chunk []byte) {
	select {
	case p.sendCh <- chunk:
	case <-p.stop:
	}
}

// close stops the send loop. Buffered-but-unsent chunks are dropped;
// callers wanting in-flight audio delivered should Flush before close.
func (p *UplinkPipeline) close() {
	close(p.stop)
	p.wg.Wait()
}
