package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/arzzra/voicegateway/pkg/bridge"
	"github.com/arzzra/voicegateway/pkg/voicelive"
)

// activeCall is the event handed from the SIP layer to the call manager:
// either a freshly-answered call carrying its RTP transport, or a
// dialog-termination notice (ended=true) identifying the dialog to tear
// down.
type activeCall struct {
	dialogID string
	rtp      *rtpTransport
	release  func()
	ended    bool
}

// rtpPacketInterval is how often the downlink pump reads from the
// bridge source and writes an RTP packet, matching spec.md's 20ms
// G.711 packetization interval.
const rtpPacketInterval = 20 * time.Millisecond

// callManager tracks the single in-flight call lifecycle: spec.md and
// SPEC_FULL.md describe a per-call MediaBridge, and this gateway binary
// runs one call at a time (no call-waiting/multi-line logic, which is
// out of scope per the SIP Non-goals).
type callManager struct {
	vlConfig voicelive.Config
	sesCfg   bridge.SessionConfig
	metrics  *bridge.Metrics

	mu      sync.Mutex
	current *runningCall
}

type runningCall struct {
	dialogID string
	rtp      *rtpTransport
	release  func()
	vl       *voicelive.Client
	mb       *bridge.MediaBridge
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newCallManager(vlConfig voicelive.Config, sesCfg bridge.SessionConfig, metrics *bridge.Metrics) *callManager {
	return &callManager{vlConfig: vlConfig, sesCfg: sesCfg, metrics: metrics}
}

// handle is registered as sipUA's onCall callback.
func (m *callManager) handle(call *activeCall) {
	if call.ended {
		m.teardown(call.dialogID)
		return
	}
	if err := m.start(call); err != nil {
		slog.Error("gateway: failed to start call", "dialog", call.dialogID, "err", err)
		call.rtp.Close()
		if call.release != nil {
			call.release()
		}
	}
}

func (m *callManager) start(call *activeCall) error {
	ctx, cancel := context.WithCancel(context.Background())

	vl, err := voicelive.Dial(ctx, m.vlConfig)
	if err != nil {
		cancel()
		return fmt.Errorf("dial voice-live service: %w", err)
	}

	opts := []bridge.Option{
		bridge.WithMetrics(m.metrics),
		bridge.WithGreeting(m.vlConfig.ProactiveGreetingEnabled),
	}
	mb, err := bridge.NewMediaBridge(ctx, vl, m.sesCfg, opts...)
	if err != nil {
		vl.Close()
		cancel()
		return fmt.Errorf("start media bridge: %w", err)
	}

	rc := &runningCall{
		dialogID: call.dialogID,
		rtp:      call.rtp,
		release:  call.release,
		vl:       vl,
		mb:       mb,
		cancel:   cancel,
	}

	m.mu.Lock()
	if m.current != nil {
		slog.Warn("gateway: replacing in-flight call, this binary supports one call at a time")
		m.teardownLocked()
	}
	m.current = rc
	m.mu.Unlock()

	rc.wg.Add(2)
	go rc.pumpUplink(&rc.wg)
	go rc.pumpDownlink(ctx, &rc.wg)

	slog.Info("gateway: call established", "dialog", call.dialogID)
	return nil
}

func (m *callManager) teardown(dialogID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.dialogID != dialogID {
		return
	}
	m.teardownLocked()
}

func (m *callManager) teardownLocked() {
	rc := m.current
	m.current = nil
	rc.cancel()
	rc.rtp.Close()
	_ = rc.mb.Close()
	if rc.release != nil {
		rc.release()
	}
	rc.wg.Wait()
	if t := rc.mb.Transcript(); t != "" {
		slog.Info("gateway: call ended", "dialog", rc.dialogID, "transcript", t)
	} else {
		slog.Info("gateway: call ended", "dialog", rc.dialogID)
	}
}

// pumpUplink reads RTP packets off the wire and writes their µ-law
// payload into the bridge's Sink, per SPEC_FULL.md §6.
func (rc *runningCall) pumpUplink(wg *sync.WaitGroup) {
	defer wg.Done()
	sink := rc.mb.Sink()
	rc.rtp.readLoop(func(payload []byte) {
		_, _ = sink.Write(payload)
	})
}

// pumpDownlink pulls G.711 frames out of the bridge's Source every 20ms
// and sends them as RTP packets, per SPEC_FULL.md §6.
func (rc *runningCall) pumpDownlink(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	src := rc.mb.Source()
	buf := make([]byte, rtpFrameSamples)

	ticker := time.NewTicker(rtpPacketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := src.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			if err := rc.rtp.sendPayload(buf[:n]); err != nil {
				slog.Debug("gateway: rtp send failed", "dialog", rc.dialogID, "err", err)
			}
		}
	}
}

// rtpPortPool hands out local UDP ports from a configured range for new
// calls, grounded on the teacher's port_manager.go approach of tracking
// a fixed pool rather than letting the kernel pick an ephemeral port
// (needed here so the SDP answer's advertised port matches the bound
// socket).
type rtpPortPool struct {
	mu   sync.Mutex
	next int
	min  int
	max  int
	used map[int]bool
}

func newRTPPortPool(min, max int) *rtpPortPool {
	if max < min {
		max = min
	}
	return &rtpPortPool{next: min, min: min, max: max, used: make(map[int]bool)}
}

func (p *rtpPortPool) acquire(host string) (*net.UDPAddr, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempts := 0; attempts <= p.max-p.min; attempts++ {
		port := p.next
		p.next++
		if p.next > p.max {
			p.next = p.min
		}
		if p.used[port] {
			continue
		}
		p.used[port] = true
		addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
		return addr, func() { p.release(port) }, nil
	}
	return nil, nil, fmt.Errorf("gateway: no free rtp port in [%d,%d]", p.min, p.max)
}

func (p *rtpPortPool) release(port int) {
	p.mu.Lock()
	delete(p.used, port)
	p.mu.Unlock()
}

func sipSSRC() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<32-1))
	if err != nil {
		return uint32(time.Now().UnixNano())
	}
	return uint32(n.Int64())
}

func sdpSessionID() uint64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(n.Int64())
}
