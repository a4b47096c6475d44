package main

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// payloadTypePCMU is the static RTP payload type for G.711 µ-law, RFC 3551.
const payloadTypePCMU = 0

// rtpFrameSamples is 20ms of 8kHz audio, matching spec.md's 20ms packetization.
const rtpFrameSamples = 160

// rtpTransport is a minimal UDP RTP socket: one call, one remote peer,
// grounded on the teacher's pkg/rtp/transport_udp.go (NewUDPTransport,
// Send/Receive using pion/rtp Marshal/Unmarshal over net.UDPConn),
// trimmed to what a single-call gateway needs.
type rtpTransport struct {
	conn *net.UDPConn

	mu         sync.RWMutex
	remoteAddr *net.UDPAddr

	ssrc    uint32
	seq     uint16
	tsStep  uint32
	tsCur   uint32
	closeMu sync.Once
}

func newRTPTransport(localAddr string, ssrc uint32) (*rtpTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve rtp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("gateway: listen rtp udp: %w", err)
	}
	return &rtpTransport{conn: conn, ssrc: ssrc, tsStep: rtpFrameSamples}, nil
}

func (t *rtpTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *rtpTransport) setRemoteAddr(addr *net.UDPAddr) {
	t.mu.Lock()
	t.remoteAddr = addr
	t.mu.Unlock()
}

// sendPayload wraps a G.711 payload in an RTP packet and writes it to the
// current remote peer, advancing sequence number and timestamp.
func (t *rtpTransport) sendPayload(payload []byte) error {
	t.mu.Lock()
	remote := t.remoteAddr
	seq := t.seq
	t.seq++
	ts := t.tsCur
	t.tsCur += t.tsStep
	t.mu.Unlock()

	if remote == nil {
		return fmt.Errorf("gateway: no remote RTP peer yet")
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    payloadTypePCMU,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           t.ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("gateway: marshal rtp packet: %w", err)
	}
	_, err = t.conn.WriteToUDP(data, remote)
	return err
}

// readLoop blocks reading RTP packets and invokes onPayload with each
// packet's G.711 payload until the socket is closed.
func (t *rtpTransport) readLoop(onPayload func(payload []byte)) {
	buf := make([]byte, 1500)
	for {
		t.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, udpAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			slog.Debug("rtp read loop exiting", "err", err)
			return
		}

		if udpAddr != nil {
			t.mu.RLock()
			known := t.remoteAddr
			t.mu.RUnlock()
			if known == nil {
				t.setRemoteAddr(udpAddr)
			}
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			slog.Warn("gateway: dropping malformed rtp packet", "err", err)
			continue
		}
		if pkt.PayloadType != payloadTypePCMU {
			continue
		}
		onPayload(pkt.Payload)
	}
}

func (t *rtpTransport) Close() error {
	var err error
	t.closeMu.Do(func() {
		err = t.conn.Close()
	})
	return err
}
