package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyUplink(session Session) (*UplinkPipeline, *atomic.Bool) {
	var ready atomic.Bool
	ready.Store(true)
	t := DefaultTunables()
	return newUplinkPipeline(session, t, &ready, nil), &ready
}

// TestUplinkChunking covers §8 scenario 6: 30 consecutive 160-byte
// µ-law writes must produce exactly 6 in-order 4800-byte PCM16 24kHz
// chunks at the session sink.
func TestUplinkChunking(t *testing.T) {
	session := newFakeSession()
	p, _ := readyUplink(session)
	defer p.close()

	frame := make([]byte, 160)
	for i := 0; i < 30; i++ {
		p.Write(frame)
	}

	require.Eventually(t, func() bool {
		return len(session.chunks()) == 6
	}, time.Second, time.Millisecond)

	for _, chunk := range session.chunks() {
		assert.Len(t, chunk, 4800)
	}
}

func TestUplinkDropsAudioWhenNotReady(t *testing.T) {
	session := newFakeSession()
	var ready atomic.Bool // false
	p := newUplinkPipeline(session, DefaultTunables(), &ready, nil)
	defer p.close()

	for i := 0; i < 10; i++ {
		p.Write(make([]byte, 160))
	}

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, session.chunks())
}

func TestUplinkFlushEmitsResidual(t *testing.T) {
	session := newFakeSession()
	p, _ := readyUplink(session)
	defer p.close()

	// Two writes: 320 bytes PCM8k each -> 960 bytes PCM24k each ->
	// 1920 bytes accumulated, below the 4800 byte threshold.
	p.Write(make([]byte, 160))
	p.Write(make([]byte, 160))
	p.Flush()

	require.Eventually(t, func() bool {
		return len(session.chunks()) == 1
	}, time.Second, time.Millisecond)
	assert.Len(t, session.chunks()[0], 1920)
}

func TestUplinkSuppressesTransientSendError(t *testing.T) {
	session := newFakeSession()
	session.sendErr = &Error{Code: ErrorCodeTransientSessionSend, Msg: "rejected: standalone audio chunk not allowed"}
	p, _ := readyUplink(session)
	defer p.close()

	for i := 0; i < 5; i++ {
		p.Write(make([]byte, 160))
	}
	p.Flush()

	require.Eventually(t, func() bool {
		return len(session.chunks()) >= 1
	}, time.Second, time.Millisecond)
	// No assertion on logs; the key property is that dispatch kept
	// draining sendCh without blocking or panicking despite every send
	// failing.
}
