package bridge

import "sync"

// fakeSession is a minimal in-memory Session double, grounded on the
// teacher's pkg/dialog/mockTransport pattern of hand-rolled
// test-only transport fakes rather than a mocking framework.
type fakeSession struct {
	mu         sync.Mutex
	sentAudio  [][]byte
	sentEvents []ClientEvent
	closed     bool
	sendErr    error

	events chan ServerEvent
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan ServerEvent, 256)}
}

func (f *fakeSession) SendInputAudio(pcm []byte) <-chan error {
	f.mu.Lock()
	f.sentAudio = append(f.sentAudio, append([]byte(nil), pcm...))
	err := f.sendErr
	f.mu.Unlock()

	ch := make(chan error, 1)
	ch <- err
	return ch
}

func (f *fakeSession) SendEvent(evt ClientEvent) error {
	f.mu.Lock()
	f.sentEvents = append(f.sentEvents, evt)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) Events() <-chan ServerEvent { return f.events }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) emit(evt ServerEvent) { f.events <- evt }

func (f *fakeSession) chunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sentAudio...)
}

func (f *fakeSession) sentClientEvents() []ClientEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ClientEvent(nil), f.sentEvents...)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
