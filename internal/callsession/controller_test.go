package callsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// Fakes. The controller is timing-sensitive, so these are plain stubs with
// channels rather than testify mocks.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	connecting chan struct{} // when set, closed once Connect is entered
	block      chan struct{} // when set, Connect blocks until closed
}

func (t *fakeTransport) Connect(ctx context.Context, meetingID uuid.UUID, token string) error {
	t.mu.Lock()
	connecting := t.connecting
	block := t.block
	t.mu.Unlock()

	if connecting != nil {
		close(connecting)
	}
	if block != nil {
		<-block
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeCapture struct {
	mu          sync.Mutex
	onUtterance func(text string)
	stopped     bool
}

func (c *fakeCapture) Start(ctx context.Context, onUtterance func(text string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUtterance = onUtterance
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *fakeCapture) emit(text string) {
	c.mu.Lock()
	fn := c.onUtterance
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

type fakeSynthesizer struct {
	mu     sync.Mutex
	spoken []string
	block  chan struct{} // when set, Speak blocks until closed or ctx ends
}

func (s *fakeSynthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	block := s.block
	s.mu.Unlock()

	if block != nil && text != audioPrimer {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *fakeSynthesizer) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

type fakeAnswerer struct {
	mu      sync.Mutex
	answers map[string]string
	calls   int
	block   chan struct{} // when set, Answer blocks until closed or ctx ends
}

func (a *fakeAnswerer) Answer(ctx context.Context, meetingID uuid.UUID, meetingName, text string) (string, error) {
	a.mu.Lock()
	a.calls++
	answer, ok := a.answers[text]
	block := a.block
	a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if ok {
		return answer, nil
	}
	return "answer to " + text, nil
}

func (a *fakeAnswerer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestController() (*Controller, *fakeTransport, *fakeCapture, *fakeSynthesizer, *fakeAnswerer) {
	transport := &fakeTransport{}
	capture := &fakeCapture{}
	synthesizer := &fakeSynthesizer{}
	answerer := &fakeAnswerer{answers: map[string]string{}}
	controller := NewController(uuid.New(), "Weekly sync", "token", transport, capture, synthesizer, answerer, nil)
	return controller, transport, capture, synthesizer, answerer
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestJoinTransitionsToJoined(t *testing.T) {
	controller, transport, _, synthesizer, _ := newTestController()

	// Execute
	err := controller.Join(context.Background())

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, StateJoined, controller.State())
	assert.True(t, transport.connected)
	// The audio primer plays before anything else.
	assert.Equal(t, []string{audioPrimer}, synthesizer.spokenTexts())
}

func TestJoinTwiceFails(t *testing.T) {
	controller, _, _, _, _ := newTestController()

	assert.NoError(t, controller.Join(context.Background()))

	// Execute
	err := controller.Join(context.Background())

	// Assert
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestUtteranceProducesSpokenReply(t *testing.T) {
	controller, _, capture, synthesizer, _ := newTestController()
	assert.NoError(t, controller.Join(context.Background()))

	// Execute
	capture.emit("what time is it?")

	// Assert
	waitFor(t, func() bool {
		spoken := synthesizer.spokenTexts()
		return len(spoken) == 2 && spoken[1] == "answer to what time is it?"
	})
}

func TestNextReplyCutsOffPrevious(t *testing.T) {
	controller, _, capture, synthesizer, answerer := newTestController()

	// Block playback so the first reply stays audible.
	synthesizer.block = make(chan struct{})

	assert.NoError(t, controller.Join(context.Background()))

	capture.emit("first")
	waitFor(t, func() bool { return answerer.callCount() == 1 })
	waitFor(t, func() bool { return len(synthesizer.spokenTexts()) == 2 })

	// Execute: playback runs detached, so the next utterance is answered and
	// its playback cancels the one still in flight.
	capture.emit("second")
	waitFor(t, func() bool { return answerer.callCount() == 2 })
	waitFor(t, func() bool { return len(synthesizer.spokenTexts()) == 3 })

	close(synthesizer.block)
	waitFor(t, func() bool { return !controller.Speaking() })

	// Assert
	spoken := synthesizer.spokenTexts()
	assert.Equal(t, "answer to first", spoken[1])
	assert.Equal(t, "answer to second", spoken[2])
}

func TestUtteranceDroppedWhileAnswering(t *testing.T) {
	controller, _, capture, synthesizer, answerer := newTestController()

	// Block answer generation so the first utterance holds the reply slot.
	answerer.block = make(chan struct{})

	assert.NoError(t, controller.Join(context.Background()))

	capture.emit("first")
	waitFor(t, func() bool { return answerer.callCount() == 1 })

	// Execute: utterances arriving mid-answer are dropped, not queued.
	capture.emit("second")
	capture.emit("third")
	time.Sleep(50 * time.Millisecond)

	close(answerer.block)

	// Assert: only the first utterance ever reached the answerer.
	waitFor(t, func() bool { return len(synthesizer.spokenTexts()) == 2 })
	assert.Equal(t, 1, answerer.callCount())
}

func TestEmptyUtteranceIgnored(t *testing.T) {
	controller, _, capture, _, answerer := newTestController()
	assert.NoError(t, controller.Join(context.Background()))

	// Execute
	capture.emit("")
	time.Sleep(50 * time.Millisecond)

	// Assert
	assert.Equal(t, 0, answerer.callCount())
}

func TestLeaveStopsEverything(t *testing.T) {
	controller, transport, capture, _, _ := newTestController()
	assert.NoError(t, controller.Join(context.Background()))

	// Execute
	err := controller.Leave()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, StateEnded, controller.State())
	assert.True(t, transport.isClosed())
	assert.True(t, capture.stopped)
}

func TestLeaveIsIdempotent(t *testing.T) {
	controller, _, _, _, _ := newTestController()
	assert.NoError(t, controller.Join(context.Background()))

	assert.NoError(t, controller.Leave())

	// Execute
	err := controller.Leave()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, StateEnded, controller.State())
}

func TestLeaveBeforeJoinFails(t *testing.T) {
	controller, _, _, _, _ := newTestController()

	// Execute
	err := controller.Leave()

	// Assert
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestLeaveDuringConnectEndsSession(t *testing.T) {
	controller, transport, capture, _, _ := newTestController()
	transport.connecting = make(chan struct{})
	transport.block = make(chan struct{})

	joinErr := make(chan error, 1)
	go func() { joinErr <- controller.Join(context.Background()) }()
	<-transport.connecting

	// Execute: leave while the transport is still connecting.
	assert.NoError(t, controller.Leave())
	assert.Equal(t, StateEnded, controller.State())

	close(transport.block)

	// Assert: the late connect does not resurrect the session and never
	// starts capture.
	select {
	case err := <-joinErr:
		assert.ErrorIs(t, err, ErrNotJoined)
	case <-time.After(2 * time.Second):
		t.Fatal("join did not return")
	}
	assert.Equal(t, StateEnded, controller.State())
	assert.True(t, transport.isClosed())

	capture.mu.Lock()
	captureStarted := capture.onUtterance != nil
	capture.mu.Unlock()
	assert.False(t, captureStarted)
}

func TestLeaveCancelsInFlightSynthesis(t *testing.T) {
	controller, _, capture, synthesizer, _ := newTestController()
	synthesizer.block = make(chan struct{})

	assert.NoError(t, controller.Join(context.Background()))

	capture.emit("long question")
	waitFor(t, func() bool { return controller.Speaking() })

	// Execute
	assert.NoError(t, controller.Leave())

	// Assert: teardown cancels the blocked Speak.
	waitFor(t, func() bool { return !controller.Speaking() })
	assert.Equal(t, StateEnded, controller.State())
}

func TestDuration(t *testing.T) {
	controller, _, _, _, _ := newTestController()

	assert.Equal(t, time.Duration(0), controller.Duration())

	assert.NoError(t, controller.Join(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, controller.Duration(), time.Duration(0))

	assert.NoError(t, controller.Leave())
	frozen := controller.Duration()
	time.Sleep(20 * time.Millisecond)

	// Assert: the clock stops at Leave.
	assert.Equal(t, frozen, controller.Duration())
}
