package callsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/metrics"

	"go.uber.org/zap"
)

// State is the session lifecycle position
type State string

const (
	StateLobby   State = "lobby"
	StateJoining State = "joining"
	StateJoined  State = "joined"
	StateEnded   State = "ended"
)

var (
	ErrAlreadyJoined = errors.New("session already joined")
	ErrNotJoined     = errors.New("session not joined")
)

// Transport connects the session to the provider call
type Transport interface {
	Connect(ctx context.Context, meetingID uuid.UUID, token string) error
	Close() error
}

// Capture listens to call audio and emits recognized utterances. The engine
// itself is external; implementations adapt it to this callback shape.
type Capture interface {
	Start(ctx context.Context, onUtterance func(text string)) error
	Stop() error
}

// Synthesizer plays synthesized speech into the call. Speak blocks until
// playback finishes or ctx is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Answerer produces the agent's reply to a recognized utterance
type Answerer interface {
	Answer(ctx context.Context, meetingID uuid.UUID, meetingName, text string) (string, error)
}

// audioPrimer is the near-silent utterance that unlocks client audio
// playback before the first real reply.
const audioPrimer = " "

// Controller drives one agent call session: join, listen/reply loop, leave.
// One controller per call; a new call gets a new controller.
type Controller struct {
	meetingID   uuid.UUID
	meetingName string
	token       string

	transport   Transport
	capture     Capture
	synthesizer Synthesizer
	answerer    Answerer
	metrics     *metrics.Metrics

	mu          sync.Mutex
	state       State
	primed      bool
	replying    bool
	speaking    bool
	speakSeq    uint64
	speakCancel context.CancelFunc
	captureStop context.CancelFunc
	startedAt   time.Time
	endedAt     time.Time
}

// NewController creates a controller for one call session
func NewController(
	meetingID uuid.UUID,
	meetingName string,
	token string,
	transport Transport,
	capture Capture,
	synthesizer Synthesizer,
	answerer Answerer,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		meetingID:   meetingID,
		meetingName: meetingName,
		token:       token,
		transport:   transport,
		capture:     capture,
		synthesizer: synthesizer,
		answerer:    answerer,
		metrics:     m,
		state:       StateLobby,
	}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Speaking reports whether the agent's speaking indicator is on
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Join connects the session and starts the listen/reply loop. A second Join
// on the same controller fails: each controller handles exactly one session.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateLobby {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.state = StateJoining
	c.mu.Unlock()

	if err := c.transport.Connect(ctx, c.meetingID, c.token); err != nil {
		c.mu.Lock()
		// Leave may have ended the session while the connect was failing;
		// only an undisturbed attempt goes back to the lobby.
		if c.state == StateJoining {
			c.state = StateLobby
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to connect call transport: %w", err)
	}

	captureCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.state != StateJoining {
		// Leave was accepted while the transport was connecting. The session
		// is over; do not promote and do not start capture.
		c.mu.Unlock()
		cancel()
		if err := c.transport.Close(); err != nil {
			logger.Warn("Transport close failed",
				zap.String("meeting_id", c.meetingID.String()),
				zap.Error(err))
		}
		return ErrNotJoined
	}
	c.state = StateJoined
	c.startedAt = time.Now()
	c.captureStop = cancel
	c.mu.Unlock()

	c.primeAudio(ctx)

	if err := c.capture.Start(captureCtx, c.onUtterance); err != nil {
		cancel()
		c.teardown()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	if c.metrics != nil {
		c.metrics.CallSessionJoined()
	}

	logger.Info("Call session joined",
		zap.String("meeting_id", c.meetingID.String()))

	return nil
}

// primeAudio plays the unlock utterance exactly once per controller. Clients
// refuse autoplayed audio until something has been played; the primer is that
// something.
func (c *Controller) primeAudio(ctx context.Context) {
	c.mu.Lock()
	if c.primed {
		c.mu.Unlock()
		return
	}
	c.primed = true
	c.mu.Unlock()

	if err := c.synthesizer.Speak(ctx, audioPrimer); err != nil {
		logger.Warn("Audio primer failed",
			zap.String("meeting_id", c.meetingID.String()),
			zap.Error(err))
	}
}

// onUtterance handles one recognized utterance. Single-flight: utterances
// arriving while a reply is in progress are dropped, not queued, so the agent
// answers what was just said rather than a backlog.
func (c *Controller) onUtterance(text string) {
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateJoined || c.replying {
		c.mu.Unlock()
		return
	}
	c.replying = true
	c.mu.Unlock()

	go c.reply(text)
}

func (c *Controller) reply(text string) {
	defer func() {
		c.mu.Lock()
		c.replying = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, err := c.answerer.Answer(ctx, c.meetingID, c.meetingName, text)
	if err != nil {
		logger.Error("Reply generation failed",
			zap.String("meeting_id", c.meetingID.String()),
			zap.Error(err))
		return
	}

	if answer == "" {
		return
	}

	// Playback runs detached: the loop goes back to listening, and the next
	// reply cancels this one mid-sentence rather than queueing behind it.
	go c.speak(answer)
}

// speak cancels any in-flight synthesis and starts the new one. The speaking
// indicator turns on here and turns off only when Speak returns, whether it
// finished or was cancelled, never on a timer.
func (c *Controller) speak(text string) {
	c.mu.Lock()
	if c.state != StateJoined {
		c.mu.Unlock()
		return
	}
	if c.speakCancel != nil {
		c.speakCancel()
	}
	speakCtx, cancel := context.WithCancel(context.Background())
	c.speakSeq++
	seq := c.speakSeq
	c.speakCancel = cancel
	c.speaking = true
	c.mu.Unlock()

	err := c.synthesizer.Speak(speakCtx, text)
	cancel()

	c.mu.Lock()
	// A restart may already own the indicator; only the latest speak run
	// clears it.
	if c.speakSeq == seq {
		c.speaking = false
		c.speakCancel = nil
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Synthesis failed",
			zap.String("meeting_id", c.meetingID.String()),
			zap.Error(err))
	}
}

// Leave ends the session. Idempotent; every exit path stops capture and
// cancels any in-flight synthesis.
func (c *Controller) Leave() error {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateJoined && c.state != StateJoining {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.mu.Unlock()

	c.teardown()

	logger.Info("Call session left",
		zap.String("meeting_id", c.meetingID.String()),
		zap.Duration("duration", c.Duration()))

	return nil
}

func (c *Controller) teardown() {
	c.mu.Lock()
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
	c.speaking = false
	if c.captureStop != nil {
		c.captureStop()
		c.captureStop = nil
	}
	priorState := c.state
	c.state = StateEnded
	c.endedAt = time.Now()
	c.mu.Unlock()

	if err := c.capture.Stop(); err != nil {
		logger.Warn("Capture stop failed",
			zap.String("meeting_id", c.meetingID.String()),
			zap.Error(err))
	}

	if err := c.transport.Close(); err != nil {
		logger.Warn("Transport close failed",
			zap.String("meeting_id", c.meetingID.String()),
			zap.Error(err))
	}

	if c.metrics != nil {
		c.metrics.CallSessionEnded(string(priorState))
	}
}

// Duration is the elapsed session time, live while joined and frozen after
// Leave. Feeds the ended-call summary view.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.startedAt.IsZero() {
		return 0
	}
	if c.endedAt.IsZero() {
		return time.Since(c.startedAt)
	}
	return c.endedAt.Sub(c.startedAt)
}
