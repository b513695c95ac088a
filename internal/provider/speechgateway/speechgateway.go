package speechgateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// Config contains connection settings for the speech engine gateway
type Config struct {
	BaseURL string
	APIKey  string
}

// Client talks to the external speech gateway that runs the recognition and
// synthesis engines. The gateway owns the engines; this client only moves
// text across the wire.
type Client struct {
	cfg Config

	// Utterance streams stay open for the whole call; synthesis calls are
	// bounded per utterance.
	streamClient *http.Client
	speakClient  *http.Client
}

// NewClient creates a speech gateway client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:          cfg,
		streamClient: &http.Client{},
		speakClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Capture returns the recognized-utterance stream for one call session
func (c *Client) Capture(meetingID uuid.UUID) *Capture {
	return &Capture{client: c, meetingID: meetingID}
}

// Synthesizer returns the speech playback channel for one call session
func (c *Client) Synthesizer(meetingID uuid.UUID) *Synthesizer {
	return &Synthesizer{client: c, meetingID: meetingID}
}

// utterance is one recognized line from the gateway stream
type utterance struct {
	Text string `json:"text"`
}

// Capture streams recognized utterances for a call. One Capture per session.
type Capture struct {
	client    *Client
	meetingID uuid.UUID

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start opens the utterance stream and invokes onUtterance for every
// recognized line until the stream closes or Stop is called.
func (cp *Capture) Start(ctx context.Context, onUtterance func(text string)) error {
	cp.mu.Lock()
	if cp.cancel != nil {
		cp.mu.Unlock()
		return fmt.Errorf("capture already started")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cp.cancel = cancel
	cp.done = make(chan struct{})
	done := cp.done
	cp.mu.Unlock()

	// A failed open leaves the capture startable again.
	abort := func() {
		cancel()
		close(done)
		cp.mu.Lock()
		cp.cancel = nil
		cp.done = nil
		cp.mu.Unlock()
	}

	url := fmt.Sprintf("%s/sessions/%s/utterances", cp.client.cfg.BaseURL, cp.meetingID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		abort()
		return fmt.Errorf("failed to build utterance stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cp.client.cfg.APIKey)

	resp, err := cp.client.streamClient.Do(req)
	if err != nil {
		abort()
		return fmt.Errorf("failed to open utterance stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		abort()
		return fmt.Errorf("utterance stream returned %d", resp.StatusCode)
	}

	go cp.readLoop(resp.Body, done, onUtterance)

	logger.Debug("Utterance stream opened",
		zap.String("meeting_id", cp.meetingID.String()))

	return nil
}

// readLoop consumes NDJSON utterance lines until the stream ends
func (cp *Capture) readLoop(body io.ReadCloser, done chan struct{}, onUtterance func(text string)) {
	defer close(done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var u utterance
		if err := json.Unmarshal(line, &u); err != nil {
			logger.Warn("Malformed utterance line",
				zap.String("meeting_id", cp.meetingID.String()),
				zap.Error(err))
			continue
		}
		if u.Text == "" {
			continue
		}

		onUtterance(u.Text)
	}

	if err := scanner.Err(); err != nil && !isClosedErr(err) {
		logger.Warn("Utterance stream ended",
			zap.String("meeting_id", cp.meetingID.String()),
			zap.Error(err))
	}
}

func isClosedErr(err error) bool {
	return err == context.Canceled || err == io.ErrUnexpectedEOF
}

// Stop closes the utterance stream. Idempotent.
func (cp *Capture) Stop() error {
	cp.mu.Lock()
	cancel := cp.cancel
	done := cp.done
	cp.cancel = nil
	cp.done = nil
	cp.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}

	return nil
}

// Synthesizer plays synthesized speech into a call through the gateway
type Synthesizer struct {
	client    *Client
	meetingID uuid.UUID
}

// Speak sends text for synthesis and blocks until the gateway reports
// playback finished or ctx is cancelled.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal speak request: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%s/speak", s.client.cfg.BaseURL, s.meetingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build speak request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.client.cfg.APIKey)

	resp, err := s.client.speakClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speak request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
