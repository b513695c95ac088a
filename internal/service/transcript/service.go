package transcript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"meetassist-backend/internal/domain"
	"meetassist-backend/pkg/avatar"
	"meetassist-backend/pkg/logger"
	"meetassist-backend/pkg/resilience"

	"go.uber.org/zap"
)

// MeetingRepository defines the meeting lookups transcript serving needs
type MeetingRepository interface {
	GetByIDForUser(ctx context.Context, meetingID, userID uuid.UUID) (*domain.Meeting, error)
}

// UserRepository resolves human speakers
type UserRepository interface {
	GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error)
}

// AgentRepository resolves agent speakers
type AgentRepository interface {
	GetByIDs(ctx context.Context, agentIDs []uuid.UUID) ([]*domain.Agent, error)
}

// ArchiveFetcher reads the long-term transcript copy. Provider transcript
// URLs expire; the archive outlives them.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, meetingID uuid.UUID) ([]byte, error)
}

// Service fetches, parses and resolves meeting transcripts
type Service struct {
	meetingRepo MeetingRepository
	userRepo    UserRepository
	agentRepo   AgentRepository
	archive     ArchiveFetcher
	httpClient  *http.Client
	upstream    *resilience.Upstream
}

// NewService creates a new transcript service. The archive is optional; when
// nil, expired provider URLs surface as fetch errors.
func NewService(meetingRepo MeetingRepository, userRepo UserRepository, agentRepo AgentRepository, archive ArchiveFetcher) *Service {
	return &Service{
		meetingRepo: meetingRepo,
		userRepo:    userRepo,
		agentRepo:   agentRepo,
		archive:     archive,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		upstream: resilience.NewUpstream("transcript_store"),
	}
}

// FetchRaw downloads the raw transcript bytes from the provider's store.
// Client errors (4xx) are permanent; everything else retries.
func (s *Service) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := s.upstream.Execute(ctx, "fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return resilience.Permanent(err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resilience.Permanent(fmt.Errorf("transcript store returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("transcript store returned %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}

	return body, nil
}

// Parse decodes line-delimited transcript JSON. Blank lines are skipped; a
// malformed line fails the whole parse rather than silently dropping speech.
func Parse(raw []byte) ([]*domain.TranscriptItem, error) {
	var items []*domain.TranscriptItem

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		item := &domain.TranscriptItem{}
		if err := json.Unmarshal(text, item); err != nil {
			return nil, fmt.Errorf("malformed transcript line %d: %w", line, err)
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}

	return items, nil
}

// PlainText flattens transcript items into "Name: text" lines for the
// summarizer prompt. Speaker names come from the given resolution map;
// unresolved ids fall back to Unknown.
func PlainText(items []*domain.TranscriptItem, speakers map[string]domain.TranscriptSpeaker) string {
	var buf bytes.Buffer
	for _, item := range items {
		name := "Unknown"
		if speaker, ok := speakers[item.SpeakerID]; ok {
			name = speaker.Name
		}
		fmt.Fprintf(&buf, "%s: %s\n", name, item.Text)
	}
	return buf.String()
}

// ResolveSpeakers maps distinct speaker ids to display identities, checking
// users first, then agents. Ids matching neither stay unmapped; rendering
// falls back to Unknown.
func (s *Service) ResolveSpeakers(ctx context.Context, items []*domain.TranscriptItem) (map[string]domain.TranscriptSpeaker, error) {
	distinct := make(map[string]struct{})
	var ids []uuid.UUID
	for _, item := range items {
		if _, seen := distinct[item.SpeakerID]; seen {
			continue
		}
		distinct[item.SpeakerID] = struct{}{}

		id, err := uuid.Parse(item.SpeakerID)
		if err != nil {
			// Non-uuid speaker ids can't match any row; leave unresolved.
			continue
		}
		ids = append(ids, id)
	}

	speakers := make(map[string]domain.TranscriptSpeaker)
	if len(ids) == 0 {
		return speakers, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user speakers: %w", err)
	}
	for _, user := range users {
		image := avatar.URI(user.Name, avatar.VariantInitials)
		if user.AvatarURL != nil && *user.AvatarURL != "" {
			image = *user.AvatarURL
		}
		speakers[user.UserID.String()] = domain.TranscriptSpeaker{
			Name:  user.Name,
			Image: image,
		}
	}

	var remaining []uuid.UUID
	for _, id := range ids {
		if _, ok := speakers[id.String()]; !ok {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) > 0 {
		agents, err := s.agentRepo.GetByIDs(ctx, remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve agent speakers: %w", err)
		}
		for _, agent := range agents {
			speakers[agent.AgentID.String()] = domain.TranscriptSpeaker{
				Name:  agent.Name,
				Image: avatar.URI(agent.Name, avatar.VariantBotttsNeutral),
			}
		}
	}

	return speakers, nil
}

// GetForMeeting returns the resolved transcript for a meeting the caller
// owns. Every entry carries a display identity; speakers matching no user or
// agent render as Unknown with a deterministic fallback avatar.
func (s *Service) GetForMeeting(ctx context.Context, meetingID, userID uuid.UUID) ([]*domain.TranscriptEntry, error) {
	meeting, err := s.meetingRepo.GetByIDForUser(ctx, meetingID, userID)
	if err != nil {
		return nil, err
	}

	if meeting.TranscriptURL == nil || *meeting.TranscriptURL == "" {
		return []*domain.TranscriptEntry{}, nil
	}

	raw, err := s.FetchRaw(ctx, *meeting.TranscriptURL)
	if err != nil {
		if s.archive == nil {
			return nil, err
		}

		logger.Warn("Transcript store fetch failed, reading archive copy",
			zap.String("meeting_id", meetingID.String()),
			zap.Error(err))
		raw, err = s.archive.Fetch(ctx, meetingID)
		if err != nil {
			return nil, err
		}
	}

	items, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	speakers, err := s.ResolveSpeakers(ctx, items)
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.TranscriptEntry, 0, len(items))
	for _, item := range items {
		speaker, ok := speakers[item.SpeakerID]
		if !ok {
			speaker = domain.TranscriptSpeaker{
				Name:  "Unknown",
				Image: avatar.URI("Unknown", avatar.VariantInitials),
			}
		}
		entries = append(entries, &domain.TranscriptEntry{
			StartTS: item.StartTS,
			Text:    item.Text,
			User:    speaker,
		})
	}

	logger.Debug("Transcript resolved",
		zap.String("meeting_id", meetingID.String()),
		zap.Int("entries", len(entries)),
		zap.Int("speakers", len(speakers)))

	return entries, nil
}
