package callprovider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meetassist-backend/pkg/logger"

	"go.uber.org/zap"
)

// Config contains credentials for the video call provider
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// User is the identity registered with the call provider
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// Client talks to the video call provider's server-side REST API
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new call provider client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// VerifySignature checks a webhook body against its x-signature header.
// The signature is the hex HMAC-SHA256 of the exact raw body bytes under the
// API secret; any re-serialization of the body breaks it.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// APIKey returns the configured provider API key
func (c *Client) APIKey() string {
	return c.cfg.APIKey
}

// GenerateUserToken issues a short-lived provider token for a user.
// The provider validates tokens signed with the shared API secret (HS256).
func (c *Client) GenerateUserToken(userID string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(validity).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign user token: %w", err)
	}

	return signed, nil
}

// serverToken issues the server-side token used on REST calls
func (c *Client) serverToken() (string, error) {
	claims := jwt.MapClaims{
		"server": true,
		"iat":    time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign server token: %w", err)
	}

	return signed, nil
}

// UpsertUser registers or refreshes an identity with the call provider
func (c *Client) UpsertUser(ctx context.Context, user User) error {
	payload := map[string]any{
		"users": map[string]User{
			user.ID: user,
		},
	}

	if err := c.do(ctx, http.MethodPost, "/users", payload); err != nil {
		return fmt.Errorf("failed to upsert call user: %w", err)
	}

	return nil
}

// ProvisionCall creates the provider call for a meeting. The call id equals
// the meeting id so webhook events map straight back to the row. Transcription
// and recording are switched to auto-on so the post-call pipeline always has
// input to work with.
func (c *Client) ProvisionCall(ctx context.Context, meetingID uuid.UUID, meetingName string, createdByID uuid.UUID) error {
	payload := map[string]any{
		"data": map[string]any{
			"created_by_id": createdByID.String(),
			"custom": map[string]string{
				"meetingId":   meetingID.String(),
				"meetingName": meetingName,
			},
			"settings_override": map[string]any{
				"transcription": map[string]any{
					"language":            "en",
					"mode":                "auto-on",
					"closed_caption_mode": "auto-on",
				},
				"recording": map[string]any{
					"mode":    "auto-on",
					"quality": "1080p",
				},
			},
		},
	}

	path := fmt.Sprintf("/call/default/%s?create=true", meetingID)
	if err := c.do(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("failed to provision call: %w", err)
	}

	logger.Info("Provider call provisioned",
		zap.String("meeting_id", meetingID.String()),
		zap.String("meeting_name", meetingName))

	return nil
}

// EndCall marks a provider call as ended
func (c *Client) EndCall(ctx context.Context, meetingID uuid.UUID) error {
	path := fmt.Sprintf("/call/default/%s/mark_ended", meetingID)
	if err := c.do(ctx, http.MethodPost, path, struct{}{}); err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.cfg.BaseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.serverToken()
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("stream-auth-type", "jwt")
	q := req.URL.Query()
	q.Set("api_key", c.cfg.APIKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(data))
	}

	return nil
}
