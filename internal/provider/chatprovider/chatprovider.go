package chatprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config contains credentials for the chat provider
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// User is the identity a message is posted as
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// Client talks to the chat provider's server-side REST API
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new chat provider client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GenerateUserToken issues a provider token for a chat user (HS256 under the
// shared API secret)
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
		return "", fmt.Errorf("failed to sign chat token: %w", err)
	}

	return signed, nil
}

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

// UpsertUser registers or refreshes a chat identity. Agents are upserted
// before every reply so their name and avatar stay current.
func (c *Client) UpsertUser(ctx context.Context, user User) error {
	payload := map[string]any{
		"users": map[string]User{
			user.ID: user,
		},
	}

	if err := c.do(ctx, http.MethodPost, "/users", payload); err != nil {
		return fmt.Errorf("failed to upsert chat user: %w", err)
	}

	return nil
}

// SendMessage posts a message into a messaging channel as the given identity
func (c *Client) SendMessage(ctx context.Context, channelID string, sender User, text string) error {
	payload := map[string]any{
		"message": map[string]any{
			"text":    text,
			"user_id": sender.ID,
			"user":    sender,
		},
	}

	path := fmt.Sprintf("/channels/messaging/%s/message", channelID)
	if err := c.do(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
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
