// Package provider is the HTTP client for the upstream profile-metadata
// source. The upstream is untrusted and potentially slow: every call is
// bounded by the caller's context, responses are decoded defensively, and
// failures collapse into three sentinel errors.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"trustgate/internal/verification/models"
)

// profilePayload is the upstream wire format.
type profilePayload struct {
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"created_at"`
	Verified      bool      `json:"verified"`
	FollowerCount int64     `json:"follower_count"`
	FriendCount   int64     `json:"friend_count"`
	PostCount     int64     `json:"post_count"`
	MediaCount    int64     `json:"media_count"`
	FavoriteCount int64     `json:"favorite_count"`
	IsAutomated   bool      `json:"is_automated"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient builds a provider client. timeout is the hard ceiling per
// fetch, on top of whatever deadline the caller's context carries.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the public profile for a username.
func (c *Client) Fetch(ctx context.Context, username string) (models.Profile, error) {
	endpoint := fmt.Sprintf("%s/v1/profiles/%s", c.baseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Profile{}, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return models.Profile{}, ErrNotFound
	case http.StatusTooManyRequests:
		return models.Profile{}, ErrRateLimited
	default:
		if c.logger != nil {
			c.logger.Warn("unexpected provider status",
				"username", username,
				"status", resp.StatusCode,
			)
		}
		return models.Profile{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload profilePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Profile{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if payload.Username == "" {
		payload.Username = username
	}

	return models.Profile{
		Username:  payload.Username,
		CreatedAt: payload.CreatedAt,
		Verified:  payload.Verified,
		Followers: payload.FollowerCount,
		Following: payload.FriendCount,
		Posts:     payload.PostCount,
		Media:     payload.MediaCount,
		Favorites: payload.FavoriteCount,
		Automated: payload.IsAutomated,
	}, nil
}
