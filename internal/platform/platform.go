// Package platform talks to the community content platform that hosts
// approved campaigns as posts.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/typeers/backend/internal/logger"
)

var (
	ErrRateLimited  = errors.New("rate limited by platform")
	ErrUnauthorized = errors.New("platform rejected credentials")
)

// ContentPlatform creates posts and comments. Calls are made once and never
// retried by callers.
type ContentPlatform interface {
	CreatePost(ctx context.Context, communityID, title string) (string, error)
	PostComment(ctx context.Context, postID, text string) error
}

// HTTPClient is a ContentPlatform backed by a JSON HTTP API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type apiResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid platform url: %w", err)
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}, nil
}

func (c *HTTPClient) apiCall(ctx context.Context, path string, params map[string]interface{}) (*apiResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	}

	var result apiResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("platform response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("platform API error %d: %s", resp.StatusCode, result.Error)
	}
	return &result, nil
}

func (c *HTTPClient) CreatePost(ctx context.Context, communityID, title string) (string, error) {
	resp, err := c.apiCall(ctx, "/posts", map[string]interface{}{
		"community_id": communityID,
		"title":        title,
	})
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("create post: empty post id")
	}
	return resp.ID, nil
}

func (c *HTTPClient) PostComment(ctx context.Context, postID, text string) error {
	if _, err := c.apiCall(ctx, "/posts/"+url.PathEscape(postID)+"/comments", map[string]interface{}{
		"text": text,
	}); err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	return nil
}

// LocalPlatform keeps posts in memory. Used in development when no platform
// URL is configured.
type LocalPlatform struct {
	mu       sync.Mutex
	posts    map[string]string
	comments map[string][]string
}

func NewLocalPlatform() *LocalPlatform {
	return &LocalPlatform{
		posts:    make(map[string]string),
		comments: make(map[string][]string),
	}
}

func (p *LocalPlatform) CreatePost(ctx context.Context, communityID, title string) (string, error) {
	id := "post_" + uuid.NewString()[:8]

	p.mu.Lock()
	p.posts[id] = title
	p.mu.Unlock()

	logger.FromContext(ctx).Info().Str("post_id", id).Str("community_id", communityID).Str("title", title).Msg("local post created")
	return id, nil
}

func (p *LocalPlatform) PostComment(ctx context.Context, postID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.posts[postID]; !ok {
		return fmt.Errorf("post %s not found", postID)
	}
	p.comments[postID] = append(p.comments[postID], text)
	return nil
}

// Comments returns the comments left on a local post.
func (p *LocalPlatform) Comments(postID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.comments[postID]...)
}

// Title returns the title of a local post.
func (p *LocalPlatform) Title(postID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posts[postID]
}
