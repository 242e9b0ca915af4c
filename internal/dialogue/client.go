// Package dialogue talks to the interview dialogue engine, the opaque
// collaborator that decides the next acknowledgment and question. The
// engine's scoring and prompting internals are black boxes here.
package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Reply is the engine's decision for one turn.
type Reply struct {
	Ack      string `json:"ack"`
	Question string `json:"question"`
	Stage    string `json:"stage"`
	Turn     int    `json:"turn"`
}

// Engine is the collaborator contract consumed by the turn orchestrator.
type Engine interface {
	HandleTurn(ctx context.Context, sessionID, utterance string) (Reply, error)
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// Client is the HTTP implementation of Engine.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClientFromEnv() *Client {
	base := os.Getenv("DIALOGUE_URL")
	key := os.Getenv("DIALOGUE_API_KEY")
	if base == "" {
		base = "http://127.0.0.1:8000/v1"
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		APIKey:  key,
		HTTP:    &http.Client{Timeout: 20 * time.Second},
	}
}

// HandleTurn posts the latest user utterance and returns the engine's
// reply. 5xx/429 and network failures are retried once after a short
// backoff and reported as transient; 4xx are permanent.
func (c *Client) HandleTurn(ctx context.Context, sessionID, utterance string) (Reply, error) {
	reply, err := c.post(ctx, sessionID, utterance)
	if err != nil && errors.Is(err, ErrTransient) {
		time.Sleep(250 * time.Millisecond)
		return c.post(ctx, sessionID, utterance)
	}
	return reply, err
}

func (c *Client) post(ctx context.Context, sessionID, utterance string) (Reply, error) {
	payload := map[string]interface{}{
		"session_id": sessionID,
		"utterance":  utterance,
	}
	bodyBytes, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/turns", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out Reply
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Reply{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		return out, nil
	}
	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return Reply{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	return Reply{}, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
}
