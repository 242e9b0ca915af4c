// Package analysis fetches the aggregate score and feedback summary from
// the external response-analysis collaborator when an interview is ended
// administratively.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/interview-voice-lab/internal/session"
)

type Client struct {
	URL       string
	AuthToken string
	HTTP      *http.Client
}

// NewClientFromEnv returns nil when ANALYSIS_URL is unset; the state
// machine treats a nil summarizer as "no scoring".
func NewClientFromEnv() *Client {
	url := strings.TrimSpace(os.Getenv("ANALYSIS_URL"))
	if url == "" {
		return nil
	}
	return &Client{
		URL:       strings.TrimRight(url, "/"),
		AuthToken: strings.TrimSpace(os.Getenv("ANALYSIS_AUTH_TOKEN")),
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Summarize(ctx context.Context, sessionID string) (session.Summary, error) {
	body, _ := json.Marshal(map[string]string{"session_id": sessionID})
	req, err := http.NewRequestWithContext(ctx, "POST", c.URL+"/summaries", bytes.NewReader(body))
	if err != nil {
		return session.Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return session.Summary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return session.Summary{}, fmt.Errorf("analysis returned status %d", resp.StatusCode)
	}
	var out struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return session.Summary{}, fmt.Errorf("analysis decode: %w", err)
	}
	return session.Summary{Score: out.Score, Feedback: out.Feedback}, nil
}
