package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/interview-voice-lab/internal/logging"
)

// ErrVendorRejected marks a token exchange the vendor refused outright; a
// retry with the same key cannot succeed.
var ErrVendorRejected = errors.New("vendor rejected credentials")

const (
	tokenAttempts = 3
	tokenTimeout  = 5 * time.Second
)

// Credential is a short-lived token issued by a speech vendor's token
// endpoint. Fetched once at voice-session start; there is no refresh — a
// new session fetches a new token.
type Credential struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// FetchCredential exchanges the server-side API key for a one-shot client
// token. Transport failures and vendor 5xx/429 responses are retried with
// backoff; any other rejection is final and wraps ErrVendorRejected.
func FetchCredential(ctx context.Context, client *http.Client, url, apiKey, correlationID string) (Credential, error) {
	if client == nil {
		client = &http.Client{Timeout: tokenTimeout}
	}
	var lastErr error
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Credential{}, ctx.Err()
			case <-time.After(time.Duration(200*(1<<(attempt-2))) * time.Millisecond):
			}
		}
		cred, err := fetchToken(ctx, client, url, apiKey)
		if err == nil {
			return cred, nil
		}
		lastErr = err
		if errors.Is(err, ErrVendorRejected) {
			break
		}
		logging.Debugw("token fetch attempt failed",
			"attempt", attempt, "err", err, "correlation_id", correlationID)
	}
	return Credential{}, fmt.Errorf("token fetch: %w", lastErr)
}

// fetchToken performs one exchange. The response body is fully consumed
// before the attempt context is released, so decoding never races the
// cancellation.
func fetchToken(ctx context.Context, client *http.Client, url, apiKey string) (Credential, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, "POST", url, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Credential{}, fmt.Errorf("token endpoint status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Credential{}, fmt.Errorf("token endpoint status %d: %w", resp.StatusCode, ErrVendorRejected)
	}

	var cred Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return Credential{}, fmt.Errorf("token decode: %w", err)
	}
	if cred.Token == "" {
		return Credential{}, fmt.Errorf("token endpoint returned empty token: %w", ErrVendorRejected)
	}
	return cred, nil
}
