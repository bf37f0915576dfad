package pictureapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/basel-ax/picturebook/internal/domain"
)

// ErrNoImage is returned when the endpoint answers without an image
var ErrNoImage = errors.New("response contains no image")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// RetryPolicy controls how failed requests are repeated. A 500 response is
// retried up to MaxServerErrorRetries times, any other failure up to
// MaxRetries times, with Delay between attempts.
type RetryPolicy struct {
	Delay                 time.Duration
	MaxServerErrorRetries int
	MaxRetries            int
}

// Client represents the picture endpoint client
type Client struct {
	httpClient *http.Client
	url        string
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new picture endpoint client
func NewClient(url string, timeout time.Duration, retry RetryPolicy) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:   url,
		retry: retry,
		sleep: sleepContext,
	}
}

// Generate posts the prompt and returns the decoded payload, retrying
// according to the client's RetryPolicy.
func (c *Client) Generate(ctx context.Context, prompt string) (*domain.ImagePayload, error) {
	var serverErrors, failures int
	for {
		payload, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusInternalServerError && serverErrors < c.retry.MaxServerErrorRetries {
			serverErrors++
			log.Printf("Picture endpoint returned 500, retry %d/%d in %s", serverErrors, c.retry.MaxServerErrorRetries, c.retry.Delay)
		} else if failures < c.retry.MaxRetries {
			failures++
			log.Printf("Picture request failed: %v, retry %d/%d in %s", err, failures, c.retry.MaxRetries, c.retry.Delay)
		} else {
			return nil, err
		}

		if err := c.sleep(ctx, c.retry.Delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) generateOnce(ctx context.Context, prompt string) (*domain.ImagePayload, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	log.Printf("Status Code: %d", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload domain.ImagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !payload.HasImage() {
		return nil, ErrNoImage
	}

	return &payload, nil
}

// Download fetches an image referenced by URL
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
