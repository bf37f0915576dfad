package plotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/basel-ax/picturebook/internal/domain"
)

var (
	// ErrNoAnswer is returned when the response has no "answer" field
	ErrNoAnswer = errors.New("response contains no answer")
	// ErrNoJSONBlock is returned when the answer has no fenced json block
	ErrNoJSONBlock = errors.New("answer contains no json block")
)

const (
	fenceStart = "```json\n"
	fenceEnd   = "\n```"
)

// Client represents the plot endpoint client
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient creates a new plot endpoint client
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

type page struct {
	Page             *int    `json:"page"`
	PageText         *string `json:"PageText"`
	IllustrationIdea *string `json:"IllustrationIdea"`
}

// GenerateBook posts the prompt and parses the pages out of the answer
func (c *Client) GenerateBook(ctx context.Context, prompt string) ([]domain.BookPage, error) {
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

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Answer == "" {
		return nil, ErrNoAnswer
	}

	return ParseAnswer(result.Answer)
}

// ParseAnswer extracts the pages from the fenced json block of an answer.
// Entries missing a page number, text or illustration idea are skipped and
// the rest is ordered by page number.
func ParseAnswer(answer string) ([]domain.BookPage, error) {
	start := strings.Index(answer, fenceStart)
	if start < 0 {
		return nil, ErrNoJSONBlock
	}
	rest := answer[start+len(fenceStart):]
	end := strings.Index(rest, fenceEnd)
	if end < 0 {
		return nil, ErrNoJSONBlock
	}

	var raw []page
	if err := json.Unmarshal([]byte(rest[:end]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse pages: %w", err)
	}

	pages := make([]domain.BookPage, 0, len(raw))
	for _, p := range raw {
		if p.Page == nil || p.PageText == nil || p.IllustrationIdea == nil {
			continue
		}
		pages = append(pages, domain.BookPage{
			PageNumber:       *p.Page,
			Text:             *p.PageText,
			IllustrationIdea: *p.IllustrationIdea,
			Status:           domain.PageLoading,
		})
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})

	return pages, nil
}
