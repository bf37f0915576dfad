package pictureapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/picturebook/internal/domain"
)

func newTestClient(url string, retry RetryPolicy) (*Client, *[]time.Duration) {
	c := NewClient(url, 5*time.Second, retry)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"prompt": "a pill bug"}, body)

		_, _ = w.Write([]byte(`{"format":"png","image":"iVBORw0KGgo="}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server.URL, RetryPolicy{Delay: time.Second, MaxRetries: 3})
	payload, err := c.Generate(context.Background(), "a pill bug")
	require.NoError(t, err)
	assert.Equal(t, &domain.ImagePayload{Format: "png", Image: "iVBORw0KGgo="}, payload)
	assert.Empty(t, *slept)
}

func TestGenerateAcceptsImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"image_url":"https://example.com/a.png"}`))
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, RetryPolicy{})
	payload, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", payload.ImageURL)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 4 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"format":"png","image":"aGk="}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server.URL, RetryPolicy{Delay: 30 * time.Second, MaxServerErrorRetries: 10, MaxRetries: 3})
	payload, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "aGk=", payload.Image)
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}, *slept)
}

func TestGenerateGivesUpAfterServerErrorBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, RetryPolicy{MaxServerErrorRetries: 2, MaxRetries: 1})
	_, err := c.Generate(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	// 1 initial + 2 server error retries + 1 general retry
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestGenerateRetriesOtherFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"format":"png"}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server.URL, RetryPolicy{Delay: time.Millisecond, MaxServerErrorRetries: 10, MaxRetries: 3})
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrNoImage)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
	assert.Len(t, *slept, 3)
}

func TestGenerateBadRequestIsNotServerRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"bad prompt"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, RetryPolicy{MaxServerErrorRetries: 10})
	_, err := c.Generate(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad prompt")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGenerateMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL, RetryPolicy{})
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestGenerateStopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.URL, 5*time.Second, RetryPolicy{Delay: time.Hour, MaxServerErrorRetries: 10})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := c.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second, RetryPolicy{})
	data, err := c.Download(context.Background(), server.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	_, err = c.Download(context.Background(), server.URL+"/missing.png")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
