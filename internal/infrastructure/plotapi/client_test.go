package plotapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/picturebook/internal/domain"
)

const sampleAnswer = "Here is the book:\n```json\n" + `[
  {"IllustrationIdea": "The pill bug curls up", "PageText": "まるくなった", "page": 2},
  {"IllustrationIdea": "Siblings in the park", "PageText": "こうえんにいきました", "page": 1},
  {"PageText": "no idea", "page": 3}
]` + "\n```\nEnjoy!"

func TestParseAnswer(t *testing.T) {
	pages, err := ParseAnswer(sampleAnswer)
	require.NoError(t, err)

	want := []domain.BookPage{
		{PageNumber: 1, Text: "こうえんにいきました", IllustrationIdea: "Siblings in the park", Status: domain.PageLoading},
		{PageNumber: 2, Text: "まるくなった", IllustrationIdea: "The pill bug curls up", Status: domain.PageLoading},
	}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("ParseAnswer() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAnswerErrors(t *testing.T) {
	_, err := ParseAnswer("no fences here")
	assert.ErrorIs(t, err, ErrNoJSONBlock)

	_, err = ParseAnswer("```json\n[{}]")
	assert.ErrorIs(t, err, ErrNoJSONBlock)

	_, err = ParseAnswer("```json\n{not json}\n```")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse pages")
}

func TestGenerateBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["prompt"], "The total number of pages is 2.")
		_ = json.NewEncoder(w).Encode(map[string]string{"answer": sampleAnswer})
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	pages, err := c.GenerateBook(context.Background(), BuildPrompt(2, ""))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
}

func TestGenerateBookNoAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"other":"x"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second).GenerateBook(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestGenerateBookStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second).GenerateBook(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 502")
}

func TestBuildPrompt(t *testing.T) {
	withTheme := BuildPrompt(4, "  friendship \n")
	assert.Contains(t, withTheme, "# Theme\nfriendship\n\n")
	assert.Contains(t, withTheme, "The total number of pages is 4.")

	noTheme := BuildPrompt(3, "   ")
	assert.NotContains(t, noTheme, "# Theme")
	assert.Contains(t, noTheme, "theme is \n# Requirements")
}
