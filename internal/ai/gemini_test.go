package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/prospector/internal/logger"
)

func geminiStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("x-goog-api-key"))
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"parts": []map[string]any{{"text": reply}},
				}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, srv.Client(), logger.NewNoOp())
}

func TestExpandKeywords(t *testing.T) {
	t.Parallel()

	srv := geminiStub(t, `["Bulk Widgets", "widget wholesale", "  "]`)
	defer srv.Close()

	variants, err := newTestClient(t, srv).ExpandKeywords(t.Context(), "widgets", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk widgets", "widget wholesale"}, variants)
}

func TestExpandKeywordsStripsCodeFence(t *testing.T) {
	t.Parallel()

	srv := geminiStub(t, "```json\n[\"widget store\"]\n```")
	defer srv.Close()

	variants, err := newTestClient(t, srv).ExpandKeywords(t.Context(), "widgets", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"widget store"}, variants)
}

func TestClassifyRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"yes", "YES", true},
		{"yes with trailing text", "YES, it sells widgets.", true},
		{"no", "NO", false},
		{"lowercase yes", "yes", true},
		{"unexpected text", "It depends.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := geminiStub(t, tt.reply)
			defer srv.Close()

			got, err := newTestClient(t, srv).ClassifyRelevance(
				t.Context(), "acme.com", "We sell widgets.", []string{"widgets"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoAPIKey(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, nil, logger.NewNoOp())
	assert.False(t, c.Available())

	_, err := c.ExpandKeywords(t.Context(), "widgets", 5)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = c.ClassifyRelevance(t.Context(), "acme.com", "", nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `["a"]`, stripCodeFences("```json\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripCodeFences("```\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripCodeFences(`["a"]`))
}
