package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateServer(t *testing.T, status int, body map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")
}

func TestGenerate_Success(t *testing.T) {
	var seen map[string]any
	srv := generateServer(t, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": `{"hs_code":"7310290000","confidence":0.7}`}},
			},
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     150,
			"candidatesTokenCount": 25,
		},
	}, &seen)
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "", WithBaseURL(srv.URL))
	require.NoError(t, err)

	temp := float32(0)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		System:      "You are a customs classification expert.",
		User:        "steel storage box",
		MaxTokens:   256,
		Temperature: &temp,
		JSON:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, resp.Model)
	assert.Contains(t, resp.Text, "7310290000")
	assert.Equal(t, int64(150), resp.InputTokens)
	assert.Equal(t, int64(25), resp.OutputTokens)

	gen, ok := seen["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.NotNil(t, seen["systemInstruction"])
}

func TestGenerate_CountsThinkingTokens(t *testing.T) {
	srv := generateServer(t, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": `{"hs_code":"7326900000"}`}},
			},
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     150,
			"candidatesTokenCount": 25,
			"thoughtsTokenCount":   900,
		},
	}, nil)
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-2.5-pro", WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), GenerateRequest{User: "steel storage box"})
	require.NoError(t, err)
	assert.Equal(t, int64(150), resp.InputTokens)
	assert.Equal(t, int64(925), resp.OutputTokens)
}

func TestGenerate_APIError(t *testing.T) {
	srv := generateServer(t, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"code": 500, "message": "backend unavailable", "status": "INTERNAL"},
	}, nil)
	defer srv.Close()

	c, err := NewClient(context.Background(), "test-key", "gemini-2.5-pro", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), GenerateRequest{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
}
