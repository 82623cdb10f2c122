package translator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// SANITIZER
// ============================================================================

func TestCleanProgram(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "result = 1", "result = 1"},
		{"fenced with tag", "```python\nresult = 1\n```", "result = 1"},
		{"fenced fql", "Here you go:\n```fql\nx = 2\nresult = x\n```\nDone.", "x = 2\nresult = x"},
		{"fenced no tag", "```\nresult = 1\n```", "result = 1"},
		{"bare tag", "Python\nresult = 1", "result = 1"},
		{"tag prefix of a name", "textual = 1", "textual = 1"},
		{"tag as variable", "text = lower(\"A\")\nresult = text", "text = lower(\"A\")\nresult = text"},
		{"json as variable", "json = 1\nresult = json", "json = 1\nresult = json"},
		{"fql as variable", "fql = 2\nresult = fql", "fql = 2\nresult = fql"},
		{"fenced variable named python", "```\npython = 3\nresult = python\n```", "python = 3\nresult = python"},
		{"tag line with trailing space", "```fql \r\nresult = 1\n```", "result = 1"},
		{"tag only", "```text\n```", ""},
		{"unclosed fence", "```python\nresult = 1", "```python\nresult = 1"},
		{"whitespace", "  \n result = 1 \n", "result = 1"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CleanProgram(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, CleanProgram(got), "idempotent")
		})
	}
}

// ============================================================================
// PROMPT
// ============================================================================

const schemaText = "DATASETS AVAILABLE:\n\n1. holdings (3 records)\n   Columns: PortfolioName (text), OpenDate (date)\n"

func TestBuildPrompt(t *testing.T) {
	req := BuildPrompt(schemaText, "What is the total quantity for Garfield?", DefaultPromptOptions())

	assert.Equal(t, "What is the total quantity for Garfield?", req.User)
	assert.Contains(t, req.System, "1. holdings (3 records)")
	assert.Contains(t, req.System, `date("04-03-2020")`)
	assert.Contains(t, req.System, `lower(PortfolioName) == "garfield"`)
	assert.Contains(t, req.System, "note = ")
	assert.Contains(t, req.System, Fallback)
	for _, fn := range []string{"filter", "group", "sum", "date", "lower", "col"} {
		assert.Contains(t, req.System, fn+"(")
	}
	assert.NotContains(t, req.System, "What is the total")
}

func TestBuildPromptWithoutCaseRule(t *testing.T) {
	req := BuildPrompt(schemaText, "q", PromptOptions{})
	assert.NotContains(t, req.System, "TEXT MATCHING RULES")
	assert.Contains(t, req.System, "DATE HANDLING RULES")
}

// ============================================================================
// GENERATORS
// ============================================================================

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderGroq})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = New(context.Background(), Config{Provider: "claude", APIKey: "k"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	g, err := New(context.Background(), DefaultConfig("k"))
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)
	assert.Equal(t, DefaultGroqModel, g.(*OpenAIGenerator).config.Model)
}

func TestGeneratorFunc(t *testing.T) {
	var g Generator = GeneratorFunc(func(_ context.Context, system, user string) (string, error) {
		return system + "|" + user, nil
	})
	out, err := g.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "s|u", out)
}

// capture records the last JSON body a fake server received.
type capture struct {
	mu   sync.Mutex
	path string
	body map[string]any
}

func (c *capture) record(t *testing.T, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = r.URL.Path
	require.NoError(t, json.Unmarshal(raw, &c.body))
}

func TestOpenAIGenerator(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		c.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"`+"```python\\nresult = 1\\n```"+`"}}],"usage":{"total_tokens":12}}`)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	g, err := New(context.Background(), cfg)
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "system prompt", "question")
	require.NoError(t, err)
	assert.Equal(t, "```python\nresult = 1\n```", out)

	assert.Equal(t, "/v1/chat/completions", c.path)
	assert.Equal(t, DefaultGroqModel, c.body["model"])
	assert.InDelta(t, 0.1, c.body["temperature"], 1e-6)
	msgs := c.body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "system prompt", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "question", msgs[1].(map[string]any)["content"])
}

func TestOpenAIGeneratorAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	cfg := DefaultConfig("bad")
	cfg.BaseURL = srv.URL
	_, err := NewOpenAI(cfg).Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestGeminiGenerator(t *testing.T) {
	var c capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.record(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"result = 2"}]}}]}`)
	}))
	defer srv.Close()

	g, err := New(context.Background(), Config{
		Provider:    ProviderGemini,
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Temperature: DefaultTemperature,
	})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "system prompt", "question")
	require.NoError(t, err)
	assert.Equal(t, "result = 2", out)

	assert.True(t, strings.HasSuffix(c.path, DefaultGeminiModel+":generateContent"), c.path)
	gen := c.body["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.1, gen["temperature"], 1e-6)
	sys := c.body["systemInstruction"].(map[string]any)
	assert.Contains(t, mustJSON(t, sys), "system prompt")
	assert.Contains(t, mustJSON(t, c.body["contents"]), "question")
}

func mustJSON(t *testing.T, v any) string {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
