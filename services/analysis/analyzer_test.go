package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pagewatch/pkg/config"
	"pagewatch/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestParseResult(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		text    string
		matched *bool
	}{
		{
			name:    "bare json",
			raw:     `{"analysis": "Pro plan is $15/month", "matched": true}`,
			text:    "Pro plan is $15/month",
			matched: boolPtr(true),
		},
		{
			name:    "fenced json",
			raw:     "Here you go:\n```json\n{\"analysisText\": \"still $29\", \"criteriaMatched\": false}\n```",
			text:    "still $29",
			matched: boolPtr(false),
		},
		{
			name:    "embedded in prose",
			raw:     `Sure. {"text": "sold out", "matched": "no"} Let me know if you need more.`,
			text:    "sold out",
			matched: boolPtr(false),
		},
		{
			name: "plain prose",
			raw:  "The page shows the pricing table.",
			text: "The page shows the pricing table.",
		},
		{
			name: "json without verdict",
			raw:  `{"analysis": "cannot tell"}`,
			text: `{"analysis": "cannot tell"}`,
		},
		{
			name: "broken json",
			raw:  `{"analysis": "cut off", "matched": tr`,
			text: `{"analysis": "cut off", "matched": tr`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseResult(tc.raw)
			require.Equal(t, tc.text, got.Text)
			require.Equal(t, tc.raw, got.Raw)
			if tc.matched == nil {
				require.Nil(t, got.Matched)
				require.True(t, got.Degraded())
				return
			}
			require.NotNil(t, got.Matched)
			require.Equal(t, *tc.matched, *got.Matched)
		})
	}
}

func TestProvider(t *testing.T) {
	p, err := ParseProvider(" OpenAI ")
	require.NoError(t, err)
	require.True(t, p.RequiresCredentials())

	p, err = ParseProvider("ollama")
	require.NoError(t, err)
	require.False(t, p.RequiresCredentials())

	_, err = ParseProvider("gemini")
	require.Error(t, err)
}

func TestOpenAIAnalyzer_Analyze(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.Equal(t, "Bearer sk-test-0123456789abcdef", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1772355600,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"analysis\": \"price dropped to $12\", \"matched\": true}"}
			}]
		}`))
	}))
	defer server.Close()

	analyzer := NewOpenAIAnalyzer("gpt-4o-mini", server.URL)
	result, err := analyzer.Analyze(context.Background(), Request{
		Prompt: "is it cheap?",
		Image:  []byte{0x89, 'P', 'N', 'G'},
		APIKey: "sk-test-0123456789abcdef",
	})
	require.NoError(t, err)
	require.Equal(t, "price dropped to $12", result.Text)
	require.NotNil(t, result.Matched)
	require.True(t, *result.Matched)
	require.Equal(t, "gpt-4o-mini", body["model"])
	require.Contains(t, string(mustJSON(t, body["messages"])), "data:image/png;base64,")
}

func TestOpenAIAnalyzer_RequiresKey(t *testing.T) {
	_, err := NewOpenAIAnalyzer("gpt-4o-mini", "").Analyze(context.Background(), Request{Prompt: "x"})
	require.True(t, errutil.Is(err, errutil.KindConfiguration))
}

func TestOllamaAnalyzer_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llava", req["model"])
		require.Equal(t, "json", req["format"])

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"llava","created_at":"2026-03-01T09:00:00Z","message":{"role":"assistant","content":"not json at all"},"done":true}` + "\n"))
	}))
	defer server.Close()

	analyzer, err := NewOllamaAnalyzer("llava", server.URL)
	require.NoError(t, err)

	result, err := analyzer.Analyze(context.Background(), Request{Prompt: "is it cheap?", Image: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, "not json at all", result.Text)
	require.Nil(t, result.Matched)
}

func TestOllamaAnalyzer_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	analyzer, err := NewOllamaAnalyzer("llava", server.URL)
	require.NoError(t, err)

	_, err = analyzer.Analyze(context.Background(), Request{Prompt: "x"})
	require.True(t, errutil.Is(err, errutil.KindAnalysis))
}

func TestNewAnalyzer(t *testing.T) {
	cfg := &config.Config{}
	cfg.Analysis.Provider = "openai"
	a, err := NewAnalyzer(cfg)
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, a.Provider())

	cfg.Analysis.Provider = "ollama"
	cfg.Analysis.BaseURL = "http://127.0.0.1:11434"
	a, err = NewAnalyzer(cfg)
	require.NoError(t, err)
	require.Equal(t, ProviderOllama, a.Provider())
}

func boolPtr(b bool) *bool { return &b }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
