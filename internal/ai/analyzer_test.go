package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rovshanmuradov/pump-assistant/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, testMint)

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
}

func testConfig(baseURL string) Config {
	return Config{
		APIKey:          "sk-test",
		BaseURL:         baseURL,
		Model:           "test-model",
		MinLiquidityUsd: 5000,
		MinMarketCapUsd: 10000,
	}
}

func TestAnalyzeToken_ModelBuy(t *testing.T) {
	text := "Healthy launch with revoked authorities.\n- Liquidity is deep\n- Holders are spread\n* Momentum is strong\nVerdict: BUY"
	srv := completionServer(t, http.StatusOK, text)
	defer srv.Close()

	a := NewAnalyzer(testConfig(srv.URL), zaptest.NewLogger(t))
	v := validator.Result{RiskScore: 2, Liquidity: 20000, MarketCap: 50000, IsValid: true}

	got := a.AnalyzeToken(context.Background(), testMint, Metadata{Symbol: "POP"}, v)

	assert.Equal(t, RecommendBuy, got.Recommendation)
	assert.False(t, got.Degraded)
	assert.Equal(t, []string{"Liquidity is deep", "Holders are spread", "Momentum is strong"}, got.KeyPoints)
	assert.Equal(t, text, got.Summary)
	// 100 - 20 + 10 + 10 + 10 + 5
	assert.Equal(t, 100, got.Confidence)
}

func TestAnalyzeToken_InferenceFailureFallsBack(t *testing.T) {
	srv := completionServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()

	a := NewAnalyzer(testConfig(srv.URL), zaptest.NewLogger(t))
	v := validator.Result{RiskScore: 5, Reasons: []string{"Mint authority is active", "Only 4 holders"}}

	got := a.AnalyzeToken(context.Background(), testMint, Metadata{}, v)

	assert.True(t, got.Degraded)
	assert.Equal(t, RecommendHold, got.Recommendation)
	assert.Equal(t, v.Reasons, got.KeyPoints)
}

func TestAnalyzeToken_DisabledWithoutKey(t *testing.T) {
	a := NewAnalyzer(Config{MinLiquidityUsd: 5000, MinMarketCapUsd: 10000}, zaptest.NewLogger(t))
	assert.False(t, a.Enabled())

	got := a.AnalyzeToken(context.Background(), testMint, Metadata{}, validator.Result{RiskScore: 1})
	assert.True(t, got.Degraded)
	assert.Equal(t, RecommendBuy, got.Recommendation)
	assert.Equal(t, []string{"No major risk flags detected"}, got.KeyPoints)
}

func TestAnalyzeToken_DegradedValidationSkipsModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("model must not be called for degraded validation")
	}))
	defer srv.Close()

	a := NewAnalyzer(testConfig(srv.URL), zaptest.NewLogger(t))
	got := a.AnalyzeToken(context.Background(), testMint, Metadata{}, validator.Degraded("rpc down"))

	assert.True(t, got.Degraded)
	assert.Equal(t, RecommendAvoid, got.Recommendation)
	assert.Equal(t, 0, got.Confidence)
	assert.Contains(t, got.Summary, "unavailable")
}

func TestDeriveRecommendation(t *testing.T) {
	tests := []struct {
		name string
		text string
		risk int
		want Recommendation
	}{
		{"high risk overrides buy", "Strong BUY", 7, RecommendAvoid},
		{"scam keyword", "Looks like a scam, but could buy", 1, RecommendAvoid},
		{"rug keyword", "classic rug setup", 0, RecommendAvoid},
		{"buy under ceiling", "I would buy a small bag", 4, RecommendBuy},
		{"buy above ceiling downgraded", "buy", 5, RecommendHold},
		{"no keywords", "Wait and see", 2, RecommendHold},
		{"rug inside struggle", "Price may struggle short term, could buy the dip", 2, RecommendBuy},
		{"rug inside drug", "Not a drug reference, just a meme; buy small", 2, RecommendBuy},
		{"rugpull word", "Smells like a rugpull", 1, RecommendAvoid},
		{"negated buy", "I would not buy this yet", 2, RecommendHold},
		{"do not buy", "Do not buy", 1, RecommendHold},
		{"curly apostrophe negation", "I don’t buy the hype", 1, RecommendHold},
		{"buy inside another word", "Buyers are thin here", 1, RecommendHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRecommendation(tt.text, tt.risk))
		})
	}
}

func TestConfidence_Clamped(t *testing.T) {
	a := NewAnalyzer(Config{MinLiquidityUsd: 5000, MinMarketCapUsd: 10000}, zaptest.NewLogger(t))

	best := validator.Result{RiskScore: 0, Liquidity: 1e6, MarketCap: 1e7}
	assert.Equal(t, 100, a.Confidence(best), "would be 145 without clamping")

	worst := validator.Result{RiskScore: 10, CanMint: true, CanFreeze: true}
	assert.Equal(t, 0, a.Confidence(worst))

	mid := validator.Result{RiskScore: 6, CanMint: true, CanFreeze: false, Liquidity: 10000}
	assert.Equal(t, 100-60+10+5, a.Confidence(mid))
}

func TestFallbackTiers(t *testing.T) {
	a := NewAnalyzer(Config{}, zaptest.NewLogger(t))
	assert.Equal(t, RecommendBuy, a.fallback(validator.Result{RiskScore: 3}).Recommendation)
	assert.Equal(t, RecommendHold, a.fallback(validator.Result{RiskScore: 4}).Recommendation)
	assert.Equal(t, RecommendHold, a.fallback(validator.Result{RiskScore: 6}).Recommendation)
	assert.Equal(t, RecommendAvoid, a.fallback(validator.Result{RiskScore: 7}).Recommendation)
}

func TestExtractKeyPoints_Limit(t *testing.T) {
	text := "intro\n1. one\n2) two\n- three\n- four\n• five\n- six"
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, extractKeyPoints(text))
}
