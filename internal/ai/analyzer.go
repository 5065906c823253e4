// =============================
// File: internal/ai/analyzer.go
// =============================
package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rovshanmuradov/pump-assistant/internal/validator"
	"go.uber.org/zap"
)

// Recommendation: итоговая рекомендация по токену.
type Recommendation string

const (
	RecommendBuy   Recommendation = "BUY"
	RecommendHold  Recommendation = "HOLD"
	RecommendAvoid Recommendation = "AVOID"
)

const (
	// AvoidRiskScore и выше всегда дает AVOID.
	AvoidRiskScore = 7
	// BuyRiskCeiling: текстовый BUY выше этого риска понижается до HOLD.
	BuyRiskCeiling = 4

	maxKeyPoints   = 5
	defaultTimeout = 30 * time.Second
)

var (
	// целые слова: "struggle" и "drug" не должны давать AVOID
	avoidPattern = regexp.MustCompile(`\b(avoid|scam|scams|rug|rugs|rugged|rugpull)\b`)
	buyPattern   = regexp.MustCompile(`\bbuy\b`)
	// "do not buy", "wouldn't buy", "never buy this": отрицание в пределах
	// двух слов перед buy
	negatedBuyPattern = regexp.MustCompile(`\b(not|no|never|don't|dont|wouldn't|shouldn't|won't)\s+(\w+\s+){0,2}?buy\b`)

	errDisabled = errors.New("ai analysis disabled: no api key")
)

// Metadata: то, что известно о токене помимо проверки.
type Metadata struct {
	Symbol   string
	Name     string
	PriceUsd float64
}

// Analysis is the structured outcome of AnalyzeToken.
type Analysis struct {
	Summary        string
	Recommendation Recommendation
	Confidence     int
	KeyPoints      []string
	Degraded       bool
}

// Config настраивает адаптер.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	Timeout         time.Duration
	MinLiquidityUsd float64
	MinMarketCapUsd float64
}

// Analyzer запрашивает у модели качественную оценку и выводит из нее
// рекомендацию с учетом риск-скоринга.
type Analyzer struct {
	client *completionClient
	cfg    Config
	logger *zap.Logger
}

func NewAnalyzer(cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	a := &Analyzer{cfg: cfg, logger: logger.Named("ai")}
	if cfg.APIKey != "" {
		a.client = newCompletionClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.Timeout)
	}
	return a
}

// Enabled reports whether inference is configured.
func (a *Analyzer) Enabled() bool {
	return a.client != nil
}

// AnalyzeToken never fails: degraded validation, disabled inference and
// inference errors all produce the deterministic fallback.
func (a *Analyzer) AnalyzeToken(ctx context.Context, mint string, meta Metadata, v validator.Result) Analysis {
	if v.Degraded {
		return a.fallback(v)
	}
	if !a.Enabled() {
		a.logger.Debug("Using fallback analysis", zap.String("mint", mint), zap.Error(errDisabled))
		return a.fallback(v)
	}

	text, err := a.client.complete(ctx, systemPrompt, buildPrompt(mint, meta, v))
	if err != nil {
		a.logger.Warn("AI inference failed, using fallback", zap.String("mint", mint), zap.Error(err))
		return a.fallback(v)
	}

	points := extractKeyPoints(text)
	if len(points) == 0 {
		points = reasonsAsPoints(v)
	}

	return Analysis{
		Summary:        text,
		Recommendation: DeriveRecommendation(text, v.RiskScore),
		Confidence:     a.Confidence(v),
		KeyPoints:      points,
	}
}

// DeriveRecommendation combines keyword matching on the model text with the
// risk score guardrails.
func DeriveRecommendation(text string, riskScore int) Recommendation {
	if riskScore >= AvoidRiskScore {
		return RecommendAvoid
	}
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	if avoidPattern.MatchString(lower) {
		return RecommendAvoid
	}
	if buyPattern.MatchString(lower) && !negatedBuyPattern.MatchString(lower) {
		if riskScore > BuyRiskCeiling {
			return RecommendHold
		}
		return RecommendBuy
	}
	return RecommendHold
}

// Confidence считается независимо от текста модели.
func (a *Analyzer) Confidence(v validator.Result) int {
	c := 100 - v.RiskScore*10
	if a.cfg.MinLiquidityUsd > 0 && v.Liquidity >= 2*a.cfg.MinLiquidityUsd {
		c += 10
	}
	if a.cfg.MinMarketCapUsd > 0 && v.MarketCap >= 2*a.cfg.MinMarketCapUsd {
		c += 10
	}
	if !v.CanMint {
		c += 10
	}
	if !v.CanFreeze {
		c += 5
	}
	return clamp(c, 0, 100)
}

func (a *Analyzer) fallback(v validator.Result) Analysis {
	analysis := Analysis{
		Confidence: a.Confidence(v),
		KeyPoints:  reasonsAsPoints(v),
		Degraded:   true,
	}
	switch {
	case v.RiskScore <= 3:
		analysis.Recommendation = RecommendBuy
		analysis.Summary = fmt.Sprintf("Low risk profile (score %d/10). On-chain signals look acceptable; size the position conservatively.", v.RiskScore)
	case v.RiskScore <= 6:
		analysis.Recommendation = RecommendHold
		analysis.Summary = fmt.Sprintf("Moderate risk (score %d/10). Several warning signs present; wait for better conditions.", v.RiskScore)
	default:
		analysis.Recommendation = RecommendAvoid
		analysis.Summary = fmt.Sprintf("High risk (score %d/10). Multiple red flags detected; avoid this token.", v.RiskScore)
	}
	if v.Degraded {
		analysis.Summary += " Validation data was unavailable."
	}
	return analysis
}

func extractKeyPoints(text string) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		point, ok := stripBullet(line)
		if !ok || point == "" {
			continue
		}
		points = append(points, point)
		if len(points) == maxKeyPoints {
			break
		}
	}
	return points
}

func stripBullet(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	// "1. ", "2) "
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:]), true
	}
	return "", false
}

func reasonsAsPoints(v validator.Result) []string {
	if len(v.Reasons) == 0 {
		return []string{"No major risk flags detected"}
	}
	if len(v.Reasons) > maxKeyPoints {
		return append([]string(nil), v.Reasons[:maxKeyPoints]...)
	}
	return append([]string(nil), v.Reasons...)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
