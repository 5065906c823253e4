package ai

import (
	"fmt"
	"strings"

	"github.com/rovshanmuradov/pump-assistant/internal/validator"
)

const systemPrompt = "You are a cautious analyst of Solana meme tokens launched on Pump.fun. " +
	"Give a short assessment, then 3-5 bullet points starting with \"- \", " +
	"and end with one word: BUY, HOLD or AVOID."

func buildPrompt(mint string, meta Metadata, v validator.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token: %s (%s)\n", meta.Symbol, meta.Name)
	fmt.Fprintf(&b, "Mint: %s\n", mint)
	if meta.PriceUsd > 0 {
		fmt.Fprintf(&b, "Price: $%.10f\n", meta.PriceUsd)
	}
	fmt.Fprintf(&b, "Liquidity: $%.0f\n", v.Liquidity)
	fmt.Fprintf(&b, "Market cap: $%.0f\n", v.MarketCap)
	fmt.Fprintf(&b, "Holders (top accounts): %d, top holder %.1f%%\n", v.HolderCount, v.TopHolderPercent)
	fmt.Fprintf(&b, "Mint authority active: %t, freeze authority active: %t\n", v.CanMint, v.CanFreeze)
	fmt.Fprintf(&b, "Risk score: %d/10\n", v.RiskScore)
	if len(v.Reasons) > 0 {
		b.WriteString("Risk flags:\n")
		for _, r := range v.Reasons {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}
