// =============================
// File: internal/price/jupiter.go
// =============================
package price

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type jupiterResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// Jupiter: резервный источник цены (price API v2, цена в USD).
type Jupiter struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewJupiter(baseURL string, logger *zap.Logger) *Jupiter {
	return &Jupiter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger.Named("jupiter"),
	}
}

func (j *Jupiter) Name() string { return "jupiter" }

// GetPrice returns 0 with nil error when the token is unknown to the API.
func (j *Jupiter) GetPrice(ctx context.Context, mint string) (float64, error) {
	var resp jupiterResponse
	if err := getJSON(ctx, j.httpClient, j.baseURL+"?ids="+url.QueryEscape(mint), &resp); err != nil {
		return 0, err
	}

	entry, ok := resp.Data[mint]
	if !ok || entry == nil || entry.Price == "" {
		return 0, nil
	}

	value, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", entry.Price, err)
	}
	return value, nil
}
