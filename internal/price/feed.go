// =============================
// File: internal/price/feed.go
// =============================
package price

import (
	"context"
	"errors"
	"fmt"

	"github.com/rovshanmuradov/pump-assistant/internal/utils/metrics"
	"go.uber.org/zap"
)

// ErrPriceUnavailable возвращается, когда ни один источник не дал цену.
var ErrPriceUnavailable = errors.New("price unavailable")

// Source: источник котировок.
type Source interface {
	Name() string
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// Feed опрашивает основной источник и при ошибке или нулевой цене
// переходит к резервному.
type Feed struct {
	primary  Source
	fallback Source
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewFeed(primary, fallback Source, logger *zap.Logger, m *metrics.Collector) *Feed {
	return &Feed{
		primary:  primary,
		fallback: fallback,
		logger:   logger.Named("price_feed"),
		metrics:  m,
	}
}

// GetPrice returns a positive price or ErrPriceUnavailable joined with the
// per-source errors.
func (f *Feed) GetPrice(ctx context.Context, mint string) (float64, error) {
	var errs []error
	for _, src := range []Source{f.primary, f.fallback} {
		if src == nil {
			continue
		}
		value, err := src.GetPrice(ctx, mint)
		if err == nil && value <= 0 {
			err = errors.New("no price")
		}
		f.metrics.RecordPriceFetch(src.Name(), err == nil)
		if err == nil {
			return value, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		f.logger.Debug("Price source failed",
			zap.String("source", src.Name()),
			zap.String("mint", mint),
			zap.Error(err))
	}
	return 0, errors.Join(append([]error{ErrPriceUnavailable}, errs...)...)
}
