package currency

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

const cacheKey = "currency_rates"

// Upstream is the feed boundary; satisfied by client.HTTPClient.
type Upstream interface {
	Get(ctx context.Context, url string) ([]byte, int, error)
}

// upstreamRate is one record as published by the third-party feed.
type upstreamRate struct {
	Nombre    string  `json:"nombre"`
	Compra    float64 `json:"compra"`
	Venta     float64 `json:"venta"`
	Variacion float64 `json:"variacion"`
}

// fallbackNames drives the zero-valued set served when the upstream is
// unreachable, so clients always render the same row layout.
var fallbackNames = []string{"Dólar Oficial", "Dólar Blue", "Euro", "Real"}

// Service proxies the third-party currency feed, reshaping its records
// into the fixed rate schema and caching the result for the currency TTL.
type Service struct {
	upstream Upstream
	cache    types.CacheStore
	logger   types.Logger
	config   *types.CurrencyConfig
}

func NewService(upstream Upstream, cache types.CacheStore, logger types.Logger, config *types.CurrencyConfig) *Service {
	return &Service{
		upstream: upstream,
		cache:    cache,
		logger:   logger,
		config:   config,
	}
}

// GetRates returns the current rate set. The second result is false when
// the upstream failed and the zero-valued fallback is being served; the
// HTTP layer maps that to a 500 with caching disabled.
func (s *Service) GetRates(ctx context.Context) ([]types.CurrencyRate, bool) {
	if s.config == nil || !s.config.Enabled {
		return FallbackRates(), false
	}

	var cached []types.CurrencyRate
	if s.cache != nil && s.cache.Get(cacheKey, types.ContentCurrency, &cached) {
		return cached, true
	}

	body, statusCode, err := s.upstream.Get(ctx, s.config.Upstream)
	if err != nil {
		s.logger.Warn("Currency upstream request failed",
			zap.Int("status_code", statusCode),
			zap.Error(err))
		return FallbackRates(), false
	}

	rates, err := reshape(body)
	if err != nil {
		s.logger.Warn("Currency upstream payload rejected",
			zap.Error(err))
		return FallbackRates(), false
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(cacheKey, rates, types.ContentCurrency); cacheErr != nil {
			s.logger.Debug("Currency rates not cached",
				zap.Error(cacheErr))
		}
	}

	return rates, true
}

// FallbackRates is the fixed zero-valued set served on upstream failure.
func FallbackRates() []types.CurrencyRate {
	rates := make([]types.CurrencyRate, 0, len(fallbackNames))
	for _, name := range fallbackNames {
		rates = append(rates, types.CurrencyRate{Name: name})
	}
	return rates
}

func reshape(body []byte) ([]types.CurrencyRate, error) {
	var raw []upstreamRate
	if err := utils.Unmarshal(body, &raw); err != nil {
		return nil, types.Errorf(types.ErrClientResponseInvalid, "currency feed: %v", err)
	}

	rates := make([]types.CurrencyRate, 0, len(raw))
	for _, record := range raw {
		name := strings.TrimSpace(record.Nombre)
		if name == "" {
			continue
		}
		rates = append(rates, types.CurrencyRate{
			Name:   name,
			Buy:    record.Compra,
			Sell:   record.Venta,
			Change: record.Variacion,
		})
	}

	if len(rates) == 0 {
		return nil, types.Errorf(types.ErrClientResponseInvalid, "currency feed: no usable records")
	}

	return rates, nil
}

// CacheControl is the caching directive for successful rate responses.
func CacheControl() string {
	return "public, max-age=900, stale-while-revalidate=1800"
}
