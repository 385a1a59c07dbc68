package regime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinpilot/internal/domain"
)

var _ domain.MarketRegimeReader = (*HTTPReader)(nil)

// HTTPReader fetches the market regime snapshot from an external service.
// The resolver treats any failure here as a neutral-policy fallback, so the
// reader reports errors instead of retrying.
type HTTPReader struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPReader creates a reader against the regime service endpoint
func NewHTTPReader(url string, log zerolog.Logger) *HTTPReader {
	return &HTTPReader{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("client", "regime").Logger(),
	}
}

// Read fetches the current regime snapshot
func (r *HTTPReader) Read(ctx context.Context) (*domain.RegimeSnapshot, error) {
	if r.url == "" {
		return nil, fmt.Errorf("regime service URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build regime request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("regime request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("regime service returned status %d", resp.StatusCode)
	}

	var snapshot domain.RegimeSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode regime snapshot: %w", err)
	}
	snapshot.ObservedAt = time.Now()

	r.log.Debug().
		Float64("fear_greed", snapshot.FearGreedIndex).
		Float64("btc_dominance", snapshot.BTCDominance).
		Float64("altcoin_index", snapshot.AltcoinIndex).
		Msg("Fetched regime snapshot")

	return &snapshot, nil
}
