package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/rs/zerolog"
)

// HTTPAbsentRegionsFetcher asks an external data-coverage service which
// regions along a route still lack offline map data. GenerateRequest kicks
// the HTTP call off in the background; GetAbsentCountries blocks until that
// call resolves or ctx is done, whichever comes first, matching the
// non-blocking-kick/blocking-collect shape dispatch.Fetcher requires.
type HTTPAbsentRegionsFetcher struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	result chan []string
}

// NewHTTPAbsentRegionsFetcher builds a fetcher against baseURL. An empty
// baseURL disables the fetcher: GenerateRequest becomes a no-op and
// GetAbsentCountries always returns nil, so the dispatcher never upgrades a
// NoError result to NeedMoreMaps.
func NewHTTPAbsentRegionsFetcher(baseURL string, log zerolog.Logger) *HTTPAbsentRegionsFetcher {
	return &HTTPAbsentRegionsFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

// GenerateRequest starts the lookup in the background. It is safe to call
// repeatedly; each call replaces whatever in-flight lookup preceded it,
// mirroring the dispatcher's own coalescing discipline.
func (f *HTTPAbsentRegionsFetcher) GenerateRequest(cp geo.Checkpoints) {
	if f.baseURL == "" {
		return
	}

	result := make(chan []string, 1)
	f.result = result

	go func() {
		regions, err := f.lookup(cp)
		if err != nil {
			f.log.Warn().Err(err).Msg("absent-regions lookup failed")
			result <- nil
			return
		}
		result <- regions
	}()
}

// GetAbsentCountries blocks for the in-flight lookup started by the most
// recent GenerateRequest call, bounded by ctx. Returns nil if no lookup was
// started, the lookup failed, or ctx expired first.
func (f *HTTPAbsentRegionsFetcher) GetAbsentCountries(ctx context.Context) []string {
	if f.result == nil {
		return nil
	}
	select {
	case regions := <-f.result:
		return regions
	case <-ctx.Done():
		return nil
	}
}

func (f *HTTPAbsentRegionsFetcher) lookup(cp geo.Checkpoints) ([]string, error) {
	q := url.Values{}
	q.Set("startLon", formatLL(geo.XToLon(cp.Start.X)))
	q.Set("startLat", formatLL(geo.YToLat(cp.Start.Y)))
	q.Set("finishLon", formatLL(geo.XToLon(cp.Finish.X)))
	q.Set("finishLat", formatLL(geo.YToLat(cp.Finish.Y)))

	req, err := http.NewRequest(http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AbsentRegions []string `json:"absentRegions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.AbsentRegions, nil
}

func formatLL(v float64) string {
	return strconv.FormatFloat(geo.RoundDecimal(v, 5), 'f', -1, 64)
}
