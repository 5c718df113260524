package media

import (
	"context"
	"io"
	"net/http"
	"time"
)

// MaxFetchBytes bounds how much of a response body HTTPFetcher reads, so a
// misbehaving CDN response cannot exhaust memory (§4.4 step 3).
const MaxFetchBytes = 25 << 20 // 25MB

// HTTPFetcher is the default Fetcher, downloading over plain HTTP(S).
// Grounded on _examples/original_source/utils/media_cache.py's
// aiohttp-based download step in cache_url.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with a bounded request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
