// Package fetch downloads the source datasets (boundary and road network
// files) with per-host rate limits and retry. It knows nothing about their
// contents.
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/panocount/internal/resilience"
)

// Options configures the downloader.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
}

// Downloader fetches dataset files over HTTP with retry and per-host rate
// limiting.
type Downloader struct {
	client   *http.Client
	opts     Options
	limiters map[string]*rate.Limiter
	retry    resilience.RetryConfig
}

// DefaultRateLimiters returns the default per-host rate limiters for the
// open-data portals the datasets come from.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"ckan0.cf.opendata.inter.prod-toronto.ca": rate.NewLimiter(5, 5),
		"secure.toronto.ca":                       rate.NewLimiter(5, 5),
	}
}

// NewDownloader creates a Downloader with the given options.
func NewDownloader(opts Options) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "panocount/1.0"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Downloader{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.MaxRetries,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
	}
}

func (d *Downloader) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(10, 10)
	}
	if lim, ok := d.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(10, 10)
}

func (d *Downloader) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := d.limiterFor(req.URL.String())

	cfg := d.retry
	cfg.OnRetry = resilience.RetryLogger("open-data", req.URL.Host)

	var resp *http.Response
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := lim.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limiter wait")
		}

		r, err := d.client.Do(req.Clone(ctx))
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}

		if resilience.IsTransientHTTPStatus(r.StatusCode) {
			_ = r.Body.Close()
			return resilience.NewTransientError(
				eris.Errorf("http %d from %s", r.StatusCode, req.URL.String()),
				r.StatusCode,
			)
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Download fetches the URL and returns the response body.
func (d *Downloader) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (d *Downloader) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := d.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}
