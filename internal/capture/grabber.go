// Package capture fetches webcam snapshots and drives the fixed-cadence
// monitoring loop. The grabber knows three kinds of endpoint: plain HTTP
// image URLs, windy:// webcam IDs resolved through the Windy webcams API,
// and ftp:// paths for the handful of cameras that only publish that way.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/coastwatch/internal/httputil"
	"github.com/lox/coastwatch/internal/metrics"
	"github.com/lox/coastwatch/internal/models"
)

const defaultWindyAPIURL = "https://api.windy.com/webcams/api/v3/webcams"

// Frame is one captured snapshot, tagged with where and when it came from.
type Frame struct {
	BeachID     string
	ImageBytes  []byte
	CapturedAt  time.Time
	SourceURL   string
	ContentType string
}

// Result pairs a beach with its capture outcome; exactly one of Frame and
// Err is set.
type Result struct {
	BeachID string
	Frame   *Frame
	Err     error
}

// SourceUnavailableError means every endpoint for a beach failed after
// retries. LastErr carries the final endpoint's failure.
type SourceUnavailableError struct {
	BeachID   string
	URLsTried []string
	LastErr   error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("all %d sources unavailable for %s: %v", len(e.URLsTried), e.BeachID, e.LastErr)
}

func (e *SourceUnavailableError) Unwrap() error { return e.LastErr }

// Grabber fetches snapshots with per-endpoint retries and fallback across
// a beach's endpoint list.
type Grabber struct {
	client       *http.Client
	maxRetries   int
	retryBackoff time.Duration
	windyAPIKey  string
	windyAPIURL  string
	now          func() time.Time
}

func NewGrabber(timeout time.Duration, maxRetries int, retryBackoff time.Duration, windyAPIKey string) *Grabber {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Grabber{
		client:       httputil.NewClientWithTimeout(timeout),
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		windyAPIKey:  windyAPIKey,
		windyAPIURL:  defaultWindyAPIURL,
		now:          time.Now,
	}
}

// Grab fetches one snapshot for the beach, walking its endpoints in order
// and retrying each before falling through to the next.
func (g *Grabber) Grab(ctx context.Context, beach models.Beach) (*Frame, error) {
	start := g.now()
	endpoints := beach.Endpoints()

	var lastErr error
	tried := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		tried = append(tried, endpoint)

		frame, err := g.grabEndpoint(ctx, beach, endpoint)
		if err == nil {
			metrics.CaptureAttemptsTotal.WithLabelValues(beach.ID, "ok").Inc()
			metrics.CaptureLatency.WithLabelValues(beach.ID).Observe(g.now().Sub(start).Seconds())
			return frame, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	metrics.CaptureAttemptsTotal.WithLabelValues(beach.ID, "error").Inc()
	return nil, &SourceUnavailableError{BeachID: beach.ID, URLsTried: tried, LastErr: lastErr}
}

// grabEndpoint fetches from a single endpoint, retrying transient failures
// with a linearly growing delay.
func (g *Grabber) grabEndpoint(ctx context.Context, beach models.Beach, endpoint string) (*Frame, error) {
	var frame *Frame
	operation := func() error {
		f, err := g.fetchOnce(ctx, beach, endpoint)
		if err != nil {
			return err
		}
		frame = f
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(newLinearBackOff(g.retryBackoff), uint64(g.maxRetries-1)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return frame, nil
}

func (g *Grabber) fetchOnce(ctx context.Context, beach models.Beach, endpoint string) (*Frame, error) {
	switch {
	case strings.HasPrefix(endpoint, "windy://"):
		return g.fetchWindy(ctx, beach, strings.TrimPrefix(endpoint, "windy://"))
	case strings.HasPrefix(endpoint, "ftp://"):
		return g.fetchFTP(ctx, beach, endpoint)
	default:
		return g.fetchHTTP(ctx, beach, endpoint, endpoint)
	}
}

func (g *Grabber) fetchHTTP(ctx context.Context, beach models.Beach, url, sourceURL string) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	for k, v := range beach.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, backoff.Permanent(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}

	return &Frame{
		BeachID:     beach.ID,
		ImageBytes:  body,
		CapturedAt:  g.now().UTC(),
		SourceURL:   sourceURL,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// windyResponse covers the image URLs we use from the webcams API.
type windyResponse struct {
	Images struct {
		Current struct {
			Preview   string `json:"preview"`
			Icon      string `json:"icon"`
			Thumbnail string `json:"thumbnail"`
		} `json:"current"`
	} `json:"images"`
}

// fetchWindy resolves a webcam ID to its current image URL, preferring the
// largest rendition the API offers, then fetches that image.
func (g *Grabber) fetchWindy(ctx context.Context, beach models.Beach, webcamID string) (*Frame, error) {
	if g.windyAPIKey == "" {
		return nil, backoff.Permanent(fmt.Errorf("windy webcam %s: no api key configured", webcamID))
	}

	metaURL := fmt.Sprintf("%s/%s?include=images", g.windyAPIURL, webcamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("X-WINDY-API-KEY", g.windyAPIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("windy webcam %s: %w", webcamID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("windy webcam %s: status %d", webcamID, resp.StatusCode)
	}

	var meta windyResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("windy webcam %s: decoding metadata: %w", webcamID, err)
	}

	imageURL := meta.Images.Current.Preview
	if imageURL == "" {
		imageURL = meta.Images.Current.Icon
	}
	if imageURL == "" {
		imageURL = meta.Images.Current.Thumbnail
	}
	if imageURL == "" {
		return nil, backoff.Permanent(fmt.Errorf("windy webcam %s: no image url in metadata", webcamID))
	}

	return g.fetchHTTP(ctx, beach, imageURL, "windy://"+webcamID)
}

func (g *Grabber) fetchFTP(ctx context.Context, beach models.Beach, endpoint string) (*Frame, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("ftp url %s: %w", endpoint, err))
	}
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(g.client.Timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", host, err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", u.Path, err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("ftp retr %s: empty file", u.Path)
	}

	return &Frame{
		BeachID:     beach.ID,
		ImageBytes:  body,
		CapturedAt:  g.now().UTC(),
		SourceURL:   endpoint,
		ContentType: "image/jpeg",
	}, nil
}

// GrabAll fetches snapshots for all beaches with bounded concurrency.
// Results come back in input order; per-beach failures land in Result.Err
// rather than failing the batch.
func (g *Grabber) GrabAll(ctx context.Context, beaches []models.Beach, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result, len(beaches))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, beach := range beaches {
		wg.Add(1)
		go func(i int, beach models.Beach) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			frame, err := g.Grab(ctx, beach)
			results[i] = Result{BeachID: beach.ID, Frame: frame, Err: err}
		}(i, beach)
	}
	wg.Wait()

	return results
}

// linearBackOff waits backoff, 2*backoff, 3*backoff between attempts.
type linearBackOff struct {
	interval time.Duration
	attempt  int
}

func newLinearBackOff(interval time.Duration) *linearBackOff {
	return &linearBackOff{interval: interval}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
