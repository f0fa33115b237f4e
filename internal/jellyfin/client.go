// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jellyfin is the media server API client used by the playback core.
package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/jfplay/internal/cache"
	xglog "github.com/ManuGH/jfplay/internal/log"
	"github.com/ManuGH/jfplay/internal/metrics"
	"github.com/ManuGH/jfplay/internal/resilience"
	"github.com/ManuGH/jfplay/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Client talks to a Jellyfin server on behalf of one user and device.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token      string
	userID     string
	deviceID   string
	deviceName string
	clientName string
	version    string

	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	cache      cache.Cache
	segmentTTL time.Duration
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger

	rnd *rand.Rand
	mu  sync.Mutex
}

// Options configures the client.
type Options struct {
	Token          string
	UserID         string
	DeviceID       string
	DeviceName     string
	ClientName     string
	Version        string
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	// BreakerThreshold consecutive failures open the breaker for BreakerReset.
	BreakerThreshold int
	BreakerReset     time.Duration
	// Cache holds item segments; nil disables caching.
	Cache      cache.Cache
	SegmentTTL time.Duration
}

const (
	defaultTimeout        = 10 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 250 * time.Millisecond
	defaultMaxBackoff     = 3 * time.Second
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
	defaultSegmentTTL     = 30 * time.Minute
)

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts Options) *Client {
	nopts := normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: nopts.Timeout,
		TLSHandshakeTimeout:   5 * time.Second,
	}

	c := &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: transport,
		},
		token:      nopts.Token,
		userID:     nopts.UserID,
		deviceID:   nopts.DeviceID,
		deviceName: nopts.DeviceName,
		clientName: nopts.ClientName,
		version:    nopts.Version,
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		cache:      nopts.Cache,
		segmentTTL: nopts.SegmentTTL,
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		logger:     xglog.WithComponent("jellyfin"),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
	c.breaker = resilience.New("jellyfin", resilience.Options{
		Threshold: nopts.BreakerThreshold,
		Cooldown:  nopts.BreakerReset,
		OnStateChange: func(from, to resilience.State) {
			ev := c.logger.Info()
			if to == resilience.StateOpen {
				ev = c.logger.Warn()
			}
			ev.Str(xglog.FieldOldState, string(from)).Str(xglog.FieldNewState, string(to)).Msg("server circuit breaker changed")
		},
	})
	return c
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.SegmentTTL <= 0 {
		opts.SegmentTTL = defaultSegmentTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNoOpCache()
	}
	if strings.TrimSpace(opts.ClientName) == "" {
		opts.ClientName = "jfplay"
	}
	if strings.TrimSpace(opts.DeviceName) == "" {
		opts.DeviceName = "jfplay"
	}
	if strings.TrimSpace(opts.Version) == "" {
		opts.Version = "dev"
	}
	return opts
}

// UserID returns the user the client acts for.
func (c *Client) UserID() string { return c.userID }

// GetItem fetches a single item with its media sources.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	path := fmt.Sprintf("/Users/%s/Items/%s", url.PathEscape(c.userID), url.PathEscape(itemID))
	if err := c.do(ctx, "get_item", http.MethodGet, path, nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetPlaybackInfo asks the server for a playable media source and the
// direct play / transcode decision.
func (c *Client) GetPlaybackInfo(ctx context.Context, itemID string, req PlaybackInfoRequest) (*PlaybackInfoResponse, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var res PlaybackInfoResponse
	path := fmt.Sprintf("/Items/%s/PlaybackInfo", url.PathEscape(itemID))
	if err := c.do(ctx, "playback_info", http.MethodPost, path, nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetItemSegments returns the media segments of an item. Results are cached.
func (c *Client) GetItemSegments(ctx context.Context, itemID string) ([]MediaSegment, error) {
	key := "segments:" + itemID
	if cached, ok := cache.GetJSON[[]MediaSegment](ctx, c.cache, key); ok {
		return cached, nil
	}

	var res segmentsResponse
	path := fmt.Sprintf("/MediaSegments/%s", url.PathEscape(itemID))
	if err := c.do(ctx, "item_segments", http.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, c.cache, key, res.Items, c.segmentTTL); err != nil {
		c.logger.Debug().Err(err).Str(xglog.FieldItemID, itemID).Msg("segment cache write failed")
	}
	return res.Items, nil
}

// ReportPlaybackStart tells the server a session began.
func (c *Client) ReportPlaybackStart(ctx context.Context, report PlayingReport) error {
	return c.do(ctx, "report_start", http.MethodPost, "/Sessions/Playing", nil, report, nil)
}

// ReportPlaybackProgress sends a periodic position update.
func (c *Client) ReportPlaybackProgress(ctx context.Context, report PlayingReport) error {
	return c.do(ctx, "report_progress", http.MethodPost, "/Sessions/Playing/Progress", nil, report, nil)
}

// ReportPlaybackStopped ends a session on the server.
func (c *Client) ReportPlaybackStopped(ctx context.Context, report PlayingReport) error {
	return c.do(ctx, "report_stopped", http.MethodPost, "/Sessions/Playing/Stopped", nil, report, nil)
}

// ResolveURL joins a server-relative path (e.g. TranscodingUrl) with the base URL.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}

// StreamURL builds the static stream URL used for direct play and direct stream.
func (c *Client) StreamURL(itemID, sourceID, container, playSessionID string) string {
	params := url.Values{}
	params.Set("static", "true")
	params.Set("mediaSourceId", sourceID)
	params.Set("deviceId", c.deviceID)
	if playSessionID != "" {
		params.Set("playSessionId", playSessionID)
	}
	if c.token != "" {
		params.Set("api_key", c.token)
	}
	path := fmt.Sprintf("/Videos/%s/stream", url.PathEscape(itemID))
	if container != "" {
		path += "." + strings.Split(container, ",")[0]
	}
	return c.BaseURL + path + "?" + params.Encode()
}

// SubtitleURL builds the delivery URL of an external subtitle stream.
func (c *Client) SubtitleURL(itemID, sourceID string, stream MediaStream) string {
	if stream.DeliveryURL != "" {
		return c.ResolveURL(stream.DeliveryURL)
	}
	format := stream.Codec
	if format == "" {
		format = "srt"
	}
	return fmt.Sprintf("%s/Videos/%s/%s/Subtitles/%d/Stream.%s", c.BaseURL,
		url.PathEscape(itemID), url.PathEscape(sourceID), stream.Index, format)
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, out any) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &APIError{Sentinel: ErrBadRequest, Operation: op, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Sentinel: ErrBadRequest, Operation: op, Err: err}
		}
	}

	var resp *http.Response
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		var doErr error
		resp, doErr = c.doRequest(ctx, method, u.String(), payload)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		if status >= http.StatusInternalServerError {
			return &APIError{Sentinel: ErrUpstreamError, Operation: op, Status: status}
		}
		return &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			Sentinel:  sentinelForStatus(resp.StatusCode),
			Operation: op,
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, rawURL string, payload []byte) (*http.Response, error) {
	tracer := telemetry.Tracer("jfplay.jellyfin")
	route, urlLabel := traceLabels(rawURL)
	ctx, span := tracer.Start(ctx, "jfplay.jellyfin.request", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(telemetry.HTTPMethodKey, method),
		attribute.String(telemetry.HTTPRouteKey, route),
	)
	defer span.End()

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "jfplay.jellyfin.request.attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(
			attribute.Int("attempt", attempt),
			attribute.Bool("retry", attempt > 1),
		)

		if c.limiter != nil {
			if err := c.limiter.Wait(attemptCtx); err != nil {
				endWithError(attemptSpan, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reqBody)
		if err != nil {
			endWithError(attemptSpan, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		c.applyHeaders(req, payload != nil)
		otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		retry := attempt < maxAttempts && shouldRetry(resp, err) && ctx.Err() == nil
		metrics.RecordServerAttempt(method, route, status, duration, err, retry)

		attemptSpan.SetAttributes(telemetry.HTTPAttributes(method, route, urlLabel, status)...)
		if err != nil {
			attemptSpan.RecordError(err)
		}
		if err != nil || status >= http.StatusBadRequest {
			attemptSpan.SetStatus(codes.Error, statusText(status))
		} else {
			attemptSpan.SetStatus(codes.Ok, "")
		}
		attemptSpan.End()

		if err == nil && status < http.StatusInternalServerError {
			span.SetAttributes(telemetry.HTTPAttributes(method, route, urlLabel, status)...)
			if status >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp, nil
		}

		lastErr = err
		lastStatus = status
		if !retry {
			if err == nil {
				// final 5xx is handed back so the caller can classify it
				return resp, nil
			}
			break
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		c.logger.Debug().
			Int("attempt", attempt).
			Int("status", status).
			Str(xglog.FieldPath, route).
			Msg("retrying server request")

		if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if lastStatus > 0 {
		span.SetAttributes(telemetry.HTTPAttributes(method, route, urlLabel, lastStatus)...)
	}
	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed")
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

func (c *Client) applyHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.authorization())
}

func (c *Client) authorization() string {
	var b strings.Builder
	fmt.Fprintf(&b, `MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
		c.clientName, c.deviceName, c.deviceID, c.version)
	if c.token != "" {
		fmt.Fprintf(&b, `, Token="%s"`, c.token)
	}
	return b.String()
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// traceLabels collapses item ids so routes stay low-cardinality.
func traceLabels(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, rawURL
	}
	parts := strings.Split(u.Path, "/")
	for i, p := range parts {
		if looksLikeID(p) {
			parts[i] = "{id}"
		}
	}
	route := strings.Join(parts, "/")
	if route == "" {
		route = "/"
	}
	urlLabel := route
	if u.RawQuery != "" {
		urlLabel += "?"
	}
	return route, urlLabel
}

func looksLikeID(s string) bool {
	if len(s) < 16 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F' || r == '-') {
			return false
		}
	}
	return true
}
