// Package fetch is the HTTP client for the upstream price API.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stockchart/internal/breaker"
	"stockchart/internal/interval"
	"stockchart/internal/logger"
	"stockchart/internal/model"
	"stockchart/internal/wire"
)

// ErrEmptyStock is returned when a history request names no stock.
var ErrEmptyStock = errors.New("empty stock symbol")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}

// Request kinds, used for logging and metrics labels.
const (
	KindHistory  = "history"
	KindSnapshot = "snapshot"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "chartd/1.0"
	maxErrorBody     = 256
)

// Config configures a Client.
type Config struct {
	BaseURL    string        // e.g. http://torn-stocks.jurcec.si/api
	Timeout    time.Duration // per request; default 15s
	UserAgent  string
	HTTPClient *http.Client            // optional
	Breaker    *breaker.CircuitBreaker // optional
	Log        *zap.Logger             // optional
}

// Client fetches history pages and snapshots. It implements model.Fetcher.
type Client struct {
	baseURL    string
	timeout    time.Duration
	userAgent  string
	httpClient *http.Client
	breaker    *breaker.CircuitBreaker
	log        *zap.Logger

	// OnRequest, if set, observes every request that reached the network
	// or was rejected by the breaker.
	OnRequest func(kind string, elapsed time.Duration, err error)
}

var _ model.Fetcher = (*Client)(nil)

// New creates a client with defaults filled in.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		breaker:    cfg.Breaker,
		log:        cfg.Log,
	}
}

// HistoryURL builds {base}/{stock}?interval=&from=&to=. The interval is
// omitted for m1. For m1, from is bumped by one second so the cached tail
// tick is not returned again. Zero from/to are omitted.
func HistoryURL(base, stock string, code interval.Code, from, to int64) string {
	u := strings.TrimRight(base, "/") + "/" + url.PathEscape(stock)
	var params []string
	if code != interval.M1 {
		params = append(params, "interval="+url.QueryEscape(string(code)))
	}
	if from > 0 {
		if code.IsTick() {
			from++
		}
		params = append(params, "from="+strconv.FormatInt(from, 10))
	}
	if to > 0 {
		params = append(params, "to="+strconv.FormatInt(to, 10))
	}
	if len(params) > 0 {
		u += "?" + strings.Join(params, "&")
	}
	return u
}

// FetchHistory loads one page of bars. from > 0 requests bars after the
// cached tail, to > 0 bars before the cached head.
func (c *Client) FetchHistory(ctx context.Context, stock string, code interval.Code, from, to int64) ([]model.Bar, error) {
	if stock == "" {
		return nil, ErrEmptyStock
	}
	reqURL := HistoryURL(c.baseURL, stock, code, from, to)

	var bars []model.Bar
	err := c.do(ctx, KindHistory, reqURL, func(body io.Reader) error {
		var err error
		bars, err = wire.DecodeHistory(body, code)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "history %s/%s", stock, code)
	}
	return bars, nil
}

// FetchSnapshot loads {base}/stocks.
func (c *Client) FetchSnapshot(ctx context.Context) (model.SnapshotResponse, error) {
	var snap model.SnapshotResponse
	err := c.do(ctx, KindSnapshot, c.baseURL+"/stocks", func(body io.Reader) error {
		var err error
		snap, err = wire.DecodeSnapshot(body)
		return err
	})
	if err != nil {
		return model.SnapshotResponse{}, errors.Wrap(err, "snapshot")
	}
	return snap, nil
}

func (c *Client) do(ctx context.Context, kind, reqURL string, decode func(io.Reader) error) error {
	start := time.Now()
	call := func(ctx context.Context) error {
		return c.get(ctx, reqURL, decode)
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	elapsed := time.Since(start)

	if c.OnRequest != nil {
		c.OnRequest(kind, elapsed, err)
	}
	log := logger.From(ctx, c.log)
	if err != nil {
		log.Warn("fetch failed", zap.String("kind", kind), zap.String("url", reqURL), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		log.Debug("fetched", zap.String("kind", kind), zap.String("url", reqURL), zap.Duration("elapsed", elapsed))
	}
	return err
}

func (c *Client) get(ctx context.Context, reqURL string, decode func(io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if tid := logger.TraceID(ctx); tid != "" {
		req.Header.Set("X-Request-ID", tid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, URL: reqURL, Body: strings.TrimSpace(string(b))}
	}
	return decode(resp.Body)
}
