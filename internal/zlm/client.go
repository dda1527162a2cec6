// Package zlm is a small client for the ZLMediaKit HTTP API.
package zlm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	DefaultVhost = "__defaultVhost__"

	// CodecTypeVideo is the codec_type ZLMediaKit reports for video tracks.
	CodecTypeVideo = 0
)

var (
	// ErrNotConfigured is returned when the client has no base URL.
	ErrNotConfigured = errors.New("zlm: base url not configured")
)

// APIError is returned when ZLMediaKit answers a call with a non-zero code.
type APIError struct {
	Method string
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zlm %s: code %d: %s", e.Method, e.Code, e.Msg)
}

// Track is one media track of a live stream as reported by getMediaList.
type Track struct {
	CodecID     int     `json:"codec_id"`
	CodecIDName string  `json:"codec_id_name"`
	CodecType   int     `json:"codec_type"`
	Ready       bool    `json:"ready"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
}

// MediaInfo is one entry of getMediaList. ZLMediaKit lists a stream once per
// protocol it is being served over.
type MediaInfo struct {
	App              string  `json:"app"`
	Stream           string  `json:"stream"`
	Vhost            string  `json:"vhost"`
	Schema           string  `json:"schema"`
	OriginTypeStr    string  `json:"originTypeStr"`
	OriginURL        string  `json:"originUrl"`
	ReaderCount      int     `json:"readerCount"`
	TotalReaderCount int     `json:"totalReaderCount"`
	AliveSecond      int64   `json:"aliveSecond"`
	Tracks           []Track `json:"tracks"`
}

// VideoTrack returns the first video track, if any.
func (m MediaInfo) VideoTrack() (Track, bool) {
	for _, t := range m.Tracks {
		if t.CodecType == CodecTypeVideo {
			return t, true
		}
	}
	return Track{}, false
}

// StreamKey addresses a stream on the media server.
type StreamKey struct {
	App    string
	Vhost  string
	Stream string
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Secret  string

	// Timeout bounds each HTTP attempt. Default 5s.
	Timeout time.Duration

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig returns retry and timeout defaults for the given server.
func DefaultConfig(baseURL, secret string) Config {
	return Config{
		BaseURL:    baseURL,
		Secret:     secret,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// Client calls the ZLMediaKit HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	log        *slog.Logger
}

// NewClient returns a client for cfg. Zero durations fall back to DefaultConfig.
func NewClient(cfg Config, log *slog.Logger) *Client {
	def := DefaultConfig(cfg.BaseURL, cfg.Secret)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	//nolint:bodyclose // *http.Response is the policy's type parameter
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		Build()

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   failsafe.With[*http.Response](retry),
		log:        log,
	}
}

// shouldRetry retries network errors, server errors and rate limiting.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
}

// envelope is the common ZLMediaKit response shape.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// GetMediaList returns every stream currently live on the media server.
func (c *Client) GetMediaList(ctx context.Context) ([]MediaInfo, error) {
	env, err := c.call(ctx, "getMediaList", url.Values{})
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	var media []MediaInfo
	if err := json.Unmarshal(env.Data, &media); err != nil {
		return nil, fmt.Errorf("zlm getMediaList: decode data: %w", err)
	}
	return media, nil
}

// CloseStream force-closes a stream on the media server, disconnecting the
// publisher and all players.
func (c *Client) CloseStream(ctx context.Context, key StreamKey) error {
	params := url.Values{}
	params.Set("stream", key.Stream)
	params.Set("app", key.App)
	vhost := key.Vhost
	if vhost == "" {
		vhost = DefaultVhost
	}
	params.Set("vhost", vhost)
	params.Set("force", "1")

	if _, err := c.call(ctx, "close_stream", params); err != nil {
		return err
	}

	c.log.Info("stream closed on media server",
		slog.String("stream_id", key.Stream),
		slog.String("app", key.App))
	return nil
}

// call performs GET /index/api/{method} with the secret attached and decodes
// the envelope. A non-zero code becomes an *APIError.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*envelope, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	params.Set("secret", c.secret)
	u := c.baseURL + "/index/api/" + method + "?" + params.Encode()

	c.log.Debug("calling media server api", slog.String("method", method))

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if shouldRetry(resp, nil) {
			// The body of a retried attempt is never read.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("zlm %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zlm %s: unexpected status %d", method, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("zlm %s: decode response: %w", method, err)
	}
	if env.Code != 0 {
		return nil, &APIError{Method: method, Code: env.Code, Msg: env.Msg}
	}
	return &env, nil
}
