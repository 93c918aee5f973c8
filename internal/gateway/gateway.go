// Package gateway wraps every outbound API call: it attaches the bearer token,
// turns a 401 into a single coordinated refresh followed by one replay, and
// normalizes every outcome into a Result or a typed *Error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/wayfarer/internal/refresh"
	"github.com/wolfeidau/wayfarer/internal/telemetry"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 8 << 20

// ErrInvalidBaseURL is returned by New when the base URL cannot be used.
var ErrInvalidBaseURL = errors.New("invalid base URL")

// TokenRefresher obtains an access token newer than staleToken.
type TokenRefresher interface {
	RequestRefresh(ctx context.Context, staleToken string) (string, error)
}

// Config holds gateway configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	// Limiter, when set, paces outbound requests.
	Limiter   *rate.Limiter
	UserAgent string
}

// Gateway is the authenticated request path to the API.
type Gateway struct {
	baseURL   *url.URL
	client    *http.Client
	tokens    *tokenstore.Store
	limiter   *rate.Limiter
	userAgent string
	metrics   *telemetry.Metrics

	refresher TokenRefresher
}

// New creates a gateway. Without a refresher a 401 is returned as
// Unauthenticated immediately; see SetRefresher.
func New(cfg Config, tokens *tokenstore.Store) (*Gateway, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidBaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(TransportConfig{Timeout: 30 * time.Second})
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "wayfarer"
	}

	log.Debug().Str("baseURL", base.String()).Msg("initialized gateway")

	return &Gateway{
		baseURL:   base,
		client:    client,
		tokens:    tokens,
		limiter:   cfg.Limiter,
		userAgent: userAgent,
		metrics:   telemetry.GetMetrics(),
	}, nil
}

// SetRefresher installs the refresh coordinator. The coordinator depends on
// the unauthenticated path of this gateway, so it is wired after New and
// before the gateway is shared.
func (g *Gateway) SetRefresher(r TokenRefresher) {
	g.refresher = r
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	query           url.Values
	headers         http.Header
	skipAuthRefresh bool
}

// WithQuery adds query parameters to the request URL.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(http.Header)
		}
		o.headers.Set(key, value)
	}
}

// SkipAuthRefresh sends the request without 401 handling. Login, register
// and the refresh call itself use it so a rejected refresh token can never
// re-enter the refresh path.
func SkipAuthRefresh() RequestOption {
	return func(o *requestOptions) {
		o.skipAuthRefresh = true
	}
}

// Request sends a JSON request to path. body is marshalled to JSON when non-nil.
//
// A 401 triggers at most one refresh followed by exactly one replay with the
// new token; the replay's outcome is final. If the refresh fails the error is
// Unauthenticated and the session has already been cleared.
func (g *Gateway) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Result, error) {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	token := g.tokens.Get(tokenstore.Access)

	res, err := g.send(ctx, method, path, payload, token, ro)
	if err == nil {
		return res, nil
	}

	if KindOf(err) != KindUnauthenticated || ro.skipAuthRefresh || g.refresher == nil {
		return nil, err
	}

	log.Debug().Str("method", method).Str("path", path).Msg("request unauthorized, refreshing token")

	newToken, rerr := g.refresher.RequestRefresh(ctx, token)
	if rerr != nil {
		return nil, refreshFailure(err, rerr)
	}

	g.metrics.RequestReplaysTotal.Add(ctx, 1)

	return g.send(ctx, method, path, payload, newToken, ro)
}

// Get is shorthand for Request with GET.
func (g *Gateway) Get(ctx context.Context, path string, opts ...RequestOption) (*Result, error) {
	return g.Request(ctx, http.MethodGet, path, nil, opts...)
}

// Post is shorthand for Request with POST.
func (g *Gateway) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Result, error) {
	return g.Request(ctx, http.MethodPost, path, body, opts...)
}

// Delete is shorthand for Request with DELETE.
func (g *Gateway) Delete(ctx context.Context, path string, opts ...RequestOption) (*Result, error) {
	return g.Request(ctx, http.MethodDelete, path, nil, opts...)
}

func (g *Gateway) send(ctx context.Context, method, path string, payload []byte, token string, ro *requestOptions) (*Result, error) {
	requestID := newRequestID()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindNetwork, Message: "request not sent", RequestID: requestID, Err: err}
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.resolve(path, ro.query), body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to build request", RequestID: requestID, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	for k, v := range ro.headers {
		req.Header[k] = v
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	start := time.Now()
	res, err := g.do(req, requestID)
	g.record(ctx, method, start, err)

	if err != nil {
		log.Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Str("requestID", requestID).
			Msg("request failed")
		return nil, err
	}

	return res, nil
}

func (g *Gateway) do(req *http.Request, requestID string) (*Result, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "no response from server", RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "failed to read response", RequestID: requestID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromResponse(resp.StatusCode, raw, requestID)
	}

	return normalize(resp.StatusCode, raw, requestID)
}

func (g *Gateway) record(ctx context.Context, method string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("method", method))

	g.metrics.RequestsTotal.Add(ctx, 1, attrs)
	g.metrics.RequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if err != nil {
		g.metrics.RequestErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("kind", string(KindOf(err))),
		))
	}
}

func (g *Gateway) resolve(path string, query url.Values) string {
	u := g.baseURL.JoinPath(strings.TrimPrefix(path, "/"))
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// refreshFailure maps a refresh error to the error returned to the caller.
func refreshFailure(original, rerr error) error {
	var gwErr *Error
	errors.As(original, &gwErr)

	if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
		if !errors.Is(rerr, refresh.ErrAuthExpired) {
			return &Error{Kind: KindNetwork, Message: "gave up waiting for token refresh", RequestID: gwErr.RequestID, Err: rerr}
		}
	}

	return &Error{
		Kind:      KindUnauthenticated,
		Status:    http.StatusUnauthorized,
		Message:   "session expired",
		RequestID: gwErr.RequestID,
		Err:       rerr,
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to encode request body", Err: err}
	}
	return data, nil
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
