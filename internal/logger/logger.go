// Package logger configures zerolog for the CLI and logs outbound HTTP calls.
package logger

import (
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns a logger writing to w. dev enables debug level and the
// human readable console format.
func Setup(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
			Level(level).
			With().Timestamp().Caller().
			Logger()
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

var _ http.RoundTripper = (*Requests)(nil)

// Requests logs every round trip at debug level. Headers are never logged.
type Requests struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

// NewRequests wraps next. A nil next uses http.DefaultTransport.
func NewRequests(next http.RoundTripper, logger zerolog.Logger) *Requests {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Requests{next: next, logger: logger}
}

func (r *Requests) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	resp, err := r.next.RoundTrip(req)
	if err != nil {
		r.logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(started)).
			Msg("http call failed")
		return resp, err
	}

	r.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("duration", time.Since(started)).
		Msg("http call")

	return resp, nil
}
