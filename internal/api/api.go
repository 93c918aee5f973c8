// Package api contains typed clients for the tourism API endpoints. Every
// call goes through the gateway; only the auth calls opt out of the 401
// refresh path.
package api

import (
	"context"

	"github.com/wolfeidau/wayfarer/internal/gateway"
)

// Requester issues requests through the gateway.
type Requester interface {
	Request(ctx context.Context, method, path string, body any, opts ...gateway.RequestOption) (*gateway.Result, error)
}
