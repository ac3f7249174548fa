// Package push delivers encoded payloads to device endpoints.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

// ErrEndpointGone means the push service reported the endpoint as
// permanently invalid; the subscription should be dropped.
var ErrEndpointGone = errors.New("push endpoint gone")

var ErrNoTransport = errors.New("no transport for endpoint")

type Transport interface {
	Send(ctx context.Context, endpoint *model.PushEndpoint, payload []byte, priority model.Priority) error
}

const FCMScheme = "fcm:"

// Router dispatches on the endpoint URL: fcm:<token> goes to FCM, anything
// else to Web Push.
type Router struct {
	WebPush Transport
	FCM     Transport
}

func (r *Router) Send(ctx context.Context, endpoint *model.PushEndpoint, payload []byte, priority model.Priority) error {
	var t Transport
	if strings.HasPrefix(endpoint.EndpointURL, FCMScheme) {
		t = r.FCM
	} else {
		t = r.WebPush
	}
	if t == nil {
		return fmt.Errorf("%w: %s", ErrNoTransport, endpoint.EndpointURL)
	}
	return t.Send(ctx, endpoint, payload, priority)
}
