package push

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	webpush "github.com/SherClockHolmes/webpush-go"
)

type WebPushConfig struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	// HTTPClient overrides the client used to reach push services.
	HTTPClient *http.Client
}

type WebPush struct {
	cfg WebPushConfig
}

func NewWebPush(cfg WebPushConfig) *WebPush {
	return &WebPush{cfg: cfg}
}

func urgency(p model.Priority) webpush.Urgency {
	switch p {
	case model.PriorityLow:
		return webpush.UrgencyLow
	case model.PriorityHigh, model.PriorityUrgent:
		return webpush.UrgencyHigh
	default:
		return webpush.UrgencyNormal
	}
}

func (w *WebPush) Send(ctx context.Context, endpoint *model.PushEndpoint, payload []byte, priority model.Priority) error {
	sub := &webpush.Subscription{
		Endpoint: endpoint.EndpointURL,
		Keys: webpush.Keys{
			P256dh: endpoint.Keys.P256dh,
			Auth:   endpoint.Keys.Auth,
		},
	}

	opts := &webpush.Options{
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
		Urgency:         urgency(priority),
	}
	if w.cfg.HTTPClient != nil {
		opts.HTTPClient = w.cfg.HTTPClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEndpointGone
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push service responded %d: %s", resp.StatusCode, string(body))
	}
}
