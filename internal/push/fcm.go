package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"google.golang.org/api/option"
)

// MessageSender is the subset of *messaging.Client used by FCM.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCM struct {
	client MessageSender
	// isGone reports whether a send error means the token is dead.
	isGone func(error) bool
}

func NewFCM(client MessageSender) *FCM {
	return &FCM{
		client: client,
		isGone: func(err error) bool {
			return messaging.IsUnregistered(err)
		},
	}
}

// NewFCMFromCredentials builds a messaging client from a service account
// file.
func NewFCMFromCredentials(ctx context.Context, projectID, credentialsFile string) (*FCM, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting messaging client: %w", err)
	}
	return NewFCM(client), nil
}

func (f *FCM) Send(ctx context.Context, endpoint *model.PushEndpoint, payload []byte, priority model.Priority) error {
	token := strings.TrimPrefix(endpoint.EndpointURL, FCMScheme)

	var p model.PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	androidPriority := "normal"
	if priority >= model.PriorityHigh {
		androidPriority = "high"
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: map[string]string{
			"payload": string(payload),
			"url":     p.URL,
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
	}

	if _, err := f.client.Send(ctx, msg); err != nil {
		if f.isGone(err) {
			return ErrEndpointGone
		}
		return err
	}
	return nil
}
