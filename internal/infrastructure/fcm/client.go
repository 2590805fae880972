package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"spot-engine/internal/domain"
)

const androidChannelID = "trading_alerts"

// TokenStore is the device token registry the client fans out to.
type TokenStore interface {
	Tokens() []string
	UnregisterToken(token string)
}

type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// staleToken reports send errors that mean the device is gone.
var staleToken = messaging.IsUnregistered

// Client pushes engine events to every registered device. A client built
// without credentials is disabled and drops events.
type Client struct {
	client multicaster
	tokens TokenStore
}

var _ domain.Notifier = (*Client)(nil)

// NewClient initializes Firebase Cloud Messaging from a credentials file or
// inline JSON. With neither set FCM is disabled.
func NewClient(ctx context.Context, credentialsPath, credentialsJSON string, tokens TokenStore) (*Client, error) {
	var opt option.ClientOption
	switch {
	case credentialsPath != "":
		opt = option.WithCredentialsFile(credentialsPath)
	case credentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	default:
		log.Warn().Msg("No Firebase credentials found. FCM disabled.")
		return &Client{tokens: tokens}, nil
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	log.Info().Msg("Firebase Cloud Messaging initialized successfully")
	return &Client{client: client, tokens: tokens}, nil
}

// IsEnabled returns true if FCM client is initialized
func (c *Client) IsEnabled() bool {
	return c.client != nil
}

// Notify sends the event to all registered devices.
func (c *Client) Notify(ctx context.Context, event domain.Event) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.SendMulticast(ctx, c.tokens.Tokens(), event.Title, event.Body, event.Data())
}

// SendMulticast sends one notification to tokens and unregisters devices
// the service reports as gone.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if c.client == nil {
		return fmt.Errorf("FCM client not initialized")
	}
	if len(tokens) == 0 {
		return nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: androidChannelID,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	response, err := c.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast: %w", err)
	}

	for i, r := range response.Responses {
		if r != nil && !r.Success && r.Error != nil && staleToken(r.Error) && i < len(tokens) {
			c.tokens.UnregisterToken(tokens[i])
		}
	}

	log.Debug().
		Int("success", response.SuccessCount).
		Int("failure", response.FailureCount).
		Msg("fcm multicast sent")
	return nil
}
