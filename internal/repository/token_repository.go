package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DeviceToken is a push-notification registration.
type DeviceToken struct {
	Token        string    `json:"token"`
	Platform     string    `json:"platform"` // "android" or "ios"
	RegisteredAt time.Time `json:"registeredAt"`
}

// TokenRepository keeps the device tokens that receive engine events.
type TokenRepository struct {
	tokens map[string]DeviceToken // token -> DeviceToken
	mu     sync.RWMutex
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[string]DeviceToken),
	}
}

// RegisterToken adds or refreshes a device token.
func (r *TokenRepository) RegisterToken(token, platform string, at time.Time) error {
	if token == "" {
		return fmt.Errorf("empty device token")
	}
	switch platform {
	case "android", "ios":
	default:
		return fmt.Errorf("unsupported platform %q", platform)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token] = DeviceToken{Token: token, Platform: platform, RegisteredAt: at.UTC()}
	return nil
}

// UnregisterToken removes a device token; unknown tokens are ignored.
func (r *TokenRepository) UnregisterToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, token)
}

// Tokens returns all registered tokens in stable order.
func (r *TokenRepository) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func (r *TokenRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tokens)
}
