package webhooks

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/pkg/clock"
)

const (
	defaultDeliveryPage = 20
	maxDeliveryPage     = 100
)

// Service manages webhook subscriptions.
type Service struct {
	repo       Repository
	dispatcher *Dispatcher
	secrets    *SecretBox
	clock      clock.Clock
}

// NewService creates a webhook subscription service.
func NewService(repo Repository, dispatcher *Dispatcher, secrets *SecretBox, clk clock.Clock) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		secrets:    secrets,
		clock:      clk,
	}
}

// CreatedSubscription is the one response that carries the signing secret in
// plaintext. It is never reconstructable afterwards.
type CreatedSubscription struct {
	domain.Subscription
	Secret string `json:"secret"`
}

// Create registers a new subscription and returns it together with its
// freshly generated signing secret.
func (s *Service) Create(ctx context.Context, rawURL, description string, patterns []string) (*CreatedSubscription, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validatePatterns(patterns); err != nil {
		return nil, err
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	sealed, err := s.secrets.Seal(secret)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:            uuid.NewString(),
		URL:           rawURL,
		EventPatterns: patterns,
		Description:   description,
		SecretEnc:     sealed,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return &CreatedSubscription{Subscription: *sub, Secret: secret}, nil
}

// Get returns a single subscription.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.repo.GetSubscription(ctx, id)
}

// List returns all subscriptions, active and tripped.
func (s *Service) List(ctx context.Context) ([]*domain.Subscription, error) {
	return s.repo.ListSubscriptions(ctx)
}

// Delete removes a subscription along with its delivery history.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteSubscription(ctx, id)
}

// Enable reactivates a subscription that was deactivated by the failure
// breaker and resets its streak.
func (s *Service) Enable(ctx context.Context, id string) (*domain.Subscription, error) {
	if err := s.repo.EnableSubscription(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetSubscription(ctx, id)
}

// Test sends a ping event to the subscription endpoint and reports the
// outcome without affecting the failure breaker.
func (s *Service) Test(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	return s.dispatcher.TestDelivery(ctx, id)
}

// Deliveries returns the most recent delivery records for a subscription.
func (s *Service) Deliveries(ctx context.Context, id string, limit int) ([]*domain.DeliveryRecord, error) {
	if _, err := s.repo.GetSubscription(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDeliveryPage
	}
	if limit > maxDeliveryPage {
		limit = maxDeliveryPage
	}
	return s.repo.ListDeliveries(ctx, id, limit)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ErrInsecureURL
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		// Plain http is only tolerated for loopback endpoints, so local
		// development does not need TLS.
		if host := u.Hostname(); host == "localhost" {
			return nil
		} else if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
	}
	return ErrInsecureURL
}

// validatePatterns accepts exact event names and trailing-star prefixes such
// as "incident.*". A star anywhere else is rejected.
func validatePatterns(patterns []string) error {
	if len(patterns) == 0 {
		return ErrNoEventPatterns
	}
	for _, p := range patterns {
		if p == "" {
			return fmt.Errorf("%w: empty pattern", ErrInvalidEventPattern)
		}
		if i := strings.IndexByte(p, '*'); i >= 0 && i != len(p)-1 {
			return fmt.Errorf("%w: %q", ErrInvalidEventPattern, p)
		}
	}
	return nil
}
