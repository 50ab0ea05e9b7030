package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chantierops/signalement/internal/config"
	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/pkg/clock"
	"github.com/chantierops/signalement/internal/pkg/ctxlog"
)

// Dispatcher fans incident lifecycle events out to registered webhook
// endpoints. Delivery is asynchronous: Emit returns after matching
// subscriptions and spawning one delivery goroutine per match, so emitting
// never blocks the write path. Attempts for a single (event, subscription)
// pair run sequentially with exponential backoff; different subscriptions are
// delivered in parallel.
type Dispatcher struct {
	repo    Repository
	secrets *SecretBox
	cfg     config.WebhooksConfig
	client  *http.Client
	limiter *rate.Limiter
	clock   clock.Clock

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	// mu orders wg.Add in Emit against wg.Wait in Stop: once stopped is
	// set no new deliveries may start.
	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a dispatcher with the given delivery settings.
func NewDispatcher(cfg config.WebhooksConfig, repo Repository, secrets *SecretBox, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		secrets: secrets,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		clock:   clk,
		stopCh:  make(chan struct{}),
	}
}

// Emit matches the event against active subscriptions and starts one delivery
// per match. Delivery failures never propagate to the caller: the event's
// durable state change has already happened by the time Emit runs.
func (d *Dispatcher) Emit(ctx context.Context, event domain.Event) {
	// Deliveries must outlive the originating request.
	ctx = context.WithoutCancel(ctx)
	log := ctxlog.FromContext(ctx)

	subs, err := d.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		log.Error("failed to list webhook subscriptions", "event_id", event.ID, "error", err)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to marshal event payload", "event_id", event.ID, "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		log.Warn("dispatcher stopped, dropping event", "event_id", event.ID)
		return
	}

	for _, sub := range subs {
		if !sub.Matches(event.Type) {
			continue
		}
		d.wg.Add(1)
		go d.deliver(ctx, sub, event, payload)
	}
}

// Stop waits for in-flight deliveries to finish, giving up when the context
// expires. Pending backoff sleeps are cut short.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestDelivery sends a single ping event to the subscription and returns the
// resulting record. It bypasses retries and does not touch the subscription's
// failure streak, so operators can probe an endpoint without tripping or
// resetting the breaker.
func (d *Dispatcher) TestDelivery(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	sub, err := d.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, err := d.secrets.Open(sub.SecretEnc)
	if err != nil {
		return nil, err
	}

	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      domain.EventPing,
		Timestamp: d.clock.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	rec := d.attempt(ctx, sub, event, secret, payload, 1)
	d.record(ctx, rec)
	return rec, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub *domain.Subscription, event domain.Event, payload []byte) {
	defer d.wg.Done()
	log := ctxlog.FromContext(ctx).With(
		"subscription_id", sub.ID, "event_id", event.ID, "event_type", event.Type)

	secret, err := d.secrets.Open(sub.SecretEnc)
	if err != nil {
		log.Error("failed to decrypt subscription secret", "error", err)
		return
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		rec := d.attempt(ctx, sub, event, secret, payload, attempt)
		d.record(ctx, rec)

		if rec.Success {
			if err := d.repo.ResetFailures(ctx, sub.ID); err != nil {
				log.Error("failed to reset failure streak", "error", err)
			}
			return
		}

		log.Warn("webhook delivery attempt failed",
			"attempt", attempt, "status_code", rec.StatusCode, "error", rec.Error)

		if attempt < d.cfg.MaxAttempts {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-d.stopCh:
				return
			}
		}
	}

	failures, active, err := d.repo.RecordFailure(ctx, sub.ID, d.cfg.DeactivateThreshold)
	if err != nil {
		log.Error("failed to record delivery failure", "error", err)
		return
	}
	if !active {
		subscriptionsTripped.Inc()
		log.Warn("subscription deactivated after consecutive failures", "failures", failures)
	}
}

// attempt performs a single HTTP delivery and returns its audit record.
func (d *Dispatcher) attempt(ctx context.Context, sub *domain.Subscription, event domain.Event, secret string, payload []byte, attempt int) *domain.DeliveryRecord {
	inflightDeliveries.Inc()
	defer inflightDeliveries.Dec()

	rec := &domain.DeliveryRecord{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		EventType:      event.Type,
		Attempt:        attempt,
		DeliveredAt:    d.clock.Now(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		rec.Error = err.Error()
		deliveryAttemptsTotal.WithLabelValues(string(event.Type), "failure").Inc()
		return rec
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, payload))
	req.Header.Set(EventTypeHeader, string(event.Type))
	req.Header.Set(EventIDHeader, event.ID)

	start := time.Now()
	resp, err := d.client.Do(req)
	rec.LatencyMs = time.Since(start).Milliseconds()
	deliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		rec.Error = err.Error()
		deliveryAttemptsTotal.WithLabelValues(string(event.Type), "failure").Inc()
		return rec
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck

	rec.StatusCode = resp.StatusCode
	rec.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	outcome := "failure"
	if rec.Success {
		outcome = "success"
	} else {
		rec.Error = "non-2xx response"
	}
	deliveryAttemptsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	return rec
}

func (d *Dispatcher) record(ctx context.Context, rec *domain.DeliveryRecord) {
	if err := d.repo.CreateDeliveryRecord(ctx, rec); err != nil {
		ctxlog.FromContext(ctx).Error("failed to persist delivery record",
			"subscription_id", rec.SubscriptionID, "event_id", rec.EventID, "error", err)
	}
}

// backoff returns the wait before the next attempt: initial backoff grown by
// the configured multiplier per completed attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := float64(d.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= d.cfg.BackoffMultiplier
	}
	if capped := float64(d.cfg.MaxBackoff); wait > capped {
		wait = capped
	}
	return time.Duration(wait)
}
