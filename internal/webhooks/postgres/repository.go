// Package postgres provides the PostgreSQL implementation of the webhooks
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chantierops/signalement/internal/domain"
	"github.com/chantierops/signalement/internal/webhooks"
)

const subscriptionColumns = `
	id, url, event_patterns, description, secret_enc,
	active, consecutive_failures, created_at, updated_at`

// Repository implements webhooks.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.URL,
		&sub.EventPatterns,
		&sub.Description,
		&sub.SecretEnc,
		&sub.Active,
		&sub.ConsecutiveFailures,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription persists a new subscription.
func (r *Repository) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions (id, url, event_patterns, description, secret_enc, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.URL,
		sub.EventPatterns,
		sub.Description,
		sub.SecretEnc,
		sub.Active,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches a subscription by id.
func (r *Repository) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, webhooks.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns every subscription, newest first.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return r.listSubscriptions(ctx, `SELECT`+subscriptionColumns+` FROM webhook_subscriptions ORDER BY created_at DESC`)
}

// ListActiveSubscriptions returns subscriptions eligible for fan-out.
func (r *Repository) ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	return r.listSubscriptions(ctx, `SELECT`+subscriptionColumns+` FROM webhook_subscriptions WHERE active ORDER BY created_at DESC`)
}

func (r *Repository) listSubscriptions(ctx context.Context, query string) ([]*domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription and, via cascade, its deliveries.
func (r *Repository) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrSubscriptionNotFound
	}
	return nil
}

// ResetFailures zeroes the consecutive failure streak.
func (r *Repository) ResetFailures(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_subscriptions
		SET consecutive_failures = 0, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrSubscriptionNotFound
	}
	return nil
}

// RecordFailure bumps the failure streak and trips the breaker once it
// reaches deactivateAt. The increment and the trip are a single statement so
// concurrent deliveries cannot race past the threshold.
func (r *Repository) RecordFailure(ctx context.Context, id string, deactivateAt int) (int, bool, error) {
	query := `
		UPDATE webhook_subscriptions
		SET consecutive_failures = consecutive_failures + 1,
		    active = CASE WHEN consecutive_failures + 1 >= $2 THEN FALSE ELSE active END,
		    updated_at = now()
		WHERE id = $1
		RETURNING consecutive_failures, active
	`
	var (
		failures int
		active   bool
	)
	err := r.db.QueryRow(ctx, query, id, deactivateAt).Scan(&failures, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, webhooks.ErrSubscriptionNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record failure: %w", err)
	}
	return failures, active, nil
}

// EnableSubscription reactivates a subscription and clears its streak.
func (r *Repository) EnableSubscription(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_subscriptions
		SET active = TRUE, consecutive_failures = 0, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("enable subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrSubscriptionNotFound
	}
	return nil
}

// CreateDeliveryRecord appends one delivery attempt to the audit log.
func (r *Repository) CreateDeliveryRecord(ctx context.Context, rec *domain.DeliveryRecord) error {
	query := `
		INSERT INTO webhook_deliveries (id, subscription_id, event_id, event_type, attempt, success, status_code, latency_ms, error, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.SubscriptionID,
		rec.EventID,
		rec.EventType,
		rec.Attempt,
		rec.Success,
		rec.StatusCode,
		rec.LatencyMs,
		rec.Error,
		rec.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}
	return nil
}

// ListDeliveries returns the most recent delivery records for a subscription.
func (r *Repository) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*domain.DeliveryRecord, error) {
	query := `
		SELECT id, subscription_id, event_id, event_type, attempt, success, status_code, latency_ms, error, delivered_at
		FROM webhook_deliveries
		WHERE subscription_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SubscriptionID,
			&rec.EventID,
			&rec.EventType,
			&rec.Attempt,
			&rec.Success,
			&rec.StatusCode,
			&rec.LatencyMs,
			&rec.Error,
			&rec.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
