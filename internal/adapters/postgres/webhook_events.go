package postgres

import (
	"context"
	"time"
)

// InsertWebhookEvent keeps a receipt of every verified gateway delivery for
// debugging redeliveries. Duplicate deliveries overwrite nothing.
func (r *Repository) InsertWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payload_json, received_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, payload)
	return err
}

func (r *Repository) PruneWebhookEvents(ctx context.Context, before time.Time, limit int) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM webhook_events WHERE event_id IN (
			SELECT event_id FROM webhook_events WHERE received_at < $1 LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
