package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/postgres"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/rabbit"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
)

// Publisher drains the outbox table into the events exchange. Records publish
// at least once; consumers dedupe on the message id.
type Publisher struct {
	repo      *postgres.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *postgres.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx, batch); err != nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context, batch int) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batch)
	if err != nil {
		return err
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish failed, will retry")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("mark published failed")
		}
	}
	return nil
}
