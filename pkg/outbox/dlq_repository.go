package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

const (
	defaultDLQPageSize = 50
	maxDLQPageSize     = 100
)

// DLQFilter narrows a dead letter listing.
type DLQFilter struct {
	Reason        enums.OutboxDLQReason
	AggregateType enums.OutboxAggregateType
	Limit         int
}

// DLQRepository stores events the publisher gave up on and hands them back
// to the outbox on request.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead letter. The error message is clipped like
// outbox_events.last_error.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clipError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List returns the newest dead letters first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQPageSize
	}
	if limit > maxDLQPageSize {
		limit = maxDLQPageSize
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	if filter.AggregateType != "" {
		query = query.Where("aggregate_type = ?", filter.AggregateType)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue moves a dead letter back into outbox_events with a fresh attempt
// budget. The original row is reset when retention has not removed it yet,
// otherwise it is recreated from the dead letter copy under the same id.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) (models.OutboxEvent, error) {
	var event models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dlq models.OutboxDLQ
		if err := tx.Where("event_id = ?", eventID).Take(&dlq).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
			}
			return err
		}

		err := tx.Where("id = ?", eventID).Take(&event).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			event = models.OutboxEvent{
				ID:            dlq.EventID,
				EventType:     dlq.EventType,
				AggregateType: dlq.AggregateType,
				AggregateID:   dlq.AggregateID,
				Payload:       dlq.Payload,
			}
			if err := tx.Create(&event).Error; err != nil {
				return fmt.Errorf("recreate outbox event: %w", err)
			}
		case err != nil:
			return err
		default:
			if event.PublishedAt != nil {
				return pkgerrors.New(pkgerrors.CodeConflict, "event was already published")
			}
			if err := tx.Model(&event).Updates(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
			}).Error; err != nil {
				return fmt.Errorf("reset outbox event: %w", err)
			}
			event.AttemptCount = 0
			event.LastError = nil
		}
		return tx.Delete(&dlq).Error
	})
	return event, err
}
