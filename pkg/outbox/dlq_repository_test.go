package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
)

func deadLetter(event models.OutboxEvent, reason enums.OutboxDLQReason, failedAt time.Time) models.OutboxDLQ {
	msg := "topic rejected message"
	return models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt,
	}
}

func queuedEvent(attempts int) models.OutboxEvent {
	lastErr := "deadline exceeded"
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregateCommissionPayout,
		AggregateID:   uuid.NewString(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		AttemptCount:  attempts,
		LastError:     &lastErr,
	}
}

func TestDLQRequeueResetsExistingEvent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	ctx := context.Background()

	event := queuedEvent(10)
	require.NoError(t, conn.Create(&event).Error)
	require.NoError(t, repo.InsertTx(conn, deadLetter(event, enums.OutboxDLQReasonMaxAttempts, time.Now().UTC())))

	requeued, err := repo.Requeue(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, requeued.ID)
	assert.Zero(t, requeued.AttemptCount)

	var stored models.OutboxEvent
	require.NoError(t, conn.Where("id = ?", event.ID).Take(&stored).Error)
	assert.Zero(t, stored.AttemptCount)
	assert.Nil(t, stored.LastError)

	found, err := repo.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, found, "dead letter is consumed by requeue")
}

func TestDLQRequeueRecreatesPurgedEvent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)

	event := queuedEvent(10)
	require.NoError(t, repo.InsertTx(conn, deadLetter(event, enums.OutboxDLQReasonNonRetryable, time.Now().UTC())))

	requeued, err := repo.Requeue(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.AggregateID, requeued.AggregateID)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", event.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDLQRequeueRefusesPublishedEvent(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)

	event := queuedEvent(1)
	published := time.Now().UTC()
	event.PublishedAt = &published
	require.NoError(t, conn.Create(&event).Error)
	require.NoError(t, repo.InsertTx(conn, deadLetter(event, enums.OutboxDLQReasonNonRetryable, published)))

	_, err := repo.Requeue(context.Background(), event.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	found, err := repo.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.NotNil(t, found, "refused requeue keeps the dead letter")
}

func TestDLQRequeueUnknownEvent(t *testing.T) {
	repo := NewDLQRepository(dbtest.Open(t))
	_, err := repo.Requeue(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDLQListFiltersAndOrders(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	older := queuedEvent(10)
	newer := queuedEvent(10)
	other := queuedEvent(2)
	require.NoError(t, repo.InsertTx(conn, deadLetter(older, enums.OutboxDLQReasonMaxAttempts, base)))
	require.NoError(t, repo.InsertTx(conn, deadLetter(newer, enums.OutboxDLQReasonMaxAttempts, base.Add(time.Hour))))
	require.NoError(t, repo.InsertTx(conn, deadLetter(other, enums.OutboxDLQReasonNonRetryable, base.Add(2*time.Hour))))

	rows, err := repo.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].EventID)
	assert.Equal(t, older.ID, rows[1].EventID)

	rows, err = repo.List(context.Background(), DLQFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, other.ID, rows[0].EventID)
}

func TestDLQInsertClipsLongMessages(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)

	event := queuedEvent(3)
	entry := deadLetter(event, enums.OutboxDLQReasonNonRetryable, time.Now().UTC())
	long := strings.Repeat("x", maxLastErrorLen+200)
	entry.ErrorMessage = &long
	require.NoError(t, repo.InsertTx(conn, entry))

	found, err := repo.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)
}
