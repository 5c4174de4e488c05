package commissions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
)

func TestListTouchedSince(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	insert := func(created, updated time.Time) uuid.UUID {
		row := models.CommissionSnapshot{
			DealID:          uuid.New(),
			Version:         1,
			PolicyVersionID: uuid.New(),
			Currency:        "USD",
			PolicySnapshot:  "{}",
			Status:          enums.SnapshotStatusPendingApproval,
			IdempotencyKey:  uuid.NewString(),
			CreatedAt:       created,
			UpdatedAt:       updated,
		}
		require.NoError(t, conn.Create(&row).Error)
		return row.ID
	}

	stale := insert(now.Add(-72*time.Hour), now.Add(-72*time.Hour))
	reapproved := insert(now.Add(-72*time.Hour), now.Add(-time.Hour))
	fresh := insert(now.Add(-2*time.Hour), now.Add(-2*time.Hour))

	ids, err := repo.ListTouchedSince(context.Background(), now.Add(-24*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{reapproved, fresh}, ids)
	assert.NotContains(t, ids, stale)

	ids, err = repo.ListTouchedSince(context.Background(), now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{reapproved}, ids)
}
