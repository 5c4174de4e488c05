package deals

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/internal/commissions"
	"github.com/angelmondragon/brokerledger/internal/ledger"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
)

type recorder struct {
	actions []string
}

func (r *recorder) Record(_ context.Context, entry audit.Entry) {
	r.actions = append(r.actions, entry.Action)
}

func setup(t *testing.T) (*gorm.DB, Service, *recorder) {
	t.Helper()
	client := dbtest.OpenClient(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "deals-test", Output: io.Discard})
	rec := &recorder{}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		DB:     client,
		Repo:   commissions.NewRepository(conn),
		Ledger: ledgerSvc,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Audit:  rec,
		Logger: logg,
		Config: config.CommissionConfig{
			DefaultCurrency:     "USD",
			DefaultRateBp:       300,
			DefaultHunterBp:     1000,
			DefaultConsultantBp: 6000,
			DefaultBrokerBp:     2000,
			DefaultSystemBp:     1000,
			DefaultRounding:     "ROUND_HALF_UP",
		},
	})
	require.NoError(t, err)

	svc, err := NewService(client, NewRepository(conn), commissionSvc, rec, logg, nil)
	require.NoError(t, err)
	return conn, svc, rec
}

func openDeal(t *testing.T, conn *gorm.DB, consultant uuid.UUID, price *int64) models.Deal {
	t.Helper()
	deal := models.Deal{Title: "Unit 4B", Status: enums.DealStatusOpen, ConsultantID: &consultant, ListingPrice: price, Currency: "USD"}
	require.NoError(t, conn.Create(&deal).Error)
	return deal
}

func amount(v int64) *int64 { return &v }

func TestMarkWonSnapshotsInSameTransaction(t *testing.T) {
	conn, svc, rec := setup(t)
	consultant := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleConsultant}
	deal := openDeal(t, conn, consultant.UserID, amount(5_000_000))

	res, err := svc.MarkWon(context.Background(), consultant, deal.ID)
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.True(t, res.Created)
	assert.Equal(t, enums.DealStatusWon, res.Deal.Status)
	require.NotNil(t, res.Deal.WonAt)
	assert.Equal(t, commissions.WonKey(deal.ID, *res.Deal.WonAt), res.Snapshot.IdempotencyKey)
	assert.Equal(t, int64(150_000), res.Snapshot.PoolAmount)
	assert.Equal(t, []string{audit.ActionSnapshotCreated, audit.ActionDealWon}, rec.actions)

	again, err := svc.MarkWon(context.Background(), consultant, deal.ID)
	require.NoError(t, err)
	assert.False(t, again.Transitioned)
	assert.False(t, again.Created)
	assert.Equal(t, res.Snapshot.ID, again.Snapshot.ID)
	assert.Len(t, rec.actions, 2)
}

func TestMarkWonRollsBackWithoutPrice(t *testing.T) {
	conn, svc, rec := setup(t)
	admin := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	deal := openDeal(t, conn, uuid.New(), nil)

	_, err := svc.MarkWon(context.Background(), admin, deal.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var stored models.Deal
	require.NoError(t, conn.Where("id = ?", deal.ID).Take(&stored).Error)
	assert.Equal(t, enums.DealStatusOpen, stored.Status)
	assert.Nil(t, stored.WonAt)
	assert.Empty(t, rec.actions)
}

func TestMarkWonGuards(t *testing.T) {
	conn, svc, _ := setup(t)
	ctx := context.Background()
	deal := openDeal(t, conn, uuid.New(), amount(100))

	_, err := svc.MarkWon(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleHunter}, deal.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.MarkWon(ctx, auth.System, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, conn.Model(&models.Deal{}).Where("id = ?", deal.ID).Update("status", enums.DealStatusLost).Error)
	_, err = svc.MarkWon(ctx, auth.System, deal.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListScopesToParticipant(t *testing.T) {
	conn, svc, _ := setup(t)
	ctx := context.Background()
	consultant := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleConsultant}
	mine := openDeal(t, conn, consultant.UserID, amount(1))
	other := openDeal(t, conn, uuid.New(), amount(1))

	page, err := svc.List(ctx, consultant, Filter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine.ID, page.Items[0].ID)

	page, err = svc.List(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBroker}, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	_, err = svc.Get(ctx, consultant, other.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

}
