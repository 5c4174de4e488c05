package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/metrics"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

type fixture struct {
	db      *gorm.DB
	svc     Service
	logs    *bytes.Buffer
	metrics *metrics.AuditMetrics
}

func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "audit-test", Output: buf})
	m := metrics.NewAuditMetrics(prometheus.NewRegistry())

	svc, err := NewService(NewRepository(conn), NewOwnershipResolver(conn), logg, m, Options{
		Now: steppingClock(time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)),
	})
	require.NoError(t, err)
	return fixture{db: conn, svc: svc, logs: buf, metrics: m}
}

func appendN(t *testing.T, svc Service, n int) []*models.AuditLog {
	t.Helper()
	actor := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBroker}
	rows := make([]*models.AuditLog, 0, n)
	for i := 0; i < n; i++ {
		row, err := svc.Append(context.Background(), Entry{
			Actor:      actor,
			Action:     ActionSnapshotApproved,
			EntityType: EntitySnapshot,
			EntityID:   uuid.NewString(),
			Before:     map[string]any{"status": "PENDING_APPROVAL"},
			After:      map[string]any{"status": "APPROVED", "seq": i},
		})
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestAppendLinksChain(t *testing.T) {
	f := newFixture(t)
	rows := appendN(t, f.svc, 4)

	assert.Nil(t, rows[0].PrevHash, "genesis row has no predecessor")
	for i := 1; i < len(rows); i++ {
		require.NotNil(t, rows[i].PrevHash)
		assert.Equal(t, *rows[i-1].Hash, *rows[i].PrevHash)
	}

	var stored models.AuditLog
	require.NoError(t, f.db.First(&stored, rows[2].ID).Error)
	recomputed, err := ComputeHash(stored)
	require.NoError(t, err)
	assert.Equal(t, *rows[2].Hash, recomputed, "stored row must hash identically after a round trip")
}

func TestAppendCanonicalizesLegacyNames(t *testing.T) {
	f := newFixture(t)
	row, err := f.svc.Append(context.Background(), Entry{
		Action:     "SET_PARENT",
		EntityType: "User",
		EntityID:   uuid.NewString(),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionUserParentSet, row.Action)
	assert.Equal(t, EntityUser, row.EntityType)
	assert.Nil(t, row.ActorUserID, "system actor is stored as null")
}

func TestAppendValidatesRequiredFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Append(context.Background(), Entry{Action: ActionDealWon, EntityType: EntityDeal})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIntegrityReportCleanChain(t *testing.T) {
	f := newFixture(t)
	appendN(t, f.svc, 6)

	report, err := f.svc.IntegrityReport(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 6, report.Checked)
	assert.Empty(t, report.MismatchedRows)
	assert.Empty(t, report.BrokenPrevRows)
	assert.Empty(t, report.MissingHashRows)
}

func TestIntegrityReportDetectsTamperedField(t *testing.T) {
	f := newFixture(t)
	rows := appendN(t, f.svc, 5)

	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("id = ?", rows[2].ID).
		Update("after_json", `{"seq":2,"status":"REVERSED"}`).Error)

	report, err := f.svc.IntegrityReport(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, []int64{rows[2].ID}, report.MismatchedRows)
	assert.Empty(t, report.BrokenPrevRows)
}

func TestIntegrityReportDetectsDeletedRow(t *testing.T) {
	f := newFixture(t)
	rows := appendN(t, f.svc, 5)

	require.NoError(t, f.db.Delete(&models.AuditLog{}, rows[2].ID).Error)

	report, err := f.svc.IntegrityReport(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Empty(t, report.MismatchedRows)
	assert.Equal(t, []int64{rows[3].ID}, report.BrokenPrevRows)
	assert.Equal(t, 4, report.Checked)
}

func TestIntegrityReportCountsMissingHashesWithoutBreaking(t *testing.T) {
	f := newFixture(t)
	legacy := &models.AuditLog{
		CreatedAt:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Action:     "COMMISSION_CREATED",
		EntityType: "commission_snapshot",
		EntityID:   uuid.NewString(),
	}
	require.NoError(t, f.db.Create(legacy).Error)
	appendN(t, f.svc, 3)

	report, err := f.svc.IntegrityReport(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, []int64{legacy.ID}, report.MissingHashRows)
	assert.Equal(t, 4, report.Checked)
}

func TestIntegrityReportWindowSeedsFromPredecessor(t *testing.T) {
	f := newFixture(t)
	rows := appendN(t, f.svc, 6)

	report, err := f.svc.IntegrityReport(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, rows[3].ID, report.FirstID)
	assert.Equal(t, rows[5].ID, report.LastID)
}

type failingRepo struct {
	Repository
}

func (failingRepo) Append(context.Context, func(*string) (*models.AuditLog, error)) (*models.AuditLog, error) {
	return nil, errors.New("store unavailable")
}

func TestRecordSwallowsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "audit-test", Output: buf})
	reg := prometheus.NewRegistry()
	svc, err := NewService(failingRepo{}, NewOwnershipResolver(nil), logg, metrics.NewAuditMetrics(reg), Options{})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{Action: ActionDealWon, EntityType: EntityDeal, EntityID: "d-1"})
	})
	assert.Contains(t, buf.String(), "audit append failed")
	assert.Contains(t, buf.String(), `"audit_entity_id":"d-1"`)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, float64(1), mfs[0].GetMetric()[0].GetCounter().GetValue())
}

func seedUser(t *testing.T, db *gorm.DB, email, first, last string, role enums.UserRole) models.User {
	t.Helper()
	user := models.User{Email: email, FirstName: first, LastName: last, Role: role, IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestQueryRequiresPrivilegedRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Query(context.Background(), auth.Actor{UserID: uuid.New(), Role: enums.UserRoleConsultant}, Filter{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestQueryFiltersByLegacyActionAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broker := seedUser(t, f.db, "dana.broker@example.com", "Dana", "Reyes", enums.UserRoleBroker)
	other := seedUser(t, f.db, "sam@example.com", "Sam", "Cole", enums.UserRoleAdmin)

	_, err := f.svc.Append(ctx, Entry{Actor: auth.Actor{UserID: broker.ID, Role: broker.Role}, Action: ActionSnapshotCreated, EntityType: EntitySnapshot, EntityID: "snap-a"})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, Entry{Actor: auth.Actor{UserID: other.ID, Role: other.Role}, Action: ActionSnapshotCreated, EntityType: EntitySnapshot, EntityID: "snap-b"})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, Entry{Actor: auth.Actor{UserID: broker.ID, Role: broker.Role}, Action: ActionPayoutCreated, EntityType: EntityPayout, EntityID: "payout-1"})
	require.NoError(t, err)
	// a row written before canonical names existed
	require.NoError(t, f.db.Create(&models.AuditLog{
		CreatedAt: time.Now().UTC(), Action: "commission.snapshot.create", EntityType: "CommissionSnapshot", EntityID: "snap-legacy",
	}).Error)

	admin := auth.Actor{UserID: other.ID, Role: enums.UserRoleAdmin}

	page, err := f.svc.Query(ctx, admin, Filter{Action: "SNAPSHOT_CREATED"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, pagination.DefaultAuditTake, page.Take)

	page, err = f.svc.Query(ctx, admin, Filter{Search: "DANA REY"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = f.svc.Query(ctx, admin, Filter{Search: "payout-"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "payout-1", page.Items[0].EntityID)

	page, err = f.svc.Query(ctx, admin, Filter{EntityType: "SNAPSHOT", Page: pagination.Params{Take: 1, Skip: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "snap-b", page.Items[0].EntityID, "results are newest first")
}

func TestQueryRejectsBadRanges(t *testing.T) {
	f := newFixture(t)
	admin := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	from := time.Now()
	to := from.Add(-time.Hour)

	_, err := f.svc.Query(context.Background(), admin, Filter{From: &from, To: &to})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Query(context.Background(), admin, Filter{Page: pagination.Params{Take: 101}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMineForcesActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleHunter}
	_, err := f.svc.Append(ctx, Entry{Actor: me, Action: ActionDealWon, EntityType: EntityDeal, EntityID: "deal-1"})
	require.NoError(t, err)
	appendN(t, f.svc, 2)

	page, err := f.svc.Mine(ctx, me, Filter{ActorID: nil})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "deal-1", page.Items[0].EntityID)

	_, err = f.svc.Mine(ctx, auth.System, Filter{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestForEntityEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	consultant := seedUser(t, f.db, "c@example.com", "Cora", "Lane", enums.UserRoleConsultant)
	deal := models.Deal{Status: enums.DealStatusOpen, ConsultantID: &consultant.ID, Currency: "USD"}
	require.NoError(t, f.db.Create(&deal).Error)

	_, err := f.svc.Append(ctx, Entry{Action: ActionDealWon, EntityType: EntityDeal, EntityID: deal.ID.String()})
	require.NoError(t, err)

	owner := auth.Actor{UserID: consultant.ID, Role: enums.UserRoleConsultant}
	page, err := f.svc.ForEntity(ctx, owner, "deal", deal.ID.String(), pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleConsultant}
	_, err = f.svc.ForEntity(ctx, stranger, EntityDeal, deal.ID.String(), pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.ForEntity(ctx, stranger, EntityDeal, uuid.NewString(), pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "unknown entities look the same as foreign ones")

	broker := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBroker}
	page, err = f.svc.ForEntity(ctx, broker, EntityDeal, deal.ID.String(), pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}
