package allocations

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brokerledger/internal/audit"
	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/logger"
	"github.com/angelmondragon/brokerledger/pkg/outbox"
	"github.com/angelmondragon/brokerledger/pkg/pagination"
)

type recorder struct {
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

func (r *recorder) count(action string) int {
	n := 0
	for _, e := range r.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

var (
	broker  = auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBroker}
	fixedAt = time.Date(2026, 6, 2, 9, 30, 0, 0, time.UTC)
)

func setup(t *testing.T) (*gorm.DB, Service, *recorder) {
	t.Helper()
	client := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "allocations-test", Output: io.Discard})
	rec := &recorder{}
	svc, err := NewService(ServiceParams{
		DB:     client,
		Repo:   NewRepository(client.DB()),
		Outbox: outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Audit:  rec,
		Logger: logg,
		Now:    func() time.Time { return fixedAt },
	})
	require.NoError(t, err)
	return client.DB(), svc, rec
}

func seedSnapshot(t *testing.T, conn *gorm.DB, email string, withConsultant bool) models.CommissionSnapshot {
	t.Helper()
	deal := models.Deal{Status: enums.DealStatusWon, Currency: "USD"}
	if withConsultant {
		user := models.User{Email: email, FirstName: "Ana", LastName: "Lopez", Role: enums.UserRoleConsultant, IsActive: true}
		require.NoError(t, conn.Create(&user).Error)
		deal.ConsultantID = &user.ID
	}
	require.NoError(t, conn.Create(&deal).Error)

	snapshot := models.CommissionSnapshot{
		DealID:           deal.ID,
		Version:          1,
		PolicyVersionID:  uuid.New(),
		BaseAmount:       10_000_000,
		PoolAmount:       300_000,
		Currency:         "USD",
		HunterAmount:     30_000,
		ConsultantAmount: 180_000,
		BrokerAmount:     60_000,
		SystemAmount:     30_000,
		PolicySnapshot:   "{}",
		Status:           enums.SnapshotStatusApproved,
		IdempotencyKey:   uuid.NewString(),
	}
	require.NoError(t, conn.Create(&snapshot).Error)
	return snapshot
}

func generate(t *testing.T, svc Service, snapshotID uuid.UUID) models.CommissionPayableAllocation {
	t.Helper()
	res, err := svc.Generate(context.Background(), broker, snapshotID)
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	return res.Allocations[0]
}

func TestGenerateIsIdempotent(t *testing.T) {
	conn, svc, rec := setup(t)
	snapshot := seedSnapshot(t, conn, "ana@example.com", true)

	first, err := svc.Generate(context.Background(), broker, snapshot.ID)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Len(t, first.Allocations, 1)
	row := first.Allocations[0]
	assert.Equal(t, int64(180_000), row.Amount)
	assert.Equal(t, int64(10000), row.PercentBp)
	assert.Equal(t, enums.PayableAllocationPending, row.State)

	second, err := svc.Generate(context.Background(), broker, snapshot.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	require.Len(t, second.Allocations, 1)
	assert.Equal(t, row.ID, second.Allocations[0].ID)

	assert.Equal(t, 1, rec.count(audit.ActionAllocated))
}

func TestGenerateWithoutConsultantIsEmpty(t *testing.T) {
	conn, svc, rec := setup(t)
	snapshot := seedSnapshot(t, conn, "", false)

	res, err := svc.Generate(context.Background(), broker, snapshot.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.False(t, res.Created)
	assert.Empty(t, rec.entries)

	_, err = svc.Generate(context.Background(), broker, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestApproveAndVoidAreIdempotent(t *testing.T) {
	conn, svc, rec := setup(t)
	ctx := context.Background()
	row := generate(t, svc, seedSnapshot(t, conn, "ana@example.com", true).ID)

	approved, err := svc.Approve(ctx, broker, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayableAllocationApproved, approved.State)
	require.NotNil(t, approved.ApprovedAt)

	again, err := svc.Approve(ctx, broker, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayableAllocationApproved, again.State)
	assert.Equal(t, 1, rec.count(audit.ActionAllocationApproved))

	voided, err := svc.Void(ctx, broker, row.ID, "duplicate deal")
	require.NoError(t, err)
	assert.Equal(t, enums.PayableAllocationVoid, voided.State)

	_, err = svc.Void(ctx, broker, row.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(audit.ActionAllocationVoided))

	_, err = svc.Approve(ctx, broker, row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.Approve(ctx, auth.Actor{UserID: uuid.New(), Role: enums.UserRoleHunter}, row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Void(ctx, broker, uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestExportedAllocationsAreFrozen(t *testing.T) {
	for _, state := range []enums.PayableAllocationState{
		enums.PayableAllocationPending,
		enums.PayableAllocationApproved,
		enums.PayableAllocationVoid,
	} {
		t.Run(string(state), func(t *testing.T) {
			conn, svc, _ := setup(t)
			row := generate(t, svc, seedSnapshot(t, conn, "frozen@example.com", true).ID)
			require.NoError(t, conn.Model(&models.CommissionPayableAllocation{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{"state": state, "exported_at": fixedAt, "export_batch_id": "b-1"}).Error)

			_, err := svc.Approve(context.Background(), broker, row.ID)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "approve: %v", err)

			_, err = svc.Void(context.Background(), broker, row.ID, "late")
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "void: %v", err)
		})
	}
}

func TestMarkExportedPartialBatch(t *testing.T) {
	conn, svc, rec := setup(t)
	ctx := context.Background()

	a1 := generate(t, svc, seedSnapshot(t, conn, "a1@example.com", true).ID)
	a2 := generate(t, svc, seedSnapshot(t, conn, "a2@example.com", true).ID)
	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		_, err := svc.Approve(ctx, broker, id)
		require.NoError(t, err)
	}
	_, err := svc.MarkExported(ctx, broker, MarkExportedInput{IDs: []string{a2.ID.String()}, BatchID: "batch-0"})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(audit.ActionAllocationsExported))

	res, err := svc.MarkExported(ctx, broker, MarkExportedInput{
		IDs:     []string{a1.ID.String(), a2.ID.String(), "missing"},
		BatchID: "batch-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ExportResult{
		BatchID:         "batch-1",
		Requested:       3,
		Found:           2,
		NewlyMarked:     1,
		AlreadyExported: 1,
		InvalidState:    0,
		Missing:         1,
	}, res)

	require.Equal(t, 2, rec.count(audit.ActionAllocationsExported))
	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, a1.SnapshotID.String(), last.EntityID)
	meta, ok := last.Meta.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{a1.ID.String()}, meta["allocationIds"])

	var stored models.CommissionPayableAllocation
	require.NoError(t, conn.Where("id = ?", a2.ID).Take(&stored).Error)
	require.NotNil(t, stored.ExportBatchID)
	assert.Equal(t, "batch-0", *stored.ExportBatchID, "already exported rows keep their batch")

	rerun, err := svc.MarkExported(ctx, broker, MarkExportedInput{IDs: []string{a1.ID.String()}, BatchID: "batch-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.NewlyMarked)
	assert.Equal(t, 1, rerun.AlreadyExported)
	assert.Equal(t, 2, rec.count(audit.ActionAllocationsExported))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventAllocationsExported).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

// rivalRepo stamps the rows under another batch right after they are read,
// as a concurrent export would.
type rivalRepo struct {
	Repository
	at time.Time
}

func (r *rivalRepo) WithTx(tx *gorm.DB) Repository {
	return &rivalRepo{Repository: r.Repository.WithTx(tx), at: r.at}
}

func (r *rivalRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CommissionPayableAllocation, error) {
	rows, err := r.Repository.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if _, err := r.Repository.MarkExported(ctx, ids, r.at, "rival-batch"); err != nil {
		return nil, err
	}
	return rows, nil
}

func TestMarkExportedSkipsRowsStampedConcurrently(t *testing.T) {
	client := dbtest.OpenClient(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "allocations-test", Output: io.Discard})
	rec := &recorder{}
	params := ServiceParams{
		DB:     client,
		Repo:   NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Audit:  rec,
		Logger: logg,
		Now:    func() time.Time { return fixedAt },
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	ctx := context.Background()

	row := generate(t, svc, seedSnapshot(t, conn, "race@example.com", true).ID)
	_, err = svc.Approve(ctx, broker, row.ID)
	require.NoError(t, err)
	auditsBefore := len(rec.entries)

	params.Repo = &rivalRepo{Repository: NewRepository(conn), at: fixedAt.Add(-time.Minute)}
	racing, err := NewService(params)
	require.NoError(t, err)

	res, err := racing.MarkExported(ctx, broker, MarkExportedInput{IDs: []string{row.ID.String()}, BatchID: "batch-late"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 0, res.NewlyMarked)
	assert.Equal(t, 1, res.AlreadyExported)

	assert.Len(t, rec.entries, auditsBefore)
	assert.Zero(t, rec.count(audit.ActionAllocationsExported))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventAllocationsExported).Count(&events).Error)
	assert.Zero(t, events)

	var stored models.CommissionPayableAllocation
	require.NoError(t, conn.Where("id = ?", row.ID).Take(&stored).Error)
	require.NotNil(t, stored.ExportBatchID)
	assert.Equal(t, "rival-batch", *stored.ExportBatchID)
}

func TestMarkExportedRejectsUnapproved(t *testing.T) {
	conn, svc, rec := setup(t)
	ctx := context.Background()
	pending := generate(t, svc, seedSnapshot(t, conn, "p@example.com", true).ID)
	approved := generate(t, svc, seedSnapshot(t, conn, "q@example.com", true).ID)
	_, err := svc.Approve(ctx, broker, approved.ID)
	require.NoError(t, err)

	_, err = svc.MarkExported(ctx, broker, MarkExportedInput{IDs: []string{pending.ID.String(), approved.ID.String()}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	details, ok := pkgerrors.As(err).Details().(ExportResult)
	require.True(t, ok)
	assert.Equal(t, 1, details.InvalidState)
	assert.Equal(t, []string{pending.ID.String()}, details.InvalidIDs)

	var stored models.CommissionPayableAllocation
	require.NoError(t, conn.Where("id = ?", approved.ID).Take(&stored).Error)
	assert.Nil(t, stored.ExportedAt, "the whole call is rejected")
	assert.Zero(t, rec.count(audit.ActionAllocationsExported))

	_, err = svc.MarkExported(ctx, broker, MarkExportedInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestExportCSV(t *testing.T) {
	conn, svc, _ := setup(t)
	ctx := context.Background()
	snapshot := seedSnapshot(t, conn, `o"neil,ana@example.com`, true)
	row := generate(t, svc, snapshot.ID)
	_, err := svc.Approve(ctx, broker, row.ID)
	require.NoError(t, err)
	_, err = svc.MarkExported(ctx, broker, MarkExportedInput{IDs: []string{row.ID.String()}, BatchID: "may"})
	require.NoError(t, err)

	var stored models.CommissionPayableAllocation
	require.NoError(t, conn.Where("id = ?", row.ID).Take(&stored).Error)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, Filter{SnapshotID: &snapshot.ID}, &buf))

	want := CSVHeader + "\n" + strings.Join([]string{
		row.ID.String(),
		snapshot.ID.String(),
		snapshot.DealID.String(),
		row.BeneficiaryUserID.String(),
		`"o""neil,ana@example.com"`,
		"CONSULTANT",
		"100",
		"180000",
		"APPROVED",
		stored.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"2026-06-02T09:30:00.000Z",
		"may",
	}, ",") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestExportCSVAppliesPage(t *testing.T) {
	conn, svc, _ := setup(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		row := generate(t, svc, seedSnapshot(t, conn, uuid.NewString()+"@example.com", true).ID)
		_, err := svc.Approve(ctx, broker, row.ID)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(ctx, Filter{Page: pagination.Params{Take: 5}}, &buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, CSVHeader, lines[0])

	buf.Reset()
	require.NoError(t, svc.ExportCSV(ctx, Filter{Page: pagination.Params{Take: 5, Skip: 5}}, &buf))
	lines = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)

	buf.Reset()
	err := svc.ExportCSV(ctx, Filter{Page: pagination.Params{Take: pagination.MaxTake + 1}}, &buf)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, buf.Len())
}

func TestQuoteCSV(t *testing.T) {
	assert.Equal(t, "plain", QuoteCSV("plain"))
	assert.Equal(t, `"a,b"`, QuoteCSV("a,b"))
	assert.Equal(t, `"say ""hi"""`, QuoteCSV(`say "hi"`))
	assert.Equal(t, "\"two\nlines\"", QuoteCSV("two\nlines"))
	assert.Equal(t, " leading", QuoteCSV(" leading"))
}

func TestValidateSnapshotIntegrity(t *testing.T) {
	conn, svc, _ := setup(t)
	ctx := context.Background()
	snapshot := seedSnapshot(t, conn, "i@example.com", true)

	res, err := svc.ValidateSnapshotIntegrity(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.True(t, res.PolicySumOK)
	assert.False(t, res.AllocationSumOK, "nothing allocated yet")
	assert.False(t, res.OK)

	row := generate(t, svc, snapshot.ID)
	res, err = svc.ValidateSnapshotIntegrity(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(180_000), res.AllocationTotal)

	require.NoError(t, conn.Model(&models.CommissionPayableAllocation{}).
		Where("id = ?", row.ID).
		Update("exported_at", fixedAt).Error)
	require.NoError(t, conn.Model(&models.CommissionSnapshot{}).
		Where("id = ?", snapshot.ID).
		Update("system_amount", 29_999).Error)

	res, err = svc.ValidateSnapshotIntegrity(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.False(t, res.PolicySumOK)
	assert.True(t, res.AllocationSumOK)
	assert.False(t, res.ExportBatchOK)
	assert.False(t, res.OK)

	_, err = svc.ValidateSnapshotIntegrity(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
