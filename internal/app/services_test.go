package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brokerledger/pkg/auth"
	"github.com/angelmondragon/brokerledger/pkg/config"
	"github.com/angelmondragon/brokerledger/pkg/db/dbtest"
	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	"github.com/angelmondragon/brokerledger/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Commission: config.CommissionConfig{
			DefaultCurrency:     "USD",
			DefaultRateBp:       300,
			DefaultHunterBp:     1000,
			DefaultConsultantBp: 6000,
			DefaultBrokerBp:     2000,
			DefaultSystemBp:     1000,
			DefaultRounding:     "ROUND_HALF_UP",
			HierarchyDepth:      10,
		},
		Jobs: config.JobsConfig{MaxAttempts: 2, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond},
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})

	_, err := Build(Params{Logger: logg, DB: dbtest.OpenClient(t)})
	require.Error(t, err)

	_, err = Build(Params{Config: testConfig(), DB: dbtest.OpenClient(t)})
	require.Error(t, err)

	_, err = Build(Params{Config: testConfig(), Logger: logg})
	require.Error(t, err)
}

func TestBuildWiresMarkWonThroughSnapshot(t *testing.T) {
	client := dbtest.OpenClient(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	svcs, err := Build(Params{
		Config:     testConfig(),
		Logger:     logg,
		DB:         client,
		Registerer: prometheus.NewRegistry(),
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NotNil(t, svcs.SnapshotIntegrity)

	broker := models.User{Email: "broker@example.com", FirstName: "B", LastName: "Test", Role: enums.UserRoleBroker, IsActive: true}
	require.NoError(t, conn.Create(&broker).Error)
	consultant := models.User{Email: "c@example.com", FirstName: "C", LastName: "Test", Role: enums.UserRoleConsultant, ParentID: &broker.ID, IsActive: true}
	require.NoError(t, conn.Create(&consultant).Error)

	listing := int64(50_000_000)
	deal := models.Deal{
		Title:        "4 Quay Street",
		Status:       enums.DealStatusOpen,
		ConsultantID: &consultant.ID,
		BrokerID:     &broker.ID,
		ListingPrice: &listing,
		Currency:     "USD",
	}
	require.NoError(t, conn.Create(&deal).Error)

	res, err := svcs.Deals.MarkWon(context.Background(), auth.Actor{UserID: broker.ID, Role: enums.UserRoleBroker}, deal.ID)
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.True(t, res.Created)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, deal.ID, res.Snapshot.DealID)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Positive(t, events)

	var auditRows int64
	require.NoError(t, conn.Model(&models.AuditLog{}).Count(&auditRows).Error)
	assert.Positive(t, auditRows)
}
