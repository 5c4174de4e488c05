package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/pkg/enums"
)

// SnapshotCreatedEvent announces a new commission snapshot and its split.
type SnapshotCreatedEvent struct {
	SnapshotID       uuid.UUID `json:"snapshot_id"`
	DealID           uuid.UUID `json:"deal_id"`
	Version          int       `json:"version"`
	PolicyVersionID  uuid.UUID `json:"policy_version_id"`
	BaseAmount       int64     `json:"base_amount"`
	PoolAmount       int64     `json:"pool_amount"`
	Currency         string    `json:"currency"`
	HunterAmount     int64     `json:"hunter_amount"`
	ConsultantAmount int64     `json:"consultant_amount"`
	BrokerAmount     int64     `json:"broker_amount"`
	SystemAmount     int64     `json:"system_amount"`
}

// SnapshotApprovedEvent is emitted when a checker approves a snapshot.
type SnapshotApprovedEvent struct {
	SnapshotID       uuid.UUID `json:"snapshot_id"`
	DealID           uuid.UUID `json:"deal_id"`
	ApprovedByUserID uuid.UUID `json:"approved_by_user_id"`
	ApprovedAt       time.Time `json:"approved_at"`
	Override         bool      `json:"override"`
}

// SnapshotReversedEvent reports the outstanding amounts debited on reversal.
type SnapshotReversedEvent struct {
	SnapshotID     uuid.UUID `json:"snapshot_id"`
	DealID         uuid.UUID `json:"deal_id"`
	Reason         string    `json:"reason"`
	ReversedAmount int64     `json:"reversed_amount"`
	Currency       string    `json:"currency"`
	ReversedAt     time.Time `json:"reversed_at"`
}

// PayoutLine is one disbursement inside a payout.
type PayoutLine struct {
	AllocationLineID uuid.UUID                  `json:"allocation_line_id"`
	Amount           int64                      `json:"amount"`
	Status           enums.AllocationLineStatus `json:"status"`
}

// PayoutCreatedEvent is emitted once per payout.
type PayoutCreatedEvent struct {
	PayoutID    uuid.UUID    `json:"payout_id"`
	Currency    string       `json:"currency"`
	TotalAmount int64        `json:"total_amount"`
	Override    bool         `json:"override"`
	Lines       []PayoutLine `json:"lines"`
}

// AllocationsExportedEvent groups the rows newly stamped with a batch id.
type AllocationsExportedEvent struct {
	BatchID       string      `json:"batch_id"`
	SnapshotIDs   []uuid.UUID `json:"snapshot_ids"`
	AllocationIDs []uuid.UUID `json:"allocation_ids"`
	ExportedAt    time.Time   `json:"exported_at"`
}
