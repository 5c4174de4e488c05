package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateCommissionSnapshot OutboxAggregateType = "commission_snapshot"
	AggregateCommissionPayout   OutboxAggregateType = "commission_payout"
	AggregateExportBatch        OutboxAggregateType = "commission_export_batch"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCommissionSnapshot,
	AggregateCommissionPayout,
	AggregateExportBatch,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a commission domain event.
type OutboxEventType string

const (
	EventSnapshotCreated     OutboxEventType = "commission.snapshot_created"
	EventSnapshotApproved    OutboxEventType = "commission.snapshot_approved"
	EventSnapshotReversed    OutboxEventType = "commission.snapshot_reversed"
	EventPayoutCreated       OutboxEventType = "commission.payout_created"
	EventAllocationsExported OutboxEventType = "commission.allocations_exported"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSnapshotCreated,
	EventSnapshotApproved,
	EventSnapshotReversed,
	EventPayoutCreated,
	EventAllocationsExported,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQReason records why an event was moved to the dead letter table.
type OutboxDLQReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQReason = "non_retryable"
)

func (r OutboxDLQReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
