package models

// All lists every persisted model, in dependency order, for schema tooling.
func All() []any {
	return []any{
		&User{},
		&Deal{},
		&CommissionPolicyVersion{},
		&CommissionSnapshot{},
		&CommissionAllocationLine{},
		&CommissionLedgerEntry{},
		&CommissionPayout{},
		&CommissionPayoutAllocation{},
		&CommissionPayableAllocation{},
		&CommissionSplitConfig{},
		&AuditLog{},
		&JobRun{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
