package enums

import "fmt"

// CommissionRole tags the participant an allocation line pays.
type CommissionRole string

const (
	CommissionRoleHunter     CommissionRole = "HUNTER"
	CommissionRoleConsultant CommissionRole = "CONSULTANT"
	CommissionRoleBroker     CommissionRole = "BROKER"
	CommissionRoleSystem     CommissionRole = "SYSTEM"
)

// CommissionRoles lists roles in allocation line order.
var CommissionRoles = []CommissionRole{
	CommissionRoleHunter,
	CommissionRoleConsultant,
	CommissionRoleBroker,
	CommissionRoleSystem,
}

func (r CommissionRole) IsValid() bool {
	for _, candidate := range CommissionRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseCommissionRole converts raw input into CommissionRole.
func ParseCommissionRole(value string) (CommissionRole, error) {
	for _, candidate := range CommissionRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission role %q", value)
}

// CalculationMethod selects how a policy derives the commission pool.
type CalculationMethod string

const (
	CalculationMethodPercentage CalculationMethod = "PERCENTAGE"
	CalculationMethodFixed      CalculationMethod = "FIXED"
)

func (m CalculationMethod) IsValid() bool {
	return m == CalculationMethodPercentage || m == CalculationMethodFixed
}

// ParseCalculationMethod converts raw input into CalculationMethod.
func ParseCalculationMethod(value string) (CalculationMethod, error) {
	m := CalculationMethod(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid calculation method %q", value)
	}
	return m, nil
}

// RoundingRule decides how exact ties are resolved in minor-unit division.
type RoundingRule string

const (
	RoundingHalfUp  RoundingRule = "ROUND_HALF_UP"
	RoundingBankers RoundingRule = "BANKERS"
)

func (r RoundingRule) IsValid() bool {
	return r == RoundingHalfUp || r == RoundingBankers
}

// ParseRoundingRule converts raw input into RoundingRule.
func ParseRoundingRule(value string) (RoundingRule, error) {
	r := RoundingRule(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid rounding rule %q", value)
	}
	return r, nil
}

// SnapshotStatus is the approval state of a commission snapshot.
type SnapshotStatus string

const (
	SnapshotStatusPendingApproval SnapshotStatus = "PENDING_APPROVAL"
	SnapshotStatusApproved        SnapshotStatus = "APPROVED"
	SnapshotStatusReversed        SnapshotStatus = "REVERSED"
)

var validSnapshotStatuses = []SnapshotStatus{
	SnapshotStatusPendingApproval,
	SnapshotStatusApproved,
	SnapshotStatusReversed,
}

func (s SnapshotStatus) IsValid() bool {
	for _, candidate := range validSnapshotStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSnapshotStatus converts raw input into SnapshotStatus.
func ParseSnapshotStatus(value string) (SnapshotStatus, error) {
	for _, candidate := range validSnapshotStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid snapshot status %q", value)
}

// AllocationLineStatus is the payment state of a per-role allocation line.
type AllocationLineStatus string

const (
	AllocationLinePending  AllocationLineStatus = "PENDING"
	AllocationLineApproved AllocationLineStatus = "APPROVED"
	AllocationLinePartial  AllocationLineStatus = "PARTIAL"
	AllocationLinePaid     AllocationLineStatus = "PAID"
	AllocationLineReversed AllocationLineStatus = "REVERSED"
)

// IsPayable reports whether a payout may draw from the line.
func (s AllocationLineStatus) IsPayable() bool {
	return s == AllocationLineApproved || s == AllocationLinePartial
}

// LedgerEntryType classifies a commission ledger movement.
type LedgerEntryType string

const (
	LedgerEntryEarn     LedgerEntryType = "EARN"
	LedgerEntryPayout   LedgerEntryType = "PAYOUT"
	LedgerEntryReversal LedgerEntryType = "REVERSAL"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryEarn,
	LedgerEntryPayout,
	LedgerEntryReversal,
}

// IsValid reports whether the value matches a known ledger entry type.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Direction returns the only direction an entry of this type may carry.
func (t LedgerEntryType) Direction() LedgerDirection {
	if t == LedgerEntryEarn {
		return LedgerDirectionCredit
	}
	return LedgerDirectionDebit
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

type LedgerDirection string

const (
	LedgerDirectionCredit LedgerDirection = "CREDIT"
	LedgerDirectionDebit  LedgerDirection = "DEBIT"
)

// PayableAllocationState is the export workflow state of a payable allocation.
type PayableAllocationState string

const (
	PayableAllocationPending  PayableAllocationState = "PENDING"
	PayableAllocationApproved PayableAllocationState = "APPROVED"
	PayableAllocationVoid     PayableAllocationState = "VOID"
)

var validPayableAllocationStates = []PayableAllocationState{
	PayableAllocationPending,
	PayableAllocationApproved,
	PayableAllocationVoid,
}

func (s PayableAllocationState) IsValid() bool {
	for _, candidate := range validPayableAllocationStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePayableAllocationState converts raw input into PayableAllocationState.
func ParsePayableAllocationState(value string) (PayableAllocationState, error) {
	for _, candidate := range validPayableAllocationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid allocation state %q", value)
}
