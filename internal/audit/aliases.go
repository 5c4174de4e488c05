package audit

import "sort"

// Canonical actions.
const (
	ActionPolicyCreated         = "COMMISSION_POLICY_CREATED"
	ActionSnapshotCreated       = "COMMISSION_SNAPSHOT_CREATED"
	ActionSnapshotApproved      = "COMMISSION_SNAPSHOT_APPROVED"
	ActionSnapshotReversed      = "COMMISSION_SNAPSHOT_REVERSED"
	ActionPayoutCreated         = "COMMISSION_PAYOUT_CREATED"
	ActionAllocated             = "COMMISSION_ALLOCATED"
	ActionAllocationApproved    = "COMMISSION_ALLOCATION_APPROVED"
	ActionAllocationVoided      = "COMMISSION_ALLOCATION_VOIDED"
	ActionAllocationsExported   = "COMMISSION_ALLOCATIONS_EXPORTED"
	ActionUserParentSet         = "USER_PARENT_SET"
	ActionCommissionSplitSet    = "COMMISSION_SPLIT_SET"
	ActionDealWon               = "DEAL_WON"
	ActionIntegrityJobCompleted = "SNAPSHOT_INTEGRITY_CHECKED"
)

// Canonical entity types.
const (
	EntityPolicy     = "COMMISSION_POLICY"
	EntitySnapshot   = "COMMISSION_SNAPSHOT"
	EntityPayout     = "COMMISSION_PAYOUT"
	EntityAllocation = "COMMISSION_ALLOCATION"
	EntitySplit      = "COMMISSION_SPLIT"
	EntityUser       = "USER"
	EntityDeal       = "DEAL"
	EntityJobRun     = "JOB_RUN"
)

// maxAliasDepth bounds alias chains.
const maxAliasDepth = 8

// actionAliases maps historical action names toward their canonical form.
// Some legacy names point at other legacy names.
var actionAliases = map[string]string{
	"commission.snapshot.create":  "SNAPSHOT_CREATED",
	"SNAPSHOT_CREATED":            ActionSnapshotCreated,
	"COMMISSION_CREATED":          ActionSnapshotCreated,
	"commission.snapshot.approve": "SNAPSHOT_APPROVED",
	"SNAPSHOT_APPROVED":           ActionSnapshotApproved,
	"COMMISSION_APPROVED":         ActionSnapshotApproved,
	"SNAPSHOT_REVERSED":           ActionSnapshotReversed,
	"COMMISSION_REVERSED":         ActionSnapshotReversed,
	"PAYOUT_CREATED":              ActionPayoutCreated,
	"COMMISSION_PAID":             ActionPayoutCreated,
	"ALLOCATION_CREATED":          ActionAllocated,
	"ALLOCATION_APPROVED":         ActionAllocationApproved,
	"ALLOCATION_VOIDED":           ActionAllocationVoided,
	"ALLOCATION_VOID":             "ALLOCATION_VOIDED",
	"ALLOCATION_EXPORT":           "ALLOCATIONS_EXPORTED",
	"ALLOCATIONS_EXPORTED":        ActionAllocationsExported,
	"HIERARCHY_PARENT_UPDATED":    ActionUserParentSet,
	"SET_PARENT":                  "HIERARCHY_PARENT_UPDATED",
	"SPLIT_CONFIG_UPDATED":        ActionCommissionSplitSet,
	"POLICY_CREATED":              ActionPolicyCreated,
}

// entityAliases maps historical entity type names toward canonical ones.
var entityAliases = map[string]string{
	"commission_snapshot":   EntitySnapshot,
	"CommissionSnapshot":    "commission_snapshot",
	"SNAPSHOT":              EntitySnapshot,
	"commission_allocation": EntityAllocation,
	"CommissionAllocation":  "commission_allocation",
	"ALLOCATION":            EntityAllocation,
	"commission_payout":     EntityPayout,
	"PAYOUT":                EntityPayout,
	"commission_policy":     EntityPolicy,
	"POLICY":                EntityPolicy,
	"split_config":          EntitySplit,
	"user":                  EntityUser,
	"User":                  "user",
	"deal":                  EntityDeal,
	"Deal":                  "deal",
}

var (
	actionExpansions = buildExpansions(actionAliases)
	entityExpansions = buildExpansions(entityAliases)
)

// CanonicalAction resolves a possibly legacy action name.
func CanonicalAction(action string) string {
	return resolveAlias(actionAliases, action)
}

// CanonicalEntityType resolves a possibly legacy entity type name.
func CanonicalEntityType(entityType string) string {
	return resolveAlias(entityAliases, entityType)
}

// ExpandAction returns every stored spelling that resolves to the canonical
// form of action, sorted, canonical included.
func ExpandAction(action string) []string {
	return expand(actionAliases, actionExpansions, action)
}

// ExpandEntityType is ExpandAction for entity types.
func ExpandEntityType(entityType string) []string {
	return expand(entityAliases, entityExpansions, entityType)
}

// resolveAlias follows table from value. It stops at maxAliasDepth or when
// the next hop was already visited, returning the last value resolved.
func resolveAlias(table map[string]string, value string) string {
	current := value
	seen := map[string]struct{}{value: {}}
	for i := 0; i < maxAliasDepth; i++ {
		next, ok := table[current]
		if !ok {
			return current
		}
		if _, loop := seen[next]; loop {
			return current
		}
		seen[next] = struct{}{}
		current = next
	}
	return current
}

func buildExpansions(table map[string]string) map[string][]string {
	out := make(map[string][]string)
	for legacy := range table {
		canonical := resolveAlias(table, legacy)
		out[canonical] = append(out[canonical], legacy)
	}
	for canonical, values := range out {
		sort.Strings(values)
		out[canonical] = values
	}
	return out
}

func expand(table map[string]string, expansions map[string][]string, value string) []string {
	canonical := resolveAlias(table, value)
	values := []string{canonical}
	for _, legacy := range expansions[canonical] {
		if legacy != canonical {
			values = append(values, legacy)
		}
	}
	sort.Strings(values)
	return values
}
