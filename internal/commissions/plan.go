package commissions

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/brokerledger/pkg/db/models"
	"github.com/angelmondragon/brokerledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/brokerledger/pkg/errors"
	"github.com/angelmondragon/brokerledger/pkg/money"
)

// Participants are the deal's beneficiaries. The system role never has one.
type Participants struct {
	Hunter     *uuid.UUID
	Consultant *uuid.UUID
	Broker     *uuid.UUID
}

// ParticipantsFromDeal reads the beneficiaries recorded on deal.
func ParticipantsFromDeal(deal models.Deal) Participants {
	return Participants{Hunter: deal.HunterID, Consultant: deal.ConsultantID, Broker: deal.BrokerID}
}

func (p Participants) beneficiary(role enums.CommissionRole) *uuid.UUID {
	switch role {
	case enums.CommissionRoleHunter:
		return p.Hunter
	case enums.CommissionRoleConsultant:
		return p.Consultant
	case enums.CommissionRoleBroker:
		return p.Broker
	}
	return nil
}

// PlannedLine is one role's share before it is persisted.
type PlannedLine struct {
	Role              enums.CommissionRole
	BeneficiaryUserID *uuid.UUID
	BasisPoints       int64
	Amount            int64
	AbsorbsRemainder  bool
}

// Plan is the full split of a pool. Lines always sum to Pool.
type Plan struct {
	Pool      int64
	Remainder int64
	Lines     []PlannedLine
}

// AmountFor returns the planned amount of role, zero when it has no line.
func (p Plan) AmountFor(role enums.CommissionRole) int64 {
	var total int64
	for _, line := range p.Lines {
		if line.Role == role {
			total += line.Amount
		}
	}
	return total
}

// FoldWeights moves the weight of roles without a participant: hunter and
// broker fold into the consultant, and the consultant folds into system.
func FoldWeights(policy models.CommissionPolicyVersion, participants Participants) map[enums.CommissionRole]int64 {
	weights := map[enums.CommissionRole]int64{
		enums.CommissionRoleHunter:     policy.HunterBp,
		enums.CommissionRoleConsultant: policy.ConsultantBp,
		enums.CommissionRoleBroker:     policy.BrokerBp,
		enums.CommissionRoleSystem:     policy.SystemBp,
	}
	for _, role := range []enums.CommissionRole{enums.CommissionRoleHunter, enums.CommissionRoleBroker} {
		if participants.beneficiary(role) == nil {
			weights[enums.CommissionRoleConsultant] += weights[role]
			weights[role] = 0
		}
	}
	if participants.Consultant == nil {
		weights[enums.CommissionRoleSystem] += weights[enums.CommissionRoleConsultant]
		weights[enums.CommissionRoleConsultant] = 0
	}
	return weights
}

// ComputePool applies the policy's calculation method to base.
func ComputePool(policy models.CommissionPolicyVersion, base int64) (int64, error) {
	switch policy.Method {
	case enums.CalculationMethodPercentage:
		pool, err := money.MulBasisPoints(base, policy.RateBp, policy.Rounding)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute commission pool")
		}
		return pool, nil
	case enums.CalculationMethodFixed:
		return policy.FixedAmount, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported calculation method %q", policy.Method))
	}
}

// PlanAllocations splits pool across the roles with a nonzero folded weight.
// The rounding remainder lands on the consultant line, or on the last line
// when there is no consultant.
func PlanAllocations(policy models.CommissionPolicyVersion, pool int64, participants Participants) (Plan, error) {
	if pool < 0 {
		return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "commission pool must not be negative")
	}
	weights := FoldWeights(policy, participants)
	plan := Plan{Pool: pool}

	var sum int64
	absorber := -1
	for _, role := range enums.CommissionRoles {
		weight := weights[role]
		if weight == 0 {
			continue
		}
		if weight < 0 {
			return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("negative weight for %s", role))
		}
		amount, err := money.MulBasisPoints(pool, weight, policy.Rounding)
		if err != nil {
			return Plan{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "split commission pool")
		}
		if role == enums.CommissionRoleConsultant {
			absorber = len(plan.Lines)
		}
		plan.Lines = append(plan.Lines, PlannedLine{
			Role:              role,
			BeneficiaryUserID: participants.beneficiary(role),
			BasisPoints:       weight,
			Amount:            amount,
		})
		sum += amount
	}

	if len(plan.Lines) == 0 {
		if pool != 0 {
			return Plan{}, pkgerrors.New(pkgerrors.CodeConflict, "policy assigns no weight to any role")
		}
		return plan, nil
	}
	if absorber < 0 {
		absorber = len(plan.Lines) - 1
	}

	plan.Remainder = pool - sum
	line := &plan.Lines[absorber]
	line.Amount += plan.Remainder
	line.AbsorbsRemainder = true
	if line.Amount < 0 {
		spillDeficit(plan.Lines, absorber)
	}
	return plan, nil
}

// spillDeficit clears a negative absorber by taking the shortfall from the
// other lines, last first. Only half-up ties on tiny pools get here.
func spillDeficit(lines []PlannedLine, absorber int) {
	deficit := -lines[absorber].Amount
	lines[absorber].Amount = 0
	for i := len(lines) - 1; i >= 0 && deficit > 0; i-- {
		if i == absorber {
			continue
		}
		take := lines[i].Amount
		if take > deficit {
			take = deficit
		}
		lines[i].Amount -= take
		deficit -= take
	}
}
