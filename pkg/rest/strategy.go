package rest

import "github.com/sqlrest/sqlrest/pkg/mssql/catalog"

// Strategy is the technique used to hand the affected row back to the
// caller after a mutation. Tables without enabled triggers attach an
// OUTPUT clause directly; trigger-bearing tables cannot, so the row is
// re-fetched (by identity or key) or captured in a per-execution staging
// holder.
type Strategy int

const (
	// StrategyDirect attaches OUTPUT INSERTED/DELETED.* to the statement.
	StrategyDirect Strategy = iota
	// StrategyIdentityReselect executes the write, then selects the row by
	// the freshly generated identity value (SCOPE_IDENTITY()).
	StrategyIdentityReselect
	// StrategyKeyReselect executes the write, then selects the row by a
	// known primary-key value (caller-supplied on insert, addressed on
	// update).
	StrategyKeyReselect
	// StrategyStaging directs the statement's OUTPUT into a session-scoped
	// staging table shaped like the object's columns, then selects and
	// drops it. The only technique that works when neither identity nor
	// key is available to re-fetch the row.
	StrategyStaging
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyIdentityReselect:
		return "identity-reselect"
	case StrategyKeyReselect:
		return "key-reselect"
	case StrategyStaging:
		return "staging"
	default:
		return "unknown"
	}
}

// MutationPlan fixes one strategy per mutation for an object. Resolved
// once at discovery time and reused for every request, so behavior stays
// consistent even if catalog state drifts between requests.
type MutationPlan struct {
	Insert Strategy
	Update Strategy
	Delete Strategy
}

// PlanMutations derives the mutation plan from trigger and identity state.
//
// Insert on a trigger table without an identity column resolves to the
// staging family; when the request payload happens to carry the primary
// key value the builder takes the cheaper key-reselect branch of that
// plan at synthesis time.
//
// Delete on a trigger table always stages: after the write there is no
// row left to reselect.
func PlanMutations(obj *catalog.Object) MutationPlan {
	if !obj.HasEnabledTrigger {
		return MutationPlan{
			Insert: StrategyDirect,
			Update: StrategyDirect,
			Delete: StrategyDirect,
		}
	}

	plan := MutationPlan{
		Update: StrategyKeyReselect,
		Delete: StrategyStaging,
	}
	if obj.IdentityColumn != "" {
		plan.Insert = StrategyIdentityReselect
	} else {
		plan.Insert = StrategyStaging
	}
	return plan
}
