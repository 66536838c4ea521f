package sim

import (
	"github.com/arla-sim/agentsim/internal/ecs"
)

// toFloat coerces the numeric types ToDict can legitimately produce and the
// numeric type encoding/json unmarshal always produces (float64) into a
// float64, so component factories don't care whether data came straight
// from Build (native Go ints/floats) or from a round-tripped JSON file.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// CoreComponentFactory decodes the sim package's own component types
// (TagTimeBudget, TagActionPlan, TagActionOutcome) from their ToDict form.
// It reports ok=false for any other tag so an embedder's ComponentFactory
// can fall through to its own tags; this lets the core's types be
// rehydrated without the embedder needing to know their field layout.
func CoreComponentFactory(tag ecs.TypeTag, data map[string]any) (component ecs.Component, ok bool, err error) {
	switch tag {
	case TagTimeBudget:
		c := &TimeBudgetComponent{}
		if f, have := toFloat(data["initial_time_budget"]); have {
			c.InitialTimeBudget = f
		}
		if f, have := toFloat(data["max_time_budget"]); have {
			c.MaxTimeBudget = f
		}
		if f, have := toFloat(data["current_time_budget"]); have {
			c.CurrentTimeBudget = f
		}
		if b, have := toBool(data["is_active"]); have {
			c.IsActive = b
		}
		return c, true, nil
	case TagActionPlan:
		c := &ActionPlanComponent{}
		if s, have := data["action_id"].(string); have {
			c.ActionID = s
		}
		if s, have := data["intent"].(string); have {
			c.Intent = s
		}
		if m, have := data["params"].(map[string]any); have {
			c.Params = m
		}
		return c, true, nil
	case TagActionOutcome:
		c := &ActionOutcomeComponent{}
		if b, have := toBool(data["success"]); have {
			c.Success = b
		}
		if s, have := data["message"].(string); have {
			c.Message = s
		}
		if f, have := toFloat(data["base_reward"]); have {
			c.BaseReward = f
		}
		if f, have := toFloat(data["final_reward"]); have {
			c.FinalReward = f
		}
		if m, have := data["details"].(map[string]any); have {
			c.Details = m
		}
		return c, true, nil
	}
	return nil, false, nil
}
