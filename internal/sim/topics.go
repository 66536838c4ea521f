package sim

// Core event topics. "execute_<action_id>_action" is a family of topics,
// one per action type; ExecuteTopic builds the name.
const (
	TopicActionChosen       = "action_chosen"
	TopicActionOutcomeReady = "action_outcome_ready"
	TopicActionExecuted     = "action_executed"
	TopicEntityInactivated  = "entity_inactivated"
)

// ExecuteTopic returns the fan-out routing topic for a given action id.
func ExecuteTopic(actionID string) string {
	return "execute_" + actionID + "_action"
}
