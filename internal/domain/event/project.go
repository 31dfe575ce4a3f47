package event

// State is the materialized snapshot projected from an event history. It is
// the "state" half of the context payload sent to the agent.
type State struct {
	Profile map[string]any `json:"profile"`
	Plan    map[string]any `json:"plan"`
	Workout Workout        `json:"workout"`
	Chat    Chat           `json:"chat"`
}

// Workout tracks the in-progress workout, if any.
type Workout struct {
	Active map[string]any   `json:"active"`
	Sets   []map[string]any `json:"sets"`
}

// Chat holds the projected chat transcript.
type Chat struct {
	Messages []map[string]any `json:"messages"`
}

// ProjectState folds an ordered event history into a State snapshot.
func ProjectState(events []Event) State {
	st := State{
		Workout: Workout{Sets: []map[string]any{}},
		Chat:    Chat{Messages: []map[string]any{}},
	}

	for _, ev := range events {
		switch ev.Type {
		case TypeProfileSaved, TypeUserOnboarded:
			st.Profile = ev.Payload
		case TypeProfileDeleted:
			st.Profile = nil
		case TypePlanGenerated:
			st.Plan = ev.Payload
		case TypeWorkoutStarted:
			st.Workout.Active = ev.Payload
		case TypeSetLogged:
			st.Workout.Sets = append(st.Workout.Sets, ev.Payload)
		case TypeWorkoutCompleted:
			st.Workout.Active = nil
		case TypeChatMessageSent:
			// payload: { role: "user"|"assistant", text: string }
			st.Chat.Messages = append(st.Chat.Messages, ev.Payload)
		}
	}

	return st
}

// Snapshot renders the state as a generic map for the agent context payload.
func (s State) Snapshot() map[string]any {
	var profile, plan, active any
	if s.Profile != nil {
		profile = s.Profile
	}
	if s.Plan != nil {
		plan = s.Plan
	}
	if s.Workout.Active != nil {
		active = s.Workout.Active
	}
	return map[string]any{
		"profile": profile,
		"plan":    plan,
		"workout": map[string]any{"active": active, "sets": s.Workout.Sets},
		"chat":    map[string]any{"messages": s.Chat.Messages},
	}
}
