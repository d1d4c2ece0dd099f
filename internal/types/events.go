package types

// EventKind identifies events emitted to the consumer.
type EventKind string

const (
	EventPhaseChanged     EventKind = "phase_changed"
	EventTurnChanged      EventKind = "turn_changed"
	EventOpponentMoved    EventKind = "opponent_moved"
	EventRoundOutcome     EventKind = "round_outcome"
	EventMatchOutcome     EventKind = "match_outcome"
	EventMatchSettled     EventKind = "match_settled"
	EventStaleInProgress  EventKind = "stale_in_progress"
	EventAuthorityDesync  EventKind = "authority_desync"
	EventSubmissionFailed EventKind = "submission_failed"
	EventPollFailed       EventKind = "poll_failed"
	EventMatchNotFound    EventKind = "match_not_found"
)

// Event is a state-change notification for the consumer.
type Event struct {
	Kind    EventKind
	MatchID MatchID
	Payload any
}

type PhaseChangedPayload struct {
	From Phase
	To   Phase
}

type TurnChangedPayload struct {
	Round     int
	LocalTurn bool
}

type OpponentMovedPayload struct {
	Round     int
	Card      Card
	Remaining int
}

type RoundOutcomePayload struct {
	Round        int
	Outcome      Outcome
	LocalCard    *Card
	OpponentCard *Card
}

// MatchOutcomePayload carries the final outcome. For EventMatchOutcome it is
// provisional until EventMatchSettled follows.
type MatchOutcomePayload struct {
	Outcome Outcome
}

type StaleInProgressPayload struct {
	Observed MatchState
}

// ErrorPayload carries failures surfaced as events rather than returned.
type ErrorPayload struct {
	Err error
}

// Listener receives events. It must not block for long.
type Listener func(Event)
