package store

// CallRecord is the persisted outcome of one session playthrough.
type CallRecord struct {
	ID            int32
	UID           string
	ScenarioUID   string
	Mode          string
	Status        string
	TurnCount     int
	WrongAttempts int
	Score         int
	CreatedTs     int64
}

type FindCallRecord struct {
	ID          *int32
	UID         *string
	ScenarioUID *string
	Limit       *int
}

type DeleteCallRecord struct {
	ID int32
}
