package domain

// Turn is a single persisted session turn.
type Turn struct {
	PK            string
	SK            string
	SessionID     string
	UserText      string
	AssistantText string
	Status        string
	TTL           int64
}

// SessionMeta stores aggregate session state.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}
