package core

// State is derived from which images the Document holds.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateProcessed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateProcessed:
		return "processed"
	default:
		return "unknown"
	}
}

// Actions lists which user actions are currently allowed.
type Actions struct {
	Load    bool
	Process bool
	Save    bool
}
