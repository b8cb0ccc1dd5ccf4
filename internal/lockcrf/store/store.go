package store

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("store: conflict")
)

// Action codes carried by Request and Log rows.
const (
	ActionUnlock  = 1
	ActionLock    = 2
	ActionUnknown = 254 // vendor reported a state it could not classify
)

// Source identifies the channel that originated a logged action.
type Source int

const (
	SourceNuki       Source = 0 // vendor app, keypad, fob or manual key
	SourceAdminPanel Source = 1
	SourcePhone      Source = 2
)

func (s Source) String() string {
	switch s {
	case SourceNuki:
		return "nuki"
	case SourceAdminPanel:
		return "admin_panel"
	case SourcePhone:
		return "phone"
	default:
		return "unknown"
	}
}
