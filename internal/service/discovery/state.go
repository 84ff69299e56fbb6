package discovery

import (
	"github.com/cafezinho/discovery/internal/models"
)

// StateKind is the outcome of the most recent operation on a Session.
type StateKind int

const (
	StateIdle StateKind = iota
	StateLoading
	StateUsersLoaded
	StateNoMoreUsers
	StateUserSwiped
	StateMatchFound
	StateRewindSuccess
	StateFiltersUpdated
	StateUserReported
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateUsersLoaded:
		return "users_loaded"
	case StateNoMoreUsers:
		return "no_more_users"
	case StateUserSwiped:
		return "user_swiped"
	case StateMatchFound:
		return "match_found"
	case StateRewindSuccess:
		return "rewind_success"
	case StateFiltersUpdated:
		return "filters_updated"
	case StateUserReported:
		return "user_reported"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// isOutcome reports whether k answers a user action on a candidate.
func (k StateKind) isOutcome() bool {
	switch k {
	case StateUserSwiped, StateMatchFound, StateRewindSuccess, StateUserReported:
		return true
	}
	return false
}

// State is a tagged union keyed by Kind. Only the fields of the active kind are set:
//   - UsersLoaded: Users
//   - UserSwiped, MatchFound: Result
//   - RewindSuccess: Restored
//   - FiltersUpdated: Filters
//   - UserReported: ReportedID
//   - Error: Message, Err
type State struct {
	Kind StateKind

	Users      []models.SwipeUser
	Result     *models.SwipeResult
	Restored   *models.SwipeUser
	Filters    *models.SwipeFilters
	ReportedID string

	// Message is meant for direct display.
	Message string
	Err     error
}

func (s State) IsError() bool { return s.Kind == StateError }

// Intent is a request dispatched to a Session.
type Intent interface {
	isIntent()
}

type (
	LoadUsers            struct{ Force bool }
	SwipeIntent          struct{ Action models.SwipeAction }
	RewindIntent         struct{}
	UpdateFiltersIntent  struct{ Filters models.SwipeFilters }
	RefreshMetricsIntent struct{}
	// ReportIntent reports TargetID, or the head candidate when empty.
	ReportIntent struct {
		TargetID string
		Reason   string
	}
)

func (LoadUsers) isIntent()            {}
func (SwipeIntent) isIntent()          {}
func (RewindIntent) isIntent()         {}
func (UpdateFiltersIntent) isIntent()  {}
func (RefreshMetricsIntent) isIntent() {}
func (ReportIntent) isIntent()         {}

// Snapshot is a consistent copy of a Session's observable data.
type Snapshot struct {
	State         State
	Stack         []models.SwipeUser
	Metrics       models.SwipeMetrics
	MetricsLoaded bool
	Filters       models.SwipeFilters
	LastSwiped    *models.SwipeUser
	Loading       bool
	Generation    uint64
}
