// Package models holds the domain values of the discovery flow. They are
// produced by the api mapping layer and never mutated in place.
package models

import "strings"

// SwipeAction is the decision a user takes on a candidate.
type SwipeAction string

const (
	SwipeLike      SwipeAction = "LIKE"
	SwipeDislike   SwipeAction = "DISLIKE"
	SwipeSuperLike SwipeAction = "SUPER_LIKE"
)

func (a SwipeAction) IsValid() bool {
	switch a {
	case SwipeLike, SwipeDislike, SwipeSuperLike:
		return true
	}
	return false
}

// ParseSwipeAction accepts the upper-case names as well as the lower-case
// wire values ("like", "dislike", "super_like", "superlike").
func ParseSwipeAction(s string) (SwipeAction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIKE":
		return SwipeLike, true
	case "DISLIKE", "PASS":
		return SwipeDislike, true
	case "SUPER_LIKE", "SUPERLIKE":
		return SwipeSuperLike, true
	}
	return "", false
}

// Photo is a reference to one profile picture.
type Photo struct {
	ID     string
	URL    string
	Order  int
	IsMain bool
}

// SwipeUser is a candidate profile summary.
type SwipeUser struct {
	ID                string
	FirstName         string
	LastName          string
	DisplayName       string
	Age               int
	Bio               string
	Photos            []Photo
	Interests         []string
	DistanceKm        *float64
	IsVerified        bool
	IsPremium         bool
	IsOnline          bool
	Rating            *float64
	ProfileCompletion *int
}

// Name returns the display name, falling back to first and last name.
func (u SwipeUser) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// MainPhoto returns the representative photo: the one flagged main, else
// the first in order.
func (u SwipeUser) MainPhoto() (Photo, bool) {
	for _, p := range u.Photos {
		if p.IsMain {
			return p, true
		}
	}
	if len(u.Photos) == 0 {
		return Photo{}, false
	}
	return u.Photos[0], true
}

// MatchData is the server payload attached to a match.
type MatchData struct {
	MatchID string
	Message string
}

// SwipeResult is the outcome of one swipe.
type SwipeResult struct {
	Action  SwipeAction
	User    SwipeUser
	IsMatch bool
	// Match is nil unless IsMatch is true.
	Match *MatchData
}

// SwipeMetrics is the daily quota snapshot. A daily likes limit of 0 means
// unlimited likes.
type SwipeMetrics struct {
	DailyLikesUsed  int
	DailyLikesLimit int
	SuperLikesUsed  int
	SuperLikesLimit int
	RewindsUsed     int
	RewindsLimit    int
	IsPremium       bool
	CanRewind       bool
	CanSuperLike    bool
}

// Derive recomputes the capability flags from the counters.
func (m SwipeMetrics) Derive() SwipeMetrics {
	m.CanRewind = m.IsPremium || m.RewindsUsed < m.RewindsLimit
	m.CanSuperLike = m.SuperLikesUsed < m.SuperLikesLimit
	return m
}

// LikesExhausted reports whether a non-premium user used the whole daily limit.
func (m SwipeMetrics) LikesExhausted() bool {
	return !m.IsPremium && m.DailyLikesLimit > 0 && m.DailyLikesUsed >= m.DailyLikesLimit
}

// Consume returns the snapshot after one successful action of the given kind.
// Counters never exceed their limit.
func (m SwipeMetrics) Consume(action SwipeAction) SwipeMetrics {
	switch action {
	case SwipeLike:
		m.DailyLikesUsed = clampedIncr(m.DailyLikesUsed, m.DailyLikesLimit)
	case SwipeSuperLike:
		m.SuperLikesUsed = clampedIncr(m.SuperLikesUsed, m.SuperLikesLimit)
	}
	return m.Derive()
}

func clampedIncr(used, limit int) int {
	used++
	if limit > 0 && used > limit {
		return limit
	}
	return used
}

// Gender preference values understood by the remote API.
const (
	GenderAny    = "all"
	GenderMale   = "male"
	GenderFemale = "female"
)

// SwipeFilters are the discovery criteria.
type SwipeFilters struct {
	MinAge        int
	MaxAge        int
	MaxDistanceKm int
	Gender        string
	OnlineOnly    bool
	VerifiedOnly  bool
	Interests     []string
}

// DefaultFilters is used until the user picks their own.
func DefaultFilters() SwipeFilters {
	return SwipeFilters{
		MinAge:        18,
		MaxAge:        99,
		MaxDistanceKm: 50,
		Gender:        GenderAny,
	}
}
