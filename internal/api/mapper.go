package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cafezinho/discovery/internal/models"
)

// ToSwipeUser maps a wire user record to a candidate. Absent fields fall
// back to zero values; photos are ordered by their order index.
func ToSwipeUser(dto UserDTO) models.SwipeUser {
	u := models.SwipeUser{
		ID:          string(dto.ID),
		FirstName:   strings.TrimSpace(dto.FirstName),
		LastName:    strings.TrimSpace(dto.LastName),
		DisplayName: strings.TrimSpace(dto.Name),
		Age:         int(dto.Age),
		Interests:   append([]string(nil), dto.Interests...),
		DistanceKm:  copyFloat(dto.Distance),
		IsVerified:  bool(dto.IsVerified),
		IsPremium:   bool(dto.IsPremium),
		IsOnline:    bool(dto.IsOnline),
		Rating:      copyFloat(dto.Rating),
	}
	if dto.Bio != nil {
		u.Bio = *dto.Bio
	}
	if dto.ProfileCompletion != nil {
		pc := int(*dto.ProfileCompletion)
		u.ProfileCompletion = &pc
	}

	u.Photos = make([]models.Photo, 0, len(dto.Photos))
	for _, p := range dto.Photos {
		u.Photos = append(u.Photos, ToPhoto(p))
	}
	sort.SliceStable(u.Photos, func(i, j int) bool { return u.Photos[i].Order < u.Photos[j].Order })

	return u
}

// ToSwipeUsers maps a list, keeping server order.
func ToSwipeUsers(dtos []UserDTO) []models.SwipeUser {
	users := make([]models.SwipeUser, 0, len(dtos))
	for _, d := range dtos {
		users = append(users, ToSwipeUser(d))
	}
	return users
}

// ToPhoto maps one photo reference, trimming the url.
func ToPhoto(dto PhotoDTO) models.Photo {
	return models.Photo{
		ID:     string(dto.ID),
		URL:    strings.TrimSpace(dto.URL),
		Order:  int(dto.Order),
		IsMain: bool(dto.IsMain),
	}
}

// ToSwipeMetrics maps the consumable payload and derives the capability flags.
func ToSwipeMetrics(dto ConsumableDTO) models.SwipeMetrics {
	m := models.SwipeMetrics{
		DailyLikesUsed:  int(dto.DailyLikesUsed),
		DailyLikesLimit: int(dto.DailyLikesLimit),
		SuperLikesUsed:  int(dto.SuperLikesUsed),
		SuperLikesLimit: int(dto.SuperLikesLimit),
		RewindsUsed:     int(dto.RewindsUsed),
		RewindsLimit:    int(dto.RewindsLimit),
		IsPremium:       bool(dto.IsPremium),
	}
	for _, row := range dto.Consumables {
		switch normalizeConsumableType(row.Type) {
		case "like", "dailylike":
			m.DailyLikesUsed, m.DailyLikesLimit = int(row.Used), int(row.Limit)
		case "superlike":
			m.SuperLikesUsed, m.SuperLikesLimit = int(row.Used), int(row.Limit)
		case "rewind":
			m.RewindsUsed, m.RewindsLimit = int(row.Used), int(row.Limit)
		}
	}
	return m.Derive()
}

func normalizeConsumableType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.NewReplacer("_", "", "-", "", " ", "").Replace(t)
	return strings.TrimSuffix(t, "s")
}

// ToSwipeResult maps the swipe response. The caller fills in the full
// candidate; only its id is known here.
func ToSwipeResult(action models.SwipeAction, targetID string, dto SwipeResponseDTO) models.SwipeResult {
	res := models.SwipeResult{
		Action:  action,
		User:    models.SwipeUser{ID: targetID},
		IsMatch: bool(dto.IsMatch),
	}
	if res.IsMatch {
		md := &models.MatchData{MatchID: string(dto.MatchID)}
		if dto.MatchMessage != nil {
			md.Message = *dto.MatchMessage
		}
		res.Match = md
	}
	return res
}

// WireAction is the action name the remote API expects.
func WireAction(a models.SwipeAction) string {
	switch a {
	case models.SwipeSuperLike:
		return "super_like"
	case models.SwipeDislike:
		return "dislike"
	default:
		return "like"
	}
}

// NearbyQuery turns filter criteria into query parameters.
func NearbyQuery(f models.SwipeFilters) url.Values {
	q := url.Values{}
	q.Set("min_age", strconv.Itoa(f.MinAge))
	q.Set("max_age", strconv.Itoa(f.MaxAge))
	q.Set("radius", strconv.Itoa(f.MaxDistanceKm))
	if f.Gender != "" {
		q.Set("gender", f.Gender)
	}
	if f.OnlineOnly {
		q.Set("online_only", "1")
	}
	if f.VerifiedOnly {
		q.Set("verified_only", "1")
	}
	if len(f.Interests) > 0 {
		q.Set("interests", strings.Join(f.Interests, ","))
	}
	return q
}

// ToPreferencesRequest builds the preferences body. Interests are always
// sent, as an empty list when none are set.
func ToPreferencesRequest(f models.SwipeFilters) PreferencesRequest {
	interests := f.Interests
	if interests == nil {
		interests = []string{}
	}
	return PreferencesRequest{
		MinAge:           f.MinAge,
		MaxAge:           f.MaxAge,
		MaxDistance:      f.MaxDistanceKm,
		GenderPreference: f.Gender,
		OnlineOnly:       f.OnlineOnly,
		VerifiedOnly:     f.VerifiedOnly,
		Interests:        interests,
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
