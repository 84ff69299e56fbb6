package discovery

import (
	"slices"
	"strings"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
)

const minAllowedAge = 18

// ValidateFilters checks criteria before they are sent anywhere. The
// returned error is a business failure with a display message.
func ValidateFilters(f models.SwipeFilters) error {
	const op = "validate filters"
	switch {
	case f.MinAge < minAllowedAge:
		return svcErr.Business(op, 0, "Minimum age must be at least 18.")
	case f.MaxAge < f.MinAge:
		return svcErr.Business(op, 0, "Maximum age must not be below minimum age.")
	case f.MaxDistanceKm <= 0:
		return svcErr.Business(op, 0, "Distance must be greater than zero.")
	}
	switch f.Gender {
	case models.GenderAny, models.GenderMale, models.GenderFemale:
	default:
		return svcErr.Business(op, 0, "Unknown gender preference.")
	}
	return nil
}

func normalizeFilters(f models.SwipeFilters) models.SwipeFilters {
	f.Gender = strings.ToLower(strings.TrimSpace(f.Gender))
	if f.Gender == "" {
		f.Gender = models.GenderAny
	}

	var interests []string
	for _, in := range f.Interests {
		in = strings.TrimSpace(in)
		if in != "" && !slices.Contains(interests, in) {
			interests = append(interests, in)
		}
	}
	f.Interests = interests
	return f
}

func cloneFilters(f models.SwipeFilters) models.SwipeFilters {
	f.Interests = slices.Clone(f.Interests)
	return f
}

func filtersEqual(a, b models.SwipeFilters) bool {
	return a.MinAge == b.MinAge &&
		a.MaxAge == b.MaxAge &&
		a.MaxDistanceKm == b.MaxDistanceKm &&
		a.Gender == b.Gender &&
		a.OnlineOnly == b.OnlineOnly &&
		a.VerifiedOnly == b.VerifiedOnly &&
		slices.Equal(a.Interests, b.Interests)
}
