package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cafezinho/discovery/internal/api"
	"github.com/cafezinho/discovery/internal/cache"
	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
)

// DiscoveryRepository wraps the remote API for the swipe flow and maps
// every payload to domain values. Failures come back as *errors.Failure.
type DiscoveryRepository struct {
	client *api.Client
	cache  *cache.RedisCache
	log    *slog.Logger
}

// NewDiscoveryRepository creates the repository. redisCache may be nil, in
// which case viewed markers are never deduplicated and top users are not cached.
func NewDiscoveryRepository(client *api.Client, redisCache *cache.RedisCache, log *slog.Logger) *DiscoveryRepository {
	if log == nil {
		log = slog.Default()
	}
	return &DiscoveryRepository{client: client, cache: redisCache, log: log}
}

// GetNearbyUsers fetches candidates matching filters, in server order.
func (r *DiscoveryRepository) GetNearbyUsers(ctx context.Context, userID string, filters models.SwipeFilters) ([]models.SwipeUser, error) {
	if err := requireID("get nearby users", userID); err != nil {
		return nil, err
	}
	dtos, err := r.client.NearbyUsers(ctx, userID, api.NearbyQuery(filters))
	if err != nil {
		return nil, err
	}
	return api.ToSwipeUsers(dtos), nil
}

// GetTopUsers fetches the priority supplement, served from Redis when cached.
func (r *DiscoveryRepository) GetTopUsers(ctx context.Context, userID string) ([]models.SwipeUser, error) {
	if err := requireID("get top users", userID); err != nil {
		return nil, err
	}

	if r.cache != nil {
		users, hit, err := r.cache.GetTopUsers(ctx, userID)
		if err != nil {
			r.log.Warn("top users cache read failed", "user_id", userID, "err", err)
		} else if hit {
			return users, nil
		}
	}

	dtos, err := r.client.TopUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	users := api.ToSwipeUsers(dtos)

	if r.cache != nil {
		if err := r.cache.SetTopUsers(ctx, userID, users); err != nil {
			r.log.Warn("top users cache write failed", "user_id", userID, "err", err)
		}
	}
	return users, nil
}

// PerformSwipeAction sends LIKE and SUPER_LIKE to the server. DISLIKE is
// resolved locally as a non-match without any remote call.
func (r *DiscoveryRepository) PerformSwipeAction(ctx context.Context, userID, targetID string, action models.SwipeAction) (models.SwipeResult, error) {
	const op = "swipe"
	if err := requireID(op, userID); err != nil {
		return models.SwipeResult{}, err
	}
	if err := requireID(op, targetID); err != nil {
		return models.SwipeResult{}, err
	}
	if !action.IsValid() {
		return models.SwipeResult{}, svcErr.Business(op, 0, "Unknown swipe action.")
	}

	if action == models.SwipeDislike {
		return models.SwipeResult{Action: action, User: models.SwipeUser{ID: targetID}}, nil
	}

	dto, err := r.client.Swipe(ctx, api.SwipeRequest{
		UserID:       userID,
		TargetUserID: targetID,
		Action:       api.WireAction(action),
	})
	if err != nil {
		return models.SwipeResult{}, err
	}
	r.invalidateTopUsers(ctx, userID)
	return api.ToSwipeResult(action, targetID, dto), nil
}

// RewindLastAction undoes the swipe on targetID and returns the restored
// candidate. Quota is the caller's concern.
func (r *DiscoveryRepository) RewindLastAction(ctx context.Context, userID, targetID string) (models.SwipeUser, error) {
	const op = "rewind"
	if err := requireID(op, userID); err != nil {
		return models.SwipeUser{}, err
	}
	if err := requireID(op, targetID); err != nil {
		return models.SwipeUser{}, err
	}

	dto, err := r.client.Rewind(ctx, userID, targetID)
	if err != nil {
		return models.SwipeUser{}, err
	}
	r.invalidateTopUsers(ctx, userID)
	return api.ToSwipeUser(dto), nil
}

// GetUserMetrics fetches the quota snapshot with capability flags derived.
func (r *DiscoveryRepository) GetUserMetrics(ctx context.Context, userID string) (models.SwipeMetrics, error) {
	if err := requireID("get metrics", userID); err != nil {
		return models.SwipeMetrics{}, err
	}
	dto, err := r.client.Consumables(ctx, userID)
	if err != nil {
		return models.SwipeMetrics{}, err
	}
	return api.ToSwipeMetrics(dto), nil
}

// UpdateDiscoveryFilters pushes filters as the user's server-side preferences.
func (r *DiscoveryRepository) UpdateDiscoveryFilters(ctx context.Context, userID string, filters models.SwipeFilters) error {
	if err := requireID("update filters", userID); err != nil {
		return err
	}
	return r.client.UpdatePreferences(ctx, userID, api.ToPreferencesRequest(filters))
}

// MarkUserAsViewed sends the viewed marker at most once per pair while the
// Redis claim lives. A failed send releases the claim.
func (r *DiscoveryRepository) MarkUserAsViewed(ctx context.Context, userID, targetID string) error {
	const op = "mark viewed"
	if err := requireID(op, userID); err != nil {
		return err
	}
	if err := requireID(op, targetID); err != nil {
		return err
	}

	claimed := false
	if r.cache != nil {
		ok, err := r.cache.ClaimViewed(ctx, userID, targetID)
		switch {
		case err != nil:
			r.log.Debug("viewed claim failed, sending anyway", "user_id", userID, "target_id", targetID, "err", err)
		case !ok:
			return nil
		default:
			claimed = true
		}
	}

	err := r.client.MarkViewed(ctx, api.ViewRequest{ViewerID: userID, ViewedUserID: targetID})
	if err != nil && claimed {
		if rerr := r.cache.ReleaseViewed(context.WithoutCancel(ctx), userID, targetID); rerr != nil {
			r.log.Debug("viewed release failed", "user_id", userID, "target_id", targetID, "err", rerr)
		}
	}
	return err
}

// ReportUser reports targetID with a trimmed reason and drops the cached
// top users, which may include the reported user.
func (r *DiscoveryRepository) ReportUser(ctx context.Context, userID, targetID, reason string) error {
	const op = "report user"
	if err := requireID(op, userID); err != nil {
		return err
	}
	if err := requireID(op, targetID); err != nil {
		return err
	}

	err := r.client.ReportUser(ctx, api.ReportRequest{
		UserID:         userID,
		ReportedUserID: targetID,
		Reason:         strings.TrimSpace(reason),
	})
	if err != nil {
		return err
	}
	r.invalidateTopUsers(ctx, userID)
	return nil
}

func (r *DiscoveryRepository) invalidateTopUsers(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateTopUsers(ctx, userID); err != nil {
		r.log.Debug("top users cache invalidation failed", "user_id", userID, "err", err)
	}
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return svcErr.Business(op, 0, "User id is required.")
	}
	return nil
}
