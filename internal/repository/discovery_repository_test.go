package repository_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafezinho/discovery/internal/api"
	"github.com/cafezinho/discovery/internal/cache"
	"github.com/cafezinho/discovery/internal/config"
	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/logger"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/repository"
)

type fixture struct {
	repo  *repository.DiscoveryRepository
	calls map[string]*atomic.Int32
	mr    *miniredis.Miniredis
}

// newFixture serves handlers keyed by "METHOD path" and counts hits per route.
func newFixture(t *testing.T, routes map[string]string, status map[string]int) *fixture {
	t.Helper()

	calls := map[string]*atomic.Int32{}
	for k := range routes {
		calls[k] = &atomic.Int32{}
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"success":false,"message":"no route"}`)
			return
		}
		calls[key].Add(1)
		if code, ok := status[key]; ok {
			w.WriteHeader(code)
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	client, err := api.NewClient(server.URL, time.Second, nil)
	require.NoError(t, err)

	return &fixture{
		repo:  repository.NewDiscoveryRepository(client, rc, logger.Discard()),
		calls: calls,
		mr:    mr,
	}
}

func (f *fixture) hits(key string) int32 { return f.calls[key].Load() }

func TestGetNearbyUsers_MapsUsers(t *testing.T) {
	f := newFixture(t, map[string]string{
		"GET /user/showNearByUsers/1": `{"success":true,"data":[{"id":2,"first_name":"Ana","age":"30"},{"id":3}]}`,
	}, nil)

	users, err := f.repo.GetNearbyUsers(context.Background(), "1", models.DefaultFilters())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "2", users[0].ID)
	assert.Equal(t, 30, users[0].Age)
}

func TestGetNearbyUsers_RequiresUserID(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.repo.GetNearbyUsers(context.Background(), " ", models.DefaultFilters())
	assert.Equal(t, svcErr.KindBusiness, svcErr.KindOf(err))
}

func TestGetTopUsers_CachesResult(t *testing.T) {
	f := newFixture(t, map[string]string{
		"GET /user/getTopUsers/1": `{"success":true,"data":[{"id":9,"first_name":"Top"}]}`,
	}, nil)
	ctx := context.Background()

	first, err := f.repo.GetTopUsers(ctx, "1")
	require.NoError(t, err)
	second, err := f.repo.GetTopUsers(ctx, "1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.hits("GET /user/getTopUsers/1"))
}

func TestPerformSwipeAction_DislikeIsLocal(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /consumable/like": `{"success":true,"data":{"is_match":true}}`,
	}, nil)

	res, err := f.repo.PerformSwipeAction(context.Background(), "1", "2", models.SwipeDislike)
	require.NoError(t, err)
	assert.False(t, res.IsMatch)
	assert.Equal(t, models.SwipeDislike, res.Action)
	assert.Equal(t, "2", res.User.ID)
	assert.Equal(t, int32(0), f.hits("POST /consumable/like"))
}

func TestPerformSwipeAction_LikeMatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /consumable/like":   `{"success":true,"data":{"is_match":1,"match_id":55,"match_message":"It's a match!"}}`,
		"GET /user/getTopUsers/1": `{"success":true,"data":[]}`,
	}, nil)
	ctx := context.Background()

	_, _ = f.repo.GetTopUsers(ctx, "1")
	require.True(t, f.mr.Exists("top_users:1"))

	res, err := f.repo.PerformSwipeAction(ctx, "1", "2", models.SwipeLike)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
	require.NotNil(t, res.Match)
	assert.Equal(t, "55", res.Match.MatchID)
	assert.False(t, f.mr.Exists("top_users:1"))
}

func TestPerformSwipeAction_QuotaExhausted(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /consumable/like": `{"success":false,"message":"No super likes left"}`,
	}, map[string]int{"POST /consumable/like": http.StatusForbidden})

	_, err := f.repo.PerformSwipeAction(context.Background(), "1", "2", models.SwipeSuperLike)
	require.Error(t, err)
	assert.Equal(t, "No super likes left", svcErr.Message(err))
}

func TestRewindLastAction(t *testing.T) {
	f := newFixture(t, map[string]string{
		"DELETE /consumable/like/1/2": `{"success":true,"data":{"id":"2","first_name":"Bia"}}`,
	}, nil)

	u, err := f.repo.RewindLastAction(context.Background(), "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", u.ID)
	assert.Equal(t, "Bia", u.FirstName)
}

func TestGetUserMetrics(t *testing.T) {
	f := newFixture(t, map[string]string{
		"GET /consumable/user/1": `{"success":true,"data":{"daily_likes_used":5,"daily_likes_limit":100,"rewinds_used":1,"rewinds_limit":1}}`,
	}, nil)

	m, err := f.repo.GetUserMetrics(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 5, m.DailyLikesUsed)
	assert.False(t, m.CanRewind)
}

func TestUpdateDiscoveryFilters(t *testing.T) {
	f := newFixture(t, map[string]string{
		"PUT /user/preferences/1": `{"success":true,"message":"ok"}`,
	}, nil)

	err := f.repo.UpdateDiscoveryFilters(context.Background(), "1", models.SwipeFilters{MinAge: 25, MaxAge: 35, MaxDistanceKm: 10})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.hits("PUT /user/preferences/1"))
}

func TestMarkUserAsViewed_SentOnce(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /user/view": `{"success":true}`,
	}, nil)
	ctx := context.Background()

	require.NoError(t, f.repo.MarkUserAsViewed(ctx, "1", "2"))
	require.NoError(t, f.repo.MarkUserAsViewed(ctx, "1", "2"))
	assert.Equal(t, int32(1), f.hits("POST /user/view"))
}

func TestMarkUserAsViewed_FailureReleasesClaim(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /user/view": `oops`,
	}, map[string]int{"POST /user/view": http.StatusInternalServerError})
	ctx := context.Background()

	assert.Error(t, f.repo.MarkUserAsViewed(ctx, "1", "2"))
	assert.Error(t, f.repo.MarkUserAsViewed(ctx, "1", "2"))
	assert.Equal(t, int32(2), f.hits("POST /user/view"))
}

func TestReportUser(t *testing.T) {
	f := newFixture(t, map[string]string{
		"POST /reportUser": `{"success":true,"message":"Reported"}`,
	}, nil)

	require.NoError(t, f.repo.ReportUser(context.Background(), "1", "2", " spam "))
	assert.Equal(t, int32(1), f.hits("POST /reportUser"))

	err := f.repo.ReportUser(context.Background(), "1", "", "spam")
	assert.Equal(t, svcErr.KindBusiness, svcErr.KindOf(err))
}
