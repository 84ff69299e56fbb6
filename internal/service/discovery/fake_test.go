package discovery_test

import (
	"context"
	"fmt"
	"sync"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/session"
)

// fakeRepo is an in-memory Repository with per-method call counters.
type fakeRepo struct {
	mu sync.Mutex

	nearby   []models.SwipeUser
	nearbyFn func(call int, f models.SwipeFilters) ([]models.SwipeUser, error)
	// nearbyCtx, when set, takes over GetNearbyUsers and sees the call context.
	nearbyCtx func(ctx context.Context) ([]models.SwipeUser, error)
	top      []models.SwipeUser
	topErr   error

	swipeRes models.SwipeResult
	swipeErr error

	rewindUser models.SwipeUser
	rewindErr  error

	metrics    models.SwipeMetrics
	metricsErr error

	filtersErr error
	reportErr  error
	viewedErr  error

	calls       map[string]int
	lastFilters models.SwipeFilters
	tokens      []string
}

func newFakeRepo(nearby ...models.SwipeUser) *fakeRepo {
	return &fakeRepo{nearby: nearby, calls: map[string]int{}}
}

func (r *fakeRepo) record(ctx context.Context, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	r.tokens = append(r.tokens, session.TokenFromContext(ctx))
	return r.calls[name]
}

func (r *fakeRepo) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRepo) set(fn func(r *fakeRepo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *fakeRepo) GetNearbyUsers(ctx context.Context, userID string, f models.SwipeFilters) ([]models.SwipeUser, error) {
	call := r.record(ctx, "nearby")
	r.mu.Lock()
	r.lastFilters = f
	fn, users := r.nearbyFn, append([]models.SwipeUser(nil), r.nearby...)
	withCtx := r.nearbyCtx
	r.mu.Unlock()

	if withCtx != nil {
		return withCtx(ctx)
	}
	if fn != nil {
		return fn(call, f)
	}
	return users, nil
}

func (r *fakeRepo) GetTopUsers(ctx context.Context, userID string) ([]models.SwipeUser, error) {
	r.record(ctx, "top")
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SwipeUser(nil), r.top...), r.topErr
}

func (r *fakeRepo) PerformSwipeAction(ctx context.Context, userID, targetID string, action models.SwipeAction) (models.SwipeResult, error) {
	r.record(ctx, "swipe")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.swipeErr != nil {
		return models.SwipeResult{}, r.swipeErr
	}
	res := r.swipeRes
	res.Action = action
	res.User = models.SwipeUser{ID: targetID}
	return res, nil
}

func (r *fakeRepo) RewindLastAction(ctx context.Context, userID, targetID string) (models.SwipeUser, error) {
	r.record(ctx, "rewind")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rewindUser, r.rewindErr
}

func (r *fakeRepo) GetUserMetrics(ctx context.Context, userID string) (models.SwipeMetrics, error) {
	r.record(ctx, "metrics")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics, r.metricsErr
}

func (r *fakeRepo) UpdateDiscoveryFilters(ctx context.Context, userID string, f models.SwipeFilters) error {
	r.record(ctx, "filters")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filtersErr
}

func (r *fakeRepo) MarkUserAsViewed(ctx context.Context, userID, targetID string) error {
	r.record(ctx, "viewed")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewedErr
}

func (r *fakeRepo) ReportUser(ctx context.Context, userID, targetID, reason string) error {
	r.record(ctx, "report")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportErr
}

// fakeStore is an in-memory SessionStore.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Context
	filters  map[string]models.SwipeFilters
	// beforeLoad, when set, runs at the start of Load.
	beforeLoad func(userID string)
}

func newFakeStore(scs ...session.Context) *fakeStore {
	s := &fakeStore{sessions: map[string]session.Context{}, filters: map[string]models.SwipeFilters{}}
	for _, sc := range scs {
		s.sessions[sc.UserID] = sc
	}
	return s
}

func (s *fakeStore) Load(_ context.Context, userID string) (session.Context, error) {
	if s.beforeLoad != nil {
		s.beforeLoad(userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.sessions[userID]
	if !ok {
		return session.Context{}, svcErr.ErrSessionNotFound
	}
	return sc, nil
}

func (s *fakeStore) LoadFilters(_ context.Context, userID string) (models.SwipeFilters, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filters[userID]
	return f, ok, nil
}

func (s *fakeStore) SaveFilters(_ context.Context, userID string, f models.SwipeFilters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[userID] = f
	return nil
}

func (s *fakeStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	delete(s.filters, userID)
	return nil
}

func (s *fakeStore) has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	return ok
}

func users(ids ...string) []models.SwipeUser {
	out := make([]models.SwipeUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.SwipeUser{ID: id, FirstName: "user" + id})
	}
	return out
}

func numbered(prefix string, n int) []models.SwipeUser {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("%s%d", prefix, i))
	}
	return users(ids...)
}

func ids(us []models.SwipeUser) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.ID)
	}
	return out
}
