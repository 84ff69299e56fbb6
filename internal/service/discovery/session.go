// Package discovery holds the swipe state container: the candidate stack,
// the quota snapshot and the active filters of one signed-in user.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/session"
)

// Repository is the remote side of the swipe flow.
type Repository interface {
	GetNearbyUsers(ctx context.Context, userID string, filters models.SwipeFilters) ([]models.SwipeUser, error)
	GetTopUsers(ctx context.Context, userID string) ([]models.SwipeUser, error)
	PerformSwipeAction(ctx context.Context, userID, targetID string, action models.SwipeAction) (models.SwipeResult, error)
	RewindLastAction(ctx context.Context, userID, targetID string) (models.SwipeUser, error)
	GetUserMetrics(ctx context.Context, userID string) (models.SwipeMetrics, error)
	UpdateDiscoveryFilters(ctx context.Context, userID string, filters models.SwipeFilters) error
	MarkUserAsViewed(ctx context.Context, userID, targetID string) error
	ReportUser(ctx context.Context, userID, targetID, reason string) error
}

// FilterStore keeps the last applied filters on the device.
type FilterStore interface {
	SaveFilters(ctx context.Context, userID string, f models.SwipeFilters) error
}

// Options tunes a Session. Zero values fall back to DefaultOptions.
type Options struct {
	// MaxStack caps the candidate stack.
	MaxStack int
	// LowWater is the stack size at or below which a swipe triggers a refill.
	LowWater int
	// TopSeed is how many top users may seed the head of a full load.
	TopSeed int
	// SwipedMemory bounds how many swiped or reported ids are kept to
	// filter later loads. The oldest ids are forgotten first.
	SwipedMemory int
	// TopUsers enables the top users supplement on full loads.
	TopUsers bool
	// Filters are the initial criteria; nil means models.DefaultFilters.
	Filters     *models.SwipeFilters
	FilterStore FilterStore
	Logger      *slog.Logger
}

// DefaultOptions returns the stock stack sizes with the top users
// supplement enabled.
func DefaultOptions() Options {
	return Options{
		MaxStack:     20,
		LowWater:     3,
		TopSeed:      5,
		SwipedMemory: 500,
		TopUsers:     true,
	}
}

// ErrSessionClosed is carried by the Error state of any operation issued
// after Close.
var ErrSessionClosed = errors.New("discovery session closed")

const subscriberBuffer = 16

// Session is the discovery state container for one user. Methods are safe
// for concurrent use; the stack, metrics and state are guarded by mu and
// remote calls run outside of it. Every operation, direct or dispatched, is
// bound to the session lifetime: Close cancels it, waits for it, and any
// result landing after Close is dropped.
type Session struct {
	sc   session.Context
	repo Repository
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	closed        bool
	stack         []models.SwipeUser
	swiped        *swipedSet
	metrics       models.SwipeMetrics
	metricsLoaded bool
	filters       models.SwipeFilters
	state         State
	lastSwiped    *models.SwipeUser
	loading       bool
	refilling     bool
	generation    uint64
	subs          map[int]chan State
	nextSub       int
}

// NewSession builds an idle session acting for sc.
func NewSession(sc session.Context, repo Repository, opts Options) (*Session, error) {
	if !sc.Valid() {
		return nil, errors.New("session user id is empty")
	}
	if repo == nil {
		return nil, errors.New("repository is nil")
	}

	def := DefaultOptions()
	if opts.MaxStack <= 0 {
		opts.MaxStack = def.MaxStack
	}
	if opts.LowWater < 0 {
		opts.LowWater = def.LowWater
	}
	if opts.TopSeed < 0 {
		opts.TopSeed = def.TopSeed
	}
	if opts.SwipedMemory <= 0 {
		opts.SwipedMemory = def.SwipedMemory
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	filters := models.DefaultFilters()
	if opts.Filters != nil {
		filters = normalizeFilters(*opts.Filters)
	}

	ctx, cancel := context.WithCancel(session.NewContext(context.Background(), sc))
	return &Session{
		sc:      sc,
		repo:    repo,
		opts:    opts,
		log:     opts.Logger.With("user_id", sc.UserID),
		ctx:     ctx,
		cancel:  cancel,
		swiped:  newSwipedSet(opts.SwipedMemory),
		filters: filters,
		state:   State{Kind: StateIdle},
		subs:    map[int]chan State{},
	}, nil
}

// UserID is the user the session acts for.
func (s *Session) UserID() string { return s.sc.UserID }

// Start refreshes the quota snapshot and runs the first load.
func (s *Session) Start(ctx context.Context) State {
	if err := s.RefreshMetrics(ctx); err != nil {
		s.log.Warn("initial metrics refresh failed", "err", err)
	}
	return s.Load(ctx)
}

// Load runs a full load unless one is already in flight, in which case it
// returns the current state without calling the repository.
func (s *Session) Load(ctx context.Context) State {
	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if s.loading {
		st := s.state
		s.mu.Unlock()
		s.log.Debug("load ignored, already loading")
		return st
	}
	gen, filters := s.beginLoadLocked()
	s.mu.Unlock()

	return s.load(ctx, gen, filters)
}

// Reload runs a full load even when one is in flight. The older load's
// result is discarded when it lands.
func (s *Session) Reload(ctx context.Context) State {
	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	gen, filters := s.beginLoadLocked()
	s.mu.Unlock()

	return s.load(ctx, gen, filters)
}

func (s *Session) beginLoadLocked() (uint64, models.SwipeFilters) {
	s.generation++
	s.loading = true
	s.setStateLocked(State{Kind: StateLoading})
	return s.generation, cloneFilters(s.filters)
}

func (s *Session) load(ctx context.Context, gen uint64, filters models.SwipeFilters) State {
	var top, nearby []models.SwipeUser

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.TopUsers && s.opts.TopSeed > 0 {
		g.Go(func() error {
			users, err := s.repo.GetTopUsers(gctx, s.sc.UserID)
			if err != nil {
				// best effort, nearby alone is enough
				s.log.Debug("top users unavailable", "err", err)
				return nil
			}
			top = users
			return nil
		})
	}
	g.Go(func() error {
		users, err := s.repo.GetNearbyUsers(gctx, s.sc.UserID, filters)
		if err != nil {
			return err
		}
		nearby = users
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedState()
	}
	if gen != s.generation {
		s.log.Debug("stale load discarded", "generation", gen, "current", s.generation)
		return s.state
	}
	s.loading = false

	if err != nil {
		s.log.Warn("load failed", "err", err)
		return s.failLocked(err)
	}

	if len(top) > s.opts.TopSeed {
		top = top[:s.opts.TopSeed]
	}
	incoming := make([]models.SwipeUser, 0, len(top)+len(nearby))
	incoming = append(incoming, top...)
	incoming = append(incoming, nearby...)
	s.stack, _ = s.mergeLocked(nil, incoming)

	s.log.Debug("users loaded", "count", len(s.stack), "top", len(top), "nearby", len(nearby))
	return s.stackStateLocked()
}

// refill appends nearby users to the stack. It never replaces the stack and
// never surfaces a failure.
func (s *Session) refill(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.loading || s.refilling {
		s.mu.Unlock()
		return
	}
	s.refilling = true
	gen := s.generation
	filters := cloneFilters(s.filters)
	s.mu.Unlock()

	users, err := s.repo.GetNearbyUsers(ctx, s.sc.UserID, filters)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refilling = false

	if gen != s.generation || s.closed {
		return
	}
	if err != nil {
		s.log.Warn("refill failed", "err", err)
		return
	}

	var added int
	s.stack, added = s.mergeLocked(s.stack, users)
	s.log.Debug("stack refilled", "added", added, "size", len(s.stack))

	switch {
	case added > 0:
		s.setStateLocked(State{Kind: StateUsersLoaded, Users: cloneUsers(s.stack)})
	case len(s.stack) == 0 && !s.state.Kind.isOutcome():
		// an empty refill keeps a swipe or report outcome readable
		s.setStateLocked(State{Kind: StateNoMoreUsers})
	}
}

// mergeLocked appends incoming to base, skipping empty ids, duplicates and
// users already swiped in this session, and caps the result at MaxStack.
func (s *Session) mergeLocked(base, incoming []models.SwipeUser) ([]models.SwipeUser, int) {
	out := make([]models.SwipeUser, 0, s.opts.MaxStack)
	seen := make(map[string]struct{}, len(base)+len(incoming))
	for _, u := range base {
		if len(out) == s.opts.MaxStack {
			break
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}

	added := 0
	for _, u := range incoming {
		if len(out) == s.opts.MaxStack {
			break
		}
		if u.ID == "" {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		if s.swiped.has(u.ID) {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
		added++
	}
	return out, added
}

// Swipe acts on the head of the stack. The head is removed before the
// remote call and put back if the call fails.
func (s *Session) Swipe(ctx context.Context, action models.SwipeAction) State {
	const op = "swipe"

	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if !action.IsValid() {
		st := s.failLocked(svcErr.Business(op, 0, "Unknown swipe action."))
		s.mu.Unlock()
		return st
	}
	if len(s.stack) == 0 {
		st := s.failLocked(svcErr.Business(op, 0, "No more users to swipe."))
		s.mu.Unlock()
		return st
	}
	if s.metricsLoaded {
		switch {
		case action == models.SwipeSuperLike && !s.metrics.CanSuperLike:
			st := s.failLocked(svcErr.Business(op, 0, "You have no super likes left."))
			s.mu.Unlock()
			return st
		case action == models.SwipeLike && s.metrics.LikesExhausted():
			st := s.failLocked(svcErr.Business(op, 0, "You have reached your daily like limit."))
			s.mu.Unlock()
			return st
		}
	}

	target := s.stack[0]
	s.stack = s.stack[1:]
	prevLast := s.lastSwiped
	s.lastSwiped = &target
	s.swiped.add(target.ID)
	s.mu.Unlock()

	s.spawn(func(bg context.Context) { s.markViewed(bg, target.ID) })

	var (
		res models.SwipeResult
		err error
	)
	if action == models.SwipeDislike {
		res = models.SwipeResult{Action: action, User: target}
	} else {
		res, err = s.repo.PerformSwipeAction(ctx, s.sc.UserID, target.ID, action)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	var st State
	if err != nil {
		s.log.Warn("swipe failed", "target_id", target.ID, "action", action, "err", err)
		s.stack = s.putBackLocked(target)
		s.swiped.remove(target.ID)
		s.lastSwiped = prevLast
		st = s.failLocked(err)
	} else {
		res.Action = action
		res.User = target
		if action != models.SwipeDislike {
			s.metrics = s.metrics.Consume(action)
		}
		kind := StateUserSwiped
		if res.IsMatch {
			kind = StateMatchFound
		}
		st = State{Kind: kind, Result: &res}
		s.setStateLocked(st)
	}
	needRefill := len(s.stack) <= s.opts.LowWater
	s.mu.Unlock()

	if needRefill {
		s.spawn(s.refill)
	}
	return st
}

// putBackLocked puts u at the head, dropping any copy of it and keeping the
// stack within MaxStack.
func (s *Session) putBackLocked(u models.SwipeUser) []models.SwipeUser {
	out := make([]models.SwipeUser, 0, len(s.stack)+1)
	out = append(out, u)
	for _, c := range s.stack {
		if c.ID != u.ID {
			out = append(out, c)
		}
	}
	if len(out) > s.opts.MaxStack {
		out = out[:s.opts.MaxStack]
	}
	return out
}

func (s *Session) markViewed(ctx context.Context, targetID string) {
	if err := s.repo.MarkUserAsViewed(ctx, s.sc.UserID, targetID); err != nil {
		s.log.Debug("mark viewed failed", "target_id", targetID, "err", err)
	}
}

// Rewind restores the last swiped candidate to the head of the stack. It is
// refused without a remote call when the quota forbids it or nothing was swiped.
func (s *Session) Rewind(ctx context.Context) State {
	const op = "rewind"

	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if !s.metrics.CanRewind {
		st := s.failLocked(svcErr.Business(op, 0, "Rewind is not available."))
		s.mu.Unlock()
		return st
	}
	if s.lastSwiped == nil {
		st := s.failLocked(svcErr.Business(op, 0, "There is nothing to rewind."))
		s.mu.Unlock()
		return st
	}
	target := *s.lastSwiped
	s.mu.Unlock()

	restored, err := s.repo.RewindLastAction(ctx, s.sc.UserID, target.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if err != nil {
		s.log.Warn("rewind failed", "target_id", target.ID, "err", err)
		st := s.failLocked(err)
		s.mu.Unlock()
		return st
	}
	if restored.ID == "" {
		restored = target
	}
	s.stack = s.putBackLocked(restored)
	s.swiped.remove(restored.ID)
	s.swiped.remove(target.ID)
	s.lastSwiped = nil
	st := State{Kind: StateRewindSuccess, Restored: &restored}
	s.setStateLocked(st)
	s.mu.Unlock()

	if err := s.RefreshMetrics(ctx); err != nil {
		s.log.Warn("metrics refresh after rewind failed", "err", err)
	}
	return st
}

// RefreshMetrics replaces the quota snapshot. It does not change the state.
func (s *Session) RefreshMetrics(ctx context.Context) error {
	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return ErrSessionClosed
	}
	defer leave()

	m, err := s.repo.GetUserMetrics(ctx, s.sc.UserID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.metrics = m.Derive()
	s.metricsLoaded = true
	s.mu.Unlock()
	return nil
}

// UpdateFilters validates and pushes new criteria, then fully reloads the
// stack with them. A failed push restores the previous criteria.
func (s *Session) UpdateFilters(ctx context.Context, f models.SwipeFilters) State {
	f = normalizeFilters(f)

	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if err := ValidateFilters(f); err != nil {
		st := s.failLocked(err)
		s.mu.Unlock()
		return st
	}
	prev := s.filters
	s.filters = cloneFilters(f)
	s.mu.Unlock()

	if err := s.repo.UpdateDiscoveryFilters(ctx, s.sc.UserID, f); err != nil {
		s.log.Warn("filter update failed", "err", err)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return closedState()
		}
		if filtersEqual(s.filters, f) {
			s.filters = prev
		}
		st := s.failLocked(err)
		s.mu.Unlock()
		return st
	}

	if s.opts.FilterStore != nil {
		if err := s.opts.FilterStore.SaveFilters(ctx, s.sc.UserID, f); err != nil {
			s.log.Warn("saving filters locally failed", "err", err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	applied := cloneFilters(f)
	s.setStateLocked(State{Kind: StateFiltersUpdated, Filters: &applied})
	s.mu.Unlock()

	return s.Reload(ctx)
}

// Report reports targetID, or the head of the stack when targetID is empty,
// and drops the candidate from the stack once the server accepts it.
func (s *Session) Report(ctx context.Context, targetID, reason string) State {
	const op = "report user"

	ctx, leave, ok := s.enter(ctx)
	if !ok {
		return closedState()
	}
	defer leave()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	if targetID == "" {
		if len(s.stack) == 0 {
			st := s.failLocked(svcErr.Business(op, 0, "There is no user to report."))
			s.mu.Unlock()
			return st
		}
		targetID = s.stack[0].ID
	}
	s.mu.Unlock()

	if err := s.repo.ReportUser(ctx, s.sc.UserID, targetID, reason); err != nil {
		s.log.Warn("report failed", "target_id", targetID, "err", err)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return closedState()
		}
		st := s.failLocked(err)
		s.mu.Unlock()
		return st
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return closedState()
	}
	kept := make([]models.SwipeUser, 0, len(s.stack))
	for _, u := range s.stack {
		if u.ID != targetID {
			kept = append(kept, u)
		}
	}
	s.stack = kept
	s.swiped.add(targetID)
	if s.lastSwiped != nil && s.lastSwiped.ID == targetID {
		s.lastSwiped = nil
	}
	st := State{Kind: StateUserReported, ReportedID: targetID}
	s.setStateLocked(st)
	needRefill := len(s.stack) <= s.opts.LowWater
	s.mu.Unlock()

	if needRefill {
		s.spawn(s.refill)
	}
	return st
}

// Dispatch runs the intent as an independent unit of work tied to the session
// lifetime. It returns false once the session is closed.
//
// Behavior:
//   - Each intent runs on its own goroutine; its outcome is published to
//     subscribers rather than returned.
//   - Close cancels the intent and waits for it.
func (s *Session) Dispatch(in Intent) bool {
	return s.spawn(func(ctx context.Context) {
		switch in := in.(type) {
		case LoadUsers:
			if in.Force {
				s.Reload(ctx)
			} else {
				s.Load(ctx)
			}
		case SwipeIntent:
			s.Swipe(ctx, in.Action)
		case RewindIntent:
			s.Rewind(ctx)
		case UpdateFiltersIntent:
			s.UpdateFilters(ctx, in.Filters)
		case RefreshMetricsIntent:
			if err := s.RefreshMetrics(ctx); err != nil {
				s.log.Warn("metrics refresh failed", "err", err)
			}
		case ReportIntent:
			s.Report(ctx, in.TargetID, in.Reason)
		default:
			s.log.Error("unknown intent", "intent", in)
		}
	})
}

// Subscribe returns a channel of state changes and a cancel func. A slow
// reader only misses intermediate states; the latest one is always kept.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Snapshot copies the stack, quota, filters and current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:         s.state,
		Stack:         cloneUsers(s.stack),
		Metrics:       s.metrics,
		MetricsLoaded: s.metricsLoaded,
		Filters:       cloneFilters(s.filters),
		Loading:       s.loading,
		Generation:    s.generation,
	}
	if s.lastSwiped != nil {
		u := *s.lastSwiped
		snap.LastSwiped = &u
	}
	return snap
}

// State returns the outcome of the most recent operation.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until background work started so far has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight work, waits for it and closes subscriber channels.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

func (s *Session) spawn(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// enter registers a caller-driven operation. The returned context carries
// the session identity and is cancelled when either ctx or the session ends.
// Close waits until leave is called.
func (s *Session) enter(ctx context.Context) (_ context.Context, leave func(), ok bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(session.NewContext(ctx, s.sc))
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
		s.wg.Done()
	}, true
}

func (s *Session) stackStateLocked() State {
	st := State{Kind: StateNoMoreUsers}
	if len(s.stack) > 0 {
		st = State{Kind: StateUsersLoaded, Users: cloneUsers(s.stack)}
	}
	s.setStateLocked(st)
	return st
}

func (s *Session) failLocked(err error) State {
	st := State{Kind: StateError, Message: svcErr.Message(err), Err: err}
	s.setStateLocked(st)
	return st
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			// conflate: drop the oldest pending state
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func closedState() State {
	return State{Kind: StateError, Message: "The session has ended.", Err: ErrSessionClosed}
}

func cloneUsers(in []models.SwipeUser) []models.SwipeUser {
	if in == nil {
		return nil
	}
	out := make([]models.SwipeUser, len(in))
	copy(out, in)
	return out
}
