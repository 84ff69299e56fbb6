package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/utils/pagination"
)

// ServiceName is the fully-qualified gRPC service name. Requests and
// responses are google.protobuf.Struct values with snake_case fields.
const ServiceName = "cafezinho.discovery.v1.Discovery"

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// DiscoveryServer is the server API of the Discovery service.
type DiscoveryServer interface {
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Load(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Swipe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Rewind(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateFilters(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Report(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCandidates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stop(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Discovery service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiscoveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: unaryHandler("Start", DiscoveryServer.Start)},
		{MethodName: "Load", Handler: unaryHandler("Load", DiscoveryServer.Load)},
		{MethodName: "Swipe", Handler: unaryHandler("Swipe", DiscoveryServer.Swipe)},
		{MethodName: "Rewind", Handler: unaryHandler("Rewind", DiscoveryServer.Rewind)},
		{MethodName: "UpdateFilters", Handler: unaryHandler("UpdateFilters", DiscoveryServer.UpdateFilters)},
		{MethodName: "RefreshMetrics", Handler: unaryHandler("RefreshMetrics", DiscoveryServer.RefreshMetrics)},
		{MethodName: "Report", Handler: unaryHandler("Report", DiscoveryServer.Report)},
		{MethodName: "GetState", Handler: unaryHandler("GetState", DiscoveryServer.GetState)},
		{MethodName: "ListCandidates", Handler: unaryHandler("ListCandidates", DiscoveryServer.ListCandidates)},
		{MethodName: "Stop", Handler: unaryHandler("Stop", DiscoveryServer.Stop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cafezinho/discovery/v1/discovery.proto",
}

type unaryMethod func(DiscoveryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DiscoveryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + name,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DiscoveryServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Service implements the Discovery gRPC API on top of the session Manager.
// Every request names the acting user in "user_id".
type Service struct {
	sessions *Manager
	log      *slog.Logger
}

// NewService serves the sessions hosted by sessions. A nil log falls back
// to slog.Default.
func NewService(sessions *Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{sessions: sessions, log: log}
}

// Start opens the session, refreshes metrics and runs the first load.
func (s *Service) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.reply(sess, sess.Start(ctx))
}

// Load runs a full load; "force": true supersedes one in flight.
func (s *Service) Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if boolField(req, "force") {
		return s.reply(sess, sess.Reload(ctx))
	}
	return s.reply(sess, sess.Load(ctx))
}

// Swipe takes "action": like | dislike | super_like.
func (s *Service) Swipe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	action, ok := models.ParseSwipeAction(stringField(req, "action"))
	if !ok {
		return nil, svcErr.InvalidArgument("action must be one of like, dislike, super_like")
	}
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Swipe called", "user_id", sess.UserID(), "action", action)
	return s.reply(sess, sess.Swipe(ctx, action))
}

// Rewind restores the last swiped candidate; refusals map to FailedPrecondition.
func (s *Service) Rewind(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.reply(sess, sess.Rewind(ctx))
}

// UpdateFilters takes min_age, max_age, max_distance, gender, online_only,
// verified_only and interests. Missing fields keep their current value.
func (s *Service) UpdateFilters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}

	f := sess.Snapshot().Filters
	for _, field := range []struct {
		key string
		dst *int
	}{
		{"min_age", &f.MinAge},
		{"max_age", &f.MaxAge},
		{"max_distance", &f.MaxDistanceKm},
	} {
		v, ok, err := intField(req, field.key)
		if err != nil {
			return nil, err
		}
		if ok {
			*field.dst = v
		}
	}
	if has(req, "gender") {
		f.Gender = stringField(req, "gender")
	}
	if has(req, "online_only") {
		f.OnlineOnly = boolField(req, "online_only")
	}
	if has(req, "verified_only") {
		f.VerifiedOnly = boolField(req, "verified_only")
	}
	if has(req, "interests") {
		f.Interests = stringsField(req, "interests")
	}

	return s.reply(sess, sess.UpdateFilters(ctx, f))
}

// RefreshMetrics reloads the quota snapshot and returns the unchanged state.
func (s *Service) RefreshMetrics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sess.RefreshMetrics(ctx); err != nil {
		s.log.Warn("RefreshMetrics failed", "user_id", sess.UserID(), "err", err)
		return nil, svcErr.Map(err)
	}
	return s.reply(sess, sess.State())
}

// Report takes "reason" and an optional "target_user_id" (defaults to the
// head of the stack).
func (s *Service) Report(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	reason := strings.TrimSpace(stringField(req, "reason"))
	if reason == "" {
		return nil, svcErr.InvalidArgument("reason is required")
	}
	sess, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.reply(sess, sess.Report(ctx, stringField(req, "target_user_id"), reason))
}

// GetState reads the live session only; it never opens one.
func (s *Service) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.active(req)
	if err != nil {
		return nil, err
	}
	return s.reply(sess, sess.State())
}

// ListCandidates pages through the current stack with "page_size" and
// "page_token". A token minted for a different stack head is rejected.
// Like GetState it requires a live session.
func (s *Service) ListCandidates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.active(req)
	if err != nil {
		return nil, err
	}

	cursor, err := pagination.Decode(stringField(req, "page_token"))
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	size, ok, err := intField(req, "page_size")
	if err != nil {
		return nil, err
	}
	if !ok || size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	stack := sess.Snapshot().Stack
	headID := ""
	if len(stack) > 0 {
		headID = stack[0].ID
	}
	if cursor.Offset > 0 && cursor.HeadID != headID {
		return nil, svcErr.FailedPrecondition("candidate stack changed, restart listing")
	}

	start, end, next := pagination.Page(cursor, len(stack), size, headID)
	out := map[string]any{
		"users": usersValue(stack[start:end]),
		"total": len(stack),
	}
	if next != nil {
		token, err := pagination.Encode(*next)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		out["next_page_token"] = token
	}
	return toStruct(out)
}

// Stop closes the user's session. With "sign_out": true the stored token
// and filters are deleted too, so a later Start fails with NotFound.
func (s *Service) Stop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := strings.TrimSpace(stringField(req, "user_id"))
	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	if !boolField(req, "sign_out") {
		return toStruct(map[string]any{"closed": s.sessions.Close(userID)})
	}

	_, live := s.sessions.Get(userID)
	if err := s.sessions.SignOut(ctx, userID); err != nil {
		s.log.Error("sign out failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	return toStruct(map[string]any{"closed": live, "signed_out": true})
}

func (s *Service) open(ctx context.Context, req *structpb.Struct) (*Session, error) {
	userID := strings.TrimSpace(stringField(req, "user_id"))
	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	sess, err := s.sessions.Open(ctx, userID)
	if err != nil {
		s.log.Error("open session failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	return sess, nil
}

func (s *Service) active(req *structpb.Struct) (*Session, error) {
	userID := strings.TrimSpace(stringField(req, "user_id"))
	if userID == "" {
		return nil, svcErr.InvalidArgument("user_id is required")
	}
	sess, ok := s.sessions.Get(userID)
	if !ok {
		return nil, svcErr.NotFound("no active discovery session, call Start first")
	}
	return sess, nil
}

// reply turns an Error state into a gRPC status and anything else into the
// state plus the current snapshot.
func (s *Service) reply(sess *Session, st State) (*structpb.Struct, error) {
	if st.IsError() {
		if errors.Is(st.Err, ErrSessionClosed) {
			return nil, svcErr.FailedPrecondition(st.Message)
		}
		return nil, svcErr.Map(st.Err)
	}
	return toStruct(stateValue(st, sess.Snapshot()))
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return out, nil
}

func stateValue(st State, snap Snapshot) map[string]any {
	out := map[string]any{
		"state":          st.Kind.String(),
		"stack_size":     len(snap.Stack),
		"metrics":        metricsValue(snap.Metrics),
		"metrics_loaded": snap.MetricsLoaded,
		"filters":        filtersValue(snap.Filters),
		"can_rewind":     snap.Metrics.CanRewind && snap.LastSwiped != nil,
	}
	if len(snap.Stack) > 0 {
		out["head"] = userValue(snap.Stack[0])
	}
	switch st.Kind {
	case StateUsersLoaded:
		out["users"] = usersValue(st.Users)
	case StateUserSwiped, StateMatchFound:
		if st.Result != nil {
			out["result"] = resultValue(*st.Result)
		}
	case StateRewindSuccess:
		if st.Restored != nil {
			out["restored"] = userValue(*st.Restored)
		}
	case StateUserReported:
		out["reported_user_id"] = st.ReportedID
	}
	return out
}

func resultValue(r models.SwipeResult) map[string]any {
	out := map[string]any{
		"action":   string(r.Action),
		"user":     userValue(r.User),
		"is_match": r.IsMatch,
	}
	if r.Match != nil {
		out["match"] = map[string]any{
			"match_id": r.Match.MatchID,
			"message":  r.Match.Message,
		}
	}
	return out
}

func usersValue(users []models.SwipeUser) []any {
	out := make([]any, 0, len(users))
	for _, u := range users {
		out = append(out, userValue(u))
	}
	return out
}

func userValue(u models.SwipeUser) map[string]any {
	photos := make([]any, 0, len(u.Photos))
	for _, p := range u.Photos {
		photos = append(photos, map[string]any{
			"id":      p.ID,
			"url":     p.URL,
			"order":   p.Order,
			"is_main": p.IsMain,
		})
	}
	out := map[string]any{
		"id":          u.ID,
		"name":        u.Name(),
		"first_name":  u.FirstName,
		"last_name":   u.LastName,
		"age":         u.Age,
		"bio":         u.Bio,
		"photos":      photos,
		"interests":   anySlice(u.Interests),
		"is_verified": u.IsVerified,
		"is_premium":  u.IsPremium,
		"is_online":   u.IsOnline,
	}
	if u.DistanceKm != nil {
		out["distance_km"] = *u.DistanceKm
	}
	if u.Rating != nil {
		out["rating"] = *u.Rating
	}
	if u.ProfileCompletion != nil {
		out["profile_completion"] = *u.ProfileCompletion
	}
	return out
}

func metricsValue(m models.SwipeMetrics) map[string]any {
	return map[string]any{
		"daily_likes_used":  m.DailyLikesUsed,
		"daily_likes_limit": m.DailyLikesLimit,
		"super_likes_used":  m.SuperLikesUsed,
		"super_likes_limit": m.SuperLikesLimit,
		"rewinds_used":      m.RewindsUsed,
		"rewinds_limit":     m.RewindsLimit,
		"is_premium":        m.IsPremium,
		"can_rewind":        m.CanRewind,
		"can_super_like":    m.CanSuperLike,
	}
}

func filtersValue(f models.SwipeFilters) map[string]any {
	return map[string]any{
		"min_age":       f.MinAge,
		"max_age":       f.MaxAge,
		"max_distance":  f.MaxDistanceKm,
		"gender":        f.Gender,
		"online_only":   f.OnlineOnly,
		"verified_only": f.VerifiedOnly,
		"interests":     anySlice(f.Interests),
	}
}

func anySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func has(req *structpb.Struct, key string) bool {
	_, ok := req.GetFields()[key]
	return ok
}

func stringField(req *structpb.Struct, key string) string {
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// intField reads a whole number within int32 range. A present field that
// is not such a number is an InvalidArgument error.
func intField(req *structpb.Struct, key string) (int, bool, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false, svcErr.InvalidArgument(fmt.Sprintf("%s must be a number", key))
	}
	n := v.GetNumberValue()
	if math.IsNaN(n) || n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false, svcErr.InvalidArgument(fmt.Sprintf("%s must be a whole number within int32 range", key))
	}
	return int(n), true, nil
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func stringsField(req *structpb.Struct, key string) []string {
	var out []string
	for _, v := range req.GetFields()[key].GetListValue().GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
