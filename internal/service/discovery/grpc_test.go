package discovery_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/logger"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/service/discovery"
)

// setupServer starts the Discovery service on an in-memory listener.
func setupServer(t *testing.T, repo *fakeRepo) *grpc.ClientConn {
	t.Helper()

	m := newManager(t, repo, newFakeStore(alice))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	discovery.NewRegistrar(m, logger.Discard()).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(t *testing.T, conn *grpc.ClientConn, method string, req map[string]any) (map[string]any, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)

	out := new(structpb.Struct)
	err = conn.Invoke(context.Background(), "/"+discovery.ServiceName+"/"+method, in, out)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func TestGRPC_StartSwipeAndState(t *testing.T) {
	repo := newFakeRepo(users("A", "B", "C", "D", "E")...)
	repo.metrics = models.SwipeMetrics{DailyLikesLimit: 100, SuperLikesLimit: 1}
	repo.swipeRes = models.SwipeResult{IsMatch: true, Match: &models.MatchData{MatchID: "m9", Message: "Match!"}}
	conn := setupServer(t, repo)

	out, err := call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "users_loaded", out["state"])
	assert.EqualValues(t, 5, out["stack_size"])
	assert.Len(t, out["users"], 5)
	assert.Equal(t, true, out["metrics_loaded"])

	out, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "like"})
	require.NoError(t, err)
	assert.Equal(t, "match_found", out["state"])
	result := out["result"].(map[string]any)
	assert.Equal(t, "LIKE", result["action"])
	assert.Equal(t, "m9", result["match"].(map[string]any)["match_id"])
	assert.EqualValues(t, 1, out["metrics"].(map[string]any)["daily_likes_used"])

	out, err = call(t, conn, "GetState", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "match_found", out["state"])
	assert.Equal(t, "B", out["head"].(map[string]any)["id"])
}

func TestGRPC_ErrorMapping(t *testing.T) {
	repo := newFakeRepo(users("A", "B", "C", "D", "E")...)
	conn := setupServer(t, repo)

	_, err := call(t, conn, "Start", map[string]any{"user_id": "nobody"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(t, conn, "Start", map[string]any{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "maybe"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)

	repo.set(func(r *fakeRepo) { r.swipeErr = svcErr.Business("swipe", 403, "Daily like limit reached") })
	_, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "like"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, "Daily like limit reached", status.Convert(err).Message())

	repo.set(func(r *fakeRepo) { r.swipeErr = svcErr.Transport("swipe", 0, context.DeadlineExceeded) })
	_, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "like"})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGRPC_UpdateFiltersMergesFields(t *testing.T) {
	repo := newFakeRepo(users("A")...)
	conn := setupServer(t, repo)

	out, err := call(t, conn, "UpdateFilters", map[string]any{
		"user_id":   "1",
		"min_age":   25,
		"max_age":   35,
		"interests": []any{"music", "hiking"},
	})
	require.NoError(t, err)
	filters := out["filters"].(map[string]any)
	assert.EqualValues(t, 25, filters["min_age"])
	assert.EqualValues(t, 50, filters["max_distance"])
	assert.Equal(t, []any{"music", "hiking"}, filters["interests"])

	_, err = call(t, conn, "UpdateFilters", map[string]any{"user_id": "1", "min_age": 10})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPC_RejectsOutOfRangeNumbers(t *testing.T) {
	repo := newFakeRepo(users("A")...)
	conn := setupServer(t, repo)

	_, err := call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)

	for _, v := range []any{1e12, -1e12, 25.5, "25"} {
		_, err = call(t, conn, "UpdateFilters", map[string]any{"user_id": "1", "max_age": v})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "max_age=%v", v)
	}
	assert.Equal(t, 0, repo.count("filters"))

	_, err = call(t, conn, "ListCandidates", map[string]any{"user_id": "1", "page_size": 1e300})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_ReadsRequireLiveSession(t *testing.T) {
	conn := setupServer(t, newFakeRepo(users("A")...))

	_, err := call(t, conn, "GetState", map[string]any{"user_id": "1"})
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = call(t, conn, "ListCandidates", map[string]any{"user_id": "1"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	out, err := call(t, conn, "GetState", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "users_loaded", out["state"])
}

func TestGRPC_StopWithSignOut(t *testing.T) {
	conn := setupServer(t, newFakeRepo(users("A")...))

	_, err := call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)

	out, err := call(t, conn, "Stop", map[string]any{"user_id": "1", "sign_out": true})
	require.NoError(t, err)
	assert.Equal(t, true, out["closed"])
	assert.Equal(t, true, out["signed_out"])

	// the stored session is gone
	_, err = call(t, conn, "Start", map[string]any{"user_id": "1"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPC_ListCandidatesPages(t *testing.T) {
	repo := newFakeRepo(numbered("u", 12)...)
	conn := setupServer(t, repo)

	_, err := call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)

	out, err := call(t, conn, "ListCandidates", map[string]any{"user_id": "1", "page_size": 5})
	require.NoError(t, err)
	assert.Len(t, out["users"], 5)
	assert.EqualValues(t, 12, out["total"])
	token, ok := out["next_page_token"].(string)
	require.True(t, ok)

	out, err = call(t, conn, "ListCandidates", map[string]any{"user_id": "1", "page_size": 10, "page_token": token})
	require.NoError(t, err)
	assert.Len(t, out["users"], 7)
	assert.NotContains(t, out, "next_page_token")

	// stack head moved, old token is stale
	_, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "dislike"})
	require.NoError(t, err)
	_, err = call(t, conn, "ListCandidates", map[string]any{"user_id": "1", "page_token": token})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = call(t, conn, "ListCandidates", map[string]any{"user_id": "1", "page_token": "***"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_RewindReportRefreshStop(t *testing.T) {
	repo := newFakeRepo(users("A", "B", "C", "D", "E")...)
	repo.metrics = models.SwipeMetrics{IsPremium: true}
	conn := setupServer(t, repo)

	_, err := call(t, conn, "Start", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	_, err = call(t, conn, "Swipe", map[string]any{"user_id": "1", "action": "dislike"})
	require.NoError(t, err)

	out, err := call(t, conn, "Rewind", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "rewind_success", out["state"])
	assert.Equal(t, "A", out["restored"].(map[string]any)["id"])

	_, err = call(t, conn, "Report", map[string]any{"user_id": "1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	out, err = call(t, conn, "Report", map[string]any{"user_id": "1", "target_user_id": "B", "reason": "spam"})
	require.NoError(t, err)
	assert.Equal(t, "user_reported", out["state"])
	assert.Equal(t, "B", out["reported_user_id"])

	_, err = call(t, conn, "RefreshMetrics", map[string]any{"user_id": "1"})
	require.NoError(t, err)

	out, err = call(t, conn, "Load", map[string]any{"user_id": "1", "force": true})
	require.NoError(t, err)
	assert.Equal(t, "users_loaded", out["state"])

	out, err = call(t, conn, "Stop", map[string]any{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, true, out["closed"])
}
