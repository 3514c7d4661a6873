package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/Astemirdum/bookshelf-service/blog/internal/session"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// recorder captures writes; other commands are not expected.
type recorder struct {
	goredis.Cmdable
	ttl     time.Duration
	setArgs *goredis.SetArgs
	missing bool
}

func (r *recorder) Set(_ context.Context, _ string, _ interface{}, ttl time.Duration) *goredis.StatusCmd {
	r.ttl = ttl
	return goredis.NewStatusResult("OK", nil)
}

func (r *recorder) SetArgs(_ context.Context, _ string, _ interface{}, a goredis.SetArgs) *goredis.StatusCmd {
	r.setArgs = &a
	if r.missing {
		return goredis.NewStatusResult("", goredis.Nil)
	}
	return goredis.NewStatusResult("OK", nil)
}

func tokenExpiringIn(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tm := auth.NewTokenManager(auth.Config{Secret: "0123456789abcdef0123456789abcdef", TokenTTL: ttl})
	token, _, err := tm.Issue(auth.Principal{UserID: 1, Username: "alice", Role: auth.RoleMember})
	require.NoError(t, err)
	return token
}

// Runs against a live Redis when BLOG_TEST_REDIS_ADDR is set.
func TestStore(t *testing.T) {
	addr := os.Getenv("BLOG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLOG_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, redis.Config{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	store := session.NewStore(rdb)
	sess := model.Session{Token: "jwt", Principal: auth.Principal{UserID: 1, Username: "alice", Role: auth.RoleMember}}

	sid, err := store.Create(ctx, sess)
	require.NoError(t, err)

	got, err := store.Get(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, sess, got)

	sess.Principal.Email = "alice@example.com"
	require.NoError(t, store.Update(ctx, sid, sess))
	got, err = store.Get(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Principal.Email)

	require.NoError(t, store.Delete(ctx, sid))
	_, err = store.Get(ctx, sid)
	require.ErrorIs(t, err, errs.ErrNoSession)
}

func TestStore_RejectsMalformedID(t *testing.T) {
	t.Parallel()
	store := session.NewStore(nil)
	_, err := store.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, errs.ErrNoSession)
}

func TestStore_CreateCapsTTLAtTokenExpiry(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		token   string
		min     time.Duration
		max     time.Duration
		wantErr error
	}{
		{name: "short token", token: tokenExpiringIn(t, time.Hour), min: 59 * time.Minute, max: time.Hour},
		{name: "long token", token: tokenExpiringIn(t, 72*time.Hour), min: session.TTL, max: session.TTL},
		{name: "opaque token", token: "opaque", min: session.TTL, max: session.TTL},
		{name: "expired token", token: tokenExpiringIn(t, -time.Minute), wantErr: errs.ErrNoSession},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rdb := &recorder{}
			_, err := session.NewStore(rdb).Create(context.Background(), model.Session{Token: tt.token})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.GreaterOrEqual(t, rdb.ttl, tt.min)
			require.LessOrEqual(t, rdb.ttl, tt.max)
		})
	}
}

func TestStore_UpdateKeepsTTL(t *testing.T) {
	t.Parallel()
	rdb := &recorder{}
	store := session.NewStore(rdb)
	require.NoError(t, store.Update(context.Background(), "8a7c1f2e-0c1d-4c35-9a59-4f4b1b3d2e10", model.Session{Token: "opaque"}))
	require.Equal(t, &goredis.SetArgs{Mode: "XX", KeepTTL: true}, rdb.setArgs)

	rdb.missing = true
	err := store.Update(context.Background(), "8a7c1f2e-0c1d-4c35-9a59-4f4b1b3d2e10", model.Session{Token: "opaque"})
	require.ErrorIs(t, err, errs.ErrNoSession)
}
