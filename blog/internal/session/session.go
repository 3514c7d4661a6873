package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	TTL        = 24 * time.Hour
	CookieName = "sessionid"
	keyPrefix  = "session:"
)

// Store keeps blog sessions in Redis as JSON under session:<uuid>.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb, ttl: TTL}
}

// Create stores sess under a fresh id. The entry expires after TTL or when
// the session token does, whichever comes first.
func (s *Store) Create(ctx context.Context, sess model.Session) (string, error) {
	ttl := s.ttlFor(sess.Token)
	if ttl <= 0 {
		return "", errs.ErrNoSession
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", errors.Wrap(err, "marshal session")
	}
	sid := uuid.NewString()
	if err := s.rdb.Set(ctx, keyPrefix+sid, data, ttl).Err(); err != nil {
		return "", errors.Wrap(err, "redis set")
	}
	return sid, nil
}

// Update overwrites an existing session and keeps its expiry.
func (s *Store) Update(ctx context.Context, sid string, sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	err = s.rdb.SetArgs(ctx, keyPrefix+sid, data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return errs.ErrNoSession
	}
	return errors.Wrap(err, "redis set")
}

// ttlFor caps the store TTL at the token expiry. The token was verified by
// identity when it was issued, so its claims are read without the key.
func (s *Store) ttlFor(token string) time.Duration {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return s.ttl
	}
	if left := time.Until(claims.ExpiresAt.Time); left < s.ttl {
		return left
	}
	return s.ttl
}

// Get returns errs.ErrNoSession for unknown or expired ids.
func (s *Store) Get(ctx context.Context, sid string) (model.Session, error) {
	var sess model.Session
	if _, err := uuid.Parse(sid); err != nil {
		return sess, errs.ErrNoSession
	}
	data, err := s.rdb.Get(ctx, keyPrefix+sid).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sess, errs.ErrNoSession
		}
		return sess, errors.Wrap(err, "redis get")
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return sess, errors.Wrap(err, "unmarshal session")
	}
	return sess, nil
}

func (s *Store) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, keyPrefix+sid).Err()
}
