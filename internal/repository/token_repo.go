package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kinds of opaque tokens kept in redis.
const (
	KindRefresh       = "refresh"
	KindEmailVerify   = "email_verify"
	KindPasswordReset = "password_reset"
)

var ErrTokenNotFound = errors.New("token not found or expired")

// TokenRepo stores opaque tokens as "<kind>:<token>" -> user id with a TTL.
type TokenRepo struct {
	rdb *redis.Client
}

func NewTokenRepo(rdb *redis.Client) *TokenRepo {
	return &TokenRepo{rdb: rdb}
}

func tokenKey(kind, token string) string {
	return kind + ":" + token
}

func (r *TokenRepo) Save(ctx context.Context, kind, token string, userID int64, ttl time.Duration) error {
	return r.rdb.Set(ctx, tokenKey(kind, token), userID, ttl).Err()
}

func (r *TokenRepo) Lookup(ctx context.Context, kind, token string) (int64, error) {
	val, err := r.rdb.Get(ctx, tokenKey(kind, token)).Result()
	return parseUserID(val, err)
}

// Consume reads and deletes the token in one round trip so it can only be
// used once.
func (r *TokenRepo) Consume(ctx context.Context, kind, token string) (int64, error) {
	val, err := r.rdb.GetDel(ctx, tokenKey(kind, token)).Result()
	return parseUserID(val, err)
}

func (r *TokenRepo) Delete(ctx context.Context, kind, token string) error {
	return r.rdb.Del(ctx, tokenKey(kind, token)).Err()
}

// Throttle reports whether key was free. A true result claims it for ttl.
func (r *TokenRepo) Throttle(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func parseUserID(val string, err error) (int64, error) {
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt token value %q: %w", val, err)
	}
	return id, nil
}
