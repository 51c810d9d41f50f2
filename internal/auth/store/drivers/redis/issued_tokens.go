// Package redis keeps identity provider issued tokens in Redis. Entries
// expire with the token, so DeleteExpired has nothing to do.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/store"
	"github.com/aussiebroadwan/authkit/pkg/idx"
)

const DefaultPrefix = "authkit:itk"

const (
	fieldValueHash   = "value_hash"
	fieldPurpose     = "purpose"
	fieldScope       = "scope"
	fieldRedirectURI = "redirect_uri"
	fieldExpires     = "expires"
	fieldAuthTime    = "auth_time"
	fieldUserID      = "user_id"
	fieldClientID    = "client_id"
)

// IssuedTokens stores each token as a hash under prefix:id, plus an index
// key prefix:v:purpose:valueHash pointing back at the id.
type IssuedTokens struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.IssuedTokens = (*IssuedTokens)(nil)

func NewIssuedTokens(rdb redis.UniversalClient, prefix string) *IssuedTokens {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &IssuedTokens{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *IssuedTokens) key(id string) string { return r.prefix + ":" + id }

func (r *IssuedTokens) valueKey(purpose, hash string) string {
	return r.prefix + ":v:" + purpose + ":" + hash
}

func (r *IssuedTokens) Add(ctx context.Context, t domain.IssuedToken) (string, error) {
	ttl := t.Expires.Sub(r.now())
	if ttl <= 0 {
		return "", errors.New("redis: issued token already expired")
	}
	if t.ID == "" {
		t.ID = idx.New().String()
	}

	ok, err := r.rdb.SetNX(ctx, r.valueKey(t.Purpose, t.ValueHash), t.ID, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", store.ErrTokenCollision
	}

	key := r.key(t.ID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldValueHash, t.ValueHash,
			fieldPurpose, t.Purpose,
			fieldScope, t.Scope,
			fieldRedirectURI, t.RedirectURI,
			fieldExpires, t.Expires.UnixMilli(),
			fieldAuthTime, millis(t.AuthTime),
			fieldUserID, t.UserID,
			fieldClientID, t.ClientID,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		_ = r.rdb.Del(ctx, r.valueKey(t.Purpose, t.ValueHash)).Err()
		return "", err
	}
	return t.ID, nil
}

func (r *IssuedTokens) Remove(ctx context.Context, id string) error {
	vals, err := r.rdb.HMGet(ctx, r.key(id), fieldPurpose, fieldValueHash).Result()
	if err != nil {
		return err
	}

	keys := []string{r.key(id)}
	if purpose, ok := vals[0].(string); ok {
		if hash, ok := vals[1].(string); ok {
			keys = append(keys, r.valueKey(purpose, hash))
		}
	}
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *IssuedTokens) FindWithValue(ctx context.Context, purpose, valueHash string) (string, error) {
	id, err := r.rdb.Get(ctx, r.valueKey(purpose, valueHash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	return id, err
}

// Take claims the value index with GETDEL, so only one caller sees the id,
// then reads and deletes the record.
func (r *IssuedTokens) Take(ctx context.Context, purpose, valueHash string) (domain.IssuedToken, error) {
	id, err := r.rdb.GetDel(ctx, r.valueKey(purpose, valueHash)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.IssuedToken{}, store.ErrNotFound
	}
	if err != nil {
		return domain.IssuedToken{}, err
	}

	key := r.key(id)
	var fields *redis.MapStringStringCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return domain.IssuedToken{}, err
	}
	m := fields.Val()
	if len(m) == 0 {
		return domain.IssuedToken{}, store.ErrNotFound
	}

	t := domain.IssuedToken{
		ID:          id,
		ValueHash:   m[fieldValueHash],
		Purpose:     m[fieldPurpose],
		Scope:       m[fieldScope],
		RedirectURI: m[fieldRedirectURI],
		UserID:      m[fieldUserID],
		ClientID:    m[fieldClientID],
	}
	if t.Expires, err = parseMillis(m[fieldExpires]); err != nil {
		return domain.IssuedToken{}, err
	}
	if t.AuthTime, err = parseMillis(m[fieldAuthTime]); err != nil {
		return domain.IssuedToken{}, err
	}
	return t, nil
}

func (r *IssuedTokens) User(ctx context.Context, id string) (string, error) {
	return r.field(ctx, id, fieldUserID)
}

func (r *IssuedTokens) Scope(ctx context.Context, id string) (string, error) {
	return r.field(ctx, id, fieldScope)
}

func (r *IssuedTokens) RedirectURI(ctx context.Context, id string) (string, error) {
	return r.field(ctx, id, fieldRedirectURI)
}

func (r *IssuedTokens) ExpirationTime(ctx context.Context, id string) (time.Time, error) {
	return r.timeField(ctx, id, fieldExpires)
}

func (r *IssuedTokens) Purpose(ctx context.Context, id string) (string, error) {
	return r.field(ctx, id, fieldPurpose)
}

func (r *IssuedTokens) AuthClient(ctx context.Context, id string) (string, error) {
	return r.field(ctx, id, fieldClientID)
}

func (r *IssuedTokens) AuthTime(ctx context.Context, id string) (time.Time, error) {
	return r.timeField(ctx, id, fieldAuthTime)
}

// DeleteExpired is a no-op: Redis expires the keys itself.
func (r *IssuedTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *IssuedTokens) field(ctx context.Context, id, name string) (string, error) {
	v, err := r.rdb.HGet(ctx, r.key(id), name).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	return v, err
}

func (r *IssuedTokens) timeField(ctx context.Context, id, name string) (time.Time, error) {
	v, err := r.field(ctx, id, name)
	if err != nil {
		return time.Time{}, err
	}
	return parseMillis(v)
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
