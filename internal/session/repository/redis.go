package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

// Every key carries the same hash tag so the scripts, which derive session
// keys from stored IDs, only ever touch one Redis Cluster slot.
const (
	keyTag             = "{meetmate}"
	sessionKeyPrefix   = keyTag + ":session:"
	hashKeyPrefix      = keyTag + ":session:hash:"
	principalKeyPrefix = keyTag + ":principal:"
)

func sessionKey(id string) string            { return sessionKeyPrefix + id }
func hashKey(h string) string                { return hashKeyPrefix + h }
func principalKey(principalID string) string { return principalKeyPrefix + principalID + ":sessions" }

// KEYS: old hash key, principal set, new session key, new hash key.
// ARGV: last_refreshed_at, next id, expire-at ms, session key prefix, field/value pairs...
var rotateScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then return 0 end
local skey = ARGV[4] .. id
if redis.call('HGET', skey, 'status') ~= 'active' then return 0 end
redis.call('HSET', skey, 'status', 'rotated', 'last_refreshed_at', ARGV[1], 'replaced_by', ARGV[2])
redis.call('HSET', KEYS[3], unpack(ARGV, 5))
redis.call('PEXPIREAT', KEYS[3], ARGV[3])
redis.call('SET', KEYS[4], ARGV[2])
redis.call('PEXPIREAT', KEYS[4], ARGV[3])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// KEYS: session key. ARGV: revoked_at.
var revokeScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if st and st ~= 'revoked' then
  redis.call('HSET', KEYS[1], 'status', 'revoked', 'revoked_at', ARGV[1])
  return 1
end
return 0
`)

// KEYS: principal set. ARGV: revoked_at, session key prefix.
var revokeAllScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local skey = ARGV[2] .. id
  local st = redis.call('HGET', skey, 'status')
  if not st then
    redis.call('SREM', KEYS[1], id)
  elseif st ~= 'revoked' then
    redis.call('HSET', skey, 'status', 'revoked', 'revoked_at', ARGV[1])
    n = n + 1
  end
end
return n
`)

// RedisStore keeps each session as a hash that expires with its refresh token,
// plus a refresh-hash lookup key and a per-principal index set. Rotation and
// revocation run as Lua scripts so each is atomic on the server. On Redis
// Cluster all session keys live in a single slot.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore returns a session store on the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) Create(ctx context.Context, s *domain.Session) error {
	exp := s.RefreshTokenExpiry
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, sessionKey(s.ID), sessionFields(s)...)
		p.ExpireAt(ctx, sessionKey(s.ID), exp)
		p.Set(ctx, hashKey(s.RefreshTokenHash), s.ID, 0)
		p.ExpireAt(ctx, hashKey(s.RefreshTokenHash), exp)
		p.SAdd(ctx, principalKey(s.PrincipalID), s.ID)
		return nil
	})
	return unavailable(err)
}

func (r *RedisStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	s, err := sessionFromFields(m)
	return s, unavailable(err)
}

func (r *RedisStore) FindByHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error) {
	id, err := r.client.Get(ctx, hashKey(refreshTokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisStore) AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error) {
	keys := []string{hashKey(oldHash), principalKey(next.PrincipalID), sessionKey(next.ID), hashKey(next.RefreshTokenHash)}
	args := []any{formatTime(next.CreatedAt), next.ID, next.RefreshTokenExpiry.UnixMilli(), sessionKeyPrefix}
	args = append(args, sessionFields(next)...)
	n, err := rotateScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r *RedisStore) Revoke(ctx context.Context, id string) error {
	err := revokeScript.Run(ctx, r.client, []string{sessionKey(id)}, formatTime(r.now().UTC())).Err()
	return unavailable(err)
}

func (r *RedisStore) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	n, err := revokeAllScript.Run(ctx, r.client, []string{principalKey(principalID)},
		formatTime(r.now().UTC()), sessionKeyPrefix).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *RedisStore) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error) {
	ids, err := r.client.SMembers(ctx, principalKey(principalID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	var out []*domain.Session
	for _, c := range cmds {
		m := c.Val()
		if len(m) == 0 || m["status"] != string(domain.StatusActive) {
			continue
		}
		s, err := sessionFromFields(m)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return unavailable(r.client.Ping(ctx).Err())
}

func sessionFields(s *domain.Session) []any {
	return []any{
		"id", s.ID,
		"principal_id", s.PrincipalID,
		"family_id", s.FamilyID,
		"parent_id", s.ParentID,
		"refresh_token_hash", s.RefreshTokenHash,
		"access_token_expires_at", formatTime(s.AccessTokenExpiry),
		"refresh_token_expires_at", formatTime(s.RefreshTokenExpiry),
		"status", string(s.Status),
		"created_at", formatTime(s.CreatedAt),
		"last_refreshed_at", formatTimePtr(s.LastRefreshedAt),
		"replaced_by", s.ReplacedBy,
		"revoked_at", formatTimePtr(s.RevokedAt),
	}
}

func sessionFromFields(m map[string]string) (*domain.Session, error) {
	s := &domain.Session{
		ID:               m["id"],
		PrincipalID:      m["principal_id"],
		FamilyID:         m["family_id"],
		ParentID:         m["parent_id"],
		RefreshTokenHash: m["refresh_token_hash"],
		Status:           domain.Status(m["status"]),
		ReplacedBy:       m["replaced_by"],
	}
	var err error
	if s.AccessTokenExpiry, err = parseTime(m["access_token_expires_at"]); err != nil {
		return nil, err
	}
	if s.RefreshTokenExpiry, err = parseTime(m["refresh_token_expires_at"]); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, err
	}
	if s.LastRefreshedAt, err = parseTimePtr(m["last_refreshed_at"]); err != nil {
		return nil, err
	}
	if s.RevokedAt, err = parseTimePtr(m["revoked_at"]); err != nil {
		return nil, err
	}
	return s, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) { return time.Parse(time.RFC3339Nano, v) }

func parseTimePtr(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
