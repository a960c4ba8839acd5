package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Credential is an owner's platform OAuth grant.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the access token is usable at now with skew to spare.
func (c Credential) Valid(now time.Time, skew time.Duration) bool {
	return c.AccessToken != "" && now.Add(skew).Before(c.ExpiresAt)
}

// CredentialStore persists owner credentials.
type CredentialStore interface {
	Load(ctx context.Context, ownerID string) (Credential, error)
	Save(ctx context.Context, ownerID string, c Credential) error
}

// TokenCache holds currently valid access tokens.
type TokenCache interface {
	Get(ctx context.Context, ownerID string) (string, bool, error)
	Set(ctx context.Context, ownerID, token string, ttl time.Duration) error
	Delete(ctx context.Context, ownerID string) error
}

// ─── PostgreSQL credential store ─────────────────────────────────────────────

// PostgresCredentialStore reads and updates platform_credentials.
type PostgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialStore returns a store backed by pool.
func NewPostgresCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

// Load returns the owner's credential. An owner who never connected an
// account gets ErrCredentialExpired.
func (s *PostgresCredentialStore) Load(ctx context.Context, ownerID string) (Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at
		 FROM platform_credentials
		 WHERE user_id = $1`,
		ownerID,
	).Scan(&c.AccessToken, &c.RefreshToken, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, fmt.Errorf("%w: no platform account connected", ErrCredentialExpired)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	return c, nil
}

// Save stores a refreshed access token. An empty RefreshToken keeps the
// existing one (the platform does not always rotate it).
func (s *PostgresCredentialStore) Save(ctx context.Context, ownerID string, c Credential) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE platform_credentials
		 SET access_token  = $1,
		     refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
		     expires_at    = $3,
		     updated_at    = NOW()
		 WHERE user_id = $4`,
		c.AccessToken, c.RefreshToken, c.ExpiresAt, ownerID,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// ─── Redis token cache ───────────────────────────────────────────────────────

const tokenKeyPrefix = "lead-engine:token:"

// RedisTokenCache keeps access tokens in Redis until shortly before expiry so
// every engine replica shares one refresh.
type RedisTokenCache struct {
	rdb *redis.Client
}

// NewRedisTokenCache returns a cache backed by rdb.
func NewRedisTokenCache(rdb *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb}
}

func (c *RedisTokenCache) Get(ctx context.Context, ownerID string) (string, bool, error) {
	tok, err := c.rdb.Get(ctx, tokenKeyPrefix+ownerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, ownerID, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, tokenKeyPrefix+ownerID, token, ttl).Err()
}

func (c *RedisTokenCache) Delete(ctx context.Context, ownerID string) error {
	return c.rdb.Del(ctx, tokenKeyPrefix+ownerID).Err()
}
