package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"example.com/backstage/dairy/internal/cache"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Role is the kind of principal signed in
type Role string

const (
	RoleSeller   Role = "seller"
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
)

// Identity is the signed-in principal kept between runs
type Identity struct {
	Role         Role      `json:"role"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	CustomerID   string    `json:"customer_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry
func (i *Identity) Expired(now time.Time) bool {
	return i.AccessToken != "" && !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// tokenClaims reads subject and expiry from an access token without
// verifying it; the backend verifies on every request.
func tokenClaims(token string) (string, time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}, errors.Wrap(err, "malformed access token")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "invalid subject claim")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "invalid exp claim")
	}
	if exp == nil {
		return sub, time.Time{}, nil
	}
	return sub, exp.Time, nil
}

// Store persists the identity between process runs
type Store interface {
	Load(ctx context.Context) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
	Clear(ctx context.Context) error
}

// FileStore keeps the identity in a JSON file readable only by the user
type FileStore struct {
	path string
}

// NewFileStore creates a store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns nil when no identity was saved
func (s *FileStore) Load(ctx context.Context) (*Identity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read identity file")
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, errors.Wrap(err, "corrupt identity file")
	}
	return &identity, nil
}

func (s *FileStore) Save(ctx context.Context, identity *Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create identity directory")
	}
	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal identity")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write identity file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "failed to replace identity file")
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove identity file")
	}
	return nil
}

// RedisStore keeps the identity in Redis under a profile key
type RedisStore struct {
	cache cache.Cache
	key   string
}

// NewRedisStore creates a store for profile
func NewRedisStore(c cache.Cache, profile string) *RedisStore {
	return &RedisStore{cache: c, key: cache.IdentityKey(profile)}
}

func (s *RedisStore) Load(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := s.cache.Get(ctx, s.key, &identity); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

// Save keeps the identity until its token expires, or for the cache TTL
func (s *RedisStore) Save(ctx context.Context, identity *Identity) error {
	var ttl time.Duration
	if !identity.ExpiresAt.IsZero() {
		ttl = time.Until(identity.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	return s.cache.Set(ctx, s.key, identity, ttl)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

// NewStore picks Redis when the cache is enabled, otherwise the file
func NewStore(c cache.Cache, profile, file string) Store {
	if c != nil && c.Enabled() {
		return NewRedisStore(c, profile)
	}
	return NewFileStore(file)
}

// MemoryStore keeps the identity for the lifetime of the value. The
// gateway uses one per request.
type MemoryStore struct {
	identity *Identity
}

func (s *MemoryStore) Load(ctx context.Context) (*Identity, error) {
	return s.identity, nil
}

func (s *MemoryStore) Save(ctx context.Context, identity *Identity) error {
	s.identity = identity
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.identity = nil
	return nil
}

// FromToken rebuilds a seller identity from a bearer token. Expired or
// malformed tokens are ErrNotSignedIn.
func FromToken(token string, now time.Time) (*Identity, error) {
	if token == "" {
		return nil, ErrNotSignedIn
	}
	sub, exp, err := tokenClaims(token)
	if err != nil || sub == "" {
		return nil, ErrNotSignedIn
	}
	identity := &Identity{Role: RoleSeller, UserID: sub, AccessToken: token, ExpiresAt: exp}
	if identity.Expired(now) {
		return nil, ErrNotSignedIn
	}
	return identity, nil
}
