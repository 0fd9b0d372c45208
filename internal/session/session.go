package session

import (
	"context"
	"sync"
	"time"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Session errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotSignedIn        = errors.New("not signed in")
)

// Session owns the signed-in identity and hands collaborators a backend
// acting on its behalf. It is constructed explicitly and passed around.
type Session struct {
	mu       sync.RWMutex
	client   backend.Client
	auth     backend.Authenticator
	store    Store
	identity *Identity
	now      func() time.Time
}

// New creates a session. auth may be nil when the driver has no auth.
func New(client backend.Client, auth backend.Authenticator, store Store) *Session {
	return &Session{client: client, auth: auth, store: store, now: time.Now}
}

// Init restores the identity saved by a previous run. An expired seller
// token is discarded.
func (s *Session) Init(ctx context.Context) error {
	identity, err := s.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to restore session")
	}
	if identity != nil && identity.Expired(s.now()) {
		log.Info().Str("role", string(identity.Role)).Msg("Saved session expired, signing out")
		if err := s.store.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear expired session")
		}
		identity = nil
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return nil
}

// Identity returns a copy of the current identity, or nil
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// AgentID is the signed-in delivery agent, if any
func (s *Session) AgentID() string {
	if id := s.Identity(); id != nil {
		return id.AgentID
	}
	return ""
}

// Backend returns a client acting as the signed-in user
func (s *Session) Backend() backend.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return s.client
	}
	return backend.Scoped(s.client, s.identity.AccessToken)
}

// SignInSeller authenticates a seller with email and password
func (s *Session) SignInSeller(ctx context.Context, email, password string) (*Identity, error) {
	if s.auth == nil || !s.client.Configured() {
		return nil, backend.ErrNotConfigured
	}

	auth, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		var be *backend.Error
		if errors.As(err, &be) && (be.Status == 400 || be.Status == 401 || be.Status == 403) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "seller sign-in failed")
	}

	identity := &Identity{
		Role:         RoleSeller,
		UserID:       auth.User.ID,
		Email:        auth.User.Email,
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
	}
	if auth.ExpiresAt > 0 {
		identity.ExpiresAt = time.Unix(auth.ExpiresAt, 0)
	} else if auth.ExpiresIn > 0 {
		identity.ExpiresAt = s.now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	}
	if identity.UserID == "" || identity.ExpiresAt.IsZero() {
		sub, exp, err := tokenClaims(auth.AccessToken)
		if err != nil {
			return nil, err
		}
		if identity.UserID == "" {
			identity.UserID = sub
		}
		if identity.ExpiresAt.IsZero() {
			identity.ExpiresAt = exp
		}
	}
	if identity.Email == "" {
		identity.Email = email
	}

	return identity, s.remember(ctx, identity)
}

// LoginAgent signs a delivery agent in by login id and phone. The login
// procedure is tried first; when it fails or matches nobody the agents
// table is read directly.
func (s *Session) LoginAgent(ctx context.Context, loginID, phone string) (*Identity, error) {
	if !s.client.Configured() {
		return nil, backend.ErrNotConfigured
	}

	agent, err := s.agentFromRPC(ctx, loginID, phone)
	if err != nil {
		log.Debug().Err(err).Msg("Agent login procedure failed, reading agents directly")
	}
	if agent == nil {
		agent, err = repository.NewAgentRepository(s.client).FindByLogin(ctx, loginID, phone)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) || backend.IsPermissionDenied(err) {
				return nil, ErrInvalidCredentials
			}
			return nil, errors.Wrap(err, "agent login failed")
		}
	}

	identity := &Identity{Role: RoleAgent, AgentID: agent.ID, Name: agent.Name, Phone: agent.Phone}
	return identity, s.remember(ctx, identity)
}

func (s *Session) agentFromRPC(ctx context.Context, loginID, phone string) (*models.DeliveryAgent, error) {
	raw, err := s.client.RPC(ctx, models.RPCLoginDeliveryAgent, map[string]interface{}{
		"p_login_id": loginID,
		"p_phone":    phone,
	})
	if err != nil {
		return nil, err
	}
	return models.DecodeOne[models.DeliveryAgent](raw)
}

// LoginCustomer signs a customer in by name and phone, with the same
// procedure-then-table fallback as agents.
func (s *Session) LoginCustomer(ctx context.Context, name, phone string) (*Identity, error) {
	if !s.client.Configured() {
		return nil, backend.ErrNotConfigured
	}

	var customer *models.Customer
	raw, err := s.client.RPC(ctx, models.RPCLoginCustomer, map[string]interface{}{
		"p_name":  name,
		"p_phone": phone,
	})
	if err == nil {
		customer, err = models.DecodeOne[models.Customer](raw)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Customer login procedure failed, reading customers directly")
	}
	if customer == nil {
		customer, err = repository.NewCustomerRepository(s.client).FindByNamePhone(ctx, name, phone)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) || backend.IsPermissionDenied(err) {
				return nil, ErrInvalidCredentials
			}
			return nil, errors.Wrap(err, "customer login failed")
		}
	}

	identity := &Identity{Role: RoleCustomer, CustomerID: customer.ID, Name: customer.Name, Phone: customer.Phone}
	return identity, s.remember(ctx, identity)
}

// Logout forgets the identity and revokes a seller token
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	identity := s.identity
	s.identity = nil
	s.mu.Unlock()

	if identity != nil && identity.AccessToken != "" && s.auth != nil {
		if err := s.auth.SignOut(ctx, identity.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Failed to revoke access token")
		}
	}
	return s.store.Clear(ctx)
}

func (s *Session) remember(ctx context.Context, identity *Identity) error {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()

	if err := s.store.Save(ctx, identity); err != nil {
		return errors.Wrap(err, "failed to save session")
	}
	log.Info().Str("role", string(identity.Role)).Msg("Signed in")
	return nil
}
