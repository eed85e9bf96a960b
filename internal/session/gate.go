package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"bankassist/internal/api"
)

// AuthError reasons.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonServiceUnreachable = "service_unreachable"
)

// AuthError is a failed login with a human-readable message suitable for
// direct display.
type AuthError struct {
	Reason  string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Service is the slice of the remote API the gate needs.
type Service interface {
	CheckSession(ctx context.Context) (*api.Identity, error)
	Login(ctx context.Context, username, password string) (*api.Identity, error)
	Logout(ctx context.Context) error
}

// Gate owns the authentication identity and decides which top-level view is
// shown. States: unauthenticated or authenticated, nothing else.
type Gate struct {
	svc    Service
	logger *slog.Logger

	mu         sync.Mutex
	identity   *api.Identity
	resetHooks []func()
}

func NewGate(svc Service, logger *slog.Logger) *Gate {
	return &Gate{svc: svc, logger: logger}
}

// OnReset registers a hook run after logout. Dependent components register
// here so a new session starts with no prior context.
func (g *Gate) OnReset(hook func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetHooks = append(g.resetHooks, hook)
}

// CheckExisting attempts to recover a session from the ambient cookie.
// Any failure, network included, means "not authenticated"; it is never
// surfaced as an error at this stage.
func (g *Gate) CheckExisting(ctx context.Context) *api.Identity {
	identity, err := g.svc.CheckSession(ctx)
	if err != nil {
		g.logger.Warn("session check failed, treating as unauthenticated", "error", err)
		return nil
	}
	if identity == nil {
		return nil
	}

	g.mu.Lock()
	g.identity = identity
	g.mu.Unlock()

	g.logger.Info("recovered existing session", "username", identity.Username)
	return identity
}

// Login submits credentials. On failure the returned error is an *AuthError
// and the gate stays unauthenticated.
func (g *Gate) Login(ctx context.Context, username, password string) (*api.Identity, error) {
	identity, err := g.svc.Login(ctx, username, password)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			message := statusErr.Message
			if message == "" {
				message = "Erreur de connexion"
			}
			g.logger.Warn("login rejected", "username", username, "status", statusErr.Code)
			return nil, &AuthError{Reason: ReasonInvalidCredentials, Message: message}
		}
		g.logger.Warn("login failed, service unreachable", "error", err)
		return nil, &AuthError{
			Reason:  ReasonServiceUnreachable,
			Message: "Impossible de se connecter au serveur. Veuillez réessayer.",
		}
	}

	g.mu.Lock()
	g.identity = identity
	g.mu.Unlock()

	g.logger.Info("login succeeded", "username", identity.Username)
	return identity, nil
}

// Logout clears the identity immediately and resets dependent state. The
// server call is best effort; local logout never waits on it.
func (g *Gate) Logout(ctx context.Context) {
	g.mu.Lock()
	g.identity = nil
	hooks := make([]func(), len(g.resetHooks))
	copy(hooks, g.resetHooks)
	g.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	go func() {
		if err := g.svc.Logout(context.WithoutCancel(ctx)); err != nil {
			g.logger.Warn("server logout failed", "error", err)
		}
	}()

	g.logger.Info("logged out")
}

// Identity returns the current identity, or nil when unauthenticated.
func (g *Gate) Identity() *api.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity
}

// Authenticated reports whether a session is active.
func (g *Gate) Authenticated() bool {
	return g.Identity() != nil
}
