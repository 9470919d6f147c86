package auth

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/seguraabc/asistencia25/internal/model"
)

var logger = loggo.GetLogger("rollbook.auth")

const ErrUnauthenticated = errors.ConstError("unauthenticated")

// Resolver yields the identifier of the user that owns the courses touched
// by the current call.
type Resolver interface {
	ResolveOwner(ctx context.Context) (string, error)
}

type ResolverFunc func(ctx context.Context) (string, error)

func (f ResolverFunc) ResolveOwner(ctx context.Context) (string, error) {
	return f(ctx)
}

// SessionStore persists the fallback identities between calls.
type SessionStore interface {
	StoredSession(ctx context.Context) (*model.SessionUser, error)
	SaveSession(ctx context.Context, user model.SessionUser) error
	ClearSession(ctx context.Context) error
	TempOwner(ctx context.Context) (string, error)
}

type claimsKey struct{}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// ChainResolver tries the active session, then the stored session, then the
// temporary anonymous identifier.
type ChainResolver struct {
	store SessionStore
}

func NewChainResolver(store SessionStore) *ChainResolver {
	return &ChainResolver{store: store}
}

func (r *ChainResolver) ResolveOwner(ctx context.Context) (string, error) {
	if claims := ClaimsFromContext(ctx); claims != nil && claims.UserID != "" {
		return claims.UserID, nil
	}
	// The stored session is a single key shared by every caller, so a
	// deployment serving more than one teacher must always send a token.
	user, err := r.store.StoredSession(ctx)
	if err != nil {
		logger.Warningf("reading stored session: %v", err)
	} else if user != nil && user.ID != "" {
		return user.ID, nil
	}
	temp, err := r.store.TempOwner(ctx)
	if err != nil {
		logger.Warningf("reading temporary owner: %v", err)
	} else if temp != "" {
		return temp, nil
	}
	return "", ErrUnauthenticated
}

// Remember stores the authenticated user so later calls without a token
// still resolve to the same owner.
func (r *ChainResolver) Remember(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.UserID == "" {
		return nil
	}
	return errors.Trace(r.store.SaveSession(ctx, SessionUserFromClaims(claims)))
}

// Forget drops the stored session. The temporary owner is kept.
func (r *ChainResolver) Forget(ctx context.Context) error {
	return errors.Trace(r.store.ClearSession(ctx))
}

func SessionUserFromClaims(claims *Claims) model.SessionUser {
	name := "User"
	if local, _, ok := strings.Cut(claims.Email, "@"); ok && local != "" {
		name = local
	}
	return model.SessionUser{ID: claims.UserID, Email: claims.Email, Name: name}
}
