package drive

import (
	"context"

	"minix/internal/model"
)

type userKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey{}).(*model.User)
	return u, ok && u != nil && u.ID != ""
}

// Authenticator resolves the user on whose behalf a request runs.
type Authenticator interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// ContextAuthenticator reads the user placed in the context by WithUser.
type ContextAuthenticator struct{}

func (ContextAuthenticator) CurrentUser(ctx context.Context) (*model.User, error) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

var _ Authenticator = ContextAuthenticator{}
