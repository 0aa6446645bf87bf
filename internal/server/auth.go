package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	"minix/internal/config"
	"minix/internal/drive"
	"minix/internal/model"
)

// ErrInvalidToken is returned by verifiers for unknown or invalid tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier maps a bearer token to the user it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.User, error)
}

// StaticVerifier accepts a fixed set of tokens from the config file.
type StaticVerifier struct {
	tokens []config.TokenConfig
}

var _ TokenVerifier = (*StaticVerifier)(nil)

// NewStaticVerifier creates a verifier for the configured tokens.
func NewStaticVerifier(tokens []config.TokenConfig) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify returns the user the token is configured for, or ErrInvalidToken.
func (v *StaticVerifier) Verify(_ context.Context, token string) (*model.User, error) {
	for _, t := range v.tokens {
		if t.Token != "" && subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return &model.User{ID: t.UserID, Email: t.Email}, nil
		}
	}
	return nil, ErrInvalidToken
}

// OIDCVerifier validates ID tokens issued by an OpenID Connect provider.
// The token subject becomes the user id.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ TokenVerifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers the provider at issuer.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string, skipIssuerCheck bool) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{
		ClientID:        clientID,
		SkipIssuerCheck: skipIssuerCheck,
	})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*model.User, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	user := &model.User{ID: idToken.Subject}
	if err := idToken.Claims(&claims); err == nil {
		user.Email = claims.Email
		user.Name = claims.Name
		if user.Name == "" {
			user.Name = claims.PreferredUsername
		}
	}
	return user, nil
}

// NewVerifierFromConfig creates the verifier selected by cfg.Type.
func NewVerifierFromConfig(ctx context.Context, cfg config.AuthConfig) (TokenVerifier, error) {
	switch cfg.Type {
	case "", "static":
		return NewStaticVerifier(cfg.Tokens), nil
	case "oidc":
		if cfg.OIDCIssuer == "" {
			return nil, fmt.Errorf("oidc auth requires oidc_issuer")
		}
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCSkipIssuerCheck)
	default:
		return nil, fmt.Errorf("unknown auth type: %q", cfg.Type)
	}
}

// eventsPath is the only route that takes the token from the query string.
// EventSource clients cannot set headers.
const eventsPath = "/api/events"

// bearerToken extracts the token from an Authorization header, or from the
// access_token query value when allowQuery is set.
func bearerToken(r *http.Request, allowQuery bool) (string, bool) {
	if h := r.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if !allowQuery {
		return "", false
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, true
	}
	return "", false
}

// authMiddleware authenticates the request and stores the user in the
// request context for drive.ContextAuthenticator.
func authMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}
			token, ok := bearerToken(c.Request(), c.Path() == eventsPath)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed bearer token")
			}
			user, err := verifier.Verify(c.Request().Context(), token)
			if err != nil || user == nil || user.ID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.SetRequest(c.Request().WithContext(drive.WithUser(c.Request().Context(), user)))
			return next(c)
		}
	}
}
