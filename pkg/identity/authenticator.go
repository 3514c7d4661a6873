package identity

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/pkg/errors"
)

// TokenParser checks a token's signature and expiry locally.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

// Authenticator verifies tokens locally, then loads the caller's current
// profile from the identity service.
type Authenticator struct {
	tokens TokenParser
	client *Client
}

func NewAuthenticator(tokens TokenParser, client *Client) *Authenticator {
	return &Authenticator{tokens: tokens, client: client}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	claimed, err := a.tokens.Parse(token)
	if err != nil {
		return auth.Principal{}, err
	}
	user, err := a.client.Me(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		return auth.Principal{}, err
	}
	if user.ID != claimed.UserID || !user.IsActive {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return user.Principal(), nil
}
