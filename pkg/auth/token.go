package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrUnavailable  = errors.New("identity service unavailable")
	ErrWeakSecret   = errors.Errorf("JWT_SECRET must be at least %d bytes", MinSecretLen)
)

const MinSecretLen = 32

type Config struct {
	Secret   string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

// Validate rejects secrets short enough to be guessed or left as a placeholder.
func (c Config) Validate() error {
	if len(c.Secret) < MinSecretLen {
		return ErrWeakSecret
	}
	return nil
}

type Claims struct {
	Profile Principal `json:"profile"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenManager(cfg Config) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{
		key: []byte(cfg.Secret),
		ttl: ttl,
		now: time.Now,
	}
}

// Issue signs an HS256 token for p and returns it together with its expiry.
func (m *TokenManager) Issue(p Principal) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		Profile: p,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return token, expiresAt, nil
}

func (m *TokenManager) Parse(tokenStr string) (Principal, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.key, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrInvalidToken
	}
	if !token.Valid || !IsAuthenticated(claims.Profile) {
		return Principal{}, ErrInvalidToken
	}
	return claims.Profile, nil
}
