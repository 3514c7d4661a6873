package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/circuit_breaker"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrUnavailable        = auth.ErrUnavailable
	ErrInvalidCredentials = errors.New("Please enter a correct username and password.")
	ErrConflict           = errors.New("A user with that username already exists.")
	ErrUnauthorized       = errors.New("authentication required")
)

// ValidationError carries field-level messages returned by the identity service.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, " "))
	}
	return strings.Join(parts, "; ")
}

type Config struct {
	Host    string                 `envconfig:"IDENTITY_HTTP_HOST" default:"localhost"`
	Port    string                 `envconfig:"IDENTITY_HTTP_PORT" default:"8090"`
	Timeout time.Duration          `envconfig:"IDENTITY_TIMEOUT" default:"10s"`
	CB      circuit_breaker.Config `envconfig:"IDENTITY"`
}

type Client struct {
	log      *zap.Logger
	client   *http.Client
	cb       circuit_breaker.CircuitBreaker
	endpoint string
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		log:      log.Named("identity"),
		client:   &http.Client{Timeout: cfg.Timeout},
		cb:       circuit_breaker.New(cfg.CB),
		endpoint: fmt.Sprintf("http://%s/api/v1", net.JoinHostPort(cfg.Host, cfg.Port)),
	}
}

func (c *Client) CB() circuit_breaker.CircuitBreaker {
	return c.cb
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	var user User
	err := c.do(ctx, http.MethodPost, "/register", "", req, &user)
	return user, err
}

func (c *Client) Authorize(ctx context.Context, username, password string) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, "/authorize", "", AuthRequest{Username: username, Password: password}, &resp)
	if errors.Is(err, ErrUnauthorized) {
		return AuthResponse{}, ErrInvalidCredentials
	}
	return resp, err
}

func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/me", token, nil, &user)
	return user, err
}

func (c *Client) UpdateMe(ctx context.Context, token string, req UpdateProfileRequest) (User, error) {
	var user User
	err := c.do(ctx, http.MethodPatch, "/me", token, req, &user)
	return user, err
}

// Login authorizes and resolves the principal behind the issued token.
func (c *Client) Login(ctx context.Context, username, password string) (string, auth.Principal, error) {
	tok, err := c.Authorize(ctx, username, password)
	if err != nil {
		return "", auth.Principal{}, err
	}
	user, err := c.Me(ctx, tok.AccessToken)
	if err != nil {
		return "", auth.Principal{}, err
	}
	return tok.AccessToken, user.Principal(), nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b := bytes.NewBuffer(nil)
		if err := json.NewEncoder(b).Encode(in); err != nil {
			return err
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(auth.AuthorizationHeader, "Bearer "+token)
	}

	var (
		code int
		data []byte
	)
	if err := c.cb.Call(func() error {
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		code = resp.StatusCode
		if data, err = io.ReadAll(resp.Body); err != nil {
			return err
		}
		if code >= http.StatusInternalServerError {
			return errors.Errorf("identity: status %d", code)
		}
		return nil
	}); err != nil {
		c.log.Warn("identity call failed", zap.String("path", path), zap.Error(err))
		return ErrUnavailable
	}

	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusBadRequest:
		fields := make(map[string][]string)
		if err := json.Unmarshal(data, &fields); err != nil || len(fields) == 0 {
			var msg struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(data, &msg) //nolint:errcheck
			fields = map[string][]string{"__all__": {msg.Message}}
		}
		return &ValidationError{Fields: fields}
	case code >= http.StatusBadRequest:
		return errors.Errorf("identity: status %d: %s", code, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
