package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/handler"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	service_mocks "github.com/Astemirdum/bookshelf-service/identity/internal/handler/mocks"
)

var joined = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func issue(t *testing.T, tm *auth.TokenManager, p auth.Principal) string {
	t.Helper()
	token, _, err := tm.Issue(p)
	require.NoError(t, err)
	return token
}

func TestHandler_Identity(t *testing.T) {
	t.Parallel()
	tm := auth.NewTokenManager(auth.Config{Secret: "test", TokenTTL: time.Hour})
	member := issue(t, tm, auth.Principal{UserID: 2, Username: "bob", Role: auth.RoleMember})
	admin := issue(t, tm, auth.Principal{UserID: 1, Username: "root", Role: auth.RoleAdmin})

	type request struct {
		method, target, body, token string
	}
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockIdentityService)

	// profile is what the service holds for the token owner; nil means
	// nothing changed since the token was issued.
	tests := []struct {
		name         string
		mockBehavior mockBehavior
		profile      func(claimed auth.Principal) (auth.Principal, error)
		request      request
		response     response
	}{
		{
			name: "register ok",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().
					Register(gomock.Any(), model.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "s3cret-pass"}).
					Return(model.User{ID: 2, Username: "bob", Email: "bob@example.com", Role: auth.RoleMember, IsActive: true, DateJoined: joined, Permissions: []string{}}, nil)
			},
			request: request{method: http.MethodPost, target: "/api/v1/register", body: `{"username":"bob","email":"bob@example.com","password":"s3cret-pass"}`},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":2,"username":"bob","email":"bob@example.com","role":"Member","is_staff":false,"is_superuser":false,"is_active":true,"date_joined":"2024-01-02T03:04:05Z","permissions":[]}`,
			},
		},
		{
			name:         "register missing fields",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			request:      request{method: http.MethodPost, target: "/api/v1/register", body: `{"email":"bob@example.com"}`},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"password":["This field is required."],"username":["This field is required."]}`,
			},
		},
		{
			name:         "register bad username",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			request:      request{method: http.MethodPost, target: "/api/v1/register", body: `{"username":"bob smith","password":"s3cret-pass"}`},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"username":["Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."]}`,
			},
		},
		{
			name: "register duplicate",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().Register(gomock.Any(), gomock.Any()).Return(model.User{}, errs.ErrConflict)
			},
			request: request{method: http.MethodPost, target: "/api/v1/register", body: `{"username":"bob","password":"s3cret-pass"}`},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"username":["A user with that username already exists."]}`,
			},
		},
		{
			name: "authorize bad credentials",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().Authorize(gomock.Any(), "bob", "wrong").Return(model.Token{}, errs.ErrInvalidCredentials)
			},
			request: request{method: http.MethodPost, target: "/api/v1/authorize", body: `{"username":"bob","password":"wrong"}`},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"No active account found with the given credentials"}`,
			},
		},
		{
			name: "authorize ok",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().Authorize(gomock.Any(), "bob", "s3cret-pass").Return(model.Token{AccessToken: "abc", ExpiresIn: 3600}, nil)
			},
			request: request{method: http.MethodPost, target: "/api/v1/authorize", body: `{"username":"bob","password":"s3cret-pass"}`},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"access_token":"abc","expires_in":3600}`,
			},
		},
		{
			name:         "me anonymous",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			request:      request{method: http.MethodGet, target: "/api/v1/me"},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"Authentication credentials were not provided."}`,
			},
		},
		{
			name: "me ok",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().GetUser(gomock.Any(), "bob").
					Return(model.User{ID: 2, Username: "bob", Role: auth.RoleMember, IsActive: true, DateJoined: joined, Permissions: []string{}}, nil)
			},
			request: request{method: http.MethodGet, target: "/api/v1/me", token: member},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":2,"username":"bob","email":"","role":"Member","is_staff":false,"is_superuser":false,"is_active":true,"date_joined":"2024-01-02T03:04:05Z","permissions":[]}`,
			},
		},
		{
			name:         "users as member",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			request:      request{method: http.MethodGet, target: "/api/v1/users", token: member},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"You do not have permission to perform this action."}`,
			},
		},
		{
			name: "grant as admin",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().GrantPermission(gomock.Any(), "bob", "relationship_app.can_add_book").Return(nil)
				r.EXPECT().GetUser(gomock.Any(), "bob").
					Return(model.User{ID: 2, Username: "bob", Role: auth.RoleMember, IsActive: true, DateJoined: joined, Permissions: []string{"relationship_app.can_add_book"}}, nil)
			},
			request: request{method: http.MethodPost, target: "/api/v1/users/bob/permissions", body: `{"codename":"relationship_app.can_add_book"}`, token: admin},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":2,"username":"bob","email":"","role":"Member","is_staff":false,"is_superuser":false,"is_active":true,"date_joined":"2024-01-02T03:04:05Z","permissions":["relationship_app.can_add_book"]}`,
			},
		},
		{
			name:         "grant bad codename",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			request:      request{method: http.MethodPost, target: "/api/v1/users/bob/permissions", body: `{"codename":"add book"}`, token: admin},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"codename":["Enter a permission as \"app_label.codename\"."]}`,
			},
		},
		{
			name:         "demoted admin cannot promote itself",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			profile: func(claimed auth.Principal) (auth.Principal, error) {
				claimed.Role = auth.RoleMember
				return claimed, nil
			},
			request: request{method: http.MethodPatch, target: "/api/v1/users/root", body: `{"role":"Admin"}`, token: admin},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"You do not have permission to perform this action."}`,
			},
		},
		{
			name:         "deactivated account",
			mockBehavior: func(r *service_mocks.MockIdentityService) {},
			profile: func(auth.Principal) (auth.Principal, error) {
				return auth.Principal{}, auth.ErrInvalidToken
			},
			request: request{method: http.MethodGet, target: "/api/v1/me", token: member},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"invalid token"}`,
			},
		},
		{
			name: "photo missing",
			mockBehavior: func(r *service_mocks.MockIdentityService) {
				r.EXPECT().GetPhoto(gomock.Any(), "bob").Return(nil, "", errs.ErrPhotoNotFound)
			},
			request: request{method: http.MethodGet, target: "/api/v1/users/bob/photo"},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"profile photo not found"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockIdentityService(c)
			h := handler.New(svc, tm, zap.NewNop())
			e := h.NewRouter()

			body := strings.NewReader(tt.request.body)
			r := httptest.NewRequest(tt.request.method, tt.request.target, body)
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tt.request.token != "" {
				r.Header.Set(echo.HeaderAuthorization, "Bearer "+tt.request.token)
			}
			w := httptest.NewRecorder()

			if tt.request.token != "" {
				profile := tt.profile
				if profile == nil {
					profile = func(claimed auth.Principal) (auth.Principal, error) { return claimed, nil }
				}
				svc.EXPECT().Principal(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, claimed auth.Principal) (auth.Principal, error) {
						return profile(claimed)
					})
			}
			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}
