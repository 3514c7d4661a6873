package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/handler"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/Astemirdum/bookshelf-service/blog/internal/session"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	service_mocks "github.com/Astemirdum/bookshelf-service/blog/internal/handler/mocks"
)

var (
	alice = auth.Principal{UserID: 1, Username: "alice", Email: "alice@example.com", Role: auth.RoleMember}
	bob   = auth.Principal{UserID: 2, Username: "bob", Role: auth.RoleMember}

	sessions = map[string]model.Session{
		"alice-sid": {Token: "alice-token", Principal: alice},
		"bob-sid":   {Token: "bob-token", Principal: bob},
	}

	testPost = model.Post{
		ID:            3,
		Title:         "Hello Go",
		Content:       "First post",
		Author:        "alice",
		PublishedDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Tags:          []model.Tag{{ID: 1, Name: "Go", Slug: "go"}},
	}
)

// account is what identity reports for p.
func account(p auth.Principal) identity.User {
	return identity.User{
		ID:          p.UserID,
		Username:    p.Username,
		Email:       p.Email,
		Role:        p.Role,
		IsStaff:     p.IsStaff,
		IsSuperuser: p.IsSuperuser,
		IsActive:    true,
		Permissions: p.Permissions,
	}
}

type mocks struct {
	blog     *service_mocks.MockBlogService
	identity *service_mocks.MockIdentityClient
	sessions *service_mocks.MockSessionStore
}

func TestHandler_Pages(t *testing.T) {
	t.Parallel()
	type request struct {
		method, target, body, sid string
	}
	type response struct {
		expectedCode     int
		expectedLocation string
		contains         []string
	}

	tests := []struct {
		name         string
		mockBehavior func(m mocks)
		request      request
		response     response
	}{
		{
			name: "list posts",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().ListPosts(gomock.Any(), model.PostFilter{}).Return([]model.Post{testPost}, nil)
			},
			request: request{method: http.MethodGet, target: "/post/"},
			response: response{
				expectedCode: http.StatusOK,
				contains:     []string{"Hello Go", "By alice", `href="/tags/go/"`, `href="/login/"`},
			},
		},
		{
			name: "posts alias",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().ListPosts(gomock.Any(), model.PostFilter{}).Return(nil, nil)
			},
			request:  request{method: http.MethodGet, target: "/posts/"},
			response: response{expectedCode: http.StatusOK, contains: []string{"No posts found."}},
		},
		{
			name: "search",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().ListPosts(gomock.Any(), model.PostFilter{Query: "go"}).Return([]model.Post{testPost}, nil)
			},
			request:  request{method: http.MethodGet, target: "/search/?q=+go+"},
			response: response{expectedCode: http.StatusOK, contains: []string{"Search results for", "Hello Go"}},
		},
		{
			name: "unknown tag",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().PostsByTag(gomock.Any(), "nope").Return(model.Tag{}, nil, errs.ErrNotFound)
			},
			request:  request{method: http.MethodGet, target: "/tags/nope/"},
			response: response{expectedCode: http.StatusNotFound},
		},
		{
			name:         "malformed tag slug",
			mockBehavior: func(mocks) {},
			request:      request{method: http.MethodGet, target: "/tags/bad.slug/"},
			response:     response{expectedCode: http.StatusNotFound},
		},
		{
			name: "unicode tag slug",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().PostsByTag(gomock.Any(), "café").Return(model.Tag{ID: 2, Name: "Café", Slug: "café"}, nil, nil)
			},
			request:  request{method: http.MethodGet, target: "/tags/caf%C3%A9/"},
			response: response{expectedCode: http.StatusOK, contains: []string{"Posts tagged"}},
		},
		{
			name: "detail shows owner controls",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().PostDetail(gomock.Any(), int64(3)).Return(model.PostDetail{
					Post:     testPost,
					Comments: []model.Comment{{ID: 7, PostID: 3, Author: "bob", Content: "Nice one"}},
				}, nil)
			},
			request: request{method: http.MethodGet, target: "/post/3/", sid: "alice-sid"},
			response: response{
				expectedCode: http.StatusOK,
				contains:     []string{"Nice one", `href="/post/3/update/"`, `action="/post/3/"`},
			},
		},
		{
			name: "detail missing post",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().PostDetail(gomock.Any(), int64(99)).Return(model.PostDetail{}, errs.ErrNotFound)
			},
			request:  request{method: http.MethodGet, target: "/post/99/"},
			response: response{expectedCode: http.StatusNotFound, contains: []string{"Not found."}},
		},
		{
			name:         "new post anonymous redirects to login",
			mockBehavior: func(mocks) {},
			request:      request{method: http.MethodGet, target: "/post/new/"},
			response:     response{expectedCode: http.StatusFound, expectedLocation: "/login/?next=%2Fpost%2Fnew%2F"},
		},
		{
			name:         "comment anonymous redirects to login",
			mockBehavior: func(mocks) {},
			request:      request{method: http.MethodPost, target: "/post/3/", body: "content=hi"},
			response:     response{expectedCode: http.StatusFound, expectedLocation: "/login/?next=%2Fpost%2F3%2F"},
		},
		{
			name: "create post",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().CreatePost(gomock.Any(), alice, model.PostForm{Title: "Hello Go", Content: "First post", Tags: "go"}).
					Return(testPost, nil)
			},
			request: request{
				method: http.MethodPost, target: "/post/new/", sid: "alice-sid",
				body: "title=Hello+Go&content=First+post&tags=go",
			},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/post/3/"},
		},
		{
			name:         "create post invalid",
			mockBehavior: func(mocks) {},
			request: request{
				method: http.MethodPost, target: "/post/new/", sid: "alice-sid",
				body: "title=&content=Body",
			},
			response: response{expectedCode: http.StatusBadRequest, contains: []string{"This field is required."}},
		},
		{
			name: "update post as author",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().EditablePost(gomock.Any(), alice, int64(3)).Return(testPost, nil)
				m.blog.EXPECT().UpdatePost(gomock.Any(), alice, int64(3), model.PostForm{Title: "New", Content: "Body"}).
					Return(testPost, nil)
			},
			request: request{
				method: http.MethodPost, target: "/post/3/update/", sid: "alice-sid",
				body: "title=New&content=Body",
			},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/post/3/"},
		},
		{
			name: "update post as non-author",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().EditablePost(gomock.Any(), bob, int64(3)).Return(model.Post{}, errs.ErrForbidden)
			},
			request: request{
				method: http.MethodPost, target: "/post/3/update/", sid: "bob-sid",
				body: "title=New&content=Body",
			},
			response: response{expectedCode: http.StatusForbidden, contains: []string{"You do not have permission to perform this action."}},
		},
		{
			name: "delete post as non-author",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().DeletePost(gomock.Any(), bob, int64(3)).Return(errs.ErrForbidden)
			},
			request:  request{method: http.MethodPost, target: "/post/3/delete/", sid: "bob-sid"},
			response: response{expectedCode: http.StatusForbidden},
		},
		{
			name: "delete post as author",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().DeletePost(gomock.Any(), alice, int64(3)).Return(nil)
			},
			request:  request{method: http.MethodPost, target: "/post/3/delete/", sid: "alice-sid"},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/post/"},
		},
		{
			name: "add comment",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().AddComment(gomock.Any(), bob, int64(3), model.CommentForm{Content: "Nice one"}).
					Return(model.Comment{ID: 7, PostID: 3}, nil)
			},
			request:  request{method: http.MethodPost, target: "/post/3/comments/new/", sid: "bob-sid", body: "content=Nice+one"},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/post/3/"},
		},
		{
			name: "empty comment re-renders detail",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().PostDetail(gomock.Any(), int64(3)).Return(model.PostDetail{Post: testPost}, nil)
			},
			request:  request{method: http.MethodPost, target: "/post/3/", sid: "bob-sid", body: "content="},
			response: response{expectedCode: http.StatusBadRequest, contains: []string{"Hello Go", "This field is required."}},
		},
		{
			name: "edit comment as non-author",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().EditableComment(gomock.Any(), alice, int64(7)).Return(model.Comment{}, errs.ErrForbidden)
			},
			request:  request{method: http.MethodGet, target: "/comment/7/update/", sid: "alice-sid"},
			response: response{expectedCode: http.StatusForbidden},
		},
		{
			name: "delete comment",
			mockBehavior: func(m mocks) {
				m.blog.EXPECT().DeleteComment(gomock.Any(), bob, int64(7)).Return(model.Comment{ID: 7, PostID: 3}, nil)
			},
			request:  request{method: http.MethodPost, target: "/comment/7/delete/", sid: "bob-sid"},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/post/3/"},
		},
		{
			name: "login bad credentials",
			mockBehavior: func(m mocks) {
				m.identity.EXPECT().Login(gomock.Any(), "alice", "wrong").Return("", auth.Principal{}, identity.ErrInvalidCredentials)
			},
			request:  request{method: http.MethodPost, target: "/login/", body: "username=alice&password=wrong"},
			response: response{expectedCode: http.StatusUnauthorized, contains: []string{"Please enter a correct username and password."}},
		},
		{
			name: "register logs in",
			mockBehavior: func(m mocks) {
				m.identity.EXPECT().Register(gomock.Any(), identity.RegisterRequest{
					Username: "carol", Email: "carol@example.com", Password: "longpassword",
				}).Return(identity.User{ID: 3, Username: "carol"}, nil)
				carol := auth.Principal{UserID: 3, Username: "carol", Role: auth.RoleMember}
				m.identity.EXPECT().Login(gomock.Any(), "carol", "longpassword").Return("carol-token", carol, nil)
				m.sessions.EXPECT().Create(gomock.Any(), model.Session{Token: "carol-token", Principal: carol}).Return("carol-sid", nil)
			},
			request: request{
				method: http.MethodPost, target: "/register/",
				body: "username=carol&email=carol%40example.com&password1=longpassword&password2=longpassword",
			},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/profile/"},
		},
		{
			name: "profile",
			mockBehavior: func(mocks) {
			},
			request:  request{method: http.MethodGet, target: "/profile/", sid: "alice-sid"},
			response: response{expectedCode: http.StatusOK, contains: []string{"Username: alice", `value="alice@example.com"`}},
		},
		{
			name: "profile updates email",
			mockBehavior: func(m mocks) {
				email := "new@example.com"
				m.identity.EXPECT().UpdateMe(gomock.Any(), "alice-token", identity.UpdateProfileRequest{Email: &email}).
					Return(identity.User{ID: 1, Username: "alice", Email: email, Role: auth.RoleMember}, nil)
				updated := sessions["alice-sid"]
				updated.Principal.Email = email
				m.sessions.EXPECT().Update(gomock.Any(), "alice-sid", updated).Return(nil)
			},
			request:  request{method: http.MethodPost, target: "/profile/", sid: "alice-sid", body: "email=new%40example.com"},
			response: response{expectedCode: http.StatusFound, expectedLocation: "/profile/"},
		},
		{
			name:         "profile blank email keeps profile",
			mockBehavior: func(mocks) {},
			request:      request{method: http.MethodPost, target: "/profile/", sid: "alice-sid", body: "email="},
			response:     response{expectedCode: http.StatusOK, contains: []string{`value="alice@example.com"`}},
		},
		{
			name: "logout",
			mockBehavior: func(m mocks) {
				m.sessions.EXPECT().Delete(gomock.Any(), "alice-sid").Return(nil)
			},
			request:  request{method: http.MethodPost, target: "/logout/", sid: "alice-sid"},
			response: response{expectedCode: http.StatusOK, contains: []string{"Logged out", `href="/register/"`}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			m := mocks{
				blog:     service_mocks.NewMockBlogService(c),
				identity: service_mocks.NewMockIdentityClient(c),
				sessions: service_mocks.NewMockSessionStore(c),
			}
			if sess, ok := sessions[tt.request.sid]; ok {
				m.sessions.EXPECT().Get(gomock.Any(), tt.request.sid).Return(sess, nil)
				m.identity.EXPECT().Me(gomock.Any(), sess.Token).Return(account(sess.Principal), nil)
			}
			tt.mockBehavior(m)
			e := handler.New(m.blog, m.identity, m.sessions, zap.NewNop()).NewRouter()

			r := httptest.NewRequest(tt.request.method, tt.request.target, strings.NewReader(tt.request.body))
			if tt.request.body != "" {
				r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
			}
			if tt.request.sid != "" {
				r.AddCookie(&http.Cookie{Name: session.CookieName, Value: tt.request.sid})
			}
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedLocation != "" {
				require.Equal(t, tt.response.expectedLocation, w.Header().Get(echo.HeaderLocation))
			}
			for _, s := range tt.response.contains {
				require.Contains(t, w.Body.String(), s)
			}
		})
	}
}

func TestHandler_LoginStartsSession(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	blog := service_mocks.NewMockBlogService(c)
	idc := service_mocks.NewMockIdentityClient(c)
	store := service_mocks.NewMockSessionStore(c)
	idc.EXPECT().Login(gomock.Any(), "alice", "secret").Return("alice-token", alice, nil)
	store.EXPECT().Create(gomock.Any(), model.Session{Token: "alice-token", Principal: alice}).Return("new-sid", nil)

	e := handler.New(blog, idc, store, zap.NewNop()).NewRouter()
	form := url.Values{"username": {"alice"}, "password": {"secret"}, "next": {"/post/new/"}}
	r := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(form.Encode()))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/post/new/", w.Header().Get(echo.HeaderLocation))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, session.CookieName, cookies[0].Name)
	require.Equal(t, "new-sid", cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
}

func TestHandler_ExpiredSessionIsAnonymous(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	store := service_mocks.NewMockSessionStore(c)
	store.EXPECT().Get(gomock.Any(), "stale").Return(model.Session{}, errs.ErrNoSession)

	e := handler.New(service_mocks.NewMockBlogService(c), service_mocks.NewMockIdentityClient(c), store, zap.NewNop()).NewRouter()
	r := httptest.NewRequest(http.MethodGet, "/profile/", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	w := httptest.NewRecorder()

	e.ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login/?next=%2Fprofile%2F", w.Header().Get(echo.HeaderLocation))
}

func TestHandler_SessionFollowsIdentity(t *testing.T) {
	t.Parallel()
	type mockBehavior func(idc *service_mocks.MockIdentityClient, store *service_mocks.MockSessionStore)

	tests := []struct {
		name             string
		mockBehavior     mockBehavior
		expectedCode     int
		expectedLocation string
		contains         string
	}{
		{
			name: "profile shows current account",
			mockBehavior: func(idc *service_mocks.MockIdentityClient, _ *service_mocks.MockSessionStore) {
				current := account(alice)
				current.Email = "changed@example.com"
				idc.EXPECT().Me(gomock.Any(), "alice-token").Return(current, nil)
			},
			expectedCode: http.StatusOK,
			contains:     `value="changed@example.com"`,
		},
		{
			name: "revoked token ends session",
			mockBehavior: func(idc *service_mocks.MockIdentityClient, store *service_mocks.MockSessionStore) {
				idc.EXPECT().Me(gomock.Any(), "alice-token").Return(identity.User{}, identity.ErrUnauthorized)
				store.EXPECT().Delete(gomock.Any(), "alice-sid").Return(nil)
			},
			expectedCode:     http.StatusFound,
			expectedLocation: "/login/?next=%2Fprofile%2F",
		},
		{
			name: "deactivated account ends session",
			mockBehavior: func(idc *service_mocks.MockIdentityClient, store *service_mocks.MockSessionStore) {
				inactive := account(alice)
				inactive.IsActive = false
				idc.EXPECT().Me(gomock.Any(), "alice-token").Return(inactive, nil)
				store.EXPECT().Delete(gomock.Any(), "alice-sid").Return(nil)
			},
			expectedCode:     http.StatusFound,
			expectedLocation: "/login/?next=%2Fprofile%2F",
		},
		{
			name: "identity down keeps session but serves anonymously",
			mockBehavior: func(idc *service_mocks.MockIdentityClient, _ *service_mocks.MockSessionStore) {
				idc.EXPECT().Me(gomock.Any(), "alice-token").Return(identity.User{}, identity.ErrUnavailable)
			},
			expectedCode:     http.StatusFound,
			expectedLocation: "/login/?next=%2Fprofile%2F",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			idc := service_mocks.NewMockIdentityClient(c)
			store := service_mocks.NewMockSessionStore(c)
			store.EXPECT().Get(gomock.Any(), "alice-sid").Return(sessions["alice-sid"], nil)
			tt.mockBehavior(idc, store)

			e := handler.New(service_mocks.NewMockBlogService(c), idc, store, zap.NewNop()).NewRouter()
			r := httptest.NewRequest(http.MethodGet, "/profile/", nil)
			r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "alice-sid"})
			w := httptest.NewRecorder()

			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedLocation != "" {
				require.Equal(t, tt.expectedLocation, w.Header().Get(echo.HeaderLocation))
			}
			if tt.contains != "" {
				require.Contains(t, w.Body.String(), tt.contains)
			}
		})
	}
}
