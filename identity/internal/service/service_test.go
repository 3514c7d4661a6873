package service_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	repo_mocks "github.com/Astemirdum/bookshelf-service/identity/internal/repository/mocks"
	"github.com/Astemirdum/bookshelf-service/identity/internal/service"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTokens() *auth.TokenManager {
	return auth.NewTokenManager(auth.Config{Secret: "test", TokenTTL: time.Hour})
}

func TestService_Register(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	svc := service.NewService(repo, newTokens(), nil, zap.NewNop())

	repo.EXPECT().
		CreateUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u model.User) (model.User, error) {
			require.Equal(t, "alice", u.Username)
			require.Equal(t, "alice@example.com", u.Email)
			require.Equal(t, auth.RoleMember, u.Role)
			require.True(t, u.IsActive)
			require.False(t, u.IsSuperuser)
			require.NotNil(t, u.DateOfBirth)
			require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret-pass")))
			u.ID = 1
			return u, nil
		})

	user, err := svc.Register(context.Background(), model.RegisterRequest{
		Username:    "alice",
		Email:       "Alice@Example.com",
		Password:    "s3cret-pass",
		DateOfBirth: "1990-05-01",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
}

func TestService_Authorize(t *testing.T) {
	t.Parallel()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     model.User
		repoErr  error
		password string
		wantErr  error
	}{
		{
			name:     "ok",
			user:     model.User{ID: 3, Username: "bob", Password: string(hash), Role: auth.RoleLibrarian, IsActive: true, Permissions: []string{"relationship_app.can_add_book"}},
			password: "s3cret-pass",
		},
		{
			name:     "wrong password",
			user:     model.User{Username: "bob", Password: string(hash), IsActive: true},
			password: "nope",
			wantErr:  errs.ErrInvalidCredentials,
		},
		{
			name:     "inactive",
			user:     model.User{Username: "bob", Password: string(hash)},
			password: "s3cret-pass",
			wantErr:  errs.ErrInvalidCredentials,
		},
		{
			name:     "unknown user",
			repoErr:  errs.ErrNotFound,
			password: "s3cret-pass",
			wantErr:  errs.ErrInvalidCredentials,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			repo := repo_mocks.NewMockRepository(c)
			tokens := newTokens()
			svc := service.NewService(repo, tokens, nil, zap.NewNop())

			repo.EXPECT().GetUser(gomock.Any(), "bob").Return(tt.user, tt.repoErr)

			tok, err := svc.Authorize(context.Background(), "bob", tt.password)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.InDelta(t, time.Hour.Seconds(), float64(tok.ExpiresIn), 5)

			p, err := tokens.Parse(tok.AccessToken)
			require.NoError(t, err)
			require.Equal(t, "bob", p.Username)
			require.Equal(t, auth.RoleLibrarian, p.Role)
			require.True(t, auth.HasPerm(p, "relationship_app.can_add_book"))
		})
	}
}

func TestService_AdminUpdate(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	svc := service.NewService(repo, newTokens(), nil, zap.NewNop())

	_, err := svc.SetRole(context.Background(), "bob", "Owner")
	require.ErrorIs(t, err, errs.ErrInvalidRole)

	role := auth.RoleLibrarian
	repo.EXPECT().
		UpdateUser(gomock.Any(), "bob", model.UserUpdate{Role: &role}).
		Return(model.User{Username: "bob", Role: role}, nil)
	user, err := svc.SetRole(context.Background(), "bob", role)
	require.NoError(t, err)
	require.Equal(t, role, user.Role)
}

func TestService_Principal(t *testing.T) {
	t.Parallel()
	claimed := auth.Principal{UserID: 1, Username: "root", Role: auth.RoleAdmin, IsSuperuser: true}
	tests := []struct {
		name    string
		stored  model.User
		repoErr error
		want    auth.Principal
		wantErr error
	}{
		{
			name:   "role and permissions come from the account",
			stored: model.User{ID: 1, Username: "root", Role: auth.RoleMember, IsActive: true, Permissions: []string{"blog.can_post"}},
			want:   auth.Principal{UserID: 1, Username: "root", Role: auth.RoleMember, Permissions: []string{"blog.can_post"}},
		},
		{
			name:    "deactivated",
			stored:  model.User{ID: 1, Username: "root", Role: auth.RoleAdmin},
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "recreated under the same name",
			stored:  model.User{ID: 5, Username: "root", Role: auth.RoleAdmin, IsActive: true},
			wantErr: auth.ErrInvalidToken,
		},
		{
			name:    "deleted",
			repoErr: errs.ErrNotFound,
			wantErr: auth.ErrInvalidToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			repo := repo_mocks.NewMockRepository(c)
			repo.EXPECT().GetUser(gomock.Any(), "root").Return(tt.stored, tt.repoErr)
			svc := service.NewService(repo, newTokens(), nil, zap.NewNop())

			p, err := svc.Principal(context.Background(), claimed)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p)
		})
	}
}

type memStore struct {
	objects map[string][]byte
	removed []string
}

func (m *memStore) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, "", errs.ErrPhotoNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), "image/png", nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	m.removed = append(m.removed, key)
	delete(m.objects, key)
	return nil
}

func TestService_UploadPhoto(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	store := &memStore{objects: map[string][]byte{}}
	svc := service.NewService(repo, newTokens(), store, zap.NewNop())

	oldKey := "profile_photos/alice/old.png"
	repo.EXPECT().GetUser(gomock.Any(), "alice").Return(model.User{Username: "alice", ProfilePhoto: &oldKey}, nil)
	repo.EXPECT().
		UpdateUser(gomock.Any(), "alice", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, upd model.UserUpdate) (model.User, error) {
			require.NotNil(t, upd.ProfilePhoto)
			require.True(t, strings.HasPrefix(*upd.ProfilePhoto, "profile_photos/alice/"))
			require.True(t, strings.HasSuffix(*upd.ProfilePhoto, ".png"))
			return model.User{Username: "alice", ProfilePhoto: upd.ProfilePhoto}, nil
		})

	user, err := svc.UploadPhoto(context.Background(), "alice", "Me.PNG", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), store.objects[*user.ProfilePhoto])
	require.Equal(t, []string{oldKey}, store.removed)
}

func TestService_GetPhotoMissing(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	svc := service.NewService(repo, newTokens(), &memStore{objects: map[string][]byte{}}, zap.NewNop())

	repo.EXPECT().GetUser(gomock.Any(), "alice").Return(model.User{Username: "alice"}, nil)
	_, _, err := svc.GetPhoto(context.Background(), "alice")
	require.ErrorIs(t, err, errs.ErrPhotoNotFound)

	noStore := service.NewService(repo, newTokens(), nil, zap.NewNop())
	_, _, err = noStore.GetPhoto(context.Background(), "alice")
	require.ErrorIs(t, err, errs.ErrPhotoStorage)
}
