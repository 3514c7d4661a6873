package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	identityRepo "github.com/Astemirdum/bookshelf-service/identity/internal/repository"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type PhotoStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	Remove(ctx context.Context, key string) error
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type Service struct {
	log    *zap.Logger
	repo   identityRepo.Repository
	tokens TokenIssuer
	photos PhotoStore
	now    func() time.Time
}

// NewService builds the identity service. photos may be nil, in which case
// photo endpoints fail with errs.ErrPhotoStorage.
func NewService(repo identityRepo.Repository, tokens TokenIssuer, photos PhotoStore, log *zap.Logger) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		tokens: tokens,
		photos: photos,
		now:    time.Now,
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt")
	}
	return string(hash), nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return model.User{}, err
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return model.User{}, err
	}
	user, err := s.repo.CreateUser(ctx, model.User{
		Username:    req.Username,
		Email:       strings.ToLower(req.Email),
		Password:    hash,
		DateOfBirth: dob,
		Role:        auth.RoleMember,
		IsActive:    true,
	})
	if err != nil {
		return model.User{}, err
	}
	s.log.Debug("registered", zap.String("username", user.Username))
	return user, nil
}

// CreateSuperuser registers an active Admin with every permission implied.
func (s *Service) CreateSuperuser(ctx context.Context, username, email, password string) (model.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	return s.repo.CreateUser(ctx, model.User{
		Username:    username,
		Email:       strings.ToLower(email),
		Password:    hash,
		Role:        auth.RoleAdmin,
		IsStaff:     true,
		IsSuperuser: true,
		IsActive:    true,
	})
}

func (s *Service) Authorize(ctx context.Context, username, password string) (model.Token, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Token{}, errs.ErrInvalidCredentials
		}
		return model.Token{}, err
	}
	if !user.IsActive {
		return model.Token{}, errs.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return model.Token{}, errs.ErrInvalidCredentials
	}
	token, expiresAt, err := s.tokens.Issue(user.Principal())
	if err != nil {
		return model.Token{}, err
	}
	return model.Token{
		AccessToken: token,
		ExpiresIn:   int64(expiresAt.Sub(s.now()).Seconds()),
	}, nil
}

// Principal reloads the account a token was issued for. Tokens of deleted,
// recreated or deactivated accounts are rejected with auth.ErrInvalidToken.
func (s *Service) Principal(ctx context.Context, claimed auth.Principal) (auth.Principal, error) {
	user, err := s.repo.GetUser(ctx, claimed.Username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		return auth.Principal{}, err
	}
	if user.ID != claimed.UserID || !user.IsActive {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return user.Principal(), nil
}

func (s *Service) GetUser(ctx context.Context, username string) (model.User, error) {
	return s.repo.GetUser(ctx, username)
}

func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) UpdateProfile(ctx context.Context, username string, req model.UpdateProfileRequest) (model.User, error) {
	var upd model.UserUpdate
	if req.Email != nil {
		email := strings.ToLower(*req.Email)
		upd.Email = &email
	}
	if req.DateOfBirth != nil {
		dob, err := parseDate(*req.DateOfBirth)
		if err != nil {
			return model.User{}, err
		}
		upd.DateOfBirth = dob
	}
	return s.repo.UpdateUser(ctx, username, upd)
}

func (s *Service) AdminUpdate(ctx context.Context, username string, req model.AdminUpdateRequest) (model.User, error) {
	if req.Role != nil && !auth.ValidRole(*req.Role) {
		return model.User{}, errs.ErrInvalidRole
	}
	return s.repo.UpdateUser(ctx, username, model.UserUpdate{
		Role:     req.Role,
		IsStaff:  req.IsStaff,
		IsActive: req.IsActive,
	})
}

func (s *Service) SetRole(ctx context.Context, username, role string) (model.User, error) {
	return s.AdminUpdate(ctx, username, model.AdminUpdateRequest{Role: &role})
}

func (s *Service) GrantPermission(ctx context.Context, username, codename string) error {
	return s.repo.GrantPermission(ctx, username, codename)
}

func (s *Service) RevokePermission(ctx context.Context, username, codename string) error {
	return s.repo.RevokePermission(ctx, username, codename)
}

func photoKey(username, filename string) string {
	return fmt.Sprintf("profile_photos/%s/%s%s", username, uuid.NewString(), strings.ToLower(path.Ext(filename)))
}

func (s *Service) UploadPhoto(ctx context.Context, username, filename, contentType string, r io.Reader, size int64) (model.User, error) {
	if s.photos == nil {
		return model.User{}, errs.ErrPhotoStorage
	}
	old, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return model.User{}, err
	}
	key := photoKey(username, filename)
	if err := s.photos.Upload(ctx, key, r, size, contentType); err != nil {
		return model.User{}, err
	}
	user, err := s.repo.UpdateUser(ctx, username, model.UserUpdate{ProfilePhoto: &key})
	if err != nil {
		return model.User{}, err
	}
	if old.ProfilePhoto != nil && *old.ProfilePhoto != "" {
		if err := s.photos.Remove(ctx, *old.ProfilePhoto); err != nil {
			s.log.Warn("remove old photo", zap.String("key", *old.ProfilePhoto), zap.Error(err))
		}
	}
	return user, nil
}

func (s *Service) GetPhoto(ctx context.Context, username string) (io.ReadCloser, string, error) {
	if s.photos == nil {
		return nil, "", errs.ErrPhotoStorage
	}
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return nil, "", err
	}
	if user.ProfilePhoto == nil || *user.ProfilePhoto == "" {
		return nil, "", errs.ErrPhotoNotFound
	}
	return s.photos.Download(ctx, *user.ProfilePhoto)
}
