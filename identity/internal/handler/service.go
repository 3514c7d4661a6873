package handler

import (
	"context"
	"io"

	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	"github.com/Astemirdum/bookshelf-service/identity/internal/service"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type IdentityService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.User, error)
	Authorize(ctx context.Context, username, password string) (model.Token, error)
	Principal(ctx context.Context, claimed auth.Principal) (auth.Principal, error)
	GetUser(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, username string, req model.UpdateProfileRequest) (model.User, error)
	AdminUpdate(ctx context.Context, username string, req model.AdminUpdateRequest) (model.User, error)
	GrantPermission(ctx context.Context, username, codename string) error
	RevokePermission(ctx context.Context, username, codename string) error
	UploadPhoto(ctx context.Context, username, filename, contentType string, r io.Reader, size int64) (model.User, error)
	GetPhoto(ctx context.Context, username string) (io.ReadCloser, string, error)
}

var _ IdentityService = (*service.Service)(nil)
