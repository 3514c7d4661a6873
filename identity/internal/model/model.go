package model

import (
	"regexp"
	"time"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
)

type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	Password     string     `json:"-" db:"password"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	ProfilePhoto *string    `json:"profile_photo,omitempty" db:"profile_photo"`
	Role         string     `json:"role" db:"role"`
	IsStaff      bool       `json:"is_staff" db:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser" db:"is_superuser"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	DateJoined   time.Time  `json:"date_joined" db:"date_joined"`
	Permissions  []string   `json:"permissions" db:"permissions"`
}

func (u User) Principal() auth.Principal {
	return auth.Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		Permissions: u.Permissions,
	}
}

// UserUpdate holds the columns to change; nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	DateOfBirth  *time.Time
	ProfilePhoto *string
	Password     *string
	Role         *string
	IsStaff      *bool
	IsSuperuser  *bool
	IsActive     *bool
}

func (u UserUpdate) Empty() bool {
	return u == UserUpdate{}
}

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,max=150,username"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
}

type AuthRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type UpdateProfileRequest struct {
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
}

type AdminUpdateRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=Admin Librarian Member"`
	IsStaff  *bool   `json:"is_staff"`
	IsActive *bool   `json:"is_active"`
}

type PermissionRequest struct {
	Codename string `json:"codename" validate:"required,max=100,codename"`
}

const DateLayout = "2006-01-02"

var codenameRe = regexp.MustCompile(`^[a-z_]+\.[a-z_]+$`)

// ValidCodename reports whether s looks like "app_label.codename".
func ValidCodename(s string) bool {
	return codenameRe.MatchString(s)
}
