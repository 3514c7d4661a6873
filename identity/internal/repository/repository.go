package repository

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, username string, upd model.UserUpdate) (model.User, error)
	GrantPermission(ctx context.Context, username, codename string) error
	RevokePermission(ctx context.Context, username, codename string) error
}

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName       = `users`
	permissionsTableName = `user_permissions`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func selectUsers() sq.SelectBuilder {
	return qb.Select(
		"u.id", "u.username", "u.email", "u.password", "u.date_of_birth", "u.profile_photo",
		"u.role", "u.is_staff", "u.is_superuser", "u.is_active", "u.date_joined",
		"coalesce(array_agg(p.codename order by p.codename) filter (where p.codename is not null), '{}') as permissions",
	).
		From(usersTableName + " u").
		LeftJoin(permissionsTableName + " p on p.user_id = u.id").
		GroupBy("u.id")
}

func (r *repository) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	query, args, err := qb.Insert(usersTableName).
		Columns("username", "email", "password", "date_of_birth", "role", "is_staff", "is_superuser", "is_active").
		Values(u.Username, u.Email, u.Password, u.DateOfBirth, u.Role, u.IsStaff, u.IsSuperuser, u.IsActive).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return model.User{}, errs.ErrConflict
		}
		r.log.Error("CreateUser", zap.String("q", query), zap.Error(err))
		return model.User{}, err
	}
	return r.GetUser(ctx, u.Username)
}

func (r *repository) GetUser(ctx context.Context, username string) (model.User, error) {
	query, args, err := selectUsers().
		Where(sq.Eq{"u.username": username}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.User{}, err
	}
	defer rows.Close()

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) ListUsers(ctx context.Context) ([]model.User, error) {
	query, args, err := selectUsers().OrderBy("u.id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.User])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return users, nil
}

func updateSet(upd model.UserUpdate) map[string]interface{} {
	set := make(map[string]interface{})
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.DateOfBirth != nil {
		set["date_of_birth"] = *upd.DateOfBirth
	}
	if upd.ProfilePhoto != nil {
		set["profile_photo"] = *upd.ProfilePhoto
	}
	if upd.Password != nil {
		set["password"] = *upd.Password
	}
	if upd.Role != nil {
		set["role"] = *upd.Role
	}
	if upd.IsStaff != nil {
		set["is_staff"] = *upd.IsStaff
	}
	if upd.IsSuperuser != nil {
		set["is_superuser"] = *upd.IsSuperuser
	}
	if upd.IsActive != nil {
		set["is_active"] = *upd.IsActive
	}
	return set
}

func (r *repository) UpdateUser(ctx context.Context, username string, upd model.UserUpdate) (model.User, error) {
	if upd.Empty() {
		return r.GetUser(ctx, username)
	}
	query, args, err := qb.Update(usersTableName).
		SetMap(updateSet(upd)).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.Error("UpdateUser", zap.String("q", query), zap.Error(err))
		return model.User{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.User{}, errs.ErrNotFound
	}
	return r.GetUser(ctx, username)
}

func (r *repository) GrantPermission(ctx context.Context, username, codename string) error {
	q := `
insert into user_permissions (user_id, codename)
select id, @codename from users where username = @username
on conflict (user_id, codename) do nothing`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"username": username,
		"codename": codename,
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// either the user is missing or the grant already exists
		if _, err := r.GetUser(ctx, username); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) RevokePermission(ctx context.Context, username, codename string) error {
	q := `
delete from user_permissions
where codename = @codename and user_id = (select id from users where username = @username)`
	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"username": username,
		"codename": codename,
	})
	return err
}
