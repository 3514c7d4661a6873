// Package manage holds the administrative commands shared by every service:
// schema migrations and user administration against the identity store.
package manage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Astemirdum/bookshelf-service/identity/internal/errs"
	"github.com/Astemirdum/bookshelf-service/identity/internal/model"
	"github.com/Astemirdum/bookshelf-service/identity/internal/service"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type UserAdmin interface {
	CreateSuperuser(ctx context.Context, username, email, password string) (model.User, error)
	SetRole(ctx context.Context, username, role string) (model.User, error)
	GrantPermission(ctx context.Context, username, codename string) error
	RevokePermission(ctx context.Context, username, codename string) error
}

var _ UserAdmin = (*service.Service)(nil)

// Deps are resolved lazily so that --help never touches the database.
type Deps struct {
	// Services lists the names accepted by migrate --service.
	Services     []string
	Migrate      func(ctx context.Context, service, dbName string) error
	OpenUsers    func(ctx context.Context) (UserAdmin, func(), error)
	ReadPassword func(prompt string) (string, error)
}

func NewRootCmd(d Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "manage",
		Short:         "Administrative tasks for the bookshelf services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		migrateCmd(d),
		createSuperuserCmd(d),
		permissionCmd(d, "grant", "Grant a permission to a user", UserAdmin.GrantPermission),
		permissionCmd(d, "revoke", "Revoke a permission from a user", UserAdmin.RevokePermission),
		setRoleCmd(d),
	)
	return root
}

func migrateCmd(d Deps) *cobra.Command {
	var svc, dbName string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations of a service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(d.Services, svc) {
				return fmt.Errorf("unknown service %q, expected one of: %s", svc, strings.Join(d.Services, ", "))
			}
			if err := d.Migrate(cmdContext(cmd), svc, dbName); err != nil {
				return errors.Wrapf(err, "migrate %s", svc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied for %s.\n", svc)
			return nil
		},
	}
	cmd.Flags().StringVar(&svc, "service", "", "service to migrate ("+strings.Join(d.Services, "|")+")")
	cmd.Flags().StringVar(&dbName, "db", "", "database name; defaults to <SERVICE>_DB_NAME or the service name")
	_ = cmd.MarkFlagRequired("service") //nolint:errcheck
	return cmd
}

func createSuperuserCmd(d Deps) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an Admin user holding every permission",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword(d.ReadPassword); err != nil {
					return err
				}
			}
			return withUsers(cmd, d, func(ctx context.Context, users UserAdmin) error {
				user, err := users.CreateSuperuser(ctx, username, email, password)
				if err != nil {
					if errors.Is(err, errs.ErrConflict) {
						return errors.New("Error: That username is already taken.")
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created successfully.\n", user.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login of the new superuser")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password; prompted for when omitted")
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck
	return cmd
}

const minPasswordLen = 8

func promptPassword(read func(string) (string, error)) (string, error) {
	password, err := read("Password: ")
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	again, err := read("Password (again): ")
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	switch {
	case password != again:
		return "", errors.New("Error: Your passwords didn't match.")
	case len(password) < minPasswordLen:
		return "", errors.Errorf("This password is too short. It must contain at least %d characters.", minPasswordLen)
	}
	return password, nil
}

func permissionCmd(d Deps, use, short string, apply func(UserAdmin, context.Context, string, string) error) *cobra.Command {
	var username, perm string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !model.ValidCodename(perm) {
				return errors.Errorf(`invalid permission %q, expected "app_label.codename"`, perm)
			}
			return withUsers(cmd, d, func(ctx context.Context, users UserAdmin) error {
				if err := apply(users, ctx, username, perm); err != nil {
					if errors.Is(err, errs.ErrNotFound) {
						return errors.Errorf("user %s not found", username)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", username, use, perm)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user to change")
	cmd.Flags().StringVar(&perm, "perm", "", `permission codename, e.g. "relationship_app.can_add_book"`)
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck
	_ = cmd.MarkFlagRequired("perm")     //nolint:errcheck
	return cmd
}

func setRoleCmd(d Deps) *cobra.Command {
	var username, role string
	roles := []string{auth.RoleAdmin, auth.RoleLibrarian, auth.RoleMember}
	cmd := &cobra.Command{
		Use:   "setrole",
		Short: "Change the role of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !auth.ValidRole(role) {
				return errors.Errorf("invalid role %q, expected one of: %s", role, strings.Join(roles, ", "))
			}
			return withUsers(cmd, d, func(ctx context.Context, users UserAdmin) error {
				user, err := users.SetRole(ctx, username, role)
				if err != nil {
					if errors.Is(err, errs.ErrNotFound) {
						return errors.Errorf("user %s not found", username)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Username, user.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user to change")
	cmd.Flags().StringVar(&role, "role", "", strings.Join(roles, "|"))
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck
	_ = cmd.MarkFlagRequired("role")     //nolint:errcheck
	return cmd
}

func withUsers(cmd *cobra.Command, d Deps, fn func(ctx context.Context, users UserAdmin) error) error {
	ctx := cmdContext(cmd)
	users, closeFn, err := d.OpenUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "open identity store")
	}
	defer closeFn()
	return fn(ctx, users)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
