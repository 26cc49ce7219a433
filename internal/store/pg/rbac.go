package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qagaz.org/internal/ids"
	"qagaz.org/internal/rbac"
)

func (s *Store) CreateUser(ctx context.Context, u rbac.User) (rbac.User, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = rbac.UserStatusActive
	}
	var full, hash sql.NullString
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, full_name, branch_code, status, password_hash)
		values ($1, $2, $3, $4, $5, $6)
		returning id, username, full_name, branch_code, status, password_hash, created_at, updated_at
	`, u.ID, u.Username, nullIfEmpty(u.FullName), u.BranchCode, u.Status, nullIfEmpty(u.PasswordHash))
	if err := row.Scan(&u.ID, &u.Username, &full, &u.BranchCode, &u.Status, &hash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.User{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.User{}, rbac.ErrNotFound
			}
		}
		return rbac.User{}, err
	}
	if full.Valid {
		u.FullName = full.String
	}
	if hash.Valid {
		u.PasswordHash = hash.String
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (rbac.User, error) {
	return s.userWhere(ctx, `id = $1`, userID)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, error) {
	return s.userWhere(ctx, `username = $1`, username)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (rbac.User, error) {
	var (
		u          rbac.User
		full, hash sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, full_name, branch_code, status, password_hash, created_at, updated_at
		from users
		where `+cond, arg).Scan(&u.ID, &u.Username, &full, &u.BranchCode, &u.Status, &hash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.User{}, err
	}
	if full.Valid {
		u.FullName = full.String
	}
	if hash.Valid {
		u.PasswordHash = hash.String
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]rbac.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, username, full_name, branch_code, status, created_at, updated_at
		from users
		order by username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []rbac.User
	for rows.Next() {
		var (
			u    rbac.User
			full sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &full, &u.BranchCode, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if full.Valid {
			u.FullName = full.String
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	var (
		role rbac.Role
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at, updated_at
	`, ids.New(), name, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, rbac.ErrConflict
		}
		return rbac.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	return s.roleWhere(ctx, `id = $1`, roleID)
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	return s.roleWhere(ctx, `name = $1`, name)
}

func (s *Store) roleWhere(ctx context.Context, cond string, arg any) (rbac.Role, error) {
	var (
		role rbac.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		where `+cond, arg).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []rbac.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, id, p.Key, nullIfEmpty(p.Description)); err != nil {
			return fmt.Errorf("ensure permission %s: %w", p.Key, err)
		}
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, key, description, created_at
		from permissions
		order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var (
			p    rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Key, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		var permID string
		err := tx.QueryRowContext(ctx, `select id from permissions where key = $1`, key).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, key)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.key, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var (
			p    rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Key, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (rbac.Assignment, error) {
	var a rbac.Assignment
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		returning user_id, role_id, created_at
	`, userID, roleID).Scan(&a.UserID, &a.RoleID, &a.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.Assignment{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.Assignment{}, rbac.ErrNotFound
			}
		}
		return rbac.Assignment{}, err
	}
	return a, nil
}

func (s *Store) RemoveAssignment(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) Assignments(ctx context.Context, userID string) ([]rbac.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Assignment
	for rows.Next() {
		var a rbac.Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.key
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) CreateBranch(ctx context.Context, b rbac.Branch) (rbac.Branch, error) {
	var region sql.NullString
	row := s.db.QueryRowContext(ctx, `
		insert into branches (code, name, region, active)
		values ($1, $2, $3, $4)
		returning code, name, region, active, created_at, updated_at
	`, b.Code, b.Name, nullIfEmpty(b.Region), b.Active)
	if err := row.Scan(&b.Code, &b.Name, &region, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Branch{}, rbac.ErrConflict
		}
		return rbac.Branch{}, err
	}
	if region.Valid {
		b.Region = region.String
	}
	return b, nil
}

func (s *Store) GetBranch(ctx context.Context, code int) (rbac.Branch, error) {
	var (
		b      rbac.Branch
		region sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select code, name, region, active, created_at, updated_at
		from branches
		where code = $1
	`, code).Scan(&b.Code, &b.Name, &region, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Branch{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Branch{}, err
	}
	if region.Valid {
		b.Region = region.String
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]rbac.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		select code, name, region, active, created_at, updated_at
		from branches
		order by code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Branch
	for rows.Next() {
		var (
			b      rbac.Branch
			region sql.NullString
		)
		if err := rows.Scan(&b.Code, &b.Name, &region, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if region.Valid {
			b.Region = region.String
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
