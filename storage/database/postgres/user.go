package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

const userColumns = `id, organization_id, name, email, password_hash, role, role_specific_id, student_ids,
	is_active, created_at, updated_at, last_login`

// userRow maps the nullable columns of the users table.
type userRow struct {
	ID             string         `db:"id"`
	OrganizationID null.String    `db:"organization_id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	PasswordHash   []byte         `db:"password_hash"`
	Role           null.String    `db:"role"`
	RoleSpecificID null.String    `db:"role_specific_id"`
	StudentIDs     pq.StringArray `db:"student_ids"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	LastLogin      null.Time      `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	ids := pq.StringArray(usr.StudentIDs)
	if ids == nil {
		ids = pq.StringArray{}
	}
	return userRow{
		ID:             usr.ID,
		OrganizationID: null.NewString(usr.OrganizationID, usr.OrganizationID != ""),
		Name:           usr.Name,
		Email:          usr.Email,
		PasswordHash:   usr.PasswordHash,
		Role:           null.NewString(string(usr.Role), usr.Role != ""),
		RoleSpecificID: null.NewString(usr.RoleSpecificID, usr.RoleSpecificID != ""),
		StudentIDs:     ids,
		IsActive:       usr.IsActive,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
		LastLogin:      null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:             row.ID,
		OrganizationID: row.OrganizationID.String,
		Name:           row.Name,
		Email:          row.Email,
		PasswordHash:   row.PasswordHash,
		Role:           tenant.Role(row.Role.String),
		RoleSpecificID: row.RoleSpecificID.String,
		StudentIDs:     []string(row.StudentIDs),
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		LastLogin:      row.LastLogin.Time,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :organization_id, :name, :email, :password_hash, :role, :role_specific_id, :student_ids,
			:is_active, :created_at, :updated_at, :last_login)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, newUserRow(usr)); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "users_email_key" {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE `
	var arg interface{}
	switch {
	case filter.ID != "":
		q += `id = $1`
		arg = filter.ID
	case filter.Email != "":
		q += `email = $1`
		arg = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &row, q, arg); err != nil {
		if isNotFound(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	const q = `UPDATE users SET
			organization_id = :organization_id, name = :name, email = :email, password_hash = :password_hash,
			role = :role, role_specific_id = :role_specific_id, student_ids = :student_ids, is_active = :is_active,
			updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, newUserRow(usr))
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "users_email_key" {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = expectAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}
