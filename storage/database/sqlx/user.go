package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

func scanUser(row sqlx.ColScanner) (user.User, error) {
	var usr user.User
	err := row.Scan(
		&usr.ID, &usr.Name, &usr.Username, &usr.Email, &usr.IsActive,
		pq.Array(&usr.Roles), &usr.PasswordHash, &usr.CreatedAt, &usr.UpdatedAt, &usr.LastLogin,
	)
	return usr, err
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string) error {
	rows, err := repo.db.QueryContext(ctx,
		`SELECT username, email FROM "user"
		 WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2)`,
		username, email)
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	defer rows.Close()
	for rows.Next() {
		var uname, mail string
		if err := rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "scanning user")
		}
		if strings.EqualFold(uname, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(mail, email) {
			return user.ErrEmailExists
		}
	}
	return rows.Err()
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO "user" (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.Array(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin)
	return usr, errors.Wrap(err, "inserting user")
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	rows, err := repo.db.QueryxContext(ctx, `SELECT `+userColumns+` FROM "user" ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer rows.Close()

	users := make([]user.User, 0)
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning user")
		}
		users = append(users, usr)
	}
	return users, rows.Err()
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	row := repo.db.QueryRowxContext(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id)
	usr, err := scanUser(row)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user")
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	row := repo.db.QueryRowxContext(ctx,
		`SELECT `+userColumns+` FROM "user" WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)`, username)
	usr, err := scanUser(row)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE "user"
		 SET name = $1, username = $2, email = $3, is_active = $4, roles = $5,
		     password_hash = $6, updated_at = $7, last_login = $8
		 WHERE id = $9`,
		usr.Name, usr.Username, usr.Email, usr.IsActive, pq.Array(usr.Roles),
		usr.PasswordHash, usr.UpdatedAt, usr.LastLogin, usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
