package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the PostgreSQL UserRepository.
type UserDB struct {
	pool *pgxpool.Pool
}

const userColumns = `id, username, email, password_hash, github_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.GitHubID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, github_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.GitHubID, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("An account with this email already exists")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserDB) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[id] = username
	}
	return names, rows.Err()
}

// UpsertGitHub prefers an account already linked to the GitHub id, then one
// with the same email, and inserts a new account otherwise. An email match
// already linked to another GitHub id is a Conflict.
func (r *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return errors.New("upsert github user: missing github id")
	}

	existing, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = $1 OR email = $2
		 ORDER BY (github_id = $1) DESC NULLS LAST
		 LIMIT 1`,
		*user.GitHubID, user.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.Create(ctx, user)
		}
		return fmt.Errorf("look up github user: %w", err)
	}
	if existing.GitHubID != nil && *existing.GitHubID != *user.GitHubID {
		return apperror.Conflict(apperror.MsgEmailLinkedElsewhere)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE users SET username = $1, github_id = $2 WHERE id = $3`,
		user.Username, *user.GitHubID, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("update github user: %w", err)
	}

	user.ID = existing.ID
	user.Email = existing.Email
	user.PasswordHash = existing.PasswordHash
	user.CreatedAt = existing.CreatedAt
	return nil
}
