package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"favourites-api/internal/db"
)

const uniqueViolation = "23505"

// Repository is the Postgres-backed Store.
type Repository struct {
	handle   *db.Handle
	hashCost int
}

var _ Store = (*Repository)(nil)

func NewRepository(handle *db.Handle) *Repository {
	return &Repository{handle: handle, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost.
func (r *Repository) WithHashCost(cost int) *Repository {
	r.hashCost = cost
	return r
}

func (r *Repository) CreateUser(ctx context.Context, userName, password string) (User, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := User{
		ID:           id.String(),
		UserName:     userName,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = database.ExecContext(ctx, `
		INSERT INTO users (id, user_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, u.ID, u.UserName, u.PasswordHash, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrUserNameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *Repository) FindByUserName(ctx context.Context, userName string) (User, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return User{}, err
	}

	var u User
	err = database.QueryRowContext(ctx, `
		SELECT id, user_name, password_hash, created_at, updated_at
		FROM users
		WHERE user_name = $1
	`, userName).Scan(&u.ID, &u.UserName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by user name: %w", err)
	}

	return u, nil
}

func (r *Repository) VerifyPassword(u User, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return fmt.Errorf("compare password hash: %w", err)
}

func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return false, err
	}
	return userExists(ctx, database, userID)
}

func (r *Repository) Favourites(ctx context.Context, userID string) ([]string, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := userExists(ctx, database, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	return listFavourites(ctx, database, userID)
}

// AddFavourite inserts itemID unless present. The user row is locked so the
// limit check and the insert see the same count. A limit <= 0 disables it.
func (r *Repository) AddFavourite(ctx context.Context, userID, itemID string, limit int) ([]string, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add favourite tx: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user row: %w", err)
	}

	var present bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_favourites WHERE user_id = $1 AND item_id = $2)
	`, userID, itemID).Scan(&present)
	if err != nil {
		return nil, fmt.Errorf("check favourite: %w", err)
	}

	if !present {
		if limit > 0 {
			var count int
			err = tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM user_favourites WHERE user_id = $1
			`, userID).Scan(&count)
			if err != nil {
				return nil, fmt.Errorf("count favourites: %w", err)
			}
			if count >= limit {
				return nil, ErrFavouritesLimit
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_favourites (user_id, item_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, item_id) DO NOTHING
		`, userID, itemID, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("insert favourite: %w", err)
		}
	}

	favourites, err := listFavourites(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add favourite tx: %w", err)
	}

	return favourites, nil
}

// RemoveFavourite deletes itemID if present; removing an absent id is not an error.
func (r *Repository) RemoveFavourite(ctx context.Context, userID, itemID string) ([]string, error) {
	database, err := r.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := userExists(ctx, database, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	_, err = database.ExecContext(ctx, `
		DELETE FROM user_favourites
		WHERE user_id = $1 AND item_id = $2
	`, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("delete favourite: %w", err)
	}

	return listFavourites(ctx, database, userID)
}

func userExists(ctx context.Context, q db.DBTX, userID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func listFavourites(ctx context.Context, q db.DBTX, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id
		FROM user_favourites
		WHERE user_id = $1
		ORDER BY created_at ASC, item_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query favourites: %w", err)
	}
	defer rows.Close()

	favourites := make([]string, 0)
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("scan favourite: %w", err)
		}
		favourites = append(favourites, itemID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favourites: %w", err)
	}

	return favourites, nil
}
