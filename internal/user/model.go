package user

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID           string
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials is the login body. Password2 is only read at registration,
// where it must match Password when supplied.
type Credentials struct {
	UserName  string `json:"userName"`
	Password  string `json:"password"`
	Password2 string `json:"password2,omitempty"`
}

// Store is the credential and favourites store the route layer depends on.
// Every call is a single atomic step from the caller's point of view.
type Store interface {
	CreateUser(ctx context.Context, userName, password string) (User, error)
	FindByUserName(ctx context.Context, userName string) (User, error)
	VerifyPassword(user User, password string) error
	UserExists(ctx context.Context, userID string) (bool, error)
	Favourites(ctx context.Context, userID string) ([]string, error)
	AddFavourite(ctx context.Context, userID, itemID string, limit int) ([]string, error)
	RemoveFavourite(ctx context.Context, userID, itemID string) ([]string, error)
}

// ValidationError is a client input problem; Message is safe to return as is.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserNameTaken      = errors.New("user name already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrFavouritesLimit    = errors.New("favourites limit reached")
)
