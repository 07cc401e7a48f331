package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"favourites-api/internal/auth"
)

const (
	defaultMaxFavourites = 50
	maxUserNameBytes     = 100
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes    = 72
	maxFavouriteIDBytes = 200
)

// TokenIssuer signs an access token for a logged-in user.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
}

type Service struct {
	store         Store
	tokens        TokenIssuer
	maxFavourites int
}

func NewService(store Store, tokens TokenIssuer) *Service {
	return &Service{
		store:         store,
		tokens:        tokens,
		maxFavourites: defaultMaxFavourites,
	}
}

// WithMaxFavourites sets the per-user cap. Zero or less removes it.
func (s *Service) WithMaxFavourites(limit int) *Service {
	s.maxFavourites = limit
	return s
}

func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	userName := strings.TrimSpace(creds.UserName)

	switch {
	case userName == "":
		return User{}, ValidationError{Message: "User Name is required"}
	case len(userName) > maxUserNameBytes:
		return User{}, ValidationError{Message: fmt.Sprintf("User Name must be at most %d characters", maxUserNameBytes)}
	case creds.Password == "":
		return User{}, ValidationError{Message: "Password is required"}
	case len(creds.Password) > maxPasswordBytes:
		return User{}, ValidationError{Message: fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes)}
	case creds.Password2 != "" && creds.Password2 != creds.Password:
		return User{}, ValidationError{Message: "Passwords do not match"}
	}

	return s.store.CreateUser(ctx, userName, creds.Password)
}

// Login checks the credentials and returns a signed token. Unknown user names
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, creds Credentials) (string, error) {
	userName := strings.TrimSpace(creds.UserName)
	if userName == "" || creds.Password == "" || len(creds.Password) > maxPasswordBytes {
		return "", ErrInvalidCredentials
	}

	u, err := s.store.FindByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := s.store.VerifyPassword(u, creds.Password); err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(auth.Identity{ID: u.ID, UserName: u.UserName})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (s *Service) Favourites(ctx context.Context, userID string) ([]string, error) {
	return s.store.Favourites(ctx, userID)
}

func (s *Service) AddFavourite(ctx context.Context, userID, itemID string) ([]string, error) {
	itemID, err := normalizeFavouriteID(itemID)
	if err != nil {
		return nil, err
	}
	return s.store.AddFavourite(ctx, userID, itemID, s.maxFavourites)
}

func (s *Service) RemoveFavourite(ctx context.Context, userID, itemID string) ([]string, error) {
	itemID, err := normalizeFavouriteID(itemID)
	if err != nil {
		return nil, err
	}
	return s.store.RemoveFavourite(ctx, userID, itemID)
}

func normalizeFavouriteID(itemID string) (string, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return "", ValidationError{Message: "favourite id is required"}
	}
	if len(itemID) > maxFavouriteIDBytes {
		return "", ValidationError{Message: fmt.Sprintf("favourite id must be at most %d characters", maxFavouriteIDBytes)}
	}
	return itemID, nil
}
