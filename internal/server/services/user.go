// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login and bearer-token resolution.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
)

const (
	maxUsernameLen = 20
	maxEmailLen    = 50
	maxNameLen     = 50

	// bcrypt only accepts passwords up to 72 bytes.
	maxPasswordBytes = 72
)

// Token is the body returned by a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	tokenAlgorithm              string
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		tokenAlgorithm:              cfg.TokenAlgorithm,
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register validates in, hashes the password and stores the user.
// A taken username yields common.ErrorAlreadyExists.
func (s *UserService) Register(ctx context.Context, in models.UserCreate) (*models.User, error) {
	if err := validateUserCreate(in); err != nil {
		return nil, err
	}

	password := []byte(in.Password)
	defer common.WipeByteArray(password)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		UserName:       in.UserName,
		Email:          in.Email,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		HashedPassword: hash,
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if _, err := repo.GetByUsername(ctx, in.UserName); err == nil {
			return common.ErrorAlreadyExists
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		var cerr error
		created, cerr = repo.Create(ctx, user)
		return cerr
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// Login verifies credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	candidate := []byte(password)
	defer common.WipeByteArray(candidate)

	ok, err := auth.CheckPassword(user.HashedPassword, candidate)
	if err != nil || !ok {
		return nil, common.ErrorUnauthorized
	}

	access, err := auth.GenerateToken(user.UserName, s.jwtSecret, s.tokenAlgorithm, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Token{AccessToken: access, TokenType: common.TokenType}, nil
}

// GetByUsername returns the user or common.ErrorNotFound.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByUsername(ctx, username)
}

// Authenticate resolves a bearer token to its user. Every failure,
// including a user that no longer resolves, is common.ErrorUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	username, err := auth.GetSubjectFromToken(token, s.jwtSecret, s.tokenAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	user, err := s.repomanager.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	return user, nil
}

func validateUserCreate(in models.UserCreate) error {
	var problems []string

	if n := utf8.RuneCountInString(in.UserName); n == 0 || n > maxUsernameLen {
		problems = append(problems, fmt.Sprintf("username must be 1-%d characters", maxUsernameLen))
	}
	if in.Email == "" || utf8.RuneCountInString(in.Email) > maxEmailLen {
		problems = append(problems, fmt.Sprintf("email must be 1-%d characters", maxEmailLen))
	}
	if in.Password == "" {
		problems = append(problems, "password is required")
	} else if len(in.Password) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	if in.FirstName != nil && utf8.RuneCountInString(*in.FirstName) > maxNameLen {
		problems = append(problems, fmt.Sprintf("first_name must be at most %d characters", maxNameLen))
	}
	if in.LastName != nil && utf8.RuneCountInString(*in.LastName) > maxNameLen {
		problems = append(problems, fmt.Sprintf("last_name must be at most %d characters", maxNameLen))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrorValidation, strings.Join(problems, "; "))
	}
	return nil
}
