package services

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/account/repositories"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/apperrors"
	"github.com/suhas-svg/financial-backend-services-sub006/pkg/token"
)

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *models.User `json:"user"`
}

type AuthService interface {
	Authenticate(username, password string) (*AuthResponse, error)
	Register(username, password string, roles []string) (*models.User, error)
}

type authService struct {
	users     repositories.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
}

func NewAuthService(users repositories.UserRepository, jwtSecret string, tokenTTL time.Duration) AuthService {
	return &authService{
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

func (s *authService) Authenticate(username, password string) (*AuthResponse, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := s.users.GetByUsername(username)
	if err != nil {
		// Same answer for unknown user and wrong password.
		return nil, apperrors.New("INVALID_CREDENTIALS", 401, "Invalid username or password")
	}
	if !user.Active || !user.CheckPassword(password) {
		return nil, apperrors.New("INVALID_CREDENTIALS", 401, "Invalid username or password")
	}

	accessToken, err := token.Sign(s.jwtSecret, user.Username, user.RoleList(), s.tokenTTL)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(user.ID); err != nil {
		logrus.WithError(err).Warn("Failed to update last login")
	}

	return &AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
		User:        user,
	}, nil
}

func (s *authService) Register(username, password string, roles []string) (*models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if len(username) < 3 {
		return nil, apperrors.New("INVALID_USERNAME", 400, "username must be at least 3 characters")
	}
	if len(password) < 8 {
		return nil, apperrors.New("WEAK_PASSWORD", 400, "password must be at least 8 characters")
	}

	user := &models.User{
		Username: username,
		Roles:    strings.Join(roles, ","),
		Active:   true,
	}
	if user.Roles == "" {
		user.Roles = "user"
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	return user, nil
}
