package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/internal/model"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/internal/util"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidUsername = errors.New("username must be 3-24 letters, digits or underscores")
	ErrInvalidPassword = errors.New("password must be 6-128 characters")
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
	audit    *AuditService
	clock    clockwork.Clock
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config, audit *AuditService, clock clockwork.Clock) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
		audit:    audit,
		clock:    clock,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password, clientKey string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if !model.IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !model.IsValidPassword(password) {
		return nil, ErrInvalidPassword
	}

	exists, err := s.UserRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, util.ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{Username: username, Password: string(hashedPassword)}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.Record(AuditEvent{Type: model.AuditRegister, UserID: &user.ID, ClientKey: clientKey})
	return user, nil
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, username, password, clientKey string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, util.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	now := s.clock.Now()
	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return "", nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	s.audit.Record(AuditEvent{Type: model.AuditLogin, UserID: &user.ID, ClientKey: clientKey})
	return token, user, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}
