package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/internal/utils"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
}

type UpdateProfileInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
}

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	start := time.Now()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	logger.Log.Debug("Processing user registration",
		zap.String("username", in.Username),
		zap.String("email", in.Email),
	)

	if err := validateStruct(in); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, "", err
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		logger.Log.Error("Failed to check email existence", zap.String("email", in.Email), zap.Error(err))
		return nil, "", err
	}
	if existing != nil {
		logger.Log.Warn("Email already exists", zap.String("email", in.Email))
		return nil, "", ErrEmailAlreadyExists
	}

	existing, err = s.userRepo.GetUserByUsername(ctx, in.Username)
	if err != nil {
		logger.Log.Error("Failed to check username existence", zap.String("username", in.Username), zap.Error(err))
		return nil, "", err
	}
	if existing != nil {
		logger.Log.Warn("Username already exists", zap.String("username", in.Username))
		return nil, "", ErrUsernameAlreadyExists
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(in.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, "", err
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
		Phone:        in.Phone,
		IsActive:     true,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user in database",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	logger.Log.Debug("Processing user login", zap.String("email", email))

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to get user by email", zap.String("email", email), zap.Error(err))
		return nil, "", err
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, "", ErrInvalidCredentials
	}

	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil, "", err
	}
	if !valid {
		logger.Log.Warn("Login failed: invalid password", zap.String("user_id", user.ID.String()))
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		logger.Log.Warn("Login failed: account inactive", zap.String("user_id", user.ID.String()))
		return nil, "", ErrInactiveAccount
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("User logged in successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, token, nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return "", err
	}
	return token, nil
}

// ResolveToken turns a bearer token into the active user it identifies.
// The role comes from the store, so role changes apply without re-login.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		logger.Log.Error("Failed to load token subject",
			zap.String("user_id", claims.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if in.Phone != nil {
		trimmed := strings.TrimSpace(*in.Phone)
		in.Phone = &trimmed
	}

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var columns []string
	if in.Username != nil && *in.Username != user.Username {
		existing, err := s.userRepo.GetUserByUsername(ctx, *in.Username)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrUsernameAlreadyExists
		}
		user.Username = *in.Username
		columns = append(columns, "username")
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
		columns = append(columns, "phone")
	}

	if len(columns) == 0 {
		return user, nil
	}

	if err := s.userRepo.UpdateUser(ctx, user, columns...); err != nil {
		logger.Log.Error("Failed to update profile",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("Profile updated",
		zap.String("user_id", userID.String()),
		zap.Strings("fields", columns),
	)
	return user, nil
}

// GetAllUsers returns every account.
func (s *AuthService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.GetAllUsers(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch all users", zap.Error(err))
		return nil, err
	}
	return users, nil
}

// ListStaff returns moderators and admins.
func (s *AuthService) ListStaff(ctx context.Context) ([]*models.User, error) {
	return s.userRepo.GetUsersByRoles(ctx, models.RoleModerator, models.RoleAdmin)
}

// ChangeRole lets an admin assign a role to another account.
func (s *AuthService) ChangeRole(ctx context.Context, admin *models.User, targetID uuid.UUID, role models.Role) (*models.User, error) {
	if !admin.Role.IsAdmin() {
		return nil, ErrInsufficientRole
	}
	if !role.Valid() {
		return nil, newValidationError("role", "Must be one of: user moderator admin")
	}
	if admin.ID == targetID && role != models.RoleAdmin {
		return nil, ErrSelfModification
	}

	user, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	previous := user.Role
	user.Role = role
	if err := s.userRepo.UpdateUser(ctx, user, "role"); err != nil {
		logger.Log.Error("Failed to change role", zap.String("user_id", targetID.String()), zap.Error(err))
		return nil, err
	}

	logger.Log.Info("User role changed",
		zap.String("admin_id", admin.ID.String()),
		zap.String("user_id", targetID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(role)),
	)
	return user, nil
}

// SetActive lets an admin activate or deactivate another account.
func (s *AuthService) SetActive(ctx context.Context, admin *models.User, targetID uuid.UUID, active bool) (*models.User, error) {
	if !admin.Role.IsAdmin() {
		return nil, ErrInsufficientRole
	}
	if admin.ID == targetID && !active {
		return nil, ErrSelfModification
	}

	user, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	user.IsActive = active
	if err := s.userRepo.UpdateUser(ctx, user, "is_active"); err != nil {
		logger.Log.Error("Failed to change account status", zap.String("user_id", targetID.String()), zap.Error(err))
		return nil, err
	}

	logger.Log.Info("User account status changed",
		zap.String("admin_id", admin.ID.String()),
		zap.String("user_id", targetID.String()),
		zap.Bool("active", active),
	)
	return user, nil
}
