package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lostfound/backend/internal/config"
	"github.com/lostfound/backend/internal/database"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/internal/utils"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	role := flag.String("role", string(models.RoleModerator), "role for the seeded account (moderator or admin)")
	promote := flag.String("promote", "", "email of an existing account to promote to -role")
	list := flag.Bool("list", false, "list moderator and admin accounts")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if err := logger.Init(true); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	target := models.Role(*role)
	if !target.CanModerate() {
		logger.Log.Fatal("Role must be moderator or admin", zap.String("role", *role))
	}

	switch {
	case *list:
		err = listStaff(ctx, users)
	case *promote != "":
		err = promoteUser(ctx, users, *promote, target)
	default:
		err = createStaff(ctx, users, target)
	}
	if err != nil {
		logger.Log.Fatal("Seed failed", zap.Error(err))
	}
}

func listStaff(ctx context.Context, users *repository.UserRepository) error {
	staff, err := users.GetUsersByRoles(ctx, models.RoleModerator, models.RoleAdmin)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		fmt.Println("No moderator or admin accounts found")
		return nil
	}
	for _, u := range staff {
		status := "active"
		if !u.IsActive {
			status = "inactive"
		}
		fmt.Printf("%-10s %-20s %-30s %s\n", u.Role, u.Username, u.Email, status)
	}
	return nil
}

func promoteUser(ctx context.Context, users *repository.UserRepository, email string, role models.Role) error {
	user, err := users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no account with email %s", email)
	}

	user.Role = role
	if err := users.UpdateUser(ctx, user, "role"); err != nil {
		return err
	}
	logger.Log.Info("Account promoted", zap.String("username", user.Username), zap.String("role", string(role)))
	return nil
}

// createStaff creates the account described by SEED_* variables. An existing
// account with the same email is left untouched.
func createStaff(ctx context.Context, users *repository.UserRepository, role models.Role) error {
	username := strings.TrimSpace(os.Getenv("SEED_USERNAME"))
	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_EMAIL")))
	password := os.Getenv("SEED_PASSWORD")
	phone := strings.TrimSpace(os.Getenv("SEED_PHONE"))

	if username == "" || email == "" || password == "" {
		return fmt.Errorf("missing environment variables: SEED_USERNAME, SEED_EMAIL, SEED_PASSWORD")
	}

	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Log.Info("Account already exists",
			zap.String("username", existing.Username),
			zap.String("role", string(existing.Role)),
		)
		return nil
	}

	passwordHash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Phone:        phone,
		IsActive:     true,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		return err
	}

	logger.Log.Info("Account created",
		zap.String("username", user.Username),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
	)
	return nil
}
