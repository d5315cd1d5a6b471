package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/internal/testutil"
	"github.com/lostfound/backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AuthServiceIntegrationTestSuite struct {
	suite.Suite
	testDB      *testutil.TestDatabase
	authService *service.AuthService
	ctx         context.Context
}

func (s *AuthServiceIntegrationTestSuite) SetupSuite() {
	logger.Init(false)

	s.testDB = testutil.SetupTestDatabase(s.T())
	userRepo := repository.NewUserRepository(s.testDB.DB)
	s.authService = service.NewAuthService(userRepo, testutil.TestJWTSecret, time.Hour)
	s.ctx = context.Background()
}

func (s *AuthServiceIntegrationTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
}

func (s *AuthServiceIntegrationTestSuite) TestRegisterAndLogin() {
	user, token, err := s.authService.Register(s.ctx, service.RegisterInput{
		Username: " newuser ",
		Email:    "NewUser@Example.com",
		Password: "SecurePass123",
		Phone:    "555-1234",
	})
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), token)
	assert.Equal(s.T(), "newuser", user.Username)
	assert.Equal(s.T(), "newuser@example.com", user.Email)
	assert.Equal(s.T(), models.RoleUser, user.Role)
	assert.True(s.T(), user.IsActive)
	assert.NotEqual(s.T(), "SecurePass123", user.PasswordHash)

	loggedIn, token, err := s.authService.Login(s.ctx, "newuser@example.com", "SecurePass123")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, loggedIn.ID)

	resolved, err := s.authService.ResolveToken(s.ctx, token)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), user.ID, resolved.ID)
}

func (s *AuthServiceIntegrationTestSuite) TestRegisterDuplicates() {
	testutil.CreateTestUser(s.T(), s.testDB.DB, "taken", models.RoleUser)

	_, _, err := s.authService.Register(s.ctx, service.RegisterInput{
		Username: "fresh", Email: "taken@example.com", Password: "SecurePass123",
	})
	assert.ErrorIs(s.T(), err, service.ErrEmailAlreadyExists)

	_, _, err = s.authService.Register(s.ctx, service.RegisterInput{
		Username: "taken", Email: "fresh@example.com", Password: "SecurePass123",
	})
	assert.ErrorIs(s.T(), err, service.ErrUsernameAlreadyExists)
}

func (s *AuthServiceIntegrationTestSuite) TestRegisterValidation() {
	_, _, err := s.authService.Register(s.ctx, service.RegisterInput{
		Username: "ab", Email: "not-an-email", Password: "123",
	})
	assert.ElementsMatch(s.T(), []string{"username", "email", "password"}, fieldNames(err))
}

func (s *AuthServiceIntegrationTestSuite) TestLoginFailures() {
	testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)
	testutil.CreateInactiveUser(s.T(), s.testDB.DB, "dormant")

	_, _, err := s.authService.Login(s.ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(s.T(), err, service.ErrInvalidCredentials)

	_, _, err = s.authService.Login(s.ctx, "nobody@example.com", testutil.DefaultPassword)
	assert.ErrorIs(s.T(), err, service.ErrInvalidCredentials)

	_, _, err = s.authService.Login(s.ctx, "dormant@example.com", testutil.DefaultPassword)
	assert.ErrorIs(s.T(), err, service.ErrInactiveAccount)
}

func (s *AuthServiceIntegrationTestSuite) TestResolveToken() {
	alice := testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)
	dormant := testutil.CreateInactiveUser(s.T(), s.testDB.DB, "dormant")
	ghost := &models.User{ID: uuid.New(), Username: "ghost", Email: "ghost@example.com", Role: models.RoleUser}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"missing", "", service.ErrMissingToken},
		{"garbage", "not.a.token", service.ErrInvalidToken},
		{"expired", testutil.ExpiredTokenFor(s.T(), alice), service.ErrInvalidToken},
		{"unknown subject", testutil.TokenFor(s.T(), ghost), service.ErrInvalidToken},
		{"inactive", testutil.TokenFor(s.T(), dormant), service.ErrInactiveAccount},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			user, err := s.authService.ResolveToken(s.ctx, tt.token)
			assert.ErrorIs(s.T(), err, tt.wantErr)
			assert.True(s.T(), service.IsUnauthenticated(err))
			assert.Nil(s.T(), user)
		})
	}
}

func (s *AuthServiceIntegrationTestSuite) TestResolveTokenReadsRoleFromStore() {
	alice := testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)
	token := testutil.TokenFor(s.T(), alice)

	require.NoError(s.T(), s.testDB.DB.Model(alice).Update("role", models.RoleModerator).Error)

	resolved, err := s.authService.ResolveToken(s.ctx, token)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.RoleModerator, resolved.Role)
}

func (s *AuthServiceIntegrationTestSuite) TestUpdateProfile() {
	alice := testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)
	testutil.CreateTestUser(s.T(), s.testDB.DB, "bob", models.RoleUser)

	taken := "bob"
	_, err := s.authService.UpdateProfile(s.ctx, alice.ID, service.UpdateProfileInput{Username: &taken})
	assert.ErrorIs(s.T(), err, service.ErrUsernameAlreadyExists)

	name := "alice2"
	phone := "555-9999"
	updated, err := s.authService.UpdateProfile(s.ctx, alice.ID, service.UpdateProfileInput{Username: &name, Phone: &phone})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice2", updated.Username)

	stored, err := s.authService.GetUser(s.ctx, alice.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice2", stored.Username)
	assert.Equal(s.T(), "555-9999", stored.Phone)
}

func (s *AuthServiceIntegrationTestSuite) TestAdminOperations() {
	admin := testutil.CreateTestUser(s.T(), s.testDB.DB, "admin", models.RoleAdmin)
	alice := testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)

	_, err := s.authService.ChangeRole(s.ctx, alice, admin.ID, models.RoleUser)
	assert.ErrorIs(s.T(), err, service.ErrInsufficientRole)

	_, err = s.authService.ChangeRole(s.ctx, admin, admin.ID, models.RoleModerator)
	assert.ErrorIs(s.T(), err, service.ErrSelfModification)

	_, err = s.authService.SetActive(s.ctx, admin, admin.ID, false)
	assert.ErrorIs(s.T(), err, service.ErrSelfModification)

	_, err = s.authService.ChangeRole(s.ctx, admin, alice.ID, models.Role("superuser"))
	assert.Equal(s.T(), []string{"role"}, fieldNames(err))

	_, err = s.authService.ChangeRole(s.ctx, admin, uuid.New(), models.RoleModerator)
	assert.ErrorIs(s.T(), err, service.ErrUserNotFound)

	promoted, err := s.authService.ChangeRole(s.ctx, admin, alice.ID, models.RoleModerator)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.RoleModerator, promoted.Role)

	staff, err := s.authService.ListStaff(s.ctx)
	require.NoError(s.T(), err)
	assert.Len(s.T(), staff, 2)

	deactivated, err := s.authService.SetActive(s.ctx, admin, alice.ID, false)
	require.NoError(s.T(), err)
	assert.False(s.T(), deactivated.IsActive)

	_, err = s.authService.ResolveToken(s.ctx, testutil.TokenFor(s.T(), alice))
	assert.ErrorIs(s.T(), err, service.ErrInactiveAccount)

	users, err := s.authService.GetAllUsers(s.ctx)
	require.NoError(s.T(), err)
	assert.Len(s.T(), users, 2)
}

func TestAuthServiceIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceIntegrationTestSuite))
}
