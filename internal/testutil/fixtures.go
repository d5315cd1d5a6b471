package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/utils"
	"gorm.io/gorm"
)

const (
	// DefaultPassword is the plaintext password of every fixture user.
	DefaultPassword = "Test123456"
	// TestJWTSecret signs tokens in handler and middleware tests.
	TestJWTSecret = "test-secret-key-for-testing-only-32chars"
)

var (
	hashOnce   sync.Once
	cachedHash string
	hashErr    error
)

// passwordHash hashes DefaultPassword once per test binary.
func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		cachedHash, hashErr = utils.HashPassword(DefaultPassword)
	})
	if hashErr != nil {
		t.Fatalf("Failed to hash fixture password: %v", hashErr)
	}
	return cachedHash
}

// CreateTestUser inserts an active user with the given role and DefaultPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: passwordHash(t),
		Role:         role,
		Phone:        "555-0100",
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
	return user
}

// CreateInactiveUser inserts a deactivated user.
func CreateInactiveUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := CreateTestUser(t, db, username, models.RoleUser)
	// is_active has a column default, so false must be written after insert
	if err := db.Model(user).Update("is_active", false).Error; err != nil {
		t.Fatalf("Failed to deactivate test user %s: %v", username, err)
	}
	user.IsActive = false
	return user
}

// ItemFixture describes an item to insert. Zero fields get sensible defaults.
type ItemFixture struct {
	Title       string
	Description string
	Type        models.ItemType
	Category    models.Category
	Location    string
	Status      models.ItemStatus
	Moderator   *models.User
	Claimant    *models.User
	Tags        []string
	CreatedAt   time.Time
	ModeratedAt time.Time
}

var itemSeq struct {
	sync.Mutex
	n int
}

// CreateTestItem inserts an item reported by reporter in the requested state,
// filling the moderation and claim metadata that state implies.
func CreateTestItem(t *testing.T, db *gorm.DB, reporter *models.User, f ItemFixture) *models.Item {
	t.Helper()

	itemSeq.Lock()
	itemSeq.n++
	seq := itemSeq.n
	itemSeq.Unlock()

	if f.Title == "" {
		f.Title = fmt.Sprintf("Test item %d", seq)
	}
	if f.Description == "" {
		f.Description = "A description that is long enough"
	}
	if f.Type == "" {
		f.Type = models.TypeFound
	}
	if f.Category == "" {
		f.Category = models.CategoryOther
	}
	if f.Location == "" {
		f.Location = "Main Library"
	}
	if f.Status == "" {
		f.Status = models.StatusPending
	}
	if f.CreatedAt.IsZero() {
		// Strictly increasing so ordering assertions are deterministic
		f.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute)
	}

	item := &models.Item{
		Title:       f.Title,
		Description: f.Description,
		Category:    f.Category,
		Type:        f.Type,
		Location:    f.Location,
		Date:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:      f.Status,
		ReporterID:  reporter.ID,
		Contact:     models.ContactInfo{Phone: reporter.Phone, Email: reporter.Email},
		Tags:        f.Tags,
		CreatedAt:   f.CreatedAt,
	}

	if f.Status == models.StatusApproved || f.Status == models.StatusRejected || f.Status == models.StatusClaimed {
		if f.Moderator == nil {
			t.Fatalf("Item fixture in status %s needs a moderator", f.Status)
		}
		at := f.ModeratedAt
		if at.IsZero() {
			at = f.CreatedAt.Add(time.Hour)
		}
		item.ModeratorID = &f.Moderator.ID
		item.ModeratedAt = &at
	}
	if f.Status == models.StatusRejected {
		item.RejectionReason = "Not enough detail"
	}
	if f.Status == models.StatusClaimed {
		if f.Claimant == nil {
			t.Fatalf("Claimed item fixture needs a claimant")
		}
		claimedAt := f.CreatedAt.Add(2 * time.Hour)
		item.ClaimantID = &f.Claimant.ID
		item.ClaimedAt = &claimedAt
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to create test item: %v", err)
	}
	return item
}

// TokenFor issues a valid token for user signed with TestJWTSecret.
func TokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user, TestJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// ExpiredTokenFor issues a token for user that has already expired.
func ExpiredTokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user, TestJWTSecret, -time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}
