package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lostfound/backend/internal/broker"
	"github.com/lostfound/backend/internal/config"
	"github.com/lostfound/backend/internal/handler"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/repository"
	"github.com/lostfound/backend/internal/router"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/internal/testutil"
	"github.com/lostfound/backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type APITestSuite struct {
	suite.Suite
	testDB      *testutil.TestDatabase
	testRedis   *testutil.TestRedis
	redisBroker *broker.RedisNotificationBroker
	dispatcher  *broker.Dispatcher
	deps        router.Deps
	engine      *gin.Engine

	alice     *models.User
	bob       *models.User
	moderator *models.User
	admin     *models.User
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:            testutil.TestJWTSecret,
		JWTExpiry:            time.Hour,
		Environment:          "test",
		AllowedOrigins:       []string{"http://localhost:3000"},
		RateLimitMaxRequests: 1000,
		RateLimitWindow:      time.Minute,
		RateLimitBlockTime:   time.Minute,
	}
}

func (s *APITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	logger.Init(false)

	s.testDB = testutil.SetupTestDatabase(s.T())
	s.testRedis = testutil.SetupTestRedis(s.T())

	var err error
	s.redisBroker, err = broker.NewRedisNotificationBroker(context.Background(), s.testRedis.URL)
	require.NoError(s.T(), err)
	s.dispatcher = broker.NewDispatcher(64, broker.LogSink{}, s.redisBroker)

	cfg := testConfig()
	itemRepo := repository.NewItemRepository(s.testDB.DB)
	s.deps = router.Deps{
		Config:       cfg,
		DB:           s.testDB.DB,
		AuthService:  service.NewAuthService(repository.NewUserRepository(s.testDB.DB), cfg.JWTSecret, cfg.JWTExpiry),
		ItemService:  service.NewItemService(itemRepo, s.dispatcher),
		QueryService: service.NewQueryService(itemRepo),
		Redis:        s.redisBroker.Client(),
		Subscriber:   s.redisBroker,
	}
	s.engine = router.New(s.deps)
}

func (s *APITestSuite) TearDownSuite() {
	s.dispatcher.Close()
	_ = s.redisBroker.Close()
}

func (s *APITestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)
	s.testRedis.Server.FlushAll()

	s.alice = testutil.CreateTestUser(s.T(), s.testDB.DB, "alice", models.RoleUser)
	s.bob = testutil.CreateTestUser(s.T(), s.testDB.DB, "bob", models.RoleUser)
	s.moderator = testutil.CreateTestUser(s.T(), s.testDB.DB, "mod", models.RoleModerator)
	s.admin = testutil.CreateTestUser(s.T(), s.testDB.DB, "admin", models.RoleAdmin)
}

func (s *APITestSuite) request(method, path string, body interface{}, user *models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+testutil.TokenFor(s.T(), user))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type itemEnvelope struct {
	Message string               `json:"message"`
	Item    handler.ItemResponse `json:"item"`
}

type errorBody struct {
	Error  string               `json:"error"`
	Errors []service.FieldError `json:"errors"`
}

var wallet = map[string]interface{}{
	"title":       "Blue Wallet",
	"description": "Leather wallet found near Gate 3",
	"category":    "other",
	"type":        "found",
	"location":    "Gate 3",
	"date":        "2024-01-10",
	"tags":        []string{"wallet"},
}

func (s *APITestSuite) submit(user *models.User) handler.ItemResponse {
	w := s.request(http.MethodPost, "/api/items", wallet, user)
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	return decode[itemEnvelope](s.T(), w).Item
}

func (s *APITestSuite) TestHealth() {
	w := s.request(http.MethodGet, "/health", nil, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.JSONEq(s.T(), `{"status":"ok"}`, w.Body.String())
}

// TestLifecycle submits, approves and claims an item over HTTP.
func (s *APITestSuite) TestLifecycle() {
	carol := testutil.CreateTestUser(s.T(), s.testDB.DB, "carol", models.RoleUser)

	item := s.submit(s.alice)
	assert.Equal(s.T(), models.StatusPending, item.Status)
	assert.Equal(s.T(), "alice@example.com", item.ContactInfo.Email)

	w := s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/approve", item.ID), nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	approved := decode[itemEnvelope](s.T(), w)
	assert.Equal(s.T(), "Item approved successfully", approved.Message)
	assert.Equal(s.T(), models.StatusApproved, approved.Item.Status)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/approve", item.ID), nil, s.moderator)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "Can only approve pending items", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/items/%s/claim", item.ID), nil, s.alice)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "You cannot claim your own item", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/items/%s/claim", item.ID), nil, s.bob)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	claimed := decode[itemEnvelope](s.T(), w).Item
	assert.Equal(s.T(), models.StatusClaimed, claimed.Status)
	require.NotNil(s.T(), claimed.ClaimantID)
	assert.Equal(s.T(), s.bob.ID, *claimed.ClaimantID)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/items/%s/claim", item.ID), nil, carol)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "Item already claimed", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodGet, "/api/items/"+item.ID.String(), nil, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	detail := decode[handler.ItemResponse](s.T(), w)
	require.NotNil(s.T(), detail.Reporter)
	assert.Equal(s.T(), "alice", detail.Reporter.Username)
	require.NotNil(s.T(), detail.Claimant)
	assert.Equal(s.T(), "bob", detail.Claimant.Username)
	require.NotNil(s.T(), detail.Moderator)
	assert.Equal(s.T(), "mod", detail.Moderator.Username)
}

func (s *APITestSuite) TestSubmitValidation() {
	body := map[string]interface{}{
		"title":       "Blue Wallet",
		"description": "too short",
		"category":    "other",
		"type":        "found",
		"location":    "Gate 3",
		"date":        "2024-01-10",
	}

	w := s.request(http.MethodPost, "/api/items", body, s.alice)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	resp := decode[errorBody](s.T(), w)
	assert.Equal(s.T(), "Validation failed", resp.Error)
	require.Len(s.T(), resp.Errors, 1)
	assert.Equal(s.T(), "description", resp.Errors[0].Field)

	w = s.request(http.MethodPost, "/api/items", wallet, nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *APITestSuite) TestEditAndDelete() {
	item := s.submit(s.alice)
	path := "/api/items/" + item.ID.String()

	w := s.request(http.MethodPut, path, map[string]interface{}{"title": "Brown Wallet"}, s.bob)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)
	assert.Equal(s.T(), "You can only update your own items", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodPut, path, map[string]interface{}{"title": "Brown Wallet", "isUrgent": true}, s.alice)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	edited := decode[itemEnvelope](s.T(), w).Item
	assert.Equal(s.T(), "Brown Wallet", edited.Title)
	assert.True(s.T(), edited.IsUrgent)
	assert.Equal(s.T(), models.StatusPending, edited.Status)

	w = s.request(http.MethodDelete, path, nil, s.alice)
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodGet, path, nil, s.alice)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w = s.request(http.MethodGet, "/api/items/not-a-uuid", nil, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *APITestSuite) TestEditAfterApprovalFails() {
	item := s.submit(s.alice)
	w := s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/approve", item.ID), nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodPut, "/api/items/"+item.ID.String(), map[string]interface{}{"title": "Changed"}, s.alice)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "Can only update pending items", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodDelete, "/api/items/"+item.ID.String(), nil, s.alice)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestPendingItemVisibility() {
	item := s.submit(s.alice)
	path := "/api/items/" + item.ID.String()

	w := s.request(http.MethodGet, path, nil, nil)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, path, nil, s.bob)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, path, nil, s.alice)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodGet, path, nil, s.moderator)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	// A bad token on the optional route is rejected, not treated as anonymous
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(s.T(), http.StatusUnauthorized, rec.Code)
}

func (s *APITestSuite) TestPublicListingAndMyItems() {
	pending := s.submit(s.alice)
	approved := s.submit(s.alice)
	w := s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/approve", approved.ID), nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/items?type=found&search=wallet&page=1&limit=5", nil, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	page := decode[handler.PageResponse](s.T(), w)
	assert.Equal(s.T(), int64(1), page.Total)
	assert.Equal(s.T(), 1, page.TotalPages)
	require.Len(s.T(), page.Items, 1)
	assert.Equal(s.T(), approved.ID, page.Items[0].ID)
	require.NotNil(s.T(), page.Items[0].Reporter)
	assert.Empty(s.T(), page.Items[0].Reporter.Email)

	w = s.request(http.MethodGet, "/api/items?type=stolen", nil, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	w = s.request(http.MethodGet, "/api/items/my-items", nil, s.alice)
	require.Equal(s.T(), http.StatusOK, w.Code)
	mine := decode[[]handler.ItemResponse](s.T(), w)
	require.Len(s.T(), mine, 2)
	assert.ElementsMatch(s.T(), []interface{}{pending.ID, approved.ID}, []interface{}{mine[0].ID, mine[1].ID})

	w = s.request(http.MethodGet, "/api/items/my-items", nil, nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *APITestSuite) TestModeratorRoutes() {
	first := s.submit(s.alice)
	second := s.submit(s.bob)

	w := s.request(http.MethodGet, "/api/moderators/pending", nil, s.alice)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/api/moderators/pending", nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)
	queue := decode[handler.PageResponse](s.T(), w)
	require.Len(s.T(), queue.Items, 2)
	assert.Equal(s.T(), first.ID, queue.Items[0].ID)
	require.NotNil(s.T(), queue.Items[0].Reporter)
	assert.Equal(s.T(), "alice@example.com", queue.Items[0].Reporter.Email)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/reject", second.ID), nil, s.moderator)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	resp := decode[errorBody](s.T(), w)
	require.Len(s.T(), resp.Errors, 1)
	assert.Equal(s.T(), "rejectionReason", resp.Errors[0].Field)
	assert.Equal(s.T(), "Rejection reason is required", resp.Errors[0].Message)

	w = s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/reject", second.ID),
		map[string]string{"rejectionReason": "too vague"}, s.admin)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	rejected := decode[itemEnvelope](s.T(), w).Item
	assert.Equal(s.T(), models.StatusRejected, rejected.Status)
	assert.Equal(s.T(), "too vague", rejected.RejectionReason)

	w = s.request(http.MethodGet, "/api/moderators/stats", nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)
	stats := decode[handler.StatsResponse](s.T(), w)
	assert.Equal(s.T(), handler.StatsResponse{Total: 2, Pending: 1, Rejected: 1}, stats)

	w = s.request(http.MethodGet, "/api/moderators/recent-activity?limit=5", nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)
	activity := decode[[]handler.ItemResponse](s.T(), w)
	require.Len(s.T(), activity, 1)
	assert.Equal(s.T(), second.ID, activity[0].ID)
	require.NotNil(s.T(), activity[0].Moderator)
	assert.Equal(s.T(), "admin", activity[0].Moderator.Username)

	w = s.request(http.MethodGet, "/api/moderators/search?q=wallet&status=rejected", nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)
	found := decode[handler.PageResponse](s.T(), w)
	require.Len(s.T(), found.Items, 1)
	assert.Equal(s.T(), second.ID, found.Items[0].ID)

	w = s.request(http.MethodGet, "/api/moderators/search?status=archived", nil, s.moderator)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *APITestSuite) TestAdminRoutes() {
	w := s.request(http.MethodGet, "/api/admin/users", nil, s.moderator)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/api/admin/users", nil, s.admin)
	require.Equal(s.T(), http.StatusOK, w.Code)
	users := decode[struct {
		Users []handler.UserResponse `json:"users"`
	}](s.T(), w)
	assert.Len(s.T(), users.Users, 4)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/admin/users/%s/role", s.alice.ID), map[string]string{"role": "moderator"}, s.admin)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())

	// The role is read from the store, so alice's existing token now passes the moderator gate
	w = s.request(http.MethodGet, "/api/moderators/stats", nil, s.alice)
	assert.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/admin/users/%s/role", s.admin.ID), map[string]string{"role": "user"}, s.admin)
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/admin/users/%s/status", s.bob.ID), map[string]bool{"isActive": false}, s.admin)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodGet, "/api/auth/me", nil, s.bob)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.Equal(s.T(), "Account is deactivated", decode[errorBody](s.T(), w).Error)

	w = s.request(http.MethodPut, fmt.Sprintf("/api/admin/users/%s/status", s.bob.ID), map[string]string{}, s.admin)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

// TestNotificationStream checks that an approval reaches the reporter's websocket.
func (s *APITestSuite) TestNotificationStream() {
	item := s.submit(s.alice)

	server := httptest.NewServer(s.engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/notifications/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testutil.TokenFor(s.T(), s.alice))

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(s.T(), err)
	defer conn.Close()
	assert.Equal(s.T(), http.StatusSwitchingProtocols, resp.StatusCode)

	w := s.request(http.MethodPost, fmt.Sprintf("/api/moderators/%s/approve", item.ID), nil, s.moderator)
	require.Equal(s.T(), http.StatusOK, w.Code)

	require.NoError(s.T(), conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame handler.WSFrame
	require.NoError(s.T(), conn.ReadJSON(&frame))

	assert.Equal(s.T(), "notification", frame.Type)
	require.NotNil(s.T(), frame.Notification)
	assert.Equal(s.T(), broker.NotificationItemApproved, frame.Notification.Type)
	assert.Equal(s.T(), item.ID, frame.Notification.ItemID)
}

func (s *APITestSuite) TestNotificationStreamRequiresAuth() {
	server := httptest.NewServer(s.engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/notifications/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(s.T(), err)
	require.NotNil(s.T(), resp)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *APITestSuite) TestAuthRoutesRateLimited() {
	deps := s.deps
	cfg := testConfig()
	cfg.RateLimitMaxRequests = 2
	deps.Config = cfg
	limited := router.New(deps)

	body := `{"email":"alice@example.com","password":"wrong"}`
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.1.1:4000"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(s.T(), []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
