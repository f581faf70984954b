package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindred/internal/handlers"
	"kindred/internal/middleware"
	"kindred/internal/models"
	"kindred/internal/realtime"
	"kindred/internal/routes"
	"kindred/internal/services"
)

// stubChatService returns scripted results so handler status mapping
// can be exercised without a store.
type stubChatService struct {
	listChatsErr    error
	listMessagesErr error
	startChatID     uuid.UUID
	startChatErr    error
	sendMessageErr  error
	markReadErr     error
	renameErr       error
	findChatID      uuid.UUID
	findChatErr     error
}

func (s *stubChatService) ListChats(_ context.Context, _, _ string, _, _ int) ([]*models.ChatSummary, error) {
	return nil, s.listChatsErr
}
func (s *stubChatService) ListMessages(_ context.Context, _ string, _ uuid.UUID, _, _ int) ([]*models.ChatMessage, error) {
	return nil, s.listMessagesErr
}
func (s *stubChatService) StartChat(_ context.Context, _ string, _ *models.StartChat) (uuid.UUID, error) {
	return s.startChatID, s.startChatErr
}
func (s *stubChatService) SendMessage(_ context.Context, _ string, _ *models.ChatMessage) error {
	return s.sendMessageErr
}
func (s *stubChatService) MarkRead(_ context.Context, _ string, _ uuid.UUID) error {
	return s.markReadErr
}
func (s *stubChatService) RenameChat(_ context.Context, _ *models.SetChatName) error {
	return s.renameErr
}
func (s *stubChatService) FindExistingChat(_ context.Context, _ string, _ []string) (uuid.UUID, error) {
	return s.findChatID, s.findChatErr
}

var handlerTestSecret = []byte("handler-test-secret")

func testRouter(service services.ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := handlers.NewChatHandler(service, realtime.NewHub())
	return routes.SetupRoutes(r, handler, handlerTestSecret)
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	claims := &middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(handlerTestSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartChatReturnsChatID(t *testing.T) {
	chatID := uuid.New()
	r := testRouter(&stubChatService{startChatID: chatID})

	body := `{"id":"` + chatID.String() + `","initiator_id":"u1","recipients":["u1","u2"],"messages":[]}`
	w := doRequest(t, r, http.MethodPost, "/chats/", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), chatID.String())
}

func TestStartChatDuplicateMapsToBadRequest(t *testing.T) {
	r := testRouter(&stubChatService{startChatErr: services.ErrDuplicateChat})

	body := `{"id":"` + uuid.NewString() + `","initiator_id":"u1","recipients":["u1","u2"]}`
	w := doRequest(t, r, http.MethodPost, "/chats/", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartChatUnauthorizedInitiator(t *testing.T) {
	r := testRouter(&stubChatService{startChatErr: services.ErrUnauthorized})

	body := `{"id":"` + uuid.NewString() + `","initiator_id":"u2","recipients":["u2","u3"]}`
	w := doRequest(t, r, http.MethodPost, "/chats/", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageSuccessIsNoContent(t *testing.T) {
	r := testRouter(&stubChatService{})

	body := `{"id":"` + uuid.NewString() + `","chat_id":"` + uuid.NewString() + `","sender_id":"u1","text":"hello"}`
	w := doRequest(t, r, http.MethodPost, "/chats/messages", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSendMessageSenderMismatchMapsToUnauthorized(t *testing.T) {
	r := testRouter(&stubChatService{sendMessageErr: services.ErrSenderMismatch})

	body := `{"id":"` + uuid.NewString() + `","chat_id":"` + uuid.NewString() + `","sender_id":"u2","text":"hello"}`
	w := doRequest(t, r, http.MethodPost, "/chats/messages", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageNonMemberMapsToUnauthorized(t *testing.T) {
	r := testRouter(&stubChatService{sendMessageErr: services.ErrNotChatMember})

	body := `{"id":"` + uuid.NewString() + `","chat_id":"` + uuid.NewString() + `","sender_id":"u1","text":"hello"}`
	w := doRequest(t, r, http.MethodPost, "/chats/messages", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessageEmptyTextMapsToBadRequest(t *testing.T) {
	r := testRouter(&stubChatService{
		sendMessageErr: fmt.Errorf("%w: message text is required", services.ErrInvalidInput),
	})

	body := `{"id":"` + uuid.NewString() + `","chat_id":"` + uuid.NewString() + `","sender_id":"u1","text":""}`
	w := doRequest(t, r, http.MethodPost, "/chats/messages", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessageDuplicateMapsToBadRequest(t *testing.T) {
	r := testRouter(&stubChatService{sendMessageErr: services.ErrDuplicateMessage})

	body := `{"id":"` + uuid.NewString() + `","chat_id":"` + uuid.NewString() + `","sender_id":"u1","text":"hello"}`
	w := doRequest(t, r, http.MethodPost, "/chats/messages", body, bearerToken(t, "u1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadNoOpMapsToBadRequest(t *testing.T) {
	r := testRouter(&stubChatService{markReadErr: services.ErrNothingUnread})

	w := doRequest(t, r, http.MethodPost, "/chats/"+uuid.NewString()+"/read", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadSuccessIsNoContent(t *testing.T) {
	r := testRouter(&stubChatService{})

	w := doRequest(t, r, http.MethodPost, "/chats/"+uuid.NewString()+"/read", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListMessagesNonMemberMapsToUnauthorized(t *testing.T) {
	r := testRouter(&stubChatService{listMessagesErr: services.ErrNotChatMember})

	w := doRequest(t, r, http.MethodGet, "/chats/"+uuid.NewString()+"/messages", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListMessagesRejectsMalformedChatID(t *testing.T) {
	r := testRouter(&stubChatService{})

	w := doRequest(t, r, http.MethodGet, "/chats/not-a-uuid/messages", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListChatsForOtherUserMapsToUnauthorized(t *testing.T) {
	r := testRouter(&stubChatService{listChatsErr: services.ErrUnauthorized})

	w := doRequest(t, r, http.MethodGet, "/chats/user/u2", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListChatsReturnsEmptyArrayNotNull(t *testing.T) {
	r := testRouter(&stubChatService{})

	w := doRequest(t, r, http.MethodGet, "/chats/user/u1", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestRenameChatNotFoundMapsTo404(t *testing.T) {
	r := testRouter(&stubChatService{renameErr: services.ErrChatNotFound})

	body := `{"chat_id":"` + uuid.NewString() + `","name":"renamed"}`
	w := doRequest(t, r, http.MethodPut, "/chats/name", body, bearerToken(t, "u1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindExistingChatNotFoundMapsTo404(t *testing.T) {
	r := testRouter(&stubChatService{findChatErr: services.ErrChatNotFound})

	w := doRequest(t, r, http.MethodGet, "/chats/lookup?user_ids=u1&user_ids=u2", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindExistingChatReturnsID(t *testing.T) {
	chatID := uuid.New()
	r := testRouter(&stubChatService{findChatID: chatID})

	w := doRequest(t, r, http.MethodGet, "/chats/lookup?user_ids=u1&user_ids=u2", "", bearerToken(t, "u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), chatID.String())
}

func TestEveryChatRouteRequiresAuth(t *testing.T) {
	r := testRouter(&stubChatService{})

	paths := []struct{ method, path string }{
		{http.MethodGet, "/chats/user/u1"},
		{http.MethodGet, "/chats/" + uuid.NewString() + "/messages"},
		{http.MethodPost, "/chats/"},
		{http.MethodPost, "/chats/messages"},
		{http.MethodPost, "/chats/" + uuid.NewString() + "/read"},
		{http.MethodPut, "/chats/name"},
		{http.MethodGet, "/chats/lookup"},
	}
	for _, p := range paths {
		w := doRequest(t, r, p.method, p.path, "", "")
		assert.Equalf(t, http.StatusUnauthorized, w.Code, "%s %s", p.method, p.path)
	}
}
