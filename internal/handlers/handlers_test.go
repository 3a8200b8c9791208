package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/api"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/blob"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/handlers"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/store"
)

var clockRegex = regexp.MustCompile(`^\d{2}:\d{2}$`)

type testServer struct {
	router    http.Handler
	uploadDir string
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithCache(t, nil)
}

func newTestServerWithCache(t *testing.T, cache handlers.MessageCache) *testServer {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	uploadDir := t.TempDir()
	blobs, err := blob.NewFSStore(uploadDir, "https://cdn.test/files")
	require.NoError(t, err)

	h := handlers.NewHandler(db, cache, blobs, zerolog.Nop())
	return &testServer{
		router:    api.NewRouter(zerolog.Nop(), h, uploadDir),
		uploadDir: uploadDir,
	}
}

// memoryCache is an in-process stand-in for the Redis latest-message
// cache.
type memoryCache struct {
	latest        map[int64]*models.Message
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{latest: map[int64]*models.Message{}}
}

func (c *memoryCache) GetLatest(ctx context.Context, chatID int64) (*models.Message, error) {
	return c.latest[chatID], nil
}

func (c *memoryCache) SetLatest(ctx context.Context, msg *models.Message) error {
	c.latest[msg.ChatID] = msg
	return nil
}

func (c *memoryCache) InvalidateLatest(ctx context.Context, chatID int64) error {
	delete(c.latest, chatID)
	c.invalidations++
	return nil
}

func (c *memoryCache) Ping(ctx context.Context) error { return nil }

// do sends a request and decodes the JSON response into out (unless nil).
func (ts *testServer) do(t *testing.T, method, target string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out),
			"%s %s: undecodable body", method, target)
	}
	return rec.Code
}

func (ts *testServer) register(t *testing.T, phone, name string) int64 {
	t.Helper()
	var profile map[string]interface{}
	code := ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": phone, "name": name}, &profile)
	require.Equal(t, http.StatusCreated, code)
	return int64(profile["id"].(float64))
}

func (ts *testServer) createChat(t *testing.T, userID, targetID int64) int64 {
	t.Helper()
	var resp struct {
		ChatID int64 `json:"chat_id"`
	}
	code := ts.do(t, http.MethodPost, "/chats",
		map[string]interface{}{"user_id": userID, "target_user_id": targetID}, &resp)
	require.Equal(t, http.StatusCreated, code)
	return resp.ChatID
}

func TestRegisterDefaultsUsername(t *testing.T) {
	ts := newTestServer(t)

	var profile map[string]interface{}
	code := ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": "+10000001234", "name": "Ann"}, &profile)

	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "user1234", profile["username"])
	assert.Equal(t, "Ann", profile["name"])
	assert.Equal(t, "+10000001234", profile["phone"])

	// Registration returns the short profile: no balances, no flags.
	assert.NotContains(t, profile, "verified")
	assert.NotContains(t, profile, "enotCoins")
	assert.NotContains(t, profile, "balanceRub")
}

func TestRegisterDuplicatePhone(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "+10000001234", "Ann")

	var errResp map[string]string
	code := ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": "+10000001234", "name": "Imposter"}, &errResp)

	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, errResp["error"])
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	code := ts.do(t, http.MethodPost, "/register", map[string]string{"name": "No Phone"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": "+1", "name": "Bad Username", "username": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "+79990001111", "Ann")

	var profile map[string]interface{}
	code := ts.do(t, http.MethodPost, "/login", map[string]string{"phone": "+79990001111"}, &profile)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ann", profile["name"])
	// Login returns the full profile, flags and balances included.
	assert.Contains(t, profile, "verified")
	assert.Contains(t, profile, "enotCoins")
	assert.Contains(t, profile, "balanceRub")
	assert.Equal(t, false, profile["verified"])
	assert.EqualValues(t, 0, profile["enotCoins"])
}

func TestLoginUnknownPhone(t *testing.T) {
	ts := newTestServer(t)

	code := ts.do(t, http.MethodPost, "/login", map[string]string{"phone": "+70000000000"}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChatListLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	chatID := ts.createChat(t, ann, ben)

	// Before any message: the chat shows up for both members with an
	// empty last message and blank time.
	for _, uid := range []int64{ann, ben} {
		var chats []map[string]interface{}
		code := ts.do(t, http.MethodGet, fmt.Sprintf("/chats?user_id=%d", uid), nil, &chats)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, chats, 1)
		assert.EqualValues(t, chatID, chats[0]["id"])
		assert.Equal(t, "", chats[0]["lastMessage"])
		assert.Equal(t, "", chats[0]["time"])
		assert.EqualValues(t, 0, chats[0]["unread"])
		assert.Equal(t, false, chats[0]["isGroup"])
	}

	// A second, newer chat sorts first; the empty one goes last.
	carol := ts.register(t, "+1003", "Carol")
	chat2 := ts.createChat(t, ann, carol)
	code := ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chat2, "sender_id": ann, "text": "hi Carol",
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	var chats []map[string]interface{}
	code = ts.do(t, http.MethodGet, fmt.Sprintf("/chats?user_id=%d", ann), nil, &chats)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, chats, 2)
	assert.EqualValues(t, chat2, chats[0]["id"])
	assert.Equal(t, "hi Carol", chats[0]["lastMessage"])
	assert.Regexp(t, clockRegex, chats[0]["time"])
	assert.EqualValues(t, chatID, chats[1]["id"])
}

func TestChatListUnknownUser(t *testing.T) {
	ts := newTestServer(t)

	code := ts.do(t, http.MethodGet, "/chats?user_id=42", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = ts.do(t, http.MethodGet, "/chats", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMessagesRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	chatID := ts.createChat(t, ann, ben)

	for i, text := range []string{"first", "second", "third"} {
		sender := ann
		if i%2 == 1 {
			sender = ben
		}
		code := ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
			"chat_id": chatID, "sender_id": sender, "text": text,
		}, nil)
		require.Equal(t, http.StatusCreated, code)
	}

	var msgs []map[string]interface{}
	code := ts.do(t, http.MethodGet,
		fmt.Sprintf("/messages?chat_id=%d&user_id=%d", chatID, ann), nil, &msgs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, msgs, 3)

	assert.Equal(t, "first", msgs[0]["text"])
	assert.Equal(t, "second", msgs[1]["text"])
	assert.Equal(t, "third", msgs[2]["text"])

	assert.Equal(t, true, msgs[0]["isMine"])
	assert.Equal(t, false, msgs[1]["isMine"])
	assert.Equal(t, "Ann", msgs[0]["sender"])
	assert.Equal(t, "Ben", msgs[1]["sender"])
	assert.Regexp(t, clockRegex, msgs[0]["time"])
}

func TestMessagesMembershipGate(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	eve := ts.register(t, "+1003", "Eve")
	chatID := ts.createChat(t, ann, ben)

	// A non-member cannot read the timeline; the chat does not exist
	// for them.
	code := ts.do(t, http.MethodGet,
		fmt.Sprintf("/messages?chat_id=%d&user_id=%d", chatID, eve), nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	// Nor append to it.
	code = ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": eve, "text": "let me in",
	}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAddMemberEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	eve := ts.register(t, "+1003", "Eve")
	chatID := ts.createChat(t, ann, ben)

	code := ts.do(t, http.MethodPost, "/chats/members",
		map[string]int64{"chat_id": chatID, "user_id": eve}, nil)
	require.Equal(t, http.StatusCreated, code)

	// The new member now sees the timeline.
	code = ts.do(t, http.MethodGet,
		fmt.Sprintf("/messages?chat_id=%d&user_id=%d", chatID, eve), nil, nil)
	assert.Equal(t, http.StatusOK, code)

	// Adding twice is a conflict; unknown users are not found.
	code = ts.do(t, http.MethodPost, "/chats/members",
		map[string]int64{"chat_id": chatID, "user_id": eve}, nil)
	assert.Equal(t, http.StatusConflict, code)

	code = ts.do(t, http.MethodPost, "/chats/members",
		map[string]int64{"chat_id": chatID, "user_id": 999}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSendMessageInvalidPayload(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	chatID := ts.createChat(t, ann, ben)

	code := ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": ann,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// Attachment without text is fine.
	var resp map[string]interface{}
	code = ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": ann,
		"file_url": "https://cdn.test/files/speakly/pic.png", "file_type": "image/png",
	}, &resp)
	require.Equal(t, http.StatusCreated, code)
	assert.Regexp(t, clockRegex, resp["time"])
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "+1001", "Alice")
	var profile map[string]interface{}
	code := ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": "+1002", "name": "Bob", "username": "ali99"}, &profile)
	require.Equal(t, http.StatusCreated, code)

	var results []map[string]interface{}
	code = ts.do(t, http.MethodGet, "/users/search?query=ali", nil, &results)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, results, 2)
	assert.Equal(t, "Alice", results[0]["name"])
	assert.Equal(t, "ali99", results[1]["username"])

	// Empty query yields an empty page, not an arbitrary one.
	code = ts.do(t, http.MethodGet, "/users/search?query=", nil, &results)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, results)
}

func TestUploadRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte("attachment bytes")
	var resp struct {
		URL string `json:"url"`
	}
	code := ts.do(t, http.MethodPost, "/upload", map[string]string{
		"file":      base64.StdEncoding.EncodeToString(payload),
		"file_name": "holiday pic.png",
		"file_type": "image/png",
	}, &resp)

	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.HasPrefix(resp.URL, "https://cdn.test/files/speakly/"), resp.URL)
	assert.True(t, strings.HasSuffix(resp.URL, "_holiday_pic.png"), resp.URL)

	// The object landed under the upload dir, byte for byte.
	key := strings.TrimPrefix(resp.URL, "https://cdn.test/files/")
	data, err := os.ReadFile(filepath.Join(ts.uploadDir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t)

	code := ts.do(t, http.MethodPost, "/upload",
		map[string]string{"file_name": "x.png"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = ts.do(t, http.MethodPost, "/upload",
		map[string]string{"file": "not-base64!!!", "file_name": "x.png"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	chatID := ts.createChat(t, ann, ben)
	code := ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": ann, "text": "hello",
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	var stats map[string]interface{}
	code = ts.do(t, http.MethodGet, "/stats", nil, &stats)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, stats["total_users"])
	assert.EqualValues(t, 1, stats["total_chats"])
	assert.EqualValues(t, 1, stats["total_messages"])
	assert.Equal(t, "just now", stats["last_activity"])
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]interface{}
	code := ts.do(t, http.MethodGet, "/health", nil, &health)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health["status"])

	checks := health["checks"].(map[string]interface{})
	db := checks["database"].(map[string]interface{})
	assert.Equal(t, "pass", db["status"])
	redis := checks["redis"].(map[string]interface{})
	assert.Equal(t, "skip", redis["status"])
}

func TestRegisterTruncatesNameOnRuneBoundary(t *testing.T) {
	ts := newTestServer(t)

	var profile map[string]interface{}
	code := ts.do(t, http.MethodPost, "/register",
		map[string]string{"phone": "+10000001234", "name": strings.Repeat("日", 150)}, &profile)
	require.Equal(t, http.StatusCreated, code)

	name := profile["name"].(string)
	assert.True(t, utf8.ValidString(name), "truncation must not split a rune")
	assert.Equal(t, strings.Repeat("日", 100), name)
}

func TestSendMessageInvalidatesLatestCache(t *testing.T) {
	cache := newMemoryCache()
	ts := newTestServerWithCache(t, cache)

	ann := ts.register(t, "+1001", "Ann")
	ben := ts.register(t, "+1002", "Ben")
	chatID := ts.createChat(t, ann, ben)

	code := ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": ann, "text": "first",
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, cache.invalidations)

	// The directory read repopulates the entry.
	var chats []map[string]interface{}
	code = ts.do(t, http.MethodGet, fmt.Sprintf("/chats?user_id=%d", ann), nil, &chats)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, chats, 1)
	assert.Equal(t, "first", chats[0]["lastMessage"])
	require.NotNil(t, cache.latest[chatID])

	// A later append drops it again, so the populated entry can never
	// outlive the message it describes.
	code = ts.do(t, http.MethodPost, "/messages", map[string]interface{}{
		"chat_id": chatID, "sender_id": ben, "text": "second",
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 2, cache.invalidations)
	assert.Nil(t, cache.latest[chatID])

	code = ts.do(t, http.MethodGet, fmt.Sprintf("/chats?user_id=%d", ann), nil, &chats)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "second", chats[0]["lastMessage"])
}
