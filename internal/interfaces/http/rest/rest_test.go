package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangmul/emotion-tracker/internal/auth"
	"github.com/wangmul/emotion-tracker/internal/draft"
	"github.com/wangmul/emotion-tracker/internal/history"
	"github.com/wangmul/emotion-tracker/internal/library"
	"github.com/wangmul/emotion-tracker/internal/middleware"
	"github.com/wangmul/emotion-tracker/internal/observability"
	"github.com/wangmul/emotion-tracker/internal/repository/memory"
	"github.com/wangmul/emotion-tracker/internal/workflow"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

var fixedNow = func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{auth.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type fakeProvider struct {
	t          *testing.T
	pending    bool
	rejectWith error
	signedOut  []string
	refreshed  []string
}

func (f *fakeProvider) SendMagicLink(_ context.Context, email string) error {
	return f.rejectWith
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, _ string) (*auth.Session, error) {
	if f.rejectWith != nil {
		return nil, f.rejectWith
	}
	return &auth.Session{
		UserID:       "user-1",
		Email:        email,
		AccessToken:  signToken(f.t, "user-1"),
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeProvider) Refresh(_ context.Context, token string) (*auth.Session, error) {
	f.refreshed = append(f.refreshed, token)
	if f.rejectWith != nil {
		return nil, f.rejectWith
	}
	return &auth.Session{UserID: "user-1", AccessToken: signToken(f.t, "user-1"), RefreshToken: "refresh-2"}, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (*auth.Session, error) {
	if f.pending {
		return nil, auth.ErrConfirmationPending
	}
	return f.SignInWithPassword(ctx, email, password)
}

func (f *fakeProvider) SignOut(_ context.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return nil
}

type fixture struct {
	t        *testing.T
	entries  *memory.EntryStore
	methods  *memory.SoothingStore
	provider *fakeProvider
	metrics  *observability.Collector
	router   http.Handler
	cookies  []*http.Cookie
	token    string
}

func newFixture(t *testing.T, allowAnonymous bool, withProvider bool) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		entries: memory.NewEntryStore().WithClock(fixedNow),
		methods: memory.NewSoothingStore().WithClock(fixedNow),
		metrics: observability.NewCollector("emotion_tracker"),
	}
	verifier, err := auth.NewTokenVerifier(auth.VerifierConfig{Secret: testSecret})
	require.NoError(t, err)

	gate := auth.NewGate(verifier, allowAnonymous, nil)
	deps := Dependencies{
		Workflow: workflow.NewService(f.entries, f.methods, draft.NewMemoryStore(time.Hour), nil, f.metrics, nil).WithClock(fixedNow),
		History:  history.NewReader(f.entries, nil).WithClock(fixedNow),
		Library:  library.NewService(f.entries, f.methods, nil),
		Gate:     gate,
		Health:   f.entries,
	}
	if withProvider {
		f.provider = &fakeProvider{t: t}
		deps.Provider = f.provider
		gate.WithRefresher(f.provider, false)
	}
	breaker := middleware.DefaultCircuitBreakerConfig("test")
	breaker.IsFailure = middleware.LocalFailure
	f.router = NewRouter(NewHandler(deps), RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		CircuitBreaker: &breaker,
		Metrics:        f.metrics,
	}, nil)
	return f
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == draft.CookieName {
			f.cookies = []*http.Cookie{c}
		}
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRecordFlow(t *testing.T) {
	f := newFixture(t, false, false)
	f.token = signToken(t, "user-1")

	rec := f.do(http.MethodGet, "/record/step-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody(t, rec)
	assert.Equal(t, "2025-01-02", view["draft"].(map[string]interface{})["selectedDate"])
	require.Len(t, f.cookies, 1, "a draft session cookie is issued")
	assert.True(t, f.cookies[0].HttpOnly)
	assert.True(t, f.cookies[0].Expires.IsZero(), "the draft cookie lives for the browser session")

	rec = f.do(http.MethodPost, "/record/step-1", map[string]interface{}{
		"saidNoCount": "2", "askedHelpCount": 1, "choseForJoyCount": 0,
		"tookRest": true, "selectedDate": "2025-01-02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/record/step-2", decodeBody(t, rec)["next"])
	assert.Empty(t, f.entries.All(), "step one never writes")

	rec = f.do(http.MethodGet, "/record/step-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["draft"].(map[string]interface{})["saidNoCount"])

	rec = f.do(http.MethodPost, "/record/step-2", map[string]interface{}{
		"mustDoTasks": []string{" laundry "}, "wantedButSkippedTasks": []string{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeBody(t, rec)["entry"].(map[string]interface{})
	assert.Equal(t, []interface{}{"laundry", "", ""}, saved["mustDoTasks"])
	assert.Equal(t, []interface{}{"", "", ""}, saved["wantedButSkippedTasks"])

	rec = f.do(http.MethodGet, "/record/step-3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decodeBody(t, rec)["selfSoothingMethods"])

	rec = f.do(http.MethodPost, "/record/step-3", map[string]string{"selfSoothingMethods": "walk"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/history/2025-01-02", decodeBody(t, rec)["redirect"])

	rows := f.entries.All()
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].SaidNoCount)
	assert.Equal(t, "walk", rows[0].SelfSoothingMethods)

	rec = f.do(http.MethodGet, "/history/2025-01-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decodeBody(t, rec)
	assert.Equal(t, "2025-01-01", day["previous"])
	assert.Equal(t, "walk", day["entry"].(map[string]interface{})["selfSoothingMethods"])

	rec = f.do(http.MethodGet, "/soothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1, "the method and the note dedupe by content")

	rec = f.do(http.MethodGet, "/record/step-2", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "the draft is gone after completion")
	assert.Equal(t, "/record/step-1", rec.Header().Get("Location"))
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, false, false)

	for _, path := range []string{"/record/step-1", "/record/step-2", "/record/step-3", "/history", "/soothing"} {
		rec := f.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, auth.SignInPath, rec.Header().Get("Location"), path)
		assert.JSONEq(t, `{"redirect":"/auth/sign-in"}`, rec.Body.String(), path)
	}

	f.token = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/history", nil).Code)
}

func TestAnonymousPolicy(t *testing.T) {
	f := newFixture(t, true, false)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/record/step-1", map[string]interface{}{}).Code)
	rec := f.do(http.MethodPost, "/record/step-2", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := f.entries.All()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Owner.IsAnonymous())
}

func TestEmptyDraftRedirects(t *testing.T) {
	f := newFixture(t, true, false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/record/step-2"},
		{http.MethodPost, "/record/step-2"},
		{http.MethodGet, "/record/step-3"},
		{http.MethodPost, "/record/step-3"},
	} {
		rec := f.do(tc.method, tc.path, map[string]interface{}{})
		assert.Equal(t, http.StatusSeeOther, rec.Code, tc.path)
		assert.Equal(t, "/record/step-1", decodeBody(t, rec)["redirect"], tc.path)
	}
	assert.Empty(t, f.entries.All())
}

func TestStepTwoStoreFailure(t *testing.T) {
	f := newFixture(t, true, false)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/record/step-1", map[string]interface{}{}).Code)

	f.entries.SetError("FindByDate", errors.New("FetchError: network unreachable"))
	rec := f.do(http.MethodPost, "/record/step-2", map[string]interface{}{})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "FetchError: network unreachable", decodeBody(t, rec)["error"])

	f.entries.ClearErrors()
	rec = f.do(http.MethodGet, "/record/step-2", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the draft survives a failed save")
}

func TestStoreFailuresDoNotOpenRouteBreaker(t *testing.T) {
	f := newFixture(t, true, false)
	f.entries.SetError("ListRecent", errors.New("FetchError: network unreachable"))

	for i := 0; i < 10; i++ {
		rec := f.do(http.MethodGet, "/history", nil)
		require.Equal(t, http.StatusBadGateway, rec.Code, "request %d", i)
		assert.Equal(t, "FetchError: network unreachable", decodeBody(t, rec)["error"])
	}
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t, true, false)

	rec := f.do(http.MethodPost, "/record/step-1", map[string]interface{}{"saidNoCount": "-1", "askedHelpCount": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody(t, rec)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "saidNoCount")
	assert.Contains(t, fields, "askedHelpCount")

	rec = f.do(http.MethodPost, "/record/step-1", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "body")

	rec = f.do(http.MethodGet, "/record/step-1?date=2025-02-30", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/record/step-1", map[string]interface{}{}).Code)
	rec = f.do(http.MethodPost, "/record/step-2", map[string]interface{}{"mustDoTasks": []string{"a", "b", "c", "d"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "mustDoTasks")

	rec = f.do(http.MethodPost, "/record/step-3", map[string]string{"selfSoothingMethods": strings.Repeat("가", 1001)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["fields"], "selfSoothingMethods")
	assert.Empty(t, f.entries.All())
}

func TestStepTwoStoresLongTasks(t *testing.T) {
	f := newFixture(t, true, false)
	long := strings.Repeat("x", 501)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/record/step-1", map[string]interface{}{}).Code)
	rec := f.do(http.MethodPost, "/record/step-2", map[string]interface{}{
		"mustDoTasks":           []string{long + "   "},
		"wantedButSkippedTasks": []string{"", strings.Repeat("y", 2000)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := f.entries.All()
	require.Len(t, rows, 1)
	assert.Equal(t, long, rows[0].MustDoTasks[0])
	assert.Equal(t, strings.Repeat("y", 2000), rows[0].WantedButSkippedTasks[1])
}

func TestAbandonRecord(t *testing.T) {
	f := newFixture(t, true, false)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/record/step-1", map[string]interface{}{}).Code)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/record", nil).Code)
	assert.Equal(t, http.StatusSeeOther, f.do(http.MethodGet, "/record/step-2", nil).Code)
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t, true, false)

	rec := f.do(http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["empty"])
	assert.Equal(t, history.EmptyOverviewMessage, body["emptyMessage"])

	rec = f.do(http.MethodGet, "/history/not-a-date", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decodeBody(t, rec)
	assert.Equal(t, "2025-01-02", day["date"])
	assert.Equal(t, history.EmptyDayMessage, day["message"])
}

func TestSoothingEndpoints(t *testing.T) {
	f := newFixture(t, true, false)

	rec := f.do(http.MethodPost, "/soothing", map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/soothing", map[string]string{"content": "breathing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["id"].(string)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/soothing/"+id, nil).Code)

	rec = f.do(http.MethodDelete, "/soothing/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["error"])

	f.methods.SetError("Delete", errors.New("permission denied for table self_soothing_methods"))
	rec = f.do(http.MethodDelete, "/soothing/other", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "permission denied for table self_soothing_methods", decodeBody(t, rec)["error"])
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("sign-in sets the access cookie", func(t *testing.T) {
		f := newFixture(t, false, true)
		rec := f.do(http.MethodPost, "/auth/sign-in", map[string]string{"email": "a@example.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var access *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.AccessTokenCookie {
				access = c
			}
		}
		require.NotNil(t, access)
		assert.True(t, access.HttpOnly)

		f.cookies = append(f.cookies, access)
		rec = f.do(http.MethodGet, "/auth/session", nil)
		session := decodeBody(t, rec)
		assert.Equal(t, true, session["authenticated"])
		assert.Equal(t, "user-1", session["userId"])

		assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/history", nil).Code, "the cookie authenticates")

		rec = f.do(http.MethodPost, "/auth/sign-out", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Len(t, f.provider.signedOut, 1)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	})

	t.Run("refresh cookie renews the session", func(t *testing.T) {
		f := newFixture(t, false, true)
		rec := f.do(http.MethodPost, "/auth/sign-in", map[string]string{"email": "a@example.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var refresh *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.RefreshTokenCookie {
				refresh = c
			}
		}
		require.NotNil(t, refresh)
		assert.Equal(t, "refresh-1", refresh.Value)
		assert.True(t, refresh.HttpOnly)

		f.cookies = append(f.cookies, refresh)
		rec = f.do(http.MethodGet, "/history", nil)
		require.Equal(t, http.StatusOK, rec.Code, "an absent access token is renewed")
		assert.Equal(t, []string{"refresh-1"}, f.provider.refreshed)
		renewed := map[string]string{}
		for _, c := range rec.Result().Cookies() {
			renewed[c.Name] = c.Value
		}
		assert.NotEmpty(t, renewed[auth.AccessTokenCookie])
		assert.Equal(t, "refresh-2", renewed[auth.RefreshTokenCookie])

		f.provider.rejectWith = errors.New("Invalid Refresh Token")
		assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/history", nil).Code)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t, false, true)
		rec := f.do(http.MethodPost, "/auth/sign-in", map[string]string{"email": "bad", "password": "secret1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		f.provider.rejectWith = errors.New("Invalid login credentials")
		rec = f.do(http.MethodPost, "/auth/sign-in", map[string]string{"email": "a@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid login credentials", decodeBody(t, rec)["error"])
	})

	t.Run("magic link and sign-up", func(t *testing.T) {
		f := newFixture(t, false, true)
		assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/auth/magic-link", map[string]string{"email": "a@example.com"}).Code)

		f.provider.pending = true
		rec := f.do(http.MethodPost, "/auth/sign-up", map[string]string{"email": "a@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["confirmationPending"])

		f.provider.pending = false
		rec = f.do(http.MethodPost, "/auth/sign-up", map[string]string{"email": "a@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("no provider configured", func(t *testing.T) {
		f := newFixture(t, false, false)
		rec := f.do(http.MethodPost, "/auth/sign-in", map[string]string{"email": "a@example.com", "password": "secret1"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = f.do(http.MethodGet, "/auth/session", nil)
		assert.JSONEq(t, `{"authenticated":false,"allowAnonymous":false}`, rec.Body.String())
	})
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false, false)

	rec := f.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	f.entries.SetError("Ping", errors.New(`relation "daily_entries" does not exist`))
	rec = f.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"relation \"daily_entries\" does not exist"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `emotion_tracker_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}

func TestRequestIDAndCORS(t *testing.T) {
	f := newFixture(t, true, false)

	req := httptest.NewRequest(http.MethodOptions, "/history", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/history", nil)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
