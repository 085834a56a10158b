package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safetrail/go-identity-server/auth"
	"github.com/safetrail/go-identity-server/guardians"
	"github.com/safetrail/go-identity-server/internal/config"
	"github.com/safetrail/go-identity-server/notify"
	"github.com/safetrail/go-identity-server/otp"
	"github.com/safetrail/go-identity-server/prefs"
	"github.com/safetrail/go-identity-server/rides"
	"github.com/safetrail/go-identity-server/server"
	"github.com/safetrail/go-identity-server/token"
	"github.com/safetrail/go-identity-server/users"
	"github.com/safetrail/go-identity-server/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingNotifier struct {
	mu     sync.Mutex
	codes  map[string]string
	alerts []string
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) SendOneTimeCode(_ context.Context, email, code string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[email] = code
	return nil
}

func (n *recordingNotifier) SendAlert(_ context.Context, contact users.Guardian, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, contact.Email)
	return nil
}

func (n *recordingNotifier) codeFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type fakeProviderConfig struct{}

func (fakeProviderConfig) GetProviderClientID() string     { return "test-client" }
func (fakeProviderConfig) GetProviderClientSecret() string { return "test-secret" }
func (fakeProviderConfig) GetProviderAuthURL() string      { return "https://provider.test/authorize" }
func (fakeProviderConfig) GetProviderTokenURL() string     { return "https://provider.test/token" }
func (fakeProviderConfig) GetProviderProfileURL() string   { return "https://provider.test/me" }
func (fakeProviderConfig) GetProviderRedirectURL() string {
	return "http://localhost:8080/api/v1/rides/provider/callback"
}

type testFixture struct {
	repo     *repofake.FakeUserRepo
	notifier *recordingNotifier
	server   *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	repo := repofake.NewFakeUserRepo()
	notifier := &recordingNotifier{}

	hasher, err := users.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	otpManager, err := otp.NewManager(repo)
	require.NoError(t, err)
	tokenIssuer, err := token.NewIssuer([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)

	authService, err := auth.NewService(repo, hasher, otpManager, tokenIssuer, notifier)
	require.NoError(t, err)
	rideService, err := rides.NewService(repo, fakeProviderConfig{}, 5*time.Second)
	require.NoError(t, err)
	guardianService, err := guardians.NewService(repo, notifier, zerolog.Nop())
	require.NoError(t, err)
	prefService, err := prefs.NewService(repo)
	require.NoError(t, err)

	srv, err := server.New(config.New(), zerolog.Nop(), server.Services{
		Auth:      authService,
		Rides:     rideService,
		Guardians: guardianService,
		Prefs:     prefService,
		Tokens:    tokenIssuer,
	})
	require.NoError(t, err)

	return &testFixture{repo: repo, notifier: notifier, server: srv}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, sessionToken string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

// signupAndVerify drives the full signup handshake and returns the
// session token.
func (f *testFixture) signupAndVerify(t *testing.T, email string) string {
	t.Helper()

	recorder := f.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":     email,
		"password":  "password1",
		"firstname": "Ada",
		"lastname":  "Lovelace",
	}, "")
	require.Equal(t, http.StatusCreated, recorder.Code)
	userID := decodeBody(t, recorder)["user_id"].(string)
	require.NotEmpty(t, userID)

	recorder = f.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"user_id": userID,
		"code":    f.notifier.codeFor(email),
	}, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	sessionToken := decodeBody(t, recorder)["token"].(string)
	require.NotEmpty(t, sessionToken)
	return sessionToken
}

func TestHealthz(t *testing.T) {
	fixture := setupTestFixture(t)
	recorder := fixture.do(t, http.MethodGet, "/api/v1/healthz", nil, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "ok", decodeBody(t, recorder)["status"])
}

func TestSignupVerifyAndAuthenticatedRequest(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodGet, "/api/v1/users/me/preferences", nil, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	require.Equal(t, true, body["share_live_location"])
	require.Equal(t, true, body["notify_on_ride_start"])
	require.Equal(t, true, body["notify_on_ride_end"])
}

func TestSignupValidationReturnsFieldErrors(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	body := decodeBody(t, recorder)
	fields := body["fields"].(map[string]any)
	require.Contains(t, fields, "email")
	require.Contains(t, fields, "password")
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":     "ada@example.com",
		"password":  "password1",
		"firstname": "Ada",
		"lastname":  "Lovelace",
	}, "")
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestLoginUnknownEmailUnauthorized(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "password1",
	}, "")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLoginIssuesFreshCode(t *testing.T) {
	fixture := setupTestFixture(t)
	fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "password1",
	}, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	userID := decodeBody(t, recorder)["user_id"].(string)

	recorder = fixture.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"user_id": userID,
		"code":    fixture.notifier.codeFor("ada@example.com"),
	}, "")
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestVerifyOTPWrongCodeUnauthorized(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":     "ada@example.com",
		"password":  "password1",
		"firstname": "Ada",
		"lastname":  "Lovelace",
	}, "")
	require.Equal(t, http.StatusCreated, recorder.Code)
	userID := decodeBody(t, recorder)["user_id"].(string)

	recorder = fixture.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"user_id": userID,
		"code":    "000000",
	}, "")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestProtectedRouteMissingToken(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/users/me/preferences", nil, "")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestProtectedRouteBadToken(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/users/me/preferences", nil, "not-a-real-token")
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestGuardianLifecycleOverHTTP(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodPost, "/api/v1/guardians/", map[string]string{
		"name":  "Grace",
		"email": "grace@example.com",
	}, sessionToken)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/api/v1/guardians/", nil, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)
	listed := decodeBody(t, recorder)["guardians"].([]any)
	require.Len(t, listed, 1)

	recorder = fixture.do(t, http.MethodPost, "/api/v1/guardians/alert", nil, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.EqualValues(t, 1, decodeBody(t, recorder)["dispatched"])

	recorder = fixture.do(t, http.MethodDelete, "/api/v1/guardians/grace@example.com", nil, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/api/v1/guardians/grace@example.com", nil, sessionToken)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAlertWithNoGuardiansNotFound(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodPost, "/api/v1/guardians/alert", nil, sessionToken)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestPreferencesPatchMerges(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodPatch, "/api/v1/users/me/preferences/", map[string]bool{
		"share_live_location": false,
	}, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	require.Equal(t, false, body["share_live_location"])
	require.Equal(t, true, body["notify_on_ride_start"])
	require.Equal(t, true, body["notify_on_ride_end"])
}

func TestProviderCallbackMissingParams(t *testing.T) {
	fixture := setupTestFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/v1/rides/provider/callback?code=abc", nil, "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/api/v1/rides/provider/callback?code=abc&state=never-issued", nil, "")
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestBeginLinkReturnsAuthURL(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodGet, "/api/v1/rides/provider/link", nil, sessionToken)
	require.Equal(t, http.StatusOK, recorder.Code)

	authURL := decodeBody(t, recorder)["auth_url"].(string)
	require.Contains(t, authURL, "https://provider.test/authorize")
	require.Contains(t, authURL, "client_id=test-client")
	require.NotContains(t, authURL, "test-secret")
}

func TestProfileBeforeLinkingUnauthorized(t *testing.T) {
	fixture := setupTestFixture(t)
	sessionToken := fixture.signupAndVerify(t, "ada@example.com")

	recorder := fixture.do(t, http.MethodGet, "/api/v1/rides/provider/profile", nil, sessionToken)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}
