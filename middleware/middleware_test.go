package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/lakewatch/pkg/metrics"
)

const testSecret = "test-secret"

// echoCaller reports what the auth middleware put in the context.
var echoCaller = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id := GetUserID(r)
	switch {
	case id == nil:
		w.Write([]byte("anonymous"))
	case IsPrivileged(r):
		w.Write([]byte("admin:" + id.String()))
	default:
		w.Write([]byte("user:" + id.String()))
	}
})

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOptionalJWT(t *testing.T) {
	auth := NewAuth(testSecret)
	uid := uuid.New()
	userToken, err := auth.GenerateToken(uid, "observer")
	require.NoError(t, err)
	adminToken, err := auth.GenerateToken(uid, RoleAdmin)
	require.NoError(t, err)
	foreign, err := NewAuth("other-secret").GenerateToken(uid, RoleAdmin)
	require.NoError(t, err)

	h := auth.OptionalJWT(echoCaller)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusOK, "anonymous"},
		{"user", "Bearer " + userToken, http.StatusOK, "user:" + uid.String()},
		{"admin", "bearer " + adminToken, http.StatusOK, "admin:" + uid.String()},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + foreign, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.JSONEq(t, `{"error":"`+errorMessage(tt.header)+`"}`, rec.Body.String())
			}
		})
	}
}

func errorMessage(header string) string {
	if header == "Basic abc" {
		return "invalid auth header"
	}
	return "invalid or expired token"
}

func TestOptionalJWTExpired(t *testing.T) {
	auth := NewAuth(testSecret)
	auth.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := auth.GenerateToken(uuid.New(), RoleAdmin)
	require.NoError(t, err)

	rec := serve(NewAuth(testSecret).OptionalJWT(echoCaller), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWTRejectsNonUUIDSubject(t *testing.T) {
	claims := Claims{UserID: "42", Role: RoleAdmin}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := serve(NewAuth(testSecret).OptionalJWT(echoCaller), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	auth := NewAuth(testSecret)
	h := auth.OptionalJWT(RequireRole([]string{RoleAdmin}, echoCaller))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)

	user, _ := auth.GenerateToken(uuid.New(), "observer")
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+user).Code)

	admin, _ := auth.GenerateToken(uuid.New(), RoleAdmin)
	assert.Equal(t, http.StatusOK, serve(h, "Bearer "+admin).Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", getClientIP(req))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	m := metrics.NewMetricsForTesting()

	r := mux.NewRouter()
	r.Use(RequestLogger(log, m))
	r.HandleFunc("/api/v1/observations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/observations/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
	assert.Contains(t, buf.String(), `"route":"/api/v1/observations/{id}"`)
	assert.Contains(t, buf.String(), `"status":404`)
}

func TestRequestLoggerSeesNestedAuth(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	auth := NewAuth(testSecret)

	r := mux.NewRouter()
	r.Use(RequestLogger(log, metrics.NewMetricsForTesting()))
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.OptionalJWT)
	api.Handle("/observations", echoCaller).Methods(http.MethodGet)

	token, err := auth.GenerateToken(uuid.New(), RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/observations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin:")
	assert.Contains(t, buf.String(), `"role":"admin"`)

	// a rejected token is still logged
	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/observations", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), `"status":401`)
}
