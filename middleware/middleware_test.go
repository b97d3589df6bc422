package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/config"
	"github.com/duynhne/settings-web/internal/core/domain"
	"github.com/duynhne/settings-web/internal/session"
)

type fakeResolver struct {
	sess *session.Context
	err  error
	seen string
}

func (f *fakeResolver) Resolve(ctx context.Context, token string) (*session.Context, error) {
	f.seen = token
	return f.sess, f.err
}

func runSession(t *testing.T, resolver SessionResolver, cookie *http.Cookie) *session.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got *session.Context
	r.Use(SessionMiddleware(resolver, "sessionId", zap.NewNop()))
	r.GET("/", func(c *gin.Context) {
		got = SessionFromContext(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	return got
}

func TestSessionMiddleware(t *testing.T) {
	want := session.NewContext("tok", domain.User{ID: "1", Name: "Bob"}, nil)
	resolver := &fakeResolver{sess: want}

	got := runSession(t, resolver, &http.Cookie{Name: "sessionId", Value: "tok"})
	assert.Same(t, want, got)
	assert.Equal(t, "tok", resolver.seen)
}

func TestSessionMiddlewareAnonymous(t *testing.T) {
	resolver := &fakeResolver{}
	assert.Nil(t, runSession(t, resolver, nil))
	assert.Empty(t, resolver.seen)

	assert.Nil(t, runSession(t, &fakeResolver{err: domain.ErrUnauthenticated}, &http.Cookie{Name: "sessionId", Value: "tok"}))
	assert.Nil(t, runSession(t, &fakeResolver{err: errors.New("backend down")}, &http.Cookie{Name: "sessionId", Value: "tok"}))
}

type rejectedErr struct{}

func (rejectedErr) Error() string { return "rejected" }
func (rejectedErr) HTTPStatus() int { return http.StatusBadRequest }

func TestBackendOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, backendOutcome(nil))
	assert.Equal(t, OutcomeRejected, backendOutcome(rejectedErr{}))
	assert.Equal(t, OutcomeTransport, backendOutcome(errors.New("dial tcp: refused")))
}

func TestServiceFromPodName(t *testing.T) {
	assert.Equal(t, "settings-web", serviceFromPodName("settings-web-75c98b4b9c-kdv2n"))
	assert.Equal(t, "web", serviceFromPodName("web"))
	assert.Equal(t, "", serviceFromPodName(""))
}

func TestGetTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(TraceParentHeader, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(c))

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(TraceIDHeader, "from-header")
	assert.Equal(t, "from-header", GetTraceID(c))

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Len(t, GetTraceID(c), 32)
	assert.NotEqual(t, GetTraceID(c), GetTraceID(c))
}

func TestGetTraceIDPrefersActiveSpan(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceParentHeader, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	c.Request = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))

	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", GetTraceID(c))
}

func TestNewLoggerFromConfigWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.log")
	logger, err := NewLoggerFromConfig(config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	logger.Info("Profile updated", zap.String("user_id", "1"))
	logger.Debug("not written")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Profile updated"`)
	assert.NotContains(t, string(data), "not written")
}

func TestNewLoggerFromConfigRejectsLevel(t *testing.T) {
	_, err := NewLoggerFromConfig(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
