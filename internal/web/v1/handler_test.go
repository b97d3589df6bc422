package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/client/api"
	"github.com/duynhne/settings-web/internal/core/domain"
	logicv1 "github.com/duynhne/settings-web/internal/logic/v1"
	"github.com/duynhne/settings-web/internal/session"
	webv1 "github.com/duynhne/settings-web/internal/web/v1"
	"github.com/duynhne/settings-web/middleware"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeGateway struct {
	profileCalls atomic.Int32
	lastProfile  domain.ProfileForm
	lastPassword domain.PasswordForm

	release chan struct{}
	entered chan struct{}

	patch domain.UserPatch
	err   error
}

func (f *fakeGateway) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	return nil, nil
}

func (f *fakeGateway) UpdateProfile(ctx context.Context, token string, form domain.ProfileForm) (domain.UserPatch, error) {
	f.profileCalls.Add(1)
	f.lastProfile = form
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.patch, f.err
}

func (f *fakeGateway) ChangePassword(ctx context.Context, token string, form domain.PasswordForm) error {
	f.lastPassword = form
	return f.err
}

func (f *fakeGateway) SendVerificationEmail(ctx context.Context, token string) error {
	return f.err
}

func strPtr(s string) *string { return &s }

func newRouter(gw *fakeGateway, sess *session.Context) *gin.Engine {
	r, _ := newRouterWithGateway(gw, sess)
	return r
}

func newRouterWithGateway(gw domain.UserGateway, sess *session.Context) (*gin.Engine, *logicv1.ProfileService) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(webv1.Templates())
	r.Use(func(c *gin.Context) {
		c.Set("logger", zap.NewNop())
		if sess != nil {
			middleware.SetSession(c, sess)
		}
		c.Next()
	})
	svc := logicv1.NewProfileService(gw, zap.NewNop())
	webv1.NewSettingsHandler(svc, 1<<20, "/login").RegisterRoutes(r)
	return r, svc
}

func testSession(verified bool) *session.Context {
	return session.NewContext("tok", domain.User{ID: "1", Name: "Bob", Bio: "hello", EmailVerified: verified}, nil)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func profileRequest(t *testing.T, fields map[string]string, filename string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("avatar", filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/settings/profile", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestShowSettingsVerificationPrompt(t *testing.T) {
	w := serve(newRouter(&fakeGateway{}, testSession(false)), httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<h1>Settings</h1>")
	assert.Contains(t, body, `action="/settings/email/verify"`)
	assert.Contains(t, body, `value="Bob"`)
	assert.Contains(t, body, ">hello</textarea>")
	assert.NotContains(t, body, `class="message`)

	w = serve(newRouter(&fakeGateway{}, testSession(true)), httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `action="/settings/email/verify"`)
}

func TestShowSettingsWithoutUser(t *testing.T) {
	r := newRouter(&fakeGateway{}, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<a href="/login">Sign in</a>`)
	assert.NotContains(t, w.Body.String(), "<form")

	for _, path := range []string{"/settings/profile", "/settings/password", "/settings/email/verify"} {
		w = serve(r, formRequest(path, url.Values{}))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitProfileSuccess(t *testing.T) {
	gw := &fakeGateway{patch: domain.UserPatch{Name: strPtr("Alice")}}
	sess := testSession(true)
	r := newRouter(gw, sess)

	w := serve(r, profileRequest(t, map[string]string{"name": "Alice", "bio": "hello"}, "me.png", pngHeader))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, ">Profile updated</p>")
	assert.NotContains(t, body, "message-error")
	assert.Contains(t, body, `value="Alice"`)

	assert.Equal(t, "Alice", sess.User().Name)
	assert.Equal(t, "hello", sess.User().Bio)

	require.NotNil(t, gw.lastProfile.Avatar)
	assert.Equal(t, "image/png", gw.lastProfile.Avatar.ContentType)
	assert.Equal(t, "me.png", gw.lastProfile.Avatar.Filename)
}

func TestSubmitProfileServerErrorKeepsEdits(t *testing.T) {
	gw := &fakeGateway{err: &api.StatusError{Op: "update profile", StatusCode: http.StatusBadRequest, Message: "Name already taken"}}
	sess := testSession(true)
	r := newRouter(gw, sess)

	w := serve(r, profileRequest(t, map[string]string{"name": "Alice", "bio": "typed"}, "", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `class="message message-error"`)
	assert.Contains(t, body, ">Name already taken</p>")
	assert.Contains(t, body, `value="Alice"`)
	assert.Contains(t, body, ">typed</textarea>")
	assert.Equal(t, "Bob", sess.User().Name)
	assert.Nil(t, gw.lastProfile.Avatar)
}

func TestSubmitProfileTransportFailure(t *testing.T) {
	gw := &fakeGateway{err: &api.TransportError{Op: "update profile", Err: errors.New("connection refused")}}
	r := newRouter(gw, testSession(true))

	w := serve(r, profileRequest(t, map[string]string{"name": "Alice"}, "", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), logicv1.MsgTransportFailure)
}

func TestSubmitProfileValidation(t *testing.T) {
	gw := &fakeGateway{}
	r := newRouter(gw, testSession(true))

	w := serve(r, profileRequest(t, map[string]string{"bio": "no name"}, "", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ">Name is required</p>")
	assert.Contains(t, w.Body.String(), ">no name</textarea>")

	w = serve(r, profileRequest(t, map[string]string{"name": "Alice"}, "notes.txt", []byte("just some text")))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrInvalidAvatar.Error())

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 1<<20)...)
	w = serve(r, profileRequest(t, map[string]string{"name": "Alice"}, "big.png", big))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrAvatarTooLarge.Error())

	assert.Equal(t, int32(0), gw.profileCalls.Load())
}

func TestSubmitProfileWhileInFlight(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := newRouter(gw, testSession(true))

	firstReq := profileRequest(t, map[string]string{"name": "Alice"}, "", nil)
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- serve(r, firstReq)
	}()
	select {
	case <-gw.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the backend")
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Contains(t, w.Body.String(), `<button type="submit" disabled>Save</button>`)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))
	var state struct {
		Busy bool        `json:"busy"`
		User domain.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Busy)
	assert.Equal(t, "Bob", state.User.Name)

	w = serve(r, profileRequest(t, map[string]string{"name": "Eve"}, "", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotContains(t, w.Body.String(), `class="message`)
	assert.Equal(t, int32(1), gw.profileCalls.Load())

	close(gw.release)
	res := <-first
	assert.Equal(t, http.StatusOK, res.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Contains(t, w.Body.String(), `<button type="submit">Save</button>`)
}

func TestSubmitPasswordClearsFields(t *testing.T) {
	for _, gwErr := range []error{nil, &api.StatusError{StatusCode: http.StatusUnauthorized, Message: "Wrong password"}} {
		gw := &fakeGateway{err: gwErr}
		r := newRouter(gw, testSession(true))

		w := serve(r, formRequest("/settings/password", url.Values{
			"oldPassword": {"old-secret"},
			"newPassword": {"new-secret"},
		}))

		body := w.Body.String()
		assert.NotContains(t, body, "old-secret")
		assert.NotContains(t, body, "new-secret")
		assert.Contains(t, body, `<input type="password" name="oldPassword" id="oldpassword" required>`)
		assert.Contains(t, body, `<input type="password" name="newPassword" id="newpassword" required>`)
		assert.Equal(t, domain.PasswordForm{OldPassword: "old-secret", NewPassword: "new-secret"}, gw.lastPassword)

		if gwErr == nil {
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, body, ">Password updated</p>")
		} else {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, body, ">Wrong password</p>")
		}
	}
}

func TestSubmitPasswordValidation(t *testing.T) {
	r := newRouter(&fakeGateway{}, testSession(true))

	w := serve(r, formRequest("/settings/password", url.Values{"oldPassword": {"old-secret"}}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "New password is required")
	assert.NotContains(t, w.Body.String(), "old-secret")
}

func TestRequestEmailVerification(t *testing.T) {
	r := newRouter(&fakeGateway{}, testSession(false))

	w := serve(r, formRequest("/settings/email/verify", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ">An email has been sent to your mailbox</p>")
}

func TestRequestEmailVerificationBackendFailure(t *testing.T) {
	gw := &fakeGateway{err: &api.StatusError{StatusCode: http.StatusInternalServerError, Message: "Mailer down"}}
	r := newRouter(gw, testSession(false))

	w := serve(r, formRequest("/settings/email/verify", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), ">Mailer down</p>")
	assert.Contains(t, w.Body.String(), "message-error")
}

func TestBackendTimeoutReleasesProfileGuard(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)

	client := api.NewClient(api.Options{
		BaseURL:    slow.URL,
		CookieName: "sessionId",
		Timeout:    50 * time.Millisecond,
	})
	sess := testSession(false)
	r, svc := newRouterWithGateway(client, sess)

	w := serve(r, profileRequest(t, map[string]string{"name": "Alice", "bio": "typed"}, "", nil))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), logicv1.MsgTransportFailure)
	assert.Contains(t, w.Body.String(), `value="Alice"`)
	assert.False(t, svc.Busy(sess.Token()))
	assert.NotContains(t, w.Body.String(), "disabled")
	assert.Equal(t, "Bob", sess.User().Name)

	w = serve(r, formRequest("/settings/email/verify", url.Values{}))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), logicv1.MsgTransportFailure)
}
