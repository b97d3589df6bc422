package v1

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/client/api"
	"github.com/duynhne/settings-web/internal/core/domain"
	logicv1 "github.com/duynhne/settings-web/internal/logic/v1"
	"github.com/duynhne/settings-web/internal/session"
	"github.com/duynhne/settings-web/middleware"
)

const settingsTemplate = "settings.tmpl"

// formOverhead is the request body allowance on top of the avatar limit for
// the text fields and multipart framing.
const formOverhead = 1 << 20

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates parses the page templates. Install them with engine.SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))
}

type profileFields struct {
	Name string
	Bio  string
}

type pageData struct {
	User      *domain.User
	Profile   profileFields
	Message   domain.StatusMessage
	Busy      bool
	SignInURL string
}

// SettingsHandler serves the settings page and its form actions
type SettingsHandler struct {
	service        *logicv1.ProfileService
	maxAvatarBytes int64
	signInURL      string
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(service *logicv1.ProfileService, maxAvatarBytes int64, signInURL string) *SettingsHandler {
	return &SettingsHandler{
		service:        service,
		maxAvatarBytes: maxAvatarBytes,
		signInURL:      signInURL,
	}
}

// RegisterRoutes mounts the page, its form actions and the JSON state endpoint.
func (h *SettingsHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/settings", h.ShowSettings)
	r.POST("/settings/profile", h.SubmitProfile)
	r.POST("/settings/password", h.SubmitPassword)
	r.POST("/settings/email/verify", h.RequestEmailVerification)
	r.GET("/api/v1/settings", h.GetSettingsState)
}

func startSpan(c *gin.Context) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
}

// ShowSettings handles GET /settings
func (h *SettingsHandler) ShowSettings(c *gin.Context) {
	_, span := startSpan(c)
	defer span.End()

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		h.renderSignIn(c, http.StatusOK)
		return
	}

	h.render(c, http.StatusOK, sess, userFields(sess), domain.StatusMessage{})
}

// SubmitProfile handles POST /settings/profile
func (h *SettingsHandler) SubmitProfile(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	logger := middleware.GetLoggerFromGinContext(c)

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		h.renderSignIn(c, http.StatusUnauthorized)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAvatarBytes+formOverhead)

	var form domain.ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Info("Invalid profile form", zap.Error(err))
		submitted := profileFields{Name: c.PostForm("name"), Bio: c.PostForm("bio")}
		h.render(c, http.StatusBadRequest, sess, submitted, domain.Failure(sanitizeValidationError(err)))
		return
	}
	submitted := profileFields{Name: form.Name, Bio: form.Bio}

	avatar, err := readAvatar(c, h.maxAvatarBytes)
	if err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Info("Invalid profile picture", zap.Error(err))
		h.render(c, http.StatusBadRequest, sess, submitted, domain.Failure(sanitizeValidationError(err)))
		return
	}
	form.Avatar = avatar
	span.SetAttributes(attribute.Bool("request.valid", true))

	msg, err := h.service.SubmitProfile(ctx, sess, form)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrSubmissionInFlight) {
			logger.Info("Profile submission already in flight")
		} else {
			logger.Error("Failed to update profile", zap.Error(err))
		}
		h.render(c, statusForError(err), sess, submitted, msg)
		return
	}

	logger.Info("Profile updated", zap.String("user_id", sess.User().ID))
	h.render(c, http.StatusOK, sess, userFields(sess), msg)
}

// SubmitPassword handles POST /settings/password
func (h *SettingsHandler) SubmitPassword(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	logger := middleware.GetLoggerFromGinContext(c)

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		h.renderSignIn(c, http.StatusUnauthorized)
		return
	}

	var form domain.PasswordForm
	if err := c.ShouldBind(&form); err != nil {
		form.Clear()
		span.SetAttributes(attribute.Bool("request.valid", false))
		logger.Info("Invalid password form", zap.Error(err))
		h.render(c, http.StatusBadRequest, sess, userFields(sess), domain.Failure(sanitizeValidationError(err)))
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	msg, err := h.service.SubmitPasswordChange(ctx, sess, &form)
	if err != nil {
		span.RecordError(err)
		logger.Error("Failed to change password", zap.Error(err))
		h.render(c, statusForError(err), sess, userFields(sess), msg)
		return
	}

	logger.Info("Password changed", zap.String("user_id", sess.User().ID))
	h.render(c, http.StatusOK, sess, userFields(sess), msg)
}

// RequestEmailVerification handles POST /settings/email/verify
func (h *SettingsHandler) RequestEmailVerification(c *gin.Context) {
	ctx, span := startSpan(c)
	defer span.End()
	logger := middleware.GetLoggerFromGinContext(c)

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		h.renderSignIn(c, http.StatusUnauthorized)
		return
	}

	msg, err := h.service.RequestEmailVerification(ctx, sess)
	if err != nil {
		span.RecordError(err)
		logger.Error("Failed to send verification email", zap.Error(err))
		h.render(c, statusForError(err), sess, userFields(sess), msg)
		return
	}

	logger.Info("Verification email requested", zap.String("user_id", sess.User().ID))
	h.render(c, http.StatusOK, sess, userFields(sess), msg)
}

// GetSettingsState handles GET /api/v1/settings
func (h *SettingsHandler) GetSettingsState(c *gin.Context) {
	_, span := startSpan(c)
	defer span.End()

	sess := middleware.SessionFromContext(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": sess.User(),
		"busy": h.service.Busy(sess.Token()),
	})
}

func (h *SettingsHandler) render(c *gin.Context, status int, sess *session.Context, fields profileFields, msg domain.StatusMessage) {
	user := sess.User()
	c.HTML(status, settingsTemplate, pageData{
		User:    &user,
		Profile: fields,
		Message: msg,
		Busy:    h.service.Busy(sess.Token()),
	})
}

func (h *SettingsHandler) renderSignIn(c *gin.Context, status int) {
	c.HTML(status, settingsTemplate, pageData{SignInURL: h.signInURL})
}

func userFields(sess *session.Context) profileFields {
	u := sess.User()
	return profileFields{Name: u.Name, Bio: u.Bio}
}

// statusForError maps a failed action to the page's response code. Backend
// 4xx answers are passed through; other backend failures are a bad gateway.
func statusForError(err error) int {
	var statusErr *api.StatusError
	var transportErr *api.TransportError
	switch {
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return statusErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
