// Package api is the client for the backend user resources consumed by the
// settings page.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/core/domain"
	"github.com/duynhne/settings-web/middleware"
)

// Backend resource paths.
const (
	UserPath              = "/api/user"
	PasswordPath          = "/api/user/password"
	VerificationEmailPath = "/api/user/email/verify"
)

// RequestIDHeader correlates a backend call with the settings page request.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody caps how much of an error response is kept as the message.
// Longer bodies are cut and end with TruncatedSuffix.
const maxErrorBody = 64 << 10

// TruncatedSuffix marks an error message cut at maxErrorBody.
const TruncatedSuffix = " [truncated]"

// Options configures a Client.
type Options struct {
	BaseURL       string
	CookieName    string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client talks to the backend on behalf of a signed-in session.
type Client struct {
	baseURL       string
	cookieName    string
	retryAttempts uint
	retryDelay    time.Duration
	httpClient    *http.Client
	logger        *zap.Logger
}

var _ domain.UserGateway = (*Client)(nil)

// NewClient creates a new backend client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	attempts := opts.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		cookieName:    opts.CookieName,
		retryAttempts: attempts,
		retryDelay:    delay,
		httpClient:    httpClient,
		logger:        logger,
	}
}

type userEnvelope struct {
	User *domain.User `json:"user"`
}

type patchEnvelope struct {
	User domain.UserPatch `json:"user"`
}

// CurrentUser fetches the signed-in user for token. A nil user means the
// backend knows no signed-in user for the session. Transport failures are
// retried since the lookup is idempotent.
func (c *Client) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	const op = "get current user"
	ctx, span := middleware.StartSpan(ctx, "backend.user.get", trace.WithAttributes(
		attribute.String("layer", "client"),
	))
	defer span.End()

	user, err := retry.DoWithData(
		func() (*domain.User, error) {
			resp, err := c.do(ctx, op, http.MethodGet, UserPath, token, nil, "")
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, c.readStatusError(op, resp)
			}

			var env userEnvelope
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
				return nil, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
			}
			return env.User, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("Retrying current user lookup", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		middleware.RecordError(ctx, err)
		middleware.ObserveBackendRequest("current_user", err)
		return nil, err
	}
	middleware.ObserveBackendRequest("current_user", nil)
	return user, nil
}

// UpdateProfile sends the profile form as multipart/form-data with a PATCH
// and returns the user fields echoed by the backend.
func (c *Client) UpdateProfile(ctx context.Context, token string, form domain.ProfileForm) (domain.UserPatch, error) {
	const op = "update profile"
	ctx, span := middleware.StartSpan(ctx, "backend.user.update", trace.WithAttributes(
		attribute.String("layer", "client"),
		attribute.Bool("profile.avatar", form.Avatar != nil),
	))
	defer span.End()

	body, contentType, err := encodeProfile(form)
	if err != nil {
		err = &TransportError{Op: op, Err: err}
		middleware.RecordError(ctx, err)
		middleware.ObserveBackendRequest("update_profile", err)
		return domain.UserPatch{}, err
	}

	patch, err := c.updateProfile(ctx, op, token, body, contentType)
	middleware.ObserveBackendRequest("update_profile", err)
	if err != nil {
		middleware.RecordError(ctx, err)
		return domain.UserPatch{}, err
	}
	return patch, nil
}

func (c *Client) updateProfile(ctx context.Context, op, token string, body io.Reader, contentType string) (domain.UserPatch, error) {
	resp, err := c.do(ctx, op, http.MethodPatch, UserPath, token, body, contentType)
	if err != nil {
		return domain.UserPatch{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.UserPatch{}, c.readStatusError(op, resp)
	}

	var env patchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return domain.UserPatch{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return env.User, nil
}

// ChangePassword sends the old and new password as JSON with a PUT.
func (c *Client) ChangePassword(ctx context.Context, token string, form domain.PasswordForm) error {
	const op = "change password"
	ctx, span := middleware.StartSpan(ctx, "backend.user.password", trace.WithAttributes(
		attribute.String("layer", "client"),
	))
	defer span.End()

	payload, err := json.Marshal(form)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}

	err = c.expectOK(ctx, op, http.MethodPut, PasswordPath, token, bytes.NewReader(payload), "application/json")
	middleware.ObserveBackendRequest("change_password", err)
	if err != nil {
		middleware.RecordError(ctx, err)
	}
	return err
}

// SendVerificationEmail asks the backend to mail a verification link.
func (c *Client) SendVerificationEmail(ctx context.Context, token string) error {
	const op = "send verification email"
	ctx, span := middleware.StartSpan(ctx, "backend.user.verify_email", trace.WithAttributes(
		attribute.String("layer", "client"),
	))
	defer span.End()

	err := c.expectOK(ctx, op, http.MethodPost, VerificationEmailPath, token, nil, "")
	middleware.ObserveBackendRequest("send_verification_email", err)
	if err != nil {
		middleware.RecordError(ctx, err)
	}
	return err
}

func (c *Client) expectOK(ctx context.Context, op, method, path, token string, body io.Reader, contentType string) error {
	resp, err := c.do(ctx, op, method, path, token, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.readStatusError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" && c.cookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: token})
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) readStatusError(op string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read error response: %w", err)}
	}
	if len(body) > maxErrorBody {
		body = append(body[:maxErrorBody], TruncatedSuffix...)
	}
	c.logger.Debug("Backend request failed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
	)
	return statusError(op, resp, body)
}

func isTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeProfile builds the multipart body. The picture goes first, then name
// and bio, matching what the backend parser expects.
func encodeProfile(form domain.ProfileForm) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if form.Avatar != nil && form.Avatar.Content != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profilePicture"; filename="%s"`,
			quoteEscaper.Replace(form.Avatar.Filename)))
		h.Set("Content-Type", form.Avatar.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create picture part: %w", err)
		}
		if _, err := io.Copy(part, form.Avatar.Content); err != nil {
			return nil, "", fmt.Errorf("copy picture: %w", err)
		}
	}
	if err := w.WriteField("name", form.Name); err != nil {
		return nil, "", fmt.Errorf("write name: %w", err)
	}
	if err := w.WriteField("bio", form.Bio); err != nil {
		return nil, "", fmt.Errorf("write bio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
