package v1

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/client/api"
	"github.com/duynhne/settings-web/internal/core/domain"
	"github.com/duynhne/settings-web/internal/session"
	"github.com/duynhne/settings-web/middleware"
)

// Messages shown after each action.
const (
	MsgProfileUpdated   = "Profile updated"
	MsgPasswordUpdated  = "Password updated"
	MsgVerificationSent = "An email has been sent to your mailbox"
	MsgTransportFailure = "Could not reach the server, please try again"
)

// ProfileService drives the profile section of the settings page: profile
// updates, password changes and verification emails.
type ProfileService struct {
	gateway domain.UserGateway
	guard   *submissionGuard
	logger  *zap.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(gateway domain.UserGateway, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		gateway: gateway,
		guard:   newSubmissionGuard(),
		logger:  logger,
	}
}

// Busy reports whether a profile submission is in flight for the session.
func (s *ProfileService) Busy(token string) bool {
	return s.guard.busy(token)
}

// SubmitProfile sends the profile form to the backend and merges the echoed
// fields into the session's cached user. While a submission for the same
// session is pending, further calls return domain.ErrSubmissionInFlight
// without contacting the backend.
func (s *ProfileService) SubmitProfile(ctx context.Context, sess *session.Context, form domain.ProfileForm) (domain.StatusMessage, error) {
	ctx, span := middleware.StartSpan(ctx, "settings.profile.submit", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Bool("profile.avatar", form.Avatar != nil),
	))
	defer span.End()

	if !s.guard.acquire(sess.Token()) {
		span.SetAttributes(attribute.Bool("profile.in_flight", true))
		middleware.ObserveRejectedSubmission()
		return domain.StatusMessage{}, domain.ErrSubmissionInFlight
	}
	defer s.guard.release(sess.Token())

	patch, err := s.gateway.UpdateProfile(ctx, sess.Token(), form)
	if err != nil {
		return s.failure(ctx, "update profile", err)
	}

	sess.Mutate(sess.User().Merge(patch))
	span.SetAttributes(attribute.Bool("profile.updated", true))
	return domain.Success(MsgProfileUpdated), nil
}

// SubmitPasswordChange sends the password change to the backend. Both
// fields of form are cleared before the request goes out, whatever the
// outcome.
func (s *ProfileService) SubmitPasswordChange(ctx context.Context, sess *session.Context, form *domain.PasswordForm) (domain.StatusMessage, error) {
	ctx, span := middleware.StartSpan(ctx, "settings.password.change", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	body := *form
	form.Clear()

	if err := s.gateway.ChangePassword(ctx, sess.Token(), body); err != nil {
		return s.failure(ctx, "change password", err)
	}
	return domain.Success(MsgPasswordUpdated), nil
}

// RequestEmailVerification asks the backend to send a verification email.
func (s *ProfileService) RequestEmailVerification(ctx context.Context, sess *session.Context) (domain.StatusMessage, error) {
	ctx, span := middleware.StartSpan(ctx, "settings.email.verify", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.gateway.SendVerificationEmail(ctx, sess.Token()); err != nil {
		return s.failure(ctx, "send verification email", err)
	}
	return domain.Success(MsgVerificationSent), nil
}

// failure turns a backend error into the message shown to the user. A
// response from the backend is shown verbatim; anything else is a transport
// failure.
func (s *ProfileService) failure(ctx context.Context, op string, err error) (domain.StatusMessage, error) {
	middleware.RecordError(ctx, err)

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		s.logger.Info("Backend rejected settings change",
			zap.String("op", op),
			zap.Int("status", statusErr.StatusCode),
		)
		return domain.Failure(statusErr.Message), fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Warn("Backend unreachable", zap.String("op", op), zap.Error(err))
	return domain.Failure(MsgTransportFailure), fmt.Errorf("%s: %w", op, err)
}
