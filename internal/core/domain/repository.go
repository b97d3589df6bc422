package domain

import "context"

// UserGateway is the backend API as seen by the settings page. The session
// token identifies the signed-in user to the backend.
type UserGateway interface {
	CurrentUser(ctx context.Context, token string) (*User, error)
	UpdateProfile(ctx context.Context, token string, form ProfileForm) (UserPatch, error)
	ChangePassword(ctx context.Context, token string, form PasswordForm) error
	SendVerificationEmail(ctx context.Context, token string) error
}
