package domain

import "io"

// User is the backend's view of the signed-in account. The web front only
// holds a cached copy that is refreshed from the session collaborator.
type User struct {
	ID             string `json:"_id,omitempty"`
	Name           string `json:"name"`
	Bio            string `json:"bio"`
	Email          string `json:"email,omitempty"`
	EmailVerified  bool   `json:"emailVerified"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UserPatch carries the fields returned by a profile update. Nil fields
// were not part of the response.
type UserPatch struct {
	ID             *string `json:"_id,omitempty"`
	Name           *string `json:"name,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	Email          *string `json:"email,omitempty"`
	EmailVerified  *bool   `json:"emailVerified,omitempty"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
}

// Merge returns a copy of u with every field present in p applied on top.
func (u User) Merge(p UserPatch) User {
	if p.ID != nil {
		u.ID = *p.ID
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.ProfilePicture != nil {
		u.ProfilePicture = *p.ProfilePicture
	}
	return u
}

// ProfileForm is the bound state of the profile form.
type ProfileForm struct {
	Name   string  `form:"name" binding:"required"`
	Bio    string  `form:"bio"`
	Avatar *Avatar `form:"-"`
}

// PasswordForm is the bound state of the password sub-form.
type PasswordForm struct {
	OldPassword string `form:"oldPassword" json:"oldPassword" binding:"required"`
	NewPassword string `form:"newPassword" json:"newPassword" binding:"required"`
}

// Clear wipes both password fields.
func (f *PasswordForm) Clear() {
	f.OldPassword = ""
	f.NewPassword = ""
}

// Avatar is an uploaded profile picture whose content type has been sniffed.
type Avatar struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// StatusMessage is the notice shown above the settings forms.
type StatusMessage struct {
	Text    string `json:"message"`
	IsError bool   `json:"isError"`
}

// Empty reports whether there is nothing to show.
func (m StatusMessage) Empty() bool {
	return m.Text == ""
}

func Success(text string) StatusMessage {
	return StatusMessage{Text: text}
}

func Failure(text string) StatusMessage {
	return StatusMessage{Text: text, IsError: true}
}
