package v1

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duynhne/settings-web/internal/core/domain"
)

func TestSanitizeValidationError(t *testing.T) {
	assert.Equal(t, "", sanitizeValidationError(nil))
	assert.Equal(t, domain.ErrAvatarTooLarge.Error(), sanitizeValidationError(domain.ErrAvatarTooLarge))
	assert.Equal(t, "The upload could not be read", sanitizeValidationError(errors.New("multipart: NextPart: EOF")))
	assert.Equal(t, "Invalid request", sanitizeValidationError(errors.New("Key: 'ProfileForm.Name' Error:Field validation for 'Name' failed")))
}
