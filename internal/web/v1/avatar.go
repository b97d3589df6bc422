package v1

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/duynhne/settings-web/internal/core/domain"
)

// avatarField is the file input of the profile form.
const avatarField = "avatar"

var allowedAvatarTypes = []string{"image/png", "image/jpeg"}

// readAvatar returns the uploaded picture, or nil when none was chosen. The
// content type is sniffed from the bytes; the client-declared type is ignored.
func readAvatar(c *gin.Context, maxBytes int64) (*domain.Avatar, error) {
	header, err := c.FormFile(avatarField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if header.Size == 0 && header.Filename == "" {
		return nil, nil
	}
	if header.Size > maxBytes {
		return nil, domain.ErrAvatarTooLarge
	}
	return loadAvatar(header, maxBytes)
}

func loadAvatar(header *multipart.FileHeader, maxBytes int64) (*domain.Avatar, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(content)) > maxBytes {
		return nil, domain.ErrAvatarTooLarge
	}

	mt := mimetype.Detect(content)
	if !mimetype.EqualsAny(mt.String(), allowedAvatarTypes...) {
		return nil, domain.ErrInvalidAvatar
	}

	return &domain.Avatar{
		Filename:    header.Filename,
		ContentType: mt.String(),
		Size:        int64(len(content)),
		Content:     bytes.NewReader(content),
	}, nil
}
