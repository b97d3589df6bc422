package v1

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var formFieldNames = map[string]string{
	"Name":        "Name",
	"OldPassword": "Old password",
	"NewPassword": "New password",
}

// sanitizeValidationError returns a user-friendly message for validation/binding errors.
// Never expose raw gin/go validation errors to clients (security + UX).
func sanitizeValidationError(err error) string {
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			field, ok := formFieldNames[fe.Field()]
			if !ok {
				field = fe.Field()
			}
			if fe.Tag() == "required" {
				msgs = append(msgs, field+" is required")
			} else {
				msgs = append(msgs, field+" is invalid")
			}
		}
		return strings.Join(msgs, ", ")
	}

	msg := err.Error()
	if strings.Contains(msg, "multipart") || strings.Contains(msg, "request body too large") {
		return "The upload could not be read"
	}
	// Short, safe messages (e.g. "profile picture is too large") can pass through
	if len(msg) < 100 && !strings.Contains(msg, "Error:") && !strings.Contains(msg, "Key:") {
		return msg
	}
	return "Invalid request"
}
