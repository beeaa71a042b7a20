package room

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrVideoStateNotFound = errors.New("video state not found")
)

// ValidationError marks input the store refused before touching storage
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

var (
	ErrVideoURLRequired = newValidationError("video url is required")
	ErrInvalidVideoURL  = newValidationError("invalid youtube url")
	ErrNoVideoID        = newValidationError("could not extract video id")
	ErrNameRequired     = newValidationError("name is required")
	ErrNameTooLong      = newValidationError("name must be 20 characters or less")
	ErrReservedName     = newValidationError("name is reserved")
	ErrSenderRequired   = newValidationError("sender name is required")
	ErrEmptyMessage     = newValidationError("message is empty")
	ErrMessageTooLong   = newValidationError("message is too long")
	ErrInvalidPosition  = newValidationError("position must be a non-negative number")
)

// IsValidation reports whether err was caused by rejected input
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validationErrors = []*ValidationError{
	ErrVideoURLRequired,
	ErrInvalidVideoURL,
	ErrNoVideoID,
	ErrNameRequired,
	ErrNameTooLong,
	ErrReservedName,
	ErrSenderRequired,
	ErrEmptyMessage,
	ErrMessageTooLong,
	ErrInvalidPosition,
}

// ValidationFromMessage maps a message received over the wire back to its
// sentinel, so errors.Is keeps working for remote stores
func ValidationFromMessage(msg string) *ValidationError {
	for _, ve := range validationErrors {
		if ve.Message == msg {
			return ve
		}
	}
	return newValidationError(msg)
}
