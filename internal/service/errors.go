package service

import (
	"errors"
	"fmt"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrForbidden = errors.New("you are not allowed to perform this action")
)

// BusinessError is an expected rule violation; its message is safe to show
// to the person who made the request.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return e.Message
}

func businessErrorf(format string, args ...any) error {
	return &BusinessError{Message: fmt.Sprintf(format, args...)}
}

// AsBusinessError unwraps err into a BusinessError if it is one
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Actor is the authenticated caller of a service operation
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsStaff() bool {
	return a.Role == domain.RoleAssistant || a.Role == domain.RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}
