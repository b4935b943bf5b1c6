package service

import "errors"

var (
	// ErrTicketNotFound is returned when a ticket cannot be found
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBusinessRejection matches every *RejectionError
	ErrBusinessRejection = errors.New("business rejection")
)

// Ownership and progress rejection messages.
const (
	MsgNotChildsTicket  = "Ticket does not belong to this child"
	MsgNotFamilysTicket = "Ticket does not belong to this family"
	MsgElapsedDecreased = "Elapsed seconds cannot decrease"
)

// RejectionError is a well-formed refusal of a requested transition, such as
// a ticket in the wrong state. Message is safe to return to the caller.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrBusinessRejection) hold for any rejection.
func (e *RejectionError) Is(target error) bool {
	return target == ErrBusinessRejection
}

// Reject builds a *RejectionError.
func Reject(message string) error {
	return &RejectionError{Message: message}
}
