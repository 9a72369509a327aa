package app

import "fmt"

// DomainError carries an error the HTTP layer can serve as-is: the
// status to respond with, a stable code such as CONFLICT or
// NO_CREDENTIALS, and a message written for the admin UI.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
