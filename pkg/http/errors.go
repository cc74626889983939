package http

import "net/http"

// AppError is a failure reported to the client: a stable code the client can switch
// on, a readable message and the HTTP status. Err keeps the cause for logs only.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func newAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithField names the request field at fault.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// BadRequestError is a 400 for requests the server cannot interpret.
func BadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", message)
}

// ConflictError is a 409 for actions the current round phase does not allow.
func ConflictError(code, message string) *AppError {
	return newAppError(http.StatusConflict, code, message)
}

// UnprocessableError is a 422 for well-formed requests the game rules reject.
func UnprocessableError(code, message string) *AppError {
	return newAppError(http.StatusUnprocessableEntity, code, message)
}

// InternalError is a 500. Its cause is logged, never sent.
func InternalError(message string) *AppError {
	return newAppError(http.StatusInternalServerError, "ERR_INTERNAL", message)
}
