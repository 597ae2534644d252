package output

// ErrorResponse is the standard JSON error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// NewError creates an error response.
func NewError(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// NewErrorWithHint creates an error response carrying a remediation hint.
func NewErrorWithHint(msg, hint string) ErrorResponse {
	return ErrorResponse{Error: msg, Hint: hint}
}

// SuccessResponse is a minimal success indicator.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewSuccess creates a success response.
func NewSuccess(msg string) SuccessResponse {
	return SuccessResponse{Success: true, Message: msg}
}
