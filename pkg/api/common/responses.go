package common

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`    // error taxonomy code (validation, auth, upstream, not_ready, internal)
	Details map[string]interface{} `json:"details,omitempty"` // additional error context, e.g. raw upstream body
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
