package types

// SuccessEnvelope wraps every successful JSON payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed JSON payload.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func NewSuccess(data any) SuccessEnvelope {
	return SuccessEnvelope{Data: data}
}

func NewError(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: APIError{Code: code, Message: message, Details: details}}
}
