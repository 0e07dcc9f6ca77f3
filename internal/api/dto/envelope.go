package dto

// Envelope wraps every api response body.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Result  T      `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK builds a successful envelope.
func OK[T any](result T, message string) Envelope[T] {
	return Envelope[T]{Success: true, Result: result, Message: message}
}

// Fail builds a failed envelope without a result.
func Fail(message string) Envelope[any] {
	return Envelope[any]{Success: false, Message: message}
}
