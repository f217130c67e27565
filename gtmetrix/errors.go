package gtmetrix

import "fmt"

// APIError is one entry of the "errors" list the API attaches to any
// non-2xx response, e.g.
//
//	{"status": "422", "code": "E42200", "title": "Validation error", "detail": "invalid url"}
type APIError struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// RequestError means the API answered with a non-2xx status. It carries
// the HTTP status code and the server's parsed error list, when the body
// was parseable.
type RequestError struct {
	StatusCode int
	Errors     []APIError
}

// Message returns the server's human-readable explanation of the first
// error, or an empty string if none was parsed.
func (e *RequestError) Message() string {
	if len(e.Errors) == 0 {
		return ""
	}
	if e.Errors[0].Detail != "" {
		return e.Errors[0].Detail
	}
	return e.Errors[0].Title
}

func (e *RequestError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("gtmetrix: request failed with status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("gtmetrix: request failed with status %d", e.StatusCode)
}

// ConnectionError means the request never got an HTTP response: DNS, TCP,
// TLS or timeout trouble. The underlying error is available via Unwrap.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "gtmetrix: connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResourceNotFoundError means the requested resource name is neither an
// entry in the report nor a usable URL. No request was made.
type ResourceNotFoundError struct {
	Name string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("gtmetrix: no resource %q in report", e.Name)
}
