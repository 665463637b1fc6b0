package gamedto

// Response is the envelope every JSON endpoint returns. The board PNG and
// websocket endpoints answer with it only on errors.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps a payload in a success envelope.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Err wraps an error message in a failure envelope.
func Err(msg string) Response {
	return Response{Success: false, Error: msg}
}
