// ABOUTME: EventResponse is what mod handlers return and what emitters await.
// ABOUTME: Combine folds multiple handler responses into one aggregate result.

package event

// Response is the result of handling one event. Multiple handlers for the same
// event each produce one; the gateway aggregates with Combine.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// OK builds a successful response with the given data.
func OK(message string, data map[string]any) *Response {
	return &Response{Success: true, Message: message, Data: data}
}

// Fail builds a failed response.
func Fail(message string) *Response {
	return &Response{Success: false, Message: message}
}

// Combine aggregates handler responses in handler order. The first failure is
// returned as the aggregate; otherwise data maps are merged in order, with
// later handlers overwriting colliding keys. Returns nil for an empty input.
func Combine(responses []*Response) *Response {
	var merged map[string]any
	var message string
	seen := false

	for _, r := range responses {
		if r == nil {
			continue
		}
		if !r.Success {
			return r
		}
		seen = true
		if message == "" {
			message = r.Message
		}
		if len(r.Data) > 0 {
			if merged == nil {
				merged = make(map[string]any, len(r.Data))
			}
			for k, v := range r.Data {
				merged[k] = v
			}
		}
	}

	if !seen {
		return nil
	}
	return &Response{Success: true, Message: message, Data: merged}
}
