package server

// CallRequest is the body of POST /mcp/call.
type CallRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}
