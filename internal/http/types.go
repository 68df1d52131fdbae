package http

import "github.com/fyrsmithlabs/coderag/internal/query"

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	// IncludeContext returns the retrieved context block with the answer.
	IncludeContext bool `json:"include_context,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer  string         `json:"answer"`
	Context string         `json:"context,omitempty"`
	Sources []query.Source `json:"sources"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
