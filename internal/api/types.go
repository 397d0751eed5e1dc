package api

import (
	"net/http"

	"bnpl/internal/services"
)

// ErrorBody is the payload of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ItemError reports one failed item of a stream.
type ItemError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StreamResponse is returned by extractors, transformers, importers,
// pipelines and searches.
type StreamResponse struct {
	Sounds    []map[string]any `json:"sounds"`
	Errors    []ItemError      `json:"errors,omitempty"`
	Locations []string         `json:"locations,omitempty"`
}

// MixResponse is returned by mixers.
type MixResponse struct {
	Sound map[string]any `json:"sound"`
}

// ExportResponse is returned by exporters.
type ExportResponse struct {
	Locations []string `json:"locations"`
}

// DeleteResponse confirms a removal.
type DeleteResponse struct {
	Deleted string `json:"deleted"`
}

// StatusResponse reports the preflight results served by /api/status.
type StatusResponse struct {
	Ready  bool          `json:"ready"`
	Checks []CheckResult `json:"checks"`
}

// CheckResult mirrors one preflight result.
type CheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	switch services.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "precondition":
		return http.StatusConflict
	case "external_tool", "storage":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
