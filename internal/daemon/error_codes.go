// ABOUTME: Stable machine-readable error codes derived from API error responses.
package daemon

import (
	"net/http"
	"strings"
)

const apiErrorCodeVersion = "v1"

const (
	// Validation domain
	apiErrorCodeValidationBadRequest    = apiErrorCodeVersion + "/validation/bad_request"
	apiErrorCodeValidationMalformedJSON = apiErrorCodeVersion + "/validation/malformed_json"
	apiErrorCodeValidationMissingField  = apiErrorCodeVersion + "/validation/missing_required_field"
	apiErrorCodeValidationUnknownTarget = apiErrorCodeVersion + "/validation/unknown_target"

	// Simulation domain
	apiErrorCodeSimulationNotFound   = apiErrorCodeVersion + "/simulation/not_found"
	apiErrorCodeSimulationActiveRuns = apiErrorCodeVersion + "/simulation/active_runs"

	// Run domain
	apiErrorCodeRunNotFound      = apiErrorCodeVersion + "/run/not_found"
	apiErrorCodeRunNotRunning    = apiErrorCodeVersion + "/run/not_running"
	apiErrorCodeRunNotQueued     = apiErrorCodeVersion + "/run/not_queued"
	apiErrorCodeRunAdminRequired = apiErrorCodeVersion + "/run/admin_account_required"
	apiErrorCodeRunQueueClosed   = apiErrorCodeVersion + "/run/queue_closed"
	apiErrorCodeRunStatsNotReady = apiErrorCodeVersion + "/run/stats_not_ready"
	apiErrorCodeRunCiUnavailable = apiErrorCodeVersion + "/run/ci_status_unavailable"

	// Schedule domain
	apiErrorCodeScheduleNotFound           = apiErrorCodeVersion + "/schedule/not_found"
	apiErrorCodeScheduleInstructorRequired = apiErrorCodeVersion + "/schedule/instructor_credentials_required"
	apiErrorCodeScheduleUnknownSubscriber  = apiErrorCodeVersion + "/schedule/unknown_subscription"

	// Generic fallbacks
	apiErrorCodeResourceNotFound = apiErrorCodeVersion + "/resource/not_found"
	apiErrorCodeConflict         = apiErrorCodeVersion + "/resource/conflict"
	apiErrorCodeInternalError    = apiErrorCodeVersion + "/internal/error"
	apiErrorCodeUnavailable      = apiErrorCodeVersion + "/internal/unavailable"
)

func apiErrorCode(status int, message string) string {
	normalized := strings.TrimSpace(strings.ToLower(message))
	if normalized != "" {
		if code := apiErrorCodeFromMessage(normalized); code != "" {
			return code
		}
	}
	return apiErrorCodeByStatus(status)
}

func apiErrorCodeFromMessage(normalized string) string {
	switch {
	case strings.Contains(normalized, "invalid request body"):
		return apiErrorCodeValidationMalformedJSON
	case strings.Contains(normalized, "unexpected trailing data"):
		return apiErrorCodeValidationMalformedJSON
	case strings.Contains(normalized, "request body is required"):
		return apiErrorCodeValidationMissingField
	case strings.Contains(normalized, "unknown target server"):
		return apiErrorCodeValidationUnknownTarget
	case strings.Contains(normalized, "admin account or instructor credentials"):
		return apiErrorCodeRunAdminRequired
	case strings.Contains(normalized, "require instructor credentials"):
		return apiErrorCodeScheduleInstructorRequired
	case strings.Contains(normalized, "has active runs"):
		return apiErrorCodeSimulationActiveRuns
	case strings.Contains(normalized, "run queue closed"):
		return apiErrorCodeRunQueueClosed
	case strings.Contains(normalized, "not running"):
		return apiErrorCodeRunNotRunning
	case strings.Contains(normalized, "not queued"):
		return apiErrorCodeRunNotQueued
	case strings.Contains(normalized, "no statistics"):
		return apiErrorCodeRunStatsNotReady
	case strings.Contains(normalized, "no ci status"):
		return apiErrorCodeRunCiUnavailable
	case strings.Contains(normalized, "no subscription for key"):
		return apiErrorCodeScheduleUnknownSubscriber
	case strings.Contains(normalized, "not found"):
		switch {
		case strings.Contains(normalized, "simulation"):
			return apiErrorCodeSimulationNotFound
		case strings.Contains(normalized, "run"):
			return apiErrorCodeRunNotFound
		case strings.Contains(normalized, "schedule"):
			return apiErrorCodeScheduleNotFound
		default:
			return apiErrorCodeResourceNotFound
		}
	}
	return ""
}

func apiErrorCodeByStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apiErrorCodeValidationBadRequest
	case http.StatusNotFound:
		return apiErrorCodeResourceNotFound
	case http.StatusConflict:
		return apiErrorCodeConflict
	case http.StatusServiceUnavailable:
		return apiErrorCodeUnavailable
	default:
		return apiErrorCodeInternalError
	}
}
