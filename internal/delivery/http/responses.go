package http

import (
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

// PostResponse is returned for accepted submissions and in-progress lookups.
type PostResponse struct {
	Status    string `json:"status"`
	URL       string `json:"url"`
	RequestID string `json:"request_id"`
}

// MetadataPayload is the metadata block of a completed lookup.
type MetadataPayload struct {
	Headers           map[string]string `json:"headers"`
	Cookies           map[string]string `json:"cookies"`
	StatusCode        int               `json:"status_code"`
	PageSource        string            `json:"page_source"`
	AdditionalDetails map[string]any    `json:"additional_details,omitempty"`
}

// CompletedResponse is the 200 body for a COMPLETED record. No request_id.
type CompletedResponse struct {
	Status   string          `json:"status"`
	URL      string          `json:"url"`
	Metadata MetadataPayload `json:"metadata"`
}

// FailedResponse is the 200 body for a FAILED_PERMANENT record.
type FailedResponse struct {
	Status        string `json:"status"`
	URL           string `json:"url"`
	ErrorMsg      string `json:"error_msg"`
	AttemptNumber int    `json:"attempt_number"`
}

func completedResponse(rec *domain.Record) CompletedResponse {
	headers := rec.Metadata.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	cookies := rec.Metadata.Cookies
	if cookies == nil {
		cookies = map[string]string{}
	}
	return CompletedResponse{
		Status: string(domain.StatusCompleted),
		URL:    rec.URL,
		Metadata: MetadataPayload{
			Headers:           headers,
			Cookies:           cookies,
			StatusCode:        rec.Metadata.StatusCode,
			PageSource:        rec.Metadata.PageSource,
			AdditionalDetails: rec.Metadata.AdditionalDetails,
		},
	}
}

func failedResponse(rec *domain.Record) FailedResponse {
	return FailedResponse{
		Status:        string(domain.StatusFailedPermanent),
		URL:           rec.URL,
		ErrorMsg:      rec.Processing.ErrorMsg,
		AttemptNumber: rec.Processing.AttemptNumber,
	}
}

func inProgressResponse(rec *domain.Record) PostResponse {
	return PostResponse{
		Status:    string(domain.StatusInProgress),
		URL:       rec.URL,
		RequestID: rec.Processing.LastRequestID,
	}
}
