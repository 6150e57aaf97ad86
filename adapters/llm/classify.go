package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/roberta039/Gym-Trainer/domain"
)

// Substrings matched against error text when no structured status is
// available. Transient markers are checked first.
var (
	transientMarkers  = []string{"503", "overloaded", "UNAVAILABLE"}
	credentialMarkers = []string{"429", "Quota", "quota", "API key not valid", "API_KEY_INVALID", "RESOURCE_EXHAUSTED", "rate limit"}
)

// ClassifyMessage maps raw provider error text to a retry class.
func ClassifyMessage(msg string) domain.ErrorKind {
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return domain.KindTransient
		}
	}
	for _, m := range credentialMarkers {
		if strings.Contains(msg, m) {
			return domain.KindCredential
		}
	}
	return domain.KindUnclassified
}

// classifyError attaches a domain.ErrorKind to a Gemini failure, preferring
// the API status code over the message text.
func classifyError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if code, status, ok := apiStatus(err); ok {
		switch {
		case code == http.StatusServiceUnavailable || status == "UNAVAILABLE":
			return domain.Classify(domain.KindTransient, err)
		case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED",
			code == http.StatusUnauthorized, code == http.StatusForbidden:
			return domain.Classify(domain.KindCredential, err)
		}
	}

	if kind := ClassifyMessage(err.Error()); kind != domain.KindUnclassified {
		return domain.Classify(kind, err)
	}
	return err
}

func apiStatus(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}
