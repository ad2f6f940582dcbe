package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// ErrMalformedResponse marks replies that are empty or do not parse.
var ErrMalformedResponse = errors.New("malformed llm response")

// ErrorClass buckets provider failures the way callers need to react to them.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassUnavailable
	ClassQuotaExceeded
	ClassMalformed
	ClassCanceled
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnavailable:
		return "unavailable"
	case ClassQuotaExceeded:
		return "quota_exceeded"
	case ClassMalformed:
		return "malformed"
	case ClassCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Classify maps an error from any provider onto an ErrorClass.
// Anything that did not come back as an API status (network, DNS, timeouts) is unavailable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ClassMalformed
	}
	if status, ok := statusCode(err); ok {
		switch {
		case status == http.StatusTooManyRequests:
			return ClassQuotaExceeded
		case status == http.StatusPaymentRequired:
			return ClassQuotaExceeded
		case status >= 500:
			return ClassUnavailable
		case status == http.StatusRequestTimeout:
			return ClassUnavailable
		default:
			// 4xx other than quota means the request or reply shape was rejected.
			return ClassMalformed
		}
	}
	return ClassUnavailable
}

func statusCode(err error) (int, bool) {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code, true
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return genaiErrPtr.Code, true
	}
	return 0, false
}
