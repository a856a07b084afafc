package trivia

import "fmt"

type Reason string

const (
	ReasonProviderRejected Reason = "provider rejected"
	ReasonNetworkFailure   Reason = "network failure"
)

// FetchError is returned by FetchQuestions for any failure: the provider
// refusing the request, a malformed payload, or the transport failing.
type FetchError struct {
	Reason Reason
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("trivia: %s: %v", e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func rejected(err error) *FetchError {
	return &FetchError{Reason: ReasonProviderRejected, Err: err}
}

func networkFailure(err error) *FetchError {
	return &FetchError{Reason: ReasonNetworkFailure, Err: err}
}
