package providers

import "fmt"

// ProviderError wraps a failed external call with the provider it hit.
// A run that fails with a ProviderError counts against that provider in
// analytics and, for scheduler-initiated runs, drives the retry/backoff.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func provErr(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func provErrf(provider, op, format string, args ...any) error {
	return &ProviderError{Provider: provider, Op: op, Err: fmt.Errorf(format, args...)}
}
