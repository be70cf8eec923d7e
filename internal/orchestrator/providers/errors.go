package providers

import (
	"errors"
	"fmt"
)

// ProviderNotFoundError means the chain referenced a provider the registry does not hold
type ProviderNotFoundError struct {
	Provider string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found in registry", e.Provider)
}

// ProviderUnavailableError means the health probe failed or timed out
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %q unavailable", e.Provider)
	}
	return fmt.Sprintf("provider %q unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// CapabilityMismatchError means the provider does not handle the requested model or file type
type CapabilityMismatchError struct {
	Provider   string
	Capability string
}

func (e *CapabilityMismatchError) Error() string {
	return fmt.Sprintf("provider %q does not support %q", e.Provider, e.Capability)
}

// InvocationError wraps a failed call to a reachable, capable provider
type InvocationError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timeout: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ChainExhaustedError is the terminal error when every chain entry was skipped or failed
type ChainExhaustedError struct {
	ServiceType string
	Attempts    int
	Skipped     int
	Last        error
}

func (e *ChainExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("chain exhausted for %s: no provider available (%d skipped)", e.ServiceType, e.Skipped)
	}
	return fmt.Sprintf("chain exhausted for %s after %d attempts: %v", e.ServiceType, e.Attempts, e.Last)
}

func (e *ChainExhaustedError) Unwrap() error { return e.Last }

// StatusError is returned by REST adapters on a non-2xx reply
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsSkip reports whether err is one of the errors that skip a chain entry
// without counting as an attempt
func IsSkip(err error) bool {
	var nf *ProviderNotFoundError
	var ua *ProviderUnavailableError
	var cm *CapabilityMismatchError
	return errors.As(err, &nf) || errors.As(err, &ua) || errors.As(err, &cm)
}
