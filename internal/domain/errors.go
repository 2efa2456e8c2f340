package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCredentialConfigured is returned when no eligible provider has an active credential.
	ErrNoCredentialConfigured = errors.New("No active credential configured")

	// ErrCredentialNotFound is returned when a credential id does not exist.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidCredential is returned when a secret fails the format check.
	ErrInvalidCredential = errors.New("invalid credential format")

	// ErrUnknownProvider is returned for provider names outside the enum.
	ErrUnknownProvider = errors.New("unknown provider")
)

// NoCredentialForProvider is the bypass-mode variant of ErrNoCredentialConfigured.
func NoCredentialForProvider(p ProviderType) error {
	return fmt.Errorf("%w for provider %s", ErrNoCredentialConfigured, p)
}

// ProviderCallError records a single provider's failure.
type ProviderCallError struct {
	Provider ProviderType
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// AllProvidersFailedError aggregates every failure of an exhausted candidate list.
type AllProvidersFailedError struct {
	Failures []*ProviderCallError
}

func (e *AllProvidersFailedError) Error() string {
	return JoinFailures(e.Failures)
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// JoinFailures renders failures as "<provider>: <message>" joined with "; ".
func JoinFailures(failures []*ProviderCallError) string {
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = f.Error()
	}
	return strings.Join(parts, "; ")
}
