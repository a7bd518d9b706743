package validator

import "errors"

// Terminal validation failure reasons. Failures are expected
// per-packet outcomes: they are only ever delivered through the
// failure callback and never escalate past it.
var (
	// ErrNoRuleMatched means no rule of the packet's kind accepted it.
	ErrNoRuleMatched = errors.New("no rule matched")
	// ErrMaxSteps means the certificate chain walk hit the step limit.
	ErrMaxSteps = errors.New("maximum validation steps reached")
	// ErrInvalidSignature means the cryptographic check failed.
	ErrInvalidSignature = errors.New("signature invalid")
	// ErrUntrustedCert wraps the failure of a signing certificate's own
	// recursive validation.
	ErrUntrustedCert = errors.New("signing certificate could not be validated")
	// ErrMissingKeyLocator means the signature names no certificate.
	ErrMissingKeyLocator = errors.New("key locator is missing")
	// ErrNotSigned means the packet carries no signature at all.
	ErrNotSigned = errors.New("packet is not signed")
	// ErrCertExpired means a fetched certificate is outside its
	// validity period.
	ErrCertExpired = errors.New("certificate is expired")
	// ErrFetchFailed means the certificate could not be retrieved.
	ErrFetchFailed = errors.New("failed to fetch certificate")
)
