package oauth

import (
	"errors"
	"strings"
)

// Telecom identifier length limits. The combined MCC+SN length bound follows
// the E.164 15-digit ceiling.
const (
	maxMCCLen   = 3
	maxTotalLen = 15
)

// TelecomIdentifier is the validated (MCC, SN) pair identifying a subscriber.
// It is immutable after construction and doubles as the directory lookup key
// and a cache key component.
type TelecomIdentifier struct {
	mcc string
	sn  string
}

// NewTelecomIdentifier validates and constructs a TelecomIdentifier. All
// violated constraints are reported together in the returned error.
func NewTelecomIdentifier(mcc, sn string) (TelecomIdentifier, error) {
	var violations []string
	if len(mcc) == 0 || len(mcc) > maxMCCLen {
		violations = append(violations, "mcc: must be between 1 and 3 characters")
	}
	if len(sn) == 0 {
		violations = append(violations, "sn: cannot be empty")
	}
	if len(mcc)+len(sn) > maxTotalLen {
		violations = append(violations, "mcc+sn: total length must not exceed 15")
	}
	if len(violations) > 0 {
		return TelecomIdentifier{}, &ValidationError{Violations: violations}
	}
	return TelecomIdentifier{mcc: mcc, sn: sn}, nil
}

// MCC returns the mobile country code component.
func (id TelecomIdentifier) MCC() string { return id.mcc }

// SN returns the subscriber number component.
func (id TelecomIdentifier) SN() string { return id.sn }

// String returns the concatenated MCC+SN used for prefix routing.
func (id TelecomIdentifier) String() string { return id.mcc + id.sn }

// ValidationError reports the individual field constraints violated when
// constructing a TelecomIdentifier.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "oauth: invalid telecom identifier: " + strings.Join(e.Violations, "; ")
}

// IsValidationError reports whether err is a telecom identifier validation
// failure, for transports that map it to a client error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
