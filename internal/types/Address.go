package types

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// AggregateSubject is the reserved ledger subject holding the sum of all holder weights.
// ValidateAddress rejects it, so no holder can ever alias it.
const AggregateSubject = "*aggregate"

const maxAddressLength = 128

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateAddress checks that addr can be used as an account address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if len(addr) > maxAddressLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAddress, maxAddressLength)
	}
	if strings.ContainsAny(addr, "*/\x00") || strings.IndexFunc(addr, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateIdentifier checks a user supplied farm or position identifier before it is prefixed.
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be 1-64 characters of [A-Za-z0-9_-]", ErrInvalidIdentifier, id)
	}
	return nil
}
