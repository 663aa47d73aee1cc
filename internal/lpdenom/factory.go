// Package lpdenom recognises lp tokens minted through the token factory by the pool manager.
//
// A factory denom looks like factory/{creator}/{subdenom}: the subdenom holds at most 44
// characters of [0-9A-Za-z./] and the whole denom at most 128 characters.
package lpdenom

import (
	"fmt"
	"strings"

	"github.com/elys-network/lpfarm/internal/types"
)

const (
	factoryPrefix       = "factory"
	maxSubdenomLength   = 44
	maxFactoryDenomSize = 128
)

// IsFactoryToken reports whether denom is a well formed token factory denom.
func IsFactoryToken(denom string) bool {
	parts := strings.SplitN(denom, "/", 3)
	if len(parts) != 3 || parts[0] != factoryPrefix {
		return false
	}
	creator, subdenom := parts[1], parts[2]
	if creator == "" || subdenom == "" || len(subdenom) > maxSubdenomLength {
		return false
	}
	for _, c := range subdenom {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '/' || c == '.') {
			return false
		}
	}
	return len(factoryPrefix)+2+len(creator)+len(subdenom) <= maxFactoryDenomSize
}

// Creator returns the creator segment of a factory denom.
func Creator(denom string) (string, error) {
	if !IsFactoryToken(denom) {
		return "", fmt.Errorf("%w: %q is not a factory denom", types.ErrInvalidLpDenom, denom)
	}
	return strings.SplitN(denom, "/", 3)[1], nil
}

// FactoryValidator accepts factory denoms created by PoolManager.
type FactoryValidator struct {
	PoolManager string
}

// NewFactoryValidator returns a validator trusting denoms created by poolManager.
func NewFactoryValidator(poolManager string) FactoryValidator {
	return FactoryValidator{PoolManager: poolManager}
}

// ValidateLpDenom implements types.LpDenomValidator.
func (v FactoryValidator) ValidateLpDenom(denom string) error {
	creator, err := Creator(denom)
	if err != nil {
		return err
	}
	if creator != v.PoolManager {
		return fmt.Errorf("%w: %q was created by %s", types.ErrInvalidLpDenom, denom, creator)
	}
	return nil
}
