/*

This file contains the sentinel errors returned by every state transition.
Callers match them with errors.Is; the wrapped message carries the offending values.

*/

package types

import "errors"

// Category groups errors by how the caller is expected to react.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryNotFound      Category = "not_found"
	CategoryResourceLimit Category = "resource_limit"
	CategoryLifecycle     Category = "lifecycle"
	CategoryArithmetic    Category = "arithmetic"
	CategoryInternal      Category = "internal"
)

// Validation errors
var (
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidIdentifier        = errors.New("invalid identifier")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidUnlockingDuration = errors.New("invalid unlocking duration")
	ErrInvalidWeight            = errors.New("cannot compute weight")
	ErrInvalidLpDenom           = errors.New("lp denom not minted by the pool manager")
	ErrInvalidFarmAmount        = errors.New("farm amount below minimum")
	ErrFarmStartAfterEnd        = errors.New("farm start epoch must be before its end epoch")
	ErrFarmEndsInPast           = errors.New("farm end epoch must be after the current epoch")
	ErrFarmStartTooFar          = errors.New("farm start epoch is too far in the future")
	ErrFarmFeeMissing           = errors.New("farm creation fee was not sent")
	ErrFarmFeeNotPaid           = errors.New("farm creation fee was not fully paid")
	ErrAssetMismatch            = errors.New("funds do not match the expected assets")
	ErrPayment                  = errors.New("exactly one coin must be sent")
	ErrInvalidExpansionAmount   = errors.New("expansion amount must be a multiple of the emission rate")
	ErrInvalidParams            = errors.New("invalid parameters")
	ErrUnknownAction            = errors.New("unknown action")
)

// Authorization errors
var (
	ErrUnauthorized = errors.New("unauthorized")
)

// Not found errors
var (
	ErrFarmNotFound     = errors.New("farm not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrLpWeightNotFound = errors.New("lp weight not found")
)

// Resource limit errors
var (
	ErrTooManyFarms         = errors.New("too many active farms for lp denom")
	ErrMaxPositionsExceeded = errors.New("maximum number of positions per receiver reached")
)

// Lifecycle errors
var (
	ErrFarmAlreadyExists     = errors.New("farm already exists; use expand to add rewards")
	ErrFarmAlreadyExpired    = errors.New("farm already expired")
	ErrPositionAlreadyExists = errors.New("position already exists")
	ErrPositionAlreadyClosed = errors.New("position already closed")
	ErrPositionNotClosed     = errors.New("position is still open; close it before withdrawing")
	ErrPositionNotExpired    = errors.New("position has not expired yet; use an emergency unlock to withdraw now")
	ErrPendingRewards        = errors.New("pending rewards must be claimed first")
	ErrNoOpenPositions       = errors.New("no open positions")
)

// Arithmetic errors
var (
	ErrArithmetic = errors.New("arithmetic error")
)

var categories = []struct {
	category Category
	errs     []error
}{
	{CategoryValidation, []error{
		ErrInvalidAddress, ErrInvalidIdentifier, ErrInvalidAmount, ErrInvalidUnlockingDuration,
		ErrInvalidWeight, ErrInvalidLpDenom, ErrInvalidFarmAmount, ErrFarmStartAfterEnd,
		ErrFarmEndsInPast, ErrFarmStartTooFar, ErrFarmFeeMissing, ErrFarmFeeNotPaid,
		ErrAssetMismatch, ErrPayment, ErrInvalidExpansionAmount, ErrInvalidParams, ErrUnknownAction,
	}},
	{CategoryAuthorization, []error{ErrUnauthorized}},
	{CategoryNotFound, []error{ErrFarmNotFound, ErrPositionNotFound, ErrLpWeightNotFound}},
	{CategoryResourceLimit, []error{ErrTooManyFarms, ErrMaxPositionsExceeded}},
	{CategoryLifecycle, []error{
		ErrFarmAlreadyExists, ErrFarmAlreadyExpired, ErrPositionAlreadyExists, ErrPositionAlreadyClosed,
		ErrPositionNotClosed, ErrPositionNotExpired, ErrPendingRewards, ErrNoOpenPositions,
	}},
	{CategoryArithmetic, []error{ErrArithmetic}},
}

// ErrorCategory maps an error returned by the engine to its category.
// Errors not produced by the engine are reported as internal.
func ErrorCategory(err error) Category {
	for _, c := range categories {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.category
			}
		}
	}
	return CategoryInternal
}
