package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionExists    = errors.New("auction already exists")
	ErrNoBids           = errors.New("no bids found for auction")
	ErrBidderNoAuctions = errors.New("bidder has not placed any bids")
	ErrCommitConflict   = errors.New("concurrent commit conflict")
)

// business logic errors
var (
	ErrInvalidBid               = errors.New("invalid bid")
	ErrInvalidAuction           = errors.New("invalid auction")
	ErrValidationRejected       = errors.New("bid rejected by validation")
	ErrBidTooLow                = errors.New("bid amount too low")
	ErrAuctionNotActive         = errors.New("auction is not active")
	ErrInvalidTransition        = errors.New("invalid auction state transition")
	ErrForbidden                = errors.New("operation not permitted")
	ErrTransientFailure         = errors.New("transient failure, resubmit")
	ErrEngineInvariantViolation = errors.New("engine invariant violation")
)

// RejectionReason identifies why the validator refused a bid
type RejectionReason string

const (
	ReasonAmountNotPositive RejectionReason = "amount_not_positive"
	ReasonBelowMinimum      RejectionReason = "below_minimum"
	ReasonMissingMaxAmount  RejectionReason = "missing_max_amount"
	ReasonMaxBelowAmount    RejectionReason = "max_below_amount"
	ReasonUnexpectedMax     RejectionReason = "unexpected_max_amount"
	ReasonUnknownKind       RejectionReason = "unknown_bid_kind"
	ReasonSellerBid         RejectionReason = "seller_cannot_bid"
	ReasonBidderRejected    RejectionReason = "bidder_rejected"
	ReasonRejectedBySeller  RejectionReason = "rejected_by_seller"
	ReasonMissingBidder     RejectionReason = "missing_bidder"
)

// RejectionError is returned when a bid fails validation. It matches
// ErrValidationRejected, and ErrBidTooLow for ReasonBelowMinimum.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrValidationRejected, e.Reason)
	}
	return fmt.Sprintf("%s: %s - %s", ErrValidationRejected, e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return ErrValidationRejected
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrBidTooLow && e.Reason == ReasonBelowMinimum
}

// Reject builds a RejectionError
func Reject(reason RejectionReason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
