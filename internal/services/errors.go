// Package services defines the business logic for card generation, the
// ownership lifecycle, the museum ledger, and the eligibility gate. This
// file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates the referenced conversation does not
	// exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("card not found")

	// ErrAlreadyGenerated is returned alongside the existing card when a
	// generation attempt finds one already persisted for the conversation.
	// It is recoverable by design: callers use the returned card.
	ErrAlreadyGenerated = errors.New("card already generated for conversation")

	// ErrNotEligible indicates the conversation has not crossed the
	// generation threshold yet.
	ErrNotEligible = errors.New("conversation not eligible for card generation")

	// ErrNotParticipant is returned when a user acts on a card whose
	// conversation they do not belong to.
	ErrNotParticipant = errors.New("user is not a conversation participant")

	// ErrNotOffered indicates the card has no claim window yet.
	ErrNotOffered = errors.New("card has not been offered")

	// ErrClaimClosed indicates the claim deadline has passed; the card
	// resolves (or has resolved) to the vault instead.
	ErrClaimClosed = errors.New("claim window closed")

	// ErrCardBurned indicates the card is in the terminal burned state and
	// accepts no further ownership transitions.
	ErrCardBurned = errors.New("card is burned")

	// ErrNoActiveOwner indicates an operation that requires a resolved owner
	// found none.
	ErrNoActiveOwner = errors.New("card has no active owner")

	// ErrVaultUnconfigured is the operational misconfiguration error: the
	// default transition cannot run without a vault identity. It blocks only
	// defaulting; the card stays unresolved and the condition is logged
	// loudly.
	ErrVaultUnconfigured = errors.New("vault owner is not configured")

	// ErrInvalidVisibility indicates a museum transition that the visibility
	// lattice forbids.
	ErrInvalidVisibility = errors.New("invalid visibility transition")

	// ErrInvalidMessageType is returned for message types outside the known
	// set.
	ErrInvalidMessageType = errors.New("message type must be text, voice, or image")

	// ErrEmptyContent is returned when a message has no content.
	ErrEmptyContent = errors.New("message content is empty")
)
