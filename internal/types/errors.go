package types

import errorsmod "cosmossdk.io/errors"

// ModuleName is the error codespace and log module of the duel client.
const ModuleName = "duel"

// duel client sentinel errors.
var (
	ErrInvalidRequest     = errorsmod.Register(ModuleName, 2, "invalid request")
	ErrNotFound           = errorsmod.Register(ModuleName, 3, "card not found")
	ErrCapacityExceeded   = errorsmod.Register(ModuleName, 4, "selection capacity exceeded")
	ErrAlreadyPending     = errorsmod.Register(ModuleName, 5, "intent already pending")
	ErrNotYourTurn        = errorsmod.Register(ModuleName, 6, "not your turn")
	ErrSubmissionRejected = errorsmod.Register(ModuleName, 7, "submission rejected")
	ErrNoSigner           = errorsmod.Register(ModuleName, 8, "no signer available")
	ErrMatchNotFound      = errorsmod.Register(ModuleName, 9, "match not found")
	ErrAuthorityDesync    = errorsmod.Register(ModuleName, 10, "authority desync")
	ErrSessionReset       = errorsmod.Register(ModuleName, 11, "session reset")
)
