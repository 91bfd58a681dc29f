package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrEntityNotFound   = errors.New("entity not found or already claimed")
	ErrItemNotFound     = errors.New("item not found or already used")
	ErrNotEntityOwner   = errors.New("entity belongs to another player")
	ErrSpawnRefused     = errors.New("spawn refused: owner at capacity")
	ErrSpawnExhausted   = errors.New("spawn failed: position retry budget exhausted")
	ErrInvalidEnvelope  = errors.New("invalid message envelope")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsRejection reports whether an error is a claim/spawn rejection outcome
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrNotEntityOwner) ||
		errors.Is(err, ErrSpawnRefused) ||
		errors.Is(err, ErrSpawnExhausted)
}
