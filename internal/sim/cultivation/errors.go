package cultivation

import (
	"errors"

	"canopy.sim/internal/protocol"
)

// Sentinel errors for facility operations. Callers branch with errors.Is;
// the command layer maps them onto protocol result codes via errCode.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrWrongStage    = errors.New("wrong stage")
	ErrZoneProtected = errors.New("zone is protected")
	ErrCapacity      = errors.New("capacity reached")
)

func errCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrExists):
		return protocol.ErrExists
	case errors.Is(err, ErrWrongStage):
		return protocol.ErrWrongStage
	case errors.Is(err, ErrZoneProtected):
		return protocol.ErrZoneProtected
	case errors.Is(err, ErrCapacity):
		return protocol.ErrCapacity
	case errors.Is(err, ErrBadRequest):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
