package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotFound      = "E_NOT_FOUND"
	ErrExists        = "E_EXISTS"
	ErrWrongStage    = "E_WRONG_STAGE"
	ErrZoneProtected = "E_ZONE_PROTECTED"
	ErrCapacity      = "E_CAPACITY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrExists:          {},
	ErrWrongStage:      {},
	ErrZoneProtected:   {},
	ErrCapacity:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
