package arenaproto

const (
	// Handshake/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Subscribe payload.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrBadPacing  = "E_BAD_PACING"
	ErrBadProfile = "E_BAD_PROFILE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrBadPacing:       {},
	ErrBadProfile:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
