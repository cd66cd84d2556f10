package trapprocessor

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// Validation failures, wrapped by *ValidationError.
var (
	ErrCommunityMismatch  = errors.New("community mismatch")
	ErrUnsupportedVersion = errors.New("unsupported SNMP version")
)

// ValidationError reports why a decoded trap was rejected.
type ValidationError struct {
	Err     error
	Version snmppdu.Version
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrUnsupportedVersion) {
		return fmt.Sprintf("trap rejected: %v %s", e.Err, e.Version)
	}
	return "trap rejected: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks msg against the configured community and accepted
// versions. The community is compared byte for byte and checked first, so a
// wrong community is reported even when the version is also rejected.
func Validate(msg *snmppdu.TrapMessage, cfg ListenerConfig) error {
	if subtle.ConstantTimeCompare([]byte(msg.Community), []byte(cfg.Community)) != 1 {
		return &ValidationError{Err: ErrCommunityMismatch, Version: msg.Version}
	}
	if !cfg.Accepts(msg.Version) {
		return &ValidationError{Err: ErrUnsupportedVersion, Version: msg.Version}
	}
	return nil
}

// dropReason maps a validation error to its metrics label.
func dropReason(err error) string {
	if errors.Is(err, ErrUnsupportedVersion) {
		return DropVersion
	}
	return DropCommunity
}
