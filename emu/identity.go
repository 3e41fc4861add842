// Package emu provides the dual-core ARM execution engine.
package emu

import (
	"errors"
	"fmt"
	"strings"
)

// Identity distinguishes the two cores of the complex.
type Identity uint8

// Core identities.
const (
	CoreA Identity = 0 // ARMv5 class
	CoreB Identity = 1 // ARMv4T class
)

func (id Identity) String() string {
	switch id {
	case CoreA:
		return "a"
	case CoreB:
		return "b"
	}
	return fmt.Sprintf("core(%d)", uint8(id))
}

// ErrUnknownIdentity is returned when a core name cannot be parsed.
var ErrUnknownIdentity = errors.New("unknown core identity")

// ParseIdentity accepts "a"/"b" in any case and "0"/"1".
func ParseIdentity(s string) (Identity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "0":
		return CoreA, nil
	case "b", "1":
		return CoreB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownIdentity, s)
}

// Other returns the identity of the opposite core.
func (id Identity) Other() Identity {
	return id ^ 1
}

// UndefinedRoute selects how a core resolves an undefined instruction.
type UndefinedRoute string

// Undefined-instruction routes.
const (
	// RouteVectorSelect raises the exception on the target core when the
	// raising core's vector base being non-zero differs from it being the
	// target; otherwise the machine halts.
	RouteVectorSelect UndefinedRoute = "vector-select"

	// RouteRedirect always raises the exception on the target core.
	RouteRedirect UndefinedRoute = "redirect"

	// RouteHalt always halts the machine.
	RouteHalt UndefinedRoute = "halt"
)

// Valid reports whether r is a known route.
func (r UndefinedRoute) Valid() bool {
	switch r {
	case RouteVectorSelect, RouteRedirect, RouteHalt:
		return true
	}
	return false
}

// CoreConfig carries the identity-specific hardware constants of a core.
type CoreConfig struct {
	// ARMv5 enables ARMv5 behavior: load-to-PC interworking and the
	// unconditional instruction space under condition 0xF.
	ARMv5 bool

	// VectorBase is the exception vector base on reset.
	VectorBase uint32

	// WideThumbFetch makes compact-mode fetches read a whole word, so the
	// second halfword of an aligned pair costs nothing.
	WideThumbFetch bool

	// UndefinedRoute and UndefinedTarget decide where undefined
	// instructions are handled.
	UndefinedRoute  UndefinedRoute
	UndefinedTarget Identity
}

// DefaultCoreConfig returns the reference hardware constants for id.
func DefaultCoreConfig(id Identity) CoreConfig {
	if id == CoreA {
		return CoreConfig{
			ARMv5:           true,
			VectorBase:      0xFFFF0000,
			WideThumbFetch:  true,
			UndefinedRoute:  RouteVectorSelect,
			UndefinedTarget: CoreA,
		}
	}
	return CoreConfig{
		UndefinedRoute:  RouteVectorSelect,
		UndefinedTarget: CoreA,
	}
}
