package model

import (
	"fmt"
	"strings"
)

// Kind selects one of the three parallel class hierarchies.
type Kind int

const (
	KindInterface Kind = iota
	KindRole
	KindSystemUnit

	kindCount = 3
)

// Kinds lists every hierarchy kind in canonical order.
var Kinds = [kindCount]Kind{KindInterface, KindRole, KindSystemUnit}

func (k Kind) String() string {
	switch k {
	case KindInterface:
		return "interface"
	case KindRole:
		return "role"
	case KindSystemUnit:
		return "system-unit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= KindInterface && k < kindCount
}

// ParseKind maps "interface", "role" or "system-unit" (also
// "system_unit" and "systemunit") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interface":
		return KindInterface, nil
	case "role":
		return KindRole, nil
	case "system-unit", "system_unit", "systemunit":
		return KindSystemUnit, nil
	default:
		return 0, fmt.Errorf("unknown hierarchy kind %q", s)
	}
}
