package messaging

import (
	"fmt"
	"strings"
)

// Role is the process role in a session.
type Role int32

const (
	RoleUnconnected Role = iota
	RoleHost
	RoleObserver
)

func (r Role) String() string {
	switch r {
	case RoleUnconnected:
		return "unconnected"
	case RoleHost:
		return "host"
	case RoleObserver:
		return "observer"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

// ParseRole parses a role name as used in configuration.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unconnected", "single":
		return RoleUnconnected, nil
	case "host":
		return RoleHost, nil
	case "observer", "client":
		return RoleObserver, nil
	default:
		return RoleUnconnected, fmt.Errorf("unknown role %q", s)
	}
}
