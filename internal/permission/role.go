package permission

import "strings"

// Role is a permission bitmask. Bits, highest to lowest: read, write,
// manage. Higher-privilege constants include the lower bits, so a plain
// bitwise OR is both the union of abilities and the "more access wins"
// combination rule.
type Role uint32

const (
	RoleNone   Role = 0
	RoleRead   Role = 0b100
	RoleWrite  Role = 0b110
	RoleManage Role = 0b111
)

const (
	readBit   Role = 0b100
	writeBit  Role = 0b010
	manageBit Role = 0b001
)

// Combine returns the union of the abilities held by a and b.
func Combine(a, b Role) Role {
	return a | b
}

// Add layers extra on top of base. A local grant only ever adds privilege
// to what is inherited, never removes it.
func Add(base, extra Role) Role {
	return Combine(base, extra)
}

// HasRead reports whether the role allows reading.
func (r Role) HasRead() bool { return r&readBit != 0 }

// HasWrite reports whether the role allows writing.
func (r Role) HasWrite() bool { return r&writeBit != 0 }

// HasManage reports whether the role allows managing collaborators.
func (r Role) HasManage() bool { return r&manageBit != 0 }

// String renders the canonical name of the role, or its bit pattern for
// non-canonical values.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleManage:
		return "manage"
	}
	var parts []string
	if r.HasRead() {
		parts = append(parts, "read")
	}
	if r.HasWrite() {
		parts = append(parts, "write")
	}
	if r.HasManage() {
		parts = append(parts, "manage")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ParseRole maps a canonical role name to its value.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "none":
		return RoleNone, true
	case "read":
		return RoleRead, true
	case "write":
		return RoleWrite, true
	case "manage":
		return RoleManage, true
	}
	return RoleNone, false
}

// Effective is the outcome of evaluating an actor against a resource.
// IsOwner is tracked outside the bitmask: the resource owner and the team
// owner hold every ability regardless of stored rows.
type Effective struct {
	Role    Role
	IsOwner bool
}

// HasRead reports whether the effective permission allows reading.
func (e Effective) HasRead() bool { return e.IsOwner || e.Role.HasRead() }

// HasWrite reports whether the effective permission allows writing.
func (e Effective) HasWrite() bool { return e.IsOwner || e.Role.HasWrite() }

// HasManage reports whether the effective permission allows managing.
func (e Effective) HasManage() bool { return e.IsOwner || e.Role.HasManage() }

// MaxRole returns the role component including the owner override.
func (e Effective) MaxRole() Role {
	if e.IsOwner {
		return RoleManage
	}
	return e.Role
}
