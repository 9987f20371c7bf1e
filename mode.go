package latch

// Mode is the access level requested on a lockable scope.
type Mode int

const (
	// ModeNone means no access is held or requested.
	ModeNone Mode = iota
	// ModeShared admits any number of concurrent shared holders.
	ModeShared
	// ModeUpgradable is shared access that reserves the right to upgrade to
	// exclusive. At most one upgradable holder exists at a time; it coexists
	// with shared holders.
	ModeUpgradable
	// ModeExclusive excludes every other holder.
	ModeExclusive
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeShared:
		return "shared"
	case ModeUpgradable:
		return "upgradable"
	case ModeExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// Compatible reports whether two holders in modes a and b may hold the same
// scope at the same time. ModeNone is compatible with everything; exclusive
// with nothing; two upgradable holders exclude each other.
func Compatible(a, b Mode) bool {
	if a == ModeNone || b == ModeNone {
		return true
	}
	if a == ModeExclusive || b == ModeExclusive {
		return false
	}
	if a == ModeUpgradable && b == ModeUpgradable {
		return false
	}
	return true
}

// Covers reports whether holding mode a satisfies a requirement for mode b
// in the lattice order None < Shared < Upgradable < Exclusive.
func Covers(a, b Mode) bool {
	return a >= b
}
