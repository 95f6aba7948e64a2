package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	unixSetuid = 04000
	unixSetgid = 02000
	unixSticky = 01000
)

var classShift = map[byte]uint{'u': 6, 'g': 3, 'o': 0}

// ToUnixMode converts a Go file mode to the chmod(2) bit layout.
func ToUnixMode(m os.FileMode) uint32 {
	bits := uint32(m.Perm())
	if m&os.ModeSetuid != 0 {
		bits |= unixSetuid
	}
	if m&os.ModeSetgid != 0 {
		bits |= unixSetgid
	}
	if m&os.ModeSticky != 0 {
		bits |= unixSticky
	}
	return bits
}

// FromUnixMode converts chmod(2) bits to a Go file mode.
func FromUnixMode(bits uint32) os.FileMode {
	m := os.FileMode(bits & 0777)
	if bits&unixSetuid != 0 {
		m |= os.ModeSetuid
	}
	if bits&unixSetgid != 0 {
		m |= os.ModeSetgid
	}
	if bits&unixSticky != 0 {
		m |= os.ModeSticky
	}
	return m
}

// ParseFileMode accepts an octal mode ("0755") or a comma separated list of
// symbolic clauses ("a=rX,u+w") applied on top of current. X grants execute
// only for directories or when some execute bit is already set.
func ParseFileMode(modeStr string, current os.FileMode, isDir bool) (os.FileMode, error) {
	modeStr = strings.TrimSpace(modeStr)
	if modeStr == "" {
		return 0, fmt.Errorf("empty file mode")
	}
	if mode, err := strconv.ParseUint(modeStr, 8, 32); err == nil {
		if mode > 07777 {
			return 0, fmt.Errorf("invalid file mode string: %q", modeStr)
		}
		return FromUnixMode(uint32(mode)), nil
	}

	bits := ToUnixMode(current)
	for _, clause := range strings.Split(modeStr, ",") {
		var err error
		bits, err = applyModeClause(clause, bits, isDir)
		if err != nil {
			return 0, fmt.Errorf("invalid file mode string %q: %w", modeStr, err)
		}
	}
	return FromUnixMode(bits), nil
}

func applyModeClause(clause string, mode uint32, isDir bool) (uint32, error) {
	i := 0
	var who []byte
	for i < len(clause) && strings.IndexByte("ugoa", clause[i]) >= 0 {
		if clause[i] == 'a' {
			who = append(who, 'u', 'g', 'o')
		} else {
			who = append(who, clause[i])
		}
		i++
	}
	if len(who) == 0 {
		who = []byte{'u', 'g', 'o'}
	}
	if i >= len(clause) {
		return 0, fmt.Errorf("clause %q has no operator", clause)
	}

	for i < len(clause) {
		op := clause[i]
		if strings.IndexByte("+-=", op) < 0 {
			return 0, fmt.Errorf("unexpected %q in clause %q", clause[i], clause)
		}
		i++

		var triplet uint32
		var setid, sticky bool
		for i < len(clause) && strings.IndexByte("+-=", clause[i]) < 0 {
			switch c := clause[i]; c {
			case 'r':
				triplet |= 4
			case 'w':
				triplet |= 2
			case 'x':
				triplet |= 1
			case 'X':
				if isDir || mode&0111 != 0 {
					triplet |= 1
				}
			case 's':
				setid = true
			case 't':
				sticky = true
			case 'u', 'g', 'o':
				triplet |= (mode >> classShift[c]) & 7
			default:
				return 0, fmt.Errorf("unknown permission %q in clause %q", c, clause)
			}
			i++
		}

		var bits, mask uint32
		for _, w := range who {
			bits |= triplet << classShift[w]
			mask |= 7 << classShift[w]
			switch w {
			case 'u':
				mask |= unixSetuid
				if setid {
					bits |= unixSetuid
				}
			case 'g':
				mask |= unixSetgid
				if setid {
					bits |= unixSetgid
				}
			case 'o':
				mask |= unixSticky
				if sticky {
					bits |= unixSticky
				}
			}
		}

		switch op {
		case '+':
			mode |= bits
		case '-':
			mode &^= bits
		case '=':
			mode = mode&^mask | bits
		}
	}
	return mode, nil
}
