package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"
)

// Addr is a 32-bit address. In YAML it is written as an integer or as a
// string with a 0x prefix.
type Addr uint32

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Addr) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: address must be a scalar", ErrInvalid, n.Line)
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(n.Value, "_", ""), 0, 32)
	if err != nil {
		return fmt.Errorf("%w: line %d: address %q: %w", ErrInvalid, n.Line, n.Value, err)
	}
	*a = Addr(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (a Addr) MarshalYAML() (any, error) {
	return fmt.Sprintf("0x%08x", uint32(a)), nil
}

func (a Addr) String() string { return fmt.Sprintf("0x%08x", uint32(a)) }

// Size is a byte count. In YAML it is written as an integer or as a
// human-readable size such as 160KB or 8MB (binary units).
type Size uint32

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: size must be a scalar", ErrInvalid, n.Line)
	}
	v, err := ParseSize(n.Value)
	if err != nil {
		return fmt.Errorf("%w: line %d: %w", ErrInvalid, n.Line, err)
	}
	*s = v
	return nil
}

// MarshalYAML implements yaml.Marshaler. Sizes that are a whole number of
// KB or MB are written with that unit, everything else as an integer.
func (s Size) MarshalYAML() (any, error) {
	switch {
	case s != 0 && s%(1<<20) == 0:
		return fmt.Sprintf("%dMB", s>>20), nil
	case s != 0 && s%(1<<10) == 0:
		return fmt.Sprintf("%dKB", s>>10), nil
	}
	return uint32(s), nil
}

func (s Size) String() string { return bytesize.New(float64(s)).String() }

// ParseSize parses a plain or 0x-prefixed integer, or a bytesize string.
func ParseSize(v string) (Size, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseUint(strings.ReplaceAll(v, "_", ""), 0, 32); err == nil {
		return Size(n), nil
	}
	b, err := bytesize.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("size %q: %w", v, err)
	}
	if uint64(b) > math.MaxUint32 {
		return 0, fmt.Errorf("size %q out of range", v)
	}
	return Size(b), nil
}
