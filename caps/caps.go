// Package caps defines the capability bitmask that describes what a memory
// region can be used for.
//
// A request is satisfied only by a region whose capabilities are a superset
// of the requested ones:
//
//	region.Contains(request) == (request & region == request)
package caps

import (
	"errors"
	"fmt"
	"strings"
)

// Caps is a set of capability flags.
type Caps uint32

const (
	// Default memory can be returned by a non-capability-specific allocation.
	Default Caps = 1 << 0
	// Internal memory does not disappear when the flash/SPI RAM cache is switched off.
	Internal Caps = 1 << 1
	// SPIRAM memory lives in external serial RAM.
	SPIRAM Caps = 1 << 2
	// Exec memory can run executable code.
	Exec Caps = 1 << 3
	// Shared memory can be accessed by DMA peripherals (WiFi, HSPI/SDIO slave).
	Shared Caps = 1 << 4

	// Invalid marks a region that cannot be used yet. Never requested by callers.
	Invalid Caps = 1 << 20
)

// ErrUnknown indicates a capability name that is not recognised.
var ErrUnknown = errors.New("caps: unknown capability")

var names = []struct {
	c    Caps
	name string
}{
	{Default, "DEFAULT"},
	{Internal, "INTERNAL"},
	{SPIRAM, "SPIRAM"},
	{Exec, "EXEC"},
	{Shared, "SHARED"},
	{Invalid, "INVALID"},
}

// Contains reports whether c holds every flag in req.
func (c Caps) Contains(req Caps) bool {
	return req&c == req
}

// Usable reports whether the Invalid sentinel is clear.
func (c Caps) Usable() bool {
	return c&Invalid == 0
}

// String renders c as NAME|NAME. Unknown bits are printed in hex.
func (c Caps) String() string {
	if c == 0 {
		return "0"
	}
	var parts []string
	rest := c
	for _, n := range names {
		if c&n.c != 0 {
			parts = append(parts, n.name)
			rest &^= n.c
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Parse accepts names separated by '|', ',' or whitespace, case-insensitive.
// The empty string parses to 0, which allocation treats as Default.
func Parse(s string) (Caps, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\t'
	})
	return ParseList(fields)
}

// ParseList parses each element as a single capability name and ORs them.
func ParseList(list []string) (Caps, error) {
	var c Caps
	for _, f := range list {
		v, ok := lookup(f)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknown, f)
		}
		c |= v
	}
	return c, nil
}

func lookup(name string) (Caps, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, n := range names {
		if n.name == name {
			return n.c, true
		}
	}
	return 0, false
}
