package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap"
	"github.com/joshuapare/wmheap/layout"
)

var errUsage = errors.New("usage")

// session replays an allocation script against one allocator. Pointers are
// bound to names so later lines can refer to them.
type session struct {
	a    *heap.Allocator
	out  io.Writer
	vars map[string]heap.Ptr
}

func newSession(a *heap.Allocator, out io.Writer) *session {
	return &session{a: a, out: out, vars: make(map[string]heap.Ptr)}
}

// run executes every line of r. With keepGoing false it stops at the first
// failing line.
func (s *session) run(r io.Reader, name string, keepGoing bool) (failed int, err error) {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if lerr := s.exec(sc.Text(), name, n); lerr != nil {
			failed++
			lerr = fmt.Errorf("%s:%d: %w", name, n, lerr)
			if !keepGoing {
				return failed, lerr
			}
			fmt.Fprintf(s.out, "%v\n", lerr)
		}
	}
	return failed, sc.Err()
}

// exec runs one script line. Blank lines and # comments are ignored.
func (s *session) exec(line, file string, n int) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	verb, args := args[0], args[1:]

	switch verb {
	case "alloc":
		// alloc NAME SIZE [CAPS]
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: alloc NAME SIZE [CAPS]", errUsage)
		}
		size, c, err := sizeAndCaps(args[1:])
		if err != nil {
			return err
		}
		p := s.a.AllocAt(size, c, file, n)
		s.bind(args[0], p)
		return nil

	case "realloc":
		// realloc NAME SIZE [CAPS]
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: realloc NAME SIZE [CAPS]", errUsage)
		}
		old, err := s.ptr(args[0])
		if err != nil {
			return err
		}
		size, c, err := sizeAndCaps(args[1:])
		if err != nil {
			return err
		}
		p := s.a.ReallocAt(old, size, c, file, n)
		if p.IsNil() && size != 0 {
			// The old block is intact; the binding stays.
			return fmt.Errorf("%w: realloc %s to %d bytes, kept %v", heap.ErrNoMemory, args[0], size, old)
		}
		s.bind(args[0], p)
		return nil

	case "free":
		// free NAME
		if len(args) != 1 {
			return fmt.Errorf("%w: free NAME", errUsage)
		}
		p, err := s.ptr(args[0])
		if err != nil {
			return err
		}
		delete(s.vars, args[0])
		return s.a.Free(p)

	case "write":
		// write NAME TEXT [OFFSET]
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: write NAME TEXT [OFFSET]", errUsage)
		}
		p, err := s.ptr(args[0])
		if err != nil {
			return err
		}
		off := 0
		if len(args) == 3 {
			o, err := layout.ParseSize(args[2])
			if err != nil {
				return err
			}
			off = int(o)
		}
		b := s.a.Bytes(p)
		if b == nil {
			return fmt.Errorf("%s: %v is not allocated", args[0], p)
		}
		// Writes may run past the payload into the trailer, as a buggy
		// caller would.
		room := b[:cap(b)]
		if off+len(args[1]) > len(room) {
			return fmt.Errorf("%s: write of %d bytes at %d past the block end", args[0], len(args[1]), off)
		}
		copy(room[off:], args[1])
		return nil

	case "append":
		// append REGION
		if len(args) != 1 {
			return fmt.Errorf("%w: append REGION", errUsage)
		}
		return s.a.Append(args[0])

	case "stats":
		s.a.PrintStats()
		return nil

	case "trace":
		// trace [NAME]
		var p heap.Ptr
		if len(args) == 1 {
			if p, err = s.ptr(args[0]); err != nil {
				return err
			}
		}
		s.a.PrintTracing(p)
		return nil

	case "check":
		if err := s.a.Check(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "ok")
		return nil
	}
	return fmt.Errorf("unknown command %q", verb)
}

func (s *session) bind(name string, p heap.Ptr) {
	if p.IsNil() {
		delete(s.vars, name)
	} else {
		s.vars[name] = p
	}
	where := ""
	if r, ok := s.a.RegionOf(p); ok {
		where = " in " + r
	}
	fmt.Fprintf(s.out, "%s = %v%s\n", name, p, where)
}

func (s *session) ptr(name string) (heap.Ptr, error) {
	p, ok := s.vars[name]
	if !ok {
		return 0, fmt.Errorf("%s is not bound", name)
	}
	return p, nil
}

func sizeAndCaps(args []string) (int, caps.Caps, error) {
	size, err := layout.ParseSize(args[0])
	if err != nil {
		return 0, 0, err
	}
	var c caps.Caps
	if len(args) > 1 && args[1] != "0" {
		if c, err = caps.Parse(strings.ToUpper(args[1])); err != nil {
			return 0, 0, err
		}
	}
	return int(size), c, nil
}
