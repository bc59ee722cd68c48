package heap

import "github.com/joshuapare/wmheap/heap/alloc"

// usedList is the intrusive list of live blocks kept when tracing is on. It
// threads through the next field of allocated block headers, newest first.
// The totals live in the list head so reporting them is O(1).
type usedList struct {
	head  uint32 // header address of the newest live block, 0 when empty
	bytes uint64
	count int
}

func (l *usedList) push(h *alloc.Heap, addr uint32, size uint64) {
	h.SetLink(addr, l.head)
	l.head = addr
	l.bytes += size
	l.count++
}

// remove unlinks the block at addr. It scans from the head; frees are rare
// enough in debug builds for that to be acceptable.
func (l *usedList) remove(a *Allocator, addr uint32) bool {
	prev := uint32(0)
	for cur := l.head; cur != 0; {
		r := a.regionOf(cur)
		if r == nil {
			return false
		}
		next := r.heap.Link(cur)
		if cur == addr {
			if prev == 0 {
				l.head = next
			} else {
				a.regionOf(prev).heap.SetLink(prev, next)
			}
			r.heap.SetLink(cur, 0)
			if hdr, err := r.heap.Header(cur); err == nil {
				l.bytes -= uint64(hdr.Size)
			}
			l.count--
			return true
		}
		prev, cur = cur, next
	}
	return false
}

// each calls fn for every live block, newest first.
func (l *usedList) each(a *Allocator, fn func(r *region, b alloc.Block) bool) {
	hdrSize := a.layout.HeaderSize()
	for cur, n := l.head, 0; cur != 0 && n <= l.count; n++ {
		r := a.regionOf(cur)
		if r == nil {
			return
		}
		hdr, err := r.heap.Header(cur)
		if err != nil {
			return
		}
		if !fn(r, alloc.Block{Header: hdr, Addr: cur, Payload: cur + hdrSize}) {
			return
		}
		cur = hdr.Next
	}
}

// siteTable interns allocation-site file names. Index 0 means unknown.
type siteTable struct {
	names []string
	index map[string]uint32
}

func (s *siteTable) intern(file string) uint32 {
	if file == "" {
		return 0
	}
	if id, ok := s.index[file]; ok {
		return id
	}
	if s.index == nil {
		s.index = make(map[string]uint32)
	}
	s.names = append(s.names, file)
	id := uint32(len(s.names))
	s.index[file] = id
	return id
}

func (s *siteTable) name(id uint32) string {
	if id == 0 || int(id) > len(s.names) {
		return "?"
	}
	return s.names[id-1]
}
