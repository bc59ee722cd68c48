// Package heap is a capability-aware allocator spanning several memory
// regions.
//
// # Overview
//
// An Allocator owns an ordered table of regions. Each region has a
// capability mask (see package caps) and its own free-list heap
// (see heap/alloc). A request for n bytes with capabilities c is served by
// the first region in table order whose mask contains c:
//
//	cfg, err := layout.W800().Config()
//	if err != nil {
//	    return err
//	}
//	a, err := heap.New(cfg)
//	if err != nil {
//	    return err
//	}
//	p := a.Alloc(256, caps.Internal|caps.Shared)
//	if p.IsNil() {
//	    // no region could satisfy the request
//	}
//	buf := a.Bytes(p)
//	...
//	err = a.Free(p)
//
// A capability of 0 means caps.Default. Realloc with 0 keeps the
// capabilities the block was allocated with.
//
// # Deferred Regions
//
// Regions whose bounds are only known after a hardware probe (external
// SPI RAM) are declared Deferred. New marks them caps.Invalid and skips them;
// Append probes the region through Config.Prober, builds its heap and makes
// it available.
//
// # Diagnostics
//
// Config.Tracing records the allocation site of every block and keeps a list
// of live blocks for PrintTracing. Config.Poisoning stamps magic values that
// Free checks; a mismatch dumps the live-block table and region statistics to
// Config.Output before the Config.Assertions policy applies.
//
// # Thread Safety
//
// Every operation runs inside one critical section (Config.Lock) shared by
// all regions, so requests against different regions serialise. Nothing
// blocks waiting for memory: a request either succeeds or fails at once.
package heap
