// Command heapctl inspects board memory layouts and replays allocation
// scripts against the region heap.
package main

func main() {
	execute()
}
