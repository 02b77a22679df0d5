package signalr

import (
	"strconv"
	"testing"
)

func TestIDGeneratorMonotonicAndDistinct(t *testing.T) {
	var g idGenerator
	seen := make(map[string]bool)
	prev := int64(0)
	for i := 0; i < 5; i++ {
		id := g.next()
		if seen[id] {
			t.Fatalf("id %q produced twice", id)
		}
		seen[id] = true
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.Fatalf("id %q is not an integer: %v", id, err)
		}
		if n <= prev {
			t.Fatalf("id %d is not strictly greater than previous %d", n, prev)
		}
		prev = n
	}
}
