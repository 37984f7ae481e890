package utils

import (
	"fmt"
	"testing"
)

func TestHashIndexStaysInRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("msn_%03d", i)
		if got := HashIndex(id, 8); got < 0 || got >= 8 {
			t.Fatalf("%s: index %d out of range", id, got)
		}
	}
	if HashIndex("msn_001", 8) != HashIndex("msn_001", 8) {
		t.Fatalf("index not stable")
	}
	if HashIndex("anything", 0) != 0 {
		t.Fatalf("expected 0 for empty range")
	}
}
