package utils

import "hash/fnv"

// HashIndex maps s onto [0, n) with FNV-1a. It returns 0 when n <= 0.
func HashIndex(s string, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(n))
}
