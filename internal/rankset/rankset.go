// Package rankset is a counting set over the integers [0,n), n a power of two,
// with O(log n) insert, remove and k-th smallest queries.
//
// Level k holds one counter per aligned block of 2^k values; the single
// counter at the top level is the set size. A parent counter always equals the
// sum of its two children.
package rankset

import (
	"fmt"
	"math/bits"
)

// Set is an order-statistics multiset over [0,n).
type Set struct {
	n      int
	levels int
	count  [][]int
}

// New returns a set over [0,n). If full is true every value starts present.
func New(n int, full bool) (*Set, error) {
	if n <= 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("rankset: domain size %d is not a power of two", n)
	}
	levels := bits.Len(uint(n)) - 1
	s := &Set{n: n, levels: levels, count: make([][]int, levels+1)}
	for level := range s.count {
		s.count[level] = make([]int, n>>level)
		if full {
			for i := range s.count[level] {
				s.count[level][i] = 1 << level
			}
		}
	}
	return s, nil
}

// Size returns the domain size n.
func (s *Set) Size() int { return s.n }

// Add inserts v.
func (s *Set) Add(v int) {
	for level := s.levels; level >= 0; level-- {
		s.count[level][v>>level]++
	}
}

// Remove deletes one occurrence of v. Removing an absent value corrupts the
// counts; callers track membership.
func (s *Set) Remove(v int) {
	for level := s.levels; level >= 0; level-- {
		s.count[level][v>>level]--
	}
}

// Contains reports whether v is present.
func (s *Set) Contains(v int) bool {
	return v >= 0 && v < s.n && s.count[0][v] > 0
}

// Total returns the number of elements present.
func (s *Set) Total() int {
	return s.count[s.levels][0]
}

// Kth returns the k-th smallest element, 0-based. k must be in [0,Total()).
func (s *Set) Kth(k int) int {
	index := 0
	for level := s.levels - 1; level >= 0; level-- {
		index <<= 1
		if left := s.count[level][index]; k >= left {
			k -= left
			index++
		}
	}
	return index
}

// Elements returns all present elements in ascending order.
func (s *Set) Elements() []int {
	out := make([]int, s.Total())
	for k := range out {
		out[k] = s.Kth(k)
	}
	return out
}
