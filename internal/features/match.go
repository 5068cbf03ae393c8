// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package features

import (
	"math"
	"sort"
)

// A match between feature A of the first set and feature B of the second
type Pair struct {
	A, B int
	Dist int // Hamming distance of the descriptors
}

// Brute-force matches two feature sets by Hamming distance, keeping only mutual best matches.
// Results are stably sorted by ascending distance
func Match(as, bs []Feature) []Pair {
	if len(as) == 0 || len(bs) == 0 {
		return nil
	}
	bestForA := make([]Pair, len(as))
	bestForB := make([]Pair, len(bs))
	for j := range bestForB {
		bestForB[j] = Pair{A: -1, B: j, Dist: math.MaxInt32}
	}
	for i, a := range as {
		best := Pair{A: i, B: -1, Dist: math.MaxInt32}
		for j, b := range bs {
			d := a.Desc.Hamming(b.Desc)
			if d < best.Dist {
				best.B, best.Dist = j, d
			}
			if d < bestForB[j].Dist {
				bestForB[j].A, bestForB[j].Dist = i, d
			}
		}
		bestForA[i] = best
	}

	pairs := []Pair{}
	for _, p := range bestForA {
		if p.B >= 0 && bestForB[p.B].A == p.A {
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Dist < pairs[j].Dist })
	return pairs
}
