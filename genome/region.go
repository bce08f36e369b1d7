// octopus: a haplotype-based variant caller for short-read sequencing data.
// Copyright (c) 2026 Gregory Magoon.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/gmagoon/octopus/blob/master/LICENSE.txt>.

package genome

import (
	"fmt"
	"log"
)

// A Region is a half-open interval [Begin, End) on a contig, with
// zero-based coordinates. Empty regions (Begin == End) are legal and
// represent insertion sites.
type Region struct {
	Contig     string
	Begin, End int32
}

// NewRegion creates a Region, panicking on a negative size.
func NewRegion(contig string, begin, end int32) Region {
	if begin > end {
		log.Panicf("invalid region %v:%v-%v", contig, begin, end)
	}
	return Region{Contig: contig, Begin: begin, End: end}
}

func (r Region) String() string {
	return fmt.Sprintf("%v:%v-%v", r.Contig, r.Begin, r.End)
}

// Size returns the number of reference positions the region covers.
func (r Region) Size() int32 {
	return r.End - r.Begin
}

// IsEmpty returns true for insertion sites.
func (r Region) IsEmpty() bool {
	return r.Begin == r.End
}

// Overlaps returns true if the two regions share a contig and at
// least one position. An empty region overlaps a region that
// contains its insertion point.
func (r Region) Overlaps(other Region) bool {
	if r.Contig != other.Contig {
		return false
	}
	if r.IsEmpty() || other.IsEmpty() {
		return r.Begin <= other.End && other.Begin <= r.End
	}
	return r.Begin < other.End && other.Begin < r.End
}

// Contains returns true if other lies fully within r.
func (r Region) Contains(other Region) bool {
	return r.Contig == other.Contig && r.Begin <= other.Begin && other.End <= r.End
}

// IsBefore returns true if r ends at or before other begins, on the
// same contig.
func (r Region) IsBefore(other Region) bool {
	return r.Contig == other.Contig && r.End <= other.Begin
}

// Span returns the smallest region encompassing both arguments,
// which must share a contig.
func (r Region) Span(other Region) Region {
	if r.Contig != other.Contig {
		log.Panicf("span of regions on different contigs %v and %v", r, other)
	}
	result := r
	if other.Begin < result.Begin {
		result.Begin = other.Begin
	}
	if other.End > result.End {
		result.End = other.End
	}
	return result
}

// Intersect returns the overlap of both regions, which must share a
// contig. The result may be empty.
func (r Region) Intersect(other Region) Region {
	if r.Contig != other.Contig {
		log.Panicf("intersection of regions on different contigs %v and %v", r, other)
	}
	begin := maxInt32(r.Begin, other.Begin)
	end := minInt32(r.End, other.End)
	if end < begin {
		end = begin
	}
	return Region{Contig: r.Contig, Begin: begin, End: end}
}

// Expand grows the region by the given number of positions on both
// sides, clamping Begin at zero.
func (r Region) Expand(n int32) Region {
	begin := r.Begin - n
	if begin < 0 {
		begin = 0
	}
	return Region{Contig: r.Contig, Begin: begin, End: r.End + n}
}

// RegionLess is the total order on regions for a fixed contig order:
// by contig index, then Begin, then End.
func RegionLess(contigIndex map[string]int32, r1, r2 Region) bool {
	i1, i2 := contigIndex[r1.Contig], contigIndex[r2.Contig]
	switch {
	case i1 < i2:
		return true
	case i1 > i2:
		return false
	case r1.Begin < r2.Begin:
		return true
	case r1.Begin > r2.Begin:
		return false
	default:
		return r1.End < r2.End
	}
}

func minInt32(x, y int32) int32 {
	if x < y {
		return x
	}
	return y
}

func maxInt32(x, y int32) int32 {
	if x > y {
		return x
	}
	return y
}
