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
	"log"
	"sort"
	"strings"
)

// A Haplotype is a sequence of non-overlapping alleles spanning a
// contiguous region, materialised into an explicit nucleotide
// sequence. Gaps between alleles are filled with reference bases.
// Two haplotypes are equal iff their materialised sequences over
// their common region are equal.
type Haplotype struct {
	Region   Region
	Alleles  []Allele // sorted by region, non-overlapping
	Sequence string
}

// NewHaplotype materialises a haplotype spanning region from the
// given alleles. Alleles are sorted by region; adjacent alleles must
// not overlap; every allele must lie within region.
func NewHaplotype(region Region, alleles []Allele, ref Reference) *Haplotype {
	sorted := make([]Allele, len(alleles))
	copy(sorted, alleles)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Region.Begin != sorted[j].Region.Begin {
			return sorted[i].Region.Begin < sorted[j].Region.Begin
		}
		return sorted[i].Region.End < sorted[j].Region.End
	})

	var sequence strings.Builder
	pos := region.Begin
	for _, a := range sorted {
		if !region.Contains(a.Region) {
			log.Panicf("allele %v outside haplotype region %v", a.Region, region)
		}
		if a.Region.Begin < pos {
			log.Panicf("overlapping alleles in haplotype at %v", a.Region)
		}
		if a.Region.Begin > pos {
			sequence.WriteString(ref.Slice(Region{Contig: region.Contig, Begin: pos, End: a.Region.Begin}))
		}
		sequence.WriteString(a.Sequence)
		pos = a.Region.End
	}
	if pos < region.End {
		sequence.WriteString(ref.Slice(Region{Contig: region.Contig, Begin: pos, End: region.End}))
	}

	return &Haplotype{
		Region:   region,
		Alleles:  sorted,
		Sequence: sequence.String(),
	}
}

// Contains reports whether the haplotype carries the given allele,
// either explicitly or as part of its implicit reference fill.
func (h *Haplotype) Contains(a Allele, ref Reference) bool {
	for _, ha := range h.Alleles {
		if ha == a {
			return true
		}
		if ha.Region.Overlaps(a.Region) {
			return false
		}
	}
	if !h.Region.Contains(a.Region) {
		return false
	}
	return a.IsReference(ref)
}

// An ID is an index into a haplotype Arena. Genotypes hold IDs rather
// than haplotype pointers, so that equality and hashing stay cheap
// while the haplotypes themselves are shared.
type ID int32

// An Arena owns the haplotypes of one active sub-region, deduplicated
// by materialised sequence. The arena grows monotonically and is
// dropped at the sub-region boundary.
type Arena struct {
	haplotypes []*Haplotype
	index      map[string]ID
}

// NewArena creates an empty haplotype arena.
func NewArena() *Arena {
	return &Arena{index: make(map[string]ID)}
}

// Add stores a haplotype and returns its ID. A haplotype with an
// already-present sequence is not stored again.
func (arena *Arena) Add(h *Haplotype) ID {
	if id, ok := arena.index[h.Sequence]; ok {
		return id
	}
	id := ID(len(arena.haplotypes))
	arena.haplotypes = append(arena.haplotypes, h)
	arena.index[h.Sequence] = id
	return id
}

// Get returns the haplotype with the given ID.
func (arena *Arena) Get(id ID) *Haplotype {
	return arena.haplotypes[id]
}

// Len returns the number of distinct haplotypes in the arena.
func (arena *Arena) Len() int {
	return len(arena.haplotypes)
}

// IDs returns all arena IDs in insertion order.
func (arena *Arena) IDs() []ID {
	ids := make([]ID, len(arena.haplotypes))
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}
