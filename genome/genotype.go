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
)

// A Genotype is a multiset of haplotypes of fixed cardinality
// (the ploidy), represented as a sorted slice of arena IDs.
type Genotype struct {
	ids []ID
}

// NewGenotype creates a genotype from the given (possibly unsorted)
// haplotype IDs.
func NewGenotype(ids ...ID) Genotype {
	if len(ids) == 0 {
		log.Panic("genotype with ploidy 0")
	}
	sorted := make([]ID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return Genotype{ids: sorted}
}

// Ploidy returns the cardinality of the genotype multiset.
func (g Genotype) Ploidy() int {
	return len(g.ids)
}

// IDs returns the sorted haplotype IDs. The slice must not be
// modified.
func (g Genotype) IDs() []ID {
	return g.ids
}

// Zygosity returns the number of distinct haplotypes in the genotype.
func (g Genotype) Zygosity() (n int) {
	for i, id := range g.ids {
		if i == 0 || id != g.ids[i-1] {
			n++
		}
	}
	return n
}

// IsHomozygous returns true if all haplotypes are equal.
func (g Genotype) IsHomozygous() bool {
	return g.Zygosity() == 1
}

// Contains reports whether the genotype carries the haplotype.
func (g Genotype) Contains(id ID) bool {
	for _, i := range g.ids {
		if i == id {
			return true
		}
		if i > id {
			return false
		}
	}
	return false
}

// Count returns the number of copies of the haplotype in the
// genotype.
func (g Genotype) Count(id ID) (n int) {
	for _, i := range g.ids {
		if i == id {
			n++
		} else if i > id {
			break
		}
	}
	return n
}

// Equal reports multiset equality.
func (g Genotype) Equal(other Genotype) bool {
	if len(g.ids) != len(other.ids) {
		return false
	}
	for i, id := range g.ids {
		if other.ids[i] != id {
			return false
		}
	}
	return true
}

// ContainsAllele reports whether any haplotype in the genotype
// carries the allele.
func (g Genotype) ContainsAllele(arena *Arena, a Allele, ref Reference) bool {
	for i, id := range g.ids {
		if i > 0 && id == g.ids[i-1] {
			continue
		}
		if arena.Get(id).Contains(a, ref) {
			return true
		}
	}
	return false
}

// CountAllele returns the number of haplotype copies in the genotype
// that carry the allele.
func (g Genotype) CountAllele(arena *Arena, a Allele, ref Reference) (n int) {
	for _, id := range g.ids {
		if arena.Get(id).Contains(a, ref) {
			n++
		}
	}
	return n
}

// NofGenotypes returns the multiset coefficient C(n+p-1, p), the
// number of genotypes over n haplotypes at ploidy p.
func NofGenotypes(n, ploidy int) int {
	result := 1
	for i := 1; i <= ploidy; i++ {
		result = result * (n + i - 1) / i
	}
	return result
}

// EnumerateGenotypes generates all genotypes over the given
// haplotype IDs at the given ploidy, in lexicographic order of their
// sorted ID vectors.
func EnumerateGenotypes(ids []ID, ploidy int) []Genotype {
	if ploidy < 1 {
		log.Panicf("invalid ploidy %v", ploidy)
	}
	result := make([]Genotype, 0, NofGenotypes(len(ids), ploidy))
	combination := make([]int, ploidy)
	for {
		selected := make([]ID, ploidy)
		for i, c := range combination {
			selected[i] = ids[c]
		}
		result = append(result, NewGenotype(selected...))
		// next multiset combination: non-decreasing index vectors
		i := ploidy - 1
		for i >= 0 && combination[i] == len(ids)-1 {
			i--
		}
		if i < 0 {
			return result
		}
		combination[i]++
		for j := i + 1; j < ploidy; j++ {
			combination[j] = combination[i]
		}
	}
}
