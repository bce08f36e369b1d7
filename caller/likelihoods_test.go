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

package caller

import (
	"testing"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

// snvBlock builds an active sub-region over chr1:0-12 with the
// reference haplotype and one SNV haplotype.
func snvBlock(ref genome.Reference) (block *ActiveBlock, refID, altID genome.ID) {
	region := genome.Region{Contig: "chr1", Begin: 0, End: 12}
	arena := genome.NewArena()
	refID = arena.Add(genome.NewHaplotype(region, nil, ref))
	altID = arena.Add(genome.NewHaplotype(region, []genome.Allele{{
		Region:   genome.Region{Contig: "chr1", Begin: 5, End: 6},
		Sequence: "C",
	}}, ref))
	block = &ActiveBlock{Region: region, Arena: arena, IDs: arena.IDs()}
	return block, refID, altID
}

func TestLikelihoodPrefersMatchingHaplotype(t *testing.T) {
	ref := testReference{"chr1": "ACGTCAGTTGCA"}
	cfg := DefaultConfig()
	block, refID, altID := snvBlock(ref)
	reads := sam.ReadMap{"s1": []*sam.Alignment{
		makeRead("chr1", 0, "ACGTCCGTTGCA", "", false),
		makeRead("chr1", 0, "ACGTCAGTTGCA", "", true),
	}}
	result := ComputeLikelihoods(&cfg, block, reads)
	lhs := result["s1"]
	if len(lhs.Alns) != 2 {
		t.Fatalf("expected both reads cached, got %v", len(lhs.Alns))
	}
	if lhs.Likelihood(0, altID) <= lhs.Likelihood(0, refID) {
		t.Errorf("alternate read scored %v against the alternate, %v against the reference",
			lhs.Likelihood(0, altID), lhs.Likelihood(0, refID))
	}
	if lhs.Likelihood(1, refID) <= lhs.Likelihood(1, altID) {
		t.Errorf("reference read scored %v against the reference, %v against the alternate",
			lhs.Likelihood(1, refID), lhs.Likelihood(1, altID))
	}
}

func TestLikelihoodSkipsNonOverlappingReads(t *testing.T) {
	ref := testReference{"chr1": "ACGTCAGTTGCA" + repeatedReference(48)}
	cfg := DefaultConfig()
	block, _, _ := snvBlock(ref)
	reads := sam.ReadMap{"s1": []*sam.Alignment{
		makeRead("chr1", 0, "ACGTCAGTTGCA", "", false),
		makeRead("chr1", 30, "ACGTACGTACGT", "", false),
	}}
	result := ComputeLikelihoods(&cfg, block, reads)
	if len(result["s1"].Alns) != 1 {
		t.Errorf("expected only the overlapping read cached, got %v", len(result["s1"].Alns))
	}
}

func TestPoorlyModeledReadRemoved(t *testing.T) {
	ref := testReference{"chr1": "ACGTCAGTTGCA"}
	cfg := DefaultConfig()
	block, _, _ := snvBlock(ref)
	reads := sam.ReadMap{"s1": []*sam.Alignment{
		// matches neither haplotype anywhere
		makeRead("chr1", 0, "TTTTGGGGAAAA", "", false),
	}}
	result := ComputeLikelihoods(&cfg, block, reads)
	if len(result["s1"].Alns) != 0 {
		t.Errorf("expected the unmodelable read removed, got %v cached reads", len(result["s1"].Alns))
	}
}
