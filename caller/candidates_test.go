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
	"github.com/gmagoon/octopus/vcf"
)

func TestCigarScannerSNV(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	var alns []*sam.Alignment
	for i := 0; i < 3; i++ {
		alns = append(alns, snvRead("chr1", 0, 20, refSeq, map[int32]byte{10: 'T'}))
	}
	reads := sam.ReadMap{"s1": alns}
	candidates := NewCandidateGenerator(&cfg, ref).Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 40}, reads)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", len(candidates))
	}
	c := candidates[0]
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 10, End: 11},
		Ref:    string(refSeq[10]),
		Alt:    "T",
	}
	if c.Variant != want {
		t.Errorf("expected %v, got %v", want, c.Variant)
	}
	if c.Sources&SourceCigarScanner == 0 {
		t.Error("expected a CIGAR scanner candidate")
	}
	if c.SourceSupport[0] != 3 {
		t.Errorf("expected 3 supporting reads, got %v", c.SourceSupport[0])
	}
}

func TestWeakSNVExcluded(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	alns := []*sam.Alignment{snvRead("chr1", 0, 20, refSeq, map[int32]byte{10: 'T'})}
	for i := 0; i < 19; i++ {
		alns = append(alns, snvRead("chr1", 0, 20, refSeq, nil))
	}
	reads := sam.ReadMap{"s1": alns}
	candidates := NewCandidateGenerator(&cfg, ref).Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 40}, reads)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates from a single supporting read, got %v", len(candidates))
	}
}

func TestDeletionCandidate(t *testing.T) {
	ref := testReference{"chr1": "AAATTTAAA"}
	cfg := DefaultConfig()
	reads := sam.ReadMap{"s1": manyReads(3, "chr1", 0, "AAAAAA", "3M3D3M")}
	candidates := NewCandidateGenerator(&cfg, ref).Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 9}, reads)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", len(candidates))
	}
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 3, End: 6},
		Ref:    "TTT",
		Alt:    "",
	}
	if candidates[0].Variant != want {
		t.Errorf("expected %v, got %v", want, candidates[0].Variant)
	}
}

func TestInsertionCandidate(t *testing.T) {
	ref := testReference{"chr1": "AAATTTAAA"}
	cfg := DefaultConfig()
	reads := sam.ReadMap{"s1": manyReads(3, "chr1", 0, "AAAGGGTTT", "3M3I3M")}
	candidates := NewCandidateGenerator(&cfg, ref).Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 9}, reads)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", len(candidates))
	}
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 3, End: 3},
		Ref:    "",
		Alt:    "GGG",
	}
	if candidates[0].Variant != want {
		t.Errorf("expected %v, got %v", want, candidates[0].Variant)
	}
}

func TestMisalignedReadProposesNothing(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	// eight high quality mismatches are far beyond what mismapping
	// explains for a 40 base read
	alts := make(map[int32]byte)
	for pos := int32(2); pos < 34; pos += 4 {
		alts[pos] = altBase(refSeq[pos])
	}
	var alns []*sam.Alignment
	for i := 0; i < 3; i++ {
		alns = append(alns, snvRead("chr1", 0, 40, refSeq, alts))
	}
	reads := sam.ReadMap{"s1": alns}
	gen := NewCandidateGenerator(&cfg, ref)
	candidates := gen.Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 40}, reads)
	if len(candidates) != 0 {
		t.Errorf("expected no candidates from likely-misaligned reads, got %v", len(candidates))
	}
	// the proposals land in the side bucket instead
	if len(gen.LikelyMisaligned()) != 24 {
		t.Errorf("expected 24 bucketed variants, got %v", len(gen.LikelyMisaligned()))
	}
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 2, End: 3},
		Ref:    string(refSeq[2]),
		Alt:    string(altBase(refSeq[2])),
	}
	if gen.LikelyMisaligned()[0] != want {
		t.Errorf("expected %v first in the bucket, got %v", want, gen.LikelyMisaligned()[0])
	}
}

func TestCandidateDeduplication(t *testing.T) {
	var set candidateSet
	del1 := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 5, End: 10},
		Ref:    "ACGTA",
		Alt:    "",
	}
	del2 := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 8, End: 12},
		Ref:    "TACG",
		Alt:    "",
	}
	set.add(del1, SourceCigarScanner, "s1", 30, true)
	set.add(del2, SourceCigarScanner, "s1", 30, false)
	if len(set.candidates) != 1 {
		t.Fatalf("expected overlapping deletions merged, got %v candidates", len(set.candidates))
	}
	if set.candidates[0].SourceSupport[0] != 2 {
		t.Errorf("expected 2 supporting reads, got %v", set.candidates[0].SourceSupport[0])
	}
	snv := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 5, End: 6},
		Ref:    "A",
		Alt:    "C",
	}
	mnv := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 5, End: 7},
		Ref:    "AC",
		Alt:    "CA",
	}
	set.add(snv, SourceCigarScanner, "s1", 30, true)
	set.add(mnv, SourceCigarScanner, "s1", 30, true)
	if len(set.candidates) != 3 {
		t.Errorf("expected the SNV and MNV kept apart, got %v candidates", len(set.candidates))
	}
}

func TestExternalCandidates(t *testing.T) {
	ref := testReference{"chr1": "ACGTACGTT"}
	cfg := DefaultConfig()
	gen := NewCandidateGenerator(&cfg, ref)
	gen.AddExternal([]*vcf.Variant{
		{Chrom: "chr1", Pos: 3, Ref: "G", Alt: []string{"T"}},
		// extends past the contig end
		{Chrom: "chr1", Pos: 9, Ref: "TA", Alt: []string{"T"}},
		{Chrom: "chr2", Pos: 1, Ref: "A", Alt: []string{"C"}},
	})
	candidates := gen.Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 9}, sam.ReadMap{})
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", len(candidates))
	}
	c := candidates[0]
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 2, End: 3},
		Ref:    "G",
		Alt:    "T",
	}
	if c.Variant != want {
		t.Errorf("expected %v, got %v", want, c.Variant)
	}
	if c.Sources != SourceExternal {
		t.Errorf("expected an external-only candidate, got %v", c.Sources)
	}
}

func TestRegenotypeRestrictsToExternal(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	cfg.Regenotype = true
	gen := NewCandidateGenerator(&cfg, ref)
	gen.AddExternal([]*vcf.Variant{
		{Chrom: "chr1", Pos: 5, Ref: string(refSeq[4]), Alt: []string{string(altBase(refSeq[4]))}},
	})
	// the reads support a different variant; regenotyping must ignore it
	var alns []*sam.Alignment
	for i := 0; i < 10; i++ {
		alns = append(alns, snvRead("chr1", 0, 20, refSeq, map[int32]byte{10: 'T'}))
	}
	reads := sam.ReadMap{"s1": alns}
	candidates := gen.Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 40}, reads)
	if len(candidates) != 1 {
		t.Fatalf("expected only the external candidate, got %v", len(candidates))
	}
	if candidates[0].Variant.Region.Begin != 4 {
		t.Errorf("expected the external candidate at 4, got %v", candidates[0].Variant.Region.Begin)
	}
	if candidates[0].Sources != SourceExternal {
		t.Errorf("expected an external-only candidate, got %v", candidates[0].Sources)
	}
}
