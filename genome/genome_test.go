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

import "testing"

type testReference map[string]string

func (ref testReference) Contigs() (contigs []string) {
	for contig := range ref {
		contigs = append(contigs, contig)
	}
	return contigs
}

func (ref testReference) ContigLength(contig string) int32 {
	return int32(len(ref[contig]))
}

func (ref testReference) Slice(region Region) string {
	return ref[region.Contig][region.Begin:region.End]
}

func TestRegionOverlaps(t *testing.T) {
	if !(Region{"1", 2, 5}).Overlaps(Region{"1", 4, 8}) {
		t.Error("Overlaps 1 failed")
	}
	if (Region{"1", 2, 5}).Overlaps(Region{"1", 5, 8}) {
		t.Error("Overlaps 2 failed")
	}
	if (Region{"1", 2, 5}).Overlaps(Region{"2", 2, 5}) {
		t.Error("Overlaps 3 failed")
	}
	if !(Region{"1", 3, 3}).Overlaps(Region{"1", 2, 5}) {
		t.Error("insertion site must overlap an enclosing region")
	}
}

func TestRegionLess(t *testing.T) {
	contigIndex := map[string]int32{"1": 0, "2": 1}
	if !RegionLess(contigIndex, Region{"1", 5, 9}, Region{"2", 2, 3}) {
		t.Error("RegionLess by contig failed")
	}
	if !RegionLess(contigIndex, Region{"1", 2, 5}, Region{"1", 3, 4}) {
		t.Error("RegionLess by begin failed")
	}
	if !RegionLess(contigIndex, Region{"1", 2, 4}, Region{"1", 2, 5}) {
		t.Error("RegionLess by end failed")
	}
}

func TestNormaliseTrimsAndLeftAligns(t *testing.T) {
	ref := testReference{"1": "AAATTTAAA"}
	// ATT>A at [2,5) should left-align over the T homopolymer? No: trims to
	// TT>"" at [3,5), then left-alignment stops because position 2 holds A.
	v := Normalise(Variant{Region: Region{"1", 2, 5}, Ref: "ATT", Alt: "A"}, ref)
	if v.Region != (Region{"1", 3, 5}) || v.Ref != "TT" || v.Alt != "" {
		t.Errorf("Normalise deletion failed: %v %v>%v", v.Region, v.Ref, v.Alt)
	}
	// TTTA>TA trims suffix and prefix, then shifts the deletion left through
	// the homopolymer to [3,5).
	v = Normalise(Variant{Region: Region{"1", 3, 7}, Ref: "TTTA", Alt: "TA"}, ref)
	if v.Region != (Region{"1", 3, 5}) || v.Ref != "TT" || v.Alt != "" {
		t.Errorf("Normalise left-align failed: %v %v>%v", v.Region, v.Ref, v.Alt)
	}
}

func TestNormaliseInsertionAtContigStart(t *testing.T) {
	ref := testReference{"1": "ACGT"}
	v := Normalise(Variant{Region: Region{"1", 0, 0}, Ref: "", Alt: "GG"}, ref)
	if v.Region != (Region{"1", 0, 0}) || v.Alt != "GG" {
		t.Errorf("Normalise insertion at 0 failed: %v %v>%v", v.Region, v.Ref, v.Alt)
	}
}

func TestVariantMatches(t *testing.T) {
	snv1 := Variant{Region: Region{"1", 2, 3}, Ref: "G", Alt: "A"}
	snv2 := Variant{Region: Region{"1", 2, 3}, Ref: "G", Alt: "A"}
	snv3 := Variant{Region: Region{"1", 2, 3}, Ref: "G", Alt: "C"}
	if !snv1.Matches(snv2) {
		t.Error("identical SNVs must match")
	}
	if snv1.Matches(snv3) {
		t.Error("SNVs with different alts must not match")
	}
	ins1 := Variant{Region: Region{"1", 4, 4}, Ref: "", Alt: "ANT"}
	ins2 := Variant{Region: Region{"1", 4, 4}, Ref: "", Alt: "CNT"}
	ins3 := Variant{Region: Region{"1", 4, 4}, Ref: "", Alt: "CAT"}
	if !ins1.Matches(ins2) {
		t.Error("insertions equal up to N placeholders must match")
	}
	if ins1.Matches(ins3) {
		t.Error("insertions with different N counts must not match")
	}
	del1 := Variant{Region: Region{"1", 2, 6}, Ref: "GTAC", Alt: ""}
	del2 := Variant{Region: Region{"1", 4, 8}, Ref: "ACGT", Alt: ""}
	if !del1.Matches(del2) {
		t.Error("overlapping deletions must match")
	}
}

func TestHaplotypeMaterialisation(t *testing.T) {
	ref := testReference{"1": "ACGTACGT"}
	region := Region{"1", 0, 8}
	h := NewHaplotype(region, []Allele{{Region{"1", 2, 3}, "A"}}, ref)
	if h.Sequence != "ACATACGT" {
		t.Errorf("materialised sequence %v", h.Sequence)
	}
	// reference fill is deterministic: no alleles gives the reference back
	r := NewHaplotype(region, nil, ref)
	if r.Sequence != "ACGTACGT" {
		t.Errorf("reference haplotype sequence %v", r.Sequence)
	}
	if !h.Contains(Allele{Region{"1", 2, 3}, "A"}, ref) {
		t.Error("haplotype must contain its explicit allele")
	}
	if h.Contains(Allele{Region{"1", 2, 3}, "G"}, ref) {
		t.Error("haplotype must not contain the overlapping reference allele")
	}
	if !h.Contains(Allele{Region{"1", 4, 6}, "AC"}, ref) {
		t.Error("haplotype must contain implicit reference fill alleles")
	}
}

func TestArenaDeduplicates(t *testing.T) {
	ref := testReference{"1": "ACGTACGT"}
	region := Region{"1", 0, 8}
	arena := NewArena()
	id1 := arena.Add(NewHaplotype(region, []Allele{{Region{"1", 2, 3}, "A"}}, ref))
	id2 := arena.Add(NewHaplotype(region, []Allele{{Region{"1", 2, 3}, "A"}}, ref))
	id3 := arena.Add(NewHaplotype(region, nil, ref))
	if id1 != id2 {
		t.Error("equal haplotypes must share an arena ID")
	}
	if id1 == id3 {
		t.Error("distinct haplotypes must not share an arena ID")
	}
	if arena.Len() != 2 {
		t.Errorf("arena length %v", arena.Len())
	}
}

func TestGenotypeMultiset(t *testing.T) {
	g := NewGenotype(3, 1, 1)
	if g.Ploidy() != 3 {
		t.Errorf("ploidy %v", g.Ploidy())
	}
	if g.Zygosity() != 2 {
		t.Errorf("zygosity %v", g.Zygosity())
	}
	if g.IsHomozygous() {
		t.Error("heterozygous genotype reported homozygous")
	}
	if !g.Contains(1) || g.Contains(2) {
		t.Error("Contains failed")
	}
	if g.Count(1) != 2 || g.Count(3) != 1 {
		t.Error("Count failed")
	}
	if !g.Equal(NewGenotype(1, 3, 1)) {
		t.Error("genotype equality must be order independent")
	}
	if NewGenotype(0).Ploidy() != 1 || !NewGenotype(0).IsHomozygous() {
		t.Error("haploid genotype failed")
	}
}

func TestEnumerateGenotypes(t *testing.T) {
	if NofGenotypes(4, 2) != 10 {
		t.Errorf("NofGenotypes(4, 2) = %v", NofGenotypes(4, 2))
	}
	if NofGenotypes(3, 1) != 3 {
		t.Errorf("NofGenotypes(3, 1) = %v", NofGenotypes(3, 1))
	}
	genotypes := EnumerateGenotypes([]ID{0, 1, 2}, 2)
	if len(genotypes) != NofGenotypes(3, 2) {
		t.Errorf("enumerated %v genotypes", len(genotypes))
	}
	seen := make(map[string]bool)
	for _, g := range genotypes {
		key := ""
		for _, id := range g.IDs() {
			key += string(rune('a' + id))
		}
		if seen[key] {
			t.Errorf("duplicate genotype %v", key)
		}
		seen[key] = true
	}
}
