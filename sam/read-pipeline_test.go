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

package sam

import "testing"

func makeRead(pos int32, seq string, qual byte) *Alignment {
	quals := make([]byte, len(seq))
	for i := range quals {
		quals[i] = qual
	}
	return &Alignment{
		QNAME: "r",
		RNAME: "1",
		POS:   pos,
		MAPQ:  60,
		CIGAR: cigarM(len(seq)),
		RNEXT: "*",
		SEQ:   seq,
		QUAL:  quals,
	}
}

func cigarM(n int) string {
	switch n {
	case 4:
		return "4M"
	case 8:
		return "8M"
	default:
		return "10M"
	}
}

func TestAlignmentEnd(t *testing.T) {
	aln := makeRead(10, "ACGTACGTAC", 30)
	if aln.End() != 20 {
		t.Errorf("End() = %v", aln.End())
	}
	aln.CIGAR = "4M2D6M"
	if aln.End() != 22 {
		t.Errorf("End() with deletion = %v", aln.End())
	}
	aln.CIGAR = "2S8M"
	if aln.End() != 18 {
		t.Errorf("End() with soft clip = %v", aln.End())
	}
}

func TestDefaultFilters(t *testing.T) {
	header := &Header{SQ: []SQEntry{{SN: "1", LN: 1000}}}
	filters := DefaultFilters(20, 5, 20)
	filter := func(aln *Alignment) bool {
		for _, f := range filters {
			if rf := f(header); rf != nil && !rf(aln) {
				return false
			}
		}
		return true
	}

	good := makeRead(10, "ACGTACGTAC", 30)
	if !filter(good) {
		t.Error("well-formed read must pass the default filters")
	}

	duplicate := makeRead(10, "ACGTACGTAC", 30)
	duplicate.FLAG |= Duplicate
	if filter(duplicate) {
		t.Error("duplicate read must be filtered")
	}

	lowMapq := makeRead(10, "ACGTACGTAC", 30)
	lowMapq.MAPQ = 10
	if filter(lowMapq) {
		t.Error("low mapping quality read must be filtered")
	}

	lowQual := makeRead(10, "ACGTACGTAC", 10)
	if filter(lowQual) {
		t.Error("read without enough good bases must be filtered")
	}

	badCigar := makeRead(10, "ACGTACGTAC", 30)
	badCigar.CIGAR = "4M"
	if filter(badCigar) {
		t.Error("read with CIGAR shorter than SEQ must be filtered")
	}

	secondary := makeRead(10, "ACGTACGTAC", 30)
	secondary.FLAG |= Secondary
	if filter(secondary) {
		t.Error("secondary alignment must be filtered")
	}

	crossContig := makeRead(10, "ACGTACGTAC", 30)
	crossContig.FLAG |= Multiple
	crossContig.RNEXT = "2"
	if filter(crossContig) {
		t.Error("non template-local read must be filtered")
	}
}

func TestMaskSoftClippedBases(t *testing.T) {
	aln := makeRead(10, "ACGTACGTAC", 30)
	aln.CIGAR = "2S6M2S"
	MaskSoftClippedBases(1)(aln)
	expected := []byte{0, 0, 0, 30, 30, 30, 30, 0, 0, 0}
	for i, q := range aln.QUAL {
		if q != expected[i] {
			t.Errorf("quality %v at %v, expected %v", q, i, expected[i])
			break
		}
	}
}

func TestMaskTailCommutesWithSoftClipMask(t *testing.T) {
	aln1 := makeRead(10, "ACGTACGTAC", 30)
	aln1.CIGAR = "2S8M"
	aln2 := makeRead(10, "ACGTACGTAC", 30)
	aln2.CIGAR = "2S8M"
	MaskSoftClippedBases(0)(aln1)
	MaskTail(3)(aln1)
	MaskTail(3)(aln2)
	MaskSoftClippedBases(0)(aln2)
	for i := range aln1.QUAL {
		if aln1.QUAL[i] != aln2.QUAL[i] {
			t.Error("transforms must commute in effect on qualities")
			break
		}
	}
}

func TestMaskMateOverlap(t *testing.T) {
	aln := makeRead(10, "ACGTACGTAC", 30)
	aln.FLAG |= Multiple | NextReversed
	aln.RNEXT = "="
	aln.PNEXT = 15
	aln.TLEN = 20
	MaskMateOverlap(aln)
	for i := 0; i < 5; i++ {
		if aln.QUAL[i] != 30 {
			t.Error("bases before the mate start must keep their quality")
			break
		}
	}
	for i := 5; i < 10; i++ {
		if aln.QUAL[i] != 0 {
			t.Error("bases overlapping the mate must be zeroed")
			break
		}
	}
}

func TestDownsample(t *testing.T) {
	var alns []*Alignment
	for i := 0; i < 40; i++ {
		qual := byte(20 + i%20)
		alns = append(alns, makeRead(100, "ACGTACGTAC", qual))
	}
	result := Downsample(alns, 30, 25)
	if len(result) > 25 {
		t.Errorf("downsampled to %v reads, expected at most 25", len(result))
	}
	// kept reads must be the higher quality ones
	minKept := byte(255)
	for _, aln := range result {
		if q := aln.QUAL[0]; q < minKept {
			minKept = q
		}
	}
	maxDropped := byte(0)
	kept := make(map[*Alignment]bool)
	for _, aln := range result {
		kept[aln] = true
	}
	for _, aln := range alns {
		if !kept[aln] {
			if q := aln.QUAL[0]; q > maxDropped {
				maxDropped = q
			}
		}
	}
	if maxDropped > minKept {
		t.Errorf("dropped quality %v but kept quality %v", maxDropped, minKept)
	}

	// determinism for a fixed input order
	again := Downsample(append([]*Alignment(nil), alns...), 30, 25)
	if len(again) != len(result) {
		t.Error("downsampling must be deterministic")
	}
	for i := range again {
		if again[i] != result[i] {
			t.Error("downsampling must keep the same reads on rerun")
			break
		}
	}
}

func TestDownsampleBelowThresholdKeepsAll(t *testing.T) {
	var alns []*Alignment
	for i := 0; i < 10; i++ {
		alns = append(alns, makeRead(100, "ACGTACGTAC", 30))
	}
	if len(Downsample(alns, 30, 25)) != 10 {
		t.Error("coverage below the threshold must keep all reads")
	}
}
