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

func TestAssemblerRecoversSNV(t *testing.T) {
	ref := testReference{"chr1": "ACGTCAGTTGCA"}
	cfg := DefaultConfig()
	cfg.KmerSizes = []int{4}
	gen := NewCandidateGenerator(&cfg, ref)
	reads := sam.ReadMap{"s1": manyReads(3, "chr1", 0, "ACGTCCGTTGCA", "")}
	variants := gen.assemble(genome.Region{Contig: "chr1", Begin: 0, End: 12}, reads)
	if len(variants) != 1 {
		t.Fatalf("expected one assembled variant, got %v", variants)
	}
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 5, End: 6},
		Ref:    "A",
		Alt:    "C",
	}
	if variants[0] != want {
		t.Errorf("expected %v, got %v", want, variants[0])
	}
}

func TestAssemblerNeedsSupport(t *testing.T) {
	ref := testReference{"chr1": "ACGTCAGTTGCA"}
	cfg := DefaultConfig()
	cfg.KmerSizes = []int{4}
	gen := NewCandidateGenerator(&cfg, ref)
	reads := sam.ReadMap{"s1": manyReads(1, "chr1", 0, "ACGTCCGTTGCA", "")}
	variants := gen.assemble(genome.Region{Contig: "chr1", Begin: 0, End: 12}, reads)
	if len(variants) != 0 {
		t.Errorf("expected a single-read bubble pruned, got %v", variants)
	}
}

func TestAssemblerRepetitiveReference(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(12)}
	cfg := DefaultConfig()
	cfg.KmerSizes = []int{4}
	gen := NewCandidateGenerator(&cfg, ref)
	reads := sam.ReadMap{"s1": manyReads(3, "chr1", 0, "ACGTACCTACGT", "")}
	// repeated reference kmers make anchor positions ambiguous at every
	// ladder size, so assembly yields nothing rather than guessing
	variants := gen.assemble(genome.Region{Contig: "chr1", Begin: 0, End: 12}, reads)
	if len(variants) != 0 {
		t.Errorf("expected no variants from a repetitive window, got %v", variants)
	}
}

func TestBubbleVariantTrimming(t *testing.T) {
	v, ok := bubbleVariant("chr1", 100, 1, "CGTCAGTTG", "CGTCCGTTG")
	if !ok {
		t.Fatal("expected a variant from distinct paths")
	}
	want := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 105, End: 106},
		Ref:    "A",
		Alt:    "C",
	}
	if v != want {
		t.Errorf("expected %v, got %v", want, v)
	}
	if _, ok := bubbleVariant("chr1", 0, 0, "ACGT", "ACGT"); ok {
		t.Error("expected no variant from identical paths")
	}
}

func TestGraphCycleDetection(t *testing.T) {
	g := newAsmGraph(4)
	a := g.vertex("ACGT")
	b := g.vertex("CGTA")
	g.addEdge(a, b, false)
	if g.hasCycle() {
		t.Error("expected no cycle in a simple path")
	}
	g.addEdge(b, a, false)
	if !g.hasCycle() {
		t.Error("expected a cycle")
	}
}
