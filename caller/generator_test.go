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
)

func altBase(b byte) byte {
	if b == 'A' {
		return 'C'
	}
	return 'A'
}

func snvAt(ref testReference, contig string, pos int32) genome.Variant {
	b := ref[contig][pos]
	return genome.Variant{
		Region: genome.Region{Contig: contig, Begin: pos, End: pos + 1},
		Ref:    string(b),
		Alt:    string(altBase(b)),
	}
}

func TestBlockMerging(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	// 45 lies within the merge distance of the first variant's end
	variants := []genome.Variant{snvAt(ref, "chr1", 0), snvAt(ref, "chr1", 45)}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	if len(block.Variants) != 2 {
		t.Errorf("expected both variants in one sub-region, got %v", len(block.Variants))
	}
	if next, err := gen.Progress(); err != nil || next != nil {
		t.Errorf("expected an exhausted generator, got %v, %v", next, err)
	}
}

func TestBlockSplitting(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	variants := []genome.Variant{snvAt(ref, "chr1", 0), snvAt(ref, "chr1", 100)}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	for i := 0; i < 2; i++ {
		block, err := gen.Progress()
		if err != nil || block == nil {
			t.Fatalf("expected active sub-region %v, got %v, %v", i, block, err)
		}
		if len(block.Variants) != 1 {
			t.Errorf("expected one variant in sub-region %v, got %v", i, len(block.Variants))
		}
		gen.Advance(block, block.IDs)
	}
	if next, err := gen.Progress(); err != nil || next != nil {
		t.Errorf("expected an exhausted generator, got %v, %v", next, err)
	}
}

func TestHoldoutAndReinsert(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	cfg.MaxHaplotypes = 8
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	var variants []genome.Variant
	for pos := int32(0); pos < 10; pos += 2 {
		variants = append(variants, snvAt(ref, "chr1", pos))
	}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	if !block.HasHoldouts() {
		t.Fatal("expected held-out alleles")
	}
	if len(block.IDs) != 8 {
		t.Errorf("expected 8 haplotypes under holdout, got %v", len(block.IDs))
	}
	if err := gen.ReinsertHoldout(block, block.IDs); err != nil {
		t.Fatalf("unexpected holdout failure: %v", err)
	}
	if block.HasHoldouts() {
		t.Error("expected all held-out alleles re-inserted")
	}
	if len(block.IDs) != 32 {
		t.Errorf("expected 32 haplotypes after re-insertion, got %v", len(block.IDs))
	}
}

func TestHaplotypeOverflowSkipsSubRegion(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	cfg.MaxHaplotypes = 8
	cfg.MaxHoldoutDepth = 3
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	var variants []genome.Variant
	for i := int32(0); i < 50; i++ {
		variants = append(variants, snvAt(ref, "chr1", 2*i))
	}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	// fails once the holdout depth is exhausted, never yields a
	// sub-region over the haplotype budget
	block, err := gen.Progress()
	if err == nil {
		t.Fatal("expected a haplotype overflow")
	}
	if block != nil {
		t.Error("expected no sub-region alongside the failure")
	}
	if _, ok := err.(*RegionError); !ok {
		t.Errorf("expected a recoverable sub-region failure, got %T", err)
	}
	// the generator has advanced past the failed sub-region
	if next, err := gen.Progress(); err != nil || next != nil {
		t.Errorf("expected an exhausted generator, got %v, %v", next, err)
	}
}

func TestConservativeLagSeeds(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	cfg.PhasingLevel = ConservativePhasing
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	variants := []genome.Variant{snvAt(ref, "chr1", 10), snvAt(ref, "chr1", 25)}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	gen.Advance(block, block.IDs)
	if len(gen.seed) != 4 {
		t.Fatalf("expected one indicator chain per haplotype, got %v", len(gen.seed))
	}
	longest := 0
	for _, chain := range gen.seed {
		if len(chain) > longest {
			longest = len(chain)
		}
	}
	if longest != 2 {
		t.Errorf("expected a chain carrying both trailing alleles, got %v", longest)
	}
}

func TestMinimalPhasingDropsSeeds(t *testing.T) {
	ref := testReference{"chr1": repeatedReference(200)}
	cfg := DefaultConfig()
	cfg.PhasingLevel = MinimalPhasing
	region := genome.Region{Contig: "chr1", Begin: 0, End: 200}
	variants := []genome.Variant{snvAt(ref, "chr1", 10)}
	gen := NewHaplotypeGenerator(&cfg, ref, region, variants)
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	gen.Advance(block, block.IDs)
	if gen.seed != nil {
		t.Errorf("expected no indicator chains, got %v", gen.seed)
	}
}
