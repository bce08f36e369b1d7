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
	"github.com/gmagoon/octopus/genome"
)

const (
	// candidates closer than this are forced into one active sub-region
	activeRegionMergeDistance = 50
	// haplotypes carry this much reference context beyond the
	// outermost alleles, so reads spanning the boundary still align
	haplotypePadding = 30
	// window width when picking the densest candidate cluster to hold out
	holdoutWindowSize = 30
	// how far back of the sub-region boundary indicator alleles are kept
	conservativeLagWindow = 20
)

// An ActiveBlock is one active sub-region with its materialised
// haplotype set. LeafIDs maps tree leaves to arena IDs; IDs is the
// deduplicated ID set in arena order.
type ActiveBlock struct {
	Region     genome.Region
	Variants   []genome.Variant
	Arena      *genome.Arena
	IDs        []genome.ID
	LeafIDs    []genome.ID
	tree       *HaplotypeTree
	holdouts   [][]genome.Variant
	innerBegin int32
	innerEnd   int32
}

// HasHoldouts reports whether held-out alleles remain to re-insert.
func (b *ActiveBlock) HasHoldouts() bool {
	return len(b.holdouts) > 0
}

// A HaplotypeGenerator walks the candidates of one input region and
// yields active sub-regions with bounded haplotype sets.
type HaplotypeGenerator struct {
	cfg        *CoreConfig
	ref        genome.Reference
	region     genome.Region
	candidates []genome.Variant
	cursor     int
	seed       [][]genome.Allele
}

// NewHaplotypeGenerator creates a generator over candidates sorted by
// region.
func NewHaplotypeGenerator(cfg *CoreConfig, ref genome.Reference, region genome.Region, candidates []genome.Variant) *HaplotypeGenerator {
	return &HaplotypeGenerator{
		cfg:        cfg,
		ref:        ref,
		region:     region,
		candidates: candidates,
	}
}

// nextBlockVariants walks forward from the cursor, merging candidates
// into one active sub-region while they lie close together. The
// returned slice aliases the candidate slice.
func (gen *HaplotypeGenerator) nextBlockVariants() []genome.Variant {
	if gen.cursor >= len(gen.candidates) {
		return nil
	}
	begin := gen.cursor
	end := begin + 1
	spanEnd := gen.candidates[begin].Region.End
	for end < len(gen.candidates) {
		next := gen.candidates[end].Region
		if next.Begin > spanEnd+activeRegionMergeDistance {
			break
		}
		if next.End > spanEnd {
			spanEnd = next.End
		}
		end++
	}
	return gen.candidates[begin:end]
}

// densestCluster picks the variants inside the densest fixed-width
// window, capped at half of the active set so holdout always leaves
// work behind.
func densestCluster(variants []genome.Variant) []genome.Variant {
	best, bestCount := 0, 0
	for i := range variants {
		count := 0
		for j := i; j < len(variants) && variants[j].Region.Begin < variants[i].Region.Begin+holdoutWindowSize; j++ {
			count++
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}
	limit := maxInt(1, len(variants)/2)
	if bestCount > limit {
		bestCount = limit
	}
	cluster := make([]genome.Variant, bestCount)
	copy(cluster, variants[best:best+bestCount])
	return cluster
}

func removeVariants(variants, remove []genome.Variant) []genome.Variant {
	result := make([]genome.Variant, 0, len(variants))
	for _, v := range variants {
		removed := false
		for _, r := range remove {
			if v == r {
				removed = true
				break
			}
		}
		if !removed {
			result = append(result, v)
		}
	}
	return result
}

// buildTree extends a seeded tree with the active variants, entering
// holdout when the haplotype budget is crossed and failing once the
// holdout depth is exhausted. Every returned tree stays within the
// budget.
func (gen *HaplotypeGenerator) buildTree(blockRegion genome.Region, variants []genome.Variant) (*HaplotypeTree, [][]genome.Variant, error) {
	active := variants
	var holdouts [][]genome.Variant
	for {
		tree := NewHaplotypeTree(gen.region.Contig, gen.ref)
		tree.Seed(gen.seed)
		overflowed := false
		for _, v := range active {
			predicted := tree.ExtendingCount(v)
			if predicted > gen.cfg.MaxHaplotypes {
				if len(holdouts) < gen.cfg.MaxHoldoutDepth {
					overflowed = true
					break
				}
				return nil, nil, HaplotypeOverflow(blockRegion, predicted)
			}
			tree.Extend(v)
		}
		if !overflowed {
			return tree, holdouts, nil
		}
		layer := densestCluster(active)
		holdouts = append(holdouts, layer)
		active = removeVariants(active, layer)
	}
}

func (gen *HaplotypeGenerator) materialise(block *ActiveBlock) {
	inner := genome.Region{Contig: gen.region.Contig, Begin: block.innerBegin, End: block.innerEnd}
	if treeRegion, ok := block.tree.Region(); ok {
		inner = inner.Span(treeRegion)
	}
	region := inner.Expand(haplotypePadding)
	if length := gen.ref.ContigLength(region.Contig); region.End > length {
		region.End = length
	}
	block.Region = region
	block.Arena = genome.NewArena()
	block.LeafIDs = block.tree.Haplotypes(region, block.Arena)
	block.IDs = block.Arena.IDs()
}

// Progress yields the next active sub-region, or nil when the input
// region is exhausted. A HaplotypeOverflow error reports the failed
// sub-region; the generator has already advanced past it.
func (gen *HaplotypeGenerator) Progress() (*ActiveBlock, error) {
	variants := gen.nextBlockVariants()
	if len(variants) == 0 {
		return nil, nil
	}
	gen.cursor += len(variants)

	innerBegin := variants[0].Region.Begin
	innerEnd := variants[0].Region.End
	for _, v := range variants {
		if v.Region.End > innerEnd {
			innerEnd = v.Region.End
		}
	}
	blockRegion := genome.Region{Contig: gen.region.Contig, Begin: innerBegin, End: innerEnd}

	tree, holdouts, err := gen.buildTree(blockRegion, variants)
	if err != nil {
		gen.seed = nil
		return nil, err
	}

	block := &ActiveBlock{
		Variants:   variants,
		tree:       tree,
		holdouts:   holdouts,
		innerBegin: innerBegin,
		innerEnd:   innerEnd,
	}
	gen.materialise(block)
	return block, nil
}

// ReinsertHoldout prunes the tree to the surviving haplotypes and
// extends it with the most recently held-out layer, re-materialising
// the block. Layers come back one at a time in reverse order of
// removal.
func (gen *HaplotypeGenerator) ReinsertHoldout(block *ActiveBlock, survivors []genome.ID) error {
	if len(block.holdouts) == 0 {
		return nil
	}
	block.tree.KeepIDs(block.LeafIDs, survivors)
	layer := block.holdouts[len(block.holdouts)-1]
	block.holdouts = block.holdouts[:len(block.holdouts)-1]
	blockRegion := genome.Region{Contig: gen.region.Contig, Begin: block.innerBegin, End: block.innerEnd}
	for _, v := range layer {
		predicted := block.tree.ExtendingCount(v)
		if predicted > gen.cfg.OverflowLimit {
			block.holdouts = nil
			return HaplotypeOverflow(blockRegion, predicted)
		}
		block.tree.Extend(v)
	}
	gen.materialise(block)
	return nil
}

// Advance prunes the block to the surviving haplotypes and carries
// indicator alleles into the next sub-region per the lagging policy.
func (gen *HaplotypeGenerator) Advance(block *ActiveBlock, survivors []genome.ID) {
	switch gen.cfg.PhasingLevel {
	case MinimalPhasing:
		gen.seed = nil
	case ConservativePhasing:
		block.tree.KeepIDs(block.LeafIDs, survivors)
		gen.seed = block.tree.LeadingAlleles(block.innerEnd - conservativeLagWindow)
	case AggressivePhasing:
		block.tree.KeepIDs(block.LeafIDs, survivors)
		gen.seed = block.tree.LeadingAlleles(block.innerBegin)
	}
}
