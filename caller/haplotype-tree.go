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
	"log"

	"github.com/willf/bitset"

	"github.com/gmagoon/octopus/genome"
)

type treeNode struct {
	allele   genome.Allele
	parent   *treeNode
	children []*treeNode
}

// A HaplotypeTree incrementally enumerates the haplotypes of an
// active sub-region. Each path from the root to a tracked leaf is one
// haplotype; only alternate alleles are stored, reference stretches
// are implicit and filled in at materialisation. Extending with a
// variant adds an alternate branch to every compatible leaf while the
// leaf itself lives on as the reference continuation, so a node can
// be internal and a tracked leaf at the same time. Multi-allelic
// sites thus become sibling branches of the shared reference path.
type HaplotypeTree struct {
	contig string
	ref    genome.Reference
	root   *treeNode
	leaves []*treeNode
}

func NewHaplotypeTree(contig string, ref genome.Reference) *HaplotypeTree {
	root := &treeNode{}
	return &HaplotypeTree{
		contig: contig,
		ref:    ref,
		root:   root,
		leaves: []*treeNode{root},
	}
}

// NumHaplotypes returns the current tracked-leaf count. The empty
// tree has one trivial all-reference haplotype.
func (t *HaplotypeTree) NumHaplotypes() int {
	return len(t.leaves)
}

// conflicts reports whether two allele regions cannot coexist on one
// haplotype: overlapping intervals, or two insertions at the same
// point. Touching regions are compatible.
func conflicts(a, b genome.Region) bool {
	if a.IsEmpty() && b.IsEmpty() {
		return a.Begin == b.Begin
	}
	return a.Begin < b.End && b.Begin < a.End
}

// canExtend reports whether a leaf accepts an allele at the given
// region. The whole path is checked, since holdout re-insertion adds
// alleles out of Begin order.
func canExtend(leaf *treeNode, region genome.Region) bool {
	for node := leaf; node.parent != nil; node = node.parent {
		if conflicts(node.allele.Region, region) {
			return false
		}
	}
	return true
}

// ExtendingCount returns the leaf count the tree would have after
// extending with the variant.
func (t *HaplotypeTree) ExtendingCount(v genome.Variant) int {
	count := len(t.leaves)
	for _, leaf := range t.leaves {
		if canExtend(leaf, v.Region) {
			count++
		}
	}
	return count
}

// Extend adds the variant's alternate allele as a new branch to every
// compatible leaf. Leaves the variant conflicts with carry on
// unchanged.
func (t *HaplotypeTree) Extend(v genome.Variant) {
	if v.Region.Contig != t.contig {
		log.Panicf("extending %v tree with variant on %v", t.contig, v.Region.Contig)
	}
	leaves := make([]*treeNode, 0, 2*len(t.leaves))
	for _, leaf := range t.leaves {
		leaves = append(leaves, leaf)
		if !canExtend(leaf, v.Region) {
			continue
		}
		child := &treeNode{allele: v.AltAllele(), parent: leaf}
		leaf.children = append(leaf.children, child)
		leaves = append(leaves, child)
	}
	t.leaves = leaves
}

// Seed replaces the tree contents with one path per allele chain,
// deduplicating identical chains. It re-seeds the next sub-region
// with the indicator alleles of the previous one.
func (t *HaplotypeTree) Seed(chains [][]genome.Allele) {
	t.Clear()
	for _, chain := range chains {
		node := t.root
		for _, a := range chain {
			var next *treeNode
			for _, c := range node.children {
				if c.allele == a {
					next = c
					break
				}
			}
			if next == nil {
				next = &treeNode{allele: a, parent: node}
				node.children = append(node.children, next)
			}
			node = next
		}
		found := false
		for _, leaf := range t.leaves {
			if leaf == node {
				found = true
				break
			}
		}
		if !found {
			t.leaves = append(t.leaves, node)
		}
	}
	if len(t.leaves) == 0 {
		t.leaves = []*treeNode{t.root}
	}
}

// pathAlleles collects the alleles on the path to a leaf in Begin
// order.
func pathAlleles(leaf *treeNode) []genome.Allele {
	var reversed []genome.Allele
	for node := leaf; node.parent != nil; node = node.parent {
		reversed = append(reversed, node.allele)
	}
	alleles := make([]genome.Allele, len(reversed))
	for i, a := range reversed {
		alleles[len(reversed)-1-i] = a
	}
	return alleles
}

// Region returns the smallest region covering all alleles in the
// tree, and false for the trivial tree.
func (t *HaplotypeTree) Region() (genome.Region, bool) {
	var region genome.Region
	found := false
	var walk func(node *treeNode)
	walk = func(node *treeNode) {
		if node.parent != nil {
			if !found {
				region = node.allele.Region
				found = true
			} else {
				region = region.Span(node.allele.Region)
			}
		}
		for _, c := range node.children {
			walk(c)
		}
	}
	walk(t.root)
	return region, found
}

// Haplotypes materialises every leaf over the given region into the
// arena and returns the per-leaf haplotype IDs. Distinct leaves can
// map to the same ID when their paths spell the same sequence.
func (t *HaplotypeTree) Haplotypes(region genome.Region, arena *genome.Arena) []genome.ID {
	ids := make([]genome.ID, len(t.leaves))
	for i, leaf := range t.leaves {
		h := genome.NewHaplotype(region, pathAlleles(leaf), t.ref)
		ids[i] = arena.Add(h)
	}
	return ids
}

// Keep retains only the leaves whose bit is set in survivors and
// prunes branches with no surviving leaf and no surviving ancestor
// path ending on them. Leaf order is preserved.
func (t *HaplotypeTree) Keep(survivors *bitset.BitSet) {
	keptNodes := make(map[*treeNode]bool)
	kept := make([]*treeNode, 0, survivors.Count())
	var removed []*treeNode
	for i, leaf := range t.leaves {
		if survivors.Test(uint(i)) {
			keptNodes[leaf] = true
			kept = append(kept, leaf)
		} else {
			removed = append(removed, leaf)
		}
	}
	if len(kept) == 0 {
		log.Panic("pruned all haplotypes")
	}
	for _, leaf := range removed {
		for node := leaf; node.parent != nil && len(node.children) == 0 && !keptNodes[node]; {
			parent := node.parent
			children := parent.children[:0]
			for _, c := range parent.children {
				if c != node {
					children = append(children, c)
				}
			}
			parent.children = children
			node = parent
		}
	}
	t.leaves = kept
}

// KeepIDs retains only the leaves whose haplotype IDs are in the
// survivor set, given the per-leaf IDs from Haplotypes.
func (t *HaplotypeTree) KeepIDs(leafIDs []genome.ID, survivors []genome.ID) {
	mask := bitset.New(uint(len(t.leaves)))
	for i, id := range leafIDs {
		for _, s := range survivors {
			if id == s {
				mask.Set(uint(i))
				break
			}
		}
	}
	t.Keep(mask)
}

// Clear resets the tree to the trivial all-reference state.
func (t *HaplotypeTree) Clear() {
	t.root = &treeNode{}
	t.leaves = []*treeNode{t.root}
}

// LeadingAlleles returns the allele suffixes of the current leaves
// that end at or after boundary, one chain per leaf, for use as
// indicators in the next sub-region.
func (t *HaplotypeTree) LeadingAlleles(boundary int32) [][]genome.Allele {
	chains := make([][]genome.Allele, 0, len(t.leaves))
	for _, leaf := range t.leaves {
		var chain []genome.Allele
		for _, a := range pathAlleles(leaf) {
			if a.Region.End > boundary || a.Region.IsEmpty() && a.Region.Begin >= boundary {
				chain = append(chain, a)
			}
		}
		chains = append(chains, chain)
	}
	return chains
}
