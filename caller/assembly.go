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
	"github.com/gmagoon/octopus/sam"
)

const (
	assemblyPadding     = 50
	assemblyBaseQuality = 10
	maxBubbleLength     = 200
)

type asmVertex struct {
	kmer   string
	refPos int32 // start offset of the kmer in the window reference, -1 for non-reference vertices
}

type asmEdge struct {
	target       *asmVertex
	multiplicity int
	isRef        bool
}

type asmGraph struct {
	k        int
	vertices map[string]*asmVertex
	edges    map[*asmVertex][]*asmEdge
}

func newAsmGraph(k int) *asmGraph {
	return &asmGraph{
		k:        k,
		vertices: make(map[string]*asmVertex),
		edges:    make(map[*asmVertex][]*asmEdge),
	}
}

func (g *asmGraph) vertex(kmer string) *asmVertex {
	v := g.vertices[kmer]
	if v == nil {
		v = &asmVertex{kmer: kmer, refPos: -1}
		g.vertices[kmer] = v
	}
	return v
}

func (g *asmGraph) addEdge(from, to *asmVertex, isRef bool) {
	for _, e := range g.edges[from] {
		if e.target == to {
			e.multiplicity++
			e.isRef = e.isRef || isRef
			return
		}
	}
	g.edges[from] = append(g.edges[from], &asmEdge{target: to, multiplicity: 1, isRef: isRef})
}

// addReferencePath threads the window reference through the graph.
// It fails when a reference kmer repeats, since anchor positions are
// then ambiguous.
func (g *asmGraph) addReferencePath(ref string) bool {
	if len(ref) < g.k {
		return false
	}
	var prev *asmVertex
	for i := 0; i+g.k <= len(ref); i++ {
		v := g.vertex(ref[i : i+g.k])
		if v.refPos >= 0 {
			return false
		}
		v.refPos = int32(i)
		if prev != nil {
			g.addEdge(prev, v, true)
		}
		prev = v
	}
	return true
}

// addRead threads the usable stretches of a read through the graph. A
// base is usable when it is a proper nucleotide with sufficient
// quality.
func (g *asmGraph) addRead(aln *sam.Alignment) {
	usable := func(i int) bool {
		switch aln.SEQ[i] {
		case 'A', 'C', 'G', 'T':
			return aln.QUAL[i] >= assemblyBaseQuality
		}
		return false
	}
	var prev *asmVertex
	for i := 0; i+g.k <= len(aln.SEQ); i++ {
		ok := true
		for j := i; j < i+g.k; j++ {
			if !usable(j) {
				ok = false
				break
			}
		}
		if !ok {
			prev = nil
			continue
		}
		v := g.vertex(aln.SEQ[i : i+g.k])
		if prev != nil {
			g.addEdge(prev, v, false)
		}
		prev = v
	}
}

// prune removes non-reference edges with too little read support.
func (g *asmGraph) prune(minSupport int) {
	for from, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.isRef || e.multiplicity >= minSupport {
				kept = append(kept, e)
			}
		}
		g.edges[from] = kept
	}
}

func (g *asmGraph) hasCycle() bool {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[*asmVertex]int, len(g.vertices))
	var visit func(v *asmVertex) bool
	visit = func(v *asmVertex) bool {
		state[v] = onStack
		for _, e := range g.edges[v] {
			switch state[e.target] {
			case onStack:
				return true
			case unvisited:
				if visit(e.target) {
					return true
				}
			}
		}
		state[v] = done
		return false
	}
	for _, v := range g.vertices {
		if state[v] == unvisited && visit(v) {
			return true
		}
	}
	return false
}

func (g *asmGraph) isLowComplexity(ref string) bool {
	nonUnique := 0
	seen := make(map[string]bool)
	for i := 0; i+g.k <= len(ref); i++ {
		kmer := ref[i : i+g.k]
		if seen[kmer] {
			nonUnique++
		}
		seen[kmer] = true
	}
	return nonUnique*4 > len(seen)
}

// bubbleVariant converts a ref/alt path pair into a variant by
// trimming the common suffix then prefix, like variant normalisation.
func bubbleVariant(contig string, windowBegin int32, refStart int32, refStr, altStr string) (genome.Variant, bool) {
	for len(refStr) > 0 && len(altStr) > 0 && refStr[len(refStr)-1] == altStr[len(altStr)-1] {
		refStr = refStr[:len(refStr)-1]
		altStr = altStr[:len(altStr)-1]
	}
	var prefix int32
	for int(prefix) < len(refStr) && int(prefix) < len(altStr) && refStr[prefix] == altStr[prefix] {
		prefix++
	}
	refStr = refStr[prefix:]
	altStr = altStr[prefix:]
	if refStr == altStr {
		return genome.Variant{}, false
	}
	begin := windowBegin + refStart + prefix
	return genome.Variant{
		Region: genome.Region{Contig: contig, Begin: begin, End: begin + int32(len(refStr))},
		Ref:    refStr,
		Alt:    altStr,
	}, true
}

// bubbles walks every non-reference branch off the reference backbone
// until it rejoins the backbone, emitting a variant per simple
// bubble. Branches that fork again, dead-end, or rejoin backwards are
// not simple and are skipped.
func (g *asmGraph) bubbles(contig string, windowBegin int32, ref string, minSupport int) (variants []genome.Variant) {
	for _, v := range g.vertices {
		if v.refPos < 0 {
			continue
		}
		for _, first := range g.edges[v] {
			if first.isRef || first.target.refPos >= 0 && first.target.refPos == v.refPos+1 {
				continue
			}
			altSuffix := []byte{}
			support := first.multiplicity
			current := first.target
			simple := true
			for steps := 0; ; steps++ {
				if steps > maxBubbleLength {
					simple = false
					break
				}
				altSuffix = append(altSuffix, current.kmer[g.k-1])
				if current.refPos >= 0 {
					break
				}
				next := g.edges[current]
				if len(next) != 1 {
					simple = false
					break
				}
				if next[0].multiplicity < support {
					support = next[0].multiplicity
				}
				current = next[0].target
			}
			if !simple || support < minSupport || current.refPos <= v.refPos {
				continue
			}
			refStr := ref[v.refPos : current.refPos+int32(g.k)]
			altStr := v.kmer + string(altSuffix)
			if variant, ok := bubbleVariant(contig, windowBegin, v.refPos, refStr, altStr); ok {
				variants = append(variants, variant)
			}
		}
	}
	return variants
}

// assemble proposes variants from de Bruijn re-assembly of the reads
// over the padded region. Kmer sizes are tried in a ladder; a size is
// skipped when the reference kmers repeat, the graph has cycles, or
// the window is low complexity. When no configured size succeeds, the
// ladder is extended a few steps.
func (g *CandidateGenerator) assemble(region genome.Region, reads sam.ReadMap) []genome.Variant {
	windowBegin := region.Begin - assemblyPadding
	if windowBegin < 0 {
		windowBegin = 0
	}
	windowEnd := region.End + assemblyPadding
	if length := g.ref.ContigLength(region.Contig); windowEnd > length {
		windowEnd = length
	}
	window := genome.Region{Contig: region.Contig, Begin: windowBegin, End: windowEnd}
	ref := g.ref.Slice(window)

	var alns []*sam.Alignment
	for _, sampleAlns := range reads {
		for _, aln := range sampleAlns {
			if aln.Region().Overlaps(window) {
				alns = append(alns, aln)
			}
		}
	}
	if len(alns) == 0 {
		return nil
	}

	processKmerSize := func(k int, lastAttempt bool) ([]genome.Variant, bool) {
		if len(ref) < k {
			return nil, false
		}
		graph := newAsmGraph(k)
		if !graph.addReferencePath(ref) {
			return nil, false
		}
		if !lastAttempt && graph.isLowComplexity(ref) {
			return nil, false
		}
		for _, aln := range alns {
			graph.addRead(aln)
		}
		graph.prune(g.cfg.MinSupportingReads)
		if graph.hasCycle() {
			return nil, false
		}
		return graph.bubbles(region.Contig, windowBegin, ref, g.cfg.MinSupportingReads), true
	}

	var variants []genome.Variant
	var graphSeen bool
	for _, k := range g.cfg.KmerSizes {
		if vs, ok := processKmerSize(k, false); ok {
			graphSeen = true
			variants = append(variants, vs...)
		}
	}
	if !graphSeen {
		k := g.cfg.KmerSizes[len(g.cfg.KmerSizes)-1] + 10
		for attempt := 1; attempt < 6; attempt++ {
			if vs, ok := processKmerSize(k, attempt == 5); ok {
				variants = append(variants, vs...)
				break
			}
			k += 10
		}
	}

	result := variants[:0]
	for _, v := range variants {
		normalised := genome.Normalise(v, g.ref)
		if normalised.Region.Overlaps(region) {
			result = append(result, normalised)
		}
	}
	return result
}
