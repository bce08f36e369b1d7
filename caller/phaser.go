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
	"math"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

// per-read error rate assumed when reads spanning two sites vote on
// their phase
const phasingReadErrorRate = 0.05

// A Phaser groups the calls of one active sub-region into phase sets
// per sample.
type Phaser struct {
	cfg *CoreConfig
	ref genome.Reference
}

func NewPhaser(cfg *CoreConfig, ref genome.Reference) *Phaser {
	return &Phaser{cfg: cfg, ref: ref}
}

// cooccur reports whether some single haplotype of the genotype
// carries both alleles.
func cooccur(arena *genome.Arena, ref genome.Reference, g genome.Genotype, a1, a2 genome.Allele) bool {
	for i, id := range g.IDs() {
		if i > 0 && id == g.IDs()[i-1] {
			continue
		}
		h := arena.Get(id)
		if h.Contains(a1, ref) && h.Contains(a2, ref) {
			return true
		}
	}
	return false
}

// modelCooccurrence computes P(both alleles co-occur on a single
// haplotype) as a marginal over the sample's genotype posteriors. The
// conditional form restricts the marginal to genotypes carrying both
// alleles; the unconditional form sums over the full space.
func (p *Phaser) modelCooccurrence(latents *Latents, sample string, a1, a2 genome.Allele) float64 {
	arena := latents.Block.Arena
	posteriors := latents.Posteriors[sample]
	if p.cfg.UseUnconditionalPhaseScore {
		total := 0.0
		for i, g := range latents.Genotypes {
			if cooccur(arena, p.ref, g, a1, a2) {
				total += posteriors[i]
			}
		}
		return total
	}
	together, carrying := 0.0, 0.0
	for i, g := range latents.Genotypes {
		if !g.ContainsAllele(arena, a1, p.ref) || !g.ContainsAllele(arena, a2, p.ref) {
			continue
		}
		carrying += posteriors[i]
		if cooccur(arena, p.ref, g, a1, a2) {
			together += posteriors[i]
		}
	}
	if carrying == 0 {
		return 0
	}
	return together / carrying
}

// readVote classifies one read against two SNV sites: +1 for a cis
// observation (both alternate or both reference), -1 for trans, 0
// when the read does not span both sites or either variant is not a
// substitution.
func readVote(aln *sam.Alignment, v1, v2 genome.Variant) int {
	if !v1.IsSNV() || !v2.IsSNV() {
		return 0
	}
	base := func(v genome.Variant) (byte, bool) {
		offset := v.Region.Begin - aln.POS
		if offset < 0 || int(offset) >= len(aln.SEQ) {
			return 0, false
		}
		return aln.SEQ[offset], true
	}
	b1, ok1 := base(v1)
	b2, ok2 := base(v2)
	if !ok1 || !ok2 {
		return 0
	}
	alt1, alt2 := b1 == v1.Alt[0], b2 == v2.Alt[0]
	ref1, ref2 := b1 == v1.Ref[0], b2 == v2.Ref[0]
	switch {
	case alt1 && alt2 || ref1 && ref2:
		return 1
	case alt1 && ref2 || ref1 && alt2:
		return -1
	default:
		return 0
	}
}

// phaseScore computes Φ(c1, c2) for one sample, in phred scale.
func (p *Phaser) phaseScore(latents *Latents, sample string, c1, c2 *Call) float64 {
	a1, a2 := c1.Variant.AltAllele(), c2.Variant.AltAllele()
	prob := p.modelCooccurrence(latents, sample, a1, a2)

	if !p.cfg.DisableReadGuidedPhasing {
		if prob <= 0 {
			prob = 1e-10
		}
		if prob >= 1 {
			prob = 1 - 1e-10
		}
		logOdds := log10(prob / (1 - prob))
		voteWeight := log10((1 - phasingReadErrorRate) / phasingReadErrorRate)
		for _, aln := range latents.Likelihoods[sample].Alns {
			switch readVote(aln, c1.Variant, c2.Variant) {
			case 1:
				logOdds += voteWeight
			case -1:
				logOdds -= voteWeight
			}
		}
		prob = 1 / (1 + math.Pow(10, -logOdds))
	}

	return probToPhred(prob)
}

// isHeterozygous reports whether the sample's genotype call mixes
// reference and alternate copies; only those need phase annotation.
func isHeterozygous(g *GenotypeCall) bool {
	if g == nil {
		return false
	}
	hasRef, hasAlt := false, false
	for _, a := range g.Alleles {
		if a == 0 {
			hasRef = true
		} else {
			hasAlt = true
		}
	}
	return hasRef && hasAlt
}

// Phase assigns phase set ids to the calls of one active sub-region.
// Sets are transitive closures of pairs whose phase score clears the
// threshold; the id of a set is the 1-based position of its leftmost
// call.
func (p *Phaser) Phase(calls []*Call, latents *Latents) {
	samples := make(map[string]bool)
	for _, c := range calls {
		for sample := range c.Genotypes {
			samples[sample] = true
		}
	}

	for sample := range samples {
		var phasable []int
		for i, c := range calls {
			if !c.IsRefCall && isHeterozygous(c.Genotypes[sample]) {
				phasable = append(phasable, i)
			}
		}
		if len(phasable) < 2 {
			continue
		}

		parent := make([]int, len(phasable))
		for i := range parent {
			parent[i] = i
		}
		var find func(i int) int
		find = func(i int) int {
			for parent[i] != i {
				parent[i] = parent[parent[i]]
				i = parent[i]
			}
			return i
		}
		union := func(i, j int) {
			ri, rj := find(i), find(j)
			if ri != rj {
				parent[rj] = ri
			}
		}

		for i := 0; i < len(phasable); i++ {
			for j := i + 1; j < len(phasable); j++ {
				if find(i) == find(j) {
					continue
				}
				score := p.phaseScore(latents, sample, calls[phasable[i]], calls[phasable[j]])
				if score >= p.cfg.MinPhaseScore {
					union(i, j)
				}
			}
		}

		// phase set id: position of the leftmost call in the set
		setPos := make(map[int]int32)
		setSize := make(map[int]int)
		for i, callIndex := range phasable {
			root := find(i)
			pos, _, _ := vcfAlleles(calls[callIndex].Variant, p.ref)
			if current, ok := setPos[root]; !ok || pos < current {
				setPos[root] = pos
			}
			setSize[root]++
		}
		for i, callIndex := range phasable {
			root := find(i)
			if setSize[root] > 1 {
				calls[callIndex].PhaseSets[sample] = setPos[root]
			}
		}
	}
}
