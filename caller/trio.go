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
	"math"
	"sort"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

type trioTriple struct {
	mother, father, child int
}

// trioLatents holds the joint genotype inference over the trio:
// triples index into the shared genotype space.
type trioLatents struct {
	triples    []trioTriple
	posteriors []float64
	mapTriple  int
}

// TrioModel infers mother, father, and child jointly under a
// Mendelian transmission prior convolved with a de novo model. The
// child's genotype space is enumerated over the union of both
// parents' haplotype sets.
type TrioModel struct {
	cfg     *CoreConfig
	ref     genome.Reference
	samples []string
}

func (m *TrioModel) childSample() string {
	for _, sample := range m.samples {
		if sample != m.cfg.MaternalSample && sample != m.cfg.PaternalSample {
			return sample
		}
	}
	log.Panic("no child sample in trio")
	return ""
}

// gamete is one transmitted haplotype with its selection probability.
type gamete struct {
	id   genome.ID
	prob float64
}

func gametes(g genome.Genotype) []gamete {
	ids := g.IDs()
	prob := 1 / float64(len(ids))
	result := make([]gamete, len(ids))
	for i, id := range ids {
		result[i] = gamete{id: id, prob: prob}
	}
	return result
}

// transmissionProb is the probability a transmitted haplotype is
// observed as the child haplotype, allowing a de novo switch to any
// other haplotype in the space.
func (m *TrioModel) transmissionProb(child, transmitted genome.ID, nofHaplotypes int) float64 {
	delta := m.cfg.DenovoMutationRate
	if child == transmitted {
		return 1 - delta
	}
	if nofHaplotypes < 2 {
		return delta
	}
	return delta / float64(nofHaplotypes-1)
}

// mendelianProb computes M(g_child | g_mother, g_father), the
// transmission probability of the child genotype. Diploid children
// receive one gamete from each parent; haploid children receive a
// maternal gamete.
func (m *TrioModel) mendelianProb(child, mother, father genome.Genotype, nofHaplotypes int) float64 {
	childIDs := child.IDs()
	switch len(childIDs) {
	case 1:
		total := 0.0
		for _, gm := range gametes(mother) {
			total += gm.prob * m.transmissionProb(childIDs[0], gm.id, nofHaplotypes)
		}
		return total
	case 2:
		a, b := childIDs[0], childIDs[1]
		total := 0.0
		for _, gm := range gametes(mother) {
			for _, gf := range gametes(father) {
				p := m.transmissionProb(a, gm.id, nofHaplotypes) * m.transmissionProb(b, gf.id, nofHaplotypes)
				if a != b {
					p += m.transmissionProb(b, gm.id, nofHaplotypes) * m.transmissionProb(a, gf.id, nofHaplotypes)
				}
				total += gm.prob * gf.prob * p
			}
		}
		return total
	default:
		// higher child ploidies fall back to independent maternal draws
		total := 1.0
		for _, id := range childIDs {
			sum := 0.0
			for _, gm := range gametes(mother) {
				sum += gm.prob * m.transmissionProb(id, gm.id, nofHaplotypes)
			}
			total *= sum
		}
		return total
	}
}

// topGenotypes ranks genotype indexes by prior plus likelihood and
// returns the best k.
func topGenotypes(scores []float64, k int) []int {
	indexes := make([]int, len(scores))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(i, j int) bool {
		return scores[indexes[i]] > scores[indexes[j]]
	})
	if len(indexes) > k {
		indexes = indexes[:k]
	}
	return indexes
}

func (m *TrioModel) InferLatents(block *ActiveBlock, likelihoods Likelihoods) *Latents {
	cfg := m.cfg
	ploidy := cfg.ContigPloidy(block.Region.Contig)
	genotypes := genome.EnumerateGenotypes(block.IDs, ploidy)
	mother, father, child := cfg.MaternalSample, cfg.PaternalSample, m.childSample()

	// per-sample scores reused for both top-K selection and the joint
	scores := make(map[string][]float64, 3)
	for _, sample := range []string{mother, father, child} {
		s := make([]float64, len(genotypes))
		for i, g := range genotypes {
			s[i] = genotypeLog10Prior(cfg, block.Arena, g) + genotypeLog10Likelihood(likelihoods[sample], g)
		}
		scores[sample] = s
	}

	motherIdx := make([]int, len(genotypes))
	fatherIdx := make([]int, len(genotypes))
	childIdx := make([]int, len(genotypes))
	for i := range genotypes {
		motherIdx[i], fatherIdx[i], childIdx[i] = i, i, i
	}
	if len(genotypes)*len(genotypes)*len(genotypes) > cfg.MaxJointGenotypes {
		k := maxInt(1, int(math.Cbrt(float64(cfg.MaxJointGenotypes))))
		motherIdx = topGenotypes(scores[mother], k)
		fatherIdx = topGenotypes(scores[father], k)
		childIdx = topGenotypes(scores[child], k)
	}

	latents := &Latents{
		Block:       block,
		Genotypes:   genotypes,
		Posteriors:  make(map[string][]float64, 3),
		MAP:         make(map[string]int, 3),
		Likelihoods: likelihoods,
		trio:        &trioLatents{},
	}

	nofHaplotypes := len(block.IDs)
	var triples []trioTriple
	var joint []float64
	for _, mi := range motherIdx {
		for _, fi := range fatherIdx {
			base := scores[mother][mi] + scores[father][fi]
			for _, ci := range childIdx {
				mendelian := m.mendelianProb(genotypes[ci], genotypes[mi], genotypes[fi], nofHaplotypes)
				score := base + genotypeLog10Likelihood(likelihoods[child], genotypes[ci]) + log10(mendelian)
				triples = append(triples, trioTriple{mother: mi, father: fi, child: ci})
				joint = append(joint, score)
			}
		}
	}
	normalizeLog10s(joint)
	latents.trio.triples = triples
	latents.trio.posteriors = joint
	latents.trio.mapTriple = argmax(joint)

	// per-sample marginals over the shared genotype space
	for sample, pick := range map[string]func(t trioTriple) int{
		mother: func(t trioTriple) int { return t.mother },
		father: func(t trioTriple) int { return t.father },
		child:  func(t trioTriple) int { return t.child },
	} {
		marginal := make([]float64, len(genotypes))
		for i, t := range triples {
			marginal[pick(t)] += joint[i]
		}
		latents.Posteriors[sample] = marginal
	}

	mapTriple := triples[latents.trio.mapTriple]
	latents.MAP[mother] = mapTriple.mother
	latents.MAP[father] = mapTriple.father
	latents.MAP[child] = mapTriple.child
	return latents
}

// denovoTriple reports whether the allele is de novo under a triple:
// carried by the child and absent from both parents.
func denovoTriple(arena *genome.Arena, ref genome.Reference, genotypes []genome.Genotype, t trioTriple, a genome.Allele) bool {
	return genotypes[t.child].ContainsAllele(arena, a, ref) &&
		!genotypes[t.mother].ContainsAllele(arena, a, ref) &&
		!genotypes[t.father].ContainsAllele(arena, a, ref)
}

// isMendelianConsistent reports whether every child haplotype of the
// triple can be inherited from the parents without a de novo event.
func isMendelianConsistent(genotypes []genome.Genotype, t trioTriple) bool {
	for _, id := range genotypes[t.child].IDs() {
		if !genotypes[t.mother].Contains(id) && !genotypes[t.father].Contains(id) {
			return false
		}
	}
	return true
}

func (m *TrioModel) CallVariants(candidates []*Candidate, latents *Latents) []*Call {
	m.reselectViableMAP(candidates, latents)
	calls := callGermlineVariants(m.cfg, m.ref, m.samples, candidates, latents)

	arena := latents.Block.Arena
	genotypes := latents.Genotypes
	mother, father, child := m.cfg.MaternalSample, m.cfg.PaternalSample, m.childSample()
	trio := latents.trio
	for _, call := range calls {
		alt := call.Variant.AltAllele()
		childMAP := genotypes[latents.MAP[child]]
		if !childMAP.ContainsAllele(arena, alt, m.ref) {
			continue
		}
		if genotypes[latents.MAP[mother]].ContainsAllele(arena, alt, m.ref) ||
			genotypes[latents.MAP[father]].ContainsAllele(arena, alt, m.ref) {
			continue
		}
		notDenovo := 0.0
		for i, t := range trio.triples {
			if !denovoTriple(arena, m.ref, genotypes, t, alt) {
				notDenovo += trio.posteriors[i]
			}
		}
		posterior := probToPhred(1 - notDenovo)
		if posterior >= m.cfg.MinDenovoPosterior {
			call.Denovo = &DenovoAnnotation{Posterior: posterior}
		}
	}
	return calls
}

// reselectViableMAP replaces a Mendelian-inconsistent MAP triple by
// the best consistent one when no allele justifies the inconsistency
// with a confident de novo posterior.
func (m *TrioModel) reselectViableMAP(candidates []*Candidate, latents *Latents) {
	trio := latents.trio
	genotypes := latents.Genotypes
	mapTriple := trio.triples[trio.mapTriple]
	if isMendelianConsistent(genotypes, mapTriple) {
		return
	}
	arena := latents.Block.Arena
	for _, candidate := range candidates {
		alt := candidate.Variant.AltAllele()
		if !denovoTriple(arena, m.ref, genotypes, mapTriple, alt) {
			continue
		}
		notDenovo := 0.0
		for i, t := range trio.triples {
			if !denovoTriple(arena, m.ref, genotypes, t, alt) {
				notDenovo += trio.posteriors[i]
			}
		}
		if probToPhred(1-notDenovo) >= m.cfg.MinDenovoPosterior {
			// the inconsistency is a supported de novo event
			return
		}
	}
	best := -1
	for i, t := range trio.triples {
		if !isMendelianConsistent(genotypes, t) {
			continue
		}
		if best < 0 || trio.posteriors[i] > trio.posteriors[best] {
			best = i
		}
	}
	if best < 0 {
		return
	}
	trio.mapTriple = best
	t := trio.triples[best]
	latents.MAP[m.cfg.MaternalSample] = t.mother
	latents.MAP[m.cfg.PaternalSample] = t.father
	latents.MAP[m.childSample()] = t.child
}

func (m *TrioModel) CallReference(alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call {
	return callReferenceAlleles(m.cfg, m.ref, m.samples, alleles, latents, reads)
}
