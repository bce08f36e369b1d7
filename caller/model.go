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
	"sort"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

// Latents holds the posterior state of one active sub-region: the
// genotype space, per-sample genotype posteriors, and model-specific
// extensions.
type Latents struct {
	Block       *ActiveBlock
	Genotypes   []genome.Genotype
	Posteriors  map[string][]float64 // normalized over Genotypes, per sample
	MAP         map[string]int       // index of the MAP genotype per sample
	Likelihoods Likelihoods

	somatic map[string]*somaticLatents
	trio    *trioLatents
}

// MAPGenotype returns a sample's maximum-posterior genotype.
func (l *Latents) MAPGenotype(sample string) genome.Genotype {
	return l.Genotypes[l.MAP[sample]]
}

// A Model is one of the four genotype callers.
type Model interface {
	InferLatents(block *ActiveBlock, likelihoods Likelihoods) *Latents
	CallVariants(candidates []*Candidate, latents *Latents) []*Call
	CallReference(alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call
}

// NewModel selects the caller configured for the run.
func NewModel(cfg *CoreConfig, ref genome.Reference, samples []string) Model {
	switch cfg.Caller {
	case IndividualCalling:
		return &IndividualModel{cfg: cfg, ref: ref, samples: samples}
	case PopulationCalling:
		return &PopulationModel{cfg: cfg, ref: ref, samples: samples}
	case CancerCalling:
		return &CancerModel{cfg: cfg, ref: ref, samples: samples}
	case TrioCalling:
		return &TrioModel{cfg: cfg, ref: ref, samples: samples}
	default:
		log.Panicf("invalid caller %v", cfg.Caller)
		return nil
	}
}

// genotypeLog10Prior is the coalescent-style genotype prior: each
// carried copy of an alternate allele contributes its heterozygosity
// factor.
func genotypeLog10Prior(cfg *CoreConfig, arena *genome.Arena, g genome.Genotype) float64 {
	prior := 0.0
	for _, id := range g.IDs() {
		for _, a := range arena.Get(id).Alleles {
			if len(a.Sequence) == int(a.Region.Size()) {
				prior += log10(cfg.SnpHeterozygosity)
			} else {
				prior += log10(cfg.IndelHeterozygosity)
			}
		}
	}
	return prior
}

// genotypeLog10Likelihood computes log10 Π_read P(read | g) with
// P(read | g) = (1/p) Σ_{h∈g} 10^likelihood(read, h).
func genotypeLog10Likelihood(lhs *SampleLikelihoods, g genome.Genotype) float64 {
	ids := g.IDs()
	logPloidy := log10(float64(len(ids)))
	total := 0.0
	scratch := make([]float64, len(ids))
	for r := range lhs.Alns {
		for i, id := range ids {
			scratch[i] = lhs.Values[id][r]
		}
		total += log10SumExp(scratch) - logPloidy
	}
	return total
}

// genotypePosteriors computes the normalized genotype posteriors of
// one sample under the single-sample model.
func genotypePosteriors(cfg *CoreConfig, arena *genome.Arena, genotypes []genome.Genotype, lhs *SampleLikelihoods) []float64 {
	posteriors := make([]float64, len(genotypes))
	for i, g := range genotypes {
		posteriors[i] = genotypeLog10Prior(cfg, arena, g) + genotypeLog10Likelihood(lhs, g)
	}
	normalizeLog10s(posteriors)
	return posteriors
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// allelePosterior returns the posterior probability that at least one
// haplotype copy of the sample's genotype carries the allele.
func allelePosterior(arena *genome.Arena, ref genome.Reference, genotypes []genome.Genotype, posteriors []float64, a genome.Allele) float64 {
	without := 0.0
	for i, g := range genotypes {
		if !g.ContainsAllele(arena, a, ref) {
			without += posteriors[i]
		}
	}
	p := 1 - without
	if p < 0 {
		return 0
	}
	return p
}

// SurvivingHaplotypes ranks haplotypes by the posterior mass of the
// genotypes containing them, across samples, and returns the top max.
func (l *Latents) SurvivingHaplotypes(max int) []genome.ID {
	ids := l.Block.IDs
	mass := make(map[genome.ID]float64, len(ids))
	for _, posteriors := range l.Posteriors {
		for i, g := range l.Genotypes {
			for j, id := range g.IDs() {
				if j > 0 && id == g.IDs()[j-1] {
					continue
				}
				if posteriors[i] > mass[id] {
					mass[id] = posteriors[i]
				}
			}
		}
	}
	ranked := append([]genome.ID{}, ids...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return mass[ranked[i]] > mass[ranked[j]]
	})
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i] < ranked[j] })
	return ranked
}

// genotypeCall builds one sample's genotype call for a variant from
// its MAP genotype.
func genotypeCall(arena *genome.Arena, ref genome.Reference, g genome.Genotype, posterior float64, v genome.Variant, alns []*sam.Alignment) *GenotypeCall {
	altCopies := g.CountAllele(arena, v.AltAllele(), ref)
	alleles := make([]int, g.Ploidy())
	for i := g.Ploidy() - altCopies; i < g.Ploidy(); i++ {
		alleles[i] = 1
	}
	return &GenotypeCall{
		Alleles:   alleles,
		Posterior: probToPhred(posterior),
		Depth:     siteDepth(alns, v.Region.Begin),
	}
}

// callGermlineVariants is the shared variant calling step of the
// individual and population models: a variant is called when the
// combined across-sample alt-allele posterior clears the threshold.
func callGermlineVariants(cfg *CoreConfig, ref genome.Reference, samples []string, candidates []*Candidate, latents *Latents) []*Call {
	arena := latents.Block.Arena
	var calls []*Call
	for _, candidate := range candidates {
		v := candidate.Variant
		if !v.Region.Overlaps(latents.Block.Region) {
			continue
		}
		alt := v.AltAllele()
		noAlt := 1.0
		perSample := make(map[string]float64, len(samples))
		for _, sample := range samples {
			p := allelePosterior(arena, ref, latents.Genotypes, latents.Posteriors[sample], alt)
			perSample[sample] = p
			noAlt *= 1 - p
		}
		posterior := probToPhred(1 - noAlt)
		if posterior < cfg.MinVariantPosterior {
			continue
		}
		call := &Call{
			Variant:       v,
			Posterior:     posterior,
			Genotypes:     make(map[string]*GenotypeCall, len(samples)),
			SourceSupport: candidate.SourceSupport,
			PhaseSets:     make(map[string]int32),
		}
		for _, sample := range samples {
			mapIndex := latents.MAP[sample]
			call.Genotypes[sample] = genotypeCall(
				arena, ref,
				latents.Genotypes[mapIndex],
				latents.Posteriors[sample][mapIndex],
				v,
				latents.Likelihoods[sample].Alns,
			)
		}
		calls = append(calls, call)
	}
	SortCalls(calls)
	return calls
}

// callReferenceAlleles is the shared reference calling step: a
// refcall is emitted for each allele site confidently homozygous
// reference in every sample.
func callReferenceAlleles(cfg *CoreConfig, ref genome.Reference, samples []string, alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call {
	arena := latents.Block.Arena
	var calls []*Call
	for _, a := range alleles {
		noAlt := 1.0
		for _, sample := range samples {
			p := allelePosterior(arena, ref, latents.Genotypes, latents.Posteriors[sample], a)
			noAlt *= 1 - p
		}
		posterior := probToPhred(noAlt)
		if posterior < cfg.MinRefcallPosterior {
			continue
		}
		refSeq := ref.Slice(a.Region)
		call := &Call{
			Variant: genome.Variant{
				Region: a.Region,
				Ref:    refSeq,
				Alt:    refSeq,
			},
			Posterior: posterior,
			Genotypes: make(map[string]*GenotypeCall, len(samples)),
			IsRefCall: true,
			PhaseSets: make(map[string]int32),
		}
		for _, sample := range samples {
			mapIndex := latents.MAP[sample]
			g := latents.Genotypes[mapIndex]
			call.Genotypes[sample] = &GenotypeCall{
				Alleles:   make([]int, g.Ploidy()),
				Posterior: probToPhred(latents.Posteriors[sample][mapIndex]),
				Depth:     siteDepth(reads[sample], a.Region.Begin),
			}
		}
		calls = append(calls, call)
	}
	SortCalls(calls)
	return calls
}
