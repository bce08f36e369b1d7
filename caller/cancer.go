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
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

const (
	somaticThetaGridSize     = 99
	somaticBetaConcentration = 10.0
)

// somaticLatents holds the per-tumour-sample somatic inference state:
// the posterior that a somatic haplotype is present, which haplotype,
// and the posterior over its allele frequency θ.
type somaticLatents struct {
	haplotype      genome.ID
	posterior      float64
	thetaGrid      []float64
	thetaPosterior []float64
	vaf            float64
	credibleLow    float64
	credibleHigh   float64
}

// CancerModel designates one sample as normal and infers a shared
// germline genotype plus a per-tumour-sample somatic haplotype with
// allele frequency θ under a truncated Beta prior.
type CancerModel struct {
	cfg     *CoreConfig
	ref     genome.Reference
	samples []string
}

func (m *CancerModel) tumourSamples() (tumours []string) {
	for _, sample := range m.samples {
		if sample != m.cfg.NormalSample {
			tumours = append(tumours, sample)
		}
	}
	return tumours
}

// thetaPrior builds the somatic frequency grid and its normalized
// Beta prior weights. The prior mean is the expected somatic burden
// of the region, truncated to [MinSomaticFrequency, 1).
func (m *CancerModel) thetaPrior(regionSize int32) (grid, weights []float64) {
	mean := m.cfg.SomaticMutationRate * float64(regionSize)
	if mean < m.cfg.MinSomaticFrequency {
		mean = m.cfg.MinSomaticFrequency
	}
	if mean > 0.99 {
		mean = 0.99
	}
	beta := distuv.Beta{
		Alpha: mean * somaticBetaConcentration,
		Beta:  (1 - mean) * somaticBetaConcentration,
	}
	low := m.cfg.MinSomaticFrequency
	step := (1 - low) / float64(somaticThetaGridSize+1)
	grid = make([]float64, somaticThetaGridSize)
	weights = make([]float64, somaticThetaGridSize)
	sum := 0.0
	for k := range grid {
		grid[k] = low + step*float64(k+1)
		weights[k] = beta.Prob(grid[k])
		sum += weights[k]
	}
	for k := range weights {
		weights[k] /= sum
	}
	return grid, weights
}

// germlineReadLog10 computes log10 P(read | g) for every cached read.
func germlineReadLog10(lhs *SampleLikelihoods, g genome.Genotype) []float64 {
	ids := g.IDs()
	logPloidy := log10(float64(len(ids)))
	scratch := make([]float64, len(ids))
	result := make([]float64, len(lhs.Alns))
	for r := range lhs.Alns {
		for i, id := range ids {
			scratch[i] = lhs.Values[id][r]
		}
		result[r] = log10SumExp(scratch) - logPloidy
	}
	return result
}

// somaticLog10Likelihood computes log10 Π_read P(read | g, h, θ) with
// each read drawn from the somatic haplotype with probability θ.
func somaticLog10Likelihood(lhs *SampleLikelihoods, germline []float64, h genome.ID, theta float64) float64 {
	log10Theta := log10(theta)
	log10NotTheta := log10(1 - theta)
	total := 0.0
	for r := range lhs.Alns {
		germ := log10NotTheta + germline[r]
		som := log10Theta + lhs.Values[h][r]
		total += log10SumExp([]float64{germ, som})
	}
	return total
}

func (m *CancerModel) inferSomatic(block *ActiveBlock, lhs *SampleLikelihoods, germlineMAP genome.Genotype) *somaticLatents {
	grid, priorWeights := m.thetaPrior(block.Region.Size())
	germline := germlineReadLog10(lhs, germlineMAP)

	// hypothesis scores: index 0 is "no somatic", then one per
	// haplotype absent from the germline genotype
	var candidates []genome.ID
	for _, id := range block.IDs {
		if !germlineMAP.Contains(id) {
			candidates = append(candidates, id)
		}
	}
	noSomatic := 0.0
	for r := range lhs.Alns {
		noSomatic += germline[r]
	}
	scores := []float64{noSomatic}
	thetaScores := make([][]float64, len(candidates))
	for i, h := range candidates {
		perTheta := make([]float64, len(grid))
		for k, theta := range grid {
			perTheta[k] = log10(priorWeights[k]) + somaticLog10Likelihood(lhs, germline, h, theta)
		}
		thetaScores[i] = perTheta
		scores = append(scores, log10(m.cfg.SomaticMutationRate)+log10SumExp(perTheta))
	}
	normalizeLog10s(scores)

	somaticPosterior := 0.0
	best := -1
	for i := range candidates {
		somaticPosterior += scores[i+1]
		if best < 0 || scores[i+1] > scores[best+1] {
			best = i
		}
	}
	if best < 0 {
		return nil
	}

	result := &somaticLatents{
		haplotype: candidates[best],
		posterior: somaticPosterior,
		thetaGrid: grid,
	}
	thetaPosterior := append([]float64{}, thetaScores[best]...)
	normalizeLog10s(thetaPosterior)
	result.thetaPosterior = thetaPosterior
	for k, theta := range grid {
		result.vaf += theta * thetaPosterior[k]
	}
	tail := (1 - m.cfg.CredibleMass) / 2
	result.credibleLow = gridQuantile(grid, thetaPosterior, tail)
	result.credibleHigh = gridQuantile(grid, thetaPosterior, 1-tail)
	return result
}

// gridQuantile returns the grid point at which the cumulative
// posterior mass first reaches q.
func gridQuantile(grid, weights []float64, q float64) float64 {
	cumulative := 0.0
	for k, w := range weights {
		cumulative += w
		if cumulative >= q {
			return grid[k]
		}
	}
	return grid[len(grid)-1]
}

func (m *CancerModel) InferLatents(block *ActiveBlock, likelihoods Likelihoods) *Latents {
	ploidy := m.cfg.ContigPloidy(block.Region.Contig)
	latents := &Latents{
		Block:       block,
		Genotypes:   genome.EnumerateGenotypes(block.IDs, ploidy),
		Posteriors:  make(map[string][]float64, len(m.samples)),
		MAP:         make(map[string]int, len(m.samples)),
		Likelihoods: likelihoods,
		somatic:     make(map[string]*somaticLatents),
	}

	// germline inference is driven by the normal sample; the germline
	// genotype is shared, so every sample reports the normal's MAP
	normalPosteriors := genotypePosteriors(m.cfg, block.Arena, latents.Genotypes, likelihoods[m.cfg.NormalSample])
	normalMAP := argmax(normalPosteriors)
	for _, sample := range m.samples {
		latents.Posteriors[sample] = normalPosteriors
		latents.MAP[sample] = normalMAP
	}

	germlineMAP := latents.Genotypes[normalMAP]
	for _, tumour := range m.tumourSamples() {
		if somatic := m.inferSomatic(block, likelihoods[tumour], germlineMAP); somatic != nil {
			latents.somatic[tumour] = somatic
		}
	}
	return latents
}

func (m *CancerModel) CallVariants(candidates []*Candidate, latents *Latents) []*Call {
	calls := callGermlineVariants(m.cfg, m.ref, m.samples, candidates, latents)
	arena := latents.Block.Arena
	germlineMAP := latents.MAPGenotype(m.cfg.NormalSample)

	for _, tumour := range m.tumourSamples() {
		somatic := latents.somatic[tumour]
		if somatic == nil {
			continue
		}
		posterior := probToPhred(somatic.posterior)
		if posterior < m.cfg.MinSomaticPosterior {
			continue
		}
		haplotype := arena.Get(somatic.haplotype)
		for _, candidate := range candidates {
			alt := candidate.Variant.AltAllele()
			if !haplotype.Contains(alt, m.ref) {
				continue
			}
			if germlineMAP.ContainsAllele(arena, alt, m.ref) {
				continue
			}
			annotation := &SomaticAnnotation{
				Sample:       tumour,
				Posterior:    posterior,
				VAF:          somatic.vaf,
				CredibleLow:  somatic.credibleLow,
				CredibleHigh: somatic.credibleHigh,
			}
			if call := findCall(calls, candidate.Variant); call != nil {
				call.Somatic = annotation
				continue
			}
			call := &Call{
				Variant:       candidate.Variant,
				Posterior:     posterior,
				Genotypes:     make(map[string]*GenotypeCall, len(m.samples)),
				SourceSupport: candidate.SourceSupport,
				Somatic:       annotation,
				PhaseSets:     make(map[string]int32),
			}
			for _, sample := range m.samples {
				mapIndex := latents.MAP[sample]
				call.Genotypes[sample] = genotypeCall(
					arena, m.ref,
					latents.Genotypes[mapIndex],
					latents.Posteriors[sample][mapIndex],
					candidate.Variant,
					latents.Likelihoods[sample].Alns,
				)
			}
			calls = append(calls, call)
		}
	}
	SortCalls(calls)
	return calls
}

func findCall(calls []*Call, v genome.Variant) *Call {
	for _, c := range calls {
		if c.Variant == v {
			return c
		}
	}
	return nil
}

func (m *CancerModel) CallReference(alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call {
	return callReferenceAlleles(m.cfg, m.ref, m.samples, alleles, latents, reads)
}
