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

	"gonum.org/v1/gonum/mathext"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

const (
	populationTolerance     = 1e-4
	populationMaxIterations = 50
	populationAlphaPrior    = 1.0
)

// PopulationModel infers all samples jointly under a shared Dirichlet
// prior over haplotype frequencies, marginalising per sample with
// variational pseudo-count updates.
type PopulationModel struct {
	cfg     *CoreConfig
	ref     genome.Reference
	samples []string
}

func (m *PopulationModel) InferLatents(block *ActiveBlock, likelihoods Likelihoods) *Latents {
	ploidy := m.cfg.ContigPloidy(block.Region.Contig)
	genotypes := genome.EnumerateGenotypes(block.IDs, ploidy)
	latents := &Latents{
		Block:       block,
		Genotypes:   genotypes,
		Posteriors:  make(map[string][]float64, len(m.samples)),
		MAP:         make(map[string]int, len(m.samples)),
		Likelihoods: likelihoods,
	}

	// per-sample genotype log likelihoods are fixed across iterations
	logLikelihoods := make(map[string][]float64, len(m.samples))
	for _, sample := range m.samples {
		lls := make([]float64, len(genotypes))
		for i, g := range genotypes {
			lls[i] = genotypeLog10Likelihood(likelihoods[sample], g)
		}
		logLikelihoods[sample] = lls
	}

	alphas := make(map[genome.ID]float64, len(block.IDs))
	for _, id := range block.IDs {
		alphas[id] = populationAlphaPrior
	}

	for iteration := 0; iteration < populationMaxIterations; iteration++ {
		alphaSum := 0.0
		for _, a := range alphas {
			alphaSum += a
		}
		expectedLogFreq := make(map[genome.ID]float64, len(alphas))
		for id, a := range alphas {
			expectedLogFreq[id] = (mathext.Digamma(a) - mathext.Digamma(alphaSum)) / ln10
		}

		newAlphas := make(map[genome.ID]float64, len(alphas))
		for _, id := range block.IDs {
			newAlphas[id] = populationAlphaPrior
		}
		for _, sample := range m.samples {
			posteriors := make([]float64, len(genotypes))
			for i, g := range genotypes {
				score := logLikelihoods[sample][i]
				for _, id := range g.IDs() {
					score += expectedLogFreq[id]
				}
				posteriors[i] = score
			}
			normalizeLog10s(posteriors)
			latents.Posteriors[sample] = posteriors
			for i, g := range genotypes {
				for _, id := range g.IDs() {
					newAlphas[id] += posteriors[i]
				}
			}
		}

		maxRelativeChange := 0.0
		for id, a := range newAlphas {
			change := math.Abs(a-alphas[id]) / alphas[id]
			if change > maxRelativeChange {
				maxRelativeChange = change
			}
		}
		alphas = newAlphas
		if maxRelativeChange < populationTolerance {
			break
		}
	}

	for _, sample := range m.samples {
		latents.MAP[sample] = argmax(latents.Posteriors[sample])
	}
	return latents
}

func (m *PopulationModel) CallVariants(candidates []*Candidate, latents *Latents) []*Call {
	return callGermlineVariants(m.cfg, m.ref, m.samples, candidates, latents)
}

func (m *PopulationModel) CallReference(alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call {
	return callReferenceAlleles(m.cfg, m.ref, m.samples, alleles, latents, reads)
}
