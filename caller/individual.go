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

// IndividualModel infers each sample independently by full genotype
// enumeration at the configured ploidy.
type IndividualModel struct {
	cfg     *CoreConfig
	ref     genome.Reference
	samples []string
}

func (m *IndividualModel) InferLatents(block *ActiveBlock, likelihoods Likelihoods) *Latents {
	ploidy := m.cfg.ContigPloidy(block.Region.Contig)
	latents := &Latents{
		Block:       block,
		Genotypes:   genome.EnumerateGenotypes(block.IDs, ploidy),
		Posteriors:  make(map[string][]float64, len(m.samples)),
		MAP:         make(map[string]int, len(m.samples)),
		Likelihoods: likelihoods,
	}
	for _, sample := range m.samples {
		posteriors := genotypePosteriors(m.cfg, block.Arena, latents.Genotypes, likelihoods[sample])
		latents.Posteriors[sample] = posteriors
		latents.MAP[sample] = argmax(posteriors)
	}
	return latents
}

func (m *IndividualModel) CallVariants(candidates []*Candidate, latents *Latents) []*Call {
	return callGermlineVariants(m.cfg, m.ref, m.samples, candidates, latents)
}

func (m *IndividualModel) CallReference(alleles []genome.Allele, latents *Latents, reads sam.ReadMap) []*Call {
	return callReferenceAlleles(m.cfg, m.ref, m.samples, alleles, latents, reads)
}
