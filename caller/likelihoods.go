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
	"strings"
	"sync"

	"github.com/exascience/pargo/parallel"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

type float64Matrix struct {
	cols  int
	array []float64
}

func (m *float64Matrix) ensureSize(rows, cols int) {
	m.cols = cols
	totalSize := rows * cols
	if totalSize <= cap(m.array) {
		m.array = m.array[:totalSize]
		for i := range m.array {
			m.array[i] = 0
		}
	} else {
		m.array = make([]float64, totalSize)
	}
}

func (m *float64Matrix) rowView(row int) []float64 {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}

type pairHMMMatrices struct {
	match, insertion, deletion float64Matrix
}

var pairHMMMatricesPool = sync.Pool{New: func() interface{} { return new(pairHMMMatrices) }}

func getPairHMMMatrices() *pairHMMMatrices {
	return pairHMMMatricesPool.Get().(*pairHMMMatrices)
}

func putPairHMMMatrices(p *pairHMMMatrices) {
	pairHMMMatricesPool.Put(p)
}

func (p *pairHMMMatrices) ensureSize(readBases, haplotypeBases int) {
	parallel.Do(
		func() { p.match.ensureSize(readBases, haplotypeBases) },
		func() { p.insertion.ensureSize(readBases, haplotypeBases) },
		func() { p.deletion.ensureSize(readBases, haplotypeBases) },
	)
}

// modifiedQuality caps the base quality by the mapping quality and
// floors low qualities, so single bad bases do not dominate.
func modifiedQuality(aln *sam.Alignment, index int) byte {
	qual := aln.QUAL[index]
	if qual > aln.MAPQ {
		qual = aln.MAPQ
	}
	if qual < 18 {
		return 6
	}
	return qual
}

func findNumberOfForwardRepetitions(repeatUnit, testString string) (nofRepeats int) {
	repeatLength := len(repeatUnit)
	for len(testString) >= repeatLength && strings.HasPrefix(testString, repeatUnit) {
		nofRepeats++
		testString = testString[repeatLength:]
	}
	return nofRepeats
}

func findNumberOfBackwardRepetitions(repeatUnit, testString string) (nofRepeats int) {
	repeatLength := len(repeatUnit)
	for len(testString) >= repeatLength && strings.HasSuffix(testString, repeatUnit) {
		nofRepeats++
		testString = testString[:len(testString)-repeatLength]
	}
	return nofRepeats
}

// findTandemRepeatUnits determines the tandem repeat unit and total
// repeat count around an offset, looking at units of up to 8 bases in
// both directions. The count is capped at 20, the last index of the
// gap penalty tables.
func findTandemRepeatUnits(bases string, offset int) (bestRepeatUnit string, maxRL int) {
	offset1 := offset + 1
	var maxBW int
	bestBWRepeatUnit := bases[offset:offset1]
	bwTestString := bases[:offset1]
	for str := 1; str <= 8; str++ {
		repeatOffset := offset1 - str
		if repeatOffset < 0 {
			break
		}
		repeatUnit := bases[repeatOffset:offset1]
		maxBW = findNumberOfBackwardRepetitions(repeatUnit, bwTestString)
		if maxBW > 1 {
			bestBWRepeatUnit = repeatUnit
			break
		}
	}
	bestRepeatUnit = bestBWRepeatUnit
	maxRL = maxBW

	if offset1 < len(bases) {
		var maxFW int
		bestFWRepeatUnit := bases[offset1 : offset1+1]
		fwTestString := bases[offset1:]
		for str := 1; str <= 8; str++ {
			repeatOffset := offset1 + str
			if repeatOffset > len(bases) {
				break
			}
			repeatUnit := bases[offset1:repeatOffset]
			maxFW = findNumberOfForwardRepetitions(repeatUnit, fwTestString)
			if maxFW > 1 {
				bestFWRepeatUnit = repeatUnit
				break
			}
		}
		if bestFWRepeatUnit != bestBWRepeatUnit {
			testString := bases[:offset1]
			maxBW = findNumberOfBackwardRepetitions(bestFWRepeatUnit, testString)
		}
		maxRL = maxFW + maxBW
		bestRepeatUnit = bestFWRepeatUnit
	}

	if maxRL > 20 {
		maxRL = 20
	}
	return bestRepeatUnit, maxRL
}

// Gap penalty tables indexed by local repeat count. Longer repeat
// tracts open gaps more readily.
var matchToMatchProb, matchToIndelProb [22]float64

func init() {
	for rl := range matchToIndelProb {
		phred := 45.0 - 2.5*float64(rl)
		if phred < 10 {
			phred = 10
		}
		p := math.Pow(10, -phred/10)
		matchToIndelProb[rl] = p
		matchToMatchProb[rl] = 1 - 2*p
	}
}

func matchProbs(bases string, index int) (matchToMatch, matchToIndel float64) {
	var repeatLength int
	if index == len(bases)-1 {
		repeatLength = 21
	} else {
		_, repeatLength = findTandemRepeatUnits(bases, index)
	}
	return matchToMatchProb[repeatLength], matchToIndelProb[repeatLength]
}

var (
	initialCondition      = math.Pow(2, 1020)
	initialConditionLog10 = log10(initialCondition)
	indelToIndel          = qualityToErrorProbability(10)
	indelToMatch          = 1 - indelToIndel
)

const (
	globalReadMismappingRate = 45 / -10.0
	// log10 penalty per read base outside the haplotype region
	flankBasePenalty = 0.25
)

// readSpan is the base range of a read used for scoring against a
// haplotype, with the number of flank bases falling outside the
// haplotype region. Base offsets are approximated by reference
// offsets, which is exact for reads without indels and close enough
// for flank accounting.
type readSpan struct {
	begin, end int
	flank      int
}

func haplotypeReadSpan(aln *sam.Alignment, region genome.Region) readSpan {
	begin, end := 0, len(aln.SEQ)
	flank := 0
	if aln.POS < region.Begin {
		begin = minInt(int(region.Begin-aln.POS), end)
		flank += begin
	}
	if alnEnd := aln.End(); alnEnd > region.End {
		clip := minInt(int(alnEnd-region.End), end-begin)
		end -= clip
		flank += clip
	}
	return readSpan{begin: begin, end: end, flank: flank}
}

// SampleLikelihoods caches log10 P(read | haplotype) for one sample
// over one active sub-region. Values are indexed by haplotype ID,
// then by read index into Alns.
type SampleLikelihoods struct {
	Alns   []*sam.Alignment
	Values map[genome.ID][]float64
}

// Likelihoods maps sample names to their likelihood caches. The cache
// lives for one active sub-region and is dropped at the boundary.
type Likelihoods map[string]*SampleLikelihoods

// Likelihood returns log10 P(read | haplotype) for one cached read.
func (l *SampleLikelihoods) Likelihood(readIndex int, id genome.ID) float64 {
	return l.Values[id][readIndex]
}

// refHaplotypeID returns the ID of the all-reference haplotype in the
// arena, or -1 when every haplotype carries an allele.
func refHaplotypeID(arena *genome.Arena) genome.ID {
	for _, id := range arena.IDs() {
		if len(arena.Get(id).Alleles) == 0 {
			return id
		}
	}
	return -1
}

// ComputeLikelihoods runs the banded pair-HMM for every read against
// every haplotype of the block, per sample. Likelihoods are capped
// from below relative to the best supporting haplotype, and reads no
// haplotype models well are removed from the cache.
func ComputeLikelihoods(cfg *CoreConfig, block *ActiveBlock, reads sam.ReadMap) Likelihoods {
	result := make(Likelihoods, len(reads))
	for sample, alns := range reads {
		var overlapping []*sam.Alignment
		for _, aln := range alns {
			if aln.Region().Overlaps(block.Region) {
				overlapping = append(overlapping, aln)
			}
		}
		result[sample] = computeSampleLikelihoods(cfg, block, overlapping)
	}
	return result
}

func computeSampleLikelihoods(cfg *CoreConfig, block *ActiveBlock, alns []*sam.Alignment) *SampleLikelihoods {
	arena := block.Arena
	ids := block.IDs

	maxReadLength := 0
	for _, aln := range alns {
		if l := len(aln.SEQ); l > maxReadLength {
			maxReadLength = l
		}
	}
	maxHaplotypeLength := 0
	for _, id := range ids {
		if l := len(arena.Get(id).Sequence); l > maxHaplotypeLength {
			maxHaplotypeLength = l
		}
	}

	result := &SampleLikelihoods{
		Alns:   alns,
		Values: make(map[genome.ID][]float64, len(ids)),
	}
	for _, id := range ids {
		result.Values[id] = make([]float64, len(alns))
	}

	parallel.Range(0, len(alns), len(alns), func(low, high int) {
		p := getPairHMMMatrices()
		defer putPairHMMMatrices(p)
		p.ensureSize(maxReadLength+1, maxHaplotypeLength+1)

		for readIndex := low; readIndex < high; readIndex++ {
			aln := alns[readIndex]
			span := haplotypeReadSpan(aln, block.Region)
			flankPenalty := 0.0
			if !cfg.DisableInactiveFlankScoring {
				flankPenalty = flankBasePenalty * float64(span.flank)
			}
			matchProbCache := make([][2]float64, span.end-span.begin)
			for i := range matchProbCache {
				matchToMatch, matchToIndel := matchProbs(aln.SEQ, span.begin+i)
				matchProbCache[i] = [2]float64{matchToMatch, matchToIndel}
			}
			for _, id := range ids {
				haplotype := arena.Get(id)
				result.Values[id][readIndex] =
					pairHMMLikelihood(p, aln, span, matchProbCache, haplotype.Sequence) - flankPenalty
			}
		}
	})

	if len(ids) > 1 {
		refID := refHaplotypeID(arena)
		for r := range alns {
			bestLikelihood := math.Inf(-1)
			for _, id := range ids {
				if id != refID {
					if likelihood := result.Values[id][r]; likelihood > bestLikelihood {
						bestLikelihood = likelihood
					}
				}
			}
			if !math.IsInf(bestLikelihood, -1) {
				worstLikelihoodCap := bestLikelihood + globalReadMismappingRate
				for _, id := range ids {
					if l := result.Values[id]; l[r] < worstLikelihoodCap {
						l[r] = worstLikelihoodCap
					}
				}
			}
		}
	}

checkPoorlyModeledReads:
	for i := 0; i < len(result.Alns); {
		maxErrorsForReads := math.Min(2, math.Ceil(float64(len(result.Alns[i].QUAL))*0.02))
		log10MaxLikelihoodForTrueAllele := maxErrorsForReads * -4.0
		for _, id := range ids {
			if result.Values[id][i] >= log10MaxLikelihoodForTrueAllele {
				i++
				continue checkPoorlyModeledReads
			}
		}
		result.Alns = append(result.Alns[:i], result.Alns[i+1:]...)
		for id, l := range result.Values {
			result.Values[id] = append(l[:i], l[i+1:]...)
		}
	}

	return result
}

func pairHMMLikelihood(p *pairHMMMatrices, aln *sam.Alignment, span readSpan, matchProbCache [][2]float64, haplotypeBases string) float64 {
	readLength := span.end - span.begin
	if readLength == 0 || len(haplotypeBases) == 0 {
		return 0
	}

	initialValue := initialCondition / float64(len(haplotypeBases))
	pDeletion0 := p.deletion.rowView(0)
	for j := 0; j < len(haplotypeBases)+1; j++ {
		pDeletion0[j] = initialValue
	}
	pMatch0 := p.match.rowView(0)
	pInsertion0 := p.insertion.rowView(0)
	for j := 0; j < len(haplotypeBases)+1; j++ {
		pMatch0[j] = 0
		pInsertion0[j] = 0
	}

	for i := 0; i < readLength; i++ {
		x := aln.SEQ[span.begin+i]
		qual := modifiedQuality(aln, span.begin+i)
		matchPrior := 1 - qualToErrorProb[qual]
		nonMatchPrior := qualToErrorProb[qual] / 3
		cachedMatchProbs := matchProbCache[i]
		matchToMatch, matchToIndel := cachedMatchProbs[0], cachedMatchProbs[1]

		// row views keep the inner loop free of index arithmetic
		pMatchI := p.match.rowView(i)
		pMatchI1 := p.match.rowView(i + 1)
		pInsertionI := p.insertion.rowView(i)
		pInsertionI1 := p.insertion.rowView(i + 1)
		pDeletionI := p.deletion.rowView(i)
		pDeletionI1 := p.deletion.rowView(i + 1)

		for j := 0; j < len(haplotypeBases); j++ {
			y := haplotypeBases[j]
			var prior float64
			if x == y || x == 'N' || y == 'N' {
				prior = matchPrior
			} else {
				prior = nonMatchPrior
			}
			pMatchI1[j+1] = prior * (pMatchI[j]*matchToMatch +
				pInsertionI[j]*indelToMatch +
				pDeletionI[j]*indelToMatch)
			pInsertionI1[j+1] = pMatchI[j+1]*matchToIndel + pInsertionI[j+1]*indelToIndel
			pDeletionI1[j+1] = pMatchI1[j]*matchToIndel + pDeletionI1[j]*indelToIndel
		}
	}

	var sum float64
	pMatchEnd := p.match.rowView(readLength)
	pInsertionEnd := p.insertion.rowView(readLength)
	for j := 1; j <= len(haplotypeBases); j++ {
		sum += pMatchEnd[j] + pInsertionEnd[j]
	}
	return log10(sum) - initialConditionLog10
}
