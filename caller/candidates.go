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
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
	"github.com/gmagoon/octopus/vcf"
)

// CandidateSource identifies where a candidate variant came from.
type CandidateSource int

const (
	SourceCigarScanner CandidateSource = 1 << iota
	SourceAssembler
	SourceExternal
)

type sampleEvidence struct {
	support       int
	depth         int
	baseQualities []byte
	forward       int
	reverse       int
}

// A Candidate is a normalised variant with per-sample support
// evidence and the sources that proposed it.
type Candidate struct {
	Variant genome.Variant
	Sources CandidateSource
	// read support per source, in SourceCigarScanner, SourceAssembler,
	// SourceExternal order
	SourceSupport [3]int
	evidence      map[string]*sampleEvidence
}

func (c *Candidate) sample(name string) *sampleEvidence {
	if c.evidence == nil {
		c.evidence = make(map[string]*sampleEvidence)
	}
	ev := c.evidence[name]
	if ev == nil {
		ev = new(sampleEvidence)
		c.evidence[name] = ev
	}
	return ev
}

// A CandidateGenerator merges candidates from the CIGAR scanner, the
// local re-assembler, and an optional external VCF source.
type CandidateGenerator struct {
	cfg        *CoreConfig
	ref        genome.Reference
	external   map[string][]genome.Variant
	misaligned []genome.Variant
}

// NewCandidateGenerator creates a candidate generator for one run.
func NewCandidateGenerator(cfg *CoreConfig, ref genome.Reference) *CandidateGenerator {
	return &CandidateGenerator{
		cfg:      cfg,
		ref:      ref,
		external: make(map[string][]genome.Variant),
	}
}

// AddExternal admits variants from a VCF verbatim, used for
// regenotyping. VCF coordinates are 1-based; indel records carry a
// shared leading reference base that normalisation strips.
func (g *CandidateGenerator) AddExternal(variants []*vcf.Variant) {
	for _, variant := range variants {
		if variant.Pos < 1 {
			continue
		}
		if length := g.ref.ContigLength(variant.Chrom); length < 0 ||
			variant.Pos-1+int32(len(variant.Ref)) > length {
			// unknown contig, or a record extending past the contig end
			continue
		}
		for _, alt := range variant.Alt {
			if alt == "" || alt == "." || strings.HasPrefix(alt, "<") {
				continue
			}
			v := genome.Variant{
				Region: genome.Region{
					Contig: variant.Chrom,
					Begin:  variant.Pos - 1,
					End:    variant.Pos - 1 + int32(len(variant.Ref)),
				},
				Ref: variant.Ref,
				Alt: alt,
			}
			g.external[variant.Chrom] = append(g.external[variant.Chrom], genome.Normalise(v, g.ref))
		}
	}
	for _, variants := range g.external {
		sort.Slice(variants, func(i, j int) bool {
			return genome.VariantLess(variants[i], variants[j])
		})
	}
}

// poissonSFAtLeast returns P(X >= k) for X ~ Poisson(lambda).
func poissonSFAtLeast(k int, lambda float64) float64 {
	if k <= 0 {
		return 1
	}
	dist := distuv.Poisson{Lambda: lambda}
	return 1 - dist.CDF(float64(k-1))
}

// scanState accumulates the misalignment penalty of one read while
// its candidates are collected.
type scanState struct {
	penalty    float64
	candidates []genome.Variant
	quals      []byte // base quality evidence per candidate
}

func (g *CandidateGenerator) scanRead(aln *sam.Alignment) (state scanState) {
	cfg := g.cfg
	cigar := sam.ScanCigarString(aln.CIGAR)
	refPos := aln.POS
	readPos := int32(0)
	contig := aln.RNAME
	for _, op := range cigar {
		switch op.Operation {
		case 'M', '=', 'X':
			refSeq := g.ref.Slice(genome.Region{Contig: contig, Begin: refPos, End: refPos + op.Length})
			for i := int32(0); i < op.Length; i++ {
				readBase := aln.SEQ[readPos+i]
				refBase := refSeq[i]
				if readBase == refBase || readBase == 'N' || refBase == 'N' {
					continue
				}
				qual := aln.QUAL[readPos+i]
				if qual >= cfg.MisalignmentPenaltyQuality {
					state.penalty += cfg.MisalignmentSNVPenalty
				}
				state.candidates = append(state.candidates, genome.Variant{
					Region: genome.Region{Contig: contig, Begin: refPos + i, End: refPos + i + 1},
					Ref:    string(refBase),
					Alt:    string(readBase),
				})
				state.quals = append(state.quals, qual)
			}
			refPos += op.Length
			readPos += op.Length
		case 'I':
			state.penalty += cfg.MisalignmentIndelPenalty
			state.candidates = append(state.candidates, genome.Variant{
				Region: genome.Region{Contig: contig, Begin: refPos, End: refPos},
				Ref:    "",
				Alt:    aln.SEQ[readPos : readPos+op.Length],
			})
			var qual byte
			if int(readPos) < len(aln.QUAL) {
				qual = aln.QUAL[readPos]
			}
			state.quals = append(state.quals, qual)
			readPos += op.Length
		case 'D':
			state.penalty += cfg.MisalignmentIndelPenalty
			state.candidates = append(state.candidates, genome.Variant{
				Region: genome.Region{Contig: contig, Begin: refPos, End: refPos + op.Length},
				Ref:    g.ref.Slice(genome.Region{Contig: contig, Begin: refPos, End: refPos + op.Length}),
				Alt:    "",
			})
			var qual byte
			if int(readPos) < len(aln.QUAL) {
				qual = aln.QUAL[readPos]
			}
			state.quals = append(state.quals, qual)
			refPos += op.Length
		case 'S':
			if clip := int(op.Length) - cfg.UnpenalisedClipSize; clip > 0 {
				state.penalty += cfg.MisalignmentClipPenalty * float64(clip)
			}
			readPos += op.Length
		case 'N':
			refPos += op.Length
		case 'H', 'P':
			// consume nothing
		default:
			log.Panicf("unexpected CIGAR operation %c", op.Operation)
		}
	}
	return state
}

// likelyMisaligned decides whether a read's candidates are routed to
// the likely-misaligned bucket instead of the main set.
func (g *CandidateGenerator) likelyMisaligned(aln *sam.Alignment, penalty float64) bool {
	pMismapped := qualToErrorProb[aln.MAPQ]
	lnProb := math.Log1p(-pMismapped) +
		math.Log(poissonSFAtLeast(int(penalty), g.cfg.MisalignmentRate*float64(len(aln.SEQ))))
	return lnProb < g.cfg.MinLnProbCorrectlyAligned
}

type candidateSet struct {
	candidates []*Candidate
}

func (set *candidateSet) add(v genome.Variant, source CandidateSource, sample string, qual byte, forward bool) *Candidate {
	var c *Candidate
	for _, existing := range set.candidates {
		if existing.Variant.Matches(v) {
			c = existing
			break
		}
	}
	if c == nil {
		c = &Candidate{Variant: v}
		set.candidates = append(set.candidates, c)
	}
	c.Sources |= source
	switch source {
	case SourceCigarScanner:
		c.SourceSupport[0]++
	case SourceAssembler:
		c.SourceSupport[1]++
	case SourceExternal:
		c.SourceSupport[2]++
	}
	if sample != "" {
		ev := c.sample(sample)
		ev.support++
		ev.baseQualities = append(ev.baseQualities, qual)
		if forward {
			ev.forward++
		} else {
			ev.reverse++
		}
	}
	return c
}

// isShortTandemRepeat reports whether the sequence consists of two or
// more copies of a unit of at most four bases.
func isShortTandemRepeat(seq string) bool {
	for unit := 1; unit <= 4 && 2*unit <= len(seq); unit++ {
		if len(seq)%unit != 0 {
			continue
		}
		repeat := true
		for i := unit; i < len(seq); i++ {
			if seq[i] != seq[i-unit] {
				repeat = false
				break
			}
		}
		if repeat {
			return true
		}
	}
	return false
}

// includeSNV is the per-sample support rule for SNV and short MNV
// candidates.
func includeSNV(ev *sampleEvidence) bool {
	if ev.depth <= 10 {
		if ev.support < 2 {
			return false
		}
	} else {
		goodSupport := 0
		for _, q := range ev.baseQualities {
			if q >= 20 {
				goodSupport++
			}
		}
		if ev.depth < 4 || goodSupport < 2 ||
			float64(ev.support)/float64(ev.depth) <= 0.1 {
			return false
		}
	}
	if medianByte(ev.baseQualities) < 15 && (ev.forward == 0 || ev.reverse == 0) {
		return false
	}
	return true
}

// includeInsertion uses tiered depth thresholds: deeper pileups must
// show both more support and better base qualities.
func includeInsertion(ev *sampleEvidence, insertedSeq string) bool {
	if ev.support == 1 {
		return isShortTandemRepeat(insertedSeq)
	}
	vaf := float64(ev.support) / float64(maxInt(ev.depth, 1))
	median := medianByte(ev.baseQualities)
	switch {
	case ev.depth <= 10:
		return ev.support >= 2
	case ev.depth <= 30:
		return ev.support >= 2 && vaf > 0.05
	case ev.depth <= 60:
		return ev.support >= 3 && vaf > 0.05 && median >= 10
	default:
		return ev.support >= 4 && vaf > 0.1 && median >= 15
	}
}

func includeDeletion(ev *sampleEvidence, size int32) bool {
	if size < 10 {
		return ev.support >= 2 && float64(ev.support)/float64(maxInt(ev.depth, 1)) > 0.05
	}
	denominator := float64(ev.depth) - math.Sqrt(float64(ev.depth))
	if denominator <= 0 {
		return ev.support >= 2
	}
	return float64(ev.support)/denominator > 0.1
}

func (c *Candidate) passesInclusion() bool {
	if c.Sources&(SourceAssembler|SourceExternal) != 0 {
		// assembler candidates already passed the bubble support rule;
		// external candidates are admitted verbatim
		return true
	}
	v := c.Variant
	for _, ev := range c.evidence {
		switch {
		case v.IsInsertion():
			if includeInsertion(ev, v.Alt) {
				return true
			}
		case v.IsDeletion():
			if includeDeletion(ev, v.Region.Size()) {
				return true
			}
		default:
			if includeSNV(ev) {
				return true
			}
		}
	}
	return false
}

// LikelyMisaligned returns the variants proposed only by reads judged
// likely misaligned during the last Candidates call. They never enter
// the candidate set.
func (g *CandidateGenerator) LikelyMisaligned() []genome.Variant {
	return g.misaligned
}

// fillDepths records the per-sample depth at each candidate position.
func fillDepths(set *candidateSet, reads sam.ReadMap) {
	for _, c := range set.candidates {
		begin := c.Variant.Region.Begin
		for sample, alns := range reads {
			depth := 0
			for _, aln := range alns {
				if aln.POS <= begin && begin < aln.End() {
					depth++
				}
			}
			if depth > 0 {
				c.sample(sample).depth = depth
			}
		}
	}
}

// Candidates returns the deduplicated, normalised, ordered candidate
// variants for the region.
func (g *CandidateGenerator) Candidates(region genome.Region, reads sam.ReadMap) []*Candidate {
	var set candidateSet

	if g.cfg.Regenotype {
		// regenotyping restricts the candidate set to the external source
		for _, v := range g.external[region.Contig] {
			if v.Region.Overlaps(region) {
				set.add(v, SourceExternal, "", 0, false)
			}
		}
		fillDepths(&set, reads)
		sort.Slice(set.candidates, func(i, j int) bool {
			return genome.VariantLess(set.candidates[i].Variant, set.candidates[j].Variant)
		})
		return set.candidates
	}

	g.misaligned = g.misaligned[:0]
	for sample, alns := range reads {
		for _, aln := range alns {
			state := g.scanRead(aln)
			if len(state.candidates) == 0 {
				continue
			}
			if g.likelyMisaligned(aln, state.penalty) {
				// likely-misaligned reads still count toward depth,
				// but their mismatches go to a side bucket instead of
				// the candidate set
				for _, v := range state.candidates {
					if v.Region.Overlaps(region) {
						g.misaligned = append(g.misaligned, genome.Normalise(v, g.ref))
					}
				}
				continue
			}
			forward := !aln.IsReversed()
			for i, v := range state.candidates {
				if !v.Region.Overlaps(region) {
					continue
				}
				set.add(genome.Normalise(v, g.ref), SourceCigarScanner, sample, state.quals[i], forward)
			}
		}
	}

	for _, v := range g.assemble(region, reads) {
		set.add(v, SourceAssembler, "", 0, false)
	}

	for _, v := range g.external[region.Contig] {
		if v.Region.Overlaps(region) {
			set.add(v, SourceExternal, "", 0, false)
		}
	}

	fillDepths(&set, reads)

	result := set.candidates[:0]
	for _, c := range set.candidates {
		if c.passesInclusion() {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return genome.VariantLess(result[i].Variant, result[j].Variant)
	})
	return result
}
