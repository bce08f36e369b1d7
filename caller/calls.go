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
	"fmt"
	"math"
	"sort"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
	"github.com/gmagoon/octopus/utils"
	"github.com/gmagoon/octopus/vcf"
)

// A GenotypeCall is one sample's genotype at a called site.
type GenotypeCall struct {
	// allele indexes per haplotype copy: 0 reference, 1 alternate
	Alleles   []int
	Posterior float64 // phred
	Depth     int
}

// A SomaticAnnotation marks a call as somatic in a tumour sample.
type SomaticAnnotation struct {
	Sample    string
	Posterior float64 // phred
	VAF       float64
	// credible interval bounds of the somatic allele frequency
	CredibleLow, CredibleHigh float64
}

// A DenovoAnnotation marks a call as de novo in the child.
type DenovoAnnotation struct {
	Posterior float64 // phred
}

// A Call is one called variant with its per-sample genotypes and
// annotations, ready for VCF conversion.
type Call struct {
	Variant   genome.Variant
	Posterior float64 // phred
	Genotypes map[string]*GenotypeCall
	// per-source supporting read counts in CIGAR scanner, assembler,
	// external order
	SourceSupport [3]int
	Somatic       *SomaticAnnotation
	Denovo        *DenovoAnnotation
	IsRefCall     bool
	// phase set id per sample, the 1-based position of the leftmost
	// call in the set; 0 means unphased
	PhaseSets map[string]int32
}

// siteDepth counts the reads of a sample covering the call position.
func siteDepth(alns []*sam.Alignment, begin int32) (depth int) {
	for _, aln := range alns {
		if aln.POS <= begin && begin < aln.End() {
			depth++
		}
	}
	return depth
}

// SortCalls orders calls by begin position for in-contig output
// ordering.
func SortCalls(calls []*Call) {
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].Variant.Region.Begin != calls[j].Variant.Region.Begin {
			return calls[i].Variant.Region.Begin < calls[j].Variant.Region.Begin
		}
		return calls[i].Variant.Alt < calls[j].Variant.Alt
	})
}

// vcfAlleles converts a core variant to VCF POS/REF/ALT. Indels need
// a shared leading reference base; an insertion or deletion at
// position 0 instead carries the base after the event.
func vcfAlleles(v genome.Variant, ref genome.Reference) (pos int32, refStr, altStr string) {
	if len(v.Ref) > 0 && len(v.Alt) > 0 {
		return v.Region.Begin + 1, v.Ref, v.Alt
	}
	if v.Region.Begin > 0 {
		base := ref.Slice(genome.Region{
			Contig: v.Region.Contig,
			Begin:  v.Region.Begin - 1,
			End:    v.Region.Begin,
		})
		return v.Region.Begin, base + v.Ref, base + v.Alt
	}
	base := ref.Slice(genome.Region{
		Contig: v.Region.Contig,
		Begin:  v.Region.End,
		End:    v.Region.End + 1,
	})
	return 1, v.Ref + base, v.Alt + base
}

func formatPhred(p float64) float64 {
	return math.Round(p*100) / 100
}

// ToVcf converts a call to a VCF record.
func (c *Call) ToVcf(ref genome.Reference, samples []string) *vcf.Variant {
	pos, refStr, altStr := vcfAlleles(c.Variant, ref)

	record := &vcf.Variant{
		Chrom:  c.Variant.Region.Contig,
		Pos:    pos,
		Ref:    refStr,
		Alt:    []string{altStr},
		Qual:   formatPhred(c.Posterior),
		Filter: []utils.Symbol{vcf.PASS},
	}
	typeName := c.Variant.TypeName()
	if c.IsRefCall {
		record.Alt = nil
		typeName = "REF"
	}

	totalDepth := 0
	for _, g := range c.Genotypes {
		totalDepth += g.Depth
	}
	record.Info.Set(utils.Intern("TYPE"), typeName)
	record.Info.Set(vcf.CS, c.SourceSupport[0])
	record.Info.Set(vcf.AS, c.SourceSupport[1])
	record.Info.Set(vcf.EX, c.SourceSupport[2])
	record.Info.Set(vcf.DP, totalDepth)
	if c.Denovo != nil {
		record.Info.Set(utils.Intern("DENOVO"), true)
		record.Info.Set(utils.Intern("DNP"), formatPhred(c.Denovo.Posterior))
	}
	if c.Somatic != nil {
		record.Info.Set(utils.Intern("SOMATIC"), true)
		record.Info.Set(utils.Intern("SMP"), formatPhred(c.Somatic.Posterior))
	}

	record.GenotypeFormat = []utils.Symbol{vcf.GT, vcf.GQ, vcf.DP}
	phased := false
	for _, ps := range c.PhaseSets {
		if ps != 0 {
			phased = true
			break
		}
	}
	if phased {
		record.GenotypeFormat = append(record.GenotypeFormat, vcf.PS)
	}
	if c.Somatic != nil {
		record.GenotypeFormat = append(record.GenotypeFormat, vcf.VAF, vcf.SCR)
	}

	for _, sample := range samples {
		var data utils.SmallMap
		g := c.Genotypes[sample]
		if g == nil {
			data.Set(vcf.GT, missingGenotype())
		} else {
			gt := vcf.Genotype{GT: make([]int32, len(g.Alleles))}
			for i, a := range g.Alleles {
				gt.GT[i] = int32(a)
			}
			if ps := c.PhaseSets[sample]; ps != 0 {
				gt.Phased = true
			}
			data.Set(vcf.GT, gt)
			data.Set(vcf.GQ, formatPhred(g.Posterior))
			data.Set(vcf.DP, g.Depth)
			if ps := c.PhaseSets[sample]; ps != 0 {
				data.Set(vcf.PS, int(ps))
			}
		}
		if c.Somatic != nil && c.Somatic.Sample == sample {
			data.Set(vcf.VAF, math.Round(c.Somatic.VAF*1000)/1000)
			data.Set(vcf.SCR, fmt.Sprintf("%.3f,%.3f", c.Somatic.CredibleLow, c.Somatic.CredibleHigh))
		}
		record.GenotypeData = append(record.GenotypeData, data)
	}

	return record
}

func missingGenotype() vcf.Genotype {
	return vcf.Genotype{GT: []int32{-1}}
}

// OutputHeader builds the VCF header for a run.
func OutputHeader(cfg *CoreConfig, ref genome.Reference, contigLengths map[string]int32, samples []string) *vcf.Header {
	hdr := vcf.NewHeader()
	for _, contig := range ref.Contigs() {
		hdr.Meta["contig"] = append(hdr.Meta["contig"], &vcf.MetaInformation{
			ID:     utils.Intern(contig),
			Fields: utils.StringMap{"length": fmt.Sprint(contigLengths[contig])},
		})
	}
	addInfo := func(id string, number int32, typ vcf.Type, description string) {
		hdr.Infos = append(hdr.Infos, &vcf.FormatInformation{
			ID:          utils.Intern(id),
			Number:      number,
			Type:        typ,
			Description: description,
		})
	}
	addFormat := func(id string, number int32, typ vcf.Type, description string) {
		hdr.Formats = append(hdr.Formats, &vcf.FormatInformation{
			ID:          utils.Intern(id),
			Number:      number,
			Type:        typ,
			Description: description,
		})
	}
	addInfo("TYPE", 1, vcf.String, "Variant type")
	addInfo("CS", 1, vcf.Integer, "Supporting reads from the CIGAR scanner")
	addInfo("AS", 1, vcf.Integer, "Supporting reads from the local re-assembler")
	addInfo("EX", 1, vcf.Integer, "Supporting records from the external source")
	addInfo("DP", 1, vcf.Integer, "Total read depth")
	if cfg.Caller == TrioCalling {
		addInfo("DENOVO", 0, vcf.Flag, "De novo mutation")
		addInfo("DNP", 1, vcf.Float, "Phred-scaled de novo posterior")
	}
	if cfg.Caller == CancerCalling {
		addInfo("SOMATIC", 0, vcf.Flag, "Somatic mutation")
		addInfo("SMP", 1, vcf.Float, "Phred-scaled somatic posterior")
	}
	addFormat("GT", 1, vcf.String, "Genotype")
	addFormat("GQ", 1, vcf.Float, "Phred-scaled genotype posterior")
	addFormat("DP", 1, vcf.Integer, "Read depth")
	addFormat("PS", 1, vcf.Integer, "Phase set")
	if cfg.Caller == CancerCalling {
		addFormat("VAF", 1, vcf.Float, "Somatic variant allele frequency")
		addFormat("SCR", 1, vcf.String, "Somatic allele frequency credible region")
	}
	columns := append([]string{}, vcf.DefaultHeaderColumns...)
	if len(samples) > 0 {
		columns = append(columns, "FORMAT")
		columns = append(columns, samples...)
	}
	hdr.Columns = columns
	return hdr
}
