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
	"sort"
	"strings"
	"testing"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/sam"
)

type testReference map[string]string

func (ref testReference) Contigs() (contigs []string) {
	for contig := range ref {
		contigs = append(contigs, contig)
	}
	sort.Strings(contigs)
	return contigs
}

func (ref testReference) ContigLength(contig string) int32 {
	seq, ok := ref[contig]
	if !ok {
		return -1
	}
	return int32(len(seq))
}

func (ref testReference) Slice(region genome.Region) string {
	return ref[region.Contig][region.Begin:region.End]
}

func makeRead(contig string, pos int32, seq, cigar string, reverse bool) *sam.Alignment {
	flag := uint16(sam.Multiple | sam.Proper)
	if reverse {
		flag |= sam.Reversed
	}
	if cigar == "" {
		cigar = fmt.Sprintf("%dM", len(seq))
	}
	qual := make([]byte, len(seq))
	for i := range qual {
		qual[i] = 30
	}
	return &sam.Alignment{
		QNAME: "read",
		FLAG:  flag,
		RNAME: contig,
		POS:   pos,
		MAPQ:  60,
		CIGAR: cigar,
		RNEXT: "=",
		SEQ:   seq,
		QUAL:  qual,
	}
}

func manyReads(n int, contig string, pos int32, seq, cigar string) (alns []*sam.Alignment) {
	for i := 0; i < n; i++ {
		alns = append(alns, makeRead(contig, pos, seq, cigar, i%2 == 1))
	}
	return alns
}

// runCalling drives the full per-region calling loop on in-memory
// reads, as the driver does.
func runCalling(t *testing.T, cfg *CoreConfig, ref genome.Reference, reads sam.ReadMap, region genome.Region) []*Call {
	t.Helper()
	samples := make([]string, 0, len(reads))
	for sample := range reads {
		samples = append(samples, sample)
	}
	sort.Strings(samples)
	model := NewModel(cfg, ref, samples)
	phaser := NewPhaser(cfg, ref)

	candidates := NewCandidateGenerator(cfg, ref).Candidates(region, reads)
	variants := make([]genome.Variant, len(candidates))
	for i, c := range candidates {
		variants[i] = c.Variant
	}

	var calls []*Call
	gen := NewHaplotypeGenerator(cfg, ref, region, variants)
	for {
		block, err := gen.Progress()
		if err != nil {
			t.Fatalf("unexpected sub-region failure: %v", err)
		}
		if block == nil {
			break
		}
		likelihoods := ComputeLikelihoods(cfg, block, reads)
		latents := model.InferLatents(block, likelihoods)
		for block.HasHoldouts() {
			if err := gen.ReinsertHoldout(block, latents.SurvivingHaplotypes(cfg.MaxHaplotypes)); err != nil {
				t.Fatalf("unexpected holdout failure: %v", err)
			}
			likelihoods = ComputeLikelihoods(cfg, block, reads)
			latents = model.InferLatents(block, likelihoods)
		}
		blockCalls := model.CallVariants(candidates, latents)
		phaser.Phase(blockCalls, latents)
		calls = append(calls, blockCalls...)
		gen.Advance(block, latents.SurvivingHaplotypes(cfg.MaxHaplotypes))
	}
	SortCalls(calls)
	return calls
}

func TestHeterozygousSNV(t *testing.T) {
	ref := testReference{"chr1": "ACGT"}
	cfg := DefaultConfig()
	reads := sam.ReadMap{"s1": append(
		manyReads(20, "chr1", 0, "ACGT", ""),
		manyReads(20, "chr1", 0, "ACAT", "")...,
	)}
	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 4})
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %v", len(calls))
	}
	call := calls[0]
	pos, refStr, altStr := vcfAlleles(call.Variant, ref)
	if pos != 3 || refStr != "G" || altStr != "A" {
		t.Errorf("expected 3 G>A, got %v %v>%v", pos, refStr, altStr)
	}
	g := call.Genotypes["s1"]
	if g == nil {
		t.Fatal("missing genotype for s1")
	}
	if len(g.Alleles) != 2 || g.Alleles[0] != 0 || g.Alleles[1] != 1 {
		t.Errorf("expected genotype 0/1, got %v", g.Alleles)
	}
	if g.Posterior < 20 {
		t.Errorf("expected genotype quality >= 20, got %v", g.Posterior)
	}
	// every called alt allele is carried by some called genotype
	hasAlt := false
	for _, a := range g.Alleles {
		if a == 1 {
			hasAlt = true
		}
	}
	if !hasAlt {
		t.Error("called variant absent from the called genotype")
	}
}

func TestHomozygousDeletion(t *testing.T) {
	ref := testReference{"chr1": "AAATTTAAA"}
	cfg := DefaultConfig()
	reads := sam.ReadMap{"s1": manyReads(30, "chr1", 0, "AAAAAA", "3M3D3M")}
	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 9})
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %v", len(calls))
	}
	call := calls[0]
	pos, refStr, altStr := vcfAlleles(call.Variant, ref)
	if pos != 3 || refStr != "ATTT" || altStr != "A" {
		t.Errorf("expected 3 ATTT>A, got %v %v>%v", pos, refStr, altStr)
	}
	g := call.Genotypes["s1"]
	if g == nil {
		t.Fatal("missing genotype for s1")
	}
	if len(g.Alleles) != 2 || g.Alleles[0] != 1 || g.Alleles[1] != 1 {
		t.Errorf("expected genotype 1/1, got %v", g.Alleles)
	}
}

func repeatedReference(length int) string {
	return strings.Repeat("ACGT", length/4+1)[:length]
}

func snvRead(contig string, pos int32, length int, ref string, alts map[int32]byte) *sam.Alignment {
	seq := []byte(ref[pos : pos+int32(length)])
	for site, base := range alts {
		seq[site-pos] = base
	}
	return makeRead(contig, pos, string(seq), "", false)
}

func TestSomaticSNV(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	cfg.Caller = CancerCalling
	cfg.NormalSample = "normal"
	cfg.MinSomaticFrequency = 0.01
	cfg.CredibleMass = 0.99

	var normal, tumour []*sam.Alignment
	for i := 0; i < 30; i++ {
		normal = append(normal, snvRead("chr1", 10, 20, refSeq, nil))
	}
	for i := 0; i < 24; i++ {
		tumour = append(tumour, snvRead("chr1", 10, 20, refSeq, nil))
	}
	for i := 0; i < 6; i++ {
		tumour = append(tumour, snvRead("chr1", 10, 20, refSeq, map[int32]byte{20: 'T'}))
	}
	reads := sam.ReadMap{"normal": normal, "tumour": tumour}

	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 40})
	var somatic *Call
	for _, c := range calls {
		if c.Somatic != nil {
			somatic = c
		}
	}
	if somatic == nil {
		t.Fatal("expected a somatic call")
	}
	if somatic.Somatic.CredibleLow <= 0 {
		t.Errorf("expected positive credible interval lower bound, got %v", somatic.Somatic.CredibleLow)
	}
	if somatic.Somatic.Sample != "tumour" {
		t.Errorf("expected the somatic call in the tumour sample, got %v", somatic.Somatic.Sample)
	}
	// the alt allele must be absent from the normal genotype
	if g := somatic.Genotypes["normal"]; g != nil {
		for _, a := range g.Alleles {
			if a != 0 {
				t.Errorf("somatic alt present in the normal genotype %v", g.Alleles)
			}
		}
	}
}

func TestDenovoSNV(t *testing.T) {
	refSeq := repeatedReference(40)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()
	cfg.Caller = TrioCalling
	cfg.MaternalSample = "mother"
	cfg.PaternalSample = "father"

	parentReads := func() (alns []*sam.Alignment) {
		for i := 0; i < 30; i++ {
			alns = append(alns, snvRead("chr1", 10, 20, refSeq, nil))
		}
		return alns
	}
	var child []*sam.Alignment
	for i := 0; i < 15; i++ {
		child = append(child, snvRead("chr1", 10, 20, refSeq, nil))
	}
	for i := 0; i < 15; i++ {
		child = append(child, snvRead("chr1", 10, 20, refSeq, map[int32]byte{20: 'T'}))
	}
	reads := sam.ReadMap{"mother": parentReads(), "father": parentReads(), "child": child}

	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 40})
	var denovo *Call
	for _, c := range calls {
		if c.Denovo != nil {
			denovo = c
		}
	}
	if denovo == nil {
		t.Fatal("expected a de novo call")
	}
	for _, parent := range []string{"mother", "father"} {
		g := denovo.Genotypes[parent]
		if g == nil {
			t.Fatalf("missing genotype for %v", parent)
		}
		for _, a := range g.Alleles {
			if a != 0 {
				t.Errorf("de novo alt present in the %v genotype %v", parent, g.Alleles)
			}
		}
	}
	g := denovo.Genotypes["child"]
	if g == nil {
		t.Fatal("missing genotype for child")
	}
	hasAlt := false
	for _, a := range g.Alleles {
		if a == 1 {
			hasAlt = true
		}
	}
	if !hasAlt {
		t.Errorf("de novo alt absent from the child genotype %v", g.Alleles)
	}
}

func TestPhaseSet(t *testing.T) {
	refSeq := repeatedReference(80)
	ref := testReference{"chr1": refSeq}
	cfg := DefaultConfig()

	// two heterozygous SNVs 40bp apart; every spanning read is either
	// all-reference or all-alternate
	var alns []*sam.Alignment
	for i := 0; i < 10; i++ {
		alns = append(alns, snvRead("chr1", 0, 70, refSeq, nil))
	}
	for i := 0; i < 10; i++ {
		alns = append(alns, snvRead("chr1", 0, 70, refSeq, map[int32]byte{10: 'T', 50: 'T'}))
	}
	reads := sam.ReadMap{"s1": alns}

	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 80})
	if len(calls) != 2 {
		t.Fatalf("expected two calls, got %v", len(calls))
	}
	ps1, ok1 := calls[0].PhaseSets["s1"]
	ps2, ok2 := calls[1].PhaseSets["s1"]
	if !ok1 || !ok2 || ps1 == 0 || ps2 == 0 {
		t.Fatalf("expected both calls phased, got %v and %v", calls[0].PhaseSets, calls[1].PhaseSets)
	}
	if ps1 != ps2 {
		t.Errorf("expected one phase set, got %v and %v", ps1, ps2)
	}
	leftmost, _, _ := vcfAlleles(calls[0].Variant, ref)
	if ps1 != leftmost {
		t.Errorf("expected phase set id %v, got %v", leftmost, ps1)
	}
}

func TestHaploidCall(t *testing.T) {
	ref := testReference{"chrX": "ACGT"}
	cfg := DefaultConfig()
	cfg.ContigPloidies = map[string]int{"chrX": 1}
	reads := sam.ReadMap{"s1": manyReads(20, "chrX", 0, "ACAT", "")}
	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chrX", Begin: 0, End: 4})
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %v", len(calls))
	}
	g := calls[0].Genotypes["s1"]
	if g == nil {
		t.Fatal("missing genotype for s1")
	}
	if len(g.Alleles) != 1 || g.Alleles[0] != 1 {
		t.Errorf("expected haploid genotype 1, got %v", g.Alleles)
	}
}

func TestGenotypePosteriorsSumToOne(t *testing.T) {
	ref := testReference{"chr1": "ACGT"}
	cfg := DefaultConfig()
	reads := sam.ReadMap{"s1": append(
		manyReads(10, "chr1", 0, "ACGT", ""),
		manyReads(10, "chr1", 0, "ACAT", "")...,
	)}
	candidates := NewCandidateGenerator(&cfg, ref).Candidates(genome.Region{Contig: "chr1", Begin: 0, End: 4}, reads)
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %v", len(candidates))
	}
	gen := NewHaplotypeGenerator(&cfg, ref, genome.Region{Contig: "chr1", Begin: 0, End: 4},
		[]genome.Variant{candidates[0].Variant})
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	model := NewModel(&cfg, ref, []string{"s1"})
	latents := model.InferLatents(block, ComputeLikelihoods(&cfg, block, reads))
	sum := 0.0
	for _, p := range latents.Posteriors["s1"] {
		sum += p
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Errorf("genotype posteriors sum to %v", sum)
	}
}

func TestPopulationSharedVariant(t *testing.T) {
	ref := testReference{"chr1": "ACGT"}
	cfg := DefaultConfig()
	cfg.Caller = PopulationCalling
	hetReads := func() []*sam.Alignment {
		return append(
			manyReads(10, "chr1", 0, "ACGT", ""),
			manyReads(10, "chr1", 0, "ACAT", "")...,
		)
	}
	reads := sam.ReadMap{"s1": hetReads(), "s2": hetReads()}
	calls := runCalling(t, &cfg, ref, reads, genome.Region{Contig: "chr1", Begin: 0, End: 4})
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %v", len(calls))
	}
	for _, sample := range []string{"s1", "s2"} {
		g := calls[0].Genotypes[sample]
		if g == nil {
			t.Fatalf("missing genotype for %v", sample)
		}
		if len(g.Alleles) != 2 || g.Alleles[0] != 0 || g.Alleles[1] != 1 {
			t.Errorf("expected genotype 0/1 for %v, got %v", sample, g.Alleles)
		}
	}
}

func TestReferenceCalls(t *testing.T) {
	ref := testReference{"chr1": "ACGT"}
	cfg := DefaultConfig()
	cfg.CallReference = true
	// a weakly supported alternate that genotyping rejects
	reads := sam.ReadMap{"s1": append(
		manyReads(30, "chr1", 0, "ACGT", ""),
		manyReads(2, "chr1", 0, "ACAT", "")...,
	)}
	region := genome.Region{Contig: "chr1", Begin: 0, End: 4}
	v := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 2, End: 3},
		Ref:    "G",
		Alt:    "A",
	}
	gen := NewHaplotypeGenerator(&cfg, ref, region, []genome.Variant{v})
	block, err := gen.Progress()
	if err != nil || block == nil {
		t.Fatalf("expected an active sub-region, got %v, %v", block, err)
	}
	model := NewModel(&cfg, ref, []string{"s1"})
	latents := model.InferLatents(block, ComputeLikelihoods(&cfg, block, reads))
	refCalls := model.CallReference([]genome.Allele{v.AltAllele()}, latents, reads)
	if len(refCalls) != 1 {
		t.Fatalf("expected one reference call, got %v", len(refCalls))
	}
	if !refCalls[0].IsRefCall {
		t.Error("expected a reference call")
	}
	g := refCalls[0].Genotypes["s1"]
	if g == nil {
		t.Fatal("missing genotype for s1")
	}
	for _, a := range g.Alleles {
		if a != 0 {
			t.Errorf("expected homozygous reference genotype, got %v", g.Alleles)
		}
	}
}
