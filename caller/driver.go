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
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/internal"
	"github.com/gmagoon/octopus/sam"
	"github.com/gmagoon/octopus/vcf"
)

// A Runner drives one calling run: it walks the calling regions,
// prepares reads, generates candidates and haplotypes, runs the
// configured genotype model, phases the calls, and writes the output
// VCF.
type Runner struct {
	cfg       *CoreConfig
	ref       genome.Reference
	manager   *sam.ReadManager
	samples   []string
	generator *CandidateGenerator
	model     Model
	phaser    *Phaser
	pipeline  sam.ReadPipeline
	header    *sam.Header

	// recovered sub-region failures of the current contig
	skipped int
}

// NewRunner wires the calling components for one run. The sample
// column order of the output is the sorted sample order.
func NewRunner(cfg *CoreConfig, ref genome.Reference, manager *sam.ReadManager) *Runner {
	samples := append([]string{}, manager.Samples()...)
	sort.Strings(samples)
	var header *sam.Header
	if headers := manager.Headers(); len(headers) > 0 {
		header = headers[0]
	}
	return &Runner{
		cfg:       cfg,
		ref:       ref,
		manager:   manager,
		samples:   samples,
		generator: NewCandidateGenerator(cfg, ref),
		model:     NewModel(cfg, ref, samples),
		phaser:    NewPhaser(cfg, ref),
		pipeline: sam.ReadPipeline{
			Filters:        sam.DefaultFilters(cfg.MinMappingQuality, cfg.MinGoodBases, cfg.MinBaseQuality),
			Transforms:     sam.DefaultTransforms(cfg.SoftClipBoundary, cfg.MaskTails),
			MaxCoverage:    cfg.MaxCoverage,
			TargetCoverage: cfg.TargetCoverage,
		},
		header: header,
	}
}

// Samples returns the output sample order.
func (r *Runner) Samples() []string {
	return r.samples
}

// Generator exposes the candidate generator so external variants can
// be admitted before the run starts.
func (r *Runner) Generator() *CandidateGenerator {
	return r.generator
}

// CheckRoles verifies that the samples the configured model assigns a
// role to are present in the input files.
func CheckRoles(cfg *CoreConfig, samples []string) error {
	for _, role := range cfg.RoleSamples() {
		if role == "" {
			return fmt.Errorf("the %v caller needs its role samples assigned", cfg.Caller)
		}
		found := false
		for _, sample := range samples {
			if sample == role {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("sample %v is not present in the input files", role)
		}
	}
	if cfg.Caller == TrioCalling && len(samples) != 3 {
		return fmt.Errorf("the trio caller needs exactly three samples, got %v", len(samples))
	}
	return nil
}

// prepareReads runs the window's reads of every sample through the
// read pipeline.
func (r *Runner) prepareReads(reads sam.ReadMap) {
	for sample, alns := range reads {
		reads[sample] = r.pipeline.Process(r.header, alns)
	}
}

// CallRegion calls one calling region: candidates, active sub-regions
// with bounded haplotype sets, model inference with holdout
// re-insertion, variant and reference calls, and phasing. Recovered
// sub-region failures are logged and skipped.
func (r *Runner) CallRegion(region genome.Region) ([]*Call, error) {
	window := region.Expand(haplotypePadding)
	if length := r.ref.ContigLength(window.Contig); window.End > length {
		window.End = length
	}
	reads, err := r.manager.Reads(window)
	if err != nil {
		return nil, err
	}
	r.prepareReads(reads)

	candidates := r.generator.Candidates(region, reads)
	if len(candidates) == 0 {
		return nil, nil
	}
	variants := make([]genome.Variant, len(candidates))
	for i, c := range candidates {
		variants[i] = c.Variant
	}

	var calls []*Call
	gen := NewHaplotypeGenerator(r.cfg, r.ref, region, variants)
	for {
		block, err := gen.Progress()
		if err != nil {
			log.Println("warning:", err, "(sub-region skipped)")
			r.skipped++
			continue
		}
		if block == nil {
			break
		}
		if r.cfg.Debug {
			log.Printf("active sub-region %v: %v candidates, %v haplotypes",
				block.Region, len(block.Variants), len(block.IDs))
		}

		likelihoods := ComputeLikelihoods(r.cfg, block, reads)
		latents := r.model.InferLatents(block, likelihoods)
		failed := false
		for block.HasHoldouts() {
			survivors := latents.SurvivingHaplotypes(r.cfg.MaxHaplotypes)
			if err := gen.ReinsertHoldout(block, survivors); err != nil {
				log.Println("warning:", err, "(sub-region skipped)")
				r.skipped++
				failed = true
				break
			}
			likelihoods = ComputeLikelihoods(r.cfg, block, reads)
			latents = r.model.InferLatents(block, likelihoods)
		}
		if failed {
			continue
		}

		blockCalls := r.model.CallVariants(candidates, latents)
		if r.cfg.CallReference {
			alleles := make([]genome.Allele, len(block.Variants))
			for i, v := range block.Variants {
				alleles[i] = v.AltAllele()
			}
			blockCalls = append(blockCalls, r.model.CallReference(alleles, latents, reads)...)
			SortCalls(blockCalls)
		}
		r.phaser.Phase(blockCalls, latents)
		calls = append(calls, blockCalls...)

		gen.Advance(block, latents.SurvivingHaplotypes(r.cfg.MaxHaplotypes))
	}
	SortCalls(calls)
	return calls, nil
}

// createTempDir creates the intermediate directory next to the
// working directory, never reusing an existing one.
func createTempDir() string {
	name := "octopus-temp"
	for n := 1; internal.FileExists(name); n++ {
		name = fmt.Sprintf("octopus-temp-%v", n)
	}
	internal.MkdirAll(name, 0700)
	return name
}

// writeCalls writes the calls of one contig to an intermediate VCF
// fragment without a header.
func (r *Runner) writeCalls(path string, calls []*Call) (err error) {
	file := internal.FileCreate(path)
	defer func() {
		if nerr := file.Close(); nerr != nil && err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriter(file)
	var buf []byte
	for _, c := range calls {
		if buf, err = c.ToVcf(r.ref, r.samples).Format(buf[:0]); err != nil {
			return err
		}
		if _, err = out.Write(buf); err != nil {
			return err
		}
	}
	return out.Flush()
}

// callSummary condenses a contig's calls into a per-type count line.
func callSummary(calls []*Call) string {
	counts := make(map[string]int)
	var order []string
	for _, c := range calls {
		name := c.Variant.TypeName()
		if c.IsRefCall {
			name = "REF"
		}
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	if len(order) == 0 {
		return "none"
	}
	parts := make([]string, len(order))
	for i, name := range order {
		parts[i] = fmt.Sprintf("%v %v", counts[name], name)
	}
	return strings.Join(parts, ", ")
}

// Run calls every region and writes the merged output VCF. Regions
// must arrive grouped in contig output order, as produced by
// intervals.CallingRegions. Intermediate per-contig files live in a
// fresh temp directory that is removed on success and retained for
// inspection on failure.
func (r *Runner) Run(regions []genome.Region, output string) (err error) {
	tempDir := createTempDir()
	defer func() {
		if err != nil {
			log.Println("retaining intermediate files in", tempDir)
		} else {
			internal.RemoveAll(tempDir)
		}
	}()

	var fragments []string
	fragment := func(contig string, calls []*Call) error {
		path := filepath.Join(tempDir, uuid.New().String()+vcf.VcfExt)
		if err := r.writeCalls(path, calls); err != nil {
			return err
		}
		fragments = append(fragments, path)
		log.Printf("%v: %v calls (%v), %v sub-regions skipped",
			contig, len(calls), callSummary(calls), r.skipped)
		return nil
	}

	contig := ""
	var contigCalls []*Call
	for _, region := range regions {
		if region.Contig != contig {
			if contig != "" {
				if err := fragment(contig, contigCalls); err != nil {
					return err
				}
			}
			contig = region.Contig
			contigCalls = nil
			r.skipped = 0
		}
		calls, err := r.CallRegion(region)
		if err != nil {
			return err
		}
		contigCalls = append(contigCalls, calls...)
	}
	if contig != "" {
		if err := fragment(contig, contigCalls); err != nil {
			return err
		}
	}

	return r.mergeFragments(fragments, output)
}

// mergeFragments concatenates the per-contig fragments behind one
// header into the final output. "-" means standard output.
func (r *Runner) mergeFragments(fragments []string, output string) (err error) {
	if output == "-" {
		output = "/dev/stdout"
	}
	out, err := vcf.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := out.Close(); nerr != nil && err == nil {
			err = nerr
		}
	}()

	contigLengths := make(map[string]int32)
	for _, contig := range r.ref.Contigs() {
		contigLengths[contig] = r.ref.ContigLength(contig)
	}
	if err = OutputHeader(r.cfg, r.ref, contigLengths, r.samples).Format(out.Writer); err != nil {
		return err
	}
	for _, path := range fragments {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(out.Writer, file)
		internal.Close(file)
		if err != nil {
			return err
		}
	}
	return nil
}
