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

package cmd

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/gmagoon/octopus/caller"
	"github.com/gmagoon/octopus/fasta"
	"github.com/gmagoon/octopus/intervals"
	"github.com/gmagoon/octopus/sam"
	"github.com/gmagoon/octopus/vcf"
)

// CallHelp is the help string for the call command.
const CallHelp = "\ncall parameters:\n" +
	"octopus call --reference ref.fa --reads aln.sam [--reads aln2.sam] --output out.vcf\n" +
	"[--reads-file file-of-paths]\n" +
	"[--regions chr:from-to]... [--regions-file file.bed]\n" +
	"[--skip-regions chr:from-to]... [--skip-regions-file file.bed]\n" +
	"[--caller individual|population|cancer|trio]\n" +
	"[--organism-ploidy n] [--contig-ploidies chr=n,...]\n" +
	"[--normal-sample name] [--maternal-sample name] [--paternal-sample name]\n" +
	"[--max-haplotypes n] [--phasing-level minimal|conservative|aggressive]\n" +
	"[--min-variant-posterior phred] [--min-somatic-posterior phred]\n" +
	"[--min-denovo-posterior phred] [--min-refcall-posterior phred]\n" +
	"[--min-phase-score phred]\n" +
	"[--call-reference]\n" +
	"[--sources candidates.vcf]... [--regenotype]\n" +
	"[--max-open-read-files n] [--max-reference-cache mb]\n" +
	"[--threads n]\n" +
	"[--log-path path] [--debug]\n"

// parseRegionString decodes chr or chr:from-to with 1-based inclusive
// coordinates.
func parseRegionString(s string, contigLength func(string) int32) (string, intervals.Interval, error) {
	colon := strings.LastIndex(s, ":")
	if colon < 0 {
		length := contigLength(s)
		if length < 0 {
			return "", intervals.Interval{}, fmt.Errorf("unknown contig %v", s)
		}
		return s, intervals.Interval{Start: 0, End: length}, nil
	}
	contig := s[:colon]
	if contigLength(contig) < 0 {
		return "", intervals.Interval{}, fmt.Errorf("unknown contig %v", contig)
	}
	span := strings.SplitN(s[colon+1:], "-", 2)
	if len(span) != 2 {
		return "", intervals.Interval{}, fmt.Errorf("invalid region %v", s)
	}
	from, err := strconv.ParseInt(span[0], 10, 32)
	if err != nil || from < 1 {
		return "", intervals.Interval{}, fmt.Errorf("invalid region start in %v", s)
	}
	to, err := strconv.ParseInt(span[1], 10, 32)
	if err != nil || to < from {
		return "", intervals.Interval{}, fmt.Errorf("invalid region end in %v", s)
	}
	return contig, intervals.Interval{Start: int32(from) - 1, End: int32(to)}, nil
}

// collectRegions merges the command line regions and the regions file
// into one interval map.
func collectRegions(flagValues []string, file string, contigLength func(string) int32) (map[string][]intervals.Interval, error) {
	result := make(map[string][]intervals.Interval)
	for _, s := range flagValues {
		contig, interval, err := parseRegionString(s, contigLength)
		if err != nil {
			return nil, usageErrorf("%v", err)
		}
		result[contig] = append(result[contig], interval)
	}
	if file != "" {
		var fromFile map[string][]intervals.Interval
		var err error
		switch filepath.Ext(file) {
		case vcf.VcfExt, vcf.BcfExt, vcf.GzExt:
			fromFile, err = intervals.FromVcfFile(file)
		default:
			fromFile, err = intervals.FromBedFile(file)
		}
		if err != nil {
			return nil, &InputDataError{Err: err}
		}
		for contig, ivals := range fromFile {
			result[contig] = append(result[contig], ivals...)
		}
	}
	return result, nil
}

// parseContigPloidies decodes chr=n pairs; a contig may be named only
// once across all occurrences of the option.
func parseContigPloidies(flagValues []string) (map[string]int, error) {
	result := make(map[string]int)
	for _, value := range flagValues {
		for _, pair := range strings.Split(value, ",") {
			fields := strings.SplitN(pair, "=", 2)
			if len(fields) != 2 {
				return nil, usageErrorf("invalid contig ploidy %v", pair)
			}
			ploidy, err := strconv.Atoi(fields[1])
			if err != nil || ploidy < 1 {
				return nil, usageErrorf("invalid ploidy in %v", pair)
			}
			if _, ok := result[fields[0]]; ok {
				return nil, usageErrorf("duplicate ploidy for contig %v", fields[0])
			}
			result[fields[0]] = ploidy
		}
	}
	return result, nil
}

// readFileOfPaths reads one path per line, skipping blanks and #
// comments.
func readFileOfPaths(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}

// loadExternalVariants feeds the records of the source VCFs to the
// candidate generator.
func loadExternalVariants(generator *caller.CandidateGenerator, sources []string) error {
	for _, source := range sources {
		input, err := vcf.Open(source, false)
		if err != nil {
			return err
		}
		variants, err := parseSource(input)
		if nerr := input.Close(); nerr != nil && err == nil {
			err = nerr
		}
		if err != nil {
			return fmt.Errorf("%v, in source %v", err, source)
		}
		generator.AddExternal(variants)
	}
	return nil
}

func parseSource(input *vcf.InputFile) ([]*vcf.Variant, error) {
	header, _, err := vcf.ParseHeader(input.Reader)
	if err != nil {
		return nil, err
	}
	variantParser, err := header.NewVariantParser()
	if err != nil {
		return nil, err
	}
	return input.ParseVariants(variantParser)
}

// Call implements the octopus call command.
func Call() error {
	var (
		reference, readsFile             string
		reads, sources                   multiFlag
		regions, skipRegions             multiFlag
		regionsFile, skipRegionsFile     string
		callerName, phasingName          string
		organismPloidy                   int
		contigPloidies                   multiFlag
		normalSample                     string
		maternalSample, paternalSample   string
		maxHaplotypes, maxHoldoutDepth   int
		overflowLimit                    int
		minVariantPosterior              float64
		minSomaticPosterior              float64
		minDenovoPosterior               float64
		minRefcallPosterior              float64
		minPhaseScore                    float64
		callReference, regenotype, debug bool
		maxOpenReadFiles                 int
		maxReferenceCache                int
		threads                          int
		output, logPath                  string
	)

	defaults := caller.DefaultConfig()

	var flags flag.FlagSet
	flags.StringVar(&reference, "reference", "", "reference FASTA file, indexed")
	flags.Var(&reads, "reads", "alignment file, may be repeated")
	flags.StringVar(&readsFile, "reads-file", "", "file listing one alignment file per line")
	flags.Var(&regions, "regions", "calling region chr or chr:from-to, may be repeated")
	flags.StringVar(&regionsFile, "regions-file", "", "BED or VCF file of calling regions")
	flags.Var(&skipRegions, "skip-regions", "region to skip, may be repeated")
	flags.StringVar(&skipRegionsFile, "skip-regions-file", "", "BED or VCF file of regions to skip")
	flags.StringVar(&callerName, "caller", defaults.Caller.String(), "individual, population, cancer, or trio")
	flags.IntVar(&organismPloidy, "organism-ploidy", defaults.OrganismPloidy, "default ploidy")
	flags.Var(&contigPloidies, "contig-ploidies", "per-contig ploidy overrides chr=n,...")
	flags.StringVar(&normalSample, "normal-sample", "", "normal sample for the cancer caller")
	flags.StringVar(&maternalSample, "maternal-sample", "", "mother sample for the trio caller")
	flags.StringVar(&paternalSample, "paternal-sample", "", "father sample for the trio caller")
	flags.IntVar(&maxHaplotypes, "max-haplotypes", defaults.MaxHaplotypes, "soft bound on haplotypes per active sub-region")
	flags.IntVar(&maxHoldoutDepth, "max-holdout-depth", defaults.MaxHoldoutDepth, "maximum holdout stack depth")
	flags.IntVar(&overflowLimit, "overflow-limit", defaults.OverflowLimit, "hard bound on haplotypes per active sub-region")
	flags.StringVar(&phasingName, "phasing-level", "conservative", "minimal, conservative, or aggressive")
	flags.Float64Var(&minVariantPosterior, "min-variant-posterior", defaults.MinVariantPosterior, "phred threshold for variant calls")
	flags.Float64Var(&minSomaticPosterior, "min-somatic-posterior", defaults.MinSomaticPosterior, "phred threshold for somatic calls")
	flags.Float64Var(&minDenovoPosterior, "min-denovo-posterior", defaults.MinDenovoPosterior, "phred threshold for de novo calls")
	flags.Float64Var(&minRefcallPosterior, "min-refcall-posterior", defaults.MinRefcallPosterior, "phred threshold for reference calls")
	flags.Float64Var(&minPhaseScore, "min-phase-score", defaults.MinPhaseScore, "phred threshold for phasing call pairs")
	flags.BoolVar(&callReference, "call-reference", false, "emit reference calls at confidently homozygous sites")
	flags.Var(&sources, "sources", "VCF file of candidate variants, may be repeated")
	flags.BoolVar(&regenotype, "regenotype", false, "only call variants present in the sources")
	flags.IntVar(&maxOpenReadFiles, "max-open-read-files", 250, "bound on simultaneously open alignment files")
	flags.IntVar(&maxReferenceCache, "max-reference-cache", 500, "reference cache capacity in megabytes")
	flags.IntVar(&threads, "threads", 0, "number of worker threads, 0 = all cores")
	flags.StringVar(&output, "output", "-", "output VCF file, - = stdout")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	flags.BoolVar(&debug, "debug", false, "log per-sub-region detail")

	if err := parseFlags(flags, 2, CallHelp); err != nil {
		return err
	}

	setLogOutput(logPath)
	log.Println("Executing command:\n", strings.Join(os.Args, " "))

	if threads < 0 {
		return usageErrorf("invalid number of threads %v", threads)
	}
	if threads > 0 {
		runtime.GOMAXPROCS(threads)
	}

	cfg := defaults
	var err error
	if cfg.Caller, err = caller.ParseCallerKind(callerName); err != nil {
		return usageErrorf("%v", err)
	}
	if cfg.PhasingLevel, err = caller.ParsePhasingLevel(phasingName); err != nil {
		return usageErrorf("%v", err)
	}
	if organismPloidy < 1 {
		return usageErrorf("invalid organism ploidy %v", organismPloidy)
	}
	cfg.OrganismPloidy = organismPloidy
	if cfg.ContigPloidies, err = parseContigPloidies(contigPloidies); err != nil {
		return err
	}
	cfg.NormalSample = normalSample
	cfg.MaternalSample = maternalSample
	cfg.PaternalSample = paternalSample
	if maxHaplotypes < 2 {
		return usageErrorf("invalid max-haplotypes %v", maxHaplotypes)
	}
	cfg.MaxHaplotypes = maxHaplotypes
	cfg.MaxHoldoutDepth = maxHoldoutDepth
	cfg.OverflowLimit = overflowLimit
	cfg.MinVariantPosterior = minVariantPosterior
	cfg.MinSomaticPosterior = minSomaticPosterior
	cfg.MinDenovoPosterior = minDenovoPosterior
	cfg.MinRefcallPosterior = minRefcallPosterior
	cfg.MinPhaseScore = minPhaseScore
	cfg.CallReference = callReference
	cfg.Regenotype = regenotype
	cfg.Debug = debug

	if regenotype && len(sources) == 0 {
		return usageErrorf("--regenotype needs at least one --sources file")
	}

	if err := checkExist("--reference", reference); err != nil {
		return err
	}
	readPaths := append([]string{}, reads...)
	if readsFile != "" {
		fromFile, err := readFileOfPaths(readsFile)
		if err != nil {
			return &InputDataError{Err: err}
		}
		readPaths = append(readPaths, fromFile...)
	}
	if len(readPaths) == 0 {
		return usageErrorf("no alignment files given")
	}
	for _, path := range readPaths {
		if err := checkExist("--reads", path); err != nil {
			return err
		}
	}

	referenceFile, err := fasta.Open(reference)
	if err != nil {
		return &InputDataError{Err: err}
	}
	defer func() {
		if err := referenceFile.Close(); err != nil {
			log.Println("warning:", err)
		}
	}()
	ref := fasta.NewCachedReference(referenceFile, maxReferenceCache)

	manager := sam.NewReadManager(maxOpenReadFiles)
	defer manager.Close()
	for _, path := range readPaths {
		if err := manager.Register(path); err != nil {
			return &InputDataError{Err: err}
		}
	}

	runner := caller.NewRunner(&cfg, ref, manager)
	if err := caller.CheckRoles(&cfg, runner.Samples()); err != nil {
		return usageErrorf("%v", err)
	}
	if err := loadExternalVariants(runner.Generator(), sources); err != nil {
		return &InputDataError{Err: err}
	}

	regionMap, err := collectRegions(regions, regionsFile, ref.ContigLength)
	if err != nil {
		return err
	}
	skipMap, err := collectRegions(skipRegions, skipRegionsFile, ref.ContigLength)
	if err != nil {
		return err
	}
	callingRegions := intervals.CallingRegions(ref.Contigs(), ref.ContigLength, regionMap, skipMap)

	if err := runner.Run(callingRegions, output); err != nil {
		return &InputDataError{Err: err}
	}
	return nil
}
