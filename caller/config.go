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

	"github.com/gmagoon/octopus/genome"
)

// CallerKind selects one of the four genotype models.
type CallerKind int

const (
	IndividualCalling CallerKind = iota
	PopulationCalling
	CancerCalling
	TrioCalling
)

func (kind CallerKind) String() string {
	switch kind {
	case IndividualCalling:
		return "individual"
	case PopulationCalling:
		return "population"
	case CancerCalling:
		return "cancer"
	case TrioCalling:
		return "trio"
	default:
		return "invalid"
	}
}

// ParseCallerKind decodes a caller name from the command line.
func ParseCallerKind(name string) (CallerKind, error) {
	switch name {
	case "individual":
		return IndividualCalling, nil
	case "population":
		return PopulationCalling, nil
	case "cancer":
		return CancerCalling, nil
	case "trio":
		return TrioCalling, nil
	default:
		return 0, fmt.Errorf("unknown caller %v", name)
	}
}

// PhasingLevel controls the lagging policy of the haplotype generator:
// how many already-phased leading alleles are retained at the front of
// the next active sub-region.
type PhasingLevel int

const (
	MinimalPhasing PhasingLevel = iota
	ConservativePhasing
	AggressivePhasing
)

// ParsePhasingLevel decodes a phasing level name from the command line.
func ParsePhasingLevel(name string) (PhasingLevel, error) {
	switch name {
	case "minimal":
		return MinimalPhasing, nil
	case "conservative":
		return ConservativePhasing, nil
	case "aggressive":
		return AggressivePhasing, nil
	default:
		return 0, fmt.Errorf("unknown phasing level %v", name)
	}
}

// CoreConfig is the frozen configuration of one caller run. It is
// decoded once from the command line; downstream components never
// re-parse strings.
type CoreConfig struct {
	Caller         CallerKind
	OrganismPloidy int
	ContigPloidies map[string]int

	// role assignments for the cancer and trio models
	NormalSample   string
	MaternalSample string
	PaternalSample string

	// read pipeline
	MinMappingQuality  byte
	MinBaseQuality     byte
	MinGoodBases       int
	MaxCoverage        int
	TargetCoverage     int
	SoftClipBoundary   int32
	MaskTails          int32

	// candidate generation
	KmerSizes                  []int
	MinSupportingReads         int
	MisalignmentSNVPenalty     float64
	MisalignmentIndelPenalty   float64
	MisalignmentClipPenalty    float64
	UnpenalisedClipSize        int
	MisalignmentPenaltyQuality byte
	MinLnProbCorrectlyAligned  float64
	MisalignmentRate           float64

	// haplotype generation
	MaxHaplotypes   int
	MaxHoldoutDepth int
	OverflowLimit   int
	PhasingLevel    PhasingLevel

	// priors
	SnpHeterozygosity   float64
	IndelHeterozygosity float64

	// cancer model
	SomaticMutationRate float64
	MinSomaticFrequency float64
	CredibleMass        float64

	// trio model
	DenovoMutationRate float64
	MaxJointGenotypes  int

	// posterior thresholds, phred scaled
	MinVariantPosterior float64
	MinSomaticPosterior float64
	MinDenovoPosterior  float64
	MinRefcallPosterior float64
	MinPhaseScore       float64

	CallReference               bool
	DisableInactiveFlankScoring bool
	UseUnconditionalPhaseScore  bool
	DisableReadGuidedPhasing    bool

	Regenotype bool
	Debug      bool
}

// DefaultConfig returns the built-in defaults; the command line only
// overrides what it names.
func DefaultConfig() CoreConfig {
	return CoreConfig{
		Caller:         IndividualCalling,
		OrganismPloidy: 2,
		ContigPloidies: make(map[string]int),

		MinMappingQuality: 20,
		MinBaseQuality:    20,
		MinGoodBases:      20,
		MaxCoverage:       1000,
		TargetCoverage:    500,
		SoftClipBoundary:  2,

		KmerSizes:                  []int{10, 25, 35},
		MinSupportingReads:         2,
		MisalignmentSNVPenalty:     1.5,
		MisalignmentIndelPenalty:   2.0,
		MisalignmentClipPenalty:    0.05,
		UnpenalisedClipSize:        5,
		MisalignmentPenaltyQuality: 20,
		MinLnProbCorrectlyAligned:  -10.0,
		MisalignmentRate:           0.02,

		MaxHaplotypes:   200,
		MaxHoldoutDepth: 3,
		OverflowLimit:   16384,
		PhasingLevel:    ConservativePhasing,

		SnpHeterozygosity:   0.001,
		IndelHeterozygosity: 0.0001,

		SomaticMutationRate: 1e-5,
		MinSomaticFrequency: 0.01,
		CredibleMass:        0.9,

		DenovoMutationRate: 1e-6,
		MaxJointGenotypes:  1000000,

		MinVariantPosterior: 2,
		MinSomaticPosterior: 2,
		MinDenovoPosterior:  2,
		MinRefcallPosterior: 2,
		MinPhaseScore:       10,
	}
}

// ContigPloidy returns the ploidy for a contig, honoring contig
// overrides.
func (cfg *CoreConfig) ContigPloidy(contig string) int {
	if ploidy, ok := cfg.ContigPloidies[contig]; ok {
		return ploidy
	}
	return cfg.OrganismPloidy
}

// Samples returns the role samples a model requires, or nil when the
// model has no fixed roles.
func (cfg *CoreConfig) RoleSamples() []string {
	switch cfg.Caller {
	case CancerCalling:
		return []string{cfg.NormalSample}
	case TrioCalling:
		return []string{cfg.MaternalSample, cfg.PaternalSample}
	default:
		return nil
	}
}

// A RegionError is a recoverable per-sub-region failure: the driver
// logs it, skips the sub-region, and continues.
type RegionError struct {
	Region genome.Region
	Reason string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("%v in region %v", e.Reason, e.Region)
}

// HaplotypeOverflow reports that the haplotype tree exceeded the
// overflow limit despite holdouts.
func HaplotypeOverflow(region genome.Region, count int) *RegionError {
	return &RegionError{
		Region: region,
		Reason: fmt.Sprintf("haplotype overflow (%v haplotypes)", count),
	}
}
