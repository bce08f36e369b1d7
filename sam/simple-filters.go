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

package sam

type (
	// A ReadFilter receives an Alignment. It returns true if the
	// alignment should be kept, and false if it should be removed.
	ReadFilter func(*Alignment) bool

	// A Filter receives a Header and returns a ReadFilter or nil.
	Filter func(*Header) ReadFilter
)

// FilterInvalidBaseQualities removes reads whose quality string is
// missing or disagrees with the sequence length.
func FilterInvalidBaseQualities(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		return len(aln.QUAL) == len(aln.SEQ)
	}
}

// FilterMalformedCigars removes reads whose CIGAR does not scan or
// does not consume the full sequence.
func FilterMalformedCigars(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		return CheckCigarString(aln.CIGAR, len(aln.SEQ))
	}
}

// FilterUnmappedReads removes unmapped reads, based on FLAG, or
// POS < 0, or RNAME=*.
func FilterUnmappedReads(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		return !aln.IsUnmapped() && aln.POS >= 0 && aln.RNAME != "*"
	}
}

// FilterMappingQuality removes reads with mapping quality below the
// threshold.
func FilterMappingQuality(min byte) Filter {
	return func(_ *Header) ReadFilter {
		return func(aln *Alignment) bool { return aln.MAPQ >= min }
	}
}

// FilterGoodBases removes reads with fewer than minBases bases of
// quality at least minQuality.
func FilterGoodBases(minBases int, minQuality byte) Filter {
	return func(_ *Header) ReadFilter {
		return func(aln *Alignment) bool {
			return aln.CountBaseQualityAtLeast(minQuality) >= minBases
		}
	}
}

// FilterDuplicateReads removes reads marked duplicate, based on FLAG.
func FilterDuplicateReads(_ *Header) ReadFilter {
	return func(aln *Alignment) bool { return !aln.IsDuplicate() }
}

// FilterQCFailedReads removes reads marked QC fail, based on FLAG.
func FilterQCFailedReads(_ *Header) ReadFilter {
	return func(aln *Alignment) bool { return !aln.IsQCFailed() }
}

// FilterSecondaryReads removes secondary alignments, based on FLAG.
func FilterSecondaryReads(_ *Header) ReadFilter {
	return func(aln *Alignment) bool { return !aln.IsSecondary() }
}

// FilterSupplementaryReads removes supplementary alignments, based on
// FLAG.
func FilterSupplementaryReads(_ *Header) ReadFilter {
	return func(aln *Alignment) bool { return !aln.IsSupplementary() }
}

// FilterMateUnmapped removes paired reads whose mate is unmapped.
func FilterMateUnmapped(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		return !aln.IsMultiple() || !aln.IsNextUnmapped()
	}
}

// FilterNonTemplateLocal removes paired reads whose mate maps to a
// different contig.
func FilterNonTemplateLocal(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		return !aln.IsMultiple() || aln.IsTemplateLocal()
	}
}

// FilterAdapterContaminated removes chimeric reads that extend past
// the adapter boundary inferred from the insert size.
func FilterAdapterContaminated(_ *Header) ReadFilter {
	return func(aln *Alignment) bool {
		if !aln.IsChimeric() {
			return true
		}
		if aln.IsReversed() {
			return aln.POS >= aln.PNEXT
		}
		tlen := aln.TLEN
		if tlen < 0 {
			tlen = -tlen
		}
		return aln.End() <= aln.POS+tlen
	}
}

// DefaultFilters returns the standard read filters in evaluation
// order. Each is independently toggleable through the config layer.
func DefaultFilters(minMappingQuality byte, minGoodBases int, minGoodBaseQuality byte) []Filter {
	return []Filter{
		func(hdr *Header) ReadFilter { return FilterInvalidBaseQualities(hdr) },
		func(hdr *Header) ReadFilter { return FilterMalformedCigars(hdr) },
		func(hdr *Header) ReadFilter { return FilterUnmappedReads(hdr) },
		FilterMappingQuality(minMappingQuality),
		FilterGoodBases(minGoodBases, minGoodBaseQuality),
		func(hdr *Header) ReadFilter { return FilterDuplicateReads(hdr) },
		func(hdr *Header) ReadFilter { return FilterQCFailedReads(hdr) },
		func(hdr *Header) ReadFilter { return FilterSecondaryReads(hdr) },
		func(hdr *Header) ReadFilter { return FilterSupplementaryReads(hdr) },
		func(hdr *Header) ReadFilter { return FilterMateUnmapped(hdr) },
		func(hdr *Header) ReadFilter { return FilterNonTemplateLocal(hdr) },
		func(hdr *Header) ReadFilter { return FilterAdapterContaminated(hdr) },
	}
}
