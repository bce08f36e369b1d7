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

package genome

import (
	"log"
	"strings"
)

// A Reference provides random access to reference bases. Slices are
// upper case with ambiguity codes normalized to N.
type Reference interface {
	Contigs() []string
	ContigLength(contig string) int32
	Slice(region Region) string
}

// An Allele is a (region, sequence) pair. An insertion has an empty
// region and a non-empty sequence; a deletion a non-empty region and
// an empty sequence. Equality is bitwise on both fields.
type Allele struct {
	Region   Region
	Sequence string
}

// IsReference returns true if the allele sequence equals the
// reference slice at its region. N in the reference matches any base.
func (a Allele) IsReference(ref Reference) bool {
	if int32(len(a.Sequence)) != a.Region.Size() {
		return false
	}
	refSeq := ref.Slice(a.Region)
	for i := 0; i < len(refSeq); i++ {
		if r := refSeq[i]; r != 'N' && r != a.Sequence[i] {
			return false
		}
	}
	return true
}

// IsInsertion returns true for an empty region and non-empty sequence.
func (a Allele) IsInsertion() bool {
	return a.Region.IsEmpty() && len(a.Sequence) > 0
}

// IsDeletion returns true for a non-empty region and empty sequence.
func (a Allele) IsDeletion() bool {
	return !a.Region.IsEmpty() && len(a.Sequence) == 0
}

// A Variant is an ordered pair of a reference allele and an alternate
// allele sharing the same region. Variants are normalised before they
// enter the core.
type Variant struct {
	Region Region
	Ref    string
	Alt    string
}

// RefAllele returns the reference allele of the variant.
func (v Variant) RefAllele() Allele {
	return Allele{Region: v.Region, Sequence: v.Ref}
}

// AltAllele returns the alternate allele of the variant.
func (v Variant) AltAllele() Allele {
	return Allele{Region: v.Region, Sequence: v.Alt}
}

// IsSNV returns true for single-base substitutions.
func (v Variant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1 && v.Ref != v.Alt
}

// IsMNV returns true for equal-length multi-base substitutions.
func (v Variant) IsMNV() bool {
	return len(v.Ref) > 1 && len(v.Ref) == len(v.Alt)
}

// IsInsertion returns true if the alt sequence is longer than the ref
// sequence.
func (v Variant) IsInsertion() bool {
	return len(v.Alt) > len(v.Ref)
}

// IsDeletion returns true if the alt sequence is shorter than the ref
// sequence.
func (v Variant) IsDeletion() bool {
	return len(v.Alt) < len(v.Ref)
}

// TypeName returns the variant type for VCF INFO annotation.
func (v Variant) TypeName() string {
	switch {
	case v.IsSNV():
		return "SNV"
	case v.IsMNV():
		return "MNV"
	case v.IsInsertion():
		return "INS"
	case v.IsDeletion():
		return "DEL"
	default:
		return "COMPLEX"
	}
}

// Normalise left-aligns and minimises the representation of a
// variant. Common suffix bases are trimmed first, then common prefix
// bases while adjusting Begin, and indels are shifted left while the
// flanking reference base allows it.
func Normalise(v Variant, ref Reference) Variant {
	if v.Region.Begin > v.Region.End {
		log.Panicf("denormalised variant region %v", v.Region)
	}
	refSeq, altSeq := v.Ref, v.Alt
	begin := v.Region.Begin

	// trim common suffix
	for len(refSeq) > 0 && len(altSeq) > 0 && refSeq[len(refSeq)-1] == altSeq[len(altSeq)-1] {
		refSeq = refSeq[:len(refSeq)-1]
		altSeq = altSeq[:len(altSeq)-1]
	}
	// trim common prefix
	for len(refSeq) > 0 && len(altSeq) > 0 && refSeq[0] == altSeq[0] {
		refSeq = refSeq[1:]
		altSeq = altSeq[1:]
		begin++
	}

	// left-align pure indels
	if len(refSeq) == 0 || len(altSeq) == 0 {
		indel := refSeq
		if len(indel) == 0 {
			indel = altSeq
		}
		for begin > 0 && len(indel) > 0 {
			prev := ref.Slice(Region{Contig: v.Region.Contig, Begin: begin - 1, End: begin})
			if prev[0] != indel[len(indel)-1] {
				break
			}
			indel = prev + indel[:len(indel)-1]
			begin--
		}
		if len(refSeq) == 0 {
			altSeq = indel
		} else {
			refSeq = indel
		}
	}

	return Variant{
		Region: Region{Contig: v.Region.Contig, Begin: begin, End: begin + int32(len(refSeq))},
		Ref:    refSeq,
		Alt:    altSeq,
	}
}

// VariantLess orders variants by region, then ref, then alt, so that
// candidate sets can be deduplicated by a linear scan. Variant sets are
// per contig, so contigs compare lexicographically.
func VariantLess(v1, v2 Variant) bool {
	if v1.Region != v2.Region {
		r1, r2 := v1.Region, v2.Region
		switch {
		case r1.Contig != r2.Contig:
			return r1.Contig < r2.Contig
		case r1.Begin != r2.Begin:
			return r1.Begin < r2.Begin
		default:
			return r1.End < r2.End
		}
	}
	if v1.Ref != v2.Ref {
		return v1.Ref < v2.Ref
	}
	return v1.Alt < v2.Alt
}

// Matches is the candidate deduplication predicate: same type and
// region, and the same alt sequence up to N placeholders. Insertions
// match on identical length and N count; deletions on overlapping
// regions.
func (v Variant) Matches(other Variant) bool {
	switch {
	case v.IsSNV() || v.IsMNV():
		return (other.IsSNV() || other.IsMNV()) && v.Region == other.Region && v.Alt == other.Alt
	case v.IsInsertion():
		if !other.IsInsertion() || v.Region.Begin != other.Region.Begin || v.Region.Contig != other.Region.Contig {
			return false
		}
		return len(v.Alt) == len(other.Alt) &&
			strings.Count(v.Alt, "N") == strings.Count(other.Alt, "N")
	case v.IsDeletion():
		return other.IsDeletion() && v.Region.Overlaps(other.Region)
	default:
		return v == other
	}
}
