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

// A ReadTransform mutates an alignment in place. Transforms only ever
// zero base qualities, never raise them, so their effect commutes.
type ReadTransform func(*Alignment)

func zeroQualities(aln *Alignment, begin, end int32) {
	if begin < 0 {
		begin = 0
	}
	if end > int32(len(aln.QUAL)) {
		end = int32(len(aln.QUAL))
	}
	for i := begin; i < end; i++ {
		aln.QUAL[i] = 0
	}
}

// MaskSoftClippedBases zeroes the qualities of soft-clipped bases
// plus boundary extra bases on each clipped side.
func MaskSoftClippedBases(boundary int32) ReadTransform {
	return func(aln *Alignment) {
		cigar := ScanCigarString(aln.CIGAR)
		if len(cigar) == 0 {
			return
		}
		var readPos int32
		for i, op := range cigar {
			switch op.Operation {
			case 'S':
				if i == 0 {
					zeroQualities(aln, 0, op.Length+boundary)
				} else {
					zeroQualities(aln, readPos-boundary, readPos+op.Length)
				}
				readPos += op.Length
			case 'M', 'I', '=', 'X':
				readPos += op.Length
			}
		}
	}
}

// MaskAdapterContamination zeroes the qualities of bases past the
// adapter boundary on chimeric reads (read length > insert size).
func MaskAdapterContamination(aln *Alignment) {
	if !aln.IsChimeric() {
		return
	}
	tlen := aln.TLEN
	if tlen < 0 {
		tlen = -tlen
	}
	if aln.IsReversed() {
		// bases mapping before the mate start are adapter read-through
		boundary := aln.PNEXT - aln.POS
		if boundary > 0 {
			zeroQualities(aln, 0, 0)
		} else {
			zeroQualities(aln, 0, -boundary)
		}
	} else {
		overhang := aln.End() - (aln.POS + tlen)
		if overhang > 0 {
			zeroQualities(aln, int32(len(aln.QUAL))-overhang, int32(len(aln.QUAL)))
		}
	}
}

// MaskTail zeroes the qualities of the last n bases in sequencing
// order, accounting for strand.
func MaskTail(n int32) ReadTransform {
	return func(aln *Alignment) {
		if aln.IsReversed() {
			zeroQualities(aln, 0, n)
		} else {
			zeroQualities(aln, int32(len(aln.QUAL))-n, int32(len(aln.QUAL)))
		}
	}
}

// MaskMateOverlap zeroes the qualities of the overlapping segment on
// the forward read of a mate pair, so that overlapping fragments are
// not counted twice.
func MaskMateOverlap(aln *Alignment) {
	if !aln.IsMultiple() || aln.IsReversed() || aln.IsNextUnmapped() || !aln.IsTemplateLocal() {
		return
	}
	overlap := aln.End() - aln.PNEXT
	if overlap <= 0 {
		return
	}
	// translate the reference overlap into read coordinates
	cigar := ScanCigarString(aln.CIGAR)
	refPos := aln.POS
	var readPos int32
	for _, op := range cigar {
		switch op.Operation {
		case 'M', '=', 'X':
			if refPos+op.Length > aln.PNEXT {
				offset := aln.PNEXT - refPos
				if offset < 0 {
					offset = 0
				}
				zeroQualities(aln, readPos+offset, int32(len(aln.QUAL)))
				return
			}
			refPos += op.Length
			readPos += op.Length
		case 'I', 'S':
			readPos += op.Length
		case 'D', 'N':
			refPos += op.Length
		}
	}
}

// DefaultTransforms returns the standard quality-masking transforms.
func DefaultTransforms(softClipBoundary, tailLength int32) []ReadTransform {
	transforms := []ReadTransform{
		MaskSoftClippedBases(softClipBoundary),
		MaskAdapterContamination,
		MaskMateOverlap,
	}
	if tailLength > 0 {
		transforms = append(transforms, MaskTail(tailLength))
	}
	return transforms
}
