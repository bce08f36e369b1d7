package sam

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"unicode"

	psort "github.com/exascience/pargo/sort"

	"github.com/gmagoon/octopus/genome"
)

// A Header holds the parsed header of a SAM file: the reference
// sequence dictionary and the read groups.
type Header struct {
	SQ []SQEntry
	RG []RGEntry
}

// An SQEntry is a reference sequence dictionary line.
type SQEntry struct {
	SN string
	LN int32
}

// An RGEntry is a read group line. SM maps read groups to samples.
type RGEntry struct {
	ID string
	SM string
}

// Contigs returns the contig names of the header in dictionary order.
func (hdr *Header) Contigs() (contigs []string) {
	for _, sq := range hdr.SQ {
		contigs = append(contigs, sq.SN)
	}
	return contigs
}

// Samples returns the distinct sample names of the header.
func (hdr *Header) Samples() (samples []string) {
	for _, rg := range hdr.RG {
		found := false
		for _, s := range samples {
			if s == rg.SM {
				found = true
				break
			}
		}
		if !found {
			samples = append(samples, rg.SM)
		}
	}
	return samples
}

// An Alignment is an aligned read. POS is the zero-based leftmost
// reference position. QUAL holds raw phred base qualities and is the
// only field the pipeline mutates (quality masking).
type Alignment struct {
	QNAME  string
	FLAG   uint16
	RNAME  string
	POS    int32
	MAPQ   byte
	CIGAR  string
	RNEXT  string
	PNEXT  int32
	TLEN   int32
	SEQ    string
	QUAL   []byte
	Sample string
}

const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsMultiple() bool      { return (aln.FLAG & Multiple) != 0 }
func (aln *Alignment) IsProper() bool        { return (aln.FLAG & Proper) != 0 }
func (aln *Alignment) IsUnmapped() bool      { return (aln.FLAG & Unmapped) != 0 }
func (aln *Alignment) IsNextUnmapped() bool  { return (aln.FLAG & NextUnmapped) != 0 }
func (aln *Alignment) IsReversed() bool      { return (aln.FLAG & Reversed) != 0 }
func (aln *Alignment) IsNextReversed() bool  { return (aln.FLAG & NextReversed) != 0 }
func (aln *Alignment) IsFirst() bool         { return (aln.FLAG & First) != 0 }
func (aln *Alignment) IsLast() bool          { return (aln.FLAG & Last) != 0 }
func (aln *Alignment) IsSecondary() bool     { return (aln.FLAG & Secondary) != 0 }
func (aln *Alignment) IsQCFailed() bool      { return (aln.FLAG & QCFailed) != 0 }
func (aln *Alignment) IsDuplicate() bool     { return (aln.FLAG & Duplicate) != 0 }
func (aln *Alignment) IsSupplementary() bool { return (aln.FLAG & Supplementary) != 0 }

// IsTemplateLocal returns true if the mate maps to the same contig.
func (aln *Alignment) IsTemplateLocal() bool {
	return aln.RNEXT == "=" || aln.RNEXT == aln.RNAME
}

// IsChimeric returns true if the read length exceeds the inferred
// insert size, indicating read-through into the adapter.
func (aln *Alignment) IsChimeric() bool {
	tlen := aln.TLEN
	if tlen < 0 {
		tlen = -tlen
	}
	return tlen > 0 && int32(len(aln.SEQ)) > tlen
}

// End returns the zero-based exclusive end of the reference span of
// the alignment, computed from the CIGAR.
func (aln *Alignment) End() int32 {
	cigar := ScanCigarString(aln.CIGAR)
	end := aln.POS
	for _, op := range cigar {
		switch op.Operation {
		case 'M', 'D', 'N', '=', 'X':
			end += op.Length
		}
	}
	return end
}

// Region returns the reference region the alignment covers.
func (aln *Alignment) Region() genome.Region {
	return genome.Region{Contig: aln.RNAME, Begin: aln.POS, End: aln.End()}
}

// MeanBaseQuality returns the mean raw base quality of the read.
func (aln *Alignment) MeanBaseQuality() float64 {
	if len(aln.QUAL) == 0 {
		return 0
	}
	var sum int
	for _, q := range aln.QUAL {
		sum += int(q)
	}
	return float64(sum) / float64(len(aln.QUAL))
}

// CountBaseQualityAtLeast returns the number of bases with quality at
// least min.
func (aln *Alignment) CountBaseQualityAtLeast(min byte) (n int) {
	for _, q := range aln.QUAL {
		if q >= min {
			n++
		}
	}
	return n
}

// CoordinateLess orders alignments by contig dictionary order and
// position. The contigIndex map is derived from the header.
func CoordinateLess(contigIndex map[string]int32, aln1, aln2 *Alignment) bool {
	refid1 := contigIndex[aln1.RNAME]
	refid2 := contigIndex[aln2.RNAME]
	switch {
	case refid1 < refid2:
		return true
	case refid1 > refid2:
		return false
	default:
		return aln1.POS < aln2.POS
	}
}

type (
	By func(aln1, aln2 *Alignment) bool

	AlignmentSorter struct {
		alns []*Alignment
		by   By
	}
)

func (s AlignmentSorter) SequentialSort(i, j int) {
	alns, by := s.alns[i:j], s.by
	sort.Slice(alns, func(i, j int) bool {
		return by(alns[i], alns[j])
	})
}

func (s AlignmentSorter) NewTemp() psort.StableSorter {
	return AlignmentSorter{make([]*Alignment, len(s.alns)), s.by}
}

func (s AlignmentSorter) Len() int {
	return len(s.alns)
}

func (s AlignmentSorter) Less(i, j int) bool {
	return s.by(s.alns[i], s.alns[j])
}

func (s AlignmentSorter) Assign(p psort.StableSorter) func(i, j, len int) {
	dst, src := s.alns, p.(AlignmentSorter).alns
	return func(i, j, len int) {
		for k := 0; k < len; k++ {
			dst[i+k] = src[j+k]
		}
	}
}

// ParallelStableSort sorts alignments with a parallel stable merge
// sort.
func (by By) ParallelStableSort(alns []*Alignment) {
	psort.StableSort(AlignmentSorter{alns, by})
}

// A ReadMap groups the reads of a window by sample, each slice
// ordered by region.
type ReadMap map[string][]*Alignment

const CigarOperations = "MmIiDdNnSsHhPpXx="

var cigarOperationsTable = make(map[byte]byte, len(CigarOperations))

func init() {
	for _, c := range CigarOperations {
		cigarOperationsTable[byte(c)] = byte(unicode.ToUpper(rune(c)))
	}
}

func isDigit(char byte) bool { return ('0' <= char) && (char <= '9') }

type CigarOperation struct {
	Length    int32
	Operation byte
}

func newCigarOperation(cigar string, i int) (op CigarOperation, j int, err error) {
	for j = i; ; j++ {
		if char := cigar[j]; !isDigit(char) {
			length, nerr := strconv.ParseInt(cigar[i:j], 10, 32)
			if nerr != nil {
				err = nerr
				return
			}
			if operation := cigarOperationsTable[char]; operation != 0 {
				op = CigarOperation{int32(length), operation}
				j++
			} else {
				err = fmt.Errorf("invalid CIGAR operation %v", char)
			}
			return
		}
	}
}

var (
	cigarSliceCache      = map[string][]CigarOperation{"*": {}}
	cigarSliceCacheMutex = sync.RWMutex{}
)

func slowScanCigarString(cigar string) ([]CigarOperation, error) {
	var slice []CigarOperation
	for i := 0; i < len(cigar); {
		cigarOperation, j, err := newCigarOperation(cigar, i)
		if err != nil {
			return nil, fmt.Errorf("%v, while scanning CIGAR string %v", err, cigar)
		}
		slice = append(slice, cigarOperation)
		i = j
	}
	cigarSliceCacheMutex.Lock()
	if value, found := cigarSliceCache[cigar]; found {
		slice = value
	} else {
		cigarSliceCache[cigar] = slice
	}
	cigarSliceCacheMutex.Unlock()
	return slice, nil
}

// ScanCigarString parses a CIGAR string, memoizing the result. It
// panics on malformed input; use CheckCigarString to validate first.
func ScanCigarString(cigar string) []CigarOperation {
	cigarSliceCacheMutex.RLock()
	value, found := cigarSliceCache[cigar]
	cigarSliceCacheMutex.RUnlock()
	if found {
		return value
	}
	slice, err := slowScanCigarString(cigar)
	if err != nil {
		panic(err)
	}
	return slice
}

// CheckCigarString reports whether a CIGAR string is well formed and
// its read-consuming length matches the sequence length.
func CheckCigarString(cigar string, seqLength int) bool {
	if cigar == "*" {
		return true
	}
	var slice []CigarOperation
	for i := 0; i < len(cigar); {
		cigarOperation, j, err := newCigarOperation(cigar, i)
		if err != nil {
			return false
		}
		slice = append(slice, cigarOperation)
		i = j
	}
	var readLength int32
	for _, op := range slice {
		switch op.Operation {
		case 'M', 'I', 'S', '=', 'X':
			readLength += op.Length
		}
	}
	return readLength == int32(seqLength)
}
