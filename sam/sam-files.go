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

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gmagoon/octopus/genome"
)

// An InputFile is an open SAM file positioned after its header.
type InputFile struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	header  *Header
	rgIndex map[string]string // read group ID to sample
}

// Open opens a SAM file and parses its header.
func Open(path string) (*InputFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	input := &InputFile{
		path:   path,
		file:   file,
		reader: bufio.NewReader(file),
	}
	if err := input.parseHeader(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v, while parsing the header of %v", err, path)
	}
	return input, nil
}

// Close closes the underlying file.
func (f *InputFile) Close() error {
	return f.file.Close()
}

// Path returns the file path.
func (f *InputFile) Path() string {
	return f.path
}

// Header returns the parsed header.
func (f *InputFile) Header() *Header {
	return f.header
}

func headerField(fields []string, tag string) string {
	for _, field := range fields[1:] {
		if strings.HasPrefix(field, tag+":") {
			return field[len(tag)+1:]
		}
	}
	return ""
}

func (f *InputFile) parseHeader() error {
	f.header = &Header{}
	f.rgIndex = make(map[string]string)
	for {
		b, err := f.reader.Peek(1)
		if err != nil || b[0] != '@' {
			return nil
		}
		line, err := f.reader.ReadString('\n')
		if err != nil {
			return err
		}
		fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
		switch fields[0] {
		case "@SQ":
			sn := headerField(fields, "SN")
			ln := headerField(fields, "LN")
			if sn == "" || ln == "" {
				return fmt.Errorf("missing SN or LN in SQ header line %v", line)
			}
			length, err := strconv.ParseInt(ln, 10, 32)
			if err != nil {
				return err
			}
			f.header.SQ = append(f.header.SQ, SQEntry{SN: sn, LN: int32(length)})
		case "@RG":
			id := headerField(fields, "ID")
			sm := headerField(fields, "SM")
			if sm == "" {
				sm = id
			}
			f.header.RG = append(f.header.RG, RGEntry{ID: id, SM: sm})
			f.rgIndex[id] = sm
		}
	}
}

// ParseAlignment parses one SAM record line.
func (f *InputFile) ParseAlignment(line string) (*Alignment, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) < 11 {
		return nil, fmt.Errorf("invalid number of fields in SAM record %v", line)
	}
	flag, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, err
	}
	pos, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return nil, err
	}
	mapq, err := strconv.ParseUint(fields[4], 10, 8)
	if err != nil {
		return nil, err
	}
	pnext, err := strconv.ParseInt(fields[7], 10, 32)
	if err != nil {
		return nil, err
	}
	tlen, err := strconv.ParseInt(fields[8], 10, 32)
	if err != nil {
		return nil, err
	}
	seq := strings.ToUpper(fields[9])
	var qual []byte
	if fields[10] != "*" {
		if len(fields[10]) != len(seq) {
			return nil, fmt.Errorf("SEQ and QUAL length mismatch in SAM record %v", line)
		}
		qual = make([]byte, len(fields[10]))
		for i := 0; i < len(fields[10]); i++ {
			q := fields[10][i]
			if q < '!' {
				return nil, fmt.Errorf("invalid base quality in SAM record %v", line)
			}
			qual[i] = q - '!'
		}
	}
	aln := &Alignment{
		QNAME: fields[0],
		FLAG:  uint16(flag),
		RNAME: fields[2],
		POS:   int32(pos) - 1,
		MAPQ:  byte(mapq),
		CIGAR: fields[5],
		RNEXT: fields[6],
		PNEXT: int32(pnext) - 1,
		TLEN:  int32(tlen),
		SEQ:   seq,
		QUAL:  qual,
	}
	for _, field := range fields[11:] {
		if strings.HasPrefix(field, "RG:Z:") {
			aln.Sample = f.rgIndex[field[5:]]
			break
		}
	}
	return aln, nil
}

// ViewRegion scans the file for alignments overlapping the given
// region. SAM files carry no index, so the scan is sequential; the
// read manager bounds how often a file is reopened.
func (f *InputFile) ViewRegion(region genome.Region) ([]*Alignment, error) {
	if _, err := f.file.Seek(0, 0); err != nil {
		return nil, err
	}
	f.reader.Reset(f.file)
	if err := f.parseHeader(); err != nil {
		return nil, err
	}
	var result []*Alignment
	for {
		line, err := f.reader.ReadString('\n')
		if line == "" && err != nil {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		aln, err := f.ParseAlignment(line)
		if err != nil {
			return nil, fmt.Errorf("%v in %v", err, f.path)
		}
		if aln.RNAME != region.Contig || aln.IsUnmapped() {
			continue
		}
		if aln.Region().Overlaps(region) {
			result = append(result, aln)
		}
	}
	return result, nil
}
