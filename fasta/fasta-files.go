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

package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/internal"
)

// FaiReference represents an entry in an FAI file.
type FaiReference struct {
	Length    int32
	Offset    int64
	LineBases int32
	LineWidth int32
}

// ParseFai parses an FAI file, returning the entries and the contig
// order of the file.
func ParseFai(filename string) (fai map[string]FaiReference, contigs []string) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	fai = make(map[string]FaiReference)

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		b := bytes.Split(scanner.Bytes(), []byte("\t"))
		if len(b) != 5 {
			log.Panicf("badly formatted fai file %v - invalid number of entries", filename)
		}

		contig := string(b[0])
		contigs = append(contigs, contig)
		fai[contig] = FaiReference{
			Length:    int32(internal.ParseInt(string(b[1]), 10, 32)),
			Offset:    internal.ParseInt(string(b[2]), 10, 64),
			LineBases: int32(internal.ParseInt(string(b[3]), 10, 32)),
			LineWidth: int32(internal.ParseInt(string(b[4]), 10, 32)),
		}
	}

	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}

	return fai, contigs
}

var iupacUpperTable = map[byte]byte{
	'A': 'A', 'a': 'A',
	'C': 'C', 'c': 'C',
	'G': 'G', 'g': 'G',
	'T': 'T', 't': 'T',
	'N': 'N', 'n': 'N',
	'R': 'N', 'r': 'N',
	'Y': 'N', 'y': 'N',
	'M': 'N', 'm': 'N',
	'K': 'N', 'k': 'N',
	'W': 'N', 'w': 'N',
	'S': 'N', 's': 'N',
	'B': 'N', 'b': 'N',
	'D': 'N', 'd': 'N',
	'H': 'N', 'h': 'N',
	'V': 'N', 'v': 'N',
}

// ToUpperAndN normalizes ambiguity codes in FASTA references, and
// converts all codes to upper case.
func ToUpperAndN(base byte) byte {
	if n, ok := iupacUpperTable[base]; ok {
		return n
	}
	return base
}

// A File provides random access by region to an indexed FASTA file.
type File struct {
	mutex   sync.Mutex
	file    *os.File
	fai     map[string]FaiReference
	contigs []string
}

// Open opens an indexed FASTA file. The index must be at
// filename + ".fai".
func Open(filename string) (*File, error) {
	faiName := filename + ".fai"
	if !internal.FileExists(faiName) {
		return nil, fmt.Errorf("missing fasta index %v", faiName)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	fai, contigs := ParseFai(faiName)
	return &File{file: f, fai: fai, contigs: contigs}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.file.Close()
}

// Contigs returns the contigs of the reference in file order.
func (f *File) Contigs() []string {
	return f.contigs
}

// ContigLength returns the length of a contig, or -1 if the contig is
// unknown.
func (f *File) ContigLength(contig string) int32 {
	if ref, ok := f.fai[contig]; ok {
		return ref.Length
	}
	return -1
}

// Slice reads the bases of the given region, upper cased with
// ambiguity codes normalized to N.
func (f *File) Slice(region genome.Region) string {
	ref, ok := f.fai[region.Contig]
	if !ok {
		log.Panicf("unknown contig %v", region.Contig)
	}
	if region.Begin < 0 || region.End > ref.Length {
		log.Panicf("region %v outside contig bounds [0, %v)", region, ref.Length)
	}
	if region.IsEmpty() {
		return ""
	}

	// line-structure arithmetic: skip the newlines of the fai layout
	startLine := region.Begin / ref.LineBases
	startOffset := ref.Offset + int64(startLine)*int64(ref.LineWidth) + int64(region.Begin%ref.LineBases)
	endLine := (region.End - 1) / ref.LineBases
	rawLength := int64(region.Size()) + int64(endLine-startLine)*int64(ref.LineWidth-ref.LineBases)

	raw := make([]byte, rawLength)
	f.mutex.Lock()
	_, err := f.file.ReadAt(raw, startOffset)
	f.mutex.Unlock()
	if err != nil {
		log.Panicf("%v, while reading reference slice %v", err, region)
	}

	bases := make([]byte, 0, region.Size())
	for _, b := range raw {
		if b == '\n' || b == '\r' {
			continue
		}
		bases = append(bases, ToUpperAndN(b))
	}
	if int32(len(bases)) != region.Size() {
		log.Panicf("short reference slice %v", region)
	}
	return string(bases)
}
