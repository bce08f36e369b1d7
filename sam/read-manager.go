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
	"sync"

	"github.com/gmagoon/octopus/genome"
	"github.com/gmagoon/octopus/internal"
)

type managedFile struct {
	path    string
	header  *Header
	size    int64
	samples []string
	open    *InputFile // nil while evicted
}

// A ReadManager serves reads by (sample, region) from a set of
// registered alignment files, keeping at most maxOpen files open at a
// time. Eviction closes the smallest file, which is the cheapest to
// reopen. One mutex guards the open set, the closed set, and the
// sample index.
type ReadManager struct {
	mutex   sync.Mutex
	maxOpen int
	files   []*managedFile
	nofOpen int
	samples []string
}

// NewReadManager creates a read manager bounding the number of open
// read files.
func NewReadManager(maxOpen int) *ReadManager {
	if maxOpen < 1 {
		maxOpen = 1
	}
	return &ReadManager{maxOpen: maxOpen}
}

// Register adds an alignment file. The header is parsed once, so the
// contigs and samples of the file stay known while the file is
// evicted from the open pool.
func (m *ReadManager) Register(path string) error {
	input, err := Open(path)
	if err != nil {
		return err
	}
	header := input.Header()
	samples := header.Samples()
	if len(samples) == 0 {
		// files without read groups count as one anonymous sample
		samples = []string{path}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.files = append(m.files, &managedFile{
		path:    path,
		header:  header,
		size:    internal.FileSize(path),
		samples: samples,
		open:    input,
	})
	m.nofOpen++
	for _, sample := range samples {
		found := false
		for _, s := range m.samples {
			if s == sample {
				found = true
				break
			}
		}
		if !found {
			m.samples = append(m.samples, sample)
		}
	}
	m.evictLocked()
	return nil
}

// evictLocked closes open files smallest-first until the pool bound
// holds.
func (m *ReadManager) evictLocked() {
	for m.nofOpen > m.maxOpen {
		var victim *managedFile
		for _, f := range m.files {
			if f.open == nil {
				continue
			}
			if victim == nil || f.size < victim.size {
				victim = f
			}
		}
		if victim == nil {
			return
		}
		internal.Close(victim.open)
		victim.open = nil
		m.nofOpen--
	}
}

func (m *ReadManager) acquire(f *managedFile) (*InputFile, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f.open == nil {
		input, err := Open(f.path)
		if err != nil {
			return nil, err
		}
		f.open = input
		m.nofOpen++
		m.evictLocked()
	}
	return f.open, nil
}

// Close closes all open files.
func (m *ReadManager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, f := range m.files {
		if f.open != nil {
			internal.Close(f.open)
			f.open = nil
			m.nofOpen--
		}
	}
}

// Samples returns the distinct samples across all registered files.
func (m *ReadManager) Samples() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.samples
}

// Contigs returns the contigs that registered files may contain, in
// first-seen dictionary order, without reopening any file.
func (m *ReadManager) Contigs() (contigs []string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	seen := make(map[string]bool)
	for _, f := range m.files {
		for _, contig := range f.header.Contigs() {
			if !seen[contig] {
				seen[contig] = true
				contigs = append(contigs, contig)
			}
		}
	}
	return contigs
}

// Headers returns the parsed headers of all registered files.
func (m *ReadManager) Headers() (headers []*Header) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, f := range m.files {
		headers = append(headers, f.header)
	}
	return headers
}

func fileMayContain(f *managedFile, contig string) bool {
	for _, sq := range f.header.SQ {
		if sq.SN == contig {
			return true
		}
	}
	return false
}

// Reads returns the reads overlapping the region, grouped by sample
// and ordered by position within each sample.
func (m *ReadManager) Reads(region genome.Region) (ReadMap, error) {
	m.mutex.Lock()
	files := make([]*managedFile, len(m.files))
	copy(files, m.files)
	m.mutex.Unlock()

	contigIndex := make(map[string]int32)
	result := make(ReadMap)
	for _, f := range files {
		if !fileMayContain(f, region.Contig) {
			continue
		}
		input, err := m.acquire(f)
		if err != nil {
			return nil, err
		}
		alns, err := input.ViewRegion(region)
		if err != nil {
			return nil, err
		}
		for index, sq := range f.header.SQ {
			if _, ok := contigIndex[sq.SN]; !ok {
				contigIndex[sq.SN] = int32(index)
			}
		}
		for _, aln := range alns {
			sample := aln.Sample
			if sample == "" {
				sample = f.samples[0]
			}
			result[sample] = append(result[sample], aln)
		}
	}
	for _, alns := range result {
		By(func(aln1, aln2 *Alignment) bool {
			return CoordinateLess(contigIndex, aln1, aln2)
		}).ParallelStableSort(alns)
	}
	return result, nil
}
