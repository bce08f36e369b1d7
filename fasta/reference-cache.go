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
	"container/list"
	"sync"

	"github.com/gmagoon/octopus/genome"
)

// cache granularity: reference bases are fetched and retained in
// fixed-size chunks so that eviction has a uniform unit.
const chunkSize = 1 << 16

type chunkKey struct {
	contig string
	index  int32
}

type chunkEntry struct {
	key   chunkKey
	bases string
}

// A CachedReference is a process-wide, memory-bounded LRU cache of
// reference slices in front of an indexed FASTA file. It is safe for
// concurrent use.
type CachedReference struct {
	mutex    sync.Mutex
	file     *File
	capacity int64
	used     int64
	lru      *list.List
	chunks   map[chunkKey]*list.Element
}

// NewCachedReference creates a reference cache bounded by the given
// capacity in megabytes.
func NewCachedReference(file *File, capacityMB int) *CachedReference {
	return &CachedReference{
		file:     file,
		capacity: int64(capacityMB) << 20,
		lru:      list.New(),
		chunks:   make(map[chunkKey]*list.Element),
	}
}

// Contigs returns the contigs of the reference in file order.
func (ref *CachedReference) Contigs() []string {
	return ref.file.Contigs()
}

// ContigLength returns the length of a contig, or -1 if the contig is
// unknown.
func (ref *CachedReference) ContigLength(contig string) int32 {
	return ref.file.ContigLength(contig)
}

func (ref *CachedReference) chunk(contig string, index int32) string {
	key := chunkKey{contig, index}
	ref.mutex.Lock()
	if element, ok := ref.chunks[key]; ok {
		ref.lru.MoveToFront(element)
		bases := element.Value.(*chunkEntry).bases
		ref.mutex.Unlock()
		return bases
	}
	ref.mutex.Unlock()

	begin := index * chunkSize
	end := begin + chunkSize
	if length := ref.file.ContigLength(contig); end > length {
		end = length
	}
	bases := ref.file.Slice(genome.Region{Contig: contig, Begin: begin, End: end})

	ref.mutex.Lock()
	if _, ok := ref.chunks[key]; !ok {
		ref.chunks[key] = ref.lru.PushFront(&chunkEntry{key, bases})
		ref.used += int64(len(bases))
		for ref.used > ref.capacity && ref.lru.Len() > 1 {
			oldest := ref.lru.Back()
			entry := oldest.Value.(*chunkEntry)
			ref.lru.Remove(oldest)
			delete(ref.chunks, entry.key)
			ref.used -= int64(len(entry.bases))
		}
	}
	ref.mutex.Unlock()
	return bases
}

// Slice returns the bases of the given region from the cache, reading
// through to the FASTA file on a miss.
func (ref *CachedReference) Slice(region genome.Region) string {
	if region.IsEmpty() {
		return ""
	}
	firstChunk := region.Begin / chunkSize
	lastChunk := (region.End - 1) / chunkSize
	if firstChunk == lastChunk {
		bases := ref.chunk(region.Contig, firstChunk)
		offset := region.Begin - firstChunk*chunkSize
		return bases[offset : offset+region.Size()]
	}
	result := make([]byte, 0, region.Size())
	for index := firstChunk; index <= lastChunk; index++ {
		bases := ref.chunk(region.Contig, index)
		begin := int32(0)
		if index == firstChunk {
			begin = region.Begin - index*chunkSize
		}
		end := int32(len(bases))
		if index == lastChunk {
			end = region.End - index*chunkSize
		}
		result = append(result, bases[begin:end]...)
	}
	return string(result)
}
