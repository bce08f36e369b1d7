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
	"runtime"

	"github.com/exascience/pargo/pipeline"

	"github.com/gmagoon/octopus/internal"
)

// ComposeFilters takes a Header and a slice of Filter functions, and
// successively calls these functions to generate the corresponding
// ReadFilter predicates. It then returns a pargo pipeline.Receiver
// that applies these predicates on the slices of Alignment pointers
// it receives. ComposeFilters may return nil if all ReadFilters are
// nil.
func ComposeFilters(header *Header, hdrFilters []Filter) (receiver pipeline.Receiver) {
	var readFilters []ReadFilter
	for _, f := range hdrFilters {
		if f != nil {
			if readFilter := f(header); readFilter != nil {
				readFilters = append(readFilters, readFilter)
			}
		}
	}
	if len(readFilters) > 0 {
		receiver = func(_ int, data interface{}) interface{} {
			alns := data.([]*Alignment)
			i := 0
		alnLoop:
			for _, aln := range alns {
				for _, readFilter := range readFilters {
					if !readFilter(aln) {
						continue alnLoop
					}
				}
				alns[i] = aln
				i++
			}
			return alns[:i]
		}
	}
	return
}

// ComposeTransforms returns a pargo pipeline.Receiver that applies
// the quality-masking transforms in place.
func ComposeTransforms(transforms []ReadTransform) (receiver pipeline.Receiver) {
	if len(transforms) == 0 {
		return nil
	}
	return func(_ int, data interface{}) interface{} {
		alns := data.([]*Alignment)
		for _, aln := range alns {
			for _, transform := range transforms {
				transform(aln)
			}
		}
		return alns
	}
}

// A ReadPipeline composes the three read preparation stages in
// order: filter, transform, downsample.
type ReadPipeline struct {
	Filters        []Filter
	Transforms     []ReadTransform
	MaxCoverage    int
	TargetCoverage int
}

// Process runs the window's reads of one sample through the
// pipeline. Filtering and transforming run in parallel batches;
// downsampling is sequential because it is defined on the whole
// window.
func (rp *ReadPipeline) Process(header *Header, alns []*Alignment) []*Alignment {
	filter := ComposeFilters(header, rp.Filters)
	transform := ComposeTransforms(rp.Transforms)

	if len(alns) < 4096 || runtime.GOMAXPROCS(0) <= 1 {
		if filter != nil {
			alns = filter(0, alns).([]*Alignment)
		}
		if transform != nil {
			alns = transform(0, alns).([]*Alignment)
		}
	} else {
		var result []*Alignment
		var p pipeline.Pipeline
		p.Source(alns)
		if filter != nil {
			p.Add(pipeline.LimitedPar(0, pipeline.Receive(filter)))
		}
		if transform != nil {
			p.Add(pipeline.LimitedPar(0, pipeline.Receive(transform)))
		}
		p.Add(pipeline.StrictOrd(pipeline.Slice(&result)))
		internal.RunPipeline(&p)
		alns = result
	}

	return Downsample(alns, rp.MaxCoverage, rp.TargetCoverage)
}
