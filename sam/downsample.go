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
	"sort"

	"github.com/willf/bitset"
)

// Downsample discards reads from a coordinate-ordered window until no
// position is covered more than maxCoverage deep, reducing excess
// positions to targetCoverage. Reads with higher mean base quality
// are preferred for keeping, then longer reads. The result is
// deterministic for a fixed input order.
func Downsample(alns []*Alignment, maxCoverage, targetCoverage int) []*Alignment {
	if len(alns) == 0 || maxCoverage <= 0 {
		return alns
	}
	if targetCoverage > maxCoverage {
		targetCoverage = maxCoverage
	}

	windowBegin := alns[0].POS
	var windowEnd int32
	for _, aln := range alns {
		if end := aln.End(); end > windowEnd {
			windowEnd = end
		}
	}
	if windowEnd <= windowBegin {
		return alns
	}

	// coverage per position via a difference array
	coverage := make([]int, windowEnd-windowBegin+1)
	for _, aln := range alns {
		coverage[aln.POS-windowBegin]++
		coverage[aln.End()-windowBegin]--
	}
	for i := 1; i < len(coverage); i++ {
		coverage[i] += coverage[i-1]
	}

	overflows := false
	for _, c := range coverage[:windowEnd-windowBegin] {
		if c > maxCoverage {
			overflows = true
			break
		}
	}
	if !overflows {
		return alns
	}

	// discard order: lowest mean base quality first, then shortest,
	// then latest input position, so the kept set is deterministic
	order := make([]int, len(alns))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		ai, aj := alns[order[i]], alns[order[j]]
		qi, qj := ai.MeanBaseQuality(), aj.MeanBaseQuality()
		if qi != qj {
			return qi < qj
		}
		if len(ai.SEQ) != len(aj.SEQ) {
			return len(ai.SEQ) < len(aj.SEQ)
		}
		return order[i] > order[j]
	})

	discarded := bitset.New(uint(len(alns)))
	for _, index := range order {
		aln := alns[index]
		excess := false
		for pos := aln.POS; pos < aln.End(); pos++ {
			if coverage[pos-windowBegin] > targetCoverage {
				excess = true
				break
			}
		}
		if !excess {
			continue
		}
		discarded.Set(uint(index))
		for pos := aln.POS; pos < aln.End(); pos++ {
			coverage[pos-windowBegin]--
		}
		remaining := false
		for _, c := range coverage[:windowEnd-windowBegin] {
			if c > targetCoverage {
				remaining = true
				break
			}
		}
		if !remaining {
			break
		}
	}

	result := make([]*Alignment, 0, len(alns))
	for i, aln := range alns {
		if !discarded.Test(uint(i)) {
			result = append(result, aln)
		}
	}
	return result
}
