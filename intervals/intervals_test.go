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

package intervals

import "testing"

func equalIntervals(intervals1, intervals2 []Interval) bool {
	if len(intervals1) != len(intervals2) {
		return false
	}
	for i := range intervals1 {
		if intervals1[i] != intervals2[i] {
			return false
		}
	}
	return true
}

func TestFlatten(t *testing.T) {
	intervals := []Interval{{1, 5}, {3, 8}, {10, 12}, {11, 15}, {20, 25}}
	flattened := Flatten(intervals)
	expected := []Interval{{1, 8}, {10, 15}, {20, 25}}
	if !equalIntervals(flattened, expected) {
		t.Errorf("flattened to %v, expected %v", flattened, expected)
	}
	// already disjoint intervals are unchanged
	disjoint := []Interval{{1, 2}, {3, 4}}
	if !equalIntervals(Flatten(disjoint), disjoint) {
		t.Error("disjoint intervals must not change")
	}
}

func TestOverlap(t *testing.T) {
	intervals := []Interval{{1, 8}, {10, 15}, {20, 25}}
	if !Overlap(intervals, 7, 9) {
		t.Error("range overlapping an interval end")
	}
	if Overlap(intervals, 8, 10) {
		t.Error("range in a gap must not overlap")
	}
	if !Overlap(intervals, 0, 100) {
		t.Error("enclosing range must overlap")
	}
	if Overlap(intervals, 25, 30) {
		t.Error("range past the last interval must not overlap")
	}
}

func TestIntersect(t *testing.T) {
	intervals := []Interval{{1, 8}, {10, 15}, {20, 25}}
	result := Intersect(intervals, 5, 12)
	expected := []Interval{{1, 8}, {10, 15}}
	if !equalIntervals(result, expected) {
		t.Errorf("intersected to %v, expected %v", result, expected)
	}
	if len(Intersect(intervals, 8, 10)) != 0 {
		t.Error("gap range must intersect nothing")
	}
}

func TestSubtract(t *testing.T) {
	intervals := []Interval{{0, 100}}
	skips := []Interval{{10, 20}, {50, 60}}
	result := Subtract(intervals, skips)
	expected := []Interval{{0, 10}, {20, 50}, {60, 100}}
	if !equalIntervals(result, expected) {
		t.Errorf("subtracted to %v, expected %v", result, expected)
	}
	// skip covering the interval start
	result = Subtract([]Interval{{10, 30}}, []Interval{{0, 15}})
	expected = []Interval{{15, 30}}
	if !equalIntervals(result, expected) {
		t.Errorf("subtracted to %v, expected %v", result, expected)
	}
	// skip covering everything
	if len(Subtract([]Interval{{10, 30}}, []Interval{{0, 50}})) != 0 {
		t.Error("fully skipped interval must vanish")
	}
}

func TestCallingRegions(t *testing.T) {
	contigs := []string{"1", "2"}
	lengths := map[string]int32{"1": 1000, "2": 500}
	contigLength := func(contig string) int32 { return lengths[contig] }

	// no restriction: full contigs
	regions := CallingRegions(contigs, contigLength, nil, nil)
	if len(regions) != 2 {
		t.Fatalf("resolved %v regions", len(regions))
	}
	if regions[0].Contig != "1" || regions[0].Begin != 0 || regions[0].End != 1000 {
		t.Errorf("region %v", regions[0])
	}

	// restriction to one contig with skips
	requested := map[string][]Interval{"1": {{100, 300}}}
	skips := map[string][]Interval{"1": {{150, 200}}}
	regions = CallingRegions(contigs, contigLength, requested, skips)
	if len(regions) != 2 {
		t.Fatalf("resolved %v regions", len(regions))
	}
	if regions[0].Begin != 100 || regions[0].End != 150 {
		t.Errorf("region %v", regions[0])
	}
	if regions[1].Begin != 200 || regions[1].End != 300 {
		t.Errorf("region %v", regions[1])
	}
}
