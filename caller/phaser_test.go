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

package caller

import (
	"testing"

	"github.com/gmagoon/octopus/genome"
)

func TestReadVote(t *testing.T) {
	refSeq := repeatedReference(80)
	v1 := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 10, End: 11},
		Ref:    string(refSeq[10]),
		Alt:    "T",
	}
	v2 := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 50, End: 51},
		Ref:    string(refSeq[50]),
		Alt:    "T",
	}

	cis := snvRead("chr1", 0, 70, refSeq, map[int32]byte{10: 'T', 50: 'T'})
	if vote := readVote(cis, v1, v2); vote != 1 {
		t.Errorf("expected a cis vote from a double-alternate read, got %v", vote)
	}
	refRead := snvRead("chr1", 0, 70, refSeq, nil)
	if vote := readVote(refRead, v1, v2); vote != 1 {
		t.Errorf("expected a cis vote from a double-reference read, got %v", vote)
	}
	trans := snvRead("chr1", 0, 70, refSeq, map[int32]byte{10: 'T'})
	if vote := readVote(trans, v1, v2); vote != -1 {
		t.Errorf("expected a trans vote, got %v", vote)
	}
	short := snvRead("chr1", 0, 30, refSeq, map[int32]byte{10: 'T'})
	if vote := readVote(short, v1, v2); vote != 0 {
		t.Errorf("expected no vote from a non-spanning read, got %v", vote)
	}
	del := genome.Variant{
		Region: genome.Region{Contig: "chr1", Begin: 50, End: 53},
		Ref:    refSeq[50:53],
		Alt:    "",
	}
	if vote := readVote(cis, v1, del); vote != 0 {
		t.Errorf("expected no vote on an indel site, got %v", vote)
	}
}

func TestIsHeterozygous(t *testing.T) {
	cases := []struct {
		g    *GenotypeCall
		want bool
	}{
		{nil, false},
		{&GenotypeCall{Alleles: []int{0, 0}}, false},
		{&GenotypeCall{Alleles: []int{1, 1}}, false},
		{&GenotypeCall{Alleles: []int{0, 1}}, true},
		{&GenotypeCall{Alleles: []int{1}}, false},
	}
	for _, c := range cases {
		if got := isHeterozygous(c.g); got != c.want {
			t.Errorf("expected %v for %v, got %v", c.want, c.g, got)
		}
	}
}
