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

package vcf

import (
	"bufio"
	"strings"
	"testing"

	"github.com/gmagoon/octopus/utils"
)

const testVcf = `##fileformat=VCFv4.3
##INFO=<ID=DP,Number=1,Type=Integer,Description="Combined read depth">
##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">
##FORMAT=<ID=GQ,Number=1,Type=Integer,Description="Genotype quality">
##FORMAT=<ID=VAF,Number=A,Type=Float,Description="Variant allele fraction">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	NA12878
1	1001	.	A	G	43.2	PASS	DP=34	GT:GQ:VAF	0/1:43:0.47
1	2001	.	ATTT	A	99	PASS	DP=28	GT:GQ	1/1:57
`

func TestParseHeader(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(testVcf))
	hdr, lines, err := ParseHeader(reader)
	if err != nil {
		t.Fatal(err)
	}
	if lines != 6 {
		t.Errorf("parsed %v header lines", lines)
	}
	if len(hdr.Infos) != 1 || *hdr.Infos[0].ID != "DP" {
		t.Error("INFO DP not parsed")
	}
	if len(hdr.Formats) != 3 {
		t.Errorf("parsed %v FORMAT lines", len(hdr.Formats))
	}
	if hdr.Formats[2].Number != NumberA {
		t.Error("VAF Number=A not parsed")
	}
	samples := hdr.Samples()
	if len(samples) != 1 || samples[0] != "NA12878" {
		t.Errorf("samples = %v", samples)
	}
}

func TestParseVariants(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(testVcf))
	hdr, _, err := ParseHeader(reader)
	if err != nil {
		t.Fatal(err)
	}
	vp, err := hdr.NewVariantParser()
	if err != nil {
		t.Fatal(err)
	}
	if vp.NSamples != 1 {
		t.Fatalf("NSamples = %v", vp.NSamples)
	}
	var sc StringScanner
	var variants []*Variant
	for {
		line, err := getLine(reader)
		if err != nil {
			t.Fatal(err)
		}
		if line == "" {
			break
		}
		sc.Reset(line)
		variant := sc.ParseVariant(vp)
		if sc.Err() != nil {
			t.Fatal(sc.Err())
		}
		variants = append(variants, variant)
	}
	if len(variants) != 2 {
		t.Fatalf("parsed %v variants", len(variants))
	}
	snv := variants[0]
	if snv.Chrom != "1" || snv.Pos != 1001 || snv.Ref != "A" || snv.Alt[0] != "G" {
		t.Error("SNV line not parsed correctly")
	}
	if !snv.Pass() {
		t.Error("PASS filter not recognized")
	}
	if dp, ok := snv.Info.Get(DP); !ok || dp != 34 {
		t.Errorf("DP = %v", dp)
	}
	data := snv.GenotypeData[0]
	if gt, _ := data.Get(GT); gt != "0/1" {
		t.Errorf("GT = %v", gt)
	}
	if gq, _ := data.Get(GQ); gq != 43 {
		t.Errorf("GQ = %v", gq)
	}
	vaf, _ := data.Get(VAF)
	if vafs := vaf.([]interface{}); vafs[0] != 0.47 {
		t.Errorf("VAF = %v", vafs[0])
	}
	deletion := variants[1]
	if deletion.End() != 2004 {
		t.Errorf("deletion End() = %v", deletion.End())
	}
}

func TestParseGT(t *testing.T) {
	gt, err := ParseGT("0/1")
	if err != nil {
		t.Fatal(err)
	}
	if gt.Phased || len(gt.GT) != 2 || gt.GT[0] != 0 || gt.GT[1] != 1 {
		t.Errorf("GT = %v", gt)
	}
	gt, err = ParseGT("1|0")
	if err != nil {
		t.Fatal(err)
	}
	if !gt.Phased {
		t.Error("phased GT not recognized")
	}
	gt, err = ParseGT("./.")
	if err != nil {
		t.Fatal(err)
	}
	if gt.GT[0] != -1 || gt.GT[1] != -1 {
		t.Error("missing GT entries must parse as -1")
	}
	if _, err = ParseGT("0/x"); err == nil {
		t.Error("invalid GT must be an error")
	}
}

func TestFormatVariant(t *testing.T) {
	variant := &Variant{
		Chrom:  "1",
		Pos:    1001,
		Ref:    "A",
		Alt:    []string{"G"},
		Qual:   43.5,
		Filter: []utils.Symbol{PASS},
		Info:   utils.SmallMap{{Key: DP, Value: 34}},
		GenotypeFormat: []utils.Symbol{GT, GQ},
		GenotypeData: []utils.SmallMap{
			{{Key: GT, Value: "0|1"}, {Key: GQ, Value: 43}},
		},
	}
	out, err := variant.Format(nil)
	if err != nil {
		t.Fatal(err)
	}
	expected := "1\t1001\t.\tA\tG\t43.5\tPASS\tDP=34\tGT:GQ\t0|1:43\n"
	if string(out) != expected {
		t.Errorf("formatted %q, expected %q", out, expected)
	}
}
