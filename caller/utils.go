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

import "math"

func log10(x float64) float64 {
	return math.Log10(x)
}

var ln10 = math.Log(10)

// qualityToErrorProbability converts a phred quality to an error
// probability.
func qualityToErrorProbability(qual byte) float64 {
	return math.Pow(10, -float64(qual)/10)
}

var qualToErrorProb [256]float64

func init() {
	for i := range qualToErrorProb {
		qualToErrorProb[i] = qualityToErrorProbability(byte(i))
	}
}

const maxPhredPosterior = 3000.0

// probToPhred converts a posterior probability to a phred-scaled
// posterior, capped to keep the output finite.
func probToPhred(p float64) float64 {
	if p >= 1 {
		return maxPhredPosterior
	}
	if p <= 0 {
		return 0
	}
	phred := -10 * math.Log10(1-p)
	if phred > maxPhredPosterior {
		return maxPhredPosterior
	}
	return phred
}

// logSumExp computes log(Σ exp(x)) stably.
func logSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// log10SumExp computes log10(Σ 10^x) stably.
func log10SumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	var sum float64
	for _, x := range xs {
		sum += math.Pow(10, x-max)
	}
	return max + math.Log10(sum)
}

// normalizeLog10s converts log10 weights to probabilities in place
// and returns the log10 normalization constant.
func normalizeLog10s(logs []float64) float64 {
	norm := log10SumExp(logs)
	for i, x := range logs {
		logs[i] = math.Pow(10, x-norm)
	}
	return norm
}

// normalizeLogs converts log weights to probabilities in place and
// returns the log normalization constant.
func normalizeLogs(logs []float64) float64 {
	norm := logSumExp(logs)
	for i, x := range logs {
		logs[i] = math.Exp(x - norm)
	}
	return norm
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func medianByte(values []byte) byte {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]byte, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}
