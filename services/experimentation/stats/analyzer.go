// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats is the statistical kernel for experiment analysis: per-variant
// summaries, a two-proportion z-test against the control, winner selection,
// and a human-readable recommendation.
//
// All functions are pure so the recommendation table is exhaustively testable.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
)

// Sample-size thresholds for the recommendation generator.
const (
	minSampleForSignal   = 100
	minSampleForStopping = 1000
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// VariantSummary computes descriptive statistics for a single variant.
//
// Description:
//
//	Conversion rate is conversions/sampleSize (0 when the variant has no
//	samples). When more than one raw value is present, the mean, sample
//	standard deviation (n-1), and a 95% Student-t confidence interval
//	around the mean are computed; otherwise the interval collapses to
//	(mean, mean).
//
// Inputs:
//
//	variant - Variant name.
//	sampleSize - Number of assigned users.
//	conversions - Distinct users with at least one tracked metric event.
//	values - Raw event values for the tracked metrics.
//
// Outputs:
//
//	datatypes.VariantStats - The summary record.
func VariantSummary(variant string, sampleSize, conversions int, values []float64) datatypes.VariantStats {
	rate := 0.0
	if sampleSize > 0 {
		rate = float64(conversions) / float64(sampleSize)
	}

	mean, stdDev := 0.0, 0.0
	ci := [2]float64{0, 0}
	if len(values) > 0 {
		for _, v := range values {
			mean += v
		}
		mean /= float64(len(values))

		if len(values) > 1 {
			ss := 0.0
			for _, v := range values {
				d := v - mean
				ss += d * d
			}
			stdDev = math.Sqrt(ss / float64(len(values)-1))

			sem := stdDev / math.Sqrt(float64(len(values)))
			t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(len(values) - 1)}
			crit := t.Quantile(0.975)
			ci = [2]float64{mean - crit*sem, mean + crit*sem}
		} else {
			ci = [2]float64{mean, mean}
		}
	}

	return datatypes.VariantStats{
		Variant:            variant,
		SampleSize:         sampleSize,
		Conversions:        conversions,
		ConversionRate:     rate,
		MeanValue:          mean,
		StdDev:             stdDev,
		ConfidenceInterval: ci,
	}
}

// TwoProportionTest runs a two-tailed two-proportion z-test.
//
// Description:
//
//	Compares the control's conversion proportion (x1/n1) against a
//	variant's (x2/n2) using the pooled standard error. Degenerate inputs
//	(either sample empty, or zero pooled variance) yield p=1, effect=0.
//
// Inputs:
//
//	n1, x1 - Control sample size and conversions.
//	n2, x2 - Variant sample size and conversions.
//
// Outputs:
//
//	pValue - Two-tailed p-value.
//	effect - Relative lift (p2-p1)/p1, 0 when the control rate is 0.
func TwoProportionTest(n1, x1, n2, x2 int) (pValue, effect float64) {
	if n1 == 0 || n2 == 0 {
		return 1.0, 0.0
	}

	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)

	pPool := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(pPool * (1 - pPool) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1.0, 0.0
	}

	z := (p2 - p1) / se
	pValue = 2 * (1 - stdNormal.CDF(math.Abs(z)))

	if p1 > 0 {
		effect = (p2 - p1) / p1
	}
	return pValue, effect
}

// Analyze composes the full statistical picture of an experiment.
//
// Description:
//
//	Summarizes every variant, tests each non-control variant against the
//	control, selects a winner (minimum p-value below alpha AND a rate
//	above the control's), and renders the recommendation string.
//
// Inputs:
//
//	exp - The experiment definition. Variants must be non-empty; the first
//	      variant is the control.
//	data - Per-variant rollups keyed by variant name. Missing variants are
//	       treated as empty.
//
// Outputs:
//
//	datatypes.ExperimentStats - The composed analysis.
func Analyze(exp *datatypes.Experiment, data map[string]datatypes.VariantSummary) datatypes.ExperimentStats {
	control := exp.Control()
	alpha := exp.SignificanceLevel

	variantStats := make([]datatypes.VariantStats, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		d := data[v.Name]
		variantStats = append(variantStats, VariantSummary(v.Name, d.SampleSize, d.Conversions, d.Values))
	}

	controlData := data[control]

	var winner *string
	minP := 1.0
	significant := false
	effectSize := 0.0

	for _, v := range exp.Variants[1:] {
		d := data[v.Name]
		p, effect := TwoProportionTest(controlData.SampleSize, controlData.Conversions, d.SampleSize, d.Conversions)

		if p < minP {
			minP = p

			if p < alpha {
				significant = true

				controlRate := float64(controlData.Conversions) / math.Max(float64(controlData.SampleSize), 1)
				variantRate := float64(d.Conversions) / math.Max(float64(d.SampleSize), 1)
				if variantRate > controlRate {
					name := v.Name
					winner = &name
					effectSize = effect
				}
			}
		}
	}

	recommendation := Recommendation(exp.Status, significant, winner, control, minP, variantStats)

	totalSamples, totalConversions := 0, 0
	for _, vs := range variantStats {
		totalSamples += vs.SampleSize
		totalConversions += vs.Conversions
	}
	avgPerVariant := 0
	if len(variantStats) > 0 {
		avgPerVariant = totalSamples / len(variantStats)
	}

	return datatypes.ExperimentStats{
		ExperimentID:            exp.ID,
		ExperimentName:          exp.Name,
		Status:                  exp.Status,
		Variants:                variantStats,
		ControlVariant:          control,
		Winner:                  winner,
		StatisticalSignificance: significant,
		PValue:                  minP,
		ConfidenceLevel:         1.0 - alpha,
		EffectSize:              effectSize,
		Recommendation:          recommendation,
		SampleSizePerVariant:    avgPerVariant,
		TotalConversions:        totalConversions,
	}
}

// Recommendation renders the action text for an analysis.
//
// Pure function of its inputs; the thresholds (100 samples to say anything,
// 1000 before advising a stop) match the service's operational guidance.
func Recommendation(status string, significant bool, winner *string, control string, pValue float64, variants []datatypes.VariantStats) string {
	minSample := 0
	if len(variants) > 0 {
		minSample = variants[0].SampleSize
		for _, v := range variants[1:] {
			if v.SampleSize < minSample {
				minSample = v.SampleSize
			}
		}
	}

	if status != datatypes.StatusRunning && status != datatypes.StatusStopped {
		return fmt.Sprintf("Experiment is in '%s' state. Start the experiment to begin collecting data.", status)
	}

	if minSample < minSampleForSignal {
		return fmt.Sprintf("Continue running. Need more data (minimum %d samples per variant, currently %d).",
			minSampleForSignal, minSample)
	}

	if !significant {
		if minSample < minSampleForStopping {
			return fmt.Sprintf("No significant difference yet (p=%.4f). Continue running to reach target sample size.", pValue)
		}
		return fmt.Sprintf("No significant difference detected (p=%.4f). Consider stopping and keeping %s.", pValue, control)
	}

	if winner != nil {
		if len(variants) > 1 && variants[0].ConversionRate > 0 {
			effectPct := (variants[1].ConversionRate/variants[0].ConversionRate - 1) * 100
			return fmt.Sprintf("Winner: %s shows %.1f%% improvement over %s (p=%.4f). Recommend rolling out %s to 100%% traffic.",
				*winner, effectPct, control, pValue, *winner)
		}
		return fmt.Sprintf("Winner: %s detected (p=%.4f). Recommend rolling out %s to 100%% traffic.",
			*winner, pValue, *winner)
	}

	return fmt.Sprintf("Significant difference found (p=%.4f) but no clear winner. Review variant performance and consider additional testing.", pValue)
}
