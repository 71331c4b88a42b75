// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assignment

import (
	"fmt"
	"math"
	"testing"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
)

func TestHash01(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("exp-1:user-%d", i)
			if Hash01(key) != Hash01(key) {
				t.Fatalf("hash of %q not stable", key)
			}
		}
	})

	t.Run("stays in unit interval", func(t *testing.T) {
		for i := 0; i < 10000; i++ {
			h := Hash01(fmt.Sprintf("user-%d", i))
			if h < 0 || h >= 1 {
				t.Fatalf("hash %f out of [0, 1)", h)
			}
		}
	})

	t.Run("different keys spread out", func(t *testing.T) {
		// Mean of uniform values should sit near 0.5.
		sum := 0.0
		const n = 10000
		for i := 0; i < n; i++ {
			sum += Hash01(fmt.Sprintf("spread-%d", i))
		}
		mean := sum / n
		if math.Abs(mean-0.5) > 0.02 {
			t.Errorf("hash mean %f too far from 0.5", mean)
		}
	})
}

func TestSelectVariant(t *testing.T) {
	variants := []datatypes.Variant{
		{Name: "control", Allocation: 0.5},
		{Name: "treatment", Allocation: 0.5},
	}

	t.Run("is deterministic per user", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			user := fmt.Sprintf("user-%d", i)
			first := SelectVariant("exp-1", user, variants)
			for j := 0; j < 5; j++ {
				if got := SelectVariant("exp-1", user, variants); got != first {
					t.Fatalf("user %s flapped between %s and %s", user, first, got)
				}
			}
		}
	})

	t.Run("differs across experiments for the same user", func(t *testing.T) {
		changed := false
		for i := 0; i < 50; i++ {
			user := fmt.Sprintf("user-%d", i)
			if SelectVariant("exp-a", user, variants) != SelectVariant("exp-b", user, variants) {
				changed = true
				break
			}
		}
		if !changed {
			t.Error("variant selection identical across experiments for 50 users")
		}
	})

	t.Run("respects allocation within tolerance", func(t *testing.T) {
		cases := []struct {
			name       string
			variants   []datatypes.Variant
			wantShares map[string]float64
		}{
			{
				name: "even split",
				variants: []datatypes.Variant{
					{Name: "control", Allocation: 0.5},
					{Name: "treatment", Allocation: 0.5},
				},
				wantShares: map[string]float64{"control": 0.5, "treatment": 0.5},
			},
			{
				name: "uneven split",
				variants: []datatypes.Variant{
					{Name: "control", Allocation: 0.8},
					{Name: "treatment", Allocation: 0.2},
				},
				wantShares: map[string]float64{"control": 0.8, "treatment": 0.2},
			},
			{
				name: "three way",
				variants: []datatypes.Variant{
					{Name: "a", Allocation: 0.3},
					{Name: "b", Allocation: 0.3},
					{Name: "c", Allocation: 0.4},
				},
				wantShares: map[string]float64{"a": 0.3, "b": 0.3, "c": 0.4},
			},
		}

		const n = 10000
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				counts := make(map[string]int)
				for i := 0; i < n; i++ {
					counts[SelectVariant("exp-alloc", fmt.Sprintf("user-%d", i), tc.variants)]++
				}
				for name, want := range tc.wantShares {
					got := float64(counts[name]) / n
					if math.Abs(got-want) > 0.02 {
						t.Errorf("variant %s share %.3f, want %.3f +/- 0.02", name, got, want)
					}
				}
			})
		}
	})

	t.Run("falls back to last variant at boundary", func(t *testing.T) {
		// Allocations that do not quite cover 1.0 must still assign.
		short := []datatypes.Variant{
			{Name: "a", Allocation: 0.5},
			{Name: "b", Allocation: 0.4999},
		}
		for i := 0; i < 1000; i++ {
			if got := SelectVariant("exp-short", fmt.Sprintf("user-%d", i), short); got == "" {
				t.Fatal("empty variant returned")
			}
		}
	})
}

func TestInTrafficSlice(t *testing.T) {
	t.Run("full allocation admits everyone", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			if !InTrafficSlice("exp-1", fmt.Sprintf("user-%d", i), 1.0) {
				t.Fatal("user excluded at traffic allocation 1.0")
			}
		}
	})

	t.Run("matches allocation rate", func(t *testing.T) {
		const n = 10000
		admitted := 0
		for i := 0; i < n; i++ {
			if InTrafficSlice("exp-traffic", fmt.Sprintf("user-%d", i), 0.3) {
				admitted++
			}
		}
		rate := float64(admitted) / n
		if math.Abs(rate-0.3) > 0.02 {
			t.Errorf("admission rate %.3f, want 0.30 +/- 0.02", rate)
		}
	})

	t.Run("independent of variant hash", func(t *testing.T) {
		// The traffic decision uses a namespaced key, so admitted users
		// must not skew toward one variant.
		variants := []datatypes.Variant{
			{Name: "control", Allocation: 0.5},
			{Name: "treatment", Allocation: 0.5},
		}
		const n = 10000
		counts := make(map[string]int)
		admitted := 0
		for i := 0; i < n; i++ {
			user := fmt.Sprintf("user-%d", i)
			if !InTrafficSlice("exp-ind", user, 0.5) {
				continue
			}
			admitted++
			counts[SelectVariant("exp-ind", user, variants)]++
		}
		if admitted == 0 {
			t.Fatal("no users admitted")
		}
		share := float64(counts["control"]) / float64(admitted)
		if math.Abs(share-0.5) > 0.03 {
			t.Errorf("control share among admitted %.3f, want 0.50 +/- 0.03", share)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			user := fmt.Sprintf("user-%d", i)
			first := InTrafficSlice("exp-det", user, 0.5)
			if InTrafficSlice("exp-det", user, 0.5) != first {
				t.Fatalf("traffic decision flapped for %s", user)
			}
		}
	})

	t.Run("ramping down never reshuffles in-slice variants", func(t *testing.T) {
		variants := []datatypes.Variant{
			{Name: "control", Allocation: 0.5},
			{Name: "treatment", Allocation: 0.5},
		}

		// Record every user's variant at full traffic, then ramp to 0.5.
		// Users still inside the slice must keep their variant.
		const n = 2000
		before := make(map[string]string, n)
		for i := 0; i < n; i++ {
			user := fmt.Sprintf("user-%d", i)
			if !InTrafficSlice("exp-ramp", user, 1.0) {
				t.Fatalf("user %s excluded at full traffic", user)
			}
			before[user] = SelectVariant("exp-ramp", user, variants)
		}

		kept := 0
		for user, want := range before {
			if !InTrafficSlice("exp-ramp", user, 0.5) {
				continue
			}
			kept++
			if got := SelectVariant("exp-ramp", user, variants); got != want {
				t.Fatalf("user %s moved from %s to %s after the ramp", user, want, got)
			}
		}
		if kept == 0 {
			t.Fatal("no users remained in the slice")
		}
	})
}
