// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assignment implements deterministic variant assignment for A/B
// experiments.
//
// Users are partitioned by hashing "{experimentID}:{userID}" into 10,000
// buckets. The bucket count gives 0.01% allocation granularity and keeps the
// partition stable across processes and languages. Traffic gating uses a
// separate hash namespace ("{experimentID}:traffic:{userID}") so that ramping
// traffic_allocation up or down never re-shuffles the variant a user lands on
// once they are inside the slice.
package assignment

import (
	"crypto/sha256"
	"math/big"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
)

// hashBuckets is the size of the user partition space.
const hashBuckets = 10_000

// Hash01 maps a key to a stable value in [0, 1).
//
// Description:
//
//	Computes SHA-256 of the UTF-8 bytes of key, interprets the full digest
//	as an unsigned integer, and reduces it modulo 10,000. SHA-256 is used
//	instead of a faster non-cryptographic hash so the partition is
//	well-mixed and reproducible from any client.
//
// Inputs:
//
//	key - Arbitrary string, typically "{experimentID}:{userID}".
//
// Outputs:
//
//	float64 - Value in [0, 1) with 1/10000 granularity.
func Hash01(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	n := new(big.Int).SetBytes(sum[:])
	bucket := new(big.Int).Mod(n, big.NewInt(hashBuckets)).Int64()
	return float64(bucket) / float64(hashBuckets)
}

// SelectVariant deterministically picks a variant for a user.
//
// Description:
//
//	Hashes "{experimentID}:{userID}" and walks the variants in order,
//	accumulating allocation weights. The first variant whose cumulative
//	weight covers the hash wins. Floating-point residue can leave the hash
//	just above the final cumulative sum; the last variant absorbs it.
//
// Inputs:
//
//	experimentID - Experiment identifier.
//	userID - User identifier.
//	variants - Ordered variant list. Must be non-empty.
//
// Outputs:
//
//	string - Name of the selected variant.
func SelectVariant(experimentID, userID string, variants []datatypes.Variant) string {
	h := Hash01(experimentID + ":" + userID)

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Allocation
		if h <= cumulative {
			return v.Name
		}
	}
	return variants[len(variants)-1].Name
}

// InTrafficSlice reports whether a user participates in the experiment at the
// given traffic allocation.
//
// The traffic hash uses its own ":traffic:" namespace so that changing
// trafficAllocation never changes which variant an in-slice user receives.
func InTrafficSlice(experimentID, userID string, trafficAllocation float64) bool {
	return Hash01(experimentID+":traffic:"+userID) <= trafficAllocation
}
