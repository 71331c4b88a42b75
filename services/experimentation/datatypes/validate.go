// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// expValidate is the validator instance for experimentation datatypes.
// Managers call Validate directly so non-HTTP callers (CLIs, tests) get the
// same checks gin binding applies.
var expValidate *validator.Validate

// metricNamePattern keeps metric and event names safe to use as label
// values and storage keys.
var metricNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

func init() {
	expValidate = validator.New()
	// Read the same tags gin binding uses so both paths agree.
	expValidate.SetTagName("binding")
}

// Validate checks an ExperimentCreate beyond what struct tags express:
// variant set consistency and at least one well-formed metric name.
func (r *ExperimentCreate) Validate() error {
	if err := expValidate.Struct(r); err != nil {
		return err
	}
	if len(r.Metrics) == 0 {
		return ErrNoMetrics
	}
	for _, metric := range r.Metrics {
		if !metricNamePattern.MatchString(metric) {
			return fmt.Errorf("invalid metric name %q", metric)
		}
	}
	return ValidateVariants(r.Variants)
}

// Validate checks a TrackRequest.
func (r *TrackRequest) Validate() error {
	if err := expValidate.Struct(r); err != nil {
		return err
	}
	if !metricNamePattern.MatchString(r.EventName) {
		return fmt.Errorf("invalid event name %q", r.EventName)
	}
	return nil
}
