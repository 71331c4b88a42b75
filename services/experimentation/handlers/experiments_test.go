// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/fawkes/services/experimentation/datatypes"
	"github.com/AleutianAI/fawkes/services/experimentation/handlers"
	"github.com/AleutianAI/fawkes/services/experimentation/manager"
	"github.com/AleutianAI/fawkes/services/experimentation/observability"
	"github.com/AleutianAI/fawkes/services/experimentation/routes"
	"github.com/AleutianAI/fawkes/services/experimentation/store"
)

const adminToken = "test-admin-token"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	metrics := observability.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := manager.New(st, metrics, logger)
	h := handlers.New(m, metrics)

	router := gin.New()
	routes.SetupRoutes(router, h, metrics, adminToken)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func createBody() map[string]any {
	return map[string]any{
		"name":        "checkout button",
		"description": "green vs blue CTA",
		"hypothesis":  "green converts better",
		"variants": []map[string]any{
			{"name": "control", "allocation": 0.5},
			{"name": "treatment", "allocation": 0.5},
		},
		"metrics": []string{"conversion"},
	}
}

func createExperiment(t *testing.T, router *gin.Engine) datatypes.Experiment {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/experiments", createBody(), true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	return decode[datatypes.Experiment](t, w)
}

func startExperiment(t *testing.T, router *gin.Engine, id string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+id+"/start", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateExperiment(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		router := newTestRouter(t)
		exp := createExperiment(t, router)
		if exp.ID == "" || exp.Status != datatypes.StatusDraft {
			t.Errorf("unexpected experiment: %+v", exp)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		router := newTestRouter(t)
		body := createBody()
		delete(body, "hypothesis")
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments", body, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("bad allocation sum", func(t *testing.T) {
		router := newTestRouter(t)
		body := createBody()
		body["variants"] = []map[string]any{
			{"name": "control", "allocation": 0.5},
			{"name": "treatment", "allocation": 0.2},
		}
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments", body, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		router := newTestRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/experiments", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Authorization", "Bearer "+adminToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("requires admin token", func(t *testing.T) {
		router := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments", createBody(), false)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestListAndGet(t *testing.T) {
	router := newTestRouter(t)
	exp := createExperiment(t, router)

	t.Run("list", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/experiments", nil, false)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		list := decode[datatypes.ExperimentList](t, w)
		if list.Total != 1 || len(list.Experiments) != 1 {
			t.Errorf("list = %+v", list)
		}
	})

	t.Run("list with bad paging", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/experiments?skip=abc", nil, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/experiments/"+exp.ID, nil, false)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		got := decode[datatypes.Experiment](t, w)
		if got.ID != exp.ID {
			t.Errorf("id = %q", got.ID)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/experiments/unknown-id", nil, false)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestLifecycleEndpoints(t *testing.T) {
	router := newTestRouter(t)
	exp := createExperiment(t, router)

	t.Run("start", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/start", nil, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		got := decode[datatypes.Experiment](t, w)
		if got.Status != datatypes.StatusRunning {
			t.Errorf("status = %q", got.Status)
		}
	})

	t.Run("stop", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/stop", nil, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		got := decode[datatypes.Experiment](t, w)
		if got.Status != datatypes.StatusStopped {
			t.Errorf("status = %q", got.Status)
		}
	})

	t.Run("lifecycle requires admin", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/start", nil, false)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/api/v1/experiments/"+exp.ID, nil, true)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
		}
		w = doJSON(t, router, http.MethodGet, "/api/v1/experiments/"+exp.ID, nil, false)
		if w.Code != http.StatusNotFound {
			t.Errorf("status after delete = %d, want 404", w.Code)
		}
	})
}

func TestAssignEndpoint(t *testing.T) {
	t.Run("null assignment for draft experiment", func(t *testing.T) {
		router := newTestRouter(t)
		exp := createExperiment(t, router)

		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{"user_id": "u1"}, false)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
		}
		resp := decode[datatypes.AssignResponse](t, w)
		if resp.Assignment != nil {
			t.Errorf("assignment = %+v, want null", resp.Assignment)
		}
	})

	t.Run("assigns when running", func(t *testing.T) {
		router := newTestRouter(t)
		exp := createExperiment(t, router)
		startExperiment(t, router, exp.ID)

		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{"user_id": "u1"}, false)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
		}
		resp := decode[datatypes.AssignResponse](t, w)
		if resp.Assignment == nil {
			t.Fatal("assignment = null, want a variant at full traffic")
		}
		if resp.Assignment.UserID != "u1" || resp.Assignment.ExperimentID != exp.ID {
			t.Errorf("assignment = %+v", resp.Assignment)
		}

		// Same user, same answer.
		w2 := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{"user_id": "u1"}, false)
		resp2 := decode[datatypes.AssignResponse](t, w2)
		if resp2.Assignment == nil || resp2.Assignment.Variant != resp.Assignment.Variant {
			t.Errorf("assignment not stable: %+v vs %+v", resp.Assignment, resp2.Assignment)
		}
	})

	t.Run("unknown experiment is 404", func(t *testing.T) {
		router := newTestRouter(t)
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/unknown/assign",
			map[string]any{"user_id": "u1"}, false)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("missing user_id is 400", func(t *testing.T) {
		router := newTestRouter(t)
		exp := createExperiment(t, router)
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{}, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestTrackEndpoint(t *testing.T) {
	router := newTestRouter(t)
	exp := createExperiment(t, router)
	startExperiment(t, router, exp.ID)

	t.Run("204 with assignment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{"user_id": "u1"}, false)
		if w.Code != http.StatusOK {
			t.Fatal(w.Body.String())
		}

		w = doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/track",
			map[string]any{"user_id": "u1", "event_name": "conversion", "value": 2.5}, false)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})

	t.Run("204 without assignment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/track",
			map[string]any{"user_id": "stranger", "event_name": "conversion"}, false)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})

	t.Run("bad event name is 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/track",
			map[string]any{"user_id": "u1", "event_name": "Not A Metric!"}, false)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	exp := createExperiment(t, router)
	startExperiment(t, router, exp.ID)

	for i := 0; i < 30; i++ {
		user := fmt.Sprintf("user-%d", i)
		w := doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/assign",
			map[string]any{"user_id": user}, false)
		if w.Code != http.StatusOK {
			t.Fatal(w.Body.String())
		}
		if i%3 == 0 {
			w = doJSON(t, router, http.MethodPost, "/api/v1/experiments/"+exp.ID+"/track",
				map[string]any{"user_id": user, "event_name": "conversion"}, false)
			if w.Code != http.StatusNoContent {
				t.Fatal(w.Body.String())
			}
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/experiments/"+exp.ID+"/stats", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	result := decode[datatypes.ExperimentStats](t, w)
	if result.ExperimentID != exp.ID || len(result.Variants) != 2 {
		t.Errorf("result = %+v", result)
	}
	total := 0
	for _, v := range result.Variants {
		total += v.SampleSize
	}
	if total != 30 {
		t.Errorf("total samples = %d, want 30", total)
	}
	if result.Recommendation == "" {
		t.Error("empty recommendation")
	}

	t.Run("unknown experiment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/experiments/unknown/stats", nil, false)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/metrics", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/no/such/route", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("noroute status = %d", w.Code)
	}
}
