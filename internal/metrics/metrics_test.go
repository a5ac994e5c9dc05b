// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEvaluation(t *testing.T) {
	before := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("transaction", "ok"))
	ObserveEvaluation("transaction", nil, 5*time.Millisecond, 3)
	after := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("transaction", "ok"))
	if after != before+1 {
		t.Errorf("ok counter = %g, want %g", after, before+1)
	}

	beforeErr := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("transaction", "error"))
	ObserveEvaluation("transaction", errors.New("boom"), time.Millisecond, 0)
	afterErr := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("transaction", "error"))
	if afterErr != beforeErr+1 {
		t.Errorf("error counter = %g, want %g", afterErr, beforeErr+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/layout", "200"))
	RecordAPIRequest("GET", "/layout", 200, 10*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/layout", "200"))
	if after != before+1 {
		t.Errorf("request counter = %g, want %g", after, before+1)
	}
}
