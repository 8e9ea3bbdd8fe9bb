package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpConfirm, time.Now(), nil)
	RecordOperation(OpConfirm, time.Now(), fmt.Errorf("wrapped: %w", interfaces.ErrAlreadyConfirmed))
	RecordOperation(OpConfirm, time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpConfirm, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpConfirm, "AlreadyConfirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues(OpConfirm, "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(OperationDuration))
}

func TestMetricsServer(t *testing.T) {
	srv, err := New("test", "127.0.0.1:0")
	require.NoError(t, err)

	RecordShareEncryption(nil)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "secret_registry_bundle_share_encryptions_total")
	assert.Contains(t, rr.Body.String(), "secret_registry_build_info")
}
