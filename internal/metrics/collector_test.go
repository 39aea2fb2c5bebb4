package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector("test")

	c.RecordRequest(OutcomeSuccess)
	c.RecordRequest(OutcomeSuccess)
	c.RecordRequest(OutcomeInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues(OutcomeInvalid)))
}

func TestCollector_RecordDownloadAndUpload(t *testing.T) {
	c := NewCollector("test")

	c.RecordDownload(2048, 150*time.Millisecond)
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.downloadBytes))

	c.RecordUpload(3*time.Second, nil)
	c.RecordUpload(time.Second, errors.New("boom"))
	assert.Equal(t, 2, testutil.CollectAndCount(c.uploadDuration))

	c.UploadStarted()
	c.UploadStarted()
	c.UploadFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploadsInFlight))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRequest(OutcomeSuccess)
		c.RecordDownload(1, time.Second)
		c.RecordUpload(time.Second, nil)
		c.RecordQueueWait(time.Second)
		c.UploadStarted()
		c.UploadFinished()
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("lensshot")
	c.RecordRequest(OutcomeSuccess)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `lensshot_process_image_requests_total{outcome="success"} 1`))
}
