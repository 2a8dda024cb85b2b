package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.Ingested(OutcomeCreated)
	m.Ingested(OutcomeCreated)
	m.Ingested(OutcomeExists)
	m.Request("analyze", "", 20*time.Millisecond)
	m.Request("analyze", "INSUFFICIENT_EVIDENCE", time.Millisecond)
	m.BackendCall("openai", errors.New("boom"), time.Second)
	m.CorpusDocuments(42)

	text := scrape(t, m)
	assert.Contains(t, text, `tactimerge_ingest_documents_total{outcome="created"} 2`)
	assert.Contains(t, text, `tactimerge_ingest_documents_total{outcome="exists"} 1`)
	assert.Contains(t, text, `tactimerge_api_requests_total{code="OK",operation="analyze"} 1`)
	assert.Contains(t, text, `tactimerge_api_requests_total{code="INSUFFICIENT_EVIDENCE",operation="analyze"} 1`)
	assert.Contains(t, text, `tactimerge_backend_calls_total{backend="openai",status="error"} 1`)
	assert.Contains(t, text, `tactimerge_corpus_documents 42`)
}

func TestHandlerExposesRuntimeMetrics(t *testing.T) {
	m := New()
	m.Evidence("predict", 7)

	text := scrape(t, m)
	assert.Contains(t, text, "tactimerge_retrieval_evidence_items_bucket")
	assert.Contains(t, text, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ingested(OutcomeCreated)
		m.Request("predict", "", time.Second)
		m.BackendCall("ollama", nil, time.Second)
		m.Evidence("analyze", 3)
		m.CorpusDocuments(1)
	})
	assert.Nil(t, m.Registry())
}
