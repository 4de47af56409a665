package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.TradesDuplicate)
	RecordTrade(true)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.TradesDuplicate))

	RecordFill("opened", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(DefaultMetrics.OpenPositions))

	ack := DefaultMetrics.FillMessages.WithLabelValues("ack")
	before = testutil.ToFloat64(ack)
	RecordFillMessage("ack")
	assert.Equal(t, before+1, testutil.ToFloat64(ack))

	SetFeedPaused(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(DefaultMetrics.FeedPaused))
	SetFeedPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(DefaultMetrics.FeedPaused))
}

func TestHandler(t *testing.T) {
	RecordHTTPRequest("/health", "200")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "activity_engine_http_requests_total")
}
