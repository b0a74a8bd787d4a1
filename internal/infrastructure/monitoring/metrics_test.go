package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBootstrap("session", OutcomeOK)
	m.RecordBootstrap("session", OutcomeOK)
	m.RecordBootstrap("domain", OutcomeUnavailable)
	m.RecordDeath("bootstrap")
	m.IncRecoveries()
	m.RecordConnectionChange(KindSwitch)
	m.RecordPushRejected("2")
	m.IncLocators()
	m.RecordBrokerPush("connection_changed", OutcomeError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BootstrapTotal.WithLabelValues("session", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BootstrapTotal.WithLabelValues("domain", OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeathsTotal.WithLabelValues("bootstrap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecoveriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionChanges.WithLabelValues(KindSwitch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushRejected.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocatorInstances))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BrokerPushes.WithLabelValues("connection_changed", OutcomeError)))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.Bootstraps)
	assert.Equal(t, int64(1), snap.BootstrapFailures)
	assert.Equal(t, int64(1), snap.Deaths)
	assert.Equal(t, int64(1), snap.Recoveries)
	assert.Equal(t, int64(1), snap.ConnectionChanges)
	assert.Equal(t, int64(1), snap.RejectedPushes)
	assert.Equal(t, int64(1), snap.Locators)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordBootstrap("domain", OutcomeOK)
		m.RecordDeath("domain")
		m.IncRecoveries()
		m.RecordConnectionChange(KindConnect)
		m.RecordPushRejected("1")
		m.IncLocators()
		m.RecordBinderCall("/binder.Binder/Transact", "OK", time.Millisecond)
		m.IncBinderDeaths()
		m.RecordBrokerPush("service_recovered", OutcomeOK)
		m.RecordHTTPRequest("GET", "/status", "200", time.Millisecond)
		NewTimer(m, "/binder.Binder/Transact").Stop("OK")
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}

func TestTimerRecordsBinderCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	timer := NewTimer(m, "/binder.Binder/Transact")
	timer.Stop("NotFound")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BinderCalls.WithLabelValues("/binder.Binder/Transact", "NotFound")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BinderDuration))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/status", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
