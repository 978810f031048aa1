package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/aclreg/internal/wire"
)

func TestObserveMessage(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveMessage(wire.ActionRegister, "ok", false, time.Millisecond)
	m.ObserveMessage(wire.ActionRegister, "ok", false, time.Millisecond)
	m.ObserveMessage(wire.ActionStateNotice, "Stale-Update", false, time.Millisecond)
	m.ObserveMessage("Made-Up", "ignored", false, time.Millisecond)
	m.ObserveMessage(wire.ActionRegister, "ok", true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues(wire.ActionRegister, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues(wire.ActionStateNotice, "Stale-Update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("other", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
}

func TestObserveNotice(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveNotice(wire.Notice{Action: wire.ActionRegisterNotice})
	m.ObserveNotice(wire.Notice{
		Action: wire.ActionACLPatch,
		Tags:   map[string]string{wire.TagDevice: wire.PatchDevice},
		Data:   `{"a":{"Controlled":[],"Owned":["e"]},"b":{"Controlled":["e"],"Owned":[]}}`,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoticesTotal.WithLabelValues(wire.ActionRegisterNotice)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ACLPatches))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PatchAddresses))
}

func TestObserveRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRegistry(3, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Entities))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Versions))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestPatchWidth(t *testing.T) {
	assert.Equal(t, 0, patchWidth(`{}`))
	assert.Equal(t, 2, patchWidth(`{"a":{"Owned":[]},"b":{"Owned":[]}}`))
	assert.Equal(t, 0, patchWidth(`not json`))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/acl/:address", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	for _, path := range []string{"/acl/a", "/acl/b", "/missing"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/acl/:address", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
