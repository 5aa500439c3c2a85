package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	assert.NotNil(t, m.CycleDuration)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordCycle(t *testing.T) {
	m := New(prometheus.NewRegistry())
	assert.NotPanics(t, func() {
		m.RecordCycle("ran", 2*time.Second)
		m.RecordCycle("idle", 0)
	})
}

func TestGlobalWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = Global()
	})
}
