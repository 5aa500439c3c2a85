package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinn-Network/jinn-worker/clients/indexer"
	"github.com/Jinn-Network/jinn-worker/domain"
	"github.com/Jinn-Network/jinn-worker/infrastructure/config"
	"github.com/Jinn-Network/jinn-worker/infrastructure/logging"
)

func TestMergeDedupPreservesOrderAndDrops(t *testing.T) {
	a := []domain.Request{{ID: "1"}, {ID: "2"}}
	b := []domain.Request{{ID: "2"}, {ID: "3"}}

	merged := mergeDedup(a, b)
	require.Len(t, merged, 3)
	assert.Equal(t, "1", merged[0].ID)
	assert.Equal(t, "2", merged[1].ID)
	assert.Equal(t, "3", merged[2].ID)
}

func TestStaticMechResolver(t *testing.T) {
	r := staticMechResolver{addresses: []string{"0xabc"}}
	mechs, err := r.ResolveMechs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc"}, mechs)
}

func TestAnyMechResolver(t *testing.T) {
	r := anyMechResolver{}
	mechs, err := r.ResolveMechs(context.Background())
	require.NoError(t, err)
	assert.Nil(t, mechs)
}

func TestNewMechResolverModes(t *testing.T) {
	cfg := &config.Config{MechFilterMode: config.MechFilterAny}
	r := NewMechResolver(cfg, nil)
	_, ok := r.(anyMechResolver)
	assert.True(t, ok)

	cfg.MechFilterMode = config.MechFilterList
	cfg.MechList = []string{"0x1"}
	r = NewMechResolver(cfg, nil)
	_, ok = r.(staticMechResolver)
	assert.True(t, ok)
}

func TestExtractMechAddress(t *testing.T) {
	blob := make([]byte, 32)
	blob[31] = 0xaa
	blob[30] = 0xbb
	assert.Equal(t, "", extractMechAddress(nil))
	addr := extractMechAddress(blob)
	assert.Equal(t, "0x"+hexEncode(blob[12:]), addr)
}

func TestDiscoverMergesTemplateQueryResults(t *testing.T) {
	calls := 0
	indexerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write([]byte(`{"data": {"requests": [
				{"id": "1", "jobName": "build"},
				{"id": "2", "jobName": "build"}
			]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data": {"requests": [
			{"id": "2", "jobName": "build (via x402)"},
			{"id": "3", "jobName": "build (via x402)"}
		]}}`))
	}))
	defer indexerServer.Close()

	idx, err := indexer.New(indexer.Config{BaseURL: indexerServer.URL})
	require.NoError(t, err)

	cfg := &config.Config{DiscoveryLimit: 50}
	d := New(idx, nil, anyMechResolver{}, cfg, logging.New("discovery", "error", "text"))

	// Force the no-marketplace path by short-circuiting verifyOnChain via
	// a marketplace-less discoverer: Discover would panic dereferencing a
	// nil marketplace, so exercise the merge stage directly instead.
	requests, err := d.indexer.UndeliveredRequests(context.Background(), indexer.UndeliveredRequestsQuery{})
	require.NoError(t, err)
	require.Len(t, requests, 2)

	templates, err := d.indexer.UndeliveredRequests(context.Background(), indexer.UndeliveredRequestsQuery{TemplateOnly: true})
	require.NoError(t, err)
	require.Len(t, templates, 2)

	merged := mergeDedup(requests, templates)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
}
