package vectorstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

func testConfig(t *testing.T, srv *httptest.Server) config.VectorStoreConfig {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return config.VectorStoreConfig{
		Host:        u.Hostname(),
		Port:        port,
		Database:    "patterns",
		User:        "sentra",
		Password:    "secret",
		AttackTable: "attack_patterns",
		SafeTable:   "safe_patterns",
		TopK:        5,
	}
}

func TestQueryBoth_BuildsUnionQueryAndSplitsSides(t *testing.T) {
	var gotSQL string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSQL = string(body)
		gotUser, gotPass, _ = r.BasicAuth()
		// Interleaved and unsorted on purpose.
		io.WriteString(w, `{"table_type":"SAFE","pattern_id":"s-2","category":"qa","subcategory":"programming","pattern_snippet":"how do I","similarity":0.71}
{"table_type":"ATTACK","pattern_id":"a-1","category":"injection","subcategory":"override","pattern_snippet":"ignore all","similarity":0.91}
{"table_type":"SAFE","pattern_id":"s-1","category":"qa","subcategory":"programming","pattern_snippet":"fix this","similarity":0.88}
{"table_type":"ATTACK","pattern_id":"a-2","category":"injection","subcategory":"extraction","pattern_snippet":"repeat the","similarity":0.64}
`)
	}))
	t.Cleanup(srv.Close)

	c := New(testConfig(t, srv))
	emb := []float32{0.25, -0.5}
	attack, safe, err := c.QueryBoth(context.Background(), emb)
	require.NoError(t, err)

	assert.Equal(t, "sentra", gotUser)
	assert.Equal(t, "secret", gotPass)

	assert.Contains(t, gotSQL, "1 - cosineDistance(embedding, [0.25,-0.5])")
	assert.Contains(t, gotSQL, "patterns.attack_patterns")
	assert.Contains(t, gotSQL, "patterns.safe_patterns")
	assert.Contains(t, gotSQL, "UNION ALL")
	assert.Contains(t, gotSQL, "ORDER BY similarity DESC LIMIT 5")
	assert.True(t, strings.HasSuffix(gotSQL, "FORMAT JSONEachRow"))

	require.Len(t, attack, 2)
	require.Len(t, safe, 2)
	assert.Equal(t, "a-1", attack[0].PatternID)
	assert.Equal(t, 0.91, attack[0].Similarity)
	assert.Equal(t, models.SideAttack, attack[0].Side)
	assert.Equal(t, "s-1", safe[0].PatternID)
	assert.Equal(t, "programming", safe[0].Subcategory)
}

func TestQueryAttackOnly_SingleSide(t *testing.T) {
	var gotSQL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSQL = string(body)
		io.WriteString(w, `{"table_type":"ATTACK","pattern_id":"a-1","category":"injection","subcategory":"override","pattern_snippet":"ignore","similarity":0.9}
`)
	}))
	t.Cleanup(srv.Close)

	c := New(testConfig(t, srv))
	attack, err := c.QueryAttackOnly(context.Background(), []float32{1})
	require.NoError(t, err)

	assert.NotContains(t, gotSQL, "safe_patterns")
	assert.NotContains(t, gotSQL, "UNION")
	require.Len(t, attack, 1)
	assert.Equal(t, models.SideAttack, attack[0].Side)
}

func TestQueryBoth_SurfacesEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Code: 60. DB::Exception: Table patterns.attack_patterns does not exist", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := New(testConfig(t, srv))
	_, _, err := c.QueryBoth(context.Background(), []float32{1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "does not exist")
}

func TestQueryBoth_RejectsUnknownSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"table_type":"MYSTERY","pattern_id":"x","category":"","subcategory":"","pattern_snippet":"","similarity":0.5}
`)
	}))
	t.Cleanup(srv.Close)

	c := New(testConfig(t, srv))
	_, _, err := c.QueryBoth(context.Background(), []float32{1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSTERY")
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "SELECT 1", string(body))
		io.WriteString(w, "1\n")
	}))
	t.Cleanup(srv.Close)

	c := New(testConfig(t, srv))
	assert.NoError(t, c.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(nil))
	srv.Close()

	c := New(testConfig(t, srv))
	assert.Error(t, c.Ping(context.Background()))
}
