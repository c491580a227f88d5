package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster answers the handful of endpoints the client uses and records
// what it was sent.
type fakeCluster struct {
	mu       sync.Mutex
	puts     []string
	bulkIDs  []string
	rejectID string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/":
		fmt.Fprint(w, `{"cluster_name":"test","version":{"number":"8.13.0","build_flavor":"default"},"tagline":"You Know, for Search"}`)

	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/_doc/"):
		f.mu.Lock()
		f.puts = append(f.puts, r.URL.EscapedPath())
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)

	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.serveBulk(w, r)

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not found"}`)
	}
}

func (f *fakeCluster) recorded() (puts, bulkIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...), append([]string(nil), f.bulkIDs...)
}

func (f *fakeCluster) serveBulk(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var items []string
	failed := false
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for i := 0; scanner.Scan(); i++ {
		if i%2 == 1 {
			continue
		}
		var meta map[string]map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, _ := meta["index"]["_id"].(string)

		f.mu.Lock()
		f.bulkIDs = append(f.bulkIDs, id)
		reject := id != "" && id == f.rejectID
		f.mu.Unlock()

		if reject {
			failed = true
			items = append(items, fmt.Sprintf(`{"index":{"_index":"%s","_id":"%s","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad params"}}}`, DefaultIndex, id))
			continue
		}
		items = append(items, fmt.Sprintf(`{"index":{"_index":"%s","_id":"%s","status":201,"result":"created"}}`, DefaultIndex, id))
	}

	fmt.Fprintf(w, `{"took":1,"errors":%t,"items":[%s]}`, failed, strings.Join(items, ","))
}

func newTestClient(t *testing.T) (*Client, *fakeCluster) {
	t.Helper()
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := New(Config{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultIndex, client.Index())
	return client, cluster
}

func writeExport(t *testing.T, docs ...Document) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	require.NoError(t, WriteJSONLines(path, docs...))
	return path
}

func mustDocument(t *testing.T, run string, o config.Overrides) Document {
	t.Helper()
	doc, err := NewDocument(run, config.PatentDefaults().ApplyOverrides(o), time.Unix(0, 0))
	require.NoError(t, err)
	return doc
}

func TestIndexDocument(t *testing.T) {
	client, cluster := newTestClient(t)
	doc := mustDocument(t, "patent-lstm", config.Overrides{})

	require.NoError(t, client.IndexDocument(context.Background(), doc))

	puts, _ := cluster.recorded()
	require.Len(t, puts, 1)
	assert.Equal(t, "/"+DefaultIndex+"/_doc/patent-lstm-"+doc.Fingerprint[:12], puts[0])
}

func TestIndexDocumentRejectsPathRunName(t *testing.T) {
	client, cluster := newTestClient(t)
	doc := mustDocument(t, "patent", config.Overrides{})
	doc.Run = "exp/patent"

	err := client.IndexDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run name")
	puts, _ := cluster.recorded()
	assert.Empty(t, puts)
}

func TestIndexJSONLinesFile(t *testing.T) {
	client, cluster := newTestClient(t)
	a := mustDocument(t, "a", config.Overrides{})
	b := mustDocument(t, "b", config.Overrides{Epochs: 50})

	n, err := client.IndexJSONLinesFile(context.Background(), writeExport(t, a, b))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ids := cluster.recorded()
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)
}

func TestIndexJSONLinesFileMalformedLine(t *testing.T) {
	client, _ := newTestClient(t)
	path := writeExport(t, mustDocument(t, "a", config.Overrides{}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = client.IndexJSONLinesFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestIndexJSONLinesFileInvalidRunName(t *testing.T) {
	client, _ := newTestClient(t)
	doc := mustDocument(t, "a", config.Overrides{})
	doc.Run = "a/b"

	_, err := client.IndexJSONLinesFile(context.Background(), writeExport(t, doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1: invalid run name")
}

func TestIndexJSONLinesFileCountsFailures(t *testing.T) {
	client, cluster := newTestClient(t)
	a := mustDocument(t, "a", config.Overrides{})
	b := mustDocument(t, "b", config.Overrides{NZ: 16})
	cluster.mu.Lock()
	cluster.rejectID = b.ID()
	cluster.mu.Unlock()

	n, err := client.IndexJSONLinesFile(context.Background(), writeExport(t, a, b))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 documents failed to index")
	assert.Equal(t, 1, n)
}
