package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panocount/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(dir, "test.db")},
		Data:  config.DataConfig{Dir: dir, OutputDir: filepath.Join(dir, "out")},
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg = testConfig(t)

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close()

	counts, err := st.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func TestOpenStore_CreatesParentDir(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.DSN = filepath.Join(t.TempDir(), "nested", "deeper", "test.db")

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close()
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "oracle"

	_, err := openStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestApplyCrawlFlags(t *testing.T) {
	c := &config.Config{}
	c.Crawl.Workers = 8
	c.Crawl.QPS = 10
	c.Crawl.BatchSize = 100
	c.API.RadiusM = 30

	crawlWorkers, crawlQPS, crawlBatch, crawlRadius = 0, 0, 0, 0
	applyCrawlFlags(c)
	assert.Equal(t, 8, c.Crawl.Workers)
	assert.Equal(t, float64(10), c.Crawl.QPS)

	crawlWorkers, crawlQPS, crawlBatch, crawlRadius = 2, 5, 25, 15
	applyCrawlFlags(c)
	assert.Equal(t, 2, c.Crawl.Workers)
	assert.Equal(t, float64(5), c.Crawl.QPS)
	assert.Equal(t, 25, c.Crawl.BatchSize)
	assert.Equal(t, 15, c.API.RadiusM)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/panoramas?limit=25&offset=bad", nil)
	assert.Equal(t, 25, queryInt(req, "limit", 100))
	assert.Equal(t, 0, queryInt(req, "offset", 0))
	assert.Equal(t, 100, queryInt(req, "missing", 100))
}

func TestConfigInit_WritesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	configForce = false
	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))

	data, err := os.ReadFile("config.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "driver: sqlite")
	assert.Contains(t, string(data), "spacing_m: 10")

	// Refuses to clobber without --force.
	err = configInitCmd.RunE(configInitCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	configForce = true
	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))
}

func TestShutdownOnDone_DrainsInflightRequests(t *testing.T) {
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("ok")) //nolint:errcheck
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	ctx, cancel := context.WithCancel(context.Background())
	drained := make(chan struct{})
	go func() {
		shutdownOnDone(ctx, srv, 5*time.Second)
		close(drained)
	}()

	respC := make(chan *http.Response, 1)
	reqErr := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			reqErr <- err
			return
		}
		respC <- resp
	}()

	// Let the request reach the handler, then trigger shutdown while it is
	// still blocked. The drain must wait for it rather than return with the
	// already-cancelled trigger context.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-drained:
		t.Fatal("shutdown returned before the in-flight request finished")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case resp := <-respC:
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close() //nolint:errcheck
	case err := <-reqErr:
		t.Fatalf("in-flight request dropped: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request never completed")
	}

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("drain never finished")
	}
	require.ErrorIs(t, <-serveErr, http.ErrServerClosed)
}

func TestWriteSamplingSummary(t *testing.T) {
	cfg = testConfig(t)

	require.NoError(t, writeSamplingSummary(samplingSummary{
		PointsBuilt:    120,
		PointsInserted: 120,
		SpacingMeters:  10,
	}))

	data, err := os.ReadFile(filepath.Join(cfg.Data.OutputDir, "sampling_summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"points_built": 120`)
}
