package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-cache/sai"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const testConfig = `
name: sai-cache-test
version: "0.0.1"
server:
  http:
    host: 127.0.0.1
    port: 8080
logger:
  level: error
cache:
  enabled: true
  type: memory
  config:
    max_size: 10
    default_ttl: 1m
    strategy: lru
metrics:
  enabled: true
  type: prometheus
  config:
    enable_go_metrics: false
database:
  type: memory
affiliate:
  enabled: true
  affiliate_id: aff-default
cron:
  enabled: true
  timezone: UTC
`

type testService struct {
	t       *testing.T
	service *Service
	client  *fasthttp.Client
	errCh   chan error
}

func startTestService(t *testing.T) *testService {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ln := fasthttputil.NewInmemoryListener()

	svc, err := NewService(context.Background(), path, WithListener(ln))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ts := &testService{
		t:       t,
		service: svc,
		client: &fasthttp.Client{
			Dial: func(string) (net.Conn, error) { return ln.Dial() },
		},
		errCh: make(chan error, 1),
	}

	go func() { ts.errCh <- svc.Start() }()

	deadline := time.Now().Add(5 * time.Second)
	for !svc.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("service did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(ts.stop)
	return ts
}

func (ts *testService) stop() {
	if !ts.service.IsRunning() {
		return
	}

	if err := ts.service.Stop(); err != nil {
		ts.t.Errorf("Stop: %v", err)
	}

	select {
	case err := <-ts.errCh:
		if err != nil {
			ts.t.Errorf("Start returned %v", err)
		}
	case <-time.After(10 * time.Second):
		ts.t.Error("service did not stop")
	}
}

func (ts *testService) do(method, path, body string) (int, []byte, *fasthttp.ResponseHeader) {
	ts.t.Helper()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://sai-cache.test" + path)
	req.Header.SetMethod(method)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}

	if err := ts.client.DoTimeout(req, resp, 5*time.Second); err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}

	header := &fasthttp.ResponseHeader{}
	resp.Header.CopyTo(header)

	return resp.StatusCode(), append([]byte(nil), resp.Body()...), header
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()

	var target T
	if err := utils.Unmarshal(body, &target); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return target
}

func TestCacheAPI(t *testing.T) {
	ts := startTestService(t)

	if status, body, _ := ts.do("PUT", "/cache/alpha", `{"value":{"n":1},"ttl":"1m"}`); status != fasthttp.StatusNoContent {
		t.Fatalf("PUT: %d %s", status, body)
	}

	status, body, header := ts.do("GET", "/cache/alpha", "")
	if status != fasthttp.StatusOK {
		t.Fatalf("GET: %d %s", status, body)
	}
	if len(header.Peek("X-Request-ID")) == 0 {
		t.Fatal("expected a request id header")
	}

	entry := decode[map[string]interface{}](t, body)
	if entry["key"] != "alpha" || entry["value"].(map[string]interface{})["n"] != float64(1) {
		t.Fatalf("unexpected entry %v", entry)
	}

	if status, _, _ := ts.do("GET", "/cache/missing", ""); status != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 for a missing key, got %d", status)
	}
	if status, _, _ := ts.do("HEAD", "/cache/alpha", ""); status != fasthttp.StatusOK {
		t.Fatalf("HEAD existing: %d", status)
	}
	if status, _, _ := ts.do("HEAD", "/cache/missing", ""); status != fasthttp.StatusNotFound {
		t.Fatalf("HEAD missing: %d", status)
	}

	badRequests := []string{`{"ttl":"1m"}`, `{"value":1,"ttl":"soon"}`, `not json`}
	for _, request := range badRequests {
		if status, _, _ := ts.do("PUT", "/cache/beta", request); status != fasthttp.StatusBadRequest {
			t.Fatalf("PUT %s: expected 400, got %d", request, status)
		}
	}

	status, body, _ = ts.do("GET", "/cache/stats", "")
	if status != fasthttp.StatusOK {
		t.Fatalf("stats: %d", status)
	}
	stats := decode[types.CacheStats](t, body)
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 || stats.Type != types.CacheTypeMemory {
		t.Fatalf("unexpected stats %+v", stats)
	}

	_, body, _ = ts.do("GET", "/cache", "")
	if keys := decode[map[string][]string](t, body)["keys"]; len(keys) != 1 || keys[0] != "alpha" {
		t.Fatalf("unexpected keys %v", keys)
	}

	_, body, _ = ts.do("DELETE", "/cache/alpha", "")
	if !decode[map[string]bool](t, body)["removed"] {
		t.Fatal("expected removed=true")
	}
	_, body, _ = ts.do("DELETE", "/cache/alpha", "")
	if decode[map[string]bool](t, body)["removed"] {
		t.Fatal("expected removed=false for a second delete")
	}

	_, _, _ = ts.do("PUT", "/cache/gamma", `{"value":"x"}`)
	if status, _, _ := ts.do("DELETE", "/cache", ""); status != fasthttp.StatusNoContent {
		t.Fatalf("clear: %d", status)
	}
	_, body, _ = ts.do("GET", "/cache/stats", "")
	if stats := decode[types.CacheStats](t, body); stats.Size != 0 || stats.Hits != 0 {
		t.Fatalf("expected cleared stats, got %+v", stats)
	}

	if status, _, _ := ts.do("POST", "/cache/alpha", `{}`); status != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
}

func TestCacheStatsPathShadowsStatsKey(t *testing.T) {
	ts := startTestService(t)

	if status, body, _ := ts.do("PUT", "/cache/stats", `{"value":"x"}`); status != fasthttp.StatusNoContent {
		t.Fatalf("PUT: %d %s", status, body)
	}

	status, body, _ := ts.do("GET", "/cache/stats", "")
	if status != fasthttp.StatusOK {
		t.Fatalf("GET: %d %s", status, body)
	}
	if stats := decode[types.CacheStats](t, body); stats.Size != 1 || stats.Type != types.CacheTypeMemory {
		t.Fatalf("expected stats, got %s", body)
	}

	if status, _, _ := ts.do("HEAD", "/cache/stats", ""); status != fasthttp.StatusOK {
		t.Fatalf("HEAD: %d", status)
	}

	_, body, _ = ts.do("DELETE", "/cache/stats", "")
	if !decode[map[string]bool](t, body)["removed"] {
		t.Fatal("expected the stats key to be removed")
	}
}

func TestTemplatesAndRewriteAPI(t *testing.T) {
	ts := startTestService(t)

	status, body, _ := ts.do("POST", "/templates", `{"name":"promo","affiliate_id":"aff-t","sub_id":"tg","body":"Deal: {{text}}"}`)
	if status != fasthttp.StatusCreated {
		t.Fatalf("create template: %d %s", status, body)
	}
	created := decode[map[string]interface{}](t, body)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("expected template id in %s", body)
	}

	if status, _, _ := ts.do("POST", "/templates", `{"body":"nameless"}`); status != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid template, got %d", status)
	}

	status, body, _ = ts.do("POST", "/affiliate/rewrite", `{"text":"buy https://shopee.vn/p/1 now","template_id":"`+id+`"}`)
	if status != fasthttp.StatusOK {
		t.Fatalf("rewrite: %d %s", status, body)
	}

	result := decode[map[string]interface{}](t, body)
	want := "Deal: buy https://shopee.vn/p/1?af_id=aff-t&sub_id=tg&utm_source=sai-cache now"
	if result["text"] != want {
		t.Fatalf("unexpected rewrite %q", result["text"])
	}

	status, body, _ = ts.do("POST", "/affiliate/rewrite", `{"text":"https://shopee.vn/p/2"}`)
	if status != fasthttp.StatusOK || !strings.Contains(string(body), "af_id=aff-default") {
		t.Fatalf("rewrite without template: %d %s", status, body)
	}

	if status, _, _ := ts.do("POST", "/affiliate/rewrite", `{"text":"x","template_id":"nope"}`); status != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 for an unknown template, got %d", status)
	}
	if status, _, _ := ts.do("POST", "/affiliate/rewrite", `{}`); status != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", status)
	}

	status, body, _ = ts.do("PUT", "/templates/"+id, `{"name":"promo-2","affiliate_id":"aff-t"}`)
	if status != fasthttp.StatusOK || decode[map[string]interface{}](t, body)["name"] != "promo-2" {
		t.Fatalf("update: %d %s", status, body)
	}

	status, body, _ = ts.do("GET", "/templates?limit=10", "")
	list := decode[map[string]interface{}](t, body)
	if status != fasthttp.StatusOK || list["total"] != float64(1) {
		t.Fatalf("list: %d %s", status, body)
	}

	if status, _, _ := ts.do("DELETE", "/templates/"+id, ""); status != fasthttp.StatusNoContent {
		t.Fatalf("delete: %d", status)
	}
	if status, _, _ := ts.do("GET", "/templates/"+id, ""); status != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := startTestService(t)

	status, body, _ := ts.do("GET", "/health", "")
	if status != fasthttp.StatusOK {
		t.Fatalf("health: %d %s", status, body)
	}
	report := decode[types.HealthReport](t, body)
	if _, ok := report.Checks["cache"]; !ok {
		t.Fatalf("expected a cache check, got %v", report.Checks)
	}
	if _, ok := report.Checks["database"]; !ok {
		t.Fatalf("expected a database check, got %v", report.Checks)
	}

	if status, _, _ := ts.do("GET", "/version", ""); status != fasthttp.StatusOK {
		t.Fatalf("version: %d", status)
	}

	_, _, _ = ts.do("GET", "/cache/anything", "")

	status, body, _ = ts.do("GET", "/metrics", "")
	if status != fasthttp.StatusOK || !strings.Contains(string(body), "sai_cache_cache_operations_total") {
		t.Fatalf("metrics: %d %s", status, body)
	}

	if sai.Cache() == nil {
		t.Fatal("expected the cache in the global container")
	}

	jobs := sai.Cron().Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected cache cron jobs, got %+v", jobs)
	}
}

func TestNewServiceErrors(t *testing.T) {
	if _, err := NewService(context.Background(), ""); !errors.Is(err, types.ErrConfigInvalidPath) {
		t.Fatalf("expected ErrConfigInvalidPath, got %v", err)
	}

	if _, err := NewService(context.Background(), filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}

	path := filepath.Join(t.TempDir(), "config.yml")
	_ = os.WriteFile(path, []byte("name: x\n"), 0o600)
	if _, err := NewService(context.Background(), path); !errors.Is(err, types.ErrConfigLoadFailed) {
		t.Fatalf("expected ErrConfigLoadFailed, got %v", err)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	_ = os.WriteFile(path, []byte(testConfig), 0o600)

	svc, err := NewService(context.Background(), path, WithListener(fasthttputil.NewInmemoryListener()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.Stop(); !errors.Is(err, types.ErrServiceIsNotRunning) {
		t.Fatalf("expected ErrServiceIsNotRunning, got %v", err)
	}
}
