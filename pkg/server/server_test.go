package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gcode-toolpath/pkg/config"
	"gcode-toolpath/pkg/gcode"
	"gcode-toolpath/pkg/log"
	"gcode-toolpath/pkg/metrics"
	"gcode-toolpath/pkg/toolpath"
)

const program = `G21
G28
G1 Z0.2 F3000
G1 X10 Y0 E1
G1 X10 Y10 E2
G2 X0 Y10 R5 E3
G1 Z0.4
G1 X0 Y0 E4
G1 X10 Y0 E5
`

func newTestServer() *Server {
	return New(Config{
		Addr:       ":0",
		Toolpath:   config.DefaultToolpathConfig(),
		ChunkLines: 2,
		Metrics:    metrics.NewToolpathMetrics(),
		Logger:     log.Discard(),
	})
}

// oneShot builds the reference job the server should reproduce.
func oneShot(text string) *toolpath.Job {
	cfg := config.DefaultToolpathConfig()
	j := toolpath.NewJob(
		toolpath.WithLogger(log.Discard()),
		toolpath.WithLayerTolerance(cfg.LayerTolerance),
		toolpath.WithWidth(cfg.Width),
		toolpath.WithHeight(cfg.Height),
	)
	j.Execute(gcode.NewParser().ParseChunk(text))
	j.Finish()
	return j
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJobLifecycleREST(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp := do(t, http.MethodPost, server.URL+"/api/jobs", strings.NewReader(program))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	result, ok := decode(t, resp.Body)["result"].(map[string]any)
	if !ok {
		t.Fatal("response missing 'result' field")
	}
	id, _ := result["id"].(string)
	if id == "" {
		t.Fatal("expected job id")
	}

	want := oneShot(program).Summary()
	summary := result["summary"].(map[string]any)
	if int(summary["paths"].(float64)) != want.Paths {
		t.Errorf("expected %d paths, got %v", want.Paths, summary["paths"])
	}
	if int(summary["layers"].(float64)) != 2 || summary["layered"] != true {
		t.Errorf("expected 2 layers, got %v", summary)
	}

	// Summary
	resp = do(t, http.MethodGet, server.URL+"/api/jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	info := decode(t, resp.Body)["result"].(map[string]any)
	if info["id"] != id || info["closed"] != true {
		t.Errorf("unexpected job info %v", info)
	}

	// Layers
	resp = do(t, http.MethodGet, server.URL+"/api/jobs/"+id+"/layers", nil)
	layers := decode(t, resp.Body)["result"].(map[string]any)["layers"].([]any)
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if z := layers[1].(map[string]any)["z"].(float64); z != 0.4 {
		t.Errorf("expected layer 1 at z 0.4, got %f", z)
	}

	// Mesh
	m, err := oneShot(program).Mesh(0, config.DefaultRadialSegments)
	if err != nil || m.Empty() {
		t.Fatalf("reference mesh: %v", err)
	}
	resp = do(t, http.MethodGet, server.URL+"/api/jobs/"+id+"/layers/0/mesh.stl", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "model/stl" {
		t.Errorf("unexpected content type %q", ct)
	}
	stl, _ := io.ReadAll(resp.Body)
	if len(stl) != 84+50*m.TriangleCount() {
		t.Errorf("expected %d STL bytes, got %d", 84+50*m.TriangleCount(), len(stl))
	}

	// Delete
	resp = do(t, http.MethodDelete, server.URL+"/api/jobs/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, server.URL+"/api/jobs/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
	errObj := decode(t, resp.Body)["error"].(map[string]any)
	if errObj["code"] != "SERVER_NOT_FOUND" {
		t.Errorf("unexpected error %v", errObj)
	}
}

func TestLayerMeshErrors(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	resp := do(t, http.MethodPost, server.URL+"/api/jobs", strings.NewReader(program))
	id := decode(t, resp.Body)["result"].(map[string]any)["id"].(string)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/jobs/" + id + "/layers/x/mesh.stl", http.StatusBadRequest},
		{"/api/jobs/" + id + "/layers/-1/mesh.stl", http.StatusBadRequest},
		{"/api/jobs/" + id + "/layers/9/mesh.stl", http.StatusNotFound},
		{"/api/jobs/nope/layers/0/mesh.stl", http.StatusNotFound},
		{"/api/jobs/nope/layers", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := do(t, http.MethodGet, server.URL+tt.path, nil)
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.status, resp.StatusCode)
		}
	}
}

func TestListJobs(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	for i := 0; i < 3; i++ {
		do(t, http.MethodPost, server.URL+"/api/jobs", strings.NewReader("G1 X1 E1\n"))
	}
	resp := do(t, http.MethodGet, server.URL+"/api/jobs", nil)
	jobs := decode(t, resp.Body)["result"].(map[string]any)["jobs"].([]any)
	if len(jobs) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(jobs))
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}

// rpcClient reads responses by id, counting notifications seen on the way.
type rpcClient struct {
	t             *testing.T
	conn          *websocket.Conn
	nextID        int
	notifications int
}

func dial(t *testing.T, url string) *rpcClient {
	t.Helper()
	wsURL := "ws" + url[4:] + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &rpcClient{t: t, conn: conn}
}

func (c *rpcClient) call(method string, params map[string]any) jsonRPCResponse {
	c.t.Helper()
	c.nextID++
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": c.nextID}
	if params != nil {
		req["params"] = params
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.t.Fatalf("failed to send message: %v", err)
	}
	for {
		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("failed to read message: %v", err)
		}
		var resp jsonRPCResponse
		var probe map[string]any
		json.Unmarshal(message, &probe)
		if probe["method"] == "notify_job_updated" {
			c.notifications++
			continue
		}
		if err := json.Unmarshal(message, &resp); err != nil {
			c.t.Fatalf("failed to decode response: %v", err)
		}
		if id, _ := resp.ID.(float64); int(id) == c.nextID {
			return resp
		}
	}
}

func TestWebSocketFeed(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	c := dial(t, server.URL)

	resp := c.call("job.create", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	id := resp.Result.(map[string]any)["id"].(string)

	// Split mid-line so the server has to hold back partial lines.
	for _, chunk := range []string{program[:17], program[17:40], program[40:]} {
		resp = c.call("job.feed", map[string]any{"id": id, "text": chunk})
		if resp.Error != nil {
			t.Fatalf("feed failed: %v", resp.Error)
		}
	}
	if pending := resp.Result.(map[string]any)["pending"].(float64); pending != 0 {
		t.Errorf("expected no pending bytes after trailing newline, got %v", pending)
	}

	resp = c.call("job.finish", map[string]any{"id": id})
	if resp.Error != nil {
		t.Fatalf("finish failed: %v", resp.Error)
	}
	if c.notifications < 3 {
		t.Errorf("expected a notification per feed, got %d", c.notifications)
	}

	resp = c.call("job.summary", map[string]any{"id": id})
	summary := resp.Result.(map[string]any)["summary"].(map[string]any)
	want := oneShot(program).Summary()
	if int(summary["paths"].(float64)) != want.Paths ||
		int(summary["extrusions"].(float64)) != want.Extrusions ||
		int(summary["layers"].(float64)) != want.Layers {
		t.Errorf("chunked summary %v differs from one-shot %+v", summary, want)
	}

	resp = c.call("job.layers", map[string]any{"id": id})
	if layers := resp.Result.(map[string]any)["layers"].([]any); len(layers) != want.Layers {
		t.Errorf("expected %d layers, got %d", want.Layers, len(layers))
	}

	// Feeding a finished job is a request error.
	resp = c.call("job.feed", map[string]any{"id": id, "text": "G1 X1\n"})
	if resp.Error == nil || resp.Error.Code != rpcServerError {
		t.Errorf("expected server error, got %+v", resp.Error)
	}
}

func TestWebSocketErrors(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	c := dial(t, server.URL)

	resp := c.call("printer.info", nil)
	if resp.Error == nil || resp.Error.Code != rpcMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}

	resp = c.call("job.summary", map[string]any{"id": "missing"})
	if resp.Error == nil || resp.Error.Code != rpcNotFound {
		t.Errorf("expected not found, got %+v", resp.Error)
	}

	resp = c.call("job.feed", map[string]any{"text": "G1 X1\n"})
	if resp.Error == nil || resp.Error.Code != rpcServerError {
		t.Errorf("expected missing id error, got %+v", resp.Error)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var perr jsonRPCResponse
	if err := c.conn.ReadJSON(&perr); err != nil {
		t.Fatal(err)
	}
	if perr.Error == nil || perr.Error.Code != rpcParseError {
		t.Errorf("expected parse error, got %+v", perr)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	do(t, http.MethodPost, server.URL+"/api/jobs", strings.NewReader(program))

	resp := do(t, http.MethodGet, server.URL+"/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	out := string(body)
	for _, want := range []string{
		`server_requests_total{method="POST /api/jobs"} 1`,
		`gcode_commands_total{kind="move"}`,
		`server_jobs_active 1`,
		`toolpath_layers{job=`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
