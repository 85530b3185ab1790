package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rempos/internal/config"
	"rempos/internal/tree"
	"rempos/internal/web"
)

const examplePayload = `{"accelerStruct":{"x":0.1,"y":0.2,"z":9.8},"userAccelerStruct":{"ux":0.0,"uy":0.0,"uz":0.1},"gyroStruct":{"pitch":10.0,"yaw":5.0,"roll":-2.0},"gpsStruct":{"latitude":47.0,"longitude":8.0},"pressStruct":{"pressure":1013.25},"timestruct":{"timeMark":123456.0}}`

func payloadAt(timeMark string) string {
	return strings.Replace(examplePayload, "123456.0", timeMark, 1)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig("", "", "")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Ingest.Host != "" || cfg.Ingest.Port != config.DefaultPort {
		t.Fatalf("bind=%q:%q want any:8080", cfg.Ingest.Host, cfg.Ingest.Port)
	}
	if cfg.Ingest.Version != version {
		t.Fatalf("version=%q want %q", cfg.Ingest.Version, version)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("ingest:\n  host: 10.0.0.1\n  port: '9000'\n  version: '3.1'\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := loadConfig(path, "", "")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Ingest.Host != "10.0.0.1" || cfg.Ingest.Port != "9000" || cfg.Ingest.Version != "3.1" {
		t.Fatalf("ingest=%+v", cfg.Ingest)
	}

	cfg, err = loadConfig(path, "127.0.0.1", "9100")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Ingest.Host != "127.0.0.1" || cfg.Ingest.Port != "9100" {
		t.Fatalf("ingest=%+v", cfg.Ingest)
	}

	if _, err := loadConfig(path, "", "nope"); err == nil {
		t.Fatalf("expected error for invalid -port")
	}
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	sink := web.NewLogBuffer(10)
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &out, sink)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}

	logger.Info().Msg("hidden")
	logger.Warn().Str("conn", "abc").Msg("shown")

	if strings.Contains(out.String(), "hidden") {
		t.Fatalf("info event written at warn level: %s", out.String())
	}
	var ev map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &ev); err != nil {
		t.Fatalf("json output: %v (%q)", err, out.String())
	}
	if ev["message"] != "shown" || ev["conn"] != "abc" {
		t.Fatalf("event=%v", ev)
	}
	if lines, _ := sink.Snapshot(0); len(lines) != 1 {
		t.Fatalf("sink lines=%q", lines)
	}
	if warnings, _ := sink.Counts(); warnings != 1 {
		t.Fatalf("warnings=%d", warnings)
	}

	if _, err := newLogger(config.LogConfig{Level: "chatty"}, &out, nil); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLogger_Console(t *testing.T) {
	var out bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "info", Format: "console"}, &out, nil)
	if err != nil {
		t.Fatalf("newLogger() error: %v", err)
	}
	logger.Info().Msg("hello console")
	if !strings.Contains(out.String(), "hello console") || strings.HasPrefix(out.String(), "{") {
		t.Fatalf("console output=%q", out.String())
	}
}

func TestSummarizeCapture(t *testing.T) {
	capture := strings.Join([]string{
		payloadAt("10.0"),
		payloadAt("11.0"),
		`{"accelerStruct":{"x":1,"y":2,"z":3}}`,
		payloadAt("10.5"),
		`[1, 2]`,
		payloadAt("12.0"),
	}, "\n")

	s := summarizeCapture(strings.NewReader(capture))
	if s.ParseErr != nil {
		t.Fatalf("ParseErr=%v", s.ParseErr)
	}
	if s.Messages != 6 || s.Decoded != 4 || s.DecodeErrors != 2 {
		t.Fatalf("summary=%+v", s)
	}
	if s.FirstTimecode != 10 || s.LastTimecode != 12 || s.Backwards != 1 {
		t.Fatalf("timecodes=%+v", s)
	}
	if s.FieldErrors["userAccelerStruct"] != 1 || s.FieldErrors["<root>"] != 1 {
		t.Fatalf("field errors=%v", s.FieldErrors)
	}
}

func TestSummarizeCapture_StopsAtParseError(t *testing.T) {
	s := summarizeCapture(strings.NewReader(payloadAt("1.0") + "\n{\"accelerStruct\":"))
	if s.Messages != 1 || s.Decoded != 1 {
		t.Fatalf("summary=%+v", s)
	}
	if !errors.Is(s.ParseErr, tree.ErrParse) {
		t.Fatalf("ParseErr=%v", s.ParseErr)
	}
	if s.ParseOffset <= int64(len(payloadAt("1.0"))) {
		t.Fatalf("ParseOffset=%d", s.ParseOffset)
	}
}

func TestPrintCaptureSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.capture")
	if err := os.WriteFile(path, []byte(payloadAt("1.0")+payloadAt("2.5")), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	var out bytes.Buffer
	if err := printCaptureSummary(&out, path); err != nil {
		t.Fatalf("printCaptureSummary() error: %v", err)
	}
	for _, want := range []string{"messages: 2\n", "decoded: 2\n", "timecode: 1 .. 2.5 (span 1.5)\n"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := printCaptureSummary(&out, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestService_EndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.Host = "127.0.0.1"
	cfg.Ingest.Port = "0"
	disabled := false
	cfg.Web.Enable = &disabled

	svc := newService(cfg, web.NewLogBuffer(10))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.run(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if a := svc.bridge.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("bridge never started")
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 3; i++ {
		if i == 2 {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(examplePayload)); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		if _, _, err := ws.ReadMessage(); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}

	ts := httptest.NewServer(svc.handler)
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/sample/orientation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var orient struct{ X, Y, Z float64 }
	if err := json.NewDecoder(resp.Body).Decode(&orient); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if orient.X != -10 || orient.Y != 5 || orient.Z != -2 {
		t.Fatalf("orientation=%+v", orient)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if svc.bridge.Running() {
		t.Fatalf("bridge still running after run returned")
	}
}

func TestService_BindFailureIsReturned(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.Host = "127.0.0.1"
	cfg.Ingest.Port = "0"
	disabled := false
	cfg.Web.Enable = &disabled

	first := newService(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.bridge.Start(ctx, bindFor(cfg)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.bridge.Stop()

	cfg.Ingest.Port = strings.TrimPrefix(first.bridge.Addr().String(), "127.0.0.1:")
	if err := newService(cfg, nil).run(ctx); err == nil {
		t.Fatalf("expected bind error for occupied port %s", cfg.Ingest.Port)
	}
}

func TestSimulate_FeedsBridge(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.Host = "127.0.0.1"
	cfg.Ingest.Port = "0"

	svc := newService(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.bridge.Start(ctx, bindFor(cfg)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.bridge.Stop()

	var out bytes.Buffer
	if err := simulate(ctx, &out, svc.bridge.Addr().String(), 100, 3); err != nil {
		t.Fatalf("simulate() error: %v", err)
	}
	if !strings.Contains(out.String(), "acked: 3\n") {
		t.Fatalf("output=%q", out.String())
	}
	if _, err := svc.bridge.Latest(); err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if st := svc.bridge.Status(); st.Ingest.SamplesDecoded != 3 {
		t.Fatalf("decoded=%d want 3", st.Ingest.SamplesDecoded)
	}
}
