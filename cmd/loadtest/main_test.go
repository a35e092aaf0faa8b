package main

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

// fakeOrderAPI поднимает минимальный REST-бэкенд под сценарии нагрузки.
func fakeOrderAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(identityHeader) == "" || r.Header.Get(roleHeader) != "customer" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get(idempotencyHeader), "lt-create-") {
			t.Errorf("unexpected idempotency key: %q", r.Header.Get(idempotencyHeader))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-1","status":"pending"}`))
	})
	mux.HandleFunc("GET /api/v1/orders/order-1/tracking", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"order-1","current_stage":0}`))
	})
	mux.HandleFunc("POST /api/v1/orders/order-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get(idempotencyHeader), "lt-cancel-") {
			t.Errorf("unexpected cancel idempotency key: %q", r.Header.Get(idempotencyHeader))
		}
		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "create", input: "create", want: modeCreate},
		{name: "create-track", input: "create-track", want: modeCreateTrack},
		{name: "create-cancel", input: "create-cancel", want: modeCreateCancel},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-url=http://127.0.0.1:8080",
			"-mode=create-track",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-cancel-rate=10",
			"-restaurant=rest-x",
			"-dish=dish-x",
			"-unit-price=9.99",
			"-customer-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeCreateTrack {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.cancelRate != 10 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid cancel rate", args: []string{"-cancel-rate=101"}, wantErr: "cancel-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "empty url", args: []string{"-url="}, wantErr: "url is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, http.StatusOK)
	c.record("scenario", 20*time.Millisecond, http.StatusServiceUnavailable)
	c.record("CreateOrder", 15*time.Millisecond, http.StatusCreated)

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.SuccessScenarios != 1 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.ErrorRate != 0.5 {
		t.Fatalf("unexpected error rate: %f", r.ErrorRate)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}

	create, ok := r.Endpoints["CreateOrder"]
	if !ok {
		t.Fatalf("expected CreateOrder stats in report")
	}
	if create.Statuses["201"] != 1 {
		t.Fatalf("unexpected statuses: %+v", create.Statuses)
	}
	if create.LatencyMs.Max <= 0 {
		t.Fatalf("expected recorded latency, got %+v", create.LatencyMs)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	if got := failStatus(0); got != http.StatusServiceUnavailable {
		t.Fatalf("transport failure must map to 503, got %d", got)
	}
	if got := failStatus(http.StatusConflict); got != http.StatusConflict {
		t.Fatalf("http status must pass through, got %d", got)
	}

	if shouldCancelScenario(5, 0) {
		t.Fatalf("zero cancel rate must never cancel")
	}
	if !shouldCancelScenario(5, 100) {
		t.Fatalf("full cancel rate must always cancel")
	}
	if !shouldCancelScenario(3, 10) || shouldCancelScenario(42, 10) {
		t.Fatalf("cancel rate must follow the index window")
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.Min != 10 || summary.Max != 40 {
		t.Fatalf("unexpected latency bounds: %+v", summary)
	}
	if summary.P50 <= 0 || summary.P95 <= 0 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestRunScenario(t *testing.T) {
	server := fakeOrderAPI(t)
	client := server.Client()

	cfg := config{
		baseURL:      server.URL,
		mode:         modeCreateCancel,
		timeout:      time.Second,
		restaurantID: "rest-1",
		dishID:       "dish-1",
		unitPrice:    "12.50",
		customerTag:  "load",
	}

	c := newCollector()
	if err := runScenario(client, cfg, 1, "run-1", c); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	r := c.buildReport(time.Now(), time.Second)
	for _, endpoint := range []string{"CreateOrder", "TrackOrder", "CancelOrder"} {
		stats, ok := r.Endpoints[endpoint]
		if !ok || stats.Calls != 1 || stats.Failed != 0 {
			t.Fatalf("unexpected %s stats: %+v", endpoint, stats)
		}
	}
	if r.FailedScenarios != 0 {
		t.Fatalf("expected clean scenario, got %+v", r)
	}
}

func TestRunScenario_BackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := config{
		baseURL:      server.URL,
		mode:         modeCreate,
		timeout:      time.Second,
		restaurantID: "rest-1",
		dishID:       "dish-1",
		unitPrice:    "12.50",
		customerTag:  "load",
	}

	c := newCollector()
	if err := runScenario(server.Client(), cfg, 1, "run-1", c); err == nil {
		t.Fatalf("expected scenario error on 503 backend")
	}

	r := c.buildReport(time.Now(), time.Second)
	if r.FailedScenarios != 1 {
		t.Fatalf("expected failed scenario, got %+v", r)
	}
	if r.Endpoints["scenario"].Statuses["503"] != 1 {
		t.Fatalf("expected scenario to carry backend status, got %+v", r.Endpoints["scenario"].Statuses)
	}
}

func TestRunScenario_EmptyOrderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	cfg := config{
		baseURL:      server.URL,
		mode:         modeCreate,
		timeout:      time.Second,
		restaurantID: "rest-1",
		dishID:       "dish-1",
		unitPrice:    "12.50",
		customerTag:  "load",
	}

	err := runScenario(server.Client(), cfg, 1, "run-1", newCollector())
	if err == nil || !strings.Contains(err.Error(), "empty order id") {
		t.Fatalf("expected empty id error, got %v", err)
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Endpoints: map[string]endpointReport{
			"scenario":    {Calls: 2, Success: 2},
			"CreateOrder": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeCreate, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "CreateOrder") {
		t.Fatalf("expected endpoint section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	server := fakeOrderAPI(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-url=" + server.URL,
		"-mode=create",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
