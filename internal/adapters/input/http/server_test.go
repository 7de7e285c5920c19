package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrocore/internal/adapters/output/metrics"
	"hydrocore/internal/adapters/output/persistence"
	"hydrocore/internal/domain/model"
	"hydrocore/internal/domain/service"
	"hydrocore/internal/ports"
)

func f(v float64) *float64 { return &v }

type harness struct {
	url          string
	registry     *persistence.JSONDeviceRepository
	readings     *persistence.JSONLReadingStore
	readingsPath string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		registry:     persistence.NewJSONDeviceRepository(filepath.Join(dir, "devices.json")),
		readingsPath: filepath.Join(dir, "readings.jsonl"),
	}
	h.readings = persistence.NewJSONLReadingStore(h.readingsPath)

	noon := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ingest := service.NewIngestService(h.registry, h.readings,
		service.WithClock(func() time.Time { return noon }),
		service.WithLocation(time.UTC),
	)
	control := service.NewControlService(h.registry, h.readings, zerolog.Nop())

	ts := httptest.NewServer(NewServer(ingest, control, opts...).Handler())
	t.Cleanup(ts.Close)
	h.url = ts.URL
	return h
}

func (h *harness) register(t *testing.T, d *model.Device) {
	t.Helper()
	require.NoError(t, h.registry.Create(context.Background(), d))
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) poll(t *testing.T, body map[string]any) (int, map[string]any) {
	return do(t, http.MethodPost, h.url+"/api/sensors", body)
}

func command(t *testing.T, resp map[string]any) any {
	t.Helper()
	require.Contains(t, resp, "command")
	if resp["command"] == nil {
		return nil
	}
	return resp["command"].(map[string]any)["command"]
}

func TestServer_AutoPumpReliesOnReportedState(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A", MACAddress: "AA:BB", AutoMode: true, MoistureThreshold: f(30)})

	status, resp := h.poll(t, map[string]any{"mac_address": "AA:BB", "soil_moisture": 20, "light": 50})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "PUMP_ON", command(t, resp))

	// agent has not reported the pump running yet
	status, resp = h.poll(t, map[string]any{"mac_address": "AA:BB", "soil_moisture": 36, "light": 50})
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, command(t, resp))

	status, resp = h.poll(t, map[string]any{"mac_address": "AA:BB", "soil_moisture": 36, "light": 50, "pump_state": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PUMP_OFF", command(t, resp))

	settings := h.settings(t, "A")
	assert.Equal(t, true, settings["pump_state"])
}

func TestServer_LightFallbackWithoutSensor(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A", AutoMode: true})

	_, resp := h.poll(t, map[string]any{"device_name": "A", "soil_moisture": 40})
	assert.Equal(t, "LED_ON", command(t, resp))
}

func TestServer_ManualCommandDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A"})

	status, resp := do(t, http.MethodPost, h.url+"/api/devices/A/command", map[string]any{"command": "led_on"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["success"])

	_, resp = h.poll(t, map[string]any{"device_name": "A", "soil_moisture": 10})
	assert.Equal(t, "LED_ON", command(t, resp))

	_, resp = h.poll(t, map[string]any{"device_name": "A", "soil_moisture": 10})
	assert.Nil(t, command(t, resp))
}

func TestServer_ConcurrentPollsShareOneManualCommand(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A", MACAddress: "AA"})
	status, _ := do(t, http.MethodPost, h.url+"/api/devices/A/command", map[string]any{"command": "PUMP_ON"})
	require.Equal(t, http.StatusOK, status)

	const polls = 8
	results := make(chan any, polls)
	var wg sync.WaitGroup
	for i := 0; i < polls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, resp := h.poll(t, map[string]any{"mac_address": "AA", "soil_moisture": 50})
			results <- resp["command"]
		}()
	}
	wg.Wait()
	close(results)

	delivered := 0
	for c := range results {
		if c != nil {
			delivered++
			assert.Equal(t, "PUMP_ON", c.(map[string]any)["command"])
		}
	}
	assert.Equal(t, 1, delivered)
}

func TestServer_UnknownDevice(t *testing.T) {
	h := newHarness(t)

	status, resp := h.poll(t, map[string]any{"mac_address": "FF:FF", "soil_moisture": 10})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, map[string]any{"success": false, "error": "Device not found"}, resp)

	_, err := os.Stat(h.readingsPath)
	assert.True(t, os.IsNotExist(err), "no reading may be stored for an unknown device")
}

func TestServer_MissingIdentity(t *testing.T) {
	h := newHarness(t)

	status, resp := h.poll(t, map[string]any{"soil_moisture": 10})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "device identity required", resp["error"])
}

func TestServer_MalformedBody(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Post(h.url+"/api/sensors", "application/json", bytes.NewBufferString(`{"mac_address":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AbsentSensorsStoredAsNull(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A"})

	_, _ = h.poll(t, map[string]any{"device_name": "A", "temperature": 0, "light": nil})

	status, resp := do(t, http.MethodGet, h.url+"/api/devices/A/readings", nil)
	require.Equal(t, http.StatusOK, status)
	data := resp["data"].([]any)
	require.Len(t, data, 1)
	reading := data[0].(map[string]any)
	assert.Equal(t, 0.0, reading["temperature"])
	assert.Nil(t, reading["humidity"])
	assert.Nil(t, reading["moisture"])
	assert.Nil(t, reading["light"])
}

func TestServer_CBOR(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A", MACAddress: "AA", AutoMode: true})

	body, err := cbor.Marshal(map[string]any{"mac_address": "AA", "soil_moisture": 12.5, "light": 80.0})
	require.NoError(t, err)
	resp, err := http.Post(h.url+"/api/sensors", "application/cbor", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/cbor", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out struct {
		Success bool `cbor:"success"`
		Command *struct {
			Command string `cbor:"command"`
		} `cbor:"command"`
	}
	require.NoError(t, cbor.Unmarshal(raw, &out))
	assert.True(t, out.Success)
	require.NotNil(t, out.Command)
	assert.Equal(t, "PUMP_ON", out.Command.Command)
}

func TestServer_CBORNonFiniteStoredAsNull(t *testing.T) {
	h := newHarness(t)
	dev := &model.Device{Name: "A", MACAddress: "AA", AutoMode: true, PumpOn: true, LEDOn: true}
	h.register(t, dev)

	post := func(payload map[string]any) *http.Response {
		body, err := cbor.Marshal(payload)
		require.NoError(t, err)
		resp, err := http.Post(h.url+"/api/sensors", "application/cbor", bytes.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post(map[string]any{"mac_address": "AA", "temperature": math.NaN(), "soil_moisture": 32.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	readings, err := h.readings.Recent(context.Background(), dev.ID, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Nil(t, readings[0].Temperature)
	require.NotNil(t, readings[0].Moisture)
	assert.Equal(t, 32.5, *readings[0].Moisture)

	resp = post(map[string]any{"mac_address": "AA", "soil_moisture": math.Inf(1), "pump_state": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out struct {
		Success bool `cbor:"success"`
		Command *struct {
			Command string `cbor:"command"`
		} `cbor:"command"`
	}
	require.NoError(t, cbor.Unmarshal(raw, &out))
	assert.True(t, out.Success)
	assert.Nil(t, out.Command)

	readings, err = h.readings.Recent(context.Background(), dev.ID, 10)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Nil(t, readings[0].Moisture)
}

func (h *harness) settings(t *testing.T, name string) map[string]any {
	t.Helper()
	status, resp := do(t, http.MethodGet, h.url+"/api/devices/"+name+"/settings", nil)
	require.Equal(t, http.StatusOK, status)
	return resp["data"].(map[string]any)
}

func TestServer_Settings(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A", LightThreshold: f(15)})

	assert.Equal(t, map[string]any{
		"auto_mode": false, "moisture_threshold": 30.0, "light_threshold": 15.0, "pump_state": false, "led_state": false,
	}, h.settings(t, "A"))

	status, _ := do(t, http.MethodPatch, h.url+"/api/devices/A/settings", map[string]any{"auto_mode": true, "moisture_threshold": 42})
	require.Equal(t, http.StatusOK, status)
	settings := h.settings(t, "A")
	assert.Equal(t, true, settings["auto_mode"])
	assert.Equal(t, 42.0, settings["moisture_threshold"])
	assert.Equal(t, 15.0, settings["light_threshold"])

	status, resp := do(t, http.MethodPatch, h.url+"/api/devices/A/settings", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, resp["success"])

	status, resp = do(t, http.MethodGet, h.url+"/api/devices/B/settings", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "device not found", resp["error"])
}

func TestServer_CommandValidation(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A"})

	status, resp := do(t, http.MethodPost, h.url+"/api/devices/A/command", map[string]any{"command": "FAN_ON"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, resp["error"], "invalid command")

	status, _ = do(t, http.MethodPost, h.url+"/api/devices/ghost/command", map[string]any{"command": "PUMP_ON"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_DeviceOverviewAndHistory(t *testing.T) {
	h := newHarness(t)
	h.register(t, &model.Device{Name: "A"})
	h.register(t, &model.Device{Name: "B"})
	for _, m := range []float64{10, 20, 30} {
		_, _ = h.poll(t, map[string]any{"device_name": "A", "soil_moisture": m})
	}

	status, resp := do(t, http.MethodGet, h.url+"/api/devices", nil)
	require.Equal(t, http.StatusOK, status)
	devices := resp["data"].([]any)
	require.Len(t, devices, 2)
	latest := devices[0].(map[string]any)["latest_reading"].(map[string]any)
	assert.Equal(t, 30.0, latest["moisture"])
	assert.Nil(t, devices[1].(map[string]any)["latest_reading"])

	status, resp = do(t, http.MethodGet, h.url+"/api/devices/A/readings?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	history := resp["data"].([]any)
	require.Len(t, history, 2)
	assert.Equal(t, 30.0, history[0].(map[string]any)["moisture"])
	assert.Equal(t, 20.0, history[1].(map[string]any)["moisture"])

	status, _ = do(t, http.MethodGet, h.url+"/api/devices/A/readings?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

type failingIngest struct{ err error }

func (f failingIngest) Ingest(context.Context, model.Report) (ports.IngestResult, error) {
	return ports.IngestResult{}, f.err
}

func TestServer_IngestStorageErrorIsGeneric(t *testing.T) {
	srv := NewServer(failingIngest{err: errors.New("pq: connection refused")}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sensors", bytes.NewBufferString(`{"mac_address":"AA"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

func TestServer_HealthAndMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	h := newHarness(t, WithMetrics(rec.Handler(), rec.Instrument))

	status, resp := do(t, http.MethodGet, h.url+"/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", resp["status"])

	_, _ = h.poll(t, map[string]any{"device_name": "ghost"})

	r, err := http.Get(h.url + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hydrocore_http_request_duration_seconds_count{code="404",handler="ingest",method="post"} 1`)
}
