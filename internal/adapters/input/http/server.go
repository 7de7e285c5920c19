package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"hydrocore/internal/domain/model"
	"hydrocore/internal/domain/service"
	"hydrocore/internal/ports"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"

	maxBodyBytes = 64 << 10
)

type Server struct {
	ingest     ports.IngestPort
	control    ports.ControlPort
	metrics    http.Handler
	instrument func(name string, next http.Handler) http.Handler
	timeout    time.Duration
	log        zerolog.Logger
}

type Option func(*Server)

// WithMetrics exposes h on /metrics and wraps every route with instrument.
func WithMetrics(h http.Handler, instrument func(name string, next http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
		s.instrument = instrument
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

func NewServer(ingest ports.IngestPort, control ports.ControlPort, opts ...Option) *Server {
	s := &Server{
		ingest:  ingest,
		control: control,
		timeout: 5 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "ingest", "POST /api/sensors", s.handleSensors)
	s.route(mux, "devices", "GET /api/devices", s.handleListDevices)
	s.route(mux, "settings", "GET /api/devices/{name}/settings", s.handleGetSettings)
	s.route(mux, "settings", "PATCH /api/devices/{name}/settings", s.handleUpdateSettings)
	s.route(mux, "command", "POST /api/devices/{name}/command", s.handleCommand)
	s.route(mux, "readings", "GET /api/devices/{name}/readings", s.handleReadings)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, name, pattern string, h http.HandlerFunc) {
	var handler http.Handler = s.withTimeout(h)
	if s.instrument != nil {
		handler = s.instrument(name, handler)
	}
	mux.Handle(pattern, handler)
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.timeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Serve listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Ingestion

type sensorPayload struct {
	MACAddress  string   `json:"mac_address" cbor:"mac_address"`
	DeviceName  string   `json:"device_name" cbor:"device_name"`
	Temperature *float64 `json:"temperature" cbor:"temperature"`
	Humidity    *float64 `json:"humidity" cbor:"humidity"`
	Moisture    *float64 `json:"soil_moisture" cbor:"soil_moisture"`
	Light       *float64 `json:"light" cbor:"light"`
	PumpState   *bool    `json:"pump_state" cbor:"pump_state"`
	LEDState    *bool    `json:"led_state" cbor:"led_state"`
}

func (p sensorPayload) report() model.Report {
	return model.Report{
		MACAddress:  strings.TrimSpace(p.MACAddress),
		DeviceName:  strings.TrimSpace(p.DeviceName),
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		Moisture:    p.Moisture,
		Light:       p.Light,
		Actuators:   model.ActuatorState{PumpOn: p.PumpState, LEDOn: p.LEDState},
	}
}

type commandBody struct {
	Command model.Command `json:"command" cbor:"command"`
}

type ingestResponse struct {
	Success bool         `json:"success" cbor:"success"`
	Command *commandBody `json:"command" cbor:"command"`
}

type ingestError struct {
	Success bool   `json:"success" cbor:"success"`
	Error   string `json:"error" cbor:"error"`
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	useCBOR := isCBOR(r.Header.Get("Content-Type")) || strings.Contains(r.Header.Get("Accept"), contentTypeCBOR)

	var payload sensorPayload
	if err := decodeBody(w, r, &payload); err != nil {
		s.log.Debug().Err(err).Msg("malformed sensor report")
		writeIngest(w, useCBOR, http.StatusBadRequest, ingestError{Error: "Invalid request body"})
		return
	}

	result, err := s.ingest.Ingest(r.Context(), payload.report())
	switch {
	case errors.Is(err, model.ErrMissingIdentity):
		writeIngest(w, useCBOR, http.StatusBadRequest, ingestError{Error: "device identity required"})
		return
	case errors.Is(err, model.ErrDeviceNotFound):
		writeIngest(w, useCBOR, http.StatusNotFound, ingestError{Error: "Device not found"})
		return
	case err != nil:
		s.log.Error().Err(err).
			Str("mac_address", payload.MACAddress).
			Str("device_name", payload.DeviceName).
			Msg("ingestion failed")
		writeIngest(w, useCBOR, http.StatusInternalServerError, ingestError{Error: "Internal server error"})
		return
	}

	resp := ingestResponse{Success: true}
	if result.HasCommand() {
		resp.Command = &commandBody{Command: result.Command}
	}
	writeIngest(w, useCBOR, http.StatusOK, resp)
}

func writeIngest(w http.ResponseWriter, useCBOR bool, status int, resp any) {
	if !useCBOR {
		writeJSON(w, status, resp)
		return
	}
	data, err := cbor.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(status)
	w.Write(data)
}

// Control plane

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.control.ListDevices(r.Context())
	if err != nil {
		s.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: devices})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.control.GetSettings(r.Context(), r.PathValue("name"))
	if err != nil {
		s.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: settings})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update model.SettingsUpdate
	if err := decodeBody(w, r, &update); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}
	if err := s.control.UpdateSettings(r.Context(), r.PathValue("name"), update); err != nil {
		s.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}
	cmd, err := model.ParseCommand(body.Command)
	if err != nil {
		s.controlError(w, err)
		return
	}
	if err := s.control.EnqueueCommand(r.Context(), r.PathValue("name"), cmd); err != nil {
		s.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	readings, err := s.control.GetReadings(r.Context(), r.PathValue("name"), limit)
	if err != nil {
		s.controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: readings})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) controlError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrDeviceExists):
		status = http.StatusConflict
	case service.IsClientError(err):
		status = http.StatusBadRequest
	default:
		s.log.Error().Err(err).Msg("control-plane request failed")
	}
	writeJSON(w, status, envelope{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if isCBOR(r.Header.Get("Content-Type")) {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		return cbor.Unmarshal(data, v)
	}
	return json.NewDecoder(body).Decode(v)
}

func isCBOR(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == contentTypeCBOR
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
