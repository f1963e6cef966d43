package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/edusat-bridge/internal/state"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// DeviceStatus describes the serial device held in the store.
type DeviceStatus struct {
	Path string `json:"path"`
	Open bool   `json:"open"`
}

// StateResponse is the body of GET /api/v1/state.
type StateResponse struct {
	BridgeID  string             `json:"bridge_id"`
	SensorSeq uint64             `json:"sensor_seq"`
	HasData   bool               `json:"has_data"`
	UpdatedAt string             `json:"updated_at,omitempty"`
	Sensor    telemetry.Snapshot `json:"sensor"`
	Device    *DeviceStatus      `json:"device"`
}

// ChannelResponse is the body of GET /api/v1/state/{channel}.
type ChannelResponse struct {
	Channel   string    `json:"channel"`
	Selected  bool      `json:"selected"`
	Values    []float64 `json:"values"`
	SensorSeq uint64    `json:"sensor_seq"`
}

func (s *Server) stateResponse(st state.State) StateResponse {
	resp := StateResponse{
		BridgeID:  s.bridgeID,
		SensorSeq: st.SensorSeq,
		HasData:   st.HasData(),
		Sensor:    st.Sensor,
		Device:    deviceStatus(st),
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func deviceStatus(st state.State) *DeviceStatus {
	if st.Device == nil {
		return nil
	}
	return &DeviceStatus{Path: st.Device.Path(), Open: st.Device.IsOpen()}
}

// handleGetState returns the full current state.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse(s.store.GetState()))
}

// handleGetChannel returns one channel of the current snapshot.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	if name == "" || len(name) > maxQueryParamLen {
		writeError(w, http.StatusBadRequest, "invalid channel name")
		return
	}

	st := s.store.GetState()
	values, ok := st.Sensor.Values[name]
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	writeJSON(w, http.StatusOK, ChannelResponse{
		Channel:   name,
		Selected:  st.Sensor.Selection[name],
		Values:    values,
		SensorSeq: st.SensorSeq,
	})
}
