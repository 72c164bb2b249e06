package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// DeviceResponse describes the device identity and table usage.
type DeviceResponse struct {
	PhysicalAddress string           `json:"physical_address"`
	Capacities      knxip.Capacities `json:"capacities"`
	ImageSize       int              `json:"image_size"`
	Magic           string           `json:"magic"`
	Callbacks       int              `json:"callbacks"`
	Assignments     int              `json:"assignments"`
	ConfigItems     int              `json:"config_items"`
	FeedbackItems   int              `json:"feedback_items"`
	Stats           StatsResponse    `json:"stats"`
}

// StatsResponse mirrors knxip.Stats.
type StatsResponse struct {
	FramesRx      uint64 `json:"frames_rx"`
	FramesTx      uint64 `json:"frames_tx"`
	FramesDropped uint64 `json:"frames_dropped"`
	Dispatched    uint64 `json:"dispatched"`
	SendErrors    uint64 `json:"send_errors"`
	LastActivity  string `json:"last_activity,omitempty"`
}

// AddressRequest carries a single address in string form.
type AddressRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	caps := s.device.Capacities()
	st := s.device.Stats()

	resp := DeviceResponse{
		PhysicalAddress: s.device.PhysicalAddress().PhysicalString(),
		Capacities:      caps,
		ImageSize:       knxip.ImageSize(caps),
		Magic:           fmt.Sprintf("%016X", knxip.Magic(caps)),
		Callbacks:       len(s.device.Callbacks()),
		Assignments:     len(s.device.Assignments()),
		ConfigItems:     len(s.device.ConfigItems()),
		FeedbackItems:   len(s.device.Feedback()),
		Stats: StatsResponse{
			FramesRx:      st.FramesRx,
			FramesTx:      st.FramesTx,
			FramesDropped: st.FramesDropped,
			Dispatched:    st.Dispatched,
			SendErrors:    st.SendErrors,
		},
	}
	if !st.LastActivity.IsZero() {
		resp.Stats.LastActivity = st.LastActivity.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSetPhysicalAddress changes the device's own address. The change is
// lost on restart unless followed by a save.
func (s *Server) handleSetPhysicalAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	pa, err := knxip.ParsePhysicalAddress(req.Address)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	s.device.SetPhysicalAddress(pa)
	s.logger.Info("physical address changed", "address", pa.PhysicalString())
	writeJSON(w, http.StatusOK, AddressRequest{Address: pa.PhysicalString()})
}

// =============================================================================
// Storage
// =============================================================================

func (s *Server) handleSave(w http.ResponseWriter, _ *http.Request) {
	err := s.device.Save()
	if s.recorder != nil {
		s.recorder.ObserveSave(err)
	}
	if err != nil {
		s.logger.Error("save failed", "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "saved",
		"bytes":  knxip.ImageSize(s.device.Capacities()),
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, _ *http.Request) {
	restored, err := s.device.Load()
	if err != nil {
		s.logger.Error("load failed", "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": restored})
}

// =============================================================================
// Telegrams
// =============================================================================

// TelegramRequest asks the device to send one group telegram. Payload is
// hex; for compact values it holds a single byte.
type TelegramRequest struct {
	Address string `json:"address"`
	Command string `json:"command"`
	Payload string `json:"payload"`
	Compact bool   `json:"compact"`
}

func parseCommand(s string) (knxip.CommandType, error) {
	switch strings.ToLower(s) {
	case "", "write":
		return knxip.CommandWrite, nil
	case "read":
		return knxip.CommandRead, nil
	case "answer", "response":
		return knxip.CommandAnswer, nil
	default:
		return 0, fmt.Errorf("unknown command %q", s)
	}
}

func (s *Server) handleSendTelegram(w http.ResponseWriter, r *http.Request) {
	var req TelegramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ga, err := knxip.ParseGroupAddress(req.Address)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	cmd, err := parseCommand(req.Command)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	data, err := hex.DecodeString(req.Payload)
	if err != nil {
		writeBadRequest(w, "payload must be hex")
		return
	}

	if err := s.device.Send(r.Context(), ga, cmd, knxip.Datapoint{Data: data, Compact: req.Compact}); err != nil {
		s.logger.Warn("send failed", "ga", ga.String(), "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent", "address": ga.String(), "command": cmd.String()})
}

// parseUint8Param reads a numeric URL parameter in the range 0-254.
func parseUint8Param(r *http.Request, name string) (uint8, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 8)
	if err != nil || v == knxip.InvalidID {
		return 0, false
	}
	return uint8(v), true
}
