package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// ConfigItemResponse is one configuration item with its current value.
//
// Value is a string for string and ga items ("1/2/3", "" when unset), a
// number for int and options items, and a boolean for bool items.
type ConfigItemResponse struct {
	ID      knxip.ConfigID `json:"id"`
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Length  int            `json:"length"`
	Enabled bool           `json:"enabled"`
	Value   any            `json:"value"`
	Options []knxip.Option `json:"options,omitempty"`
}

// ConfigValueRequest is the body of PUT /config/{id}.
type ConfigValueRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) configValue(item knxip.ConfigItem) (any, error) {
	switch item.Kind {
	case knxip.ConfigString:
		return s.device.ConfigString(item.ID)
	case knxip.ConfigInt:
		return s.device.ConfigInt(item.ID)
	case knxip.ConfigBool:
		return s.device.ConfigBool(item.ID)
	case knxip.ConfigOptions:
		return s.device.ConfigOption(item.ID)
	case knxip.ConfigGA:
		ga, err := s.device.ConfigGA(item.ID)
		if err != nil || ga.IsZero() {
			return "", err
		}
		return ga.String(), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %s", knxip.ErrKindMismatch, item.Kind)
	}
}

func (s *Server) configResponse(item knxip.ConfigItem) (ConfigItemResponse, error) {
	value, err := s.configValue(item)
	if err != nil {
		return ConfigItemResponse{}, err
	}
	return ConfigItemResponse{
		ID:      item.ID,
		Kind:    item.Kind.String(),
		Name:    item.Name,
		Length:  item.Length,
		Enabled: item.Enabled(),
		Value:   value,
		Options: item.Options,
	}, nil
}

// handleListConfig lists every configuration item. Disabled items are
// included with enabled=false; ?enabled=true hides them.
func (s *Server) handleListConfig(w http.ResponseWriter, r *http.Request) {
	onlyEnabled := r.URL.Query().Get("enabled") == "true"

	items := s.device.ConfigItems()
	out := make([]ConfigItemResponse, 0, len(items))
	for _, item := range items {
		if onlyEnabled && !item.Enabled() {
			continue
		}
		resp, err := s.configResponse(item)
		if err != nil {
			writeDeviceError(w, err)
			return
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": out, "count": len(out)})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint8Param(r, "id")
	if !ok {
		writeBadRequest(w, "invalid config id")
		return
	}
	item, ok := s.device.ConfigItem(knxip.ConfigID(id))
	if !ok {
		writeNotFound(w, "config item not found")
		return
	}
	resp, err := s.configResponse(item)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetConfig decodes the value according to the item's kind and
// stores it.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint8Param(r, "id")
	if !ok {
		writeBadRequest(w, "invalid config id")
		return
	}
	item, ok := s.device.ConfigItem(knxip.ConfigID(id))
	if !ok {
		writeNotFound(w, "config item not found")
		return
	}

	var req ConfigValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Value) == 0 {
		writeBadRequest(w, "body must be {\"value\": ...}")
		return
	}

	if err := s.setConfigValue(item, req.Value); err != nil {
		writeDeviceError(w, err)
		return
	}

	resp, err := s.configResponse(item)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	s.logger.Info("config item changed", "id", item.ID, "name", item.Name, "value", resp.Value)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setConfigValue(item knxip.ConfigItem, raw json.RawMessage) error {
	invalid := func(err error) error {
		return fmt.Errorf("%w: %s value for %q: %w", knxip.ErrKindMismatch, item.Kind, item.Name, err)
	}

	switch item.Kind {
	case knxip.ConfigString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid(err)
		}
		return s.device.SetConfigString(item.ID, v)
	case knxip.ConfigInt:
		var v int32
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid(err)
		}
		return s.device.SetConfigInt(item.ID, v)
	case knxip.ConfigBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid(err)
		}
		return s.device.SetConfigBool(item.ID, v)
	case knxip.ConfigOptions:
		var v uint8
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid(err)
		}
		return s.device.SetConfigOption(item.ID, v)
	case knxip.ConfigGA:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalid(err)
		}
		if v == "" {
			return s.device.SetConfigGA(item.ID, 0)
		}
		ga, err := knxip.ParseGroupAddress(v)
		if err != nil {
			return err
		}
		return s.device.SetConfigGA(item.ID, ga)
	default:
		return fmt.Errorf("%w: unknown kind %s", knxip.ErrKindMismatch, item.Kind)
	}
}

func (s *Server) handleRestoreDefaults(w http.ResponseWriter, _ *http.Request) {
	s.device.RestoreDefaults()
	s.logger.Info("configuration restored to defaults")
	writeJSON(w, http.StatusOK, map[string]string{"status": "defaults restored"})
}
