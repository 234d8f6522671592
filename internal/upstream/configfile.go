package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrConfigNotFound reports a missing device config file.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrConfigInvalid reports a device config file that is not JSON.
	ErrConfigInvalid = errors.New("config file is not valid json")
)

// DeviceConfig serves the JSON file the firmware polls for its settings,
// e.g. refresh_interval_sec.
type DeviceConfig struct {
	path string
}

// NewDeviceConfig creates the service.
func NewDeviceConfig(path string) *DeviceConfig {
	return &DeviceConfig{path: path}
}

// Load reads the file fresh on every call and returns it compacted.
func (d *DeviceConfig) Load() (json.RawMessage, error) {
	raw, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, ErrConfigInvalid
	}
	return buf.Bytes(), nil
}
