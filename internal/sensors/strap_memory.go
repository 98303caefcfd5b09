package sensors

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

type strapMemoryData struct {
	PreferredStrapAddress string `json:"preferred_strap_address"`
	PreferredStrapName    string `json:"preferred_strap_name,omitempty"`
}

// StrapMemory remembers the last strap that connected so the next session
// can reconnect to it without picking up a stranger's strap
type StrapMemory struct {
	filePath string
	logger   *log.Logger

	mu   sync.Mutex
	data strapMemoryData
}

// DefaultStrapMemoryPath is ~/.cardio-tracker/sensors.json
func DefaultStrapMemoryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".cardio-tracker", "sensors.json")
}

func NewStrapMemory(filePath string, logger *log.Logger) *StrapMemory {
	if logger == nil {
		panic("StrapMemory: logger cannot be nil")
	}
	m := &StrapMemory{
		filePath: filePath,
		logger:   logger,
	}
	m.load()
	return m
}

// PreferredAddress returns the remembered strap address, or "" if none
func (m *StrapMemory) PreferredAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.PreferredStrapAddress
}

// Remember stores a connected strap. Other states are ignored so it can be
// registered directly as a status listener.
func (m *StrapMemory) Remember(status HeartRateStatus) {
	if status.State != HeartRateConnected || status.DeviceAddress == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data.PreferredStrapAddress == status.DeviceAddress {
		return
	}
	m.data.PreferredStrapAddress = status.DeviceAddress
	m.data.PreferredStrapName = status.DeviceName
	m.save()
}

func (m *StrapMemory) load() {
	raw, err := os.ReadFile(m.filePath)
	if err != nil {
		m.logger.Printf("StrapMemory: load %s (no existing file)", m.filePath)
		return
	}
	if err := json.Unmarshal(raw, &m.data); err != nil {
		m.logger.Printf("StrapMemory: load %s failed to parse: %v", m.filePath, err)
		m.data = strapMemoryData{}
		return
	}
	m.logger.Printf("StrapMemory: load %s -> %q", m.filePath, m.data.PreferredStrapAddress)
}

func (m *StrapMemory) save() {
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
		m.logger.Printf("StrapMemory: save mkdir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		m.logger.Printf("StrapMemory: save marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(m.filePath, raw, 0644); err != nil {
		m.logger.Printf("StrapMemory: save %s failed: %v", m.filePath, err)
		return
	}
	m.logger.Printf("StrapMemory: save %s -> %q", m.filePath, m.data.PreferredStrapAddress)
}
