package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the declared configuration of one branch and its devices.
type File struct {
	Branch   BranchConfig   `yaml:"branch"`
	Devices  []DeviceConfig `yaml:"devices"`
	Sync     SyncConfig     `yaml:"sync"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Driver   DriverConfig   `yaml:"driver"`
}

// BranchConfig identifies the branch this service syncs for.
type BranchConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	City string `yaml:"city"`
}

// DeviceConfig declares one terminal. Devices are matched to the registry by IP and port.
type DeviceConfig struct {
	Name     string `yaml:"name"`
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	IsActive *bool  `yaml:"isActive"`
}

// Active reports whether the device should be synced. Undeclared means active.
func (d DeviceConfig) Active() bool {
	return d.IsActive == nil || *d.IsActive
}

// PeakHourConfig is a daily window during which devices are not synced.
type PeakHourConfig struct {
	Name                string `yaml:"name"`
	StartTime           string `yaml:"startTime"`
	EndTime             string `yaml:"endTime"`
	RunImmediatelyAfter bool   `yaml:"runImmediatelyAfter"`
}

// SyncConfig tunes the scheduler and the per-device workflow.
type SyncConfig struct {
	EnableAutoSync        *bool            `yaml:"enableAutoSync"`
	SyncIntervalMinutes   int              `yaml:"syncIntervalMinutes"`
	MaxRetryAttempts      int              `yaml:"maxRetryAttempts"`
	RetryIntervalMinutes  int              `yaml:"retryIntervalMinutes"`
	StartDelaySeconds     int              `yaml:"startDelaySeconds"`
	SyncLastNDays         int              `yaml:"syncLastNDays"`
	SyncAllOnFirstTime    *bool            `yaml:"syncAllOnFirstTime"`
	PeakHours             []PeakHourConfig `yaml:"peakHours"`
	MaxConcurrentDevices  int              `yaml:"maxConcurrentDevices"`
	BulkBatchSize         int              `yaml:"bulkBatchSize"`
	CommandTimeoutSeconds int              `yaml:"commandTimeoutSeconds"`
}

// AutoSync reports whether the control loop should run.
func (s SyncConfig) AutoSync() bool {
	return s.EnableAutoSync == nil || *s.EnableAutoSync
}

// AllOnFirstTime reports whether a device's first sync ignores the lookback window.
func (s SyncConfig) AllOnFirstTime() bool {
	return s.SyncAllOnFirstTime == nil || *s.SyncAllOnFirstTime
}

// Interval is the wait between cycles.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}

// StartDelay is the wait before the first cycle.
func (s SyncConfig) StartDelay() time.Duration {
	return time.Duration(s.StartDelaySeconds) * time.Second
}

// CommandTimeout bounds connect and fetch calls against one device.
func (s SyncConfig) CommandTimeout() time.Duration {
	return time.Duration(s.CommandTimeoutSeconds) * time.Second
}

// UpstreamConfig describes the central server records are relayed to.
type UpstreamConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"baseUrl"`
	SyncEndpoint   string `yaml:"syncEndpoint"`
	APIKey         string `yaml:"apiKey"`
	SigningKey     string `yaml:"signingKey"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	RetryCount     int    `yaml:"retryCount"`
}

// DriverConfig selects and tunes the device driver.
type DriverConfig struct {
	Kind           string `yaml:"kind"`
	Timezone       string `yaml:"timezone"`
	SimulatedUsers int    `yaml:"simulatedUsers"`
	SimulatedDays  int    `yaml:"simulatedDays"`
}

// Location resolves the timezone device clocks report in.
func (d DriverConfig) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "config: validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field, msg := range v.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return "config: validation failed: " + strings.Join(fields, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// LoadFile reads, defaults and validates the YAML file at path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown keys, then applies defaults and validates.
func Parse(data []byte) (File, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("config: decode: %w", err)
	}
	file.ApplyDefaults()
	if vErr := file.Validate(); vErr.HasErrors() {
		return File{}, vErr
	}
	return file, nil
}

// ApplyDefaults fills zero values with production defaults.
func (f *File) ApplyDefaults() {
	s := &f.Sync
	if s.SyncIntervalMinutes == 0 {
		s.SyncIntervalMinutes = 10
	}
	if s.MaxRetryAttempts == 0 {
		s.MaxRetryAttempts = 3
	}
	if s.RetryIntervalMinutes == 0 {
		s.RetryIntervalMinutes = 5
	}
	if s.SyncLastNDays == 0 {
		s.SyncLastNDays = 365
	}
	if s.MaxConcurrentDevices == 0 {
		s.MaxConcurrentDevices = 5
	}
	if s.BulkBatchSize == 0 {
		s.BulkBatchSize = 10000
	}
	if s.CommandTimeoutSeconds == 0 {
		s.CommandTimeoutSeconds = 600
	}
	for i := range f.Devices {
		if f.Devices[i].Port == 0 {
			f.Devices[i].Port = 4370
		}
	}
	if f.Upstream.TimeoutSeconds == 0 {
		f.Upstream.TimeoutSeconds = 120
	}
	if f.Upstream.RetryCount == 0 {
		f.Upstream.RetryCount = 3
	}
	if f.Driver.Kind == "" {
		f.Driver.Kind = "simulator"
	}
	if f.Driver.SimulatedUsers == 0 {
		f.Driver.SimulatedUsers = 25
	}
	if f.Driver.SimulatedDays == 0 {
		f.Driver.SimulatedDays = 7
	}
}

// Validate checks structural constraints. Peak hour time strings are not
// checked here; malformed windows are reported and ignored at runtime.
func (f File) Validate() *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(f.Branch.Code) == "" {
		vErr.add("branch.code", "is required")
	}

	seen := make(map[string]int, len(f.Devices))
	for i, dev := range f.Devices {
		field := fmt.Sprintf("devices[%d]", i)
		if strings.TrimSpace(dev.IP) == "" {
			vErr.add(field+".ip", "is required")
		}
		if dev.Port < 1 || dev.Port > 65535 {
			vErr.add(field+".port", "must be between 1 and 65535")
		}
		key := fmt.Sprintf("%s:%d", dev.IP, dev.Port)
		if prev, ok := seen[key]; ok {
			vErr.add(field, fmt.Sprintf("duplicates devices[%d]", prev))
		}
		seen[key] = i
	}

	s := f.Sync
	positive := map[string]int{
		"sync.syncIntervalMinutes":   s.SyncIntervalMinutes,
		"sync.maxRetryAttempts":      s.MaxRetryAttempts,
		"sync.maxConcurrentDevices":  s.MaxConcurrentDevices,
		"sync.bulkBatchSize":         s.BulkBatchSize,
		"sync.commandTimeoutSeconds": s.CommandTimeoutSeconds,
	}
	for field, value := range positive {
		if value < 0 {
			vErr.add(field, "must be positive")
		}
	}
	if s.SyncLastNDays < 0 {
		vErr.add("sync.syncLastNDays", "must not be negative")
	}
	if s.StartDelaySeconds < 0 {
		vErr.add("sync.startDelaySeconds", "must not be negative")
	}

	if f.Upstream.Enabled && strings.TrimSpace(f.Upstream.BaseURL) == "" {
		vErr.add("upstream.baseUrl", "is required when upstream is enabled")
	}
	if f.Upstream.RetryCount < 0 {
		vErr.add("upstream.retryCount", "must not be negative")
	}

	if f.Driver.Kind != "simulator" {
		vErr.add("driver.kind", fmt.Sprintf("unsupported driver %q", f.Driver.Kind))
	}
	if _, err := f.Driver.Location(); err != nil {
		vErr.add("driver.timezone", err.Error())
	}
	return vErr
}
