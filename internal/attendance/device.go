package attendance

import "time"

// Connection status labels stored on the device registry.
const (
	ConnectionNotConnected = "NotConnected"
	ConnectionConnected    = "Connected"
	ConnectionDisconnected = "Disconnected"
	ConnectionError        = "Error"
)

// Branch is a site owning a set of devices.
type Branch struct {
	ID       int64
	Code     string
	Name     string
	City     string
	IsActive bool
}

// Device is a registered attendance terminal.
type Device struct {
	ID                 int64
	Name               string
	IP                 string
	Port               int
	BranchID           int64
	IsActive           bool
	ConnectionStatus   string
	LastConnectionTime *time.Time
}

// DeviceStatus is a point-in-time snapshot reported by a terminal.
type DeviceStatus struct {
	DeviceID        int64
	BranchID        int64
	IsOnline        bool
	SerialNumber    string
	Model           string
	FirmwareVersion string
	UserCount       int
	LogCount        int
	FaceCount       int
	DeviceTime      *time.Time
	StatusMessage   string
	StatusTime      time.Time
}
