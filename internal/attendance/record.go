package attendance

import (
	"fmt"
	"strings"
	"time"
)

// hashTimeLayout renders punch times to second precision for fingerprinting.
const hashTimeLayout = "20060102150405"

// Record is a single punch read from a device.
type Record struct {
	BiometricUserID string
	DeviceID        int64
	BranchID        int64
	Time            time.Time
	VerifyMethod    string
	AttendanceType  string
	WorkCode        int
	Hash            string
}

// NewRecord builds a record with a normalised user ID, a time truncated to the
// second and its content hash already computed.
func NewRecord(userID string, deviceID, branchID int64, at time.Time) Record {
	userID = NormalizeUserID(userID)
	at = at.Truncate(time.Second)
	return Record{
		BiometricUserID: userID,
		DeviceID:        deviceID,
		BranchID:        branchID,
		Time:            at,
		Hash:            ComputeHash(userID, deviceID, at),
	}
}

// NormalizeUserID trims the enrolment number reported by a device. Devices
// report blank IDs for unenrolled punches; those collapse to "0".
func NormalizeUserID(userID string) string {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// ComputeHash returns the deduplication key of a punch. The device ID is part
// of the key so identical punches on two devices never collide.
func ComputeHash(userID string, deviceID int64, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", NormalizeUserID(userID), deviceID, at.Format(hashTimeLayout))
}

// HashOf recomputes the key of r from its content, ignoring r.Hash.
func HashOf(r Record) string {
	return ComputeHash(r.BiometricUserID, r.DeviceID, r.Time)
}

// VerifyMethodName maps a device verify mode to its label.
func VerifyMethodName(mode int) string {
	switch mode {
	case 0:
		return "Password"
	case 1:
		return "Fingerprint"
	case 2:
		return "Card"
	case 3:
		return "Fingerprint+Password"
	case 4:
		return "Fingerprint+Card"
	case 5:
		return "Face"
	case 6:
		return "Face+Fingerprint"
	case 7:
		return "Face+Password"
	case 8:
		return "Face+Card"
	case 15:
		return "Palm"
	default:
		return fmt.Sprintf("Unknown(%d)", mode)
	}
}

// AttendanceTypeName maps a device in/out mode to its label. Unknown modes,
// including the 255 sentinel some firmwares emit, count as check-ins.
func AttendanceTypeName(mode int) string {
	switch mode {
	case 1:
		return "CheckOut"
	case 2:
		return "BreakOut"
	case 3:
		return "BreakIn"
	case 4:
		return "OTIn"
	case 5:
		return "OTOut"
	default:
		return "CheckIn"
	}
}
