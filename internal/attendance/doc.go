// Package attendance holds the value types shared by the sync engine: punch
// records and their content hash, sync outcomes, devices and branches.
//
// A record's hash is "<user>_<device>_<yyyyMMddHHmmss>" and is the only key
// used to decide whether a punch has already been ingested.
package attendance
