package models

import (
	"fmt"
	"strings"
	"time"
)

// LoginRecord is one line of the shared login log: which device activated
// the account, as whom and when.
type LoginRecord struct {
	At       time.Time
	Username string
	DeviceID string
}

// Line renders the record as "<RFC3339>\t<username>\t<device id>".
func (r LoginRecord) Line() string {
	return r.At.UTC().Format(time.RFC3339) + "\t" + r.Username + "\t" + r.DeviceID
}

func ParseLoginRecord(line string) (LoginRecord, error) {
	parts := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(parts) != 3 {
		return LoginRecord{}, fmt.Errorf("malformed login record %q", line)
	}
	at, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return LoginRecord{}, fmt.Errorf("malformed login time: %w", err)
	}
	return LoginRecord{At: at, Username: parts[1], DeviceID: parts[2]}, nil
}
