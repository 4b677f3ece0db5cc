package bluetooth

import (
	"time"
)

// Config collects the tunables of both sessions.
type Config struct {
	Adapter          string
	DeviceName       string
	ServiceUUID      string
	AdvertiseTimeout time.Duration
	ScanPeriod       time.Duration
	// ScanAll drops the service UUID filter so every nearby peer is listed.
	ScanAll bool
}

// DefaultConfig returns the stock beacon configuration
func DefaultConfig() *Config {
	return &Config{
		Adapter:          DefaultAdapter,
		DeviceName:       DefaultDeviceName,
		ServiceUUID:      BeaconServiceUUID,
		AdvertiseTimeout: DefaultAdvertiseTimeout,
		ScanPeriod:       DefaultScanPeriod,
	}
}

// Timer is a cancelable single-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
