package bluetooth

import (
	"time"
)

// Handle identifies an advertisement or scan registered with the platform.
type Handle string

// AdvertiseMode trades discovery latency against power draw.
type AdvertiseMode int

const (
	AdvertiseModeLowPower AdvertiseMode = iota
	AdvertiseModeBalanced
	AdvertiseModeLowLatency
)

// Interval returns the advertising interval BlueZ should use for the mode.
func (m AdvertiseMode) Interval() time.Duration {
	switch m {
	case AdvertiseModeLowLatency:
		return 100 * time.Millisecond
	case AdvertiseModeBalanced:
		return 250 * time.Millisecond
	default:
		return time.Second
	}
}

// AdvertiseSettings controls how the platform transmits the beacon.
// A zero Timeout leaves stopping to the session's own timer.
type AdvertiseSettings struct {
	Mode        AdvertiseMode
	Connectable bool
	Timeout     time.Duration
}

// AdvertiseData is the payload of a legacy advertising PDU.
type AdvertiseData struct {
	ServiceUUIDs      []string
	IncludeDeviceName bool
	DeviceName        string
}

// AD structure overheads, in bytes.
const (
	adFieldHeaderBytes = 2 // length + type
	adFlagsFieldBytes  = 3
	adUUID16Bytes      = 2
	adUUID128Bytes     = 16
)

// PayloadSize returns the number of bytes settings and data occupy on air.
// Connectable advertisements carry a flags field.
func PayloadSize(settings AdvertiseSettings, data AdvertiseData) int {
	size := 0
	if settings.Connectable {
		size += adFlagsFieldBytes
	}

	var short, long int
	for _, id := range data.ServiceUUIDs {
		if _, ok := shortUUID16(id); ok {
			short++
		} else {
			long++
		}
	}
	if short > 0 {
		size += adFieldHeaderBytes + short*adUUID16Bytes
	}
	if long > 0 {
		size += adFieldHeaderBytes + long*adUUID128Bytes
	}

	if data.IncludeDeviceName {
		size += adFieldHeaderBytes + len(data.DeviceName)
	}
	return size
}

// AdvertiseEvents is how the platform reports asynchronous outcomes of a
// BeginAdvertising call. Either field may be nil.
type AdvertiseEvents struct {
	OnStarted func()
	OnFailed  func(kind AdvertiseErrorKind, cause error)
}

// Advertiser is the platform side of outbound advertising.
// BeginAdvertising returns immediately; a synchronous error must be an
// *AdvertiseError.
type Advertiser interface {
	BeginAdvertising(settings AdvertiseSettings, data AdvertiseData, events AdvertiseEvents) (Handle, error)
	EndAdvertising(handle Handle) error
}

// ScanMode trades discovery latency against power draw.
type ScanMode int

const (
	ScanModeLowPower ScanMode = iota
	ScanModeBalanced
	ScanModeLowLatency
)

// ScanFilter restricts results to peers advertising ServiceUUID.
// An empty ServiceUUID matches everything.
type ScanFilter struct {
	ServiceUUID string
}

// ScanSettings controls the platform scan.
type ScanSettings struct {
	Mode ScanMode
}

// ScanEvents receives scan output. Platforms may deliver results one at a
// time through OnResult or grouped through OnBatch.
type ScanEvents struct {
	OnResult func(rec PeerRecord)
	OnBatch  func(recs []PeerRecord)
	OnFailed func(code int, cause error)
}

// Scanner is the platform side of inbound scanning.
type Scanner interface {
	BeginScan(filters []ScanFilter, settings ScanSettings, events ScanEvents) (Handle, error)
	EndScan(handle Handle) error
}

// Platform bundles both directions.
type Platform interface {
	Advertiser
	Scanner
}
