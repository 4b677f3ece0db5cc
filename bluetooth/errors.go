package bluetooth

import "fmt"

// AdvertiseErrorKind enumerates why advertising stopped unexpectedly.
// Values match the platform start-failure codes so they survive a round trip
// through JSON clients that already know them.
type AdvertiseErrorKind int

const (
	PayloadTooLarge    AdvertiseErrorKind = 1
	TooManyAdvertisers AdvertiseErrorKind = 2
	AlreadyStarted     AdvertiseErrorKind = 3
	InternalError      AdvertiseErrorKind = 4
	FeatureUnsupported AdvertiseErrorKind = 5
	TimedOut           AdvertiseErrorKind = 6
)

func (k AdvertiseErrorKind) String() string {
	switch k {
	case PayloadTooLarge:
		return "payload_too_large"
	case TooManyAdvertisers:
		return "too_many_advertisers"
	case AlreadyStarted:
		return "already_started"
	case InternalError:
		return "internal_error"
	case FeatureUnsupported:
		return "feature_unsupported"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is the human-readable text shown to users for the failure.
func (k AdvertiseErrorKind) Message() string {
	switch k {
	case PayloadTooLarge:
		return "Advertising failed: data packet exceeds the 31 byte limit"
	case TooManyAdvertisers:
		return "Advertising failed: no advertising instance available"
	case AlreadyStarted:
		return "Advertising failed: already started"
	case InternalError:
		return "Advertising failed: internal error"
	case FeatureUnsupported:
		return "Advertising failed: not supported on this adapter"
	case TimedOut:
		return "Advertising stopped due to timeout"
	default:
		return "Advertising failed: unknown error"
	}
}

// AdvertiseError is delivered to observers whenever advertising fails or
// times out. The session is already Idle by the time observers see it.
type AdvertiseError struct {
	Kind  AdvertiseErrorKind
	Cause error
}

func (e *AdvertiseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("advertise %s: %v", e.Kind, e.Cause)
	}
	return "advertise " + e.Kind.String()
}

func (e *AdvertiseError) Unwrap() error {
	return e.Cause
}

// Scan failure codes reported by the platform.
const (
	ScanFailedAlreadyStarted          = 1
	ScanFailedApplicationRegistration = 2
	ScanFailedInternalError           = 3
	ScanFailedFeatureUnsupported      = 4
	ScanFailedOutOfHardwareResources  = 5
)

// ScanError carries a platform scan failure code. Scanning is not stopped
// when one is reported.
type ScanError struct {
	Code  int
	Cause error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scan failed with error %d: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("scan failed with error %d", e.Code)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}
