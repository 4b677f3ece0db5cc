package bluetooth

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

func TestAdvertiseErrorKindMapping(t *testing.T) {
	tests := []struct {
		name string
		want AdvertiseErrorKind
	}{
		{"org.bluez.Error.AlreadyExists", AlreadyStarted},
		{"org.bluez.Error.InvalidLength", PayloadTooLarge},
		{"org.bluez.Error.NotSupported", FeatureUnsupported},
		{"org.freedesktop.DBus.Error.UnknownMethod", FeatureUnsupported},
		{"org.freedesktop.DBus.Error.UnknownInterface", FeatureUnsupported},
		{"org.bluez.Error.NotPermitted", TooManyAdvertisers},
		{"org.bluez.Error.Failed", InternalError},
	}

	for _, tt := range tests {
		err := dbus.Error{Name: tt.name}
		if got := advertiseErrorKind(err); got != tt.want {
			t.Errorf("advertiseErrorKind(%s) = %s, want %s", tt.name, got, tt.want)
		}
		if got := advertiseErrorKind(&err); got != tt.want {
			t.Errorf("advertiseErrorKind(&%s) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if got := advertiseErrorKind(errors.New("plain")); got != InternalError {
		t.Errorf("Expected plain errors to map to InternalError, got %s", got)
	}
}

func TestScanErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"org.bluez.Error.InProgress", ScanFailedAlreadyStarted},
		{"org.bluez.Error.NotSupported", ScanFailedFeatureUnsupported},
		{"org.bluez.Error.NotAuthorized", ScanFailedApplicationRegistration},
		{"org.bluez.Error.Failed", ScanFailedInternalError},
	}

	for _, tt := range tests {
		wrapped := fmt.Errorf("start discovery: %w", dbus.Error{Name: tt.name})
		if got := scanErrorCode(wrapped); got != tt.want {
			t.Errorf("scanErrorCode(%s) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestBeginAdvertisingRejectsOversizedPayload(t *testing.T) {
	platform := NewBluezPlatform(nil, "")
	_, err := platform.BeginAdvertising(
		AdvertiseSettings{Connectable: true},
		AdvertiseData{
			ServiceUUIDs:      []string{BeaconServiceUUID},
			IncludeDeviceName: true,
			DeviceName:        strings.Repeat("x", 30),
		},
		AdvertiseEvents{},
	)

	var advErr *AdvertiseError
	if !errors.As(err, &advErr) {
		t.Fatalf("Expected *AdvertiseError, got %v", err)
	}
	if advErr.Kind != PayloadTooLarge {
		t.Errorf("Expected PayloadTooLarge, got %s", advErr.Kind)
	}
}

func TestNewBluezPlatformAdapterPath(t *testing.T) {
	if got := NewBluezPlatform(nil, "").adapterPath; got != "/org/bluez/hci0" {
		t.Errorf("Expected default adapter path, got %s", got)
	}
	if got := NewBluezPlatform(nil, "hci1").adapterPath; got != "/org/bluez/hci1" {
		t.Errorf("Unexpected adapter path %s", got)
	}
}

func TestAdvertisementProperties(t *testing.T) {
	props := advertisementProperties(
		AdvertiseSettings{Mode: AdvertiseModeLowPower, Connectable: true, Timeout: 30 * time.Second},
		AdvertiseData{ServiceUUIDs: []string{BeaconServiceUUID}, IncludeDeviceName: true, DeviceName: "beacon"},
	)

	if props["Type"].Value != "peripheral" {
		t.Errorf("Expected peripheral type, got %v", props["Type"].Value)
	}
	if props["MinInterval"].Value != uint32(1000) {
		t.Errorf("Expected 1000ms interval, got %v", props["MinInterval"].Value)
	}
	if props["LocalName"] == nil || props["LocalName"].Value != "beacon" {
		t.Errorf("Expected local name, got %v", props["LocalName"])
	}
	if props["Timeout"] == nil || props["Timeout"].Value != uint16(30) {
		t.Errorf("Expected 30s timeout, got %v", props["Timeout"])
	}
	for name, p := range props {
		if p.Emit != prop.EmitFalse {
			t.Errorf("Property %s should not emit changes", name)
		}
	}

	broadcast := advertisementProperties(AdvertiseSettings{}, AdvertiseData{})
	if broadcast["Type"].Value != "broadcast" {
		t.Errorf("Expected broadcast type, got %v", broadcast["Type"].Value)
	}
	if _, ok := broadcast["LocalName"]; ok {
		t.Error("Expected no local name")
	}
	if _, ok := broadcast["Timeout"]; ok {
		t.Error("Expected no timeout")
	}
}

func TestDeviceRecord(t *testing.T) {
	seen := time.Unix(1700000000, 0)
	props := map[string]dbus.Variant{
		"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"Name":    dbus.MakeVariant("Peer"),
		"RSSI":    dbus.MakeVariant(int16(-60)),
		"UUIDs":   dbus.MakeVariant([]string{BeaconServiceUUID}),
		"ManufacturerData": dbus.MakeVariant(map[uint16]dbus.Variant{
			0x004c: dbus.MakeVariant([]byte{0x01, 0x02}),
		}),
	}

	rec := deviceRecord(props, seen)

	if rec.Address != "AA:BB:CC:DD:EE:FF" || rec.Name != "Peer" || rec.RSSI != -60 {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if !rec.LastSeen.Equal(seen) {
		t.Errorf("Expected LastSeen %v, got %v", seen, rec.LastSeen)
	}
	if len(rec.ServiceUUIDs) != 1 || rec.ServiceUUIDs[0] != BeaconServiceUUID {
		t.Errorf("Unexpected UUIDs: %v", rec.ServiceUUIDs)
	}
	want := []byte{0x05, adTypeManufacturer, 0x4c, 0x00, 0x01, 0x02}
	if !bytes.Equal(rec.RawPayload, want) {
		t.Errorf("RawPayload = %x, want %x", rec.RawPayload, want)
	}
}

func TestDeviceRecordMissingFields(t *testing.T) {
	rec := deviceRecord(map[string]dbus.Variant{
		"Address": dbus.MakeVariant("11:22:33:44:55:66"),
	}, time.Time{})

	if rec.Name != "" || rec.RSSI != 0 || rec.ServiceUUIDs != nil || rec.RawPayload != nil {
		t.Errorf("Expected empty optional fields, got %+v", rec)
	}
}

func TestEncodeAdvertisingPayloadServiceData(t *testing.T) {
	vendor := "12345678-1234-5678-9abc-def012345678"
	payload := encodeAdvertisingPayload(nil, map[string]dbus.Variant{
		BeaconServiceUUID: dbus.MakeVariant([]byte{0xaa}),
		vendor:            dbus.MakeVariant([]byte{0xbb}),
	})

	short := []byte{0x04, adTypeServiceData16, 0x1d, 0xb8, 0xaa}
	if !bytes.HasPrefix(payload, short) {
		t.Fatalf("Expected 16-bit service data first, got %x", payload)
	}

	rest := payload[len(short):]
	if len(rest) != 1+1+16+1 {
		t.Fatalf("Expected a 128-bit service data field, got %x", rest)
	}
	if rest[0] != 18 || rest[1] != adTypeServiceData128 {
		t.Errorf("Unexpected 128-bit header %x", rest[:2])
	}
	if rest[2] != 0x78 || rest[17] != 0x12 {
		t.Errorf("Expected little-endian UUID bytes, got %x", rest[2:18])
	}
	if rest[18] != 0xbb {
		t.Errorf("Expected service data byte, got %x", rest[18])
	}
}

func TestEncodeAdvertisingPayloadIsDeterministic(t *testing.T) {
	manufacturer := map[uint16]dbus.Variant{
		0x0006: dbus.MakeVariant([]byte{1}),
		0x004c: dbus.MakeVariant([]byte{2}),
		0x0001: dbus.MakeVariant([]byte{3}),
	}

	first := encodeAdvertisingPayload(manufacturer, nil)
	for i := 0; i < 10; i++ {
		if next := encodeAdvertisingPayload(manufacturer, nil); !bytes.Equal(first, next) {
			t.Fatalf("Encoding changed between calls: %x vs %x", first, next)
		}
	}
	if first[2] != 0x01 {
		t.Errorf("Expected lowest company id first, got %x", first)
	}
	if encodeAdvertisingPayload(nil, nil) != nil {
		t.Error("Expected nil payload for empty maps")
	}
}

func TestMatchesFilters(t *testing.T) {
	rec := PeerRecord{Address: "AA", ServiceUUIDs: []string{strings.ToUpper(BeaconServiceUUID)}}

	if !matchesFilters(rec, nil) {
		t.Error("Expected no filters to match everything")
	}
	if !matchesFilters(rec, []ScanFilter{{ServiceUUID: BeaconServiceUUID}}) {
		t.Error("Expected case-insensitive UUID match")
	}
	if matchesFilters(rec, []ScanFilter{{ServiceUUID: HEART_RATE_SERVICE_UUID}}) {
		t.Error("Expected a different service not to match")
	}
	if !matchesFilters(PeerRecord{}, []ScanFilter{{}}) {
		t.Error("Expected an empty filter to match everything")
	}
}

func TestIsAdvertisementUpdate(t *testing.T) {
	if !isAdvertisementUpdate(map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}) {
		t.Error("Expected RSSI change to count as an advertisement")
	}
	if isAdvertisementUpdate(map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}) {
		t.Error("Expected connection change to be ignored")
	}
}

func TestExportAllUndoesOnFailure(t *testing.T) {
	var ran []int
	undone := 0
	failure := errors.New("export failed")

	err := exportAll(func() { undone++ },
		func() error { ran = append(ran, 1); return nil },
		func() error { ran = append(ran, 2); return nil },
		func() error { ran = append(ran, 3); return failure },
		func() error { ran = append(ran, 4); return nil },
	)

	if !errors.Is(err, failure) {
		t.Errorf("Expected the step error, got %v", err)
	}
	if undone != 1 {
		t.Errorf("Expected undo to run once, got %d", undone)
	}
	if len(ran) != 3 {
		t.Errorf("Expected steps after the failure to be skipped, ran %v", ran)
	}

	undone = 0
	if err := exportAll(func() { undone++ }, func() error { return nil }); err != nil {
		t.Errorf("Unexpected error %v", err)
	}
	if undone != 0 {
		t.Error("Expected no undo when every step succeeds")
	}
}
