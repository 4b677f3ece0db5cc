package bluetooth

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Well-known GATT attributes.
const (
	HEART_RATE_SERVICE_UUID           = "0000180d-0000-1000-8000-00805f9b34fb"
	DEVICE_INFORMATION_SERVICE_UUID   = "0000180a-0000-1000-8000-00805f9b34fb"
	HEART_RATE_MEASUREMENT_UUID       = "00002a37-0000-1000-8000-00805f9b34fb"
	MANUFACTURER_NAME_STRING_UUID     = "00002a29-0000-1000-8000-00805f9b34fb"
	CLIENT_CHARACTERISTIC_CONFIG_UUID = "00002902-0000-1000-8000-00805f9b34fb"
)

// bluetoothBaseUUID is the base that 16- and 32-bit short UUIDs expand onto.
var bluetoothBaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// AttributeEntry names a single GATT service or characteristic.
type AttributeEntry struct {
	UUID  string `json:"uuid"`
	Label string `json:"label"`
}

var attributes = map[string]string{
	HEART_RATE_SERVICE_UUID:           "Heart Rate Service",
	DEVICE_INFORMATION_SERVICE_UUID:   "Device Information Service",
	HEART_RATE_MEASUREMENT_UUID:       "Heart Rate Measurement",
	MANUFACTURER_NAME_STRING_UUID:     "Manufacturer Name String",
	CLIENT_CHARACTERISTIC_CONFIG_UUID: "Client Characteristic Configuration",
	BeaconServiceUUID:                 "Beacon Service",
}

// LookupAttribute returns the label for uuid, or defaultLabel when the uuid is
// not in the directory or cannot be parsed.
func LookupAttribute(id, defaultLabel string) string {
	key, ok := NormalizeUUID(id)
	if !ok {
		return defaultLabel
	}
	if label, exists := attributes[key]; exists {
		return label
	}
	return defaultLabel
}

// AttributeEntries returns the directory sorted by UUID.
func AttributeEntries() []AttributeEntry {
	entries := make([]AttributeEntry, 0, len(attributes))
	for id, label := range attributes {
		entries = append(entries, AttributeEntry{UUID: id, Label: label})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UUID < entries[j].UUID
	})
	return entries
}

// NormalizeUUID converts id to the canonical lowercase 128-bit form. Short
// 16-bit ("180d") and 32-bit ("0000180d") forms are expanded onto the
// Bluetooth base UUID.
func NormalizeUUID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if len(id) > 2 && strings.EqualFold(id[:2], "0x") {
		id = id[2:]
	}
	switch len(id) {
	case 4:
		id = "0000" + id
		fallthrough
	case 8:
		short, err := uuid.Parse(id + bluetoothBaseUUID.String()[8:])
		if err != nil {
			return "", false
		}
		return short.String(), true
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// shortUUID16 returns the 16-bit alias of id when id sits on the Bluetooth
// base UUID, which lets it travel in a 2-byte advertising field.
func shortUUID16(id string) (uint16, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return 0, false
	}
	for i := 4; i < 16; i++ {
		if parsed[i] != bluetoothBaseUUID[i] {
			return 0, false
		}
	}
	if parsed[0] != 0 || parsed[1] != 0 {
		return 0, false
	}
	return uint16(parsed[2])<<8 | uint16(parsed[3]), true
}

// uuidBytesLE returns id in the little-endian byte order used on air.
func uuidBytesLE(id string) ([]byte, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(parsed))
	for i := range parsed {
		out[i] = parsed[len(parsed)-1-i]
	}
	return out, true
}
