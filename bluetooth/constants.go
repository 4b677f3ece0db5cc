package bluetooth

import "time"

const (
	BLUEZ_BUS_NAME                = "org.bluez"
	BLUEZ_ADAPTER_INTERFACE       = "org.bluez.Adapter1"
	BLUEZ_DEVICE_INTERFACE        = "org.bluez.Device1"
	BLUEZ_ADV_MANAGER_INTERFACE   = "org.bluez.LEAdvertisingManager1"
	BLUEZ_ADVERTISEMENT_INTERFACE = "org.bluez.LEAdvertisement1"
	BLUEZ_OBJECT_PATH             = "/org/bluez"
	BLUEZ_ADVERTISEMENT_PATH      = "/org/bluez/blebeacon/advertisement"

	DBUS_OBJECT_MANAGER_INTERFACE = "org.freedesktop.DBus.ObjectManager"
	DBUS_PROPERTIES_INTERFACE     = "org.freedesktop.DBus.Properties"
)

// Beacon identity shared by the advertiser and the scan filter.
const (
	BeaconServiceUUID = "0000b81d-0000-1000-8000-00805f9b34fb"
	DefaultDeviceName = "blebeacon"
	DefaultAdapter    = "hci0"
)

const (
	DefaultAdvertiseTimeout = 10 * time.Minute
	DefaultScanPeriod       = 5 * time.Second

	// MaxAdvertisingDataBytes is the legacy advertising PDU payload limit.
	MaxAdvertisingDataBytes = 31
)
