package bluetooth

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
)

// BluezPlatform implements Platform against bluetoothd over the system bus.
type BluezPlatform struct {
	mu          sync.Mutex
	conn        *dbus.Conn
	adapter     string
	adapterPath dbus.ObjectPath
	adverts     map[Handle]*bluezAdvertisement
	scans       map[Handle]*bluezScan
	seq         uint64
}

// NewBluezPlatform binds to the named adapter (for example "hci0") on conn.
func NewBluezPlatform(conn *dbus.Conn, adapter string) *BluezPlatform {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return &BluezPlatform{
		conn:        conn,
		adapter:     adapter,
		adapterPath: dbus.ObjectPath(BLUEZ_OBJECT_PATH + "/" + adapter),
		adverts:     make(map[Handle]*bluezAdvertisement),
		scans:       make(map[Handle]*bluezScan),
	}
}

// CheckAdapter verifies the adapter exists and powers it on if needed.
func (p *BluezPlatform) CheckAdapter() error {
	adapter := p.conn.Object(BLUEZ_BUS_NAME, p.adapterPath)

	powered, err := adapter.GetProperty(BLUEZ_ADAPTER_INTERFACE + ".Powered")
	if err != nil {
		return fmt.Errorf("adapter %s not available: %w", p.adapter, err)
	}

	if on, ok := powered.Value().(bool); ok && on {
		log.Printf("BLUEZ: Adapter %s is powered", p.adapter)
		return nil
	}

	log.Printf("BLUEZ: Adapter %s is powered off, powering on...", p.adapter)
	if err := adapter.SetProperty(BLUEZ_ADAPTER_INTERFACE+".Powered", dbus.MakeVariant(true)); err != nil {
		return fmt.Errorf("failed to power on adapter %s: %w", p.adapter, err)
	}
	return nil
}

// Close ends every advertisement and scan still registered.
func (p *BluezPlatform) Close() {
	p.mu.Lock()
	adverts := make([]Handle, 0, len(p.adverts))
	for h := range p.adverts {
		adverts = append(adverts, h)
	}
	scans := make([]Handle, 0, len(p.scans))
	for h := range p.scans {
		scans = append(scans, h)
	}
	p.mu.Unlock()

	for _, h := range adverts {
		if err := p.EndAdvertising(h); err != nil {
			log.Printf("BLUEZ: Failed to end advertisement %s: %v", h, err)
		}
	}
	for _, h := range scans {
		if err := p.EndScan(h); err != nil {
			log.Printf("BLUEZ: Failed to end scan %s: %v", h, err)
		}
	}
}

func (p *BluezPlatform) nextHandle(prefix string) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return Handle(fmt.Sprintf("%s%d", prefix, p.seq))
}

// dbusErrorName extracts the D-Bus error name from err, if any.
func dbusErrorName(err error) string {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr != nil {
		return dbusErrPtr.Name
	}
	return ""
}

// advertiseErrorKind maps a bluetoothd error reply onto an AdvertiseErrorKind.
func advertiseErrorKind(err error) AdvertiseErrorKind {
	switch dbusErrorName(err) {
	case "org.bluez.Error.AlreadyExists":
		return AlreadyStarted
	case "org.bluez.Error.InvalidLength":
		return PayloadTooLarge
	case "org.bluez.Error.NotSupported",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface":
		return FeatureUnsupported
	case "org.bluez.Error.NotPermitted":
		// bluetoothd reports "Maximum advertisements reached" this way.
		return TooManyAdvertisers
	default:
		return InternalError
	}
}

// scanErrorCode maps a bluetoothd discovery error onto a scan failure code.
func scanErrorCode(err error) int {
	switch dbusErrorName(err) {
	case "org.bluez.Error.InProgress":
		return ScanFailedAlreadyStarted
	case "org.bluez.Error.NotSupported":
		return ScanFailedFeatureUnsupported
	case "org.bluez.Error.NotAuthorized":
		return ScanFailedApplicationRegistration
	default:
		return ScanFailedInternalError
	}
}
