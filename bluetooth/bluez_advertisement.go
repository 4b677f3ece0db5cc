package bluetooth

import (
	"errors"
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// bluezAdvertisement is the org.bluez.LEAdvertisement1 object we export for
// bluetoothd to read the payload from.
type bluezAdvertisement struct {
	path      dbus.ObjectPath
	props     *prop.Properties
	onRelease func()
}

// Release is called by bluetoothd when it drops the advertisement on its own,
// for example when the adapter is powered off.
func (a *bluezAdvertisement) Release() *dbus.Error {
	log.Printf("BLUEZ: Advertisement %s released by bluetoothd", a.path)
	if a.onRelease != nil {
		go a.onRelease()
	}
	return nil
}

func advertisementProperties(settings AdvertiseSettings, data AdvertiseData) map[string]*prop.Prop {
	advType := "broadcast"
	if settings.Connectable {
		advType = "peripheral"
	}

	interval := uint32(settings.Mode.Interval().Milliseconds())
	props := map[string]*prop.Prop{
		"Type":         {Value: advType, Emit: prop.EmitFalse},
		"ServiceUUIDs": {Value: data.ServiceUUIDs, Emit: prop.EmitFalse},
		"MinInterval":  {Value: interval, Emit: prop.EmitFalse},
		"MaxInterval":  {Value: interval, Emit: prop.EmitFalse},
	}
	if data.IncludeDeviceName {
		props["LocalName"] = &prop.Prop{Value: data.DeviceName, Emit: prop.EmitFalse}
	}
	if settings.Timeout > 0 {
		props["Timeout"] = &prop.Prop{Value: uint16(settings.Timeout.Seconds()), Emit: prop.EmitFalse}
	}
	return props
}

// BeginAdvertising exports an advertisement object and asks bluetoothd to
// register it. Registration completes asynchronously through events.
func (p *BluezPlatform) BeginAdvertising(settings AdvertiseSettings, data AdvertiseData, events AdvertiseEvents) (Handle, error) {
	if size := PayloadSize(settings, data); size > MaxAdvertisingDataBytes {
		return "", &AdvertiseError{
			Kind:  PayloadTooLarge,
			Cause: fmt.Errorf("payload is %d bytes, limit is %d", size, MaxAdvertisingDataBytes),
		}
	}

	handle := p.nextHandle("adv")
	path := dbus.ObjectPath(fmt.Sprintf("%s/%s", BLUEZ_ADVERTISEMENT_PATH, handle))
	adv := &bluezAdvertisement{path: path}

	if err := p.exportAdvertisement(adv, settings, data); err != nil {
		return "", &AdvertiseError{Kind: InternalError, Cause: err}
	}

	adv.onRelease = func() {
		p.mu.Lock()
		_, registered := p.adverts[handle]
		p.mu.Unlock()
		if registered && events.OnFailed != nil {
			events.OnFailed(InternalError, errors.New("advertisement released by bluetoothd"))
		}
	}

	p.mu.Lock()
	p.adverts[handle] = adv
	p.mu.Unlock()

	log.Printf("BLUEZ: Registering advertisement %s on %s", path, p.adapter)
	manager := p.conn.Object(BLUEZ_BUS_NAME, p.adapterPath)
	call := manager.Go(BLUEZ_ADV_MANAGER_INTERFACE+".RegisterAdvertisement", 0, nil, path, map[string]dbus.Variant{})

	go func() {
		<-call.Done
		if call.Err != nil {
			log.Printf("BLUEZ: RegisterAdvertisement failed: %v", call.Err)
			if events.OnFailed != nil {
				events.OnFailed(advertiseErrorKind(call.Err), call.Err)
			}
			return
		}
		if events.OnStarted != nil {
			events.OnStarted()
		}
	}()

	return handle, nil
}

// EndAdvertising unregisters and unexports the advertisement. Unknown
// handles are ignored.
func (p *BluezPlatform) EndAdvertising(handle Handle) error {
	p.mu.Lock()
	adv, exists := p.adverts[handle]
	delete(p.adverts, handle)
	p.mu.Unlock()

	if !exists {
		return nil
	}

	manager := p.conn.Object(BLUEZ_BUS_NAME, p.adapterPath)
	err := manager.Call(BLUEZ_ADV_MANAGER_INTERFACE+".UnregisterAdvertisement", 0, adv.path).Err
	if err != nil && dbusErrorName(err) == "org.bluez.Error.DoesNotExist" {
		// Registration failed or bluetoothd already released it.
		err = nil
	}

	p.unexportAdvertisement(adv)

	if err != nil {
		return fmt.Errorf("failed to unregister advertisement: %w", err)
	}
	log.Printf("BLUEZ: Advertisement %s unregistered", adv.path)
	return nil
}

func (p *BluezPlatform) exportAdvertisement(adv *bluezAdvertisement, settings AdvertiseSettings, data AdvertiseData) error {
	return exportAll(func() { p.unexportAdvertisement(adv) },
		func() error {
			if err := p.conn.Export(adv, adv.path, BLUEZ_ADVERTISEMENT_INTERFACE); err != nil {
				return fmt.Errorf("failed to export advertisement: %w", err)
			}
			return nil
		},
		func() error {
			props, err := prop.Export(p.conn, adv.path, prop.Map{
				BLUEZ_ADVERTISEMENT_INTERFACE: advertisementProperties(settings, data),
			})
			if err != nil {
				return fmt.Errorf("failed to export advertisement properties: %w", err)
			}
			adv.props = props
			return nil
		},
		func() error {
			node := &introspect.Node{
				Name: string(adv.path),
				Interfaces: []introspect.Interface{
					introspect.IntrospectData,
					prop.IntrospectData,
					{
						Name:       BLUEZ_ADVERTISEMENT_INTERFACE,
						Methods:    introspect.Methods(adv),
						Properties: adv.props.Introspection(BLUEZ_ADVERTISEMENT_INTERFACE),
					},
				},
			}
			if err := p.conn.Export(introspect.NewIntrospectable(node), adv.path, "org.freedesktop.DBus.Introspectable"); err != nil {
				return fmt.Errorf("failed to export introspection: %w", err)
			}
			return nil
		},
	)
}

// exportAll runs steps in order and stops at the first error, calling undo
// so nothing half-exported is left on the bus.
func exportAll(undo func(), steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			undo()
			return err
		}
	}
	return nil
}

func (p *BluezPlatform) unexportAdvertisement(adv *bluezAdvertisement) {
	p.conn.Export(nil, adv.path, BLUEZ_ADVERTISEMENT_INTERFACE)
	p.conn.Export(nil, adv.path, DBUS_PROPERTIES_INTERFACE)
	p.conn.Export(nil, adv.path, "org.freedesktop.DBus.Introspectable")
}
