package bluetooth

import (
	"encoding/binary"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// AD structure types used when rebuilding a raw advertising payload.
const (
	adTypeServiceData16  = 0x16
	adTypeServiceData128 = 0x21
	adTypeManufacturer   = 0xFF
)

// bluezScan is one running discovery session.
type bluezScan struct {
	filters []ScanFilter
	events  ScanEvents
	signals chan *dbus.Signal
	matches [][]dbus.MatchOption
	stop    chan struct{}
	done    chan struct{}
}

// BeginScan starts LE discovery and streams matching devices to events.
// Devices bluetoothd already saw during this discovery arrive as one batch.
func (p *BluezPlatform) BeginScan(filters []ScanFilter, settings ScanSettings, events ScanEvents) (Handle, error) {
	p.mu.Lock()
	running := len(p.scans)
	p.mu.Unlock()
	if running > 0 {
		return "", &ScanError{Code: ScanFailedAlreadyStarted, Cause: fmt.Errorf("a scan is already running on %s", p.adapter)}
	}

	adapter := p.conn.Object(BLUEZ_BUS_NAME, p.adapterPath)

	filter := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	var uuids []string
	for _, f := range filters {
		if f.ServiceUUID != "" {
			uuids = append(uuids, f.ServiceUUID)
		}
	}
	if len(uuids) > 0 {
		filter["UUIDs"] = dbus.MakeVariant(uuids)
	}
	if err := adapter.Call(BLUEZ_ADAPTER_INTERFACE+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		// Some adapters reject filters; results are filtered here as well.
		log.Printf("BLUEZ: Failed to set discovery filter: %v", err)
	}

	scan := &bluezScan{
		filters: filters,
		events:  events,
		signals: make(chan *dbus.Signal, 64),
		matches: [][]dbus.MatchOption{
			{
				dbus.WithMatchInterface(DBUS_OBJECT_MANAGER_INTERFACE),
				dbus.WithMatchMember("InterfacesAdded"),
			},
			{
				dbus.WithMatchInterface(DBUS_PROPERTIES_INTERFACE),
				dbus.WithMatchMember("PropertiesChanged"),
				dbus.WithMatchArg(0, BLUEZ_DEVICE_INTERFACE),
			},
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	for _, match := range scan.matches {
		if err := p.conn.AddMatchSignal(match...); err != nil {
			p.removeMatches(scan)
			return "", &ScanError{Code: ScanFailedApplicationRegistration, Cause: err}
		}
	}
	p.conn.Signal(scan.signals)

	handle := p.nextHandle("scan")
	p.mu.Lock()
	p.scans[handle] = scan
	p.mu.Unlock()

	log.Printf("BLUEZ: Starting discovery on %s", p.adapter)
	call := adapter.Go(BLUEZ_ADAPTER_INTERFACE+".StartDiscovery", 0, nil)
	go func() {
		<-call.Done
		if call.Err != nil {
			log.Printf("BLUEZ: StartDiscovery failed: %v", call.Err)
			if events.OnFailed != nil {
				events.OnFailed(scanErrorCode(call.Err), call.Err)
			}
		}
	}()

	go p.runScan(scan)

	return handle, nil
}

// EndScan stops discovery and the signal pump. Unknown handles are ignored.
func (p *BluezPlatform) EndScan(handle Handle) error {
	p.mu.Lock()
	scan, exists := p.scans[handle]
	delete(p.scans, handle)
	p.mu.Unlock()

	if !exists {
		return nil
	}

	close(scan.stop)
	<-scan.done
	p.conn.RemoveSignal(scan.signals)
	p.removeMatches(scan)

	adapter := p.conn.Object(BLUEZ_BUS_NAME, p.adapterPath)
	if err := adapter.Call(BLUEZ_ADAPTER_INTERFACE+".StopDiscovery", 0).Err; err != nil {
		if dbusErrorName(err) != "org.bluez.Error.Failed" {
			return fmt.Errorf("failed to stop discovery: %w", err)
		}
		// "No discovery started": StartDiscovery itself failed.
		log.Printf("BLUEZ: StopDiscovery: %v", err)
	}
	log.Printf("BLUEZ: Discovery stopped on %s", p.adapter)
	return nil
}

func (p *BluezPlatform) removeMatches(scan *bluezScan) {
	for _, match := range scan.matches {
		if err := p.conn.RemoveMatchSignal(match...); err != nil {
			log.Printf("BLUEZ: Failed to remove signal match: %v", err)
		}
	}
}

func (p *BluezPlatform) runScan(scan *bluezScan) {
	defer close(scan.done)

	if cached := p.cachedDevices(scan); len(cached) > 0 && scan.events.OnBatch != nil {
		scan.events.OnBatch(cached)
	}

	for {
		select {
		case <-scan.stop:
			return
		case sig, ok := <-scan.signals:
			if !ok {
				return
			}
			rec, matched := p.recordFromSignal(sig)
			if !matched || !matchesFilters(rec, scan.filters) {
				continue
			}
			if scan.events.OnResult != nil {
				scan.events.OnResult(rec)
			}
		}
	}
}

// cachedDevices returns devices under the adapter that currently carry an
// RSSI, which bluetoothd only keeps for devices seen in this discovery.
func (p *BluezPlatform) cachedDevices(scan *bluezScan) []PeerRecord {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	obj := p.conn.Object(BLUEZ_BUS_NAME, "/")
	if err := obj.Call(DBUS_OBJECT_MANAGER_INTERFACE+".GetManagedObjects", 0).Store(&objects); err != nil {
		log.Printf("BLUEZ: Failed to get managed objects: %v", err)
		return nil
	}

	paths := make([]string, 0, len(objects))
	for path := range objects {
		paths = append(paths, string(path))
	}
	sort.Strings(paths)

	now := time.Now()
	var out []PeerRecord
	for _, path := range paths {
		if !strings.HasPrefix(path, string(p.adapterPath)+"/dev_") {
			continue
		}
		props, hasDevice := objects[dbus.ObjectPath(path)][BLUEZ_DEVICE_INTERFACE]
		if !hasDevice {
			continue
		}
		if _, seen := props["RSSI"]; !seen {
			continue
		}
		rec := deviceRecord(props, now)
		if rec.Address != "" && matchesFilters(rec, scan.filters) {
			out = append(out, rec)
		}
	}
	return out
}

func (p *BluezPlatform) recordFromSignal(sig *dbus.Signal) (PeerRecord, bool) {
	switch sig.Name {
	case DBUS_OBJECT_MANAGER_INTERFACE + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return PeerRecord{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !strings.HasPrefix(string(path), string(p.adapterPath)+"/dev_") {
			return PeerRecord{}, false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return PeerRecord{}, false
		}
		props, hasDevice := ifaces[BLUEZ_DEVICE_INTERFACE]
		if !hasDevice {
			return PeerRecord{}, false
		}
		rec := deviceRecord(props, time.Now())
		return rec, rec.Address != ""

	case DBUS_PROPERTIES_INTERFACE + ".PropertiesChanged":
		if !strings.HasPrefix(string(sig.Path), string(p.adapterPath)+"/dev_") || len(sig.Body) < 2 {
			return PeerRecord{}, false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok || !isAdvertisementUpdate(changed) {
			return PeerRecord{}, false
		}
		var props map[string]dbus.Variant
		device := p.conn.Object(BLUEZ_BUS_NAME, sig.Path)
		if err := device.Call(DBUS_PROPERTIES_INTERFACE+".GetAll", 0, BLUEZ_DEVICE_INTERFACE).Store(&props); err != nil {
			log.Printf("BLUEZ: Failed to read device %s: %v", sig.Path, err)
			return PeerRecord{}, false
		}
		rec := deviceRecord(props, time.Now())
		return rec, rec.Address != ""
	}
	return PeerRecord{}, false
}

// isAdvertisementUpdate reports whether a property change reflects a fresh
// advertising report rather than, say, a connection state change.
func isAdvertisementUpdate(changed map[string]dbus.Variant) bool {
	for _, key := range []string{"RSSI", "ManufacturerData", "ServiceData", "Name", "UUIDs"} {
		if _, ok := changed[key]; ok {
			return true
		}
	}
	return false
}

func matchesFilters(rec PeerRecord, filters []ScanFilter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.ServiceUUID == "" {
			return true
		}
		for _, id := range rec.ServiceUUIDs {
			if strings.EqualFold(id, f.ServiceUUID) {
				return true
			}
		}
	}
	return false
}

// deviceRecord builds a PeerRecord from org.bluez.Device1 properties.
func deviceRecord(props map[string]dbus.Variant, seen time.Time) PeerRecord {
	rec := PeerRecord{LastSeen: seen}

	if v, ok := props["Address"]; ok {
		rec.Address, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		rec.Name, _ = v.Value().(string)
	}
	if v, ok := props["RSSI"]; ok {
		rec.RSSI, _ = v.Value().(int16)
	}
	if v, ok := props["UUIDs"]; ok {
		rec.ServiceUUIDs, _ = v.Value().([]string)
	}

	var manufacturer map[uint16]dbus.Variant
	if v, ok := props["ManufacturerData"]; ok {
		manufacturer, _ = v.Value().(map[uint16]dbus.Variant)
	}
	var service map[string]dbus.Variant
	if v, ok := props["ServiceData"]; ok {
		service, _ = v.Value().(map[string]dbus.Variant)
	}
	rec.RawPayload = encodeAdvertisingPayload(manufacturer, service)

	return rec
}

// encodeAdvertisingPayload rebuilds the data-bearing AD structures of an
// advertising report from the decoded maps bluetoothd exposes. Keys are
// emitted in sorted order so equal inputs give equal bytes.
func encodeAdvertisingPayload(manufacturer map[uint16]dbus.Variant, service map[string]dbus.Variant) []byte {
	var out []byte

	companies := make([]int, 0, len(manufacturer))
	for id := range manufacturer {
		companies = append(companies, int(id))
	}
	sort.Ints(companies)
	for _, id := range companies {
		data, _ := manufacturer[uint16(id)].Value().([]byte)
		field := binary.LittleEndian.AppendUint16([]byte{adTypeManufacturer}, uint16(id))
		out = appendADField(out, append(field, data...))
	}

	ids := make([]string, 0, len(service))
	for id := range service {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		data, _ := service[id].Value().([]byte)
		if short, ok := shortUUID16(id); ok {
			field := binary.LittleEndian.AppendUint16([]byte{adTypeServiceData16}, short)
			out = appendADField(out, append(field, data...))
			continue
		}
		raw, ok := uuidBytesLE(id)
		if !ok {
			continue
		}
		field := append([]byte{adTypeServiceData128}, raw...)
		out = appendADField(out, append(field, data...))
	}

	return out
}

// appendADField prefixes body (type byte + value) with its length.
func appendADField(out, body []byte) []byte {
	if len(body) > 255 {
		body = body[:255]
	}
	out = append(out, byte(len(body)))
	return append(out, body...)
}
