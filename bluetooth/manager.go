package bluetooth

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/usenocturne/blebeacon/utils"
)

// Manager owns the platform connection and both sessions, and mirrors
// session events to WebSocket clients.
type Manager struct {
	mu          sync.RWMutex
	conn        *dbus.Conn
	bluez       *BluezPlatform
	config      *Config
	advertiser  *AdvertiseSession
	scanner     *ScanSession
	broadcaster *utils.WebSocketBroadcaster
	isRunning   bool
	startedAt   time.Time
	unsubscribe []func()
}

// NewManager connects to the system bus and binds to config.Adapter.
func NewManager(config *Config, wsHub *utils.WebSocketHub) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}

	bluez := NewBluezPlatform(conn, config.Adapter)
	manager := NewManagerWithPlatform(bluez, config, wsHub)
	manager.conn = conn
	manager.bluez = bluez
	return manager, nil
}

// NewManagerWithPlatform builds a manager over an arbitrary platform.
func NewManagerWithPlatform(platform Platform, config *Config, wsHub *utils.WebSocketHub) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		config:      config,
		advertiser:  NewAdvertiseSession(platform, config),
		scanner:     NewScanSession(platform, config),
		broadcaster: utils.NewWebSocketBroadcaster(wsHub),
	}
}

// Start checks the adapter and subscribes to session events
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("manager already running")
	}

	log.Println("BT_MGR: Starting beacon manager")

	if m.bluez != nil {
		if err := m.bluez.CheckAdapter(); err != nil {
			return err
		}
	}

	m.unsubscribe = append(m.unsubscribe,
		m.advertiser.AddObserver(AdvertiseObserver{
			OnStateChanged: func(state AdvertiseState) {
				m.broadcaster.BroadcastAdvertiseState(state.String(), state == AdvertiseActive)
			},
			OnFailure: func(err *AdvertiseError) {
				details := ""
				if err.Cause != nil {
					details = err.Cause.Error()
				}
				m.broadcaster.BroadcastAdvertiseFailed(err.Kind.String(), int(err.Kind), err.Kind.Message(), details)
			},
		}),
		m.scanner.AddObserver(ScanObserver{
			OnStateChanged: func(state ScanState) {
				m.broadcaster.BroadcastScanState(state.String(), state == ScanActive)
			},
			OnFailure: func(err *ScanError) {
				m.broadcaster.BroadcastScanFailed(err.Code, fmt.Sprintf("Scan failed with error: %d", err.Code))
			},
			OnResultsUpdated: func(results []PeerSnapshot) {
				m.broadcaster.BroadcastScanResults(len(results), results)
			},
		}),
	)

	m.isRunning = true
	m.startedAt = time.Now()
	log.Println("BT_MGR: Beacon manager started successfully")
	return nil
}

// Stop ends both sessions and releases platform resources
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return
	}

	log.Println("BT_MGR: Stopping beacon manager")

	m.advertiser.Stop()
	m.scanner.Stop()

	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil

	if m.bluez != nil {
		m.bluez.Close()
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	m.isRunning = false
	log.Println("BT_MGR: Beacon manager stopped")
}

// Advertiser returns the advertise session
func (m *Manager) Advertiser() *AdvertiseSession {
	return m.advertiser
}

// Scanner returns the scan session
func (m *Manager) Scanner() *ScanSession {
	return m.scanner
}

// Config returns the active configuration
func (m *Manager) Config() *Config {
	return m.config
}

// IsRunning reports whether Start has succeeded and Stop has not been called.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// GetCurrentState returns the current state of the system
func (m *Manager) GetCurrentState() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := map[string]interface{}{
		"is_running":   m.isRunning,
		"adapter":      m.config.Adapter,
		"device_name":  m.config.DeviceName,
		"service_uuid": m.config.ServiceUUID,
		"advertise":    m.advertiser.Status(),
		"scan": map[string]interface{}{
			"state":    m.scanner.State().String(),
			"scanning": m.scanner.IsScanning(),
			"peers":    len(m.scanner.Results()),
		},
	}

	if m.isRunning {
		state["uptime_seconds"] = int64(time.Since(m.startedAt).Seconds())
	}

	return state
}
