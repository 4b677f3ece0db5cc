package bluetooth

import (
	"errors"
	"log"
	"sync"
	"time"
)

// AdvertiseState is the lifecycle state of an AdvertiseSession.
type AdvertiseState int

const (
	AdvertiseIdle AdvertiseState = iota
	AdvertiseActive
)

func (s AdvertiseState) String() string {
	if s == AdvertiseActive {
		return "advertising"
	}
	return "idle"
}

// AdvertiseObserver receives session notifications. Nil fields are skipped.
type AdvertiseObserver struct {
	OnStateChanged func(state AdvertiseState)
	OnFailure      func(err *AdvertiseError)
}

// AdvertiseStatus is a read-only view of the session.
type AdvertiseStatus struct {
	State        string    `json:"state"`
	Advertising  bool      `json:"advertising"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	PayloadBytes int       `json:"payload_bytes"`
	LastFailure  string    `json:"last_failure,omitempty"`
}

// AdvertiseSession owns one outbound advertisement at a time and stops it
// after Config.AdvertiseTimeout.
type AdvertiseSession struct {
	mu        sync.Mutex
	platform  Advertiser
	config    *Config
	afterFunc AfterFunc
	now       func() time.Time

	state     AdvertiseState
	gen       uint64
	timer     Timer
	handle    Handle
	hasHandle bool
	startedAt time.Time
	lastError *AdvertiseError
	notify    notifyQueue

	observersMu    sync.Mutex
	observers      []advertiseObserverEntry
	nextObserverID int
}

type advertiseObserverEntry struct {
	id       int
	observer AdvertiseObserver
}

// NewAdvertiseSession creates an idle session backed by platform
func NewAdvertiseSession(platform Advertiser, config *Config) *AdvertiseSession {
	if config == nil {
		config = DefaultConfig()
	}
	return &AdvertiseSession{
		platform:  platform,
		config:    config,
		afterFunc: realAfterFunc,
		now:       time.Now,
	}
}

// AddObserver registers o and returns a function that unregisters it.
func (s *AdvertiseSession) AddObserver(o AdvertiseObserver) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	s.nextObserverID++
	id := s.nextObserverID
	s.observers = append(s.observers, advertiseObserverEntry{id: id, observer: o})

	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()
		for i, entry := range s.observers {
			if entry.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Settings returns the fixed low-power settings the beacon uses.
func (s *AdvertiseSession) Settings() AdvertiseSettings {
	return AdvertiseSettings{
		Mode:        AdvertiseModeLowPower,
		Connectable: true,
	}
}

// Data returns the beacon payload: the service UUID plus the device name.
func (s *AdvertiseSession) Data() AdvertiseData {
	return AdvertiseData{
		ServiceUUIDs:      []string{s.config.ServiceUUID},
		IncludeDeviceName: true,
		DeviceName:        s.config.DeviceName,
	}
}

// Start begins advertising. It returns false without touching the platform
// when the session is already advertising.
func (s *AdvertiseSession) Start() bool {
	s.mu.Lock()
	if s.state == AdvertiseActive {
		s.mu.Unlock()
		log.Println("ADV: Start requested but already advertising")
		return false
	}

	s.gen++
	gen := s.gen
	s.state = AdvertiseActive
	s.startedAt = s.now()
	s.lastError = nil
	s.timer = s.afterFunc(s.config.AdvertiseTimeout, func() {
		log.Printf("ADV: Reached timeout of %v, stopping advertising", s.config.AdvertiseTimeout)
		s.fail(gen, TimedOut, nil)
	})
	s.notify.push(func() { s.notifyState(AdvertiseActive) })
	s.mu.Unlock()

	s.notify.drain()

	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		// An observer stopped the session before the platform was asked.
		return true
	}

	settings, data := s.Settings(), s.Data()
	log.Printf("ADV: Starting advertising as %q (%d byte payload)", data.DeviceName, PayloadSize(settings, data))

	handle, err := s.platform.BeginAdvertising(settings, data, AdvertiseEvents{
		OnStarted: func() { s.started(gen) },
		OnFailed: func(kind AdvertiseErrorKind, cause error) {
			s.fail(gen, kind, cause)
		},
	})
	if err != nil {
		kind, cause := InternalError, err
		var advErr *AdvertiseError
		if errors.As(err, &advErr) {
			kind, cause = advErr.Kind, advErr.Cause
		}
		s.fail(gen, kind, cause)
		return true
	}

	s.mu.Lock()
	if s.gen != gen {
		// Stopped or failed while the platform call was in flight.
		s.mu.Unlock()
		s.release(handle)
		return true
	}
	s.handle = handle
	s.hasHandle = true
	s.mu.Unlock()

	return true
}

// Stop ends advertising. It returns false when the session was already idle.
func (s *AdvertiseSession) Stop() bool {
	s.mu.Lock()
	if s.state == AdvertiseIdle {
		s.mu.Unlock()
		return false
	}
	handle, held := s.resetLocked()
	s.notify.push(func() { s.notifyState(AdvertiseIdle) })
	s.mu.Unlock()

	log.Println("ADV: Stopping advertising")
	if held {
		s.release(handle)
	}
	s.notify.drain()
	return true
}

// State returns the current lifecycle state.
func (s *AdvertiseSession) State() AdvertiseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAdvertising reports whether the session is active.
func (s *AdvertiseSession) IsAdvertising() bool {
	return s.State() == AdvertiseActive
}

// Status returns a snapshot of the session for API consumers.
func (s *AdvertiseSession) Status() AdvertiseStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := AdvertiseStatus{
		State:        s.state.String(),
		Advertising:  s.state == AdvertiseActive,
		PayloadBytes: PayloadSize(s.Settings(), s.Data()),
	}
	if s.state == AdvertiseActive {
		status.StartedAt = s.startedAt
		status.ExpiresAt = s.startedAt.Add(s.config.AdvertiseTimeout)
	}
	if s.lastError != nil {
		status.LastFailure = s.lastError.Kind.String()
	}
	return status
}

func (s *AdvertiseSession) started(gen uint64) {
	s.mu.Lock()
	current := s.gen == gen && s.state == AdvertiseActive
	s.mu.Unlock()

	if current {
		log.Println("ADV: Advertising successfully started")
	}
}

// fail moves the session to Idle and reports err, unless gen is stale.
func (s *AdvertiseSession) fail(gen uint64, kind AdvertiseErrorKind, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state != AdvertiseActive {
		s.mu.Unlock()
		return
	}
	handle, held := s.resetLocked()
	advErr := &AdvertiseError{Kind: kind, Cause: cause}
	s.lastError = advErr
	s.notify.push(func() {
		s.notifyFailure(advErr)
		s.notifyState(AdvertiseIdle)
	})
	s.mu.Unlock()

	if cause != nil {
		log.Printf("ADV: %s: %v", kind.Message(), cause)
	} else {
		log.Printf("ADV: %s", kind.Message())
	}
	if held {
		s.release(handle)
	}
	s.notify.drain()
}

// resetLocked invalidates the current generation and returns the platform
// handle that must be released. Must be called with mu held.
func (s *AdvertiseSession) resetLocked() (Handle, bool) {
	s.gen++
	s.state = AdvertiseIdle
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	handle, held := s.handle, s.hasHandle
	s.handle = ""
	s.hasHandle = false
	return handle, held
}

func (s *AdvertiseSession) release(handle Handle) {
	if err := s.platform.EndAdvertising(handle); err != nil {
		log.Printf("ADV: Failed to release advertisement %s: %v", handle, err)
	}
}

func (s *AdvertiseSession) snapshotObservers() []AdvertiseObserver {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	out := make([]AdvertiseObserver, 0, len(s.observers))
	for _, entry := range s.observers {
		out = append(out, entry.observer)
	}
	return out
}

func (s *AdvertiseSession) notifyState(state AdvertiseState) {
	for _, o := range s.snapshotObservers() {
		if o.OnStateChanged != nil {
			o.OnStateChanged(state)
		}
	}
}

func (s *AdvertiseSession) notifyFailure(err *AdvertiseError) {
	for _, o := range s.snapshotObservers() {
		if o.OnFailure != nil {
			o.OnFailure(err)
		}
	}
}
