package bluetooth

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ScanState is the lifecycle state of a ScanSession.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanActive
)

func (s ScanState) String() string {
	if s == ScanActive {
		return "scanning"
	}
	return "idle"
}

// ScanObserver receives session notifications. Nil fields are skipped.
type ScanObserver struct {
	OnStateChanged   func(state ScanState)
	OnFailure        func(err *ScanError)
	OnResultsUpdated func(results []PeerSnapshot)
}

// ScanSession runs one time-boxed scan at a time and owns the result store.
//
// A scan failure is reported to observers but leaves the session scanning
// until its timer or an explicit Stop ends it.
type ScanSession struct {
	mu        sync.Mutex
	platform  Scanner
	config    *Config
	afterFunc AfterFunc
	now       func() time.Time

	state     ScanState
	gen       uint64
	timer     Timer
	handle    Handle
	hasHandle bool
	store     *ScanResultStore
	lastError *ScanError
	notify    notifyQueue
	// released is closed once the previous scan's platform handle has been
	// ended. Nil when nothing is being released.
	released chan struct{}

	observersMu    sync.Mutex
	observers      []scanObserverEntry
	nextObserverID int
}

type scanObserverEntry struct {
	id       int
	observer ScanObserver
}

// NewScanSession creates an idle session backed by platform
func NewScanSession(platform Scanner, config *Config) *ScanSession {
	if config == nil {
		config = DefaultConfig()
	}
	return &ScanSession{
		platform:  platform,
		config:    config,
		afterFunc: realAfterFunc,
		now:       time.Now,
		store:     NewScanResultStore(),
	}
}

// AddObserver registers o and returns a function that unregisters it.
func (s *ScanSession) AddObserver(o ScanObserver) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	s.nextObserverID++
	id := s.nextObserverID
	s.observers = append(s.observers, scanObserverEntry{id: id, observer: o})

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

// Filters returns the scan filters for the configured service.
func (s *ScanSession) Filters() []ScanFilter {
	if s.config.ScanAll {
		return nil
	}
	return []ScanFilter{{ServiceUUID: s.config.ServiceUUID}}
}

// Start clears previous results and scans for Config.ScanPeriod. It returns
// false when a scan is already running.
func (s *ScanSession) Start() bool {
	s.mu.Lock()
	if s.state == ScanActive {
		s.mu.Unlock()
		log.Println("SCAN: Already scanning")
		return false
	}

	s.gen++
	gen := s.gen
	s.state = ScanActive
	s.lastError = nil
	s.store.Clear()
	s.timer = s.afterFunc(s.config.ScanPeriod, func() {
		s.stop(gen, false)
	})
	s.notify.push(func() { s.notifyState(ScanActive) })
	released := s.released
	s.mu.Unlock()

	log.Printf("SCAN: Scanning for %v", s.config.ScanPeriod)
	s.notify.drain()

	// The platform allows one scan per adapter; wait for the previous one to end.
	if released != nil {
		<-released
	}

	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return true
	}

	handle, err := s.platform.BeginScan(s.Filters(), ScanSettings{Mode: ScanModeLowPower}, ScanEvents{
		OnResult: func(rec PeerRecord) { s.applyResults(gen, rec) },
		OnBatch:  func(recs []PeerRecord) { s.applyResults(gen, recs...) },
		OnFailed: func(code int, cause error) { s.reportFailure(gen, code, cause) },
	})
	if err != nil {
		code, cause := ScanFailedInternalError, err
		var scanErr *ScanError
		if errors.As(err, &scanErr) {
			code, cause = scanErr.Code, scanErr.Cause
		}
		s.reportFailure(gen, code, cause)
		return true
	}

	s.mu.Lock()
	if s.gen != gen {
		released := s.beginReleaseLocked()
		s.mu.Unlock()
		s.finishRelease(handle, released)
		return true
	}
	s.handle = handle
	s.hasHandle = true
	s.mu.Unlock()

	return true
}

// Stop ends the scan and publishes one final results refresh so recency
// text is current. It returns false when the session was already idle.
func (s *ScanSession) Stop() bool {
	return s.stop(0, true)
}

func (s *ScanSession) stop(gen uint64, explicit bool) bool {
	s.mu.Lock()
	if s.state == ScanIdle || (!explicit && s.gen != gen) {
		s.mu.Unlock()
		return false
	}

	s.gen++
	s.state = ScanIdle
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	handle, held := s.handle, s.hasHandle
	s.handle = ""
	s.hasHandle = false
	var released chan struct{}
	if held {
		released = s.beginReleaseLocked()
	}
	results := s.store.Snapshot(s.now())
	s.notify.push(func() {
		s.notifyState(ScanIdle)
		s.notifyResults(results)
	})
	s.mu.Unlock()

	log.Printf("SCAN: Stopping scan (%d peers)", len(results))
	if held {
		s.finishRelease(handle, released)
	}
	s.notify.drain()
	return true
}

// applyResults is the single path for both per-result and batched delivery.
// Later records for the same address within a batch replace earlier ones.
func (s *ScanSession) applyResults(gen uint64, recs ...PeerRecord) {
	s.mu.Lock()
	if s.gen != gen || s.state != ScanActive {
		s.mu.Unlock()
		return
	}
	now := s.now()
	for _, rec := range recs {
		if rec.Address == "" {
			continue
		}
		if rec.LastSeen.IsZero() {
			rec.LastSeen = now
		}
		s.store.Upsert(rec)
	}
	results := s.store.Snapshot(now)
	s.notify.push(func() { s.notifyResults(results) })
	s.mu.Unlock()

	s.notify.drain()
}

func (s *ScanSession) reportFailure(gen uint64, code int, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state != ScanActive {
		s.mu.Unlock()
		return
	}
	scanErr := &ScanError{Code: code, Cause: cause}
	s.lastError = scanErr
	s.notify.push(func() { s.notifyFailure(scanErr) })
	s.mu.Unlock()

	log.Printf("SCAN: %v", scanErr)
	s.notify.drain()
}

// beginReleaseLocked marks a platform scan as ending so the next Start waits
// for it. Must be called with mu held.
func (s *ScanSession) beginReleaseLocked() chan struct{} {
	released := make(chan struct{})
	s.released = released
	return released
}

func (s *ScanSession) finishRelease(handle Handle, released chan struct{}) {
	s.release(handle)

	s.mu.Lock()
	if s.released == released {
		s.released = nil
	}
	s.mu.Unlock()
	close(released)
}

func (s *ScanSession) release(handle Handle) {
	if err := s.platform.EndScan(handle); err != nil {
		log.Printf("SCAN: Failed to end scan %s: %v", handle, err)
	}
}

// State returns the current lifecycle state.
func (s *ScanSession) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsScanning reports whether a scan is running.
func (s *ScanSession) IsScanning() bool {
	return s.State() == ScanActive
}

// Results renders the current store contents.
func (s *ScanSession) Results() []PeerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot(s.now())
}

// LastError returns the most recent failure of the current or last scan.
func (s *ScanSession) LastError() *ScanError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *ScanSession) snapshotObservers() []ScanObserver {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	out := make([]ScanObserver, 0, len(s.observers))
	for _, entry := range s.observers {
		out = append(out, entry.observer)
	}
	return out
}

func (s *ScanSession) notifyState(state ScanState) {
	for _, o := range s.snapshotObservers() {
		if o.OnStateChanged != nil {
			o.OnStateChanged(state)
		}
	}
}

func (s *ScanSession) notifyFailure(err *ScanError) {
	for _, o := range s.snapshotObservers() {
		if o.OnFailure != nil {
			o.OnFailure(err)
		}
	}
}

func (s *ScanSession) notifyResults(results []PeerSnapshot) {
	for _, o := range s.snapshotObservers() {
		if o.OnResultsUpdated != nil {
			o.OnResultsUpdated(results)
		}
	}
}
