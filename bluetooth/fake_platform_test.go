package bluetooth

import (
	"fmt"
	"sync"
	"time"
)

// fakeTimer records its callback so tests can fire it on demand.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// Fire runs the callback even when the timer was stopped, which models a
// timer that had already fired when Stop raced with it.
func (t *fakeTimer) Fire() {
	t.f()
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type fakePlatform struct {
	mu  sync.Mutex
	seq int

	advBegins   int
	advEnds     []Handle
	advSettings AdvertiseSettings
	advData     AdvertiseData
	advEvents   AdvertiseEvents
	advErr      error

	scanBegins  int
	scanEnds    []Handle
	scanFilters []ScanFilter
	scanEvents  ScanEvents
	scanErr     error

	// endScanGate, when set, holds EndScan open until it is closed.
	endScanGate chan struct{}
	ending      int
	overlapped  bool
}

func (p *fakePlatform) BeginAdvertising(settings AdvertiseSettings, data AdvertiseData, events AdvertiseEvents) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advBegins++
	p.advSettings = settings
	p.advData = data
	p.advEvents = events
	if p.advErr != nil {
		return "", p.advErr
	}
	p.seq++
	return Handle(fmt.Sprintf("adv%d", p.seq)), nil
}

func (p *fakePlatform) EndAdvertising(handle Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advEnds = append(p.advEnds, handle)
	return nil
}

func (p *fakePlatform) BeginScan(filters []ScanFilter, settings ScanSettings, events ScanEvents) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanBegins++
	if p.ending > 0 {
		p.overlapped = true
	}
	p.scanFilters = filters
	p.scanEvents = events
	if p.scanErr != nil {
		return "", p.scanErr
	}
	p.seq++
	return Handle(fmt.Sprintf("scan%d", p.seq)), nil
}

func (p *fakePlatform) EndScan(handle Handle) error {
	p.mu.Lock()
	p.scanEnds = append(p.scanEnds, handle)
	p.ending++
	gate := p.endScanGate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	p.ending--
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) scanStats() (begins int, ending int, overlapped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanBegins, p.ending, p.overlapped
}

func (p *fakePlatform) advertiseEvents() AdvertiseEvents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advEvents
}

func (p *fakePlatform) scanCallbacks() ScanEvents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanEvents
}

func newTestAdvertiseSession(platform *fakePlatform) (*AdvertiseSession, *fakeScheduler) {
	sched := &fakeScheduler{}
	session := NewAdvertiseSession(platform, DefaultConfig())
	session.afterFunc = sched.AfterFunc
	return session, sched
}

func newTestScanSession(platform *fakePlatform, now time.Time) (*ScanSession, *fakeScheduler) {
	sched := &fakeScheduler{}
	session := NewScanSession(platform, DefaultConfig())
	session.afterFunc = sched.AfterFunc
	session.now = func() time.Time { return now }
	return session, sched
}
