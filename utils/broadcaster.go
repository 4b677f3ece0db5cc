package utils

import (
	"log"
	"time"
)

// Event types pushed to WebSocket clients.
const (
	EventAdvertiseStateChanged = "advertise/state_changed"
	EventAdvertiseFailed       = "advertise/failed"
	EventScanStateChanged      = "scan/state_changed"
	EventScanFailed            = "scan/failed"
	EventScanResultsUpdated    = "scan/results_updated"
)

// WebSocketBroadcaster provides high-level broadcasting functions for different event types
type WebSocketBroadcaster struct {
	wsHub *WebSocketHub
}

// NewWebSocketBroadcaster creates a new broadcaster instance. A nil hub makes
// every broadcast a no-op.
func NewWebSocketBroadcaster(wsHub *WebSocketHub) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{
		wsHub: wsHub,
	}
}

func (b *WebSocketBroadcaster) broadcast(eventType string, payload interface{}) {
	if b == nil || b.wsHub == nil {
		return
	}
	b.wsHub.Broadcast(WebSocketEvent{
		Type:    eventType,
		Payload: payload,
	})
}

// BroadcastAdvertiseState broadcasts an advertising state transition
func (b *WebSocketBroadcaster) BroadcastAdvertiseState(state string, advertising bool) {
	log.Printf("WS: Broadcasting advertise state: %s", state)

	b.broadcast(EventAdvertiseStateChanged, AdvertiseStatePayload{
		State:       state,
		Advertising: advertising,
		Timestamp:   time.Now().Unix(),
	})
}

// BroadcastAdvertiseFailed broadcasts an advertising failure or timeout
func (b *WebSocketBroadcaster) BroadcastAdvertiseFailed(kind string, code int, message, details string) {
	log.Printf("WS: Broadcasting advertise failure: %s", kind)

	b.broadcast(EventAdvertiseFailed, AdvertiseFailedPayload{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastScanState broadcasts a scan state transition
func (b *WebSocketBroadcaster) BroadcastScanState(state string, scanning bool) {
	log.Printf("WS: Broadcasting scan state: %s", state)

	b.broadcast(EventScanStateChanged, ScanStatePayload{
		State:     state,
		Scanning:  scanning,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastScanFailed broadcasts a scan failure code
func (b *WebSocketBroadcaster) BroadcastScanFailed(code int, message string) {
	log.Printf("WS: Broadcasting scan failure: %d", code)

	b.broadcast(EventScanFailed, ScanFailedPayload{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// BroadcastScanResults broadcasts the rendered result list
func (b *WebSocketBroadcaster) BroadcastScanResults(count int, results interface{}) {
	b.broadcast(EventScanResultsUpdated, ScanResultsPayload{
		Count:     count,
		Results:   results,
		Timestamp: time.Now().Unix(),
	})
}
