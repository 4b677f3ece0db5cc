package utils

// WebSocket
type WebSocketEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Advertising
type AdvertiseStatePayload struct {
	State       string `json:"state"`
	Advertising bool   `json:"advertising"`
	Timestamp   int64  `json:"timestamp"`
}

type AdvertiseFailedPayload struct {
	Kind      string `json:"kind"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Scanning
type ScanStatePayload struct {
	State     string `json:"state"`
	Scanning  bool   `json:"scanning"`
	Timestamp int64  `json:"timestamp"`
}

type ScanFailedPayload struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type ScanResultsPayload struct {
	Count     int         `json:"count"`
	Results   interface{} `json:"results"`
	Timestamp int64       `json:"timestamp"`
}
