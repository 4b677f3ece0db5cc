package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/usenocturne/blebeacon/bluetooth"
	"github.com/usenocturne/blebeacon/utils"
)

const (
	unknownAttributeLabel = "Unknown attribute"
	unknownServiceLabel   = "Unknown service"
)

// Server is the HTTP front end for the beacon sessions
type Server struct {
	manager  *bluetooth.Manager
	wsHub    *utils.WebSocketHub
	upgrader websocket.Upgrader
	server   *http.Server
	limiter  *RateLimiter
}

// NewServer creates a new server instance
func NewServer(manager *bluetooth.Manager, wsHub *utils.WebSocketHub, rateLimit *RateLimitConfig) *Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // UI is served from the device itself
		},
	}

	return &Server{
		manager:  manager,
		wsHub:    wsHub,
		upgrader: upgrader,
		limiter:  NewRateLimiter(rateLimit),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.methodHandler("GET", s.handleStatus))
	mux.HandleFunc("/api/health", s.methodHandler("GET", s.handleHealth))

	// Advertising
	mux.HandleFunc("/api/advertise/start", s.methodHandler("POST", s.rateLimited(s.handleAdvertiseStart)))
	mux.HandleFunc("/api/advertise/stop", s.methodHandler("POST", s.rateLimited(s.handleAdvertiseStop)))
	mux.HandleFunc("/api/advertise/status", s.methodHandler("GET", s.handleAdvertiseStatus))

	// Scanning
	mux.HandleFunc("/api/scan/start", s.methodHandler("POST", s.rateLimited(s.handleScanStart)))
	mux.HandleFunc("/api/scan/stop", s.methodHandler("POST", s.rateLimited(s.handleScanStop)))
	mux.HandleFunc("/api/scan/results", s.methodHandler("GET", s.handleScanResults))

	// GATT attribute names
	mux.HandleFunc("/api/gatt/attributes", s.methodHandler("GET", s.handleAttributes))
	mux.HandleFunc("/api/gatt/lookup", s.methodHandler("GET", s.handleAttributeLookup))

	handler := loggingMiddleware(corsMiddleware(mux))

	// WebSocket stays outside the middleware so the upgrade sees the raw writer.
	mainMux := http.NewServeMux()
	mainMux.HandleFunc("/ws", s.handleWebSocket)
	mainMux.Handle("/", handler)
	return mainMux
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("HTTP_SRV: Starting HTTP server on port %d", port)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().Unix(),
		"status":    "running",
		"system":    s.manager.GetCurrentState(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"checks": map[string]interface{}{
			"bluetooth_manager": s.manager != nil && s.manager.IsRunning(),
			"websocket_hub":     s.wsHub != nil,
		},
	})
}

func (s *Server) handleAdvertiseStart(w http.ResponseWriter, r *http.Request) {
	status := "started"
	if !s.manager.Advertiser().Start() {
		status = "already_advertising"
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"advertise": s.manager.Advertiser().Status(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleAdvertiseStop(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if !s.manager.Advertiser().Stop() {
		status = "not_advertising"
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"advertise": s.manager.Advertiser().Status(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleAdvertiseStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.manager.Advertiser().Status())
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	status := "started"
	if !s.manager.Scanner().Start() {
		status = "already_scanning"
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"scan_period": s.manager.Config().ScanPeriod.String(),
		"timestamp":   time.Now().Unix(),
	})
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if !s.manager.Scanner().Stop() {
		status = "not_scanning"
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// peerResponse decorates a scan result with names for its advertised services
type peerResponse struct {
	bluetooth.PeerSnapshot
	Services []bluetooth.AttributeEntry `json:"services,omitempty"`
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	scanner := s.manager.Scanner()
	snapshot := scanner.Results()

	peers := make([]peerResponse, 0, len(snapshot))
	for _, peer := range snapshot {
		resp := peerResponse{PeerSnapshot: peer}
		for _, id := range peer.ServiceUUIDs {
			resp.Services = append(resp.Services, bluetooth.AttributeEntry{
				UUID:  id,
				Label: bluetooth.LookupAttribute(id, unknownServiceLabel),
			})
		}
		peers = append(peers, resp)
	}

	response := map[string]interface{}{
		"state":     scanner.State().String(),
		"scanning":  scanner.IsScanning(),
		"count":     len(peers),
		"results":   peers,
		"timestamp": time.Now().Unix(),
	}
	if scanErr := scanner.LastError(); scanErr != nil {
		response["last_error"] = scanErr.Code
	}

	writeJSONResponse(w, http.StatusOK, response)
}

func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"attributes": bluetooth.AttributeEntries(),
	})
}

func (s *Server) handleAttributeLookup(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("uuid")
	if id == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Missing uuid parameter", nil)
		return
	}

	defaultLabel := r.URL.Query().Get("default")
	if defaultLabel == "" {
		defaultLabel = unknownAttributeLabel
	}

	writeJSONResponse(w, http.StatusOK, bluetooth.AttributeEntry{
		UUID:  id,
		Label: bluetooth.LookupAttribute(id, defaultLabel),
	})
}

// handleWebSocket registers the client with the hub and keeps it alive
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Printf("HTTP_SRV: WebSocket connection attempt from %s", r.RemoteAddr)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("HTTP_SRV: WebSocket upgrade failed: %v", err)
		return
	}

	s.wsHub.AddClient(conn)
	defer func() {
		log.Printf("HTTP_SRV: WebSocket connection closed with %s", r.RemoteAddr)
		s.wsHub.RemoveClient(conn)
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("HTTP_SRV: WebSocket error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := s.wsHub.Ping(conn); err != nil {
				log.Printf("HTTP_SRV: WebSocket ping failed: %v", err)
				return
			}
		}
	}
}

// responseRecorder wraps http.ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// methodHandler creates a handler that only accepts specific HTTP methods
func (s *Server) methodHandler(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
			return
		}
		handler(w, r)
	}
}

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().Unix(),
	}

	if err != nil {
		response["details"] = err.Error()
		log.Printf("API Error: %s - %v", message, err)
	}

	writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.statusCode, time.Since(start))
	})
}
