package main

import (
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/usenocturne/blebeacon/bluetooth"
	"github.com/usenocturne/blebeacon/server"
	"github.com/usenocturne/blebeacon/utils"
)

func main() {
	defaults := bluetooth.DefaultConfig()

	var (
		port             = flag.Int("port", 5000, "HTTP server port")
		logFile          = flag.String("log", "", "Log file path (default: /var/blebeacon/blebeacon.log)")
		debug            = flag.Bool("debug", false, "Enable debug logging")
		adapter          = flag.String("adapter", defaults.Adapter, "BlueZ adapter name")
		deviceName       = flag.String("device-name", defaults.DeviceName, "Local name included in the advertisement")
		advertiseTimeout = flag.Duration("advertise-timeout", defaults.AdvertiseTimeout, "Stop advertising after this long")
		scanPeriod       = flag.Duration("scan-period", defaults.ScanPeriod, "Stop scanning after this long")
		scanAll          = flag.Bool("scan-all", false, "List every nearby peer instead of only beacon peers")
		rateLimitRPS     = flag.Int("rate-limit-rps", 10, "Start/stop requests allowed per second")
		rateLimitBurst   = flag.Int("rate-limit-burst", 5, "Start/stop request burst size")
	)
	flag.Parse()

	logDir := "/var/blebeacon"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("Warning: Could not create log directory %s: %v", logDir, err)
	}

	logPath := *logFile
	if logPath == "" {
		logPath = filepath.Join(logDir, "blebeacon.log")
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Warning: Could not open log file: %v", err)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
		defer file.Close()
		log.Printf("Logging to %s", logPath)
	}
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	config := &bluetooth.Config{
		Adapter:          *adapter,
		DeviceName:       *deviceName,
		ServiceUUID:      defaults.ServiceUUID,
		AdvertiseTimeout: *advertiseTimeout,
		ScanPeriod:       *scanPeriod,
		ScanAll:          *scanAll,
	}

	log.Println("========================================")
	log.Println("Starting BLE Beacon Service")
	log.Println("========================================")
	log.Printf("Configuration:")
	log.Printf("  Port: %d", *port)
	log.Printf("  Debug: %v", *debug)
	log.Printf("  Adapter: %s", config.Adapter)
	log.Printf("  Device name: %s", config.DeviceName)
	log.Printf("  Service UUID: %s", config.ServiceUUID)
	log.Printf("  Advertise timeout: %v", config.AdvertiseTimeout)
	log.Printf("  Scan period: %v (all peers: %v)", config.ScanPeriod, config.ScanAll)
	log.Printf("  Rate limiting: %d RPS, burst: %d", *rateLimitRPS, *rateLimitBurst)

	wsHub := utils.NewWebSocketHub()

	manager, err := bluetooth.NewManager(config, wsHub)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start manager: %v", err)
	}

	httpServer := server.NewServer(manager, wsHub, &server.RateLimitConfig{
		MaxRequestsPerSecond: *rateLimitRPS,
		BurstSize:            *rateLimitBurst,
	})

	go func() {
		if err := httpServer.Start(*port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	log.Printf("API endpoints available at: http://localhost:%d/api/", *port)
	log.Printf("WebSocket endpoint available at: ws://localhost:%d/ws", *port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("BLE Beacon Service is running")

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := httpServer.Stop(); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}
	manager.Stop()

	log.Println("========================================")
	log.Println("BLE Beacon Service stopped gracefully")
	log.Println("========================================")
}
