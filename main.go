package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"threatlens/config"
	"threatlens/database"
	"threatlens/intelligence"
	"threatlens/router"
	"threatlens/scanner"
	"threatlens/service"

	"github.com/gin-gonic/gin"
)

func main() {
	// Get executable directory for config path
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("Failed to get executable path: %v", err)
	}
	execDir := filepath.Dir(execPath)

	// Load configuration
	configPath := filepath.Join(execDir, "..", "config", "config.yaml")
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	// If config not found, try current directory
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "config/config.yaml"
	}
	cfg := config.LoadConfig(configPath)

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize MongoDB
	database.InitMongoDB(&cfg.MongoDB)
	defer database.CloseMongoDB()

	// Initialize Redis
	database.InitRedis(&cfg.Redis)
	defer database.CloseRedis()

	// Initialize default admin user
	userService := service.NewUserService()
	if err := userService.InitAdmin(); err != nil {
		log.Printf("Warning: Failed to initialize admin user: %v", err)
	}

	// Warm the CPE dictionary index in the background; the first CVE
	// lookup blocks on it otherwise.
	cpeIndex := intelligence.NewCpeIndex(cfg.CPE.DictionaryPath)
	go func() {
		if err := cpeIndex.Load(); err != nil {
			log.Printf("[CPE] dictionary unavailable, software matching degraded: %v", err)
			return
		}
		log.Printf("[CPE] dictionary loaded, %d entries", cpeIndex.Len())
	}()

	// Discovery collaborators
	subfinder := scanner.NewSubfinderScanner()
	subfinder.Threads = cfg.Scanner.SubfinderThreads
	subfinder.Timeout = cfg.Scanner.SubfinderTimeout
	if cfg.Scanner.ProviderConfig != "" {
		subfinder.SetProviderConfig(cfg.Scanner.ProviderConfig)
	}

	resolver := scanner.NewDNSResolver(cfg.Scanner.DNSServers, cfg.Scanner.DNSConcurrency)

	naabu := scanner.NewNaabuScanner(cfg.Scanner.NaabuBin, cfg.Scanner.NaabuRate, cfg.Scanner.NaabuRetry)
	if !naabu.IsAvailable() {
		log.Println("Warning: naabu binary not found, port scans will fail")
	}

	riskMapper := intelligence.NewRiskMapper(intelligence.RiskMapperConfig{
		IPConcurrency:   cfg.Scanner.IPConcurrency,
		ConnConcurrency: cfg.Scanner.ConnConcurrency,
		HostTimeout:     time.Duration(cfg.Scanner.HostTimeout) * time.Second,
		ProbeTimeout:    time.Duration(cfg.Scanner.ProbeTimeout) * time.Second,
	})

	cveResolver := intelligence.NewCVEResolver(
		cpeIndex,
		intelligence.NewMongoVulnStore(),
		cfg.CPE.QueryLimit,
		cfg.CPE.QueryWorkers,
	)

	leakClient := intelligence.NewLeakClient(
		cfg.Leak.Endpoint,
		cfg.Leak.APIKey,
		time.Duration(cfg.Leak.Timeout)*time.Second,
		database.GetRedis(),
		time.Duration(cfg.Leak.CacheTTL)*time.Second,
	)

	reportService := service.NewReportService()
	analysisService := service.NewAnalysisService(
		subfinder,
		resolver,
		naabu,
		riskMapper,
		cveResolver,
		leakClient,
		reportService,
		cfg.Score.AdjustK,
	)

	// Setup router
	r := router.SetupRouter(analysisService, reportService)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)

	go func() {
		if err := r.Run(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
}
