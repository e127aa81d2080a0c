package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/exam-sentinel/backend/internal/audit"
	"github.com/exam-sentinel/backend/internal/config"
	"github.com/exam-sentinel/backend/internal/monitor"
	"github.com/exam-sentinel/backend/internal/probe"
	"github.com/exam-sentinel/backend/internal/session"
	"github.com/exam-sentinel/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	verifyAudit := flag.Bool("verify-audit", false, "Verify the audit log chain and exit")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *verifyAudit {
		count, err := audit.Verify(cfg.Audit.Path)
		if err != nil {
			log.Fatalf("Audit verification failed after %d entries: %v", count, err)
		}
		log.Printf("Audit log OK: %d entries verified", count)
		return
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	auditLog, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditLog.Close()

	broadcaster := ws.NewBroadcaster(cfg.Monitor.WarningGrace)
	machine := session.NewMachine(broadcaster, auditLog)
	broadcaster.SetStateHook(machine.Snapshot)
	machine.SetStateHook(broadcaster.PushState)

	prober := probe.NewHostProber(cfg.Probes)
	scheduler := monitor.NewScheduler(cfg.Monitor, machine, prober)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go machine.Run(ctx)
	go scheduler.Run(ctx)

	applyReload := func(newCfg *config.Config) {
		prober.SetConfig(newCfg.Probes)
		scheduler.SetConfig(newCfg.Monitor)
	}

	// Config changes apply on the next poll; server settings need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, applyReload); err != nil && ctx.Err() == nil {
			log.Printf("Config watch unavailable: %v", err)
		}
	}()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Printf("SIGHUP reload failed: %v", err)
				continue
			}
			log.Println("SIGHUP: config reloaded")
			applyReload(newCfg)
		}
	}()

	server := ws.NewServer(machine, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		auditLog.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
