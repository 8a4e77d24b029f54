// ABOUTME: Entry point for the Nomad Pi companion display
// ABOUTME: Parses CLI flags, sets up logging, and starts the application
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nomad-pi/nomad-display/internal/app"
	"github.com/nomad-pi/nomad-display/internal/ui"
	"github.com/nomad-pi/nomad-display/internal/version"
)

var (
	serverAddr = flag.String("server", "", "Manual server address host:port (skip discovery)")
	iface      = flag.String("interface", "", "Wireless interface to monitor (e.g. wlan0)")
	configPath = flag.String("config", "nomad-display.yaml", "Preferences file path")
	logFile    = flag.String("log-file", "nomad-display.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		// Streaming logs mode: log to both stdout and file
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s %s", version.Product, version.Version)

	application, err := app.New(app.Config{
		ServerAddr: *serverAddr,
		Interface:  *iface,
		ConfigPath: *configPath,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	var tuiProg *tea.Program
	if useTUI {
		tuiProg, err = ui.Run(application.Controls())
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		application.SetProgram(tuiProg)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		log.Printf("Application error: %v", err)
	}

	log.Printf("Stopped")
}
