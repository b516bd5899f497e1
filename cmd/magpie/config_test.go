package main

import (
	"errors"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.UDPPort != 9999 {
		t.Errorf("UDPPort = %d, want 9999", cfg.UDPPort)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.DBPath != "logs.db" {
		t.Errorf("DBPath = %q, want logs.db", cfg.DBPath)
	}
	if cfg.LegacyConsole {
		t.Error("LegacyConsole should default to false")
	}
	if len(cfg.Tails) != 0 {
		t.Errorf("Tails = %v, want none", cfg.Tails)
	}
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--udp-port", "52099",
		"--http-port", "9090",
		"--db", "/tmp/game.db",
		"--tail", "/var/log/server.log",
		"--tail-name", "backend",
		"--tail", "/var/log/client.log",
		"--legacy-console",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.UDPPort != 52099 || cfg.HTTPPort != 9090 || cfg.DBPath != "/tmp/game.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.LegacyConsole {
		t.Error("LegacyConsole not set")
	}
	if len(cfg.Tails) != 2 {
		t.Fatalf("Tails = %v", cfg.Tails)
	}
	if cfg.Tails[0].Path != "/var/log/server.log" || cfg.Tails[0].Name != "backend" {
		t.Errorf("first tail = %+v", cfg.Tails[0])
	}
	if cfg.Tails[1].Path != "/var/log/client.log" || cfg.Tails[1].Name != "" {
		t.Errorf("second tail = %+v", cfg.Tails[1])
	}
}

func TestLoadConfigHelp(t *testing.T) {
	_, err := loadConfig([]string{"--help"})
	if !errors.Is(err, errHelpRequested) {
		t.Errorf("err = %v, want errHelpRequested", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := [][]string{
		{"--frobnicate"},
		{"--udp-port"},
		{"--udp-port", "not-a-number"},
		{"--udp-port", "0"},
		{"--udp-port", "70000"},
		{"--tail-name", "orphan"},
		{"--cert", "server.crt"}, // key missing
	}
	for _, args := range cases {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("loadConfig(%v) should fail", args)
		}
	}
}

func TestLoadConfigTLSPair(t *testing.T) {
	cfg, err := loadConfig([]string{"--cert", "server.crt", "--key", "server.key"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CertFile != "server.crt" || cfg.KeyFile != "server.key" {
		t.Errorf("cfg = %+v", cfg)
	}
}
