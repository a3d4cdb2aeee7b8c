package util

import (
	"os"
	"strings"
)

// Swapped in tests
var (
	statFile = os.Stat
	getenv   = os.Getenv
)

// ContainerRuntime names the container runtime the process runs under, or
// returns "" when it runs on the host
func ContainerRuntime() string {
	if _, err := statFile("/.dockerenv"); err == nil {
		return "docker"
	}

	if _, err := statFile("/run/.containerenv"); err == nil {
		return "podman"
	}

	// Set by systemd-nspawn, podman and LXC
	if c := strings.TrimSpace(getenv("container")); c != "" {
		return c
	}

	return ""
}
