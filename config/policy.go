package config

import (
	"os"
	"strconv"
	"strings"
)

// Stock policy windows. These are the single source of truth: every component
// that needs the quarantine or expiring-soon window must read it from here.
//
// Env overrides:
// - BATCH_QUARANTINE_DAYS (default 3): batches within this many days of expiry
//   are Quarantine and not allocatable.
// - BATCH_EXPIRING_SOON_DAYS (default 60): reporting window for the
//   expiring-soon batch list.
const (
	defaultQuarantineDays   = 3
	defaultExpiringSoonDays = 60
)

func BatchQuarantineDays() int {
	return policyIntFromEnv("BATCH_QUARANTINE_DAYS", defaultQuarantineDays)
}

func BatchExpiringSoonDays() int {
	return policyIntFromEnv("BATCH_EXPIRING_SOON_DAYS", defaultExpiringSoonDays)
}

// AutoWriteOffExpired controls whether the expiry sweep posts Expiry write-off
// movements for expired remainders, or only flips batch status.
//
// Set via env:
// - EXPIRY_SWEEP_WRITE_OFF=true
func AutoWriteOffExpired() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("EXPIRY_SWEEP_WRITE_OFF")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func policyIntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
