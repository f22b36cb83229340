package main

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "GRPC_PORT", "DATABASE_URL", "MIGRATE_ON_START", "BUSINESS_TZ_NAME",
		"BUSINESS_TZ_OFFSET_MINUTES", "BACKFILL_HORIZON_DAYS", "DEMO_MODE", "DEMO_DATE",
		"DEMO_PATIENT_IDS", "REDIS_DB", "RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_FAIL_OPEN",
		"REQUEST_BODY_LIMIT_BYTES", "REQUEST_TIMEOUT_SECONDS", "KAFKA_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/frontdesk")
	s, err := loadSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.Port != "8085" || s.Zone.Name() != "JST" || s.Zone.Offset() != 9*time.Hour {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.BackfillHorizon != 0 || s.DemoMode || !s.MigrateOnStart || s.KafkaMaxAttempts != 10 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestLoadSettingsReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "0")
	t.Setenv("BACKFILL_HORIZON_DAYS", "-3")

	_, err := loadSettings()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"PORT", "BACKFILL_HORIZON_DAYS", "DATABASE_URL"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoadSettingsDemoWithoutDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEMO_MODE", "true")
	t.Setenv("DEMO_DATE", "2026-01-15")
	t.Setenv("DEMO_PATIENT_IDS", "p-1, p-2")

	s, err := loadSettings()
	if err != nil {
		t.Fatal(err)
	}
	if !s.DemoMode || s.DemoDate != "2026-01-15" || len(s.DemoPatientIDs) != 2 {
		t.Fatalf("unexpected demo settings: %+v", s)
	}
}
