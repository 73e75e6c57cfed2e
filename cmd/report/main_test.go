package main

import (
	"testing"
	"time"
)

func TestParseFlags(t *testing.T) {
	now := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC)

	opts, err := parseFlags([]string{"-tenant", " adm_1 ", "-month", "5"}, now)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.tenantID != "adm_1" || opts.year != 2025 || opts.month != 5 || opts.lang != "en" {
		t.Fatalf("unexpected options %+v", opts)
	}

	tests := [][]string{
		{},
		{"-tenant", "adm_1", "-month", "13"},
		{"-tenant", "adm_1", "-upload", "-out", "r.xlsx"},
		{"-unknown"},
	}
	for _, args := range tests {
		if _, err := parseFlags(args, now); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
