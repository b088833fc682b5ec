package config

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseFlags(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := ParseFlags([]string{"--snapshot-file", "records.json"}, io.Discard)
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.Port != 4000 || cfg.Env != "development" {
			t.Errorf("unexpected defaults: port %d env %q", cfg.Port, cfg.Env)
		}
		if cfg.ClusterRadius != 75 || cfg.ClusterMaxZoom != 20 || cfg.ClusterExtent != 512 {
			t.Errorf("unexpected cluster defaults: %+v", cfg.ClusterOptions())
		}
		if cfg.TickInterval != 50*time.Millisecond || cfg.ItemDuration != 5*time.Second {
			t.Errorf("unexpected tour timing: %v / %v", cfg.TickInterval, cfg.ItemDuration)
		}
		if cfg.Source() != "records.json" {
			t.Errorf("unexpected source %q", cfg.Source())
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("SNAPSHOT_AUTH_USER", "reader")
		t.Setenv("SNAPSHOT_AUTH_PASS", "secret")

		cfg, err := ParseFlags([]string{
			"--snapshot-url", "https://records.example.com/snapshot.json",
			"--port", "8080",
			"--item-duration", "3s",
			"--nearby-categories", "school, hospital,,mall",
		}, io.Discard)
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.Port != 8080 || cfg.ItemDuration != 3*time.Second {
			t.Errorf("overrides not applied: %+v", cfg)
		}
		if got := strings.Join(cfg.NearbyCategories, "|"); got != "school|hospital|mall" {
			t.Errorf("unexpected categories %q", got)
		}
		if cfg.SnapshotAuthUser != "reader" || cfg.SnapshotAuthPass != "secret" {
			t.Error("expected credentials from the environment")
		}

		opts := cfg.CatalogOptions()
		if opts.ItemDuration != 3*time.Second || len(opts.NearbyCategories) != 3 {
			t.Errorf("catalog options not derived from config: %+v", opts)
		}
	})

	t.Run("OutlierRegion", func(t *testing.T) {
		cfg, err := ParseFlags([]string{"--snapshot-file", "a.json", "--outlier-region", "54.0,24.0,56.5,26.0"}, io.Discard)
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		region := cfg.CatalogOptions().Region
		if region == nil {
			t.Fatal("expected the region to reach the catalog options")
		}
		if region.Min.X() != 54.0 || region.Min.Y() != 24.0 || region.Max.X() != 56.5 || region.Max.Y() != 26.0 {
			t.Errorf("unexpected region %+v", *region)
		}

		cfg, err = ParseFlags([]string{"--snapshot-file", "a.json"}, io.Discard)
		if err != nil {
			t.Fatalf("ParseFlags failed: %v", err)
		}
		if cfg.CatalogOptions().Region != nil {
			t.Error("expected no region by default")
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			want string
		}{
			{"no source", nil, "no record source"},
			{"both sources", []string{"--snapshot-file", "a.json", "--snapshot-url", "https://x"}, "only one of"},
			{"stray argument", []string{"--snapshot-file", "a.json", "extra"}, "unexpected arguments"},
			{"bad duration", []string{"--snapshot-file", "a.json", "--tick-interval", "soon"}, "invalid value"},
			{"short region", []string{"--snapshot-file", "a.json", "--outlier-region", "1,2,3"}, "invalid --outlier-region"},
			{"wrapped region", []string{"--snapshot-file", "a.json", "--outlier-region", "170,-10,-170,10"}, "invalid --outlier-region"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ParseFlags(tt.args, io.Discard)
				if err == nil || !strings.Contains(err.Error(), tt.want) {
					t.Errorf("expected error containing %q, got %v", tt.want, err)
				}
			})
		}
	})
}
