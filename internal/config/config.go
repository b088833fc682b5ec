package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/catalog"
	"mapcore.psimaps.org/internal/cluster"
	"mapcore.psimaps.org/internal/tour"
	"mapcore.psimaps.org/internal/utils"
)

// Config holds all the configuration settings for our application.
type Config struct {
	Port int
	Env  string

	// Record snapshot source: exactly one of SnapshotFile or SnapshotURL.
	SnapshotFile     string
	SnapshotURL      string
	SnapshotAuthUser string
	SnapshotAuthPass string
	RefreshInterval  time.Duration
	MaxRetries       int

	ClusterRadius  float64
	ClusterMaxZoom int
	ClusterExtent  int

	TickInterval     time.Duration
	ItemDuration     time.Duration
	OutlierRadiusDeg float64
	// OutlierRegion is the plausible area for camera fits; nil disables the regional pass.
	OutlierRegion    *orb.Bound
	NearbyCategories []string

	// Requests per second per client; zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// NewConfig creates a new instance of a Config struct with defaults for everything
// but the snapshot source.
func NewConfig(port int, env string) *Config {
	clusterOpts := cluster.DefaultOptions()
	catalogOpts := catalog.DefaultOptions()
	return &Config{
		Port:             port,
		Env:              env,
		RefreshInterval:  time.Minute,
		MaxRetries:       3,
		ClusterRadius:    clusterOpts.Radius,
		ClusterMaxZoom:   clusterOpts.MaxZoom,
		ClusterExtent:    clusterOpts.Extent,
		TickInterval:     tour.DefaultTickInterval,
		ItemDuration:     catalogOpts.ItemDuration,
		OutlierRadiusDeg: catalogOpts.OutlierRadiusDeg,
		RateLimit:        20,
		RateBurst:        40,
	}
}

// ParseFlags fills a Config from command-line arguments. Credentials for the
// snapshot URL come from SNAPSHOT_AUTH_USER and SNAPSHOT_AUTH_PASS.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := NewConfig(4000, "development")
	fs := flag.NewFlagSet("mapcore", flag.ContinueOnError)
	fs.SetOutput(output)

	var categories, region string

	fs.IntVar(&cfg.Port, "port", cfg.Port, "API server port")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development|staging|production)")
	fs.StringVar(&cfg.SnapshotFile, "snapshot-file", "", "Path to a local JSON record snapshot")
	fs.StringVar(&cfg.SnapshotURL, "snapshot-url", "", "URL to a remote JSON record snapshot")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "How often to reload the snapshot (0 disables)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries per snapshot fetch")
	fs.Float64Var(&cfg.ClusterRadius, "cluster-radius", cfg.ClusterRadius, "Cluster radius in pixels")
	fs.IntVar(&cfg.ClusterMaxZoom, "cluster-max-zoom", cfg.ClusterMaxZoom, "Highest zoom level that still clusters")
	fs.IntVar(&cfg.ClusterExtent, "cluster-extent", cfg.ClusterExtent, "Tile extent in pixels")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Tour clock tick interval")
	fs.DurationVar(&cfg.ItemDuration, "item-duration", cfg.ItemDuration, "Time the tour spends on each record")
	fs.Float64Var(&cfg.OutlierRadiusDeg, "outlier-radius", cfg.OutlierRadiusDeg, "Camera fit outlier radius in degrees")
	fs.StringVar(&region, "outlier-region", "", "Plausible record area as west,south,east,north for camera fits")
	fs.StringVar(&categories, "nearby-categories", "", "Comma-separated landmark categories for nearby ranking")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second per client (0 disables)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "Request burst per client")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := ValidateSourceFlags(cfg.SnapshotFile, cfg.SnapshotURL); err != nil {
		return nil, err
	}

	if region != "" {
		b, err := utils.ParseBBox(region)
		if err != nil {
			return nil, fmt.Errorf("invalid --outlier-region: %w", err)
		}
		if b.Min.X() > b.Max.X() {
			return nil, fmt.Errorf("invalid --outlier-region: west %v is east of %v", b.Min.X(), b.Max.X())
		}
		cfg.OutlierRegion = &b
	}

	cfg.NearbyCategories = splitList(categories)
	cfg.SnapshotAuthUser = os.Getenv("SNAPSHOT_AUTH_USER")
	cfg.SnapshotAuthPass = os.Getenv("SNAPSHOT_AUTH_PASS")
	return cfg, nil
}

// ValidateSourceFlags ensures that exactly one snapshot source is specified:
// either "--snapshot-file" or "--snapshot-url".
func ValidateSourceFlags(snapshotFile, snapshotURL string) error {
	if snapshotFile == "" && snapshotURL == "" {
		return fmt.Errorf("no record source provided, either --snapshot-file or --snapshot-url must be specified")
	}
	if snapshotFile != "" && snapshotURL != "" {
		return fmt.Errorf("only one of --snapshot-file or --snapshot-url can be specified")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Source names the configured snapshot source for logs, tags and metric labels.
func (cfg *Config) Source() string {
	if cfg.SnapshotURL != "" {
		return cfg.SnapshotURL
	}
	return cfg.SnapshotFile
}

func (cfg *Config) ClusterOptions() cluster.Options {
	return cluster.Options{
		Radius:  cfg.ClusterRadius,
		MaxZoom: cfg.ClusterMaxZoom,
		Extent:  cfg.ClusterExtent,
	}
}

func (cfg *Config) CatalogOptions() catalog.Options {
	return catalog.Options{
		Cluster:          cfg.ClusterOptions(),
		TickInterval:     cfg.TickInterval,
		ItemDuration:     cfg.ItemDuration,
		OutlierRadiusDeg: cfg.OutlierRadiusDeg,
		Region:           cfg.OutlierRegion,
		NearbyCategories: cfg.NearbyCategories,
	}
}
