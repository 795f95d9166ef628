package config

import (
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	ProfileStandard = "standard"
	ProfileCompact  = "compact"

	EnrichmentPostlight = "postlight"
	EnrichmentMercury   = "mercury"
	EnrichmentNone      = "none"
)

// profile holds the settings that differ between deployments targeting
// full-featured readers and ones targeting small, slow devices.
type profile struct {
	includeTags        bool
	imageMaxCount      int
	enrichmentProvider string
	exportCacheControl string
}

var profiles = map[string]profile{
	ProfileStandard: {
		includeTags:        true,
		imageMaxCount:      25,
		enrichmentProvider: EnrichmentPostlight,
		exportCacheControl: "no-cache",
	},
	ProfileCompact: {
		includeTags:        false,
		imageMaxCount:      10,
		enrichmentProvider: EnrichmentNone,
		exportCacheControl: "private, max-age=86400",
	},
}

// applyProfile fills in every profile-controlled setting that was not set
// explicitly in the file or environment.
func applyProfile(cfg *Config, k *koanf.Koanf) error {
	p, ok := profiles[cfg.Profile]
	if !ok {
		return errors.Errorf("unknown profile %q", cfg.Profile)
	}
	if !k.Exists("include_tags") {
		cfg.IncludeTags = p.includeTags
	}
	if !k.Exists("image_max_count") {
		cfg.ImageMaxCount = p.imageMaxCount
	}
	if !k.Exists("enrichment_provider") {
		cfg.EnrichmentProvider = p.enrichmentProvider
	}
	if !k.Exists("export_cache_control") {
		cfg.ExportCacheControl = p.exportCacheControl
	}

	if cfg.ImageMaxCount < 10 || cfg.ImageMaxCount > 25 {
		return errors.Errorf("image_max_count must be between 10 and 25, got %d", cfg.ImageMaxCount)
	}
	switch cfg.EnrichmentProvider {
	case EnrichmentPostlight, EnrichmentMercury, EnrichmentNone:
	default:
		return errors.Errorf("unknown enrichment_provider %q", cfg.EnrichmentProvider)
	}
	return nil
}
