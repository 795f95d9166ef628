package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDevelopmentConfig(cfg *Config, k *koanf.Koanf) {
	if !k.Exists("database_debug") {
		cfg.DatabaseDebug = true
	}
	if !k.Exists("database_file_path") {
		cfg.DatabaseFilePath = "./tmp/data.sqlite"
	}
	if !k.Exists("server_host") {
		cfg.ServerHost = "127.0.0.1"
	}
	if !k.Exists("cache_dir") {
		cfg.CacheDir = "./tmp/cache"
	}
}
