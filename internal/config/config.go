package config

import (
	"github.com/spf13/viper"
)

type (
	Config struct {
		Source
		State
		Target
		Attachments
		Migration
	}

	Source struct {
		DSN string // MySQL DSN of the legacy database
	}
	State struct {
		Path string
	}
	Target struct {
		Path       string
		UploadsDir string
	}
	Attachments struct {
		Root string // Legacy file store root; empty disables attachment work
	}
	Migration struct {
		BatchSize   int
		MappingPath string // Optional category mapping YAML
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("source_dsn", "")
	v.SetDefault("state_db_path", DefaultStateDBPath)
	v.SetDefault("target_db_path", DefaultTargetDBPath)
	v.SetDefault("uploads_dir", DefaultUploadsDir)
	v.SetDefault("attachments_root", "")
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("category_mapping_path", "")

	return &Config{
		Source: Source{
			DSN: v.GetString("SOURCE_DSN"),
		},
		State: State{
			Path: v.GetString("STATE_DB_PATH"),
		},
		Target: Target{
			Path:       v.GetString("TARGET_DB_PATH"),
			UploadsDir: v.GetString("UPLOADS_DIR"),
		},
		Attachments: Attachments{
			Root: v.GetString("ATTACHMENTS_ROOT"),
		},
		Migration: Migration{
			BatchSize:   v.GetInt("BATCH_SIZE"),
			MappingPath: v.GetString("CATEGORY_MAPPING_PATH"),
		},
	}
}
