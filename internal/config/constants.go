package config

const (
	// DefaultStateDBPath is the default path for the migration state database
	DefaultStateDBPath = "./migration-state.db"

	// DefaultTargetDBPath is the default path for the reference target database
	DefaultTargetDBPath = "./target.db"

	// DefaultUploadsDir is where the reference target stores uploaded files
	DefaultUploadsDir = "./uploads"

	// DefaultBatchSize is the extraction window for all watermark queries
	DefaultBatchSize = 500
)
