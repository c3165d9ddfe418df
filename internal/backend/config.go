package backend

import (
	"time"

	"budgetcheck/internal/config"
)

// FromAppConfig converts application config to backend config. The call
// deadline is applied by the caller through the context.
func FromAppConfig(appConfig *config.Config, token string, loc *time.Location) Config {
	return Config{
		Type:           BackendType(appConfig.Backend),
		MonarchURL:     appConfig.MonarchURL,
		Token:          token,
		Location:       loc,
		SnapshotDBPath: appConfig.SnapshotDBPath,
		FixturesDir:    appConfig.FixturesDir,
	}
}

// GetBackendTypes returns all available backend types.
func GetBackendTypes() []BackendType {
	return []BackendType{MonarchBackend, SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all available backend types as strings.
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	result := make([]string, len(types))
	for i, t := range types {
		result[i] = t.String()
	}
	return result
}
