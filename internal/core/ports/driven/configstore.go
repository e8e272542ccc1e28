package driven

// ConfigStore is the persisted key/value layer under SettingsService. Keys
// are dotted paths such as "retrieval.top_k". The typed getters return the
// zero value when a key is absent or holds another type.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// Set stores value under key and persists it before returning.
	Set(key string, value any) error
}
