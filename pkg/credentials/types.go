package credentials

// Credentials represents the stored values in credentials.toml, keyed by
// the environment variable they stand in for.
type Credentials struct {
	Version int               `toml:"version"`
	Values  map[string]string `toml:"values"`
}
