// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
// Documents live in a plain table with the embedding as a float32 BLOB, and
// queries rank rows with sqlite-vec's distance functions, so tenant and
// organization filters are ordinary WHERE clauses.
package sqlitevec

// DriverID is the default id for this driver.
const DriverID = "sqlitevec"

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// DriverID overrides the id documents are stored under.
	DriverID string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions int

	// Distance is cosine (default) or l2.
	Distance string
}
