package vector

import "github.com/google/uuid"

// keyNamespace seeds StableID.
var keyNamespace = uuid.MustParse("6f1e6f0c-3a53-4f7e-9a5c-1a2f4d2b9e10")

// StableID derives a deterministic UUID from a document's composite key, for
// backends that need a single opaque point id.
func StableID(driverID, entityID, recordID, tenantID string) string {
	key := driverID + "\x1f" + entityID + "\x1f" + recordID + "\x1f" + tenantID
	return uuid.NewSHA1(keyNamespace, []byte(key)).String()
}
