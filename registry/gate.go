package registry

import "github.com/ruteri/threshold-secret-registry/interfaces"

// CanReconstruct reports whether enough participants confirmed receipt of
// an active secret. A nil record is a secret that does not exist.
func CanReconstruct(rec *interfaces.SecretRecord) bool {
	return rec != nil && rec.Active && rec.Confirmations >= uint(rec.Threshold)
}
