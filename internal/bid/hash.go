package bid

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// PackageID computes the content address of a raw package file.
func PackageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// CandidateID computes the deterministic identity of a candidate schedule.
// Pairing order does not matter; the ids are sorted before hashing.
func CandidateID(ctxID string, pairingIDs []string, weightsVersion, rulePackVersion string) string {
	ids := make([]string, len(pairingIDs))
	copy(ids, pairingIDs)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(ctxID))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(ids, ",")))
	h.Write([]byte{'|'})
	h.Write([]byte(weightsVersion))
	h.Write([]byte{'|'})
	h.Write([]byte(rulePackVersion))
	return hex.EncodeToString(h.Sum(nil))
}
