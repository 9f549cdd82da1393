package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Fingerprint computes the deterministic request fingerprint §3 invariant 5
// defines: SHA-256 over (lower-cased stripped question, sorted model ids,
// sorted roles, method, rounded temperature to 2dp, chain flags).
func Fingerprint(req Request) string {
	question := strings.ToLower(strings.TrimSpace(req.Question))

	models := append([]string(nil), req.SelectedModelIDs...)
	sort.Strings(models)

	roles := append([]string(nil), req.Roles...)
	sort.Strings(roles)

	temp := math.Round(req.Temperature*100) / 100

	parts := []string{
		question,
		strings.Join(models, ","),
		strings.Join(roles, ","),
		string(req.Method),
		fmt.Sprintf("%.2f", temp),
		fmt.Sprintf("%t", req.EnableChainOfThought),
		fmt.Sprintf("%d", req.ChainDepth),
	}

	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
