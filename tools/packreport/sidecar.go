// Sidecar loading. The structs mirror the service's on-disk sidecar
// JSON; unknown fields are ignored so the tool keeps working across
// parser-version bumps.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type sidecarPackage struct {
	ParserVersion string   `json:"parser_version"`
	Pkg           *pkgJSON `json:"package"`
}

type pkgJSON struct {
	PackageID    string        `json:"package_id"`
	Airline      string        `json:"airline"`
	Month        string        `json:"month"`
	Base         string        `json:"base"`
	Fleet        string        `json:"fleet"`
	Seat         string        `json:"seat"`
	SourceFormat string        `json:"source_format"`
	Pairings     []pairingJSON `json:"pairings"`
}

type pairingJSON struct {
	PairingID       string        `json:"pairing_id"`
	Days            int           `json:"days"`
	CreditMinutes   int           `json:"credit_minutes"`
	BlockMinutes    int           `json:"block_minutes"`
	Routing         []string      `json:"routing"`
	Dates           []string      `json:"dates"`
	IncludesWeekend bool          `json:"includes_weekend"`
	HasRedEye       bool          `json:"has_red_eye"`
	Layovers        []layoverJSON `json:"layovers"`
	Equipment       string        `json:"equipment"`
}

type layoverJSON struct {
	Airport string `json:"airport"`
	Minutes int    `json:"minutes"`
}

// scanSidecars loads every {hash}.json sidecar in dir, filtering by
// airline and month when given. Undecodable or empty sidecars count as
// skipped rather than failing the scan.
func scanSidecars(dir, airline, month string) ([]*sidecarPackage, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var packages []*sidecarPackage
	skipped := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			skipped++
			continue
		}
		var sc sidecarPackage
		if err := json.Unmarshal(data, &sc); err != nil || sc.Pkg == nil {
			skipped++
			continue
		}
		if airline != "" && sc.Pkg.Airline != airline {
			continue
		}
		if month != "" && sc.Pkg.Month != month {
			continue
		}
		packages = append(packages, &sc)
	}
	return packages, skipped, nil
}
