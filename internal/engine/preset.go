package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SKUDURRRRR/chessanalytics-sub001/internal/engine/uci"
)

// AnalysisTier bundles engine search settings and pool sizing for one
// deployment tier. Deeper tiers cost more engine time per position.
type AnalysisTier struct {
	Name           string
	Depth          int
	MoveTimeMillis int
	Threads        int
	HashMB         int
	PoolCapacity   int
}

var tiers = map[string]AnalysisTier{
	"fast": {
		Name:           "fast",
		Depth:          10,
		MoveTimeMillis: 300,
		Threads:        1,
		HashMB:         64,
		PoolCapacity:   8,
	},
	"balanced": {
		Name:           "balanced",
		Depth:          14,
		MoveTimeMillis: 800,
		Threads:        1,
		HashMB:         128,
		PoolCapacity:   4,
	},
	"deep": {
		Name:           "deep",
		Depth:          20,
		MoveTimeMillis: 2500,
		Threads:        2,
		HashMB:         256,
		PoolCapacity:   2,
	},
}

// GetTier resolves a tier by name.
func GetTier(name string) (AnalysisTier, error) {
	t, ok := tiers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return AnalysisTier{}, fmt.Errorf("unknown analysis tier %q (available: %s)", name, strings.Join(TierNames(), ", "))
	}
	return t, nil
}

// TierNames lists the available tiers, sorted.
func TierNames() []string {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t AnalysisTier) options() uci.Options {
	return uci.Options{
		Threads: t.Threads,
		HashMB:  t.HashMB,
		MultiPV: 1,
	}
}

func (t AnalysisTier) limits() uci.Limits {
	return uci.Limits{
		Depth:          t.Depth,
		MoveTimeMillis: t.MoveTimeMillis,
	}
}
