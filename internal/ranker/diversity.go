package ranker

import "math"

// DiversityConfig bounds how often a merchant or category may appear in one
// result page.
type DiversityConfig struct {
	// MaxConsecutive caps same-merchant runs at the tail of the output.
	MaxConsecutive int
	// MaxMerchantRatio caps one merchant's share of the page.
	MaxMerchantRatio float64
	// MaxCategoryRatio caps one category's share of the page.
	MaxCategoryRatio float64
}

// DefaultDiversityConfig returns the standard constraints
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		MaxConsecutive:   1,
		MaxMerchantRatio: 0.25,
		MaxCategoryRatio: 0.40,
	}
}

// Diversify reorders a score-sorted list so no merchant or category
// dominates the page the caller slices from it. Quotas are computed against
// pageSize when it is smaller than the list (pageSize <= 0 means the whole
// list), so any window of that size taken from the output stays within the
// ratios. Greedy: repeatedly take the best-scored candidate that keeps all
// quotas; when none qualifies, constraints become advisory and the pool head
// is taken as-is. Deterministic for a fixed input order.
func Diversify(items []scored, cfg DiversityConfig, pageSize int) []scored {
	n := len(items)
	if n <= 1 {
		return items
	}
	if cfg.MaxConsecutive <= 0 {
		cfg.MaxConsecutive = 1
	}

	window := n
	if pageSize > 0 && pageSize < n {
		window = pageSize
	}
	merchantMax := int(math.Ceil(float64(window) * cfg.MaxMerchantRatio))
	categoryMax := int(math.Ceil(float64(window) * cfg.MaxCategoryRatio))

	pool := make([]scored, n)
	copy(pool, items)

	out := make([]scored, 0, n)
	merchantCount := make(map[string]int)
	categoryCount := make(map[string]int)

	for len(pool) > 0 {
		pick := -1
		for i, cand := range pool {
			if merchantCount[cand.meta.MerchantID] >= merchantMax {
				continue
			}
			if categoryCount[cand.meta.CategoryID] >= categoryMax {
				continue
			}
			if tailRun(out, cand.meta.MerchantID) >= cfg.MaxConsecutive {
				continue
			}
			pick = i
			break
		}
		if pick < 0 {
			// Nothing qualifies; relax and take the pool head
			pick = 0
		}

		chosen := pool[pick]
		out = append(out, chosen)
		merchantCount[chosen.meta.MerchantID]++
		categoryCount[chosen.meta.CategoryID]++
		pool = append(pool[:pick], pool[pick+1:]...)
	}

	return out
}

// tailRun counts how many trailing output items share the given merchant
func tailRun(out []scored, merchantID string) int {
	run := 0
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].meta.MerchantID != merchantID {
			break
		}
		run++
	}
	return run
}
