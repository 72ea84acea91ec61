package ranker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/feed-service/internal/database"
)

func mkScored(id, merchant, category string, score float64) scored {
	return scored{
		id:    id,
		final: score,
		meta:  database.ProductMeta{MerchantID: merchant, CategoryID: category},
	}
}

func TestDiversifyIsPermutation(t *testing.T) {
	var items []scored
	for i := 0; i < 20; i++ {
		items = append(items, mkScored(
			fmt.Sprintf("p%02d", i),
			fmt.Sprintf("m%d", i%3),
			fmt.Sprintf("c%d", i%2),
			float64(20-i),
		))
	}

	out := Diversify(items, DefaultDiversityConfig(), 0)
	require.Len(t, out, len(items))

	seen := make(map[string]bool)
	for _, s := range out {
		assert.False(t, seen[s.id], "duplicate %s", s.id)
		seen[s.id] = true
	}
	for _, s := range items {
		assert.True(t, seen[s.id], "missing %s", s.id)
	}
}

func TestDiversifyBreaksMerchantRuns(t *testing.T) {
	// Score order puts all of merchant A first; the re-rank must interleave
	// merchant B instead of letting A run back to back while B remains.
	items := []scored{
		mkScored("a1", "A", "c1", 10),
		mkScored("a2", "A", "c2", 9),
		mkScored("a3", "A", "c1", 8),
		mkScored("b1", "B", "c2", 3),
		mkScored("b2", "B", "c1", 2),
		mkScored("b3", "B", "c2", 1),
	}

	out := Diversify(items, DiversityConfig{MaxConsecutive: 1, MaxMerchantRatio: 1, MaxCategoryRatio: 1}, 0)
	require.Len(t, out, 6)

	for i := 1; i < len(out); i++ {
		if out[i].meta.MerchantID == out[i-1].meta.MerchantID {
			// A run is only allowed once the other merchant is exhausted
			remaining := map[string]int{}
			for _, s := range out[i:] {
				remaining[s.meta.MerchantID]++
			}
			assert.Len(t, remaining, 1, "run at %d with mixed pool remaining", i)
		}
	}

	assert.Equal(t, "a1", out[0].id)
	assert.Equal(t, "b1", out[1].id)
}

func TestDiversifyCapsMerchantShare(t *testing.T) {
	// 8 items, merchant quota ceil(8*0.25)=2. Merchant A has 4 items but
	// enough other merchants exist to fill the page within quota.
	items := []scored{
		mkScored("a1", "A", "c1", 10),
		mkScored("a2", "A", "c2", 9),
		mkScored("a3", "A", "c3", 8),
		mkScored("a4", "A", "c4", 7),
		mkScored("b1", "B", "c1", 4),
		mkScored("c1", "C", "c2", 3),
		mkScored("d1", "D", "c3", 2),
		mkScored("e1", "E", "c4", 1),
	}

	out := Diversify(items, DiversityConfig{MaxConsecutive: 8, MaxMerchantRatio: 0.25, MaxCategoryRatio: 1}, 0)
	require.Len(t, out, 8)

	counts := map[string]int{}
	firstSix := out[:6]
	for _, s := range firstSix {
		counts[s.meta.MerchantID]++
	}
	// Within the constrained prefix merchant A holds exactly its quota; the
	// overflow lands at the tail via relaxation.
	assert.Equal(t, 2, counts["A"])
}

func TestDiversifyRelaxesWhenNothingQualifies(t *testing.T) {
	// Single merchant, so every pick past the quota violates constraints.
	// The output must still contain everything, in score order.
	items := []scored{
		mkScored("a1", "A", "c1", 3),
		mkScored("a2", "A", "c1", 2),
		mkScored("a3", "A", "c1", 1),
	}

	out := Diversify(items, DefaultDiversityConfig(), 0)
	require.Len(t, out, 3)
	assert.Equal(t, "a1", out[0].id)
	assert.Equal(t, "a2", out[1].id)
	assert.Equal(t, "a3", out[2].id)
}

func TestDiversifyDeterministic(t *testing.T) {
	var items []scored
	for i := 0; i < 30; i++ {
		items = append(items, mkScored(
			fmt.Sprintf("p%02d", i),
			fmt.Sprintf("m%d", i%4),
			fmt.Sprintf("c%d", i%3),
			float64(30-i),
		))
	}

	a := Diversify(items, DefaultDiversityConfig(), 16)
	b := Diversify(items, DefaultDiversityConfig(), 16)
	assert.Equal(t, a, b)
}

func TestDiversifySmallInputs(t *testing.T) {
	assert.Empty(t, Diversify(nil, DefaultDiversityConfig(), 0))

	one := []scored{mkScored("p1", "A", "c1", 1)}
	assert.Equal(t, one, Diversify(one, DefaultDiversityConfig(), 10))
}

func TestDiversifyCapsMerchantSharePerPage(t *testing.T) {
	// Merchant A owns the top 20 scores; ten other merchants hold two items
	// each. With a page size of 16 the quota is ceil(16*0.25)=4, so the first
	// 16 output slots may hold at most four A items even though the full list
	// is long enough to admit ten.
	var items []scored
	for i := 0; i < 20; i++ {
		items = append(items, mkScored(fmt.Sprintf("a%02d", i), "A", fmt.Sprintf("c%d", i%5), float64(40-i)))
	}
	for i := 0; i < 20; i++ {
		items = append(items, mkScored(fmt.Sprintf("o%02d", i), fmt.Sprintf("M%d", i%10), fmt.Sprintf("c%d", i%5), float64(20-i)))
	}

	out := Diversify(items, DiversityConfig{MaxConsecutive: 1, MaxMerchantRatio: 0.25, MaxCategoryRatio: 1}, 16)
	require.Len(t, out, 40)

	counts := map[string]int{}
	for _, s := range out[:16] {
		counts[s.meta.MerchantID]++
	}
	assert.LessOrEqual(t, counts["A"], 4)
}
