package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The key layout is a wire contract shared by the workers and the ranker;
// these pin the exact formats.
func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "user:topk:u_123", UserTopKKey("u_123"))
	assert.Equal(t, "bandit:merchant:m_1", PosteriorKey("merchant", "m_1"))
	assert.Equal(t, "bandit:category:c_1", PosteriorKey("category", "c_1"))
	assert.Equal(t, "session:s_9:recent", SessionTrailKey("s_9"))
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, int64(7), parseCount("7"))
	assert.Equal(t, int64(0), parseCount(nil))
	assert.Equal(t, int64(0), parseCount("not a number"))
}
