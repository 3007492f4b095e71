package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys_Builders(t *testing.T) {
	q := "reports"
	assert.Equal(t, "reportq:{reports}:pending", Pending(q))
	assert.Equal(t, "reportq:{reports}:active", Active(q))
	assert.Equal(t, "reportq:{reports}:delayed", Delayed(q))
	assert.Equal(t, "reportq:{reports}:dead", Dead(q))
	assert.Equal(t, "reportq:{reports}:sent", Sent(q))
	assert.Equal(t, "reportq:{reports}:unique", Unique(q))
	assert.Equal(t, "reportq:{reports}:dead_expiry", DeadExpiry(q))
}

func TestKeys_For_MatchesBuilders(t *testing.T) {
	q := For("weekly")
	assert.Equal(t, "weekly", q.Name)
	assert.Equal(t, Pending("weekly"), q.Pending)
	assert.Equal(t, Active("weekly"), q.Active)
	assert.Equal(t, Delayed("weekly"), q.Delayed)
	assert.Equal(t, Dead("weekly"), q.Dead)
	assert.Equal(t, Sent("weekly"), q.Sent)
	assert.Equal(t, Unique("weekly"), q.Unique)
	assert.Equal(t, DeadExpiry("weekly"), q.DeadExpiry)
}
