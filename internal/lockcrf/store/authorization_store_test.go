package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizationRecord_ValidAtGrid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	type bound struct {
		name string
		at   *time.Time
	}
	starts := []bound{{"open", nil}, {"past", &past}, {"future", &future}}
	ends := []bound{{"open", nil}, {"past", &past}, {"future", &future}}

	for _, active := range []bool{true, false} {
		for _, s := range starts {
			for _, e := range ends {
				name := fmt.Sprintf("active=%v/start=%s/end=%s", active, s.name, e.name)
				t.Run(name, func(t *testing.T) {
					a := AuthorizationRecord{Active: active, StartAt: s.at, EndAt: e.at}
					want := active && s.name != "future" && e.name != "past"
					assert.Equal(t, want, a.ValidAt(now))
				})
			}
		}
	}
}

func TestAuthorizationRecord_BoundsInclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := AuthorizationRecord{Active: true, StartAt: &now, EndAt: &now}
	assert.True(t, a.ValidAt(now))
	assert.False(t, a.ValidAt(now.Add(time.Millisecond)))
	assert.False(t, a.ValidAt(now.Add(-time.Millisecond)))
}

func TestPlaceholderEmail(t *testing.T) {
	a, b := PlaceholderEmail(), PlaceholderEmail()
	assert.Regexp(t, `^[a-z0-9]{12}@fake\.mail$`, a)
	assert.NotEqual(t, a, b)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "phone", SourcePhone.String())
	assert.Equal(t, "nuki", SourceNuki.String())
	assert.Equal(t, "unknown", Source(9).String())
}
