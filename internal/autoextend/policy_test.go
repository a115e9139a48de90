package autoextend

import (
	model "auction-engine/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	base := model.Auction{
		EndTime:         end,
		AutoExtend:      true,
		ExtendThreshold: 5 * time.Minute,
		ExtendDuration:  10 * time.Minute,
	}

	disabled := base
	disabled.AutoExtend = false

	short := base
	short.ExtendDuration = time.Minute

	tests := []struct {
		name        string
		auction     model.Auction
		now         time.Time
		wantEnd     time.Time
		wantExtends bool
	}{
		{name: "inside_threshold", auction: base, now: end.Add(-3 * time.Minute), wantEnd: end.Add(7 * time.Minute), wantExtends: true},
		{name: "outside_threshold", auction: base, now: end.Add(-10 * time.Minute), wantEnd: end},
		{name: "exactly_at_threshold", auction: base, now: end.Add(-5 * time.Minute), wantEnd: end.Add(5 * time.Minute), wantExtends: true},
		{name: "disabled", auction: disabled, now: end.Add(-time.Minute), wantEnd: end},
		{name: "extension_would_not_move_close", auction: short, now: end.Add(-3 * time.Minute), wantEnd: end},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, extended := Apply(tt.auction, tt.now)
			require.Equal(t, tt.wantExtends, extended)
			require.True(t, got.Equal(tt.wantEnd), "got %s want %s", got, tt.wantEnd)
		})
	}
}

func TestApply_RepeatedLateBidsKeepExtending(t *testing.T) {
	t.Parallel()

	end := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	a := model.Auction{EndTime: end, AutoExtend: true, ExtendThreshold: 2 * time.Minute, ExtendDuration: 2 * time.Minute}

	now := end.Add(-time.Minute)
	for i := 0; i < 5; i++ {
		next, extended := Apply(a, now)
		require.True(t, extended)
		require.True(t, next.After(a.EndTime))
		a.EndTime = next
		now = next.Add(-30 * time.Second)
	}
	require.True(t, a.EndTime.After(end.Add(5*time.Minute)))
}
