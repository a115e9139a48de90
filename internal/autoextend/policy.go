package autoextend

import (
	model "auction-engine/internal/models"
	"time"
)

// Apply returns the auction's end time after a bid accepted at now. When the
// bid lands within the threshold window the close moves to now+ExtendDuration,
// never earlier than the current end time. Every qualifying bid extends again.
func Apply(auction model.Auction, now time.Time) (time.Time, bool) {
	if !auction.AutoExtend || auction.ExtendDuration <= 0 {
		return auction.EndTime, false
	}
	if auction.EndTime.Sub(now) > auction.ExtendThreshold {
		return auction.EndTime, false
	}

	extended := now.Add(auction.ExtendDuration)
	if !extended.After(auction.EndTime) {
		return auction.EndTime, false
	}
	return extended, true
}
