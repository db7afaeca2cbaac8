package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// BlockPeriod returns the wall time one block of frames takes at rateHz.
// rateHz==0 is coerced to 1 to avoid division by zero.
func BlockPeriod(frames, rateHz uint32) time.Duration {
	if rateHz == 0 {
		rateHz = 1
	}
	return time.Duration(uint64(frames) * uint64(time.Second) / uint64(rateHz))
}
