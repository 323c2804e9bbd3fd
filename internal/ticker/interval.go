package ticker

import (
	"fmt"
	"time"
)

// Interval is a ticker period given either in seconds or in frames per second.
type Interval struct {
	seconds float64
	fps     float64
}

func Seconds(s float64) Interval {
	return Interval{seconds: s}
}

func FPS(fps float64) Interval {
	return Interval{fps: fps}
}

// Duration is 1000/FPS ms for FPS intervals and 1000*seconds ms otherwise.
func (i Interval) Duration() time.Duration {
	if i.fps != 0 {
		return time.Duration(float64(time.Second) / i.fps)
	}
	return time.Duration(i.seconds * float64(time.Second))
}

// IsZero reports an absent interval. Non-positive periods count as absent.
func (i Interval) IsZero() bool {
	return i.Duration() <= 0
}

func (i Interval) IsFPS() bool {
	return i.fps != 0
}

func (i Interval) String() string {
	if i.fps != 0 {
		return fmt.Sprintf("%gfps", i.fps)
	}
	return fmt.Sprintf("%gs", i.seconds)
}
