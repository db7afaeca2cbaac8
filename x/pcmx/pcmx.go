// Package pcmx holds small helpers for interleaved signed 16-bit
// little-endian PCM blocks.
package pcmx

import (
	"encoding/binary"
	"math"
)

// Sine is a phase-continuous tone generator.
type Sine struct {
	Freq  float64 // Hz
	Rate  float64 // samples per second per channel
	Level float64 // 0..1 of full scale

	phase float64
}

// Fill writes whole frames of the tone into block, the same sample on every
// channel. Trailing bytes that do not form a frame are left untouched.
func (s *Sine) Fill(block []byte, channels int) {
	if channels <= 0 || s.Rate <= 0 {
		return
	}
	step := 2 * math.Pi * s.Freq / s.Rate
	frame := 2 * channels
	for off := 0; off+frame <= len(block); off += frame {
		v := uint16(int16(math.Sin(s.phase) * s.Level * math.MaxInt16))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(block[off+2*c:], v)
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// Peak returns the largest absolute sample value in block.
func Peak(block []byte) int {
	peak := 0
	for i := 0; i+1 < len(block); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(block[i:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
