package engines

import (
	"encoding/binary"

	"github.com/go-audio/audio"

	"audiodrv-go/drivers/audiodrv"
)

// Block layout: interleaved little-endian samples in 1, 2 or 4 byte containers,
// right-justified and sign-extended. 8-bit samples are unsigned, as in WAV.

// fileDepth is the WAV bit depth used to store f.
func fileDepth(f audiodrv.Format) int {
	switch f.Width() {
	case 1:
		return 8
	case 2:
		return 16
	}
	if f.Bits <= 24 {
		return 24
	}
	return 32
}

// toInts decodes block into buf.Data, growing it as needed.
func toInts(f audiodrv.Format, block []byte, buf *audio.IntBuffer) {
	w := int(f.Width())
	n := len(block) / w
	if cap(buf.Data) < n {
		buf.Data = make([]int, n)
	}
	buf.Data = buf.Data[:n]
	for i := 0; i < n; i++ {
		b := block[i*w:]
		switch w {
		case 1:
			buf.Data[i] = int(b[0])
		case 2:
			buf.Data[i] = int(int16(binary.LittleEndian.Uint16(b)))
		default:
			buf.Data[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
}

// fromInts encodes src into block; missing samples become silence.
func fromInts(f audiodrv.Format, src []int, block []byte) {
	w := int(f.Width())
	n := len(block) / w
	for i := 0; i < n; i++ {
		var v int
		if i < len(src) {
			v = src[i]
		} else if w == 1 {
			v = 0x80
		}
		b := block[i*w:]
		switch w {
		case 1:
			b[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		default:
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		}
	}
}

// silence fills block with the format's zero level.
func silence(f audiodrv.Format, block []byte) {
	fromInts(f, nil, block)
}
