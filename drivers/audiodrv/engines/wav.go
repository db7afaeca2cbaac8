package engines

import (
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audiodrv-go/drivers/audiodrv"
	"audiodrv-go/errcode"
)

// Sink consumes transmitted blocks.
type Sink interface {
	WriteBlock(f audiodrv.Format, block []byte) error
}

// Source produces received blocks.
type Source interface {
	ReadBlock(f audiodrv.Format, block []byte) error
}

const wavPCM = 1

// WAVSink records transmitted blocks to a WAV stream. Close must be called to
// finalise the header.
type WAVSink struct {
	mu     sync.Mutex
	f      audiodrv.Format
	enc    *wav.Encoder
	buf    audio.IntBuffer
	frames int
}

// NewWAVSink writes a WAV stream in format f to w.
func NewWAVSink(w io.WriteSeeker, f audiodrv.Format) (*WAVSink, error) {
	if !f.Valid() {
		return nil, errcode.New("NewWAVSink", errcode.Parameter, "invalid format")
	}
	s := &WAVSink{
		f:   f,
		enc: wav.NewEncoder(w, int(f.Rate), fileDepth(f), int(f.Channels), wavPCM),
	}
	s.buf.Format = f.Audio()
	s.buf.SourceBitDepth = fileDepth(f)
	return s, nil
}

func (s *WAVSink) WriteBlock(f audiodrv.Format, block []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return errcode.New("WAVSink", errcode.NotReady, "closed")
	}
	if f != s.f {
		return errcode.New("WAVSink", errcode.Unsupported, "format differs from file")
	}
	toInts(f, block, &s.buf)
	if err := s.enc.Write(&s.buf); err != nil {
		return errcode.Wrap("WAVSink", err)
	}
	s.frames += len(s.buf.Data) / int(f.Channels)
	return nil
}

// Frames returns the number of frames written so far.
func (s *WAVSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	err := s.enc.Close()
	s.enc = nil
	return err
}

// WAVSource feeds received blocks from a WAV stream. The stream must match
// the format exactly; no conversion is done. At end of data it either rewinds
// (Loop) or returns silence.
type WAVSource struct {
	mu   sync.Mutex
	r    io.ReadSeeker
	f    audiodrv.Format
	dec  *wav.Decoder
	buf  audio.IntBuffer
	pcm  []int
	Loop bool
	eof  bool
}

// NewWAVSource opens r and checks it carries PCM in format f.
func NewWAVSource(r io.ReadSeeker, f audiodrv.Format) (*WAVSource, error) {
	s := &WAVSource{r: r, f: f}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WAVSource) open() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return errcode.Wrap("WAVSource", err)
	}
	dec := wav.NewDecoder(s.r)
	if !dec.IsValidFile() {
		return errcode.New("WAVSource", errcode.InvalidPayload, "not a PCM WAV stream")
	}
	dec.ReadInfo()
	switch {
	case int(dec.NumChans) != int(s.f.Channels),
		int(dec.SampleRate) != int(s.f.Rate),
		int(dec.BitDepth) != fileDepth(s.f):
		return errcode.New("WAVSource", errcode.Unsupported, "stream format differs")
	}
	s.dec = dec
	s.buf.Format = dec.Format()
	s.eof = false
	return nil
}

func (s *WAVSource) ReadBlock(f audiodrv.Format, block []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f != s.f {
		return errcode.New("WAVSource", errcode.Unsupported, "format differs from file")
	}
	want := len(block) / int(f.Width())
	if cap(s.pcm) < want {
		s.pcm = make([]int, want)
	}
	got := 0
	rewound := false
	for got < want && !s.eof {
		s.buf.Data = s.pcm[got:want]
		n, err := s.dec.PCMBuffer(&s.buf)
		got += n
		switch {
		case n == 0 || err == io.EOF || err == io.ErrUnexpectedEOF:
			// An empty stream must not spin.
			if !s.Loop || (n == 0 && rewound) {
				s.eof = true
				continue
			}
			if err := s.open(); err != nil {
				return err
			}
			rewound = true
		case err != nil:
			return errcode.Wrap("WAVSource", err)
		default:
			rewound = false
		}
	}
	fromInts(f, s.pcm[:got], block)
	return nil
}

// Done reports whether a non-looping source ran out of data.
func (s *WAVSource) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}
