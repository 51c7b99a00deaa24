package framesource

// Static is an in-memory Source that always serves the same BGRA image. It
// exists so the sampler and pipeline packages are fully testable without a
// real desktop-duplication binding, and doubles as a "solid test pattern"
// runtime mode for machines where no graphics capture API is available.
type Static struct {
	width, height int
	pixels        []byte // tightly packed BGRA, pitch == width*4
	held          bool
	closed        bool

	// NextResult, when set, overrides the next AcquireFrame outcome; it is
	// reset to Acquired after being consumed. Tests use this to exercise
	// the Transient/Fatal/TimedOut paths.
	NextResult AcquireResult
	NextErr    error
}

// NewStatic builds a Static source of the given size filled with fill,
// repeated for every pixel.
func NewStatic(width, height int, fill [4]byte) *Static {
	pixels := make([]byte, width*height*4)
	for i := 0; i < len(pixels); i += 4 {
		copy(pixels[i:i+4], fill[:])
	}
	return &Static{width: width, height: height, pixels: pixels}
}

func (s *Static) AcquireFrame(timeoutMS int) (AcquireResult, error) {
	result := s.NextResult
	err := s.NextErr
	s.NextResult = Acquired
	s.NextErr = nil
	if result == Acquired {
		s.held = true
	}
	return result, err
}

func (s *Static) Frame() Frame { return staticFrame{pixels: s.pixels, pitch: s.width * 4} }

func (s *Static) ReleaseFrame() error {
	s.held = false
	return nil
}

func (s *Static) Bounds() (int, int) { return s.width, s.height }

func (s *Static) Close() error {
	s.closed = true
	return nil
}

// SetPixel overwrites one pixel's BGRA bytes, for tests that need a
// non-uniform image.
func (s *Static) SetPixel(x, y int, bgra [4]byte) {
	off := y*s.width*4 + x*4
	copy(s.pixels[off:off+4], bgra[:])
}

type staticFrame struct {
	pixels []byte
	pitch  int
}

func (f staticFrame) Pixels() []byte { return f.pixels }
func (f staticFrame) Pitch() int     { return f.pitch }
