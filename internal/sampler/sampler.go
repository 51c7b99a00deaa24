// Package sampler implements ScreenSamples: it owns one framesource.Source
// per usable display, reduces each LED's 16x16 sample block to a single
// color with fade smoothing and a minimum-brightness boost, and renders the
// serial and per-channel OPC/BOB pixel buffers from the resulting vector.
//
// Grounded on fkcurrie-fluidnc-led-golang's internal/display.Renderer (a
// mutex-guarded render loop driven at a fixed interval) and on
// google-periph's devices/apa102 gamma-ramp application at render time.
package sampler

import (
	"errors"
	"fmt"
	"time"

	"github.com/kcurtis/adalight-listener/internal/bgra"
	"github.com/kcurtis/adalight-listener/internal/config"
	"github.com/kcurtis/adalight-listener/internal/framesource"
	"github.com/kcurtis/adalight-listener/internal/gammatable"
	"github.com/kcurtis/adalight-listener/internal/pixelbuffer"
)

// sampleGrid is the fixed 16x16 sample-block side length (spec.md §3).
const sampleGrid = 16

// ErrNoUsableSource is returned by CreateResources when every configured
// display failed to produce a FrameSource.
var ErrNoUsableSource = errors.New("sampler: no usable frame source")

// ErrFatalSource is returned by TakeSamples when a source reports a fatal
// acquire error; the caller must call FreeResources and rebuild.
var ErrFatalSource = errors.New("sampler: fatal frame source error")

// offset is one sample pixel's absolute coordinate within a display.
type offset struct{ x, y int }

// SourceFactory builds the FrameSource for one configured display index.
// Real desktop-duplication/GDI binding is outside this module's scope
// (spec.md §1); tests and the solid-pattern runtime mode supply
// framesource.Static via this hook instead.
type SourceFactory func(displayIndex int, d config.DisplayConfig) (framesource.Source, error)

// Sampler is ScreenSamples: per-LED color reduction plus serial/OPC
// rendering.
type Sampler struct {
	settings *config.Settings
	gamma    *gammatable.Table

	sources      []framesource.Source
	ledBase      []int // ledBase[d] = global LED index of display d's first LED
	pixelOffsets [][][sampleGrid * sampleGrid]offset

	previousColors []bgra.Word
	acquired       bool

	frameCount    int
	startTick     time.Time
	lastFrameRate float64
}

// New binds a Sampler to immutable Settings and a GammaTable.
func New(settings *config.Settings, gamma *gammatable.Table) *Sampler {
	return &Sampler{settings: settings, gamma: gamma}
}

// Acquired reports whether CreateResources has succeeded and
// FreeResources has not yet been called.
func (s *Sampler) Acquired() bool { return s.acquired }

// LastFrameRate returns the observability frame rate recorded by the most
// recent FreeResources call.
func (s *Sampler) LastFrameRate() float64 { return s.lastFrameRate }

// CreateResources enumerates displays in configuration order, builds a
// FrameSource for each via factory, and computes every LED's 16x16 sample
// offsets. Displays whose factory call fails are skipped; CreateResources
// fails only if none could be built.
//
// sources, pixelOffsets and ledBase are all kept indexed by the display's
// original position in Settings.Displays (a nil entry in sources/
// pixelOffsets marks a display that failed to build), so TakeSamples can
// use a single index d into all three without the compacted-vs-original
// mismatch a separately-appended sources slice would introduce.
func (s *Sampler) CreateResources(factory SourceFactory) error {
	s.sources = make([]framesource.Source, len(s.settings.Displays))
	s.ledBase = make([]int, len(s.settings.Displays))
	s.pixelOffsets = make([][][sampleGrid * sampleGrid]offset, len(s.settings.Displays))

	base := 0
	built := 0
	for d, display := range s.settings.Displays {
		s.ledBase[d] = base
		base += len(display.Positions)

		src, err := factory(d, display)
		if err != nil {
			continue
		}
		w, h := src.Bounds()
		offsets := make([][sampleGrid * sampleGrid]offset, len(display.Positions))
		for j, p := range display.Positions {
			offsets[j] = sampleOffsets(p.X, p.Y, display.HorizontalCount, display.VerticalCount, w, h)
		}
		s.sources[d] = src
		s.pixelOffsets[d] = offsets
		built++
	}

	if built == 0 {
		return ErrNoUsableSource
	}

	s.previousColors = make([]bgra.Word, s.settings.TotalLEDCount)
	for i := range s.previousColors {
		s.previousColors[i] = s.settings.MinBrightnessColor
	}

	s.frameCount = 0
	s.startTick = timeNow()
	s.acquired = true
	return nil
}

// sampleOffsets lays out the 16x16 half-step-inset grid for one LED's
// sample block, per spec.md §4.4.
func sampleOffsets(cx, cy, horizontalCount, verticalCount, displayW, displayH int) [sampleGrid * sampleGrid]offset {
	blockX := float64(cx*displayW) / float64(horizontalCount)
	blockY := float64(cy*displayH) / float64(verticalCount)
	blockW := float64(displayW) / float64(horizontalCount)
	blockH := float64(displayH) / float64(verticalCount)
	stepX := blockW / sampleGrid
	stepY := blockH / sampleGrid

	var out [sampleGrid * sampleGrid]offset
	idx := 0
	for ky := 0; ky < sampleGrid; ky++ {
		py := blockY + stepY/2 + float64(ky)*stepY
		for kx := 0; kx < sampleGrid; kx++ {
			px := blockX + stepX/2 + float64(kx)*stepX
			out[idx] = offset{x: int(px), y: int(py)}
			idx++
		}
	}
	return out
}

// TakeSamples acquires one frame per source, in order, and folds each
// usable display's pixels into previousColors. Transient/timeout errors
// are skipped per-display; a fatal error tears down all resources and
// returns ErrFatalSource.
func (s *Sampler) TakeSamples() error {
	if !s.acquired {
		return errors.New("sampler: TakeSamples called before CreateResources")
	}

	for d, src := range s.sources {
		if src == nil {
			continue
		}
		_ = src.ReleaseFrame()

		result, err := src.AcquireFrame(int(s.settings.TimeoutMS))
		switch result {
		case framesource.Acquired:
			frame := src.Frame()
			s.reduceDisplay(d, frame)
		case framesource.TimedOut, framesource.Transient:
			continue
		case framesource.Fatal:
			s.FreeResources()
			return fmt.Errorf("%w: display %d: %v", ErrFatalSource, d, err)
		}
	}

	s.frameCount++
	return nil
}

// reduceDisplay averages each LED's 256 samples, applies fade and the
// minimum-brightness lift, and stores the result into previousColors.
func (s *Sampler) reduceDisplay(d int, frame framesource.Frame) {
	pixels := frame.Pixels()
	pitch := frame.Pitch()
	base := s.ledBase[d]
	weight := s.settings.Weight
	fade := s.settings.Fade
	minBrightness := float64(s.settings.MinBrightness)

	for j, offsets := range s.pixelOffsets[d] {
		var rSum, gSum, bSum int
		for _, o := range offsets {
			p := o.y*pitch + o.x*4
			if p < 0 || p+3 >= len(pixels) {
				continue
			}
			bSum += int(pixels[p+0])
			gSum += int(pixels[p+1])
			rSum += int(pixels[p+2])
		}
		n := float64(len(offsets))
		r := float64(rSum) / n
		g := float64(gSum) / n
		b := float64(bSum) / n

		k := base + j
		prev := s.previousColors[k]
		r = r*weight + float64(prev.R())*fade
		g = g*weight + float64(prev.G())*fade
		b = b*weight + float64(prev.B())*fade

		r, g, b = liftMinBrightness(r, g, b, minBrightness)

		s.previousColors[k] = bgra.Pack(clampByte(r), clampByte(g), clampByte(b), 0xFF)
	}
}

// liftMinBrightness implements spec.md §4.4's brightness-floor redistribution.
func liftMinBrightness(r, g, b, minBrightness float64) (float64, float64, float64) {
	const eps = 1e-9
	sum := r + g + b
	if sum >= minBrightness {
		return r, g, b
	}
	if sum > -eps && sum < eps {
		third := minBrightness / 3
		return third, third, third
	}
	deficit := minBrightness - sum
	twoSum := 2 * sum
	return deficit * (sum - r) / twoSum,
		deficit * (sum - g) / twoSum,
		deficit * (sum - b) / twoSum
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// RenderSerial writes the gamma-corrected strand-order serial buffer. It
// returns false without writing a payload if resources are not acquired.
func (s *Sampler) RenderSerial(buf *pixelbuffer.Buffer) bool {
	buf.Clear()
	if !s.acquired {
		return false
	}
	for _, c := range s.previousColors {
		buf.Add(bgra.Pack(s.gamma.Red(c.R()), s.gamma.Green(c.G()), s.gamma.Blue(c.B()), 0xFF))
	}
	return true
}

// RenderChannel writes one OPC channel's buffer: sample-to-pixel
// interpolation followed by the channel's per-range Gaussian smoothing.
func (s *Sampler) RenderChannel(channel config.OpcChannel, buf *pixelbuffer.Buffer) {
	buf.Clear()
	for ri := range channel.Pixels {
		s.renderRange(&channel.Pixels[ri], buf)
	}
}

func (s *Sampler) renderRange(r *config.OpcPixelRange, buf *pixelbuffer.Buffer) {
	sampled := make([]bgra.Word, r.PixelCount)
	for p := 0; p < r.PixelCount; p++ {
		sampled[p] = s.sampleRangePixel(r, p)
	}

	radius := r.KernelRadius
	for p := 0; p < r.PixelCount; p++ {
		if radius > 0 && p >= radius && p <= r.PixelCount-radius-1 {
			buf.Add(smooth(sampled, p, radius, r.KernelWeights))
		} else {
			buf.Add(sampled[p])
		}
	}
}

// sampleRangePixel implements the pixel->sample mapping. The reference
// implementation's `pixel_offset -= range.display_index.len()` /
// `pixel_offset < range.display_index[display].len()` pair is very likely
// swapped (spec.md §9); the intent, followed here, is: walk display_index
// in order, skip displays whose own entry count is <= the remaining
// offset (subtracting as you go), and index into the display that has
// enough entries to contain it.
func (s *Sampler) sampleRangePixel(r *config.OpcPixelRange, p int) bgra.Word {
	if r.SampleCount == 0 {
		return 0
	}
	remaining := p * r.SampleCount / r.PixelCount
	for d, indices := range r.DisplayIndex {
		if remaining < len(indices) {
			if d >= len(s.ledBase) {
				return 0
			}
			global := s.ledBase[d] + indices[remaining]
			if global < 0 || global >= len(s.previousColors) {
				return 0
			}
			return s.previousColors[global]
		}
		remaining -= len(indices)
	}
	return 0
}

func smooth(sampled []bgra.Word, p, radius int, weights []float64) bgra.Word {
	var r, g, b, a float64
	for k, w := range weights {
		c := sampled[p-radius+k]
		r += w * float64(c.R())
		g += w * float64(c.G())
		b += w * float64(c.B())
		a += w * float64(c.A())
	}
	return bgra.Pack(clampByte(r), clampByte(g), clampByte(b), clampByte(a))
}

// FreeResources releases any held frames, drops every FrameSource and the
// pixel-offset tables, and records the effective frame rate for
// observability logging.
func (s *Sampler) FreeResources() {
	for _, src := range s.sources {
		if src == nil {
			continue
		}
		_ = src.ReleaseFrame()
		_ = src.Close()
	}
	elapsed := timeNow().Sub(s.startTick).Seconds()
	if elapsed > 0 {
		s.lastFrameRate = float64(s.frameCount) / elapsed
	}
	s.sources = nil
	s.pixelOffsets = nil
	s.ledBase = nil
	s.previousColors = nil
	s.acquired = false
}

// timeNow is a seam for tests; production always uses time.Now.
var timeNow = time.Now
