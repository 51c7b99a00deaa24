package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/kcurtis/adalight-listener/internal/bgra"
)

// Load reads the JSON-with-comments file at path, strips its comments,
// decodes it, validates it, and computes every derived field described in
// spec.md §3. The returned Settings is safe to share read-only across every
// goroutine in the process.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: path, Err: err}
	}

	var s Settings
	if err := json.Unmarshal(stripComments(raw), &s); err != nil {
		return nil, &Error{Field: path, Err: err}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	s.derive()
	return &s, nil
}

func (s *Settings) validate() error {
	if s.Fade < 0 || s.Fade > 0.5 {
		return fieldErrorf("fade", "must be in [0.0, 0.5], got %v", s.Fade)
	}
	if s.FPSMax < 1 {
		return fieldErrorf("fpsMax", "must be >= 1, got %d", s.FPSMax)
	}
	if len(s.Displays) == 0 {
		return fieldErrorf("displays", "at least one display is required")
	}
	for di, d := range s.Displays {
		if d.HorizontalCount <= 0 || d.VerticalCount <= 0 {
			return fieldErrorf(fmt.Sprintf("displays[%d]", di), "horizontalCount/verticalCount must be positive")
		}
		for pi, p := range d.Positions {
			if p.X < 0 || p.X >= d.HorizontalCount || p.Y < 0 || p.Y >= d.VerticalCount {
				return fieldErrorf(fmt.Sprintf("displays[%d].positions[%d]", di, pi),
					"cell (%d,%d) out of bounds for %dx%d grid", p.X, p.Y, d.HorizontalCount, d.VerticalCount)
			}
		}
	}
	return nil
}

// derive computes every field spec.md §3 describes as "derived": per-settings
// delay/weight/min-brightness color/total LED count, and per-OpcPixelRange
// sample count / kernel radius / kernel weights.
func (s *Settings) derive() {
	s.DelayMS = 1000 / s.FPSMax
	s.Weight = 1.0 - s.Fade

	level := s.MinBrightness / 3
	s.MinBrightnessColor = bgra.Pack(level, level, level, 0xFF)

	total := 0
	for _, d := range s.Displays {
		total += len(d.Positions)
	}
	s.TotalLEDCount = total

	for si := range s.Servers {
		server := &s.Servers[si]
		for ci := range server.Channels {
			channel := &server.Channels[ci]
			channelTotal := 0
			for pi := range channel.Pixels {
				r := &channel.Pixels[pi]
				r.deriveKernel()
				channelTotal += r.PixelCount
			}
			channel.TotalPixelCount = channelTotal
		}
	}
}

// deriveKernel computes SampleCount, KernelRadius and KernelWeights for one
// OpcPixelRange, per spec.md §3's exact formula.
func (r *OpcPixelRange) deriveKernel() {
	sampleCount := 0
	for _, indices := range r.DisplayIndex {
		sampleCount += len(indices)
	}
	r.SampleCount = sampleCount

	if sampleCount > 1 && r.PixelCount >= 3*sampleCount {
		radius := r.PixelCount / (2 * sampleCount)
		r.KernelRadius = radius
		r.KernelWeights = gaussianKernel(radius)
	} else {
		r.KernelRadius = 0
		r.KernelWeights = nil
	}
}

// gaussianKernel builds a length-(2*radius+1) discrete Gaussian with
// sigma = radius/3, normalized to sum to 1.
func gaussianKernel(radius int) []float64 {
	sigma := float64(radius) / 3.0
	weights := make([]float64, 2*radius+1)
	sum := 0.0
	for k := range weights {
		x := float64(k - radius)
		w := math.Exp(-(x * x) / (2 * sigma * sigma))
		weights[k] = w
		sum += w
	}
	for k := range weights {
		weights[k] /= sum
	}
	return weights
}
