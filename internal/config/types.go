// Package config loads and validates the Settings aggregate that every
// other package in this module treats as an immutable, shared-by-reference
// value for the lifetime of the process.
//
// Grounded on the teacher's internal/config.Config (a struct decoded
// directly from a JSON file with encoding/json, no CLI flags beyond the
// path) and on vincent99-velocipi's config.Config (a single aggregate with
// derived/default values computed once at Load time).
package config

import "github.com/kcurtis/adalight-listener/internal/bgra"

// Position is one LED's grid cell within a DisplayConfig's sample block.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DisplayConfig describes one physical display's LED layout.
type DisplayConfig struct {
	HorizontalCount int        `json:"horizontalCount"`
	VerticalCount   int        `json:"verticalCount"`
	Positions       []Position `json:"positions"`
}

// OpcPixelRange is one contiguous run of OPC pixels fed from one or more
// displays' LEDs, plus the Gaussian smoothing kernel derived at load time.
type OpcPixelRange struct {
	PixelCount   int     `json:"pixelCount"`
	DisplayIndex [][]int `json:"displayIndex"`

	// Derived at load time.
	SampleCount   int
	KernelRadius  int
	KernelWeights []float64
}

// OpcChannel is one OPC channel id with its ordered pixel ranges.
type OpcChannel struct {
	Channel int             `json:"channel"`
	Pixels  []OpcPixelRange `json:"pixels"`

	// TotalPixelCount is the sum of Pixels[i].PixelCount, derived at load time.
	TotalPixelCount int
}

// OpcServer is one configured OPC/BOB TCP destination.
type OpcServer struct {
	Host         string       `json:"host"`
	Port         int          `json:"port"`
	AlphaChannel bool         `json:"alphaChannel"`
	Channels     []OpcChannel `json:"channels"`
}

// Settings is the immutable, process-lifetime configuration aggregate.
type Settings struct {
	MinBrightness byte    `json:"minBrightness"`
	Fade          float64 `json:"fade"`
	TimeoutMS     uint32  `json:"timeout"`
	FPSMax        uint32  `json:"fpsMax"`
	ThrottleMS    uint32  `json:"throttleTimer"`

	Displays []DisplayConfig `json:"displays"`
	Servers  []OpcServer     `json:"servers"`

	// Derived fields, computed once by Load/derive.
	DelayMS             uint32
	Weight              float64
	MinBrightnessColor  bgra.Word
	TotalLEDCount       int
}
