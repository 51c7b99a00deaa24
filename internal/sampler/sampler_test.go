package sampler

import (
	"errors"
	"testing"

	"github.com/kcurtis/adalight-listener/internal/bgra"
	"github.com/kcurtis/adalight-listener/internal/config"
	"github.com/kcurtis/adalight-listener/internal/framesource"
	"github.com/kcurtis/adalight-listener/internal/gammatable"
	"github.com/kcurtis/adalight-listener/internal/pixelbuffer"
)

func oneDisplaySettings(minBrightness byte, fade float64) *config.Settings {
	level := minBrightness / 3
	return &config.Settings{
		MinBrightness: minBrightness,
		Fade:          fade,
		FPSMax:        30,
		TimeoutMS:     50,
		Displays: []config.DisplayConfig{
			{HorizontalCount: 1, VerticalCount: 1, Positions: []config.Position{{X: 0, Y: 0}}},
		},
		Weight:             1.0 - fade,
		TotalLEDCount:      1,
		MinBrightnessColor: bgra.Pack(level, level, level, 0xFF),
	}
}

func staticFactory(src framesource.Source) SourceFactory {
	return func(d int, display config.DisplayConfig) (framesource.Source, error) {
		return src, nil
	}
}

func TestCreateResourcesSeedsMinBrightnessColor(t *testing.T) {
	settings := oneDisplaySettings(90, 0)
	src := framesource.NewStatic(16, 16, [4]byte{0, 0, 0, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if !smp.Acquired() {
		t.Fatalf("expected Acquired() == true")
	}
	if len(smp.previousColors) != 1 {
		t.Fatalf("len(previousColors) = %d, want 1", len(smp.previousColors))
	}
	level := byte(90 / 3)
	c := smp.previousColors[0]
	if c.R() != level || c.G() != level || c.B() != level {
		t.Fatalf("seed color = (%d,%d,%d), want (%d,%d,%d)", c.R(), c.G(), c.B(), level, level, level)
	}
	if c.A() != 0xFF {
		t.Fatalf("seed alpha = %#x, want 0xff", c.A())
	}
}

func TestAllBlackInputConvergesToMinBrightnessThird(t *testing.T) {
	settings := oneDisplaySettings(60, 0)
	src := framesource.NewStatic(16, 16, [4]byte{0, 0, 0, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}
	c := smp.previousColors[0]
	want := byte(60 / 3)
	if c.R() != want || c.G() != want || c.B() != want {
		t.Fatalf("color = (%d,%d,%d), want (%d,%d,%d)", c.R(), c.G(), c.B(), want, want, want)
	}
}

func TestMinBrightnessLiftLiteralExample(t *testing.T) {
	settings := oneDisplaySettings(64, 0)
	// (R,G,B) = (10,0,0) for every one of the 256 samples -> average (10,0,0).
	src := framesource.NewStatic(16, 16, [4]byte{0, 0, 10, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}
	c := smp.previousColors[0]
	if c.R() != 0 || c.G() != 27 || c.B() != 27 {
		t.Fatalf("color = (%d,%d,%d), want (0,27,27)", c.R(), c.G(), c.B())
	}
}

func TestFadeZeroDependsOnlyOnCurrentTick(t *testing.T) {
	settings := oneDisplaySettings(0, 0)
	src := framesource.NewStatic(16, 16, [4]byte{1, 2, 3, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}
	first := smp.previousColors[0]

	src.SetPixel(0, 0, [4]byte{40, 50, 60, 0xFF})
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.SetPixel(x, y, [4]byte{40, 50, 60, 0xFF})
		}
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}
	second := smp.previousColors[0]
	if second == first {
		t.Fatalf("expected second tick's color to reflect the new image, got unchanged %v", second)
	}
	if second.R() != 60 || second.G() != 50 || second.B() != 40 {
		t.Fatalf("color = (%d,%d,%d), want (60,50,40)", second.R(), second.G(), second.B())
	}
}

func TestRenderSerialFalseWhenNotAcquired(t *testing.T) {
	settings := config.Default()
	smp := New(settings, gammatable.New())
	buf := pixelbuffer.Serial(settings.TotalLEDCount)
	if smp.RenderSerial(buf) {
		t.Fatalf("expected RenderSerial to return false before CreateResources")
	}
}

func TestRenderSerialLength(t *testing.T) {
	settings := config.Default()
	src := framesource.NewStatic(64, 64, [4]byte{10, 20, 30, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}
	buf := pixelbuffer.Serial(settings.TotalLEDCount)
	if !smp.RenderSerial(buf) {
		t.Fatalf("RenderSerial returned false")
	}
	if got, want := len(buf.Data()), 6+3*settings.TotalLEDCount; got != want {
		t.Fatalf("len(Data()) = %d, want %d", got, want)
	}
}

func TestFreeResourcesResetsAcquired(t *testing.T) {
	settings := config.Default()
	src := framesource.NewStatic(32, 32, [4]byte{0, 0, 0, 0xFF})
	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(staticFactory(src)); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	smp.FreeResources()
	if smp.Acquired() {
		t.Fatalf("expected Acquired() == false after FreeResources")
	}
}

func TestCreateResourcesFailsWhenEveryFactoryFails(t *testing.T) {
	settings := config.Default()
	smp := New(settings, gammatable.New())
	failing := func(d int, display config.DisplayConfig) (framesource.Source, error) {
		return nil, errors.New("no source available")
	}
	if err := smp.CreateResources(failing); err == nil {
		t.Fatalf("expected error when every display factory fails")
	}
}

// multiDisplaySettings builds 3 displays with 1, 2 and 3 LEDs respectively
// so global LED indices (0), (1,2) and (3,4,5) are each distinguishable.
func multiDisplaySettings() *config.Settings {
	return &config.Settings{
		MinBrightness: 0,
		Fade:          0,
		Weight:        1,
		FPSMax:        30,
		TimeoutMS:     50,
		Displays: []config.DisplayConfig{
			{HorizontalCount: 1, VerticalCount: 1, Positions: []config.Position{{X: 0, Y: 0}}},
			{HorizontalCount: 2, VerticalCount: 1, Positions: []config.Position{{X: 0, Y: 0}, {X: 1, Y: 0}}},
			{HorizontalCount: 3, VerticalCount: 1, Positions: []config.Position{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}},
		},
		TotalLEDCount:      6,
		MinBrightnessColor: bgra.Pack(1, 1, 1, 0xFF),
	}
}

// TestTakeSamplesSkipsFailedDisplayWithoutCorruptingOthers exercises the
// case where an earlier display's factory call fails: D0 fails, D1 and D2
// succeed with distinct, recognizable fill colors. Each surviving
// display's own LED slots must end up with that display's own color, and
// the failed display's slot must keep its seeded min-brightness color
// rather than being overwritten with another display's data.
func TestTakeSamplesSkipsFailedDisplayWithoutCorruptingOthers(t *testing.T) {
	settings := multiDisplaySettings()
	d1Src := framesource.NewStatic(16, 16, [4]byte{70, 60, 50, 0xFF})  // BGRA -> R=50,G=60,B=70
	d2Src := framesource.NewStatic(16, 16, [4]byte{130, 120, 110, 0xFF}) // R=110,G=120,B=130

	factory := func(d int, display config.DisplayConfig) (framesource.Source, error) {
		switch d {
		case 0:
			return nil, errors.New("display 0 unavailable")
		case 1:
			return d1Src, nil
		case 2:
			return d2Src, nil
		default:
			t.Fatalf("unexpected display index %d", d)
			return nil, nil
		}
	}

	smp := New(settings, gammatable.New())
	if err := smp.CreateResources(factory); err != nil {
		t.Fatalf("CreateResources: %v", err)
	}
	if err := smp.TakeSamples(); err != nil {
		t.Fatalf("TakeSamples: %v", err)
	}

	// D0's single LED (global index 0) was never sampled; it must keep its
	// seeded min-brightness color untouched.
	seed := smp.previousColors[0]
	if seed != settings.MinBrightnessColor {
		t.Fatalf("display 0 LED = %v, want untouched seed %v", seed, settings.MinBrightnessColor)
	}

	// D1's 2 LEDs (global indices 1,2) must reflect D1's own fill color.
	for _, k := range []int{1, 2} {
		c := smp.previousColors[k]
		if c.R() != 50 || c.G() != 60 || c.B() != 70 {
			t.Fatalf("display 1 LED %d = (%d,%d,%d), want (50,60,70)", k, c.R(), c.G(), c.B())
		}
	}

	// D2's 3 LEDs (global indices 3,4,5) must reflect D2's own fill color,
	// not D1's geometry or pixels.
	for _, k := range []int{3, 4, 5} {
		c := smp.previousColors[k]
		if c.R() != 110 || c.G() != 120 || c.B() != 130 {
			t.Fatalf("display 2 LED %d = (%d,%d,%d), want (110,120,130)", k, c.R(), c.G(), c.B())
		}
	}
}
