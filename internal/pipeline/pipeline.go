// Package pipeline implements the TimerThread/WorkerThread coordination
// that drives the sampler at a bounded cadence, switches between fast and
// throttled rates, and shuts down cleanly.
//
// Grounded on fkcurrie-fluidnc-led-golang's internal/fluidnc.Client
// readPump/writePump goroutine pair (ticker-driven loops exchanging state
// over channels) and on vincent99-velocipi's hub.go ping-ticker goroutine
// run alongside the main event loop.
package pipeline

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kcurtis/adalight-listener/internal/config"
	"github.com/kcurtis/adalight-listener/internal/gammatable"
	"github.com/kcurtis/adalight-listener/internal/opcpool"
	"github.com/kcurtis/adalight-listener/internal/pixelbuffer"
	"github.com/kcurtis/adalight-listener/internal/sampler"
	"github.com/kcurtis/adalight-listener/internal/serial"
)

type event int

const (
	eventFired event = iota
	eventStopped
)

// Pipeline is the TimerThread+WorkerThread pair described in spec.md §4.7.
// It implements session.Controller via Throttle/Resume.
type Pipeline struct {
	settings *config.Settings
	sampler  *sampler.Sampler
	serial   *serial.Link
	opc      *opcpool.Pool
	factory  sampler.SourceFactory
	logger   *log.Logger

	serialBuf     *pixelbuffer.Buffer
	channelBuffer [][]*pixelbuffer.Buffer // [serverIdx][channelIdx]

	mu        sync.Mutex
	started   bool
	throttled bool
	stopped   bool

	events chan event
	wg     sync.WaitGroup
}

// New builds a Pipeline wired to real SerialLink/OpcPool instances and the
// given frame-source factory (tests and solid-pattern mode supply their own
// factory; a real desktop-duplication factory is out of this module's
// scope per spec.md §1).
func New(settings *config.Settings, factory sampler.SourceFactory, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}

	addrs := make([]string, len(settings.Servers))
	channelBuffers := make([][]*pixelbuffer.Buffer, len(settings.Servers))
	for si, server := range settings.Servers {
		addrs[si] = fmt.Sprintf("%s:%d", server.Host, server.Port)
		channelBuffers[si] = make([]*pixelbuffer.Buffer, len(server.Channels))
		for ci, channel := range server.Channels {
			if server.AlphaChannel {
				channelBuffers[si][ci] = pixelbuffer.BOB(byte(channel.Channel), channel.TotalPixelCount)
			} else {
				channelBuffers[si][ci] = pixelbuffer.OPC(byte(channel.Channel), channel.TotalPixelCount)
			}
		}
	}

	return &Pipeline{
		settings:      settings,
		sampler:       sampler.New(settings, gammatable.New()),
		serial:        serial.New(settings.TimeoutMS, settings.DelayMS),
		opc:           opcpool.New(addrs),
		factory:       factory,
		logger:        logger,
		serialBuf:     pixelbuffer.Serial(settings.TotalLEDCount),
		channelBuffer: channelBuffers,
		events:        make(chan event, 1),
	}
}

// Start spawns the timer and worker goroutines. Calling Start twice is not
// supported, matching the reference's single-shot lifecycle.
func (p *Pipeline) Start() {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.timerLoop()
	}()
	go func() {
		defer p.wg.Done()
		p.workerLoop()
	}()
}

// Stop requests shutdown and blocks until both goroutines have exited.
// Idempotent: a second call returns false without blocking.
func (p *Pipeline) Stop() bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	p.stopped = true
	p.mu.Unlock()

	p.wg.Wait()
	return true
}

// Throttle requests the throttled (low-rate) cadence. Idempotent; returns
// whether it actually changed state (callers use this only as a logging
// hint, per spec.md §4.7).
func (p *Pipeline) Throttle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	changed := !p.throttled
	p.throttled = true
	return changed
}

// Resume requests the fast cadence. Idempotent.
func (p *Pipeline) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	changed := p.throttled
	p.throttled = false
	return changed
}

// timerLoop fires events at the configured cadence. State is read under
// lock but the (effectively non-blocking) channel send and the sleep both
// happen outside the lock, so Throttle/Resume callers never wait on I/O.
func (p *Pipeline) timerLoop() {
	for {
		iterStart := time.Now()

		p.mu.Lock()
		stopped := p.stopped
		throttled := p.throttled
		p.mu.Unlock()

		if stopped {
			p.events <- eventStopped
			return
		}

		interval := time.Duration(p.settings.DelayMS) * time.Millisecond
		if throttled {
			interval = time.Duration(p.settings.ThrottleMS) * time.Millisecond
		}

		p.events <- eventFired

		if remaining := interval - time.Since(iterStart); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

func (p *Pipeline) workerLoop() {
	for ev := range p.events {
		switch ev {
		case eventFired:
			p.handleFired()
		case eventStopped:
			p.handleStopped()
			return
		}
	}
}

func (p *Pipeline) handleFired() {
	if !p.sampler.Acquired() {
		serialOK := p.serial.Open()
		opcOK := p.opc.Open(time.Duration(p.settings.TimeoutMS) * time.Millisecond)
		createErr := p.sampler.CreateResources(p.factory)

		if (serialOK || opcOK) && createErr == nil {
			p.Resume()
		} else {
			p.Throttle()
			p.serialBuf.Clear()
		}
	}

	if err := p.sampler.TakeSamples(); err != nil {
		p.logger.Printf("pipeline: fatal frame source error: %v", err)
	}

	if p.sampler.RenderSerial(p.serialBuf) {
		p.serial.Send(p.serialBuf.Data())
	}

	for si, server := range p.settings.Servers {
		for ci, channel := range server.Channels {
			buf := p.channelBuffer[si][ci]
			p.sampler.RenderChannel(channel, buf)
			p.opc.Send(si, buf.Data())
		}
	}
}

func (p *Pipeline) handleStopped() {
	p.serialBuf.Clear()
	p.serial.Send(p.serialBuf.Data())

	p.sampler.FreeResources()
	p.serial.Close()
	p.opc.Close()
}
