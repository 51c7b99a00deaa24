// Package pixelbuffer implements the fixed-layout framing buffers used by
// the serial and OPC/BOB senders: a small byte header followed by a
// payload that grows through repeated Add calls.
//
// Grounded on google-periph's devices/apa102 raster step (serializing a
// color buffer into a wire-specific byte layout) and on the Adalight/OPC
// header layouts described in spec.md §4.2.
package pixelbuffer

import "github.com/kcurtis/adalight-listener/internal/bgra"

// Shape distinguishes the three wire formats this buffer can frame.
type Shape int

const (
	// ShapeSerial is the 6-byte Adalight header, 3 bytes (R,G,B) per LED.
	ShapeSerial Shape = iota
	// ShapeOPC is the 4-byte OPC header, 3 bytes (R,G,B) per pixel.
	ShapeOPC
	// ShapeBOB is the 6-byte BOB-extended OPC header, 4 bytes (R,G,B,A) per pixel.
	ShapeBOB
)

// bobSystemID is the 2-byte BOB-Light system id, 0x0B0B, written as its
// high and low bytes. The reference implementation derives this from the
// constant 0xB0B; both bytes happen to be 0x0B.
const (
	bobSystemIDHi = 0x0B
	bobSystemIDLo = 0x0B
)

// Buffer is a header-prefixed byte buffer with a write cursor. Its total
// length (header plus payload) is fixed at construction time and never
// changes: Data() always returns header_len + payload_len bytes, whether
// or not Add has been called since the last Clear, so a cleared-but-unfilled
// buffer is still a wire-valid, fully-sized frame.
type Buffer struct {
	shape     Shape
	alpha     bool
	headerLen int
	data      []byte
	cursor    int
}

// Serial builds the Adalight-serial buffer shape for totalLEDCount LEDs.
//
// Header: [0x41,0x64,0x61, H, L, H^L^0x55] where (H,L) are the high/low
// bytes of (totalLEDCount-1) as a u16.
func Serial(totalLEDCount int) *Buffer {
	count16 := uint16(totalLEDCount - 1)
	h := byte(count16 >> 8)
	l := byte(count16)
	header := []byte{0x41, 0x64, 0x61, h, l, h ^ l ^ 0x55}
	return newBuffer(ShapeSerial, false, header, totalLEDCount*3)
}

// OPC builds the OPC buffer shape for channel, covering totalPixelCount
// pixels with no alpha channel.
//
// Header: [channel, 0x00, H, L] where (H,L) is 3*totalPixelCount as u16
// big-endian.
func OPC(channel byte, totalPixelCount int) *Buffer {
	length := uint16(3 * totalPixelCount)
	header := []byte{channel, 0x00, byte(length >> 8), byte(length)}
	return newBuffer(ShapeOPC, false, header, totalPixelCount*3)
}

// BOB builds the BOB-extended OPC buffer shape for channel, covering
// totalPixelCount pixels with an alpha channel.
//
// Header: [channel, 0xFF, H, L, 0x0B, 0x0B] where (H,L) is
// 3*totalPixelCount as u16 big-endian (the same length field as OPC, not
// the 4-bytes-per-pixel payload size), followed by the fixed BOB system id.
func BOB(channel byte, totalPixelCount int) *Buffer {
	length := uint16(3 * totalPixelCount)
	header := []byte{channel, 0xFF, byte(length >> 8), byte(length), bobSystemIDHi, bobSystemIDLo}
	return newBuffer(ShapeBOB, true, header, totalPixelCount*4)
}

func newBuffer(shape Shape, alpha bool, header []byte, payloadLen int) *Buffer {
	b := &Buffer{
		shape:     shape,
		alpha:     alpha,
		headerLen: len(header),
		data:      make([]byte, len(header)+payloadLen),
	}
	copy(b.data, header)
	b.cursor = len(header)
	return b
}

// Add writes one color's bytes at the current cursor position: R,G,B (most
// significant bytes first) and, if this buffer's shape carries alpha, A.
// It overwrites in place rather than growing the buffer; callers add
// exactly as many colors as the buffer was sized for between Clear calls.
func (b *Buffer) Add(c bgra.Word) {
	b.data[b.cursor] = c.R()
	b.data[b.cursor+1] = c.G()
	b.data[b.cursor+2] = c.B()
	b.cursor += 3
	if b.alpha {
		b.data[b.cursor] = c.A()
		b.cursor++
	}
}

// Clear zeroes the payload (everything past the header) and resets the
// write cursor to just past the header, without changing the buffer's
// length: Data() immediately after Clear still returns a full-length,
// wire-valid frame of all-zero pixels.
func (b *Buffer) Clear() {
	for i := b.headerLen; i < len(b.data); i++ {
		b.data[i] = 0
	}
	b.cursor = b.headerLen
}

// Data returns the full byte range, header included, always at the fixed
// length this buffer was constructed with.
func (b *Buffer) Data() []byte { return b.data }

// Shape reports which wire format this buffer frames.
func (b *Buffer) Shape() Shape { return b.shape }
