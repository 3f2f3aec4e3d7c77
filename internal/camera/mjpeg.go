package camera

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// maxFrameBytes bounds a single frame; anything larger is a desynced stream.
const maxFrameBytes = 4 << 20

// frameScanner splits a concatenated MJPEG byte stream into individual JPEG
// images by scanning for the SOI and EOI markers.
type frameScanner struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: bufio.NewReaderSize(r, 256*1024)}
}

// next returns the bytes of the next complete frame, from SOI (FFD8) through
// EOI (FFD9) inclusive. It returns io.EOF when the stream ends.
func (s *frameScanner) next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.Write([]byte{0xFF, 0xD8})
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.buf.WriteByte(b)
		if prev == 0xFF && b == 0xD9 {
			out := make([]byte, s.buf.Len())
			copy(out, s.buf.Bytes())
			return out, nil
		}
		prev = b
		if s.buf.Len() > maxFrameBytes {
			return nil, fmt.Errorf("frame exceeds %d bytes, stream desynced", maxFrameBytes)
		}
	}
}

// seekSOI discards bytes until the FFD8 start marker has been consumed.
func (s *frameScanner) seekSOI() error {
	var prev byte
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}

func newByteReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}

// encodeJPEG encodes a frame for the browser feed.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
