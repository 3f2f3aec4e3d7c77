package voice

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var initOnce sync.Once

// openDeviceStream is the production StreamOpener backed by the default
// PortAudio input device.
func openDeviceStream(sampleRate, framesPerBuffer int) (Stream, error) {
	var initErr error
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", initErr)
	}

	buf := make([]int16, framesPerBuffer)
	s, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("open default stream at %d Hz: %w", sampleRate, err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return &deviceStream{s: s, buf: buf}, nil
}

// deviceStream adapts a PortAudio blocking stream, which reads into the
// buffer registered at open time.
type deviceStream struct {
	s   *portaudio.Stream
	buf []int16
}

func (d *deviceStream) Read(dst []int16) error {
	if err := d.s.Read(); err != nil {
		return err
	}
	copy(dst, d.buf)
	return nil
}

func (d *deviceStream) Close() error {
	_ = d.s.Stop()
	return d.s.Close()
}
