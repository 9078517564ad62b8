package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// DefaultFrameSamples is the per-frame sample count streamed to consumers
// (128 ms at 16 kHz).
const DefaultFrameSamples = 2048

// ExecDevice captures audio by running an external command (arecord, sox,
// ffmpeg) that writes raw little-endian 16-bit mono PCM to stdout. This
// keeps the capture backend pluggable without cgo.
type ExecDevice struct {
	cmd          []string
	frameSamples int
}

// NewExecDevice parses the capture command line. frameSamples <= 0 selects
// DefaultFrameSamples.
func NewExecDevice(command string, frameSamples int) (*ExecDevice, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("capture command is empty")
	}
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &ExecDevice{cmd: args, frameSamples: frameSamples}, nil
}

// Open starts the capture process and begins streaming frames. Process
// start failures map onto the capture error taxonomy: a missing binary is
// ErrUnsupported, an access failure is ErrPermissionDenied.
func (d *ExecDevice) Open(sampleRate int) (Stream, error) {
	cmd := exec.Command(d.cmd[0], d.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		default:
			return nil, fmt.Errorf("start capture command: %w", err)
		}
	}

	s := &execStream{
		cmd:        cmd,
		out:        stdout,
		sampleRate: sampleRate,
		frames:     make(chan Frame, 8),
		done:       make(chan struct{}),
	}
	go s.pump(d.frameSamples)
	return s, nil
}

type execStream struct {
	cmd        *exec.Cmd
	out        io.ReadCloser
	sampleRate int
	frames     chan Frame
	done       chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

func (s *execStream) pump(frameSamples int) {
	defer close(s.frames)
	buf := make([]byte, frameSamples*2)
	for {
		if _, err := io.ReadFull(s.out, buf); err != nil {
			return
		}
		frame := make(Frame, frameSamples)
		for i := range frame {
			frame[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

func (s *execStream) Frames() <-chan Frame { return s.frames }

func (s *execStream) SampleRate() int { return s.sampleRate }

// Close stops the capture process but does not consume frames: whatever is
// buffered stays in the channel for the caller to drain before it closes,
// so the tail of the recording survives a stop.
func (s *execStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.out.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.closeErr = s.cmd.Wait()
	})
	return s.closeErr
}

// MemoryDevice replays a fixed PCM buffer as a capture stream. Used by
// tests and by offline re-scoring of stored recordings. The frame channel
// closes once the buffer is exhausted, which consumers treat as the natural
// end of capture; set Hold to keep the stream open until Close instead.
type MemoryDevice struct {
	PCM          []int16
	FrameSamples int
	Hold         bool
	// OpenErr, when set, is returned from Open unchanged. Lets tests
	// exercise the permission/unsupported paths.
	OpenErr error
}

func (d *MemoryDevice) Open(sampleRate int) (Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	frameSamples := d.FrameSamples
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}

	s := &memoryStream{
		sampleRate: sampleRate,
		frames:     make(chan Frame),
		done:       make(chan struct{}),
	}
	go func() {
		defer close(s.frames)
		for off := 0; off < len(d.PCM); off += frameSamples {
			end := off + frameSamples
			if end > len(d.PCM) {
				end = len(d.PCM)
			}
			frame := make(Frame, end-off)
			copy(frame, d.PCM[off:end])
			select {
			case s.frames <- frame:
			case <-s.done:
				return
			}
		}
		if d.Hold {
			<-s.done
		}
	}()
	return s, nil
}

type memoryStream struct {
	sampleRate int
	frames     chan Frame
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *memoryStream) Frames() <-chan Frame { return s.frames }

func (s *memoryStream) SampleRate() int { return s.sampleRate }

func (s *memoryStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
