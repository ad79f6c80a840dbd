package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrNotRecording is returned by Stop when no capture is running.
var ErrNotRecording = errors.New("not recording")

// MalgoRecorder captures 16-bit mono PCM from the default input device and
// writes each recording as a WAV file in Dir.
type MalgoRecorder struct {
	Dir        string
	SampleRate int

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	started time.Time

	bufMu sync.Mutex
	buf   bytes.Buffer
}

func NewMalgoRecorder(dir string, sampleRate int) (*MalgoRecorder, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &MalgoRecorder{Dir: dir, SampleRate: sampleRate}, nil
}

func (r *MalgoRecorder) format() Format {
	return Format{SampleRate: r.SampleRate, Channels: 1, BitsPerSample: 16}
}

func (r *MalgoRecorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device != nil {
		return nil
	}
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format)
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(r.SampleRate)
	cfg.Capture.Format = format
	cfg.Capture.Channels = 1
	cfg.Alsa.NoMMap = 1

	r.bufMu.Lock()
	r.buf.Reset()
	r.bufMu.Unlock()
	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			r.bufMu.Lock()
			r.buf.Write(input[:n])
			r.bufMu.Unlock()
		},
	})
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	r.ctx = actx
	r.device = device
	r.started = time.Now()
	return nil
}

func (r *MalgoRecorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return "", ErrNotRecording
	}
	_ = r.device.Stop()
	r.device.Uninit()
	_ = r.ctx.Uninit()
	r.ctx.Free()
	r.device, r.ctx = nil, nil

	r.bufMu.Lock()
	pcm := append([]byte(nil), r.buf.Bytes()...)
	r.buf.Reset()
	r.bufMu.Unlock()
	started := r.started

	path := filepath.Join(r.Dir, fmt.Sprintf("mic_%s.wav", started.Format("20060102_150405.000")))
	if err := SaveWAV(path, r.format(), pcm); err != nil {
		return "", err
	}
	return path, nil
}
