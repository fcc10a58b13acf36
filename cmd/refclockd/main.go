// Package main is the refclockd CLI wrapper. It owns exactly the two
// things the core explicitly keeps outside itself: opening an audio
// capture device and publishing into the host's NTP SHM segments. All
// filtering, decoding, and offset-filtering happens in package refclock.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"

	refclock "github.com/doismellburning/samoyed/src"
)

// captureBufSamples is the audio callback's buffer size: 100 ms at 8 kHz,
// generous enough that Receive's per-buffer overhead stays well under
// the real-time budget even on a loaded host.
const captureBufSamples = 800

func main() {
	configPath := pflag.StringP("config", "c", "refclockd.yaml", "Path to the unit configuration file.")
	logLevel := pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
	publishInterval := pflag.DurationP("publish-interval", "p", time.Second, "How often to drain each unit's offset filter and publish to SHM.")
	pflag.Parse()

	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		refclock.Logger.SetLevel(lvl)
	} else {
		fmt.Fprintf(os.Stderr, "refclockd: ignoring unrecognized log level %q\n", *logLevel)
	}

	cfg, err := refclock.LoadConfigFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "refclockd:", err)
		os.Exit(1)
	}

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "refclockd: portaudio init:", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	pipelines := make([]*pipeline, 0, len(cfg.Units))
	for _, u := range cfg.Units {
		p, err := newPipeline(u)
		if err != nil {
			fmt.Fprintln(os.Stderr, "refclockd:", err)
			os.Exit(1)
		}
		pipelines = append(pipelines, p)
	}
	defer func() {
		for _, p := range pipelines {
			p.close()
		}
	}()

	for _, p := range pipelines {
		if err := p.stream.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "refclockd: starting audio stream:", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*publishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
			for _, p := range pipelines {
				p.publish()
			}
		}
	}
}

// pipeline ties one configured station's demodulator, audio stream, and
// SHM publisher together. The audio callback is the only place samples
// cross from the capture device into refclock.Receiver.Receive.
type pipeline struct {
	cfg    refclock.UnitConfig
	recv   refclock.OffsetSource
	shm    *refclock.SHMSegment
	stream *portaudio.Stream
	buf    []int16
}

func newPipeline(cfg refclock.UnitConfig) (*pipeline, error) {
	var recv refclock.OffsetSource
	switch cfg.Station {
	case refclock.StationCHU:
		u := refclock.NewCHUUnit(cfg.Unit)
		if cfg.Gain != 0 {
			u.Gain = cfg.Gain
		}
		u.SetFudge(cfg.Fudgetime1)
		recv = u
	case refclock.StationWWV:
		u := refclock.NewWWVUnit(cfg.Unit)
		if cfg.Gain != 0 {
			u.Gain = cfg.Gain
		}
		u.SetFudge(cfg.Fudgetime1, cfg.Fudgetime2)
		recv = u
	case refclock.StationIRIG:
		u := refclock.NewIRIGUnit(cfg.Unit)
		if cfg.Gain != 0 {
			u.Gain = cfg.Gain
		}
		u.SetFudge(cfg.Fudgetime2)
		recv = u
	default:
		return nil, fmt.Errorf("unit %d: unknown station kind %q", cfg.Unit, cfg.Station)
	}

	shm, err := refclock.AttachSHM(cfg.Unit)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		cfg:  cfg,
		recv: recv,
		shm:  shm,
		buf:  make([]int16, captureBufSamples),
	}

	deviceInfo, err := selectInputDevice(cfg.AudioDevice)
	if err != nil {
		shm.Detach()
		return nil, fmt.Errorf("unit %d: %w", cfg.Unit, err)
	}
	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   deviceInfo,
			Channels: 1,
			Latency:  deviceInfo.DefaultLowInputLatency,
		},
		SampleRate:      float64(refclock.SampleRate8k),
		FramesPerBuffer: len(p.buf),
	}
	stream, err := portaudio.OpenStream(streamParams, p.onSamples)
	if err != nil {
		shm.Detach()
		return nil, fmt.Errorf("unit %d: opening audio device: %w", cfg.Unit, err)
	}
	p.stream = stream
	return p, nil
}

// selectInputDevice resolves a configured device name to a PortAudio
// device, or falls back to the host's default input device when name
// is empty.
func selectInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating audio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device named %q", name)
}

// onSamples is the PortAudio capture callback: it stamps the buffer with
// the current wall-clock time and hands it straight to the demodulator,
// per spec section 5's ordering guarantee.
func (p *pipeline) onSamples(in []int16) {
	captureTS := refclock.FromFloat(float64(time.Now().UnixNano()) / 1e9)
	p.recv.Receive(in, captureTS)
}

// publish drains the unit's offset filter and writes one sample into its
// NTP SHM segment, per spec section 6's writer-side handshake.
func (p *pipeline) publish() {
	offset, _, n := p.recv.RequestOffset()
	if n == 0 {
		return
	}
	now := time.Now()
	clockTime := now.Add(time.Duration(offset * float64(time.Second)))
	p.shm.Publish(1, refclock.SHMSample{
		ClockSec:   clockTime.Unix(),
		ClockUsec:  int32(clockTime.Nanosecond() / 1000),
		ReceiveSec: now.Unix(),
		UsecRecv:   int32(now.Nanosecond() / 1000),
		Leap:       0,
		Precision:  -20,
		NSamples:   int32(n),
	})
}

func (p *pipeline) close() {
	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
	}
	p.shm.Detach()
}
