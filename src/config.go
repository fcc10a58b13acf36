package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	Per-unit YAML configuration for refclockd (spec section 6
 *		"Configuration inputs"): which stations to instantiate, at
 *		what NTP SHM unit number, and their fudge/gain parameters.
 *		No network I/O, no defaults baked into the core — this is
 *		pure data loading, mirroring the teacher's own tocalls.yaml
 *		loader (deviceid.go) rather than its bespoke keyword config
 *		file parser.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StationKind names which demodulator a UnitConfig instantiates.
type StationKind string

const (
	StationCHU  StationKind = "chu"
	StationWWV  StationKind = "wwv"
	StationIRIG StationKind = "irig"
)

// UnitConfig is one station instance's configuration, per spec section 6.
type UnitConfig struct {
	Station StationKind `yaml:"station"`
	Unit    int         `yaml:"unit"`

	// Fudgetime1 is the propagation delay fudge for WWV (or the station
	// delay for CHU), in seconds. Unused by IRIG.
	Fudgetime1 float64 `yaml:"fudgetime1"`
	// Fudgetime2 is WWVH's propagation delay fudge, or (for IRIG) the
	// frequency vernier in PPM. Unused by CHU.
	Fudgetime2 float64 `yaml:"fudgetime2"`

	// Gain is the initial monitor/AGC gain, applied only when nonzero
	// (CHU/WWV: codec gain, 0-16383, defaults 127 for CHU and 8191 for
	// WWV; IRIG: reported on the timecode line only, default 127).
	Gain int `yaml:"gain"`

	// AudioDevice names the capture source handed to the external audio
	// collaborator (cmd/refclockd); the core never opens it itself.
	AudioDevice string `yaml:"audio_device"`
}

// Config is the top level document: one or more station units.
type Config struct {
	Units []UnitConfig `yaml:"units"`
}

// ErrNoUnits is returned by Validate when a config document names no
// stations at all.
var ErrNoUnits = fmt.Errorf("refclock: configuration names no units")

// LoadConfig reads and parses a YAML configuration document from r.
func LoadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("refclock: reading configuration: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("refclock: parsing configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile opens path and loads it via LoadConfig.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("refclock: opening configuration %q: %w", path, err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks structural constraints the loader itself doesn't
// enforce: at least one unit, valid station kind, unit number in the
// SHM segment's addressable range.
func (c Config) Validate() error {
	if len(c.Units) == 0 {
		return ErrNoUnits
	}
	for i, u := range c.Units {
		switch u.Station {
		case StationCHU, StationWWV, StationIRIG:
		default:
			return fmt.Errorf("refclock: unit %d: unknown station kind %q", i, u.Station)
		}
		if u.Unit < 0 || u.Unit >= NTPSHMMaxUnits {
			return fmt.Errorf("refclock: unit %d: shm unit %d out of range [0,%d)", i, u.Unit, NTPSHMMaxUnits)
		}
	}
	return nil
}
