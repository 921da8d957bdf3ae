package sim

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/soypat/lcsp"
)

// Config describes a simulated node: its port table, buffer pool, bindings and
// the synthetic traffic fed through it.
type Config struct {
	Capacity   int       `yaml:"capacity"`
	MaxPort    int       `yaml:"max_port"`
	Seed       uint32    `yaml:"seed"`
	Rand       string    `yaml:"rand"`
	Buffers    int       `yaml:"buffers"`
	BufferSize int       `yaml:"buffer_size"`
	Packets    int       `yaml:"packets"`
	ReadEvery  int       `yaml:"read_every"`
	Bindings   []Binding `yaml:"bindings"`
}

// Binding is a port binding set up before traffic starts.
type Binding struct {
	Port    PortSpec `yaml:"port"`
	Kind    string   `yaml:"kind"`
	Backlog int      `yaml:"backlog"`
}

// PortSpec is a port in a config file. It accepts a number, "any" for the
// wildcard port or "dynamic" for a port drawn from the table.
type PortSpec struct {
	Port    lcsp.Port
	Dynamic bool
}

const (
	randXorshift = "xorshift"
	randChaCha   = "chacha"

	kindQueue    = "queue"
	kindCallback = "callback"
)

// UnmarshalYAML implements [yaml.Unmarshaler].
func (ps *PortSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a scalar", value.Line)
	}
	switch value.Value {
	case "any", "*":
		*ps = PortSpec{Port: lcsp.PortAny}
		return nil
	case "dynamic":
		*ps = PortSpec{Port: lcsp.PortUnset, Dynamic: true}
		return nil
	}
	n, err := strconv.ParseUint(value.Value, 10, 8)
	if err != nil {
		return fmt.Errorf("line %d: invalid port %q", value.Line, value.Value)
	}
	*ps = PortSpec{Port: lcsp.Port(n)}
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (ps PortSpec) MarshalYAML() (any, error) {
	return ps.String(), nil
}

func (ps PortSpec) String() string {
	switch {
	case ps.Dynamic:
		return "dynamic"
	case ps.Port == lcsp.PortAny:
		return "any"
	}
	return strconv.Itoa(int(ps.Port))
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Capacity:   16,
		MaxPort:    int(lcsp.DefaultMaxPort),
		Seed:       1,
		Rand:       randXorshift,
		Buffers:    32,
		BufferSize: 256,
		Packets:    1000,
		ReadEvery:  4,
		Bindings: []Binding{
			{Port: PortSpec{Port: 1}, Kind: kindCallback},
			{Port: PortSpec{Port: 10}, Kind: kindQueue, Backlog: 8},
			{Port: PortSpec{Dynamic: true, Port: lcsp.PortUnset}, Kind: kindQueue},
			{Port: PortSpec{Port: lcsp.PortAny}, Kind: kindQueue, Backlog: 4},
		},
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their [DefaultConfig] values, except bindings which are replaced when present.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the config for values the simulator cannot run with.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Capacity <= 0 {
		errs = append(errs, errors.New("capacity must be positive"))
	}
	if cfg.MaxPort < 2 || cfg.MaxPort >= int(lcsp.PortUnset) {
		errs = append(errs, fmt.Errorf("max_port %d out of range [2, %d]", cfg.MaxPort, lcsp.PortUnset-1))
	}
	if cfg.Rand != randXorshift && cfg.Rand != randChaCha {
		errs = append(errs, fmt.Errorf("unknown rand source %q", cfg.Rand))
	}
	if cfg.Buffers <= 0 || cfg.BufferSize <= 0 {
		errs = append(errs, errors.New("buffers and buffer_size must be positive"))
	}
	if cfg.Packets < 0 {
		errs = append(errs, errors.New("packets must not be negative"))
	}
	for i, b := range cfg.Bindings {
		if b.Kind != kindQueue && b.Kind != kindCallback {
			errs = append(errs, fmt.Errorf("binding %d: unknown kind %q", i, b.Kind))
		}
	}
	return errors.Join(errs...)
}
