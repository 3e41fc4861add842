// Package config holds the platform configuration of the dual-core complex:
// the identity constants of each core, the cross-core undefined-instruction
// routing and the interrupt mask.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/dualarm/emu"
)

// SchemaVersion is the version written by Save.
const SchemaVersion = "1.0.0"

// supportedVersions is the range of schema versions Load accepts.
const supportedVersions = "^1"

var (
	// ErrUnsupportedVersion is returned for a schema version outside ^1.
	ErrUnsupportedVersion = errors.New("unsupported platform config version")

	// ErrUnknownFormat is returned for a file that is neither YAML nor JSON.
	ErrUnknownFormat = errors.New("unknown platform config format")

	// ErrInvalidPlatform is returned by Validate.
	ErrInvalidPlatform = errors.New("invalid platform config")
)

// Core describes one core of the platform.
type Core struct {
	ARMv5           bool   `yaml:"armv5" json:"armv5"`
	VectorBase      uint32 `yaml:"vector_base" json:"vector_base"`
	WideThumbFetch  bool   `yaml:"wide_thumb_fetch" json:"wide_thumb_fetch"`
	UndefinedRoute  string `yaml:"undefined_route" json:"undefined_route"`
	UndefinedTarget string `yaml:"undefined_target" json:"undefined_target"`
}

// Platform is the hardware description loaded by the driver.
type Platform struct {
	Version string `yaml:"version" json:"version"`

	CoreA Core `yaml:"core_a" json:"core_a"`
	CoreB Core `yaml:"core_b" json:"core_b"`

	// InterruptMask lists the pending-interrupt bits peripherals may set.
	InterruptMask uint32 `yaml:"interrupt_mask" json:"interrupt_mask"`
}

// Default returns the reference hardware.
func Default() *Platform {
	return &Platform{
		Version:       SchemaVersion,
		CoreA:         fromCoreConfig(emu.DefaultCoreConfig(emu.CoreA)),
		CoreB:         fromCoreConfig(emu.DefaultCoreConfig(emu.CoreB)),
		InterruptMask: emu.DefaultInterruptMask,
	}
}

func fromCoreConfig(cfg emu.CoreConfig) Core {
	return Core{
		ARMv5:           cfg.ARMv5,
		VectorBase:      cfg.VectorBase,
		WideThumbFetch:  cfg.WideThumbFetch,
		UndefinedRoute:  string(cfg.UndefinedRoute),
		UndefinedTarget: cfg.UndefinedTarget.String(),
	}
}

type codec struct {
	unmarshal func([]byte, any) error
	marshal   func(any) ([]byte, error)
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return codec{unmarshal: yaml.Unmarshal, marshal: yaml.Marshal}, nil
	case ".json":
		return codec{
			unmarshal: json.Unmarshal,
			marshal: func(v any) ([]byte, error) {
				return json.MarshalIndent(v, "", "  ")
			},
		}, nil
	}
	return codec{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Load reads a platform from a YAML or JSON file, chosen by extension.
// Missing fields keep their defaults.
func Load(path string) (*Platform, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform config file: %w", err)
	}

	p := Default()
	if err := c.unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse platform config: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the platform to path in the format chosen by extension.
func (p *Platform) Save(path string) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}

	data, err := c.marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize platform config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write platform config file: %w", err)
	}
	return nil
}

// Validate checks the schema version, the routes and the interrupt mask.
func (p *Platform) Validate() error {
	constraint, err := semver.NewConstraint(supportedVersions)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, p.Version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}

	for _, id := range []emu.Identity{emu.CoreA, emu.CoreB} {
		if _, err := p.CoreConfig(id); err != nil {
			return err
		}
	}

	if p.InterruptMask == 0 {
		return fmt.Errorf("%w: interrupt_mask must not be empty", ErrInvalidPlatform)
	}
	return nil
}

// CoreConfig converts the description of core id into emu options data.
func (p *Platform) CoreConfig(id emu.Identity) (emu.CoreConfig, error) {
	c := p.CoreA
	if id == emu.CoreB {
		c = p.CoreB
	}

	route := emu.UndefinedRoute(c.UndefinedRoute)
	if !route.Valid() {
		return emu.CoreConfig{}, fmt.Errorf("%w: core %s: undefined_route %q",
			ErrInvalidPlatform, id, c.UndefinedRoute)
	}

	target, err := emu.ParseIdentity(c.UndefinedTarget)
	if err != nil {
		return emu.CoreConfig{}, fmt.Errorf("%w: core %s: undefined_target: %w",
			ErrInvalidPlatform, id, err)
	}

	return emu.CoreConfig{
		ARMv5:           c.ARMv5,
		VectorBase:      c.VectorBase,
		WideThumbFetch:  c.WideThumbFetch,
		UndefinedRoute:  route,
		UndefinedTarget: target,
	}, nil
}
