// Package imager loads the imaging configuration file.
//
// The file has three top-level sections:
//
//	glass:      # pipeline-wide settings
//	  rounds: 3
//	default:    # baseline options of every round
//	  wsclean: {size: 4000}
//	  casasc: {solint: 30s}
//	sc:         # per-round overrides, keyed by round index
//	  2:
//	    casasc: {calmode: ap}
//
// Options of a round are resolved from built-in defaults, then the `default` section,
// then the entry of the round in `sc`. Each layer replaces only the keys it specifies.
package imager

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/options"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Glass   options.Imager
	Default Defaults

	// SC holds per-round overrides, keyed by round index.
	SC map[int]Override
}

type Defaults struct {
	WSClean options.WSClean `yaml:"wsclean"`
	CasaSC  options.CasaSC  `yaml:"casasc"`
}

// Override is an entry of the `sc` section.
//
// Nodes are kept undecoded to be laid over defaults on resolution.
type Override struct {
	WSClean *yaml.Node
	CasaSC  *yaml.Node
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Glass: options.DefaultImager(),
		Default: Defaults{
			WSClean: options.DefaultWSClean(),
			CasaSC:  options.DefaultCasaSC(),
		},
		SC: map[int]Override{},
	}
}

// Load reads the configuration file.
//
// Errors on content of the file wrap ErrConfiguration.
func Load(file string) (*Config, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	cfg, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// LoadOrDefault reads the configuration file, or returns Default() if file is empty.
func LoadOrDefault(file string) (*Config, error) {
	if file == "" {
		return Default(), nil
	}
	return Load(file)
}

func Unmarshal(content []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		if errors.Is(err, gerrors.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", gerrors.ErrConfiguration, err)
	}
	return cfg, nil
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return gerrors.NewConfigurationError("line %d: top level should be a mapping", node.Line)
	}

	var glass, def, sc *yaml.Node
	for key, value := range pairs(node) {
		switch key.Value {
		case "glass":
			glass = value
		case "default":
			def = value
		case "sc":
			sc = value
		default:
			return gerrors.NewConfigurationError("line %d: unknown section: %s", key.Line, key.Value)
		}
	}

	if err := decodeStrict(glass, "glass", &c.Glass); err != nil {
		return err
	}
	if c.Glass.Rounds < 1 {
		return gerrors.NewConfigurationError("glass.rounds should be positive: %d", c.Glass.Rounds)
	}
	if c.Glass.Settle < 0 || c.Glass.SettleTimeout < 0 {
		return gerrors.NewConfigurationError("glass.settle and glass.settle_timeout should not be negative")
	}
	if c.Glass.RoundTimeout < 0 {
		return gerrors.NewConfigurationError("glass.round_timeout should not be negative: %s", c.Glass.RoundTimeout)
	}

	if !isNull(def) {
		if def.Kind != yaml.MappingNode {
			return gerrors.NewConfigurationError("line %d: default should be a mapping", def.Line)
		}
		for key, value := range pairs(def) {
			var err error
			switch key.Value {
			case "wsclean":
				err = decodeStrict(value, "default.wsclean", &c.Default.WSClean)
			case "casasc":
				err = decodeStrict(value, "default.casasc", &c.Default.CasaSC)
			default:
				err = gerrors.NewConfigurationError("line %d: unknown block in default: %s", key.Line, key.Value)
			}
			if err != nil {
				return err
			}
		}
	}
	if err := validateWSClean("default.wsclean", c.Default.WSClean); err != nil {
		return err
	}
	if err := validateCasaSC("default.casasc", c.Default.CasaSC); err != nil {
		return err
	}

	overrides, err := unmarshalSC(sc)
	if err != nil {
		return err
	}
	c.SC = overrides

	// resolve every override once, to find errors before any round runs.
	for _, round := range slices.Sorted(maps.Keys(c.SC)) {
		if _, err := c.Resolve(round); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalSC(node *yaml.Node) (map[int]Override, error) {
	overrides := map[int]Override{}
	if isNull(node) {
		return overrides, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, gerrors.NewConfigurationError("line %d: sc should be a mapping", node.Line)
	}

	for key, value := range pairs(node) {
		if key.Tag != "!!int" {
			return nil, gerrors.NewConfigurationError(
				"line %d: sc key should be a non-negative integer: %q", key.Line, key.Value,
			)
		}
		round, err := strconv.Atoi(key.Value)
		if err != nil || round < 0 {
			return nil, gerrors.NewConfigurationError(
				"line %d: sc key should be a non-negative integer: %q", key.Line, key.Value,
			)
		}

		if isNull(value) || value.Kind != yaml.MappingNode || len(value.Content) == 0 {
			return nil, gerrors.NewConfigurationError(
				"line %d: sc.%d should have wsclean or casasc", key.Line, round,
			)
		}

		ov := Override{}
		for k, v := range pairs(value) {
			switch k.Value {
			case "wsclean":
				ov.WSClean = v
			case "casasc":
				if round == 0 {
					return nil, gerrors.NewConfigurationError(
						"line %d: sc.0 can not have casasc: round 0 is not calibrated", k.Line,
					)
				}
				ov.CasaSC = v
			default:
				return nil, gerrors.NewConfigurationError(
					"line %d: unknown block in sc.%d: %s", k.Line, round, k.Value,
				)
			}
		}
		overrides[round] = ov
	}
	return overrides, nil
}

// Resolve returns options of the round.
//
// For round 0, calibration options are nil.
//
// Resolve on nil *Config returns built-in defaults.
// It is deterministic: for the same Config and round, it returns equal values.
func (c *Config) Resolve(round int) (options.Round, error) {
	if round < 0 {
		return options.Round{}, fmt.Errorf("round should be non-negative: %d", round)
	}
	if c == nil {
		return options.Defaults(round), nil
	}

	ws := c.Default.WSClean
	var sc *options.CasaSC
	if 0 < round {
		s := c.Default.CasaSC
		sc = &s
	}

	if ov, ok := c.SC[round]; ok {
		where := fmt.Sprintf("sc.%d", round)
		if ov.WSClean != nil {
			if err := decodeStrict(ov.WSClean, where+".wsclean", &ws); err != nil {
				return options.Round{}, err
			}
		}
		if ov.CasaSC != nil && sc != nil {
			if err := decodeStrict(ov.CasaSC, where+".casasc", sc); err != nil {
				return options.Round{}, err
			}
		}
		if err := validateWSClean(where+".wsclean", ws); err != nil {
			return options.Round{}, err
		}
		if sc != nil {
			if err := validateCasaSC(where+".casasc", *sc); err != nil {
				return options.Round{}, err
			}
		}
	}

	ws.Round = round
	if sc != nil {
		sc.Round = round
	}
	return options.Round{Index: round, WSClean: ws, CasaSC: sc}, nil
}

// decodeStrict decodes node onto out, rejecting keys which out does not have.
//
// Null node leaves out untouched.
func decodeStrict(node *yaml.Node, where string, out any) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return gerrors.NewConfigurationError("line %d: %s should be a mapping", node.Line, where)
	}

	known := knownKeys(reflect.TypeOf(out).Elem())
	for key := range pairs(node) {
		if _, ok := known[key.Value]; !ok {
			return gerrors.NewConfigurationError(
				"line %d: unknown key in %s: %s", key.Line, where, key.Value,
			)
		}
	}

	if err := node.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %w", gerrors.ErrConfiguration, where, err)
	}
	return nil
}

func knownKeys(t reflect.Type) map[string]struct{} {
	keys := map[string]struct{}{}
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}
	return keys
}

func pairs(node *yaml.Node) iter.Seq2[*yaml.Node, *yaml.Node] {
	return func(yield func(*yaml.Node, *yaml.Node) bool) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !yield(node.Content[i], node.Content[i+1]) {
				return
			}
		}
	}
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func validateWSClean(where string, ws options.WSClean) error {
	switch {
	case ws.Size <= 0:
		return gerrors.NewConfigurationError("%s.size should be positive: %d", where, ws.Size)
	case ws.ChannelsOut <= 0:
		return gerrors.NewConfigurationError("%s.channels_out should be positive: %d", where, ws.ChannelsOut)
	case ws.NIter < 0 || ws.NMIter < 0 || ws.ForceMask < 0 || ws.PSFWindow < 0:
		return gerrors.NewConfigurationError("%s: iteration counts and windows should not be negative", where)
	case ws.FitSpectralPol < 0:
		return gerrors.NewConfigurationError("%s.fit_spectral_pol should not be negative: %d", where, ws.FitSpectralPol)
	case ws.Scale == "":
		return gerrors.NewConfigurationError("%s.scale is empty", where)
	case ws.DataColumn == "":
		return gerrors.NewConfigurationError("%s.data_column is empty", where)
	}
	return nil
}

func validateCasaSC(where string, sc options.CasaSC) error {
	switch {
	case sc.NSPW <= 0:
		return gerrors.NewConfigurationError("%s.nspw should be positive: %d", where, sc.NSPW)
	case sc.Solint == "":
		return gerrors.NewConfigurationError("%s.solint is empty", where)
	case sc.MinSNR < 0:
		return gerrors.NewConfigurationError("%s.minsnr should not be negative: %g", where, sc.MinSNR)
	}
	switch sc.CalMode {
	case "p", "a", "ap":
		return nil
	default:
		return gerrors.NewConfigurationError("%s.calmode should be one of p, a or ap: %q", where, sc.CalMode)
	}
}
