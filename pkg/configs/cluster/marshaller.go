package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// EnvImage is the fallback of kubernetes.image.
	EnvImage = "GLASS_IMAGE"

	// EnvKubeconfig is the fallback of kubernetes.kubeconfig.
	EnvKubeconfig = "KUBECONFIG"
)

// Default returns the configuration used when no file is given: one local worker.
func Default() *ClusterConfig {
	return &ClusterConfig{backend: Local, local: &LocalConfig{workers: 1}}
}

// Load loads cluster config from a file.
//
// args:
//   - filepath: filepath refers a config file. When it is empty, returns Default().
//
// returns *ClusterConfig, error:
//
//	When loading success, returns `(*ClusterConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
//	Errors on the content wrap ErrConfiguration.
func Load(filepath string) (*ClusterConfig, error) {
	if filepath == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	conf, err := Unmarshal(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath, err)
	}
	return conf, nil
}

func Unmarshal(conf []byte) (out *ClusterConfig, err error) {
	var _out ClusterConfigMarshall
	dec := yaml.NewDecoder(bytes.NewReader(conf))
	dec.KnownFields(true)
	if err := dec.Decode(&_out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", gerrors.ErrConfiguration, err)
	}

	defer func() {
		switch r := recover().(type) {
		case nil:
		case error:
			out, err = nil, fmt.Errorf("%w: %w", gerrors.ErrConfiguration, r)
		default:
			out, err = nil, gerrors.NewConfigurationError("%v", r)
		}
	}()
	return _out.trySeal("(root)"), nil
}
