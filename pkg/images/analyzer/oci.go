// Based on `config.config` in https://github.com/opencontainers/image-spec/blob/main/config.md .
package analyzer

import (
	"maps"
	"slices"
)

type RootFs struct {
	Type    string   `json:"type"`
	DiffIds []string `json:"diff_ids"`
}

// Config represents the configuration of a container image.
//
// This is a subset of the spec, which matters to run tools in the container.
type Config struct {
	Entrypoint []string            `json:"Entrypoint,omitempty"`
	Cmd        []string            `json:"Cmd,omitempty"`
	Env        []string            `json:"Env,omitempty"`
	Volumes    map[string]struct{} `json:"Volumes,omitempty"`
	WorkingDir string              `json:"WorkingDir,omitempty"`
}

func (imc Config) Equal(other Config) bool {
	return slices.Equal(imc.Entrypoint, other.Entrypoint) &&
		slices.Equal(imc.Cmd, other.Cmd) &&
		slices.Equal(imc.Env, other.Env) &&
		maps.Equal(imc.Volumes, other.Volumes) &&
		imc.WorkingDir == other.WorkingDir
}

type Image struct {
	Os           *string `json:"os"`
	Architecture *string `json:"architecture"`
	Config       Config  `json:"config"`
	RootFs       *RootFs `json:"rootfs"`
}

func (cf Image) IsValid() bool {
	return cf.Os != nil && cf.Architecture != nil && cf.RootFs != nil
}
