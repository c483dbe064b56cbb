package cluster

import (
	"fmt"
	"path"
	"time"

	kos "github.com/glass-survey/glass-image/pkg/utils/os"
	"k8s.io/apimachinery/pkg/api/resource"
)

type ClusterConfigMarshall struct {
	Backend    string                    `yaml:"backend"`
	Local      *LocalConfigMarshall      `yaml:"local,omitempty"`
	Kubernetes *KubernetesConfigMarshall `yaml:"kubernetes,omitempty"`
}

// trySeal verifies configuration values and creates "readonly" version of this.
//
// IT WILL PANIC if any misconfiguration is found.
func (cm *ClusterConfigMarshall) trySeal(path string) *ClusterConfig {
	backend := Backend(cm.Backend)
	if backend == "" {
		backend = Local
	}

	conf := &ClusterConfig{backend: backend}
	switch backend {
	case Local:
		lm := cm.Local
		if lm == nil {
			lm = &LocalConfigMarshall{}
		}
		conf.local = lm.trySeal(path + ".local")
	case Kubernetes:
		conf.kubernetes = nonnil(cm.Kubernetes, path+".kubernetes").trySeal(path + ".kubernetes")
	default:
		panic(fmt.Sprintf("%s.backend should be %s or %s: %q", path, Local, Kubernetes, cm.Backend))
	}
	return conf
}

type LocalConfigMarshall struct {
	Workers int `yaml:"workers"`
}

func (lm *LocalConfigMarshall) trySeal(path string) *LocalConfig {
	workers := lm.Workers
	if workers == 0 {
		workers = 1
	}
	if workers < 0 {
		panic(fmt.Sprintf("%s.workers should be positive: %d", path, workers))
	}
	return &LocalConfig{workers: workers}
}

type KubernetesConfigMarshall struct {
	Namespace      string                `yaml:"namespace"`
	Image          string                `yaml:"image"`
	Kubeconfig     string                `yaml:"kubeconfig,omitempty"`
	ServiceAccount string                `yaml:"service_account,omitempty"`
	Volume         *VolumeConfigMarshall `yaml:"volume"`
	Resources      map[string]string     `yaml:"resources,omitempty"`
	PollInterval   string                `yaml:"poll_interval,omitempty"`
}

func (km *KubernetesConfigMarshall) trySeal(path string) *KubernetesConfig {
	resources := map[string]resource.Quantity{}
	for name, q := range km.Resources {
		quantity, err := resource.ParseQuantity(q)
		if err != nil {
			panic(fmt.Errorf("%s.resources.%s can not be parsed: %w", path, name, err))
		}
		resources[name] = quantity
	}

	poll := 10 * time.Second
	if km.PollInterval != "" {
		d, err := time.ParseDuration(km.PollInterval)
		if err != nil {
			panic(fmt.Errorf("%s.poll_interval can not be parsed: %w", path, err))
		}
		if d <= 0 {
			panic(fmt.Sprintf("%s.poll_interval should be positive: %s", path, d))
		}
		poll = d
	}

	return &KubernetesConfig{
		namespace:      required(km.Namespace, path+".namespace"),
		image:          required(kos.Or(km.Image, EnvImage), path+".image"),
		kubeconfig:     kos.ExpandHome(kos.Or(km.Kubeconfig, EnvKubeconfig)),
		serviceAccount: km.ServiceAccount,
		volume:         nonnil(km.Volume, path+".volume").trySeal(path + ".volume"),
		resources:      resources,
		pollInterval:   poll,
	}
}

type VolumeConfigMarshall struct {
	Claim     string `yaml:"claim"`
	MountPath string `yaml:"mount_path"`
}

func (vm *VolumeConfigMarshall) trySeal(p string) *VolumeConfig {
	mountPath := required(vm.MountPath, p+".mount_path")
	if !path.IsAbs(mountPath) {
		panic(fmt.Sprintf("%s.mount_path should be absolute: %s", p, mountPath))
	}
	return &VolumeConfig{
		claim:     required(vm.Claim, p+".claim"),
		mountPath: path.Clean(mountPath),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
