package cluster

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

type Backend string

const (
	Local      Backend = "local"
	Kubernetes Backend = "kubernetes"
)

// Configuration of the cluster where dataset pipelines are mapped on.
//
// To get a `ClusterConfig` instance, use `Load` or `Unmarshal`.
type ClusterConfig struct {
	backend    Backend
	local      *LocalConfig
	kubernetes *KubernetesConfig
}

// Backend tells which of Local() or Kubernetes() is effective.
func (c *ClusterConfig) Backend() Backend {
	return c.backend
}

func (c *ClusterConfig) Local() *LocalConfig {
	return c.local
}

// Kubernetes configuration. It is nil unless Backend() is Kubernetes.
func (c *ClusterConfig) Kubernetes() *KubernetesConfig {
	return c.kubernetes
}

type LocalConfig struct {
	workers int
}

// Number of pipelines running at once. default = 1
func (l *LocalConfig) Workers() int {
	return l.workers
}

type KubernetesConfig struct {
	namespace      string
	image          string
	kubeconfig     string
	serviceAccount string
	volume         *VolumeConfig
	resources      map[string]resource.Quantity
	pollInterval   time.Duration
}

// k8s namespace where Jobs are created.
func (k *KubernetesConfig) Namespace() string {
	return k.namespace
}

// Container image of glass-image itself, run as a Job.
func (k *KubernetesConfig) Image() string {
	return k.image
}

// Path to kubeconfig file. Empty means in-cluster configuration.
func (k *KubernetesConfig) Kubeconfig() string {
	return k.kubeconfig
}

func (k *KubernetesConfig) ServiceAccount() string {
	return k.serviceAccount
}

// Volume where datasets are placed.
func (k *KubernetesConfig) Volume() *VolumeConfig {
	return k.volume
}

// Resource requests (and limits) of each Job. (example: cpu: 8, memory: 64Gi)
func (k *KubernetesConfig) Resources() map[string]resource.Quantity {
	return k.resources
}

// Interval of polling Job status. default = 10s
func (k *KubernetesConfig) PollInterval() time.Duration {
	return k.pollInterval
}

type VolumeConfig struct {
	claim     string
	mountPath string
}

// Name of PersistentVolumeClaim holding datasets.
func (v *VolumeConfig) Claim() string {
	return v.claim
}

// Path where the volume is mounted in Job containers.
//
// Dataset paths given to the mapper should be under this path.
func (v *VolumeConfig) MountPath() string {
	return v.mountPath
}
