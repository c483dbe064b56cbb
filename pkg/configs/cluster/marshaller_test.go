package cluster_test

import (
	"errors"
	"testing"
	"time"

	"github.com/glass-survey/glass-image/pkg/configs/cluster"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestUnmarshal(t *testing.T) {
	t.Run("it loads kubernetes config from yaml", func(t *testing.T) {
		t.Setenv(cluster.EnvKubeconfig, "")
		result, err := cluster.Unmarshal([]byte(`
backend: kubernetes
kubernetes:
  namespace: glass-testing
  image: ghcr.io/glass-survey/glass-image:v0.1.0
  service_account: glass-runner
  volume:
    claim: glass-datasets
    mount_path: /data/
  resources:
    cpu: "8"
    memory: 64Gi
  poll_interval: 30s
`))
		if err != nil {
			t.Fatalf("failed to parse config: %v", err)
		}

		if result.Backend() != cluster.Kubernetes {
			t.Errorf("backend: %s", result.Backend())
		}
		k := result.Kubernetes()
		if k.Namespace() != "glass-testing" {
			t.Errorf("namespace: %s", k.Namespace())
		}
		if k.Image() != "ghcr.io/glass-survey/glass-image:v0.1.0" {
			t.Errorf("image: %s", k.Image())
		}
		if k.ServiceAccount() != "glass-runner" {
			t.Errorf("service account: %s", k.ServiceAccount())
		}
		if k.Kubeconfig() != "" {
			t.Errorf("kubeconfig: %s", k.Kubeconfig())
		}
		if k.Volume().Claim() != "glass-datasets" || k.Volume().MountPath() != "/data" {
			t.Errorf("volume: %+v", k.Volume())
		}
		if k.PollInterval() != 30*time.Second {
			t.Errorf("poll interval: %s", k.PollInterval())
		}
		if q := k.Resources()["memory"]; !q.Equal(resource.MustParse("64Gi")) {
			t.Errorf("memory: %s", q.String())
		}
		if q := k.Resources()["cpu"]; !q.Equal(resource.MustParse("8")) {
			t.Errorf("cpu: %s", q.String())
		}
	})

	t.Run("local backend is the default", func(t *testing.T) {
		result, err := cluster.Unmarshal([]byte(``))
		if err != nil {
			t.Fatal(err)
		}
		if result.Backend() != cluster.Local || result.Local().Workers() != 1 {
			t.Errorf("unexpected: %s, %+v", result.Backend(), result.Local())
		}

		result, err = cluster.Unmarshal([]byte("local:\n  workers: 4\n"))
		if err != nil {
			t.Fatal(err)
		}
		if result.Local().Workers() != 4 {
			t.Errorf("workers: %d", result.Local().Workers())
		}
	})

	t.Run("image falls back to the environment", func(t *testing.T) {
		t.Setenv(cluster.EnvImage, "registry.example.com/glass:env")
		result, err := cluster.Unmarshal([]byte(`
backend: kubernetes
kubernetes:
  namespace: ns
  volume: {claim: c, mount_path: /data}
`))
		if err != nil {
			t.Fatal(err)
		}
		if got := result.Kubernetes().Image(); got != "registry.example.com/glass:env" {
			t.Errorf("image: %s", got)
		}
	})

	for name, content := range map[string]string{
		"unknown backend":      "backend: slurm\n",
		"missing kubernetes":   "backend: kubernetes\n",
		"missing namespace":    "backend: kubernetes\nkubernetes:\n  image: x\n  volume: {claim: c, mount_path: /data}\n",
		"relative mount path":  "backend: kubernetes\nkubernetes:\n  namespace: n\n  image: x\n  volume: {claim: c, mount_path: data}\n",
		"broken quantity":      "backend: kubernetes\nkubernetes:\n  namespace: n\n  image: x\n  volume: {claim: c, mount_path: /d}\n  resources: {cpu: lots}\n",
		"broken poll interval": "backend: kubernetes\nkubernetes:\n  namespace: n\n  image: x\n  volume: {claim: c, mount_path: /d}\n  poll_interval: soon\n",
		"negative workers":     "local:\n  workers: -1\n",
		"unknown key":          "backend: local\nworkerz: 3\n",
	} {
		t.Run(name+" is a configuration error", func(t *testing.T) {
			t.Setenv(cluster.EnvImage, "")
			_, err := cluster.Unmarshal([]byte(content))
			if !errors.Is(err, gerrors.ErrConfiguration) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
