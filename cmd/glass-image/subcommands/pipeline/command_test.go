package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/commandline"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/faketools"
	subpipeline "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/pipeline"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/workloads/k8s"
	"github.com/glass-survey/glass-image/pkg/workloads/k8s/mock"
	"github.com/google/go-cmp/cmp"
	"github.com/youta-t/flarc"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
)

const quickConfig = `
glass:
  rounds: 2
  settle: 0s
default:
  wsclean:
    channels_out: 2
`

// datasets makes datasets each in its own directory under root.
func datasets(t *testing.T, root string, fields ...string) []string {
	t.Helper()
	ret := []string{}
	for _, f := range fields {
		ms := filepath.Join(root, f, f+".ms")
		if err := os.MkdirAll(ms, os.FileMode(0o755)); err != nil {
			t.Fatal(err)
		}
		ret = append(ret, ms)
	}
	return ret
}

func writeFile(t *testing.T, path string, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), os.FileMode(0o644)); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTask_Local(t *testing.T) {
	t.Run("it images each dataset in its directory", func(t *testing.T) {
		root := t.TempDir()
		ds := datasets(t, root, "SB1", "SB2", "SB3")
		cf := common.CommonFlags{
			Sandbox: common.SandboxHost,
			Config:  writeFile(t, filepath.Join(root, "glass.yaml"), quickConfig),
		}
		clusterConf := writeFile(t, filepath.Join(root, "cluster.yaml"), "backend: local\nlocal:\n  workers: 1\n")

		tools := &faketools.Tools{WSCleanFunc: faketools.WSClean, CASAFunc: faketools.CASA}
		cl, _, _ := commandline.New(
			"glass-image pipeline",
			subpipeline.Flag{Cluster: clusterConf, Workers: 2},
			map[string][]string{subpipeline.ARG_DATASETS: ds},
		)

		testee := subpipeline.Task(&subpipeline.Option{})
		if err := testee(context.Background(), logger.Null(), tools, cf, cl, nil); err != nil {
			t.Fatal(err)
		}

		for _, f := range []string{"SB1", "SB2", "SB3"} {
			for _, dir := range []string{"no_selfcal", "round_1", f + "_pcal1.ms"} {
				if _, err := os.Stat(filepath.Join(root, f, dir)); err != nil {
					t.Errorf("%s: %v", f, err)
				}
			}
		}
		if n := len(tools.Calls("wsclean")); n != 6 {
			t.Errorf("wsclean is called %d times", n)
		}
	})

	t.Run("a failure of a dataset does not stop others", func(t *testing.T) {
		root := t.TempDir()
		ds := datasets(t, root, "SB1", "SB2")
		if err := os.Mkdir(filepath.Join(root, "SB1", "round_1"), os.FileMode(0o755)); err != nil {
			t.Fatal(err)
		}
		cf := common.CommonFlags{
			Sandbox: common.SandboxHost,
			Config:  writeFile(t, filepath.Join(root, "glass.yaml"), quickConfig),
		}

		tools := &faketools.Tools{WSCleanFunc: faketools.WSClean, CASAFunc: faketools.CASA}
		cl, _, _ := commandline.New(
			"glass-image pipeline", subpipeline.Flag{},
			map[string][]string{subpipeline.ARG_DATASETS: ds},
		)
		err := subpipeline.Task(&subpipeline.Option{})(context.Background(), logger.Null(), tools, cf, cl, nil)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if !strings.Contains(err.Error(), "SB1") {
			t.Errorf("failed dataset is not named: %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "SB2", "round_1")); err != nil {
			t.Errorf("SB2 is not imaged: %v", err)
		}
	})

	t.Run("when datasets share --workdir, nothing runs", func(t *testing.T) {
		root := t.TempDir()
		ds := datasets(t, root, "SB1", "SB2")
		cf := common.CommonFlags{Sandbox: common.SandboxHost, Workdir: root}

		tools := &faketools.Tools{WSCleanFunc: faketools.WSClean, CASAFunc: faketools.CASA}
		cl, _, _ := commandline.New(
			"glass-image pipeline", subpipeline.Flag{},
			map[string][]string{subpipeline.ARG_DATASETS: ds},
		)
		err := subpipeline.Task(&subpipeline.Option{})(context.Background(), logger.Null(), tools, cf, cl, nil)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if n := len(tools.Calls("wsclean")); n != 0 {
			t.Errorf("wsclean is called %d times", n)
		}
	})

	t.Run("negative --workers is a usage error", func(t *testing.T) {
		cl, _, _ := commandline.New(
			"glass-image pipeline", subpipeline.Flag{Workers: -1},
			map[string][]string{subpipeline.ARG_DATASETS: {"SB1.ms"}},
		)
		err := subpipeline.Task(&subpipeline.Option{})(
			context.Background(), logger.Null(), &faketools.Tools{}, common.CommonFlags{}, cl, nil,
		)
		if !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestTask_Kubernetes(t *testing.T) {
	root := t.TempDir()
	ds := datasets(t, root, "SB1")
	config := writeFile(t, filepath.Join(root, "glass.yaml"), quickConfig)
	clusterConf := writeFile(t, filepath.Join(root, "cluster.yaml"), `
backend: kubernetes
kubernetes:
  namespace: glass
  image: registry.example.com/glass-image:1.0
  kubeconfig: /etc/kube/config
  poll_interval: 1ms
  volume:
    claim: survey-data
    mount_path: `+root+`
`)

	client := mock.NewMockClient()
	var created *kubebatch.Job
	client.Impl.CreateJob = func(_ context.Context, ns string, job *kubebatch.Job) (*kubebatch.Job, error) {
		created = job.DeepCopy()
		created.Namespace = ns
		return created, nil
	}
	client.Impl.GetJob = func(context.Context, string, string) (*kubebatch.Job, error) {
		j := created.DeepCopy()
		j.Status.Conditions = []kubebatch.JobCondition{
			{Type: kubebatch.JobComplete, Status: kubecore.ConditionTrue},
		}
		return j, nil
	}
	client.Impl.FindPods = func(context.Context, string, k8s.LabelSelector) ([]kubecore.Pod, error) {
		return []kubecore.Pod{}, nil
	}
	client.Impl.DeleteJob = func(context.Context, string, string) error {
		return nil
	}

	kubeconfig := ""
	option := &subpipeline.Option{}
	option = subpipeline.WithConnect(func(path string) (k8s.K8sClient, error) {
		kubeconfig = path
		return client, nil
	})(option)

	tools := &faketools.Tools{}
	cl, _, _ := commandline.New(
		"glass-image pipeline",
		subpipeline.Flag{Cluster: clusterConf, Rounds: 3},
		map[string][]string{subpipeline.ARG_DATASETS: ds},
	)
	cf := common.CommonFlags{Sandbox: common.SandboxSingularity, Config: config}
	if err := subpipeline.Task(option)(context.Background(), logger.Null(), tools, cf, cl, nil); err != nil {
		t.Fatal(err)
	}

	if kubeconfig != "/etc/kube/config" {
		t.Errorf("kubeconfig: %s", kubeconfig)
	}
	if created == nil {
		t.Fatal("no jobs are created")
	}
	if created.Namespace != "glass" {
		t.Errorf("namespace: %s", created.Namespace)
	}
	args := created.Spec.Template.Spec.Containers[0].Args
	if diff := cmp.Diff(
		[]string{
			"image", ds[0],
			"--workdir", filepath.Dir(ds[0]),
			"--sandbox", "host",
			"--config", config,
			"--rounds", "3",
		},
		args,
	); diff != "" {
		t.Errorf("args: (-want +got)\n%s", diff)
	}
	if slices.Contains(args, "--archive") {
		t.Errorf("unexpected --archive")
	}
	if n := len(tools.Calls("wsclean")); n != 0 {
		t.Errorf("wsclean runs locally %d times", n)
	}
}
