package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/glass-survey/glass-image/pkg/configs/cluster"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/utils/retry"
	"github.com/glass-survey/glass-image/pkg/workloads/k8s"
	"golang.org/x/sync/errgroup"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// name of the container running glass-image in Jobs
	Container = "glass-image"

	LabelApp   = "app.kubernetes.io/name"
	LabelField = "glass-image/field"

	volumeName = "datasets"
)

// Kubernetes runs each pipeline as a Kubernetes Job.
type Kubernetes struct {
	Cluster k8s.Cluster

	// Image is the container image of glass-image.
	Image string

	ServiceAccount string

	// Claim is the name of PersistentVolumeClaim holding datasets.
	Claim string

	// MountPath is where the volume is mounted in containers.
	// Working directories of datasets should be under this path.
	MountPath string

	// Resources are requested for (and limit) each Job.
	Resources map[string]resource.Quantity

	PollInterval time.Duration

	Logger *log.Logger
}

var _ Mapper = &Kubernetes{}

// FromConfig builds a Kubernetes mapper on the cluster.
func FromConfig(conf *cluster.KubernetesConfig, client k8s.K8sClient, l *log.Logger) *Kubernetes {
	return &Kubernetes{
		Cluster:        k8s.AttachCluster(client, conf.Namespace()),
		Image:          conf.Image(),
		ServiceAccount: conf.ServiceAccount(),
		Claim:          conf.Volume().Claim(),
		MountPath:      conf.Volume().MountPath(),
		Resources:      conf.Resources(),
		PollInterval:   conf.PollInterval(),
		Logger:         l,
	}
}

func (km *Kubernetes) Map(ctx context.Context, datasets []pointing.Pointing, task Task) error {
	if err := distinct(datasets); err != nil {
		return err
	}
	for _, p := range datasets {
		if err := km.mounted(p.Workdir); err != nil {
			return err
		}
		if err := km.mounted(p.Path()); err != nil {
			return err
		}
	}

	errs := make([]error, len(datasets))
	eg := new(errgroup.Group)
	for i, p := range datasets {
		l := loggerFor(km.Logger, p)
		eg.Go(func() error {
			if err := km.run(ctx, p, task.Args(p), l); err != nil {
				l.Printf("pipeline failed: %s", err)
				errs[i] = fmt.Errorf("%s: %w", p, err)
			}
			return nil
		})
	}
	eg.Wait()

	return errors.Join(errs...)
}

func (km *Kubernetes) mounted(path string) error {
	rel, err := filepath.Rel(km.MountPath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return gerrors.NewPreconditionError("%s is not in the volume mounted at %s", path, km.MountPath)
	}
	return nil
}

func (km *Kubernetes) run(ctx context.Context, p pointing.Pointing, args []string, l *log.Logger) error {
	spec := km.JobSpec(p, args)
	j, err := km.Cluster.NewJob(ctx, spec)
	if err != nil {
		return err
	}
	l.Printf("job created: %s/%s", j.Namespace(), j.Name())

	defer func() {
		if err := j.Close(); err != nil {
			l.Printf("WARNING: cannot delete job %s: %s", j.Name(), err)
		}
	}()

	interval := km.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done, err := km.Cluster.WaitJob(ctx, retry.StaticBackoff(interval), j.Name())
	if err != nil {
		return err
	}

	km.forwardLog(ctx, done, l)

	if done.Status() == k8s.Succeeded {
		l.Printf("job succeeded: %s", done.Name())
		return nil
	}

	code, reason, ok := done.ExitCode(Container)
	if !ok {
		return fmt.Errorf("job %s failed without exit status", done.Name())
	}
	l.Printf("job failed: %s (%s)", done.Name(), reason)
	return &gerrors.ToolFailure{
		Command:  append([]string{"glass-image"}, args...),
		ExitCode: int(code),
	}
}

func (km *Kubernetes) forwardLog(ctx context.Context, j k8s.Job, l *log.Logger) {
	r, err := j.Log(ctx, Container)
	if err != nil {
		l.Printf("WARNING: cannot read log of job %s: %s", j.Name(), err)
		return
	}
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		l.Print(sc.Text())
	}
}

var reNotInName = regexp.MustCompile(`[^a-z0-9-]+`)

// JobName returns the name of the Job for p.
//
// It is unique for each dataset path, and a valid DNS-1123 label.
func JobName(p pointing.Pointing) string {
	h := fnv.New32a()
	h.Write([]byte(p.Path()))

	field := reNotInName.ReplaceAllString(strings.ToLower(p.Field), "-")
	field = strings.Trim(field, "-")
	if 40 < len(field) {
		field = strings.TrimRight(field[:40], "-")
	}
	if field == "" {
		return fmt.Sprintf("glass-image-%08x", h.Sum32())
	}
	return fmt.Sprintf("glass-image-%s-%08x", field, h.Sum32())
}

// JobSpec builds the Job processing p with glass-image args.
func (km *Kubernetes) JobSpec(p pointing.Pointing, args []string) *kubebatch.Job {
	labels := map[string]string{
		LabelApp:   "glass-image",
		LabelField: strings.Trim(reNotInName.ReplaceAllString(strings.ToLower(p.Field), "-"), "-"),
	}

	resources := kubecore.ResourceList{}
	for name, q := range km.Resources {
		resources[kubecore.ResourceName(name)] = q
	}

	backoffLimit := int32(0)
	return &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      JobName(p),
			Namespace: km.Cluster.Namespace(),
			Labels:    labels,
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					RestartPolicy:      kubecore.RestartPolicyNever,
					ServiceAccountName: km.ServiceAccount,
					Containers: []kubecore.Container{
						{
							Name:       Container,
							Image:      km.Image,
							Args:       args,
							WorkingDir: p.Workdir,
							Resources: kubecore.ResourceRequirements{
								Requests: resources,
								Limits:   resources,
							},
							VolumeMounts: []kubecore.VolumeMount{
								{Name: volumeName, MountPath: km.MountPath},
							},
						},
					},
					Volumes: []kubecore.Volume{
						{
							Name: volumeName,
							VolumeSource: kubecore.VolumeSource{
								PersistentVolumeClaim: &kubecore.PersistentVolumeClaimVolumeSource{
									ClaimName: km.Claim,
								},
							},
						},
					},
				},
			},
		},
	}
}
