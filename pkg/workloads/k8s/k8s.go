package k8s

import (
	"context"
	"errors"
	"fmt"
	"io"

	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/glass-survey/glass-image/pkg/utils/retry"
)

var (
	// ErrConflict is returned when a workload with the same name exists already.
	ErrConflict = errors.New("workload: conflict")

	// ErrMissing is returned when a workload is not found.
	ErrMissing = errors.New("workload: missing")
)

// subset of k8s.Clientset
type K8sClient interface {
	GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
	CreateJob(ctx context.Context, namespace string, spec *kubebatch.Job) (*kubebatch.Job, error)
	DeleteJob(ctx context.Context, namespace string, name string) error

	FindPods(ctx context.Context, namespace string, labelSelector LabelSelector) ([]kubecore.Pod, error)

	Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error)
}

// A wrapper for the type k8s.Interface; because it does not prefer method chain-style invocations of that type.
type k8sClient struct {
	client k8s.Interface
}

// type check: k8sClient implements K8sClient
var _ K8sClient = &k8sClient{}

func (k *k8sClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Create(ctx, job, kubeapimeta.CreateOptions{})
}

func (k *k8sClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	return k.client.BatchV1().Jobs(namespace).Get(ctx, name, kubeapimeta.GetOptions{})
}

func (k *k8sClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	background := kubeapimeta.DeletePropagationBackground
	return k.client.BatchV1().Jobs(namespace).Delete(ctx, name, kubeapimeta.DeleteOptions{
		PropagationPolicy: &background,
	})
}

func (k *k8sClient) FindPods(ctx context.Context, namespace string, labels LabelSelector) ([]kubecore.Pod, error) {
	resp, err := k.client.CoreV1().Pods(namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: labels.QueryString(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (k *k8sClient) Log(ctx context.Context, namespace string, podname string, container string) (io.ReadCloser, error) {
	return k.client.
		CoreV1().
		Pods(namespace).
		GetLogs(podname, &kubecore.PodLogOptions{Container: container}).
		Stream(ctx)
}

func WrapK8sClient(c k8s.Interface) K8sClient {
	return &k8sClient{client: c}
}

// Connect builds K8sClient from kubeconfig file.
//
// When kubeconfig is empty, in-cluster configuration is used.
func Connect(kubeconfig string) (K8sClient, error) {
	var conf *rest.Config
	var err error
	if kubeconfig == "" {
		conf, err = rest.InClusterConfig()
	} else {
		conf, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot configure kubernetes client: %w", err)
	}

	clientset, err := k8s.NewForConfig(conf)
	if err != nil {
		return nil, err
	}
	return WrapK8sClient(clientset), nil
}

type JobStatus string

const (
	// no pods have been started.
	Pending JobStatus = "Pending"

	// at least one pod has started, and the job has not completed.
	Running JobStatus = "Running"

	// the job is succeeded.
	Succeeded JobStatus = "Succeeded"

	// the job is failed.
	Failed JobStatus = "Failed"
)

// Done tells the job will not progress any more.
func (s JobStatus) Done() bool {
	return s == Succeeded || s == Failed
}

// abstraction of k8s job.
type Job interface {
	// the name of the job
	Name() string

	// the namespace where the job is placed in
	Namespace() string

	// how does the job progress, at least
	//
	// This value is just a SNAPSHOT of the job when you get the instance.
	// To refresh, get a new instance with `Cluster.GetJob`.
	Status() JobStatus

	//	ExitCode returns the exit code of the container in pods of the job
	//
	// # Return
	//
	// - exitCode : the exit code of the container.
	//
	// - reason: the reason of the termination.
	//
	// - ok : true if the container has been terminated, false otherwise.
	ExitCode(container string) (uint8, string, bool)

	// Log get log stream of the container in the (first) pod of the job.
	Log(ctx context.Context, containerName string) (io.ReadCloser, error)

	// destroy the job. If the job is running or pending, it is aborted.
	Close() error
}

type job struct {
	job    *kubebatch.Job
	pods   []kubecore.Pod
	client K8sClient
	close  func() error
}

var _ Job = &job{}

func (j *job) Name() string {
	return j.job.Name
}

func (j *job) Namespace() string {
	return j.job.Namespace
}

func (j *job) Status() JobStatus {
	for _, sc := range j.job.Status.Conditions {
		if sc.Status != kubecore.ConditionTrue {
			continue
		}
		switch sc.Type {
		case kubebatch.JobComplete:
			return Succeeded
		case kubebatch.JobFailed:
			return Failed
		}
	}

	for _, p := range j.pods {
		// if at least one pod has been run, the job has been run.
		switch p.Status.Phase {
		case kubecore.PodRunning, kubecore.PodSucceeded, kubecore.PodFailed:
			return Running
		}
	}

	return Pending
}

func (j *job) Log(ctx context.Context, containerName string) (io.ReadCloser, error) {
	if len(j.pods) == 0 {
		return nil, errors.New("no pods")
	}
	pod := j.pods[0]
	return j.client.Log(ctx, pod.Namespace, pod.Name, containerName)
}

func (j *job) ExitCode(container string) (uint8, string, bool) {
	for _, p := range j.pods {
		for _, c := range p.Status.ContainerStatuses {
			if c.Name != container {
				continue
			}
			if term := c.State.Terminated; term != nil {
				return uint8(term.ExitCode), term.Reason, true
			}
			break
		}
	}
	return 0, "", false
}

func (j *job) Close() error {
	if j.close == nil {
		return nil
	}
	return j.close()
}

// Cluster is a namespace of k8s where Jobs are placed.
type Cluster interface {
	Namespace() string

	// NewJob creates a Job.
	//
	// # Returns
	//
	// - Job: created job. Its status is what is observed at creation.
	//
	// - error: wrapping ErrConflict if a Job with same name exists.
	NewJob(ctx context.Context, spec *kubebatch.Job) (Job, error)

	// GetJob gets a Job with its pods.
	//
	// # Returns
	//
	// - error: wrapping ErrMissing if not found.
	GetJob(ctx context.Context, name string) (Job, error)

	// WaitJob polls a Job until it gets Succeeded or Failed.
	//
	// b is called before each polling.
	WaitJob(ctx context.Context, b retry.Backoff, name string) (Job, error)
}

type k8sCluster struct {
	client    K8sClient
	namespace string
}

func AttachCluster(client K8sClient, namespace string) Cluster {
	return &k8sCluster{client: client, namespace: namespace}
}

func (c *k8sCluster) Namespace() string {
	return c.namespace
}

func (c *k8sCluster) closer(name string) func() error {
	return func() error {
		err := c.client.DeleteJob(context.Background(), c.namespace, name)
		if kubeerr.IsNotFound(err) {
			return nil
		}
		return err
	}
}

func (c *k8sCluster) NewJob(ctx context.Context, spec *kubebatch.Job) (Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created, err := c.client.CreateJob(ctx, c.namespace, spec)
	if err != nil {
		if kubeerr.IsAlreadyExists(err) {
			return nil, fmt.Errorf("%w: job %s: %w", ErrConflict, spec.Name, err)
		}
		return nil, err
	}

	return &job{
		job:    created,
		client: c.client,
		close:  c.closer(created.Name),
	}, nil
}

func (c *k8sCluster) GetJob(ctx context.Context, name string) (Job, error) {
	found, err := c.client.GetJob(ctx, c.namespace, name)
	if err != nil {
		if kubeerr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: job %s: %w", ErrMissing, name, err)
		}
		return nil, err
	}

	ret := &job{job: found, client: c.client, close: c.closer(name)}
	if pods, err := c.client.FindPods(ctx, c.namespace, podSelector(found)); err == nil {
		ret.pods = pods
	}
	return ret, nil
}

func (c *k8sCluster) WaitJob(ctx context.Context, b retry.Backoff, name string) (Job, error) {
	return retry.Blocking(ctx, b, func() (Job, error) {
		j, err := c.GetJob(ctx, name)
		if err != nil {
			return nil, err
		}
		if !j.Status().Done() {
			return j, retry.ErrRetry
		}
		return j, nil
	})
}

// JobNameLabel is put on pods by the job controller.
const JobNameLabel = "batch.kubernetes.io/job-name"

func podSelector(j *kubebatch.Job) LabelSelector {
	if j.Spec.Selector != nil && len(j.Spec.Selector.MatchLabels) != 0 {
		return LabelsToSelector(j.Spec.Selector.MatchLabels)
	}
	return LabelSelector{JobNameLabel: Eq(j.Name)}
}
