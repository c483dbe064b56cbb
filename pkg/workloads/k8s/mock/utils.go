package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	k8s "github.com/glass-survey/glass-image/pkg/workloads/k8s"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
)

// get mocked k8s.Cluster
//
// # returns
//
//   - k8s.Cluster : using *MockClient as base client
//   - *MockClient : mock object.
//     you can fake k8s behaviours or spy its usage.
func NewCluster() (k8s.Cluster, *MockClient) {
	clientset := NewMockClient()
	return k8s.AttachCluster(clientset, "fake-namespace"), clientset
}

// MockClient is a K8sClient whose methods are replaceable.
//
// It is safe to be called concurrently, as long as Impl is not modified during use.
type MockClient struct {
	Impl struct {
		GetJob    func(ctx context.Context, namespace string, name string) (*kubebatch.Job, error)
		CreateJob func(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error)
		DeleteJob func(ctx context.Context, namespace string, name string) error

		FindPods func(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error)

		Log func(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error)
	}

	mu     sync.Mutex
	called Calls
}

// Calls counts calls of each method.
type Calls struct {
	GetJob    uint64
	CreateJob uint64
	DeleteJob uint64
	FindPods  uint64
	Log       uint64
}

// MockClient implements k8s.K8sClient
var _ k8s.K8sClient = &MockClient{}

var ErrNotImplemented = errors.New("[MOCK] not implemented")

func (m *MockClient) count(c *uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*c += 1
}

func (m *MockClient) GetJob(ctx context.Context, namespace string, name string) (*kubebatch.Job, error) {
	m.count(&m.called.GetJob)
	if m.Impl.GetJob == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.GetJob(ctx, namespace, name)
}

func (m *MockClient) CreateJob(ctx context.Context, namespace string, job *kubebatch.Job) (*kubebatch.Job, error) {
	m.count(&m.called.CreateJob)
	if m.Impl.CreateJob == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.CreateJob(ctx, namespace, job)
}

func (m *MockClient) DeleteJob(ctx context.Context, namespace string, name string) error {
	m.count(&m.called.DeleteJob)
	if m.Impl.DeleteJob == nil {
		return ErrNotImplemented
	}
	return m.Impl.DeleteJob(ctx, namespace, name)
}

func (m *MockClient) FindPods(ctx context.Context, namespace string, ls k8s.LabelSelector) ([]kubecore.Pod, error) {
	m.count(&m.called.FindPods)
	if m.Impl.FindPods == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.FindPods(ctx, namespace, ls)
}

func (m *MockClient) Log(ctx context.Context, namespace string, pod string, container string) (io.ReadCloser, error) {
	m.count(&m.called.Log)
	if m.Impl.Log == nil {
		return nil, ErrNotImplemented
	}
	return m.Impl.Log(ctx, namespace, pod, container)
}

// Called returns a snapshot of call counts.
func (m *MockClient) Called() Calls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

func NewMockClient() *MockClient {
	return &MockClient{}
}
