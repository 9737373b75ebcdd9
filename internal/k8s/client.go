package k8s

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const (
	jobApp        = "embed-knowledge"
	secretName    = "supportwatch-secrets"
	containerName = "embed-knowledge"
)

// ErrNoImage is returned when no job image is configured
var ErrNoImage = errors.New("EMBED_JOB_IMAGE not configured")

// EmbeddingJobOptions mirror the embed-knowledge flags
type EmbeddingJobOptions struct {
	All    bool   `json:"all"`
	Family string `json:"family,omitempty"`
}

// JobStatus is the summarized state of an embedding job
type JobStatus struct {
	JobName        string     `json:"job_name"`
	Status         string     `json:"status"`
	Active         int32      `json:"active"`
	Succeeded      int32      `json:"succeeded"`
	Failed         int32      `json:"failed"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

// Client wraps the Kubernetes client
type Client struct {
	clientset kubernetes.Interface
	namespace string
	image     string
	now       func() time.Time
}

// NewClient creates a new Kubernetes client.
// If namespace is empty, defaults to "supportwatch"
func NewClient(namespace, image string) (*Client, error) {
	config, err := getKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return newClient(clientset, namespace, image), nil
}

func newClient(clientset kubernetes.Interface, namespace, image string) *Client {
	if namespace == "" {
		namespace = "supportwatch"
	}
	return &Client{
		clientset: clientset,
		namespace: namespace,
		image:     image,
		now:       time.Now,
	}
}

// getKubeConfig prefers in-cluster config and falls back to KUBECONFIG or ~/.kube/config
func getKubeConfig() (*rest.Config, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return config, nil
}

// CreateEmbeddingJob launches a one-off Job running embed-knowledge and
// returns its name.
func (c *Client) CreateEmbeddingJob(ctx context.Context, opts EmbeddingJobOptions) (string, error) {
	if c.image == "" {
		return "", ErrNoImage
	}

	jobName := fmt.Sprintf("%s-%d", jobApp, c.now().Unix())
	labels := map[string]string{
		"app":          jobApp,
		"job-type":     "embedding",
		"triggered-by": "api",
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(2),
			TTLSecondsAfterFinished: int32Ptr(86400),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       c.buildPodSpec(opts),
			},
		},
	}

	if _, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return jobName, nil
}

func (c *Client) buildPodSpec(opts EmbeddingJobOptions) corev1.PodSpec {
	args := []string{"-all=" + strconv.FormatBool(opts.All)}
	if opts.Family != "" {
		args = append(args, "-family", opts.Family)
	}

	return corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers: []corev1.Container{
			{
				Name:    containerName,
				Image:   c.image,
				Command: []string{"/app/bin/embed-knowledge"},
				Args:    args,
				Env: []corev1.EnvVar{
					secretEnv("DATABASE_URL", "database-url"),
					secretEnv("OPENAI_API_KEY", "openai-api-key"),
					{Name: "LOG_FORMAT", Value: "json"},
				},
				EnvFrom: []corev1.EnvFromSource{
					{
						ConfigMapRef: &corev1.ConfigMapEnvSource{
							LocalObjectReference: corev1.LocalObjectReference{Name: "supportwatch-config"},
							Optional:             boolPtr(true),
						},
					},
				},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("256Mi"),
						corev1.ResourceCPU:    resourceQuantity("100m"),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("1Gi"),
						corev1.ResourceCPU:    resourceQuantity("1000m"),
					},
				},
			},
		},
	}
}

// GetJobStatus reports the pod counters of a job
func (c *Client) GetJobStatus(ctx context.Context, jobName string) (*JobStatus, error) {
	job, err := c.clientset.BatchV1().Jobs(c.namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	status := &JobStatus{
		JobName:   job.Name,
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		status.StartTime = &t
	}
	if job.Status.CompletionTime != nil {
		t := job.Status.CompletionTime.Time
		status.CompletionTime = &t
	}

	switch {
	case job.Status.Succeeded > 0:
		status.Status = "succeeded"
	case job.Status.Failed > 0 && job.Status.Active == 0:
		status.Status = "failed"
	case job.Status.Active > 0:
		status.Status = "running"
	default:
		status.Status = "pending"
	}
	return status, nil
}

func secretEnv(name, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		},
	}
}

func int32Ptr(i int32) *int32 { return &i }

func boolPtr(b bool) *bool { return &b }

func resourceQuantity(value string) resource.Quantity {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		return resource.Quantity{}
	}
	return qty
}
