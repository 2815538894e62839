package k8s

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/aonescu/shopkeeper/internal/types"
)

// TenantPrefix marks namespaces that belong to stores.
const TenantPrefix = "store-"

const (
	DefaultReadinessTimeout = 5 * time.Second
	DefaultQueryTimeout     = 30 * time.Second

	// HelmGracePeriod is how long helm may run past its own --timeout to
	// report the failure and roll back before the process is killed.
	HelmGracePeriod = 30 * time.Second
)

// Namespace is a tenant namespace as listed from the cluster.
type Namespace struct {
	Name      string
	CreatedAt time.Time
}

// Options tunes Gateway timeouts. Zero values use the defaults.
type Options struct {
	// ReadinessTimeout bounds a single namespace pod query.
	ReadinessTimeout time.Duration
	// QueryTimeout bounds namespace listing and release status queries.
	QueryTimeout time.Duration
}

// Gateway translates lifecycle intents into cluster and deployment tool
// operations. It never retries.
type Gateway struct {
	client kubernetes.Interface
	helm   Runner
	log    *zap.Logger

	readinessTimeout time.Duration
	queryTimeout     time.Duration
}

func NewGateway(client kubernetes.Interface, helm Runner, log *zap.Logger, opts Options) *Gateway {
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = DefaultReadinessTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Gateway{
		client:           client,
		helm:             helm,
		log:              log.With(zap.String("component", "gateway")),
		readinessTimeout: opts.ReadinessTimeout,
		queryTimeout:     opts.QueryTimeout,
	}
}

// ListTenantNamespaces lists namespaces carrying the tenant prefix.
func (g *Gateway) ListTenantNamespaces(ctx context.Context) ([]Namespace, error) {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	list, err := g.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	namespaces := make([]Namespace, 0, len(list.Items))
	for _, ns := range list.Items {
		if !strings.HasPrefix(ns.Name, TenantPrefix) {
			continue
		}
		namespaces = append(namespaces, Namespace{
			Name:      ns.Name,
			CreatedAt: ns.CreationTimestamp.Time,
		})
	}
	return namespaces, nil
}

// QueryReadiness reports whether every pod in the namespace is up. Errors and
// timeouts degrade to Provisioning.
func (g *Gateway) QueryReadiness(ctx context.Context, id string) types.Status {
	ctx, cancel := context.WithTimeout(ctx, g.readinessTimeout)
	defer cancel()

	pods, err := g.client.CoreV1().Pods(id).List(ctx, metav1.ListOptions{})
	if err != nil {
		g.log.Debug("readiness query failed",
			zap.String("namespace", id),
			zap.Error(err))
		return types.StatusProvisioning
	}

	if PodsReady(pods.Items) {
		return types.StatusReady
	}
	return types.StatusProvisioning
}

// PodsReady is true iff there is at least one pod and every pod is Running
// with all of its containers ready.
func PodsReady(pods []corev1.Pod) bool {
	if len(pods) == 0 {
		return false
	}
	for i := range pods {
		if !podReady(&pods[i]) {
			return false
		}
	}
	return true
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// Exists asks the deployment tool whether a release named id is installed.
func (g *Gateway) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	_, err := run(ctx, g.helm, "helm status", "status", id, "--namespace", id)
	if err == nil {
		return true, nil
	}
	if isReleaseNotFound(err) {
		return false, nil
	}
	return false, err
}

// Install deploys chart with values as release id into namespace id, creating
// the namespace. It blocks until the deployment tool returns or timeout, plus
// HelmGracePeriod, elapses.
func (g *Gateway) Install(ctx context.Context, id, chart, values string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout+HelmGracePeriod)
	defer cancel()

	args := []string{"install", id, chart, "--namespace", id, "--create-namespace"}
	if values != "" {
		args = append(args, "-f", values)
	}
	args = append(args, "--timeout", timeout.String())

	start := time.Now()
	if _, err := run(ctx, g.helm, "helm install", args...); err != nil {
		return err
	}

	g.log.Info("release installed",
		zap.String("id", id),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// CleanupStorage deletes every persistent volume claim in namespace id. It
// attempts all claims and returns the combined error.
func (g *Gateway) CleanupStorage(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()

	pvcs := g.client.CoreV1().PersistentVolumeClaims(id)
	list, err := pvcs.List(ctx, metav1.ListOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return &CommandError{Op: "list persistent volume claims", ExitCode: -1, Err: err}
	}

	var errs error
	for _, pvc := range list.Items {
		err := pvcs.Delete(ctx, pvc.Name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			errs = multierr.Append(errs, fmt.Errorf("claim %s: %w", pvc.Name, err))
		}
	}
	if errs != nil {
		return &CommandError{Op: "delete persistent volume claims", ExitCode: -1, Err: errs}
	}

	g.log.Debug("storage claims deleted",
		zap.String("id", id),
		zap.Int("claims", len(list.Items)))
	return nil
}

// Uninstall releases id and deletes its namespace. Storage claims must be
// cleaned up first with CleanupStorage so none outlive the release. A missing
// release or namespace is not an error.
func (g *Gateway) Uninstall(ctx context.Context, id string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout+HelmGracePeriod)
	defer cancel()

	_, err := run(ctx, g.helm, "helm uninstall", "uninstall", id, "--namespace", id, "--timeout", timeout.String())
	if err != nil && !isReleaseNotFound(err) {
		return err
	}

	err = g.client.CoreV1().Namespaces().Delete(ctx, id, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return &CommandError{Op: "delete namespace", ExitCode: -1, Err: err}
	}

	g.log.Info("release uninstalled", zap.String("id", id))
	return nil
}

func isReleaseNotFound(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Stderr), "not found")
}
