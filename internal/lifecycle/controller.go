package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aonescu/shopkeeper/internal/capacity"
	"github.com/aonescu/shopkeeper/internal/formatting"
	k8s "github.com/aonescu/shopkeeper/internal/kubernetes"
	"github.com/aonescu/shopkeeper/internal/logger"
	"github.com/aonescu/shopkeeper/internal/stats"
	"github.com/aonescu/shopkeeper/internal/types"
)

// ProvisioningStarted is returned once an install has been handed to the cluster.
const ProvisioningStarted = "Provisioning started"

// Cluster is the subset of the cluster gateway the controller drives.
type Cluster interface {
	ListTenantNamespaces(ctx context.Context) ([]k8s.Namespace, error)
	QueryReadiness(ctx context.Context, id string) types.Status
	Exists(ctx context.Context, id string) (bool, error)
	Install(ctx context.Context, id, chart, values string, timeout time.Duration) error
	CleanupStorage(ctx context.Context, id string) error
	Uninstall(ctx context.Context, id string, timeout time.Duration) error
}

// Auditor records lifecycle events.
type Auditor interface {
	Record(ctx context.Context, action types.Action, details map[string]string)
}

// Options configures what gets installed and how long the backend may take.
type Options struct {
	Chart              string
	Values             string
	InstallTimeout     time.Duration
	UninstallTimeout   time.Duration
	StoreDomain        string
	ReapFailedInstalls bool
}

// CreateResult acknowledges an accepted create.
type CreateResult struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Controller sequences create, list and delete against the cluster and keeps
// the audit trail and counters in step with every outcome.
type Controller struct {
	cluster Cluster
	audit   Auditor
	guard   *capacity.Guard
	stats   *stats.Stats
	log     *zap.Logger
	opts    Options

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewController(cluster Cluster, audit Auditor, guard *capacity.Guard, st *stats.Stats, log *zap.Logger, opts Options) *Controller {
	if guard == nil {
		guard = capacity.NewGuard(capacity.DefaultMaxStores)
	}
	if st == nil {
		st = stats.New(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cluster:  cluster,
		audit:    audit,
		guard:    guard,
		stats:    st,
		log:      log,
		opts:     opts,
		inFlight: make(map[string]struct{}),
	}
}

// Create provisions a store for name. Validation and capacity rejections
// leave no audit pair behind. Once STORE_CREATE_START is recorded exactly
// one of SUCCESS, FAILED or DUPLICATE follows for the same id.
func (c *Controller) Create(ctx context.Context, name string) (*CreateResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: store name is required", ErrInvalidName)
	}
	id := DeriveID(name)
	if len(id) > MaxIDLength {
		return nil, fmt.Errorf("%w: derived id %q is longer than %d characters", ErrInvalidName, id, MaxIDLength)
	}

	log, logEnd := logger.NewOperation(logger.FromContext(ctx, c.log), "Create store", "store_create", zap.String("id", id))
	defer logEnd()

	details := map[string]string{"name": name, "id": id}

	if !c.acquire(id) {
		c.audit.Record(ctx, types.ActionCreateStart, details)
		c.audit.Record(ctx, types.ActionCreateDuplicate, with(details, "reason", "in-flight"))
		log.Info("Create already in progress", zap.String("id", id))
		return nil, fmt.Errorf("%w: %s is already being created", ErrAlreadyExists, id)
	}
	defer c.release(id)

	namespaces, err := c.cluster.ListTenantNamespaces(ctx)
	if err != nil {
		c.audit.Record(ctx, types.ActionCreateStart, details)
		return nil, c.createFailed(ctx, log, details, "count stores", err, false)
	}

	current := len(namespaces) + c.pendingCreates(id, namespaces)
	if err := c.guard.Check(current); err != nil {
		c.audit.Record(ctx, types.ActionStoreLimitReached, with(details,
			"current", strconv.Itoa(current),
			"max", strconv.Itoa(c.guard.Max()),
		))
		log.Warn("Store limit reached", zap.Int("current", current), zap.Int("max", c.guard.Max()))
		return nil, err
	}

	c.audit.Record(ctx, types.ActionCreateStart, details)

	exists, err := c.cluster.Exists(ctx, id)
	if err != nil {
		return nil, c.createFailed(ctx, log, details, "check store", err, false)
	}
	if exists {
		c.audit.Record(ctx, types.ActionCreateDuplicate, with(details, "reason", "release exists"))
		log.Info("Store already exists", zap.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	// The install outlives the request that asked for it.
	installCtx := context.WithoutCancel(ctx)
	if err := c.cluster.Install(installCtx, id, c.opts.Chart, c.opts.Values, c.opts.InstallTimeout); err != nil {
		return nil, c.createFailed(installCtx, log, details, "install store", err, true)
	}

	c.stats.IncCreated()
	c.audit.Record(ctx, types.ActionCreateSuccess, details)
	log.Info("Provisioning started", zap.String("id", id))

	return &CreateResult{Message: ProvisioningStarted, ID: id}, nil
}

// createFailed counts and audits a backend failure after STORE_CREATE_START.
// A failed install may have left a namespace or release behind; it is reaped
// only when configured to.
func (c *Controller) createFailed(ctx context.Context, log *zap.Logger, details map[string]string, op string, err error, installed bool) error {
	c.stats.IncFailures()
	backendErr := newBackendError(op, err)

	failed := with(details,
		"stage", op,
		"error", formatting.TruncateDiagnostic(backendErr.Diagnostic, formatting.DefaultDiagnosticLimit),
	)
	if installed {
		if c.opts.ReapFailedInstalls {
			failed["cleanup"] = c.reap(context.WithoutCancel(ctx), log, details["id"])
		} else {
			failed["residue"] = "possible"
		}
	}

	c.audit.Record(ctx, types.ActionCreateFailed, failed)
	log.Error("Create failed", zap.String("op", op), zap.Error(err))
	return backendErr
}

func (c *Controller) reap(ctx context.Context, log *zap.Logger, id string) string {
	if err := c.cluster.CleanupStorage(ctx, id); err != nil {
		log.Warn("Reap storage cleanup failed", zap.String("id", id), zap.Error(err))
	}
	if err := c.cluster.Uninstall(ctx, id, c.opts.UninstallTimeout); err != nil {
		log.Warn("Reap failed", zap.String("id", id), zap.Error(err))
		return "failed: " + formatting.TruncateDiagnostic(diagnostic(err), formatting.DefaultDiagnosticLimit)
	}
	return "removed"
}

// List reports every tenant store with its readiness, oldest first.
// Readiness is queried for all namespaces concurrently; a failed query
// reports the store as provisioning rather than failing the listing.
func (c *Controller) List(ctx context.Context) ([]types.Store, error) {
	namespaces, err := c.cluster.ListTenantNamespaces(ctx)
	if err != nil {
		c.log.Error("Failed to list stores", zap.Error(err))
		return nil, newBackendError("list stores", err)
	}

	namespaces = slices.DeleteFunc(namespaces, func(ns k8s.Namespace) bool {
		return ns.Name == "" || ns.CreatedAt.IsZero()
	})

	stores := make([]types.Store, len(namespaces))
	var g errgroup.Group
	for i, ns := range namespaces {
		g.Go(func() error {
			stores[i] = types.Store{
				ID:        ns.Name,
				Status:    c.cluster.QueryReadiness(ctx, ns.Name),
				URL:       StoreURL(ns.Name, c.opts.StoreDomain),
				CreatedAt: ns.CreatedAt,
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(stores, func(a, b types.Store) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})

	return stores, nil
}

// Delete tears down store id. Storage cleanup failures are recorded and the
// teardown continues; only a failed uninstall fails the delete.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q is not a store id", ErrInvalidName, id)
	}

	log, logEnd := logger.NewOperation(logger.FromContext(ctx, c.log), "Delete store", "store_delete", zap.String("id", id))
	defer logEnd()

	details := map[string]string{"id": id}
	c.audit.Record(ctx, types.ActionDeleteStart, details)

	ctx = context.WithoutCancel(ctx)

	if err := c.cluster.CleanupStorage(ctx, id); err != nil {
		log.Warn("Storage cleanup incomplete", zap.String("id", id), zap.Error(err))
		details = with(details, "storage_cleanup",
			"failed: "+formatting.TruncateDiagnostic(diagnostic(err), formatting.DefaultDiagnosticLimit))
	}

	if err := c.cluster.Uninstall(ctx, id, c.opts.UninstallTimeout); err != nil {
		c.stats.IncFailures()
		backendErr := newBackendError("delete store", err)
		c.audit.Record(ctx, types.ActionDeleteFailed, with(details,
			"error", formatting.TruncateDiagnostic(backendErr.Diagnostic, formatting.DefaultDiagnosticLimit),
		))
		log.Error("Delete failed", zap.String("id", id), zap.Error(err))
		return backendErr
	}

	c.stats.IncDeleted()
	c.audit.Record(ctx, types.ActionDeleteSuccess, details)
	log.Info("Store deleted", zap.String("id", id))
	return nil
}

// Stats returns the lifecycle counters since process start.
func (c *Controller) Stats() types.Stats {
	return c.stats.Snapshot()
}

// MaxStores is the configured tenant cap.
func (c *Controller) MaxStores() int {
	return c.guard.Max()
}

func (c *Controller) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[id]; ok {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

// pendingCreates counts other in-flight creates whose namespace is not yet
// visible in namespaces.
func (c *Controller) pendingCreates(self string, namespaces []k8s.Namespace) int {
	listed := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		listed[ns.Name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id := range c.inFlight {
		if id == self {
			continue
		}
		if _, ok := listed[id]; !ok {
			n++
		}
	}
	return n
}

// with returns a copy of details extended by key/value pairs.
func with(details map[string]string, kv ...string) map[string]string {
	out := maps.Clone(details)
	if out == nil {
		out = make(map[string]string, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
