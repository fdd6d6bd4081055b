// Package provision reconciles required group/role state in the external
// chat platform. The platform offers no create-if-absent primitive, so
// EnsureRole is the one place its creation races are absorbed.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"campusverify/pkg/platform/sentinel"
)

// ensureAttempts bounds the lookup→create→re-lookup loop.
const ensureAttempts = 3

// RoleRef is a transient handle to an external role. It is never cached
// across requests; the external system stays the sole source of truth.
type RoleRef struct {
	ID   string
	Name string
}

// RoleDirectory is the port to the external group-management system.
//
// Error contract: CreateRole returns sentinel.ErrConflict (wrapped) when the
// role already exists; FindRoleByName returns sentinel.ErrNotFound when it
// does not.
type RoleDirectory interface {
	FindRoleByName(ctx context.Context, name string) (RoleRef, error)
	CreateRole(ctx context.Context, name string) (RoleRef, error)
	AddMemberRole(ctx context.Context, subjectID string, role RoleRef) error
	SetNickname(ctx context.Context, subjectID, nickname string) error
}

// PartialFailureError reports which best-effort sub-operations failed.
// Succeeded sub-operations are not rolled back; the external system has no
// multi-operation transaction.
type PartialFailureError struct {
	Failures []string
	Errs     []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("provisioning partial failure: %s", strings.Join(e.Failures, ", "))
}

func (e *PartialFailureError) Unwrap() []error { return e.Errs }

// Reconciler idempotently ensures roles exist and assigns them to subjects.
type Reconciler struct {
	dir    RoleDirectory
	ensure singleflight.Group
}

// NewReconciler builds a reconciler over the given directory.
func NewReconciler(dir RoleDirectory) *Reconciler {
	return &Reconciler{dir: dir}
}

// EnsureRole returns the role with the given name, creating it when absent.
// Concurrent callers with the same name converge on one external role:
// in-process callers collapse through singleflight, and cross-process create
// races surface as ErrConflict, answered by a re-lookup instead of a failure.
func (r *Reconciler) EnsureRole(ctx context.Context, name string) (RoleRef, error) {
	v, err, _ := r.ensure.Do(name, func() (any, error) {
		return r.ensureRole(ctx, name)
	})
	if err != nil {
		return RoleRef{}, err
	}
	return v.(RoleRef), nil
}

func (r *Reconciler) ensureRole(ctx context.Context, name string) (RoleRef, error) {
	var lastErr error
	for attempt := 0; attempt < ensureAttempts; attempt++ {
		role, err := r.dir.FindRoleByName(ctx, name)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return RoleRef{}, fmt.Errorf("lookup role %q: %w", name, err)
		}

		role, err = r.dir.CreateRole(ctx, name)
		if err == nil {
			return role, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			// Another caller created it between our lookup and create;
			// loop back and take theirs.
			lastErr = err
			continue
		}
		return RoleRef{}, fmt.Errorf("create role %q: %w", name, err)
	}
	return RoleRef{}, fmt.Errorf("ensure role %q: attempts exhausted: %w", name, lastErr)
}

// AssignAndRename grants each role and applies the display name as
// independent best-effort sub-operations. One failing sub-operation never
// prevents the others; the aggregate PartialFailureError lists what failed.
func (r *Reconciler) AssignAndRename(ctx context.Context, subjectID string, roles []RoleRef, displayName string) error {
	var failures []string
	var errs []error

	for _, role := range roles {
		if err := r.dir.AddMemberRole(ctx, subjectID, role); err != nil {
			failures = append(failures, fmt.Sprintf("grant %q", role.Name))
			errs = append(errs, err)
		}
	}
	if err := r.dir.SetNickname(ctx, subjectID, displayName); err != nil {
		failures = append(failures, "rename")
		errs = append(errs, err)
	}

	if len(failures) > 0 {
		return &PartialFailureError{Failures: failures, Errs: errs}
	}
	return nil
}
