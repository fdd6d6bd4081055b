package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusverify/pkg/platform/sentinel"
)

// fakeDirectory simulates the external group system: create has no
// create-if-absent primitive and reports duplicates as ErrConflict.
type fakeDirectory struct {
	mu           sync.Mutex
	roles        map[string]RoleRef
	nextID       int
	creates      int
	memberRoles  map[string][]string
	nicknames    map[string]string
	grantErr     error
	nicknameErr  error
	createErrs   []error // popped per CreateRole call before real behavior
	lookupMisses int     // force N not-found results before real lookups
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		roles:       make(map[string]RoleRef),
		memberRoles: make(map[string][]string),
		nicknames:   make(map[string]string),
	}
}

func (d *fakeDirectory) FindRoleByName(_ context.Context, name string) (RoleRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupMisses > 0 {
		d.lookupMisses--
		return RoleRef{}, fmt.Errorf("role %q: %w", name, sentinel.ErrNotFound)
	}
	role, ok := d.roles[name]
	if !ok {
		return RoleRef{}, fmt.Errorf("role %q: %w", name, sentinel.ErrNotFound)
	}
	return role, nil
}

func (d *fakeDirectory) CreateRole(_ context.Context, name string) (RoleRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if len(d.createErrs) > 0 {
		err := d.createErrs[0]
		d.createErrs = d.createErrs[1:]
		if err != nil {
			return RoleRef{}, err
		}
	}
	if _, ok := d.roles[name]; ok {
		return RoleRef{}, fmt.Errorf("role %q exists: %w", name, sentinel.ErrConflict)
	}
	d.nextID++
	role := RoleRef{ID: fmt.Sprintf("role-%d", d.nextID), Name: name}
	d.roles[name] = role
	return role, nil
}

func (d *fakeDirectory) AddMemberRole(_ context.Context, subjectID string, role RoleRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.grantErr != nil {
		return d.grantErr
	}
	d.memberRoles[subjectID] = append(d.memberRoles[subjectID], role.ID)
	return nil
}

func (d *fakeDirectory) SetNickname(_ context.Context, subjectID, nickname string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nicknameErr != nil {
		return d.nicknameErr
	}
	d.nicknames[subjectID] = nickname
	return nil
}

func TestEnsureRoleCreatesWhenAbsent(t *testing.T) {
	dir := newFakeDirectory()
	rec := NewReconciler(dir)

	role, err := rec.EnsureRole(context.Background(), "2024")
	require.NoError(t, err)
	assert.Equal(t, "2024", role.Name)
	assert.Equal(t, 1, dir.creates)
}

func TestEnsureRoleReturnsExisting(t *testing.T) {
	dir := newFakeDirectory()
	existing, err := dir.CreateRole(context.Background(), "CSE")
	require.NoError(t, err)

	rec := NewReconciler(dir)
	role, err := rec.EnsureRole(context.Background(), "CSE")
	require.NoError(t, err)
	assert.Equal(t, existing, role)
	assert.Equal(t, 1, dir.creates)
}

// A racer creates the role between our lookup and create; the conflict must
// resolve to the racer's role, not a hard failure.
func TestEnsureRoleLostCreateRace(t *testing.T) {
	dir := newFakeDirectory()
	racer, err := dir.CreateRole(context.Background(), "2024")
	require.NoError(t, err)
	dir.lookupMisses = 1 // first lookup pretends the racer has not won yet

	rec := NewReconciler(dir)
	role, err := rec.EnsureRole(context.Background(), "2024")
	require.NoError(t, err)
	assert.Equal(t, racer, role)
}

func TestEnsureRoleAttemptsBounded(t *testing.T) {
	dir := newFakeDirectory()
	dir.lookupMisses = 100
	dir.createErrs = []error{sentinel.ErrConflict, sentinel.ErrConflict, sentinel.ErrConflict}

	rec := NewReconciler(dir)
	_, err := rec.EnsureRole(context.Background(), "2024")
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Equal(t, 3, dir.creates)
}

func TestEnsureRoleFatalCreateError(t *testing.T) {
	dir := newFakeDirectory()
	boom := errors.New("directory down")
	dir.lookupMisses = 1
	dir.createErrs = []error{boom}

	rec := NewReconciler(dir)
	_, err := rec.EnsureRole(context.Background(), "2024")
	assert.ErrorIs(t, err, boom)
}

// TestEnsureRoleConcurrentCallersConverge verifies idempotence under race:
// M concurrent callers all receive a reference to the same single role.
func TestEnsureRoleConcurrentCallersConverge(t *testing.T) {
	dir := newFakeDirectory()

	// Two independent reconcilers model two processes; singleflight only
	// collapses callers within one.
	recs := []*Reconciler{NewReconciler(dir), NewReconciler(dir)}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]RoleRef, callers)
	errs := make([]error, callers)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = recs[i%len(recs)].EnsureRole(context.Background(), "2024")
		}(i)
	}
	close(start)
	wg.Wait()

	dir.mu.Lock()
	roleCount := len(dir.roles)
	dir.mu.Unlock()
	assert.Equal(t, 1, roleCount)

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestAssignAndRenameAllSucceed(t *testing.T) {
	dir := newFakeDirectory()
	rec := NewReconciler(dir)

	cohort, err := rec.EnsureRole(context.Background(), "2024")
	require.NoError(t, err)
	track, err := rec.EnsureRole(context.Background(), "ECE")
	require.NoError(t, err)

	err = rec.AssignAndRename(context.Background(), "U1", []RoleRef{cohort, track}, "2024kuec0042")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{cohort.ID, track.ID}, dir.memberRoles["U1"])
	assert.Equal(t, "2024kuec0042", dir.nicknames["U1"])
}

// A failing grant must not stop the remaining sub-operations, and the
// aggregate error must say what failed without undoing what succeeded.
func TestAssignAndRenamePartialFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.grantErr = errors.New("missing permission")
	rec := NewReconciler(dir)

	err := rec.AssignAndRename(context.Background(), "U1",
		[]RoleRef{{ID: "r1", Name: "2024"}, {ID: "r2", Name: "ECE"}}, "2024kuec0042")

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{`grant "2024"`, `grant "ECE"`}, partial.Failures)

	// Rename still ran.
	assert.Equal(t, "2024kuec0042", dir.nicknames["U1"])
}

func TestAssignAndRenameRenameFailureOnly(t *testing.T) {
	dir := newFakeDirectory()
	dir.nicknameErr = errors.New("nickname forbidden")
	rec := NewReconciler(dir)

	err := rec.AssignAndRename(context.Background(), "U1", []RoleRef{{ID: "r1", Name: "2024"}}, "2024kuec0042")

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"rename"}, partial.Failures)
	assert.Equal(t, []string{"r1"}, dir.memberRoles["U1"])
}
