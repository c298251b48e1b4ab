package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type stubRoles struct {
	mu        sync.Mutex
	roles     map[string]models.Role
	ensureErr error
}

func newStubRoles() *stubRoles { return &stubRoles{roles: make(map[string]models.Role)} }

func (s *stubRoles) List(context.Context) ([]models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubRoles) FindByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s *stubRoles) Create(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; ok {
		return repository.ErrDuplicate
	}
	s.roles[role.Name] = *role
	return nil
}

func (s *stubRoles) Ensure(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return s.ensureErr
	}
	if _, ok := s.roles[role.Name]; !ok {
		s.roles[role.Name] = *role
	}
	return nil
}

func (s *stubRoles) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return sql.ErrNoRows
	}
	delete(s.roles, name)
	return nil
}

type stubPermissions struct {
	mu    sync.Mutex
	perms map[string]models.Permission
	err   error
}

func newStubPermissions(names ...string) *stubPermissions {
	s := &stubPermissions{perms: make(map[string]models.Permission)}
	for _, n := range names {
		s.perms[n] = models.Permission{Name: n}
	}
	return s
}

func (s *stubPermissions) List(context.Context) ([]models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubPermissions) Create(_ context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[perm.Name]; ok {
		return repository.ErrDuplicate
	}
	s.perms[perm.Name] = *perm
	return nil
}

func (s *stubPermissions) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[name]; !ok {
		return sql.ErrNoRows
	}
	delete(s.perms, name)
	return nil
}

func (s *stubPermissions) Existing(_ context.Context, names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for _, n := range names {
		if _, ok := s.perms[n]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func TestCreateRoleWithPermissions(t *testing.T) {
	roles := newStubRoles()
	svc := NewRoleService(roles, newStubPermissions("USER_READ", "USER_WRITE"), nil, nil)

	role, err := svc.Create(context.Background(), dto.CreateRoleRequest{
		Name:        "AUDITOR",
		Description: "Reads users",
		Permissions: []string{"USER_WRITE", "USER_READ", "USER_READ"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AUDITOR", role.Name)
	assert.Equal(t, []models.Permission{{Name: "USER_READ"}, {Name: "USER_WRITE"}}, role.Permissions)

	_, err = svc.Create(context.Background(), dto.CreateRoleRequest{Name: "AUDITOR"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCreateRoleRejectsUnknownPermissions(t *testing.T) {
	roles := newStubRoles()
	svc := NewRoleService(roles, newStubPermissions("USER_READ"), nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateRoleRequest{Name: "AUDITOR", Permissions: []string{"USER_READ", "NUKE"}})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, []string{"NUKE"}, appErrors.FromError(err).Details["permissions"])
	assert.Empty(t, roles.roles)
}

func TestCreateRoleValidation(t *testing.T) {
	svc := NewRoleService(newStubRoles(), newStubPermissions(), nil, nil)
	_, err := svc.Create(context.Background(), dto.CreateRoleRequest{Name: "lower"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateRolePermissionLookupFails(t *testing.T) {
	perms := newStubPermissions()
	perms.err = errors.New("db down")
	svc := NewRoleService(newStubRoles(), perms, nil, nil)
	_, err := svc.Create(context.Background(), dto.CreateRoleRequest{Name: "AUDITOR"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestDeleteRole(t *testing.T) {
	roles := newStubRoles()
	roles.roles["AUDITOR"] = models.Role{Name: "AUDITOR"}
	roles.roles[models.RoleAdmin] = models.Role{Name: models.RoleAdmin}
	svc := NewRoleService(roles, newStubPermissions(), nil, nil)

	assert.ErrorIs(t, svc.Delete(context.Background(), "admin"), appErrors.ErrConflict)
	require.NoError(t, svc.Delete(context.Background(), "AUDITOR"))
	assert.ErrorIs(t, svc.Delete(context.Background(), "AUDITOR"), appErrors.ErrNotFound)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
