//go:build integration

package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"campusverify/internal/verification"
	identitystore "campusverify/internal/verification/store/identity"
	"campusverify/pkg/platform/sentinel"
	"campusverify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *identitystore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = identitystore.NewPostgres(s.pg.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.Pool.Exec(context.Background(), "TRUNCATE verified_identities")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestUpsertAndFind() {
	ctx := context.Background()
	rec := &verification.VerifiedIdentity{
		SubjectID:  "U1",
		Email:      "2024kuec0042@iiitkota.ac.in",
		VerifiedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	s.Require().NoError(s.store.Upsert(ctx, rec))

	found, err := s.store.Find(ctx, "U1")
	s.Require().NoError(err)
	s.Equal(rec.SubjectID, found.SubjectID)
	s.Equal(rec.Email, found.Email)
	s.WithinDuration(rec.VerifiedAt, found.VerifiedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestUpsertReplacesExisting() {
	ctx := context.Background()

	first := &verification.VerifiedIdentity{SubjectID: "U1", Email: "2023kucp0001@iiitkota.ac.in", VerifiedAt: time.Now()}
	second := &verification.VerifiedIdentity{SubjectID: "U1", Email: "2024kuec0042@iiitkota.ac.in", VerifiedAt: time.Now()}

	s.Require().NoError(s.store.Upsert(ctx, first))
	s.Require().NoError(s.store.Upsert(ctx, second))

	found, err := s.store.Find(ctx, "U1")
	s.Require().NoError(err)
	s.Equal(second.Email, found.Email)
}

func (s *PostgresStoreSuite) TestFindNotFound() {
	_, err := s.store.Find(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
