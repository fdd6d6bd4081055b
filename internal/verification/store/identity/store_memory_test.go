package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusverify/internal/verification"
	"campusverify/pkg/platform/sentinel"
)

func TestInMemoryUpsertAndFind(t *testing.T) {
	store := NewInMemory()
	rec := &verification.VerifiedIdentity{
		SubjectID:  "U1",
		Email:      "2024kucp1001@iiitkota.ac.in",
		VerifiedAt: time.Now(),
	}

	require.NoError(t, store.Upsert(context.Background(), rec))

	found, err := store.Find(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, rec, found)
}

func TestInMemoryUpsertReplaces(t *testing.T) {
	store := NewInMemory()
	first := &verification.VerifiedIdentity{SubjectID: "U1", Email: "2023kuec0001@iiitkota.ac.in"}
	second := &verification.VerifiedIdentity{SubjectID: "U1", Email: "2024kucp1001@iiitkota.ac.in"}

	require.NoError(t, store.Upsert(context.Background(), first))
	require.NoError(t, store.Upsert(context.Background(), second))

	found, err := store.Find(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, second.Email, found.Email)
}

func TestInMemoryFindNotFound(t *testing.T) {
	store := NewInMemory()
	_, err := store.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
