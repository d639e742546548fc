package service_test

import (
	"errors"
	"sync"
	"testing"

	sequencedomain "github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"github.com/smallbiznis/ledgerbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNextIsGapless(t *testing.T) {
	env := testutil.New(t)
	scope := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2026}

	for want := int64(1); want <= 3; want++ {
		alloc, err := env.Sequences.Next(env.Ctx(), nil, scope)
		require.NoError(t, err)
		assert.Equal(t, want, alloc.Value)
	}

	last, err := env.Sequences.Peek(env.Ctx(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestRolledBackAllocationIsNotConsumed(t *testing.T) {
	env := testutil.New(t)
	scope := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2026}
	boom := errors.New("boom")

	err := env.DB.Transaction(func(tx *gorm.DB) error {
		alloc, err := env.Sequences.Next(env.Ctx(), tx, scope)
		require.NoError(t, err)
		require.Equal(t, int64(1), alloc.Value)
		return boom
	})
	require.ErrorIs(t, err, boom)

	alloc, err := env.Sequences.Next(env.Ctx(), nil, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alloc.Value)
}

func TestScopesAreIndependent(t *testing.T) {
	env := testutil.New(t)
	invoice2026 := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2026}
	invoice2027 := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2027}
	notes2026 := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeCreditNote, Year: 2026}

	for i := 0; i < 2; i++ {
		_, err := env.Sequences.Next(env.Ctx(), nil, invoice2026)
		require.NoError(t, err)
	}
	a, err := env.Sequences.Next(env.Ctx(), nil, invoice2027)
	require.NoError(t, err)
	b, err := env.Sequences.Next(env.Ctx(), nil, notes2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Value)
	assert.Equal(t, int64(1), b.Value)
	assert.NotEqual(t, a.Number, b.Number)
}

func TestInvalidScope(t *testing.T) {
	env := testutil.New(t)
	_, err := env.Sequences.Next(env.Ctx(), nil, sequencedomain.Scope{OrgID: env.OrgID, DocumentType: "receipt", Year: 2026})
	assert.ErrorIs(t, err, sequencedomain.ErrInvalidScope)
	_, err = env.Sequences.Next(env.Ctx(), nil, sequencedomain.Scope{DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2026})
	assert.ErrorIs(t, err, sequencedomain.ErrInvalidScope)
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	env := testutil.New(t)
	scope := sequencedomain.Scope{OrgID: env.OrgID, DocumentType: sequencedomain.DocumentTypeInvoice, Year: 2026}

	const workers = 8
	values := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := env.Sequences.Next(env.Ctx(), nil, scope)
			if err == nil {
				values <- alloc.Value
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := map[int64]bool{}
	for v := range values {
		assert.False(t, seen[v], "value %d allocated twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers)
	for v := int64(1); v <= workers; v++ {
		assert.True(t, seen[v], "gap at %d", v)
	}
}
