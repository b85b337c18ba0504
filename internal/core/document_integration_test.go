package core_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"parts-warehouse/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentNumbering_ConcurrentRequestsAreGapless(t *testing.T) {
	e := setupEnv(t)

	const n = 10
	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.requests.CreateRequest(e.ctx, tenantA, requesterID, core.CreateRequestInput{
				Lines: []core.RequestLineInput{line(partFilter, "1")},
			})
			if err != nil {
				errCh <- err
				return
			}
			numbers <- r.RequestNumber
		}()
	}
	wg.Wait()
	close(errCh)
	close(numbers)

	for err := range errCh {
		t.Errorf("concurrent create error: %v", err)
	}

	var got []string
	for num := range numbers {
		got = append(got, num)
	}
	sort.Strings(got)
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("PR-%05d", i+1)
	}
	assert.Equal(t, want, got)
}

func TestDocumentNumbering_PerTenantAndRollbackSafe(t *testing.T) {
	e := setupEnv(t)
	b := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)

	first := e.submitted(t, nil, line(partBrakePad, "2"))
	assert.Equal(t, "PR-00001", first.RequestNumber)

	other, err := e.requests.CreateRequest(e.ctx, tenantB, requesterID, core.CreateRequestInput{
		Lines: []core.RequestLineInput{line(partOtherTen, "1")},
	})
	require.NoError(t, err)
	assert.Equal(t, "PR-00001", other.RequestNumber, "each tenant numbers independently")

	_, err = e.fulfill.ReserveRequest(e.ctx, tenantA, clerkID, first.ID, nil, core.ReservePolicy{})
	require.NoError(t, err)

	// Break the balance so the issue fails after the GI number was drawn.
	_, err = e.pool.Exec(e.ctx, "UPDATE stock_balances SET quantity_reserved = 0 WHERE id = $1", b.ID)
	require.NoError(t, err)
	_, err = e.fulfill.IssueRequest(e.ctx, tenantA, clerkID, first.ID)
	require.ErrorIs(t, err, core.ErrInconsistentState)

	_, err = e.pool.Exec(e.ctx, "UPDATE stock_balances SET quantity_reserved = 2 WHERE id = $1", b.ID)
	require.NoError(t, err)
	doc, err := e.fulfill.IssueRequest(e.ctx, tenantA, clerkID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "GI-00001", doc.DocumentNumber, "a rolled back issue does not burn a number")

	fetched, err := e.fulfill.GetIssueDocument(e.ctx, tenantA, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.DocumentNumber, fetched.DocumentNumber)
	require.Len(t, fetched.Lines, 1)

	_, err = e.fulfill.GetIssueDocument(e.ctx, tenantB, doc.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
