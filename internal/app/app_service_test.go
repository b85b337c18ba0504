package app

import (
	"context"
	"testing"

	"parts-warehouse/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRequests implements only what the tests exercise; anything else panics
// through the nil embedded interface.
type fakeRequests struct {
	core.RequestService
	byID     map[int]*core.PartRequest
	byNumber map[string]*core.PartRequest
	listed   *core.RequestStatus
	actorID  int
}

func (f *fakeRequests) GetRequest(_ context.Context, _ int, id int) (*core.PartRequest, error) {
	if r, ok := f.byID[id]; ok {
		return r, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeRequests) GetRequestByNumber(_ context.Context, _ int, number string) (*core.PartRequest, error) {
	if r, ok := f.byNumber[number]; ok {
		return r, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeRequests) SubmitRequest(_ context.Context, _, actorID, requestID int) (*core.PartRequest, error) {
	f.actorID = actorID
	r := *f.byID[requestID]
	r.Status = core.RequestSubmitted
	return &r, nil
}

func (f *fakeRequests) ListRequests(_ context.Context, _ int, status *core.RequestStatus) ([]core.PartRequest, error) {
	f.listed = status
	return nil, nil
}

type fakeLedger struct {
	core.LedgerService
	diffs []core.BalanceDiscrepancy
}

func (f *fakeLedger) ReconcilePart(context.Context, int, int) ([]core.BalanceDiscrepancy, error) {
	return f.diffs, nil
}

func newTestApp() (*appService, *fakeRequests, *fakeLedger) {
	r := &core.PartRequest{ID: 7, RequestNumber: "PR-00007", Status: core.RequestDraft}
	reqs := &fakeRequests{
		byID:     map[int]*core.PartRequest{7: r},
		byNumber: map[string]*core.PartRequest{"PR-00007": r},
	}
	ledger := &fakeLedger{}
	return &appService{requests: reqs, ledger: ledger}, reqs, ledger
}

func TestResolveRequest_AcceptsIDOrNumber(t *testing.T) {
	svc, _, _ := newTestApp()
	ctx := context.Background()

	byID, err := svc.resolveRequest(ctx, 1, "7")
	require.NoError(t, err)
	assert.Equal(t, 7, byID.ID)

	byNumber, err := svc.resolveRequest(ctx, 1, " pr-00007 ")
	require.NoError(t, err)
	assert.Equal(t, 7, byNumber.ID)

	_, err = svc.resolveRequest(ctx, 1, "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = svc.resolveRequest(ctx, 1, "PR-99999")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSubmitRequest_PassesActor(t *testing.T) {
	svc, reqs, _ := newTestApp()
	res, err := svc.SubmitRequest(context.Background(), Actor{TenantID: 1, UserID: 42}, "PR-00007")
	require.NoError(t, err)
	assert.Equal(t, core.RequestSubmitted, res.Request.Status)
	assert.Equal(t, 42, reqs.actorID)
}

func TestListRequests_ParsesStatus(t *testing.T) {
	svc, reqs, _ := newTestApp()
	ctx := context.Background()

	_, err := svc.ListRequests(ctx, 1, "reserved")
	require.NoError(t, err)
	require.NotNil(t, reqs.listed)
	assert.Equal(t, core.RequestReserved, *reqs.listed)

	_, err = svc.ListRequests(ctx, 1, "")
	require.NoError(t, err)
	assert.Nil(t, reqs.listed)

	_, err = svc.ListRequests(ctx, 1, "shipped")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestReconcilePart_Balanced(t *testing.T) {
	svc, _, ledger := newTestApp()
	ctx := context.Background()

	res, err := svc.ReconcilePart(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, res.Balanced)

	ledger.diffs = []core.BalanceDiscrepancy{{PartID: 3, BalanceQty: decimal.NewFromInt(1), LedgerQty: decimal.NewFromInt(2)}}
	res, err = svc.ReconcilePart(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, res.Balanced)
	assert.Len(t, res.Discrepancies, 1)
}
