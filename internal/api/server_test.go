package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/api"
	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

type fakeSnapshots struct {
	latest *storage.Snapshot
	err    error
}

func (f *fakeSnapshots) Create(context.Context, uint64) (int64, error) { return 0, nil }
func (f *fakeSnapshots) Latest(context.Context) (*storage.Snapshot, error) {
	return f.latest, f.err
}

type fakeHolders struct {
	rows map[string]*storage.HolderRow
}

func (f *fakeHolders) InsertBulk(context.Context, int64, []storage.HolderRow) error { return nil }
func (f *fakeHolders) GetByOwner(_ context.Context, _ int64, owner string) (*storage.HolderRow, error) {
	row, ok := f.rows[owner]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return row, nil
}

type fakeVeMNDE struct {
	rows map[string]*domain.VeMNDERecord
}

func (f *fakeVeMNDE) InsertBulk(context.Context, int64, []domain.VeMNDERecord) error { return nil }
func (f *fakeVeMNDE) GetByAuthority(_ context.Context, _ int64, authority string) (*domain.VeMNDERecord, error) {
	rec, ok := f.rows[authority]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

type fakeNativeStakes struct {
	rows map[string]*domain.NativeStakeRecord
}

func (f *fakeNativeStakes) InsertBulk(context.Context, int64, []domain.NativeStakeRecord) error {
	return nil
}
func (f *fakeNativeStakes) GetByAuthority(_ context.Context, _ int64, authority string) (*domain.NativeStakeRecord, error) {
	rec, ok := f.rows[authority]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func testServer(snapshots storage.SnapshotStore) (*api.Server, *fakeHolders, *fakeVeMNDE, *fakeNativeStakes) {
	holders := &fakeHolders{rows: map[string]*storage.HolderRow{}}
	vemnde := &fakeVeMNDE{rows: map[string]*domain.VeMNDERecord{}}
	native := &fakeNativeStakes{rows: map[string]*domain.NativeStakeRecord{}}
	return api.New(snapshots, holders, vemnde, native, zap.NewNop()), holders, vemnde, native
}

func TestHandleMsol(t *testing.T) {
	snapshots := &fakeSnapshots{latest: &storage.Snapshot{ID: 7, Slot: 246810}}
	srv, holders, _, _ := testServer(snapshots)
	holders.rows["walletA"] = &storage.HolderRow{
		Owner:   "walletA",
		Amount:  "1.000000125",
		Sources: []string{"WALLET", "SABER"},
		Amounts: []string{"1.000000000", "0.000000125"},
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/snapshot/msol/walletA", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Owner   string   `json:"owner"`
		Amount  string   `json:"amount"`
		Sources []string `json:"sources"`
		Amounts []string `json:"amounts"`
		IsVault bool     `json:"is_vault"`
		Slot    uint64   `json:"slot"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "walletA", resp.Owner)
	assert.Equal(t, "1.000000125", resp.Amount)
	assert.Equal(t, []string{"WALLET", "SABER"}, resp.Sources)
	assert.Equal(t, []string{"1.000000000", "0.000000125"}, resp.Amounts)
	assert.False(t, resp.IsVault)
	assert.Equal(t, uint64(246810), resp.Slot)
}

func TestHandleMsol_UnknownOwner(t *testing.T) {
	srv, _, _, _ := testServer(&fakeSnapshots{latest: &storage.Snapshot{ID: 1, Slot: 5}})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/snapshot/msol/nobody", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleMsol_NoSnapshotYet(t *testing.T) {
	srv, _, _, _ := testServer(&fakeSnapshots{err: storage.ErrNotFound})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/snapshot/msol/walletA", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleVeMNDE(t *testing.T) {
	srv, _, vemnde, _ := testServer(&fakeSnapshots{latest: &storage.Snapshot{ID: 1, Slot: 99}})
	vemnde.rows["authorityA"] = &domain.VeMNDERecord{Authority: "authorityA", Amount: "12.5"}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/snapshot/vemnde/authorityA", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Owner  string `json:"owner"`
		Amount string `json:"amount"`
		Slot   uint64 `json:"slot"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "authorityA", resp.Owner)
	assert.Equal(t, "12.5", resp.Amount)
	assert.Equal(t, uint64(99), resp.Slot)
}

func TestHandleNativeStakes(t *testing.T) {
	srv, _, _, native := testServer(&fakeSnapshots{latest: &storage.Snapshot{ID: 1, Slot: 99}})
	native.rows["authorityB"] = &domain.NativeStakeRecord{Authority: "authorityB", Amount: "3.000000000"}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/snapshot/native-stakes/authorityB", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"3.000000000"`)
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := testServer(&fakeSnapshots{err: storage.ErrNotFound})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
