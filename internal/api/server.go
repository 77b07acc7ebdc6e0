// Package api serves latest-snapshot balance lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/observability"
	"github.com/marinade-finance/solana-snapshot-manager/internal/storage"
)

// Server exposes the read endpoints over the holder stores.
type Server struct {
	snapshots    storage.SnapshotStore
	holders      storage.HolderStore
	vemnde       storage.VeMNDEStore
	nativeStakes storage.NativeStakeStore
	log          *zap.Logger
}

// New creates a Server.
func New(snapshots storage.SnapshotStore, holders storage.HolderStore,
	vemnde storage.VeMNDEStore, nativeStakes storage.NativeStakeStore, log *zap.Logger) *Server {
	return &Server{
		snapshots:    snapshots,
		holders:      holders,
		vemnde:       vemnde,
		nativeStakes: nativeStakes,
		log:          log,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/snapshot/msol/{owner}", s.handleMsol)
	mux.HandleFunc("GET /v1/snapshot/vemnde/{owner}", s.handleVeMNDE)
	mux.HandleFunc("GET /v1/snapshot/native-stakes/{authority}", s.handleNativeStakes)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", observability.Handler())
	return mux
}

type msolResponse struct {
	Owner   string   `json:"owner"`
	Amount  string   `json:"amount"`
	Sources []string `json:"sources"`
	Amounts []string `json:"amounts"`
	IsVault bool     `json:"is_vault"`
	Slot    uint64   `json:"slot"`
}

type balanceResponse struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Slot   uint64 `json:"slot"`
}

func (s *Server) handleMsol(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(r.Context(), w)
	if !ok {
		return
	}
	row, err := s.holders.GetByOwner(r.Context(), snap.ID, r.PathValue("owner"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, msolResponse{
		Owner:   row.Owner,
		Amount:  row.Amount,
		Sources: row.Sources,
		Amounts: row.Amounts,
		IsVault: row.IsVault,
		Slot:    snap.Slot,
	})
}

func (s *Server) handleVeMNDE(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(r.Context(), w)
	if !ok {
		return
	}
	rec, err := s.vemnde.GetByAuthority(r.Context(), snap.ID, r.PathValue("owner"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, balanceResponse{Owner: rec.Authority, Amount: rec.Amount, Slot: snap.Slot})
}

func (s *Server) handleNativeStakes(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(r.Context(), w)
	if !ok {
		return
	}
	rec, err := s.nativeStakes.GetByAuthority(r.Context(), snap.ID, r.PathValue("authority"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, balanceResponse{Owner: rec.Authority, Amount: rec.Amount, Slot: snap.Slot})
}

func (s *Server) latest(ctx context.Context, w http.ResponseWriter) (*storage.Snapshot, bool) {
	snap, err := s.snapshots.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no snapshot parsed yet", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("latest snapshot lookup failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return snap, true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Error("store lookup failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response failed", zap.Error(err))
	}
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// short shutdown grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
