package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
	"github.com/marinade-finance/solana-snapshot-manager/internal/sharemath"
	"github.com/marinade-finance/solana-snapshot-manager/internal/snapshot"
)

// DepositTableExtractor reads one of the collector-resolved lending deposit
// tables (Solend, Drift, marginfi, Mango). The collector already unwound
// exchange rates and interest indexes while it held the matching reserve
// state, so the rows are plain (owner, amount) pairs.
type DepositTableExtractor struct {
	tag   domain.Source
	table string
	log   *zap.Logger
}

var _ Extractor = (*DepositTableExtractor)(nil)

func NewDepositTableExtractor(d Deps, tag domain.Source, table string) *DepositTableExtractor {
	return &DepositTableExtractor{tag: tag, table: table, log: d.Log}
}

func (e *DepositTableExtractor) Tag() domain.Source { return e.tag }

func (e *DepositTableExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	rows, err := db.DepositRows(ctx, e.table)
	if err != nil {
		return nil, err
	}
	out := make(Balances, len(rows))
	for _, r := range rows {
		out.Add(r.Owner, r.Amount)
	}
	e.log.Info("extracted lending deposits",
		zap.String("source", e.tag.String()), zap.Int("owners", len(out)))
	return out, nil
}

// PortExtractor decodes raw Port obligation blobs captured in the snapshot
// and credits each profile owner with its reference-asset collateral.
// Blobs of the wrong size or from a foreign lending market are skipped.
type PortExtractor struct {
	program       string
	lendingMarket string
	msolReserve   string
	decoder       sharemath.ObligationDecoder
	log           *zap.Logger
}

var _ Extractor = (*PortExtractor)(nil)

func NewPortExtractor(d Deps) *PortExtractor {
	return &PortExtractor{
		program:       d.Registry.PortProgram,
		lendingMarket: d.Registry.PortLendingMarket,
		msolReserve:   d.Registry.PortMsolReserve,
		decoder:       d.Decoder,
		log:           d.Log,
	}
}

func (e *PortExtractor) Tag() domain.Source { return domain.SourcePort }

func (e *PortExtractor) Extract(ctx context.Context, db *snapshot.DB) (Balances, error) {
	obligations, err := db.PortObligations(ctx)
	if err != nil {
		return nil, err
	}

	out := make(Balances)
	var skipped int
	for _, raw := range obligations {
		if raw.Program != e.program {
			skipped++
			continue
		}
		decoded, err := e.decoder.Decode(raw.Data)
		if err != nil {
			e.log.Warn("skipping malformed port obligation",
				zap.String("pubkey", raw.Pubkey), zap.Error(err))
			skipped++
			continue
		}
		if decoded.LendingMarket != e.lendingMarket {
			skipped++
			continue
		}
		for _, dep := range decoded.Deposits {
			if dep.Reserve == e.msolReserve {
				out.Add(decoded.Owner, dep.Amount)
			}
		}
	}
	e.log.Info("extracted port obligations",
		zap.Int("obligations", len(obligations)),
		zap.Int("skipped", skipped),
		zap.Int("owners", len(out)))
	return out, nil
}
