package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/marinade-finance/solana-snapshot-manager/internal/domain"
)

// WhirlpoolPool is one captured Orca whirlpool state row.
type WhirlpoolPool struct {
	Pubkey    string
	TokenA    string
	TokenB    string
	SqrtPrice *big.Int
}

// WhirlpoolPool returns the captured state of one whirlpool, or
// ErrDataMissing when the pool was not in the dump.
func (s *DB) WhirlpoolPool(ctx context.Context, pubkey string) (*WhirlpoolPool, error) {
	var p WhirlpoolPool
	var sqrtPrice string
	err := s.db.QueryRowContext(ctx, `
		SELECT pubkey, token_a, token_b, CAST(sqrt_price AS TEXT)
		FROM whirlpool_pools
		WHERE pubkey = ?
	`, pubkey).Scan(&p.Pubkey, &p.TokenA, &p.TokenB, &sqrtPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("whirlpool %s: %w", pubkey, ErrDataMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("query whirlpool %s: %w", pubkey, err)
	}
	if p.SqrtPrice, err = domain.ParseAmount(sqrtPrice); err != nil {
		return nil, fmt.Errorf("whirlpool %s sqrt price: %w", pubkey, err)
	}
	return &p, nil
}

// OrcaPosition is one concentrated-liquidity position joined with the owner
// of its position NFT.
type OrcaPosition struct {
	PriceLower *big.Int
	PriceUpper *big.Int
	Liquidity  *big.Int
	Owner      string
}

// OrcaPositions lists positions of one whirlpool.
func (s *DB) OrcaPositions(ctx context.Context, pool string) ([]OrcaPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			CAST(orca.price_lower AS TEXT),
			CAST(orca.price_upper AS TEXT),
			CAST(orca.liquidity AS TEXT),
			token_account.owner
		FROM orca, token_account
		WHERE orca.position_mint = token_account.mint AND orca.pool = ?
	`, pool)
	if err != nil {
		return nil, fmt.Errorf("query orca positions for pool %s: %w", pool, err)
	}
	defer rows.Close()

	var positions []OrcaPosition
	for rows.Next() {
		var lower, upper, liquidity string
		var p OrcaPosition
		if err := rows.Scan(&lower, &upper, &liquidity, &p.Owner); err != nil {
			return nil, fmt.Errorf("scan orca position: %w", err)
		}
		if p.PriceLower, err = domain.ParseAmount(lower); err != nil {
			return nil, err
		}
		if p.PriceUpper, err = domain.ParseAmount(upper); err != nil {
			return nil, err
		}
		if p.Liquidity, err = domain.ParseAmount(liquidity); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RaydiumPool is one captured Raydium concentrated-liquidity AMM row.
type RaydiumPool struct {
	Pubkey       string
	Mint1        string
	Mint2        string
	Vault1       string
	Vault2       string
	SqrtPriceX64 *big.Int
}

// RaydiumPools lists AMMs where either side is the given mint.
func (s *DB) RaydiumPools(ctx context.Context, mint string) ([]RaydiumPool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, mint1, mint2, vault1, vault2, CAST(sqrt_price_x64 AS TEXT)
		FROM raydium_amms
		WHERE mint1 = ? OR mint2 = ?
	`, mint, mint)
	if err != nil {
		return nil, fmt.Errorf("query raydium amms for mint %s: %w", mint, err)
	}
	defer rows.Close()

	var pools []RaydiumPool
	for rows.Next() {
		var p RaydiumPool
		var sqrtPrice string
		if err := rows.Scan(&p.Pubkey, &p.Mint1, &p.Mint2, &p.Vault1, &p.Vault2, &sqrtPrice); err != nil {
			return nil, fmt.Errorf("scan raydium amm: %w", err)
		}
		if p.SqrtPriceX64, err = domain.ParseAmount(sqrtPrice); err != nil {
			return nil, fmt.Errorf("raydium amm %s sqrt price: %w", p.Pubkey, err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// RaydiumPosition is one position of a Raydium AMM, joined with the owner of
// its position NFT. Bounds are tick indexes, not sqrt prices.
type RaydiumPosition struct {
	TickLower int
	TickUpper int
	Liquidity *big.Int
	Owner     string
}

// RaydiumPositions lists positions of one Raydium AMM.
func (s *DB) RaydiumPositions(ctx context.Context, pool string) ([]RaydiumPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			raydium_amm_positions.tick_lower_index,
			raydium_amm_positions.tick_upper_index,
			CAST(raydium_amm_positions.liquidity AS TEXT),
			token_account.owner
		FROM raydium_amm_positions, token_account
		WHERE raydium_amm_positions.nft_mint = token_account.mint
		  AND raydium_amm_positions.pool_id = ?
	`, pool)
	if err != nil {
		return nil, fmt.Errorf("query raydium positions for pool %s: %w", pool, err)
	}
	defer rows.Close()

	var positions []RaydiumPosition
	for rows.Next() {
		var p RaydiumPosition
		var liquidity string
		if err := rows.Scan(&p.TickLower, &p.TickUpper, &liquidity, &p.Owner); err != nil {
			return nil, fmt.Errorf("scan raydium position: %w", err)
		}
		if p.Liquidity, err = domain.ParseAmount(liquidity); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DepositRow is one precomputed (owner, amount) deposit, used by the lending
// integrations whose obligations the collector already resolved offline.
type DepositRow struct {
	Owner  string
	Amount *big.Int
}

// depositTables whitelists the auxiliary tables readable via DepositRows,
// keyed by table name with the amount column to read.
var depositTables = map[string]string{
	"solend": "deposit_amount",
	"drift":  "amount",
	"mrgn":   "amount",
	"mango":  "amount",
}

// DepositRows reads an (owner, amount) auxiliary table, ordered by amount
// descending. Only known collector-populated tables are accepted.
func (s *DB) DepositRows(ctx context.Context, table string) ([]DepositRow, error) {
	column, ok := depositTables[table]
	if !ok {
		return nil, fmt.Errorf("unknown deposit table %q", table)
	}
	query := fmt.Sprintf(
		`SELECT owner, CAST(%s AS TEXT) FROM %s ORDER BY %s DESC`, column, table, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s deposits: %w", table, err)
	}
	defer rows.Close()

	var deposits []DepositRow
	for rows.Next() {
		var d DepositRow
		var amount string
		if err := rows.Scan(&d.Owner, &amount); err != nil {
			return nil, fmt.Errorf("scan %s deposit: %w", table, err)
		}
		if d.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// PortObligation is one raw lending obligation blob with its owning program.
type PortObligation struct {
	Pubkey  string
	Program string
	Data    []byte
}

// PortObligations lists captured Port lending obligation accounts.
func (s *DB) PortObligations(ctx context.Context) ([]PortObligation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pubkey, owner, data FROM port`)
	if err != nil {
		return nil, fmt.Errorf("query port obligations: %w", err)
	}
	defer rows.Close()

	var obligations []PortObligation
	for rows.Next() {
		var o PortObligation
		if err := rows.Scan(&o.Pubkey, &o.Program, &o.Data); err != nil {
			return nil, fmt.Errorf("scan port obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// MeteoraVault is one captured Meteora yield vault state row.
type MeteoraVault struct {
	Pubkey                  string
	LpMint                  string
	TokenVault              string
	LastReport              *big.Int
	LockedProfitDegradation *big.Int
	LastUpdatedLockedProfit *big.Int
	TotalAmount             *big.Int
}

// MeteoraVaults lists captured Meteora vaults. The collector only captures
// vaults holding the reference asset, per the filter descriptor.
func (s *DB) MeteoraVaults(ctx context.Context) ([]MeteoraVault, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, lp_mint, token_vault,
			CAST(last_report AS TEXT),
			CAST(locked_profit_degradation AS TEXT),
			CAST(last_updated_locked_profit AS TEXT),
			CAST(total_amount AS TEXT)
		FROM meteora_vaults
	`)
	if err != nil {
		return nil, fmt.Errorf("query meteora vaults: %w", err)
	}
	defer rows.Close()

	var vaults []MeteoraVault
	for rows.Next() {
		var v MeteoraVault
		var lastReport, degradation, lockedProfit, totalAmount string
		if err := rows.Scan(&v.Pubkey, &v.LpMint, &v.TokenVault,
			&lastReport, &degradation, &lockedProfit, &totalAmount); err != nil {
			return nil, fmt.Errorf("scan meteora vault: %w", err)
		}
		if v.LastReport, err = domain.ParseAmount(lastReport); err != nil {
			return nil, err
		}
		if v.LockedProfitDegradation, err = domain.ParseAmount(degradation); err != nil {
			return nil, err
		}
		if v.LastUpdatedLockedProfit, err = domain.ParseAmount(lockedProfit); err != nil {
			return nil, err
		}
		if v.TotalAmount, err = domain.ParseAmount(totalAmount); err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// MercurialPool is one captured Mercurial AMM pool built on Meteora vaults.
type MercurialPool struct {
	Pubkey     string
	LpMint     string
	TokenAMint string
	TokenBMint string
	AVaultLp   string
	BVaultLp   string
}

// MercurialPools lists captured Mercurial AMM pools.
func (s *DB) MercurialPools(ctx context.Context) ([]MercurialPool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, lp_mint, token_a_mint, token_b_mint, a_vault_lp, b_vault_lp
		FROM mercurial_pools
	`)
	if err != nil {
		return nil, fmt.Errorf("query mercurial pools: %w", err)
	}
	defer rows.Close()

	var pools []MercurialPool
	for rows.Next() {
		var p MercurialPool
		if err := rows.Scan(&p.Pubkey, &p.LpMint, &p.TokenAMint, &p.TokenBMint, &p.AVaultLp, &p.BVaultLp); err != nil {
			return nil, fmt.Errorf("scan mercurial pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// KaminoStrategy is one captured Kamino strategy row, populated by the
// collector from the strategy list in the filter descriptor.
type KaminoStrategy struct {
	Pubkey          string
	Pool            string
	SharesMint      string
	SharesIssued    *big.Int
	TokenAMint      string
	TokenBMint      string
	TokenAVault     string
	TokenBVault     string
	PoolTokenVaultA string
	PoolTokenVaultB string
	TokenAAmounts   *big.Int
	TokenBAmounts   *big.Int
}

// KaminoStrategies lists strategies where either side is the given mint.
func (s *DB) KaminoStrategies(ctx context.Context, mint string) ([]KaminoStrategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pubkey, pool, shares_mint,
			CAST(shares_issued AS TEXT),
			token_a_mint, token_b_mint,
			token_a_vault, token_b_vault,
			pool_token_vault_a, pool_token_vault_b,
			CAST(token_a_amounts AS TEXT),
			CAST(token_b_amounts AS TEXT)
		FROM kamino_strategies
		WHERE token_a_mint = ? OR token_b_mint = ?
	`, mint, mint)
	if err != nil {
		return nil, fmt.Errorf("query kamino strategies for mint %s: %w", mint, err)
	}
	defer rows.Close()

	var strategies []KaminoStrategy
	for rows.Next() {
		var k KaminoStrategy
		var sharesIssued, aAmounts, bAmounts string
		if err := rows.Scan(&k.Pubkey, &k.Pool, &k.SharesMint, &sharesIssued,
			&k.TokenAMint, &k.TokenBMint, &k.TokenAVault, &k.TokenBVault,
			&k.PoolTokenVaultA, &k.PoolTokenVaultB, &aAmounts, &bAmounts); err != nil {
			return nil, fmt.Errorf("scan kamino strategy: %w", err)
		}
		if k.SharesIssued, err = domain.ParseAmount(sharesIssued); err != nil {
			return nil, err
		}
		if k.TokenAAmounts, err = domain.ParseAmount(aAmounts); err != nil {
			return nil, err
		}
		if k.TokenBAmounts, err = domain.ParseAmount(bAmounts); err != nil {
			return nil, err
		}
		strategies = append(strategies, k)
	}
	return strategies, rows.Err()
}

// KaminoObligationDeposit is one resolved lending deposit row.
type KaminoObligationDeposit struct {
	Owner  string
	Market string
	Mint   string
	Amount *big.Int
}

// KaminoObligationDeposits lists resolved Kamino lending deposits of the
// given mint. Market filtering against the canonical market list happens in
// the extractor.
func (s *DB) KaminoObligationDeposits(ctx context.Context, mint string) ([]KaminoObligationDeposit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, market, mint, CAST(deposited_amount AS TEXT)
		FROM kamino_obligations
		WHERE mint = ? AND deposited_amount > 0
		ORDER BY deposited_amount DESC
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query kamino obligations for mint %s: %w", mint, err)
	}
	defer rows.Close()

	var deposits []KaminoObligationDeposit
	for rows.Next() {
		var d KaminoObligationDeposit
		var amount string
		if err := rows.Scan(&d.Owner, &d.Market, &d.Mint, &amount); err != nil {
			return nil, fmt.Errorf("scan kamino obligation: %w", err)
		}
		if d.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// VeMNDEAccount is one captured voter-stake-registry account.
type VeMNDEAccount struct {
	Pubkey         string
	VoterAuthority string
	VotingPower    *big.Int
}

// VeMNDEAccounts lists captured veMNDE voting accounts.
func (s *DB) VeMNDEAccounts(ctx context.Context) ([]VeMNDEAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pubkey, voter_authority, CAST(voting_power AS TEXT) FROM vemnde_accounts`)
	if err != nil {
		return nil, fmt.Errorf("query vemnde accounts: %w", err)
	}
	defer rows.Close()

	var accounts []VeMNDEAccount
	for rows.Next() {
		var a VeMNDEAccount
		var power string
		if err := rows.Scan(&a.Pubkey, &a.VoterAuthority, &power); err != nil {
			return nil, fmt.Errorf("scan vemnde account: %w", err)
		}
		if a.VotingPower, err = domain.ParseAmount(power); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// NativeStakeAccount is one captured native stake account.
type NativeStakeAccount struct {
	Pubkey            string
	WithdrawAuthority string
	Amount            *big.Int
}

// NativeStakeAccounts lists captured native stake accounts.
func (s *DB) NativeStakeAccounts(ctx context.Context) ([]NativeStakeAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pubkey, withdraw_authority, CAST(amount AS TEXT) FROM native_stake_accounts`)
	if err != nil {
		return nil, fmt.Errorf("query native stake accounts: %w", err)
	}
	defer rows.Close()

	var accounts []NativeStakeAccount
	for rows.Next() {
		var a NativeStakeAccount
		var amount string
		if err := rows.Scan(&a.Pubkey, &a.WithdrawAuthority, &amount); err != nil {
			return nil, fmt.Errorf("scan native stake account: %w", err)
		}
		if a.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
