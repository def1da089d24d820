package core

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable-state contract from spec.md §4.2. It is an interface
// so the Signature/Sync/Finalization services can be tested against a
// hand-written fake, following the teacher's no-mocking-framework
// convention (tests/fault_tolerance_test.go writes its own fakes rather than
// reaching for a generated mock).
type Store interface {
	Migrate(ctx context.Context) error

	UpsertMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, address string) (*Market, error)
	ListMarkets(ctx context.Context, status *MarketStatus, limit, offset int) ([]Market, error)
	ListAllMarketAddresses(ctx context.Context) ([]string, error)
	ListStaleMarkets(ctx context.Context, olderThan time.Time) ([]string, error)
	CountMarketsByStatus(ctx context.Context) (map[MarketStatus]int, error)

	UpsertParticipant(ctx context.Context, market, user string, stake *big.Int, outcome int, hasAttested bool) error
	GetParticipant(ctx context.Context, market, user string) (*Participant, error)
	ListParticipants(ctx context.Context, market string) ([]Participant, error)
	CountEligibleParticipants(ctx context.Context, market string, outcome int) (int, error)
	CountParticipants(ctx context.Context) (int, error)

	CreateProposal(ctx context.Context, p Proposal) (*Proposal, error)
	GetActiveProposal(ctx context.Context, market string) (*Proposal, error)
	MarkProposalDisputed(ctx context.Context, market string) error
	UpdateProposalAttestationCount(ctx context.Context, proposalID string, count int) error
	ListProposalsPastDisputeWindow(ctx context.Context, now time.Time) ([]Proposal, error)
	ListStaleOpenProposals(ctx context.Context, olderThan time.Time, minAttestations int) ([]Proposal, error)

	CreateAttestation(ctx context.Context, a Attestation) (*Attestation, error)
	CountValidAttestations(ctx context.Context, market string, outcome int) (int, error)
	CountAttestations(ctx context.Context) (int, error)
	GetAttestations(ctx context.Context, market string, outcome *int) ([]Attestation, error)
	GetAttestationsForFinalization(ctx context.Context, market string, outcome int) (signatures [][]byte, nonces []*big.Int, signers []string, err error)
	DeleteAttestations(ctx context.Context, market string) error

	EnqueueFinalization(ctx context.Context, market string, signatureCount, eligibleCount, proposalOutcome int) error
	GetFinalizationEntry(ctx context.Context, market string) (*FinalizationQueueEntry, error)
	ListFinalizationQueue(ctx context.Context, onlyPending bool, limit int) ([]FinalizationQueueEntry, error)
	TouchFinalizationEntry(ctx context.Context, market string) error
	MarkFinalizationAttempted(ctx context.Context, market, errMsg string) error
	MarkFinalizationCompleted(ctx context.Context, market string) error

	LogSyncOperation(ctx context.Context, op, market, status, message string, duration time.Duration) error
	ListRecentSyncLogs(ctx context.Context, limit int) ([]SyncLogEntry, error)
	DeleteOldSyncLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// PgStore is the PostgreSQL-backed Store implementation, using jackc/pgx/v5
// directly (no ORM) — the same choice the pack's comunifi-relay makes for a
// chain-facing relayer backed by Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore connects a pgxpool to databaseURL. The pool itself handles
// connection lifecycle and retries; callers pass a context bound to process
// startup.
func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, WrapError(KindInternal, "connect to database", err)
	}
	return &PgStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PgStore) Close() { s.pool.Close() }

func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return WrapError(KindInternal, "apply schema", err)
	}
	return nil
}

func bigOrZero(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}

func (s *PgStore) UpsertMarket(ctx context.Context, m Market) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets (address, topic, threshold_percent, staking_token,
			participant_count, total_staked, status, created_at, proposed_at,
			resolved_at, last_sync_at, cancel_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now(), $11)
		ON CONFLICT (address) DO UPDATE SET
			topic = EXCLUDED.topic,
			threshold_percent = EXCLUDED.threshold_percent,
			staking_token = EXCLUDED.staking_token,
			participant_count = EXCLUDED.participant_count,
			total_staked = EXCLUDED.total_staked,
			status = EXCLUDED.status,
			proposed_at = COALESCE(EXCLUDED.proposed_at, markets.proposed_at),
			resolved_at = COALESCE(EXCLUDED.resolved_at, markets.resolved_at),
			last_sync_at = now(),
			cancel_reason = COALESCE(EXCLUDED.cancel_reason, markets.cancel_reason)
	`, NormalizeAddress(m.Address), m.Topic, m.ThresholdPercent, NormalizeAddress(m.StakingToken),
		m.ParticipantCount, bigOrZero(m.TotalStaked).String(), int(m.Status), m.CreatedAt,
		m.ProposedAt, m.ResolvedAt, m.CancelReason)
	if err != nil {
		return WrapError(KindInternal, "upsert market", err)
	}
	return nil
}

func scanMarket(row pgx.Row) (*Market, error) {
	var m Market
	var total string
	var status int
	if err := row.Scan(&m.Address, &m.Topic, &m.ThresholdPercent, &m.StakingToken,
		&m.ParticipantCount, &total, &status, &m.CreatedAt, &m.ProposedAt,
		&m.ResolvedAt, &m.LastSyncAt, &m.CancelReason); err != nil {
		return nil, err
	}
	m.Status = MarketStatus(status)
	m.TotalStaked, _ = new(big.Int).SetString(total, 10)
	return &m, nil
}

const marketColumns = `address, topic, threshold_percent, staking_token, participant_count, total_staked, status, created_at, proposed_at, resolved_at, last_sync_at, cancel_reason`

func (s *PgStore) GetMarket(ctx context.Context, address string) (*Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE address = $1`, NormalizeAddress(address))
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewError(KindNotFound, "market not found")
	}
	if err != nil {
		return nil, WrapError(KindInternal, "get market", err)
	}
	return m, nil
}

func (s *PgStore) ListMarkets(ctx context.Context, status *MarketStatus, limit, offset int) ([]Market, error) {
	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, int(*status), limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, WrapError(KindInternal, "list markets", err)
	}
	defer rows.Close()
	var out []Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, WrapError(KindInternal, "scan market", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PgStore) ListAllMarketAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM markets`)
	if err != nil {
		return nil, WrapError(KindInternal, "list market addresses", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, WrapError(KindInternal, "scan address", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PgStore) ListStaleMarkets(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM markets WHERE last_sync_at < $1 AND status NOT IN ($2,$3)`,
		olderThan, int(StatusResolved), int(StatusCancelled))
	if err != nil {
		return nil, WrapError(KindInternal, "list stale markets", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, WrapError(KindInternal, "scan address", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *PgStore) CountMarketsByStatus(ctx context.Context) (map[MarketStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM markets GROUP BY status`)
	if err != nil {
		return nil, WrapError(KindInternal, "count markets by status", err)
	}
	defer rows.Close()
	out := map[MarketStatus]int{}
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, WrapError(KindInternal, "scan status count", err)
		}
		out[MarketStatus(status)] = count
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertParticipant(ctx context.Context, market, user string, stake *big.Int, outcome int, hasAttested bool) error {
	market, user = NormalizeAddress(market), NormalizeAddress(user)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return WrapError(KindInternal, "begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO users (address) VALUES ($1) ON CONFLICT DO NOTHING`, user); err != nil {
		return WrapError(KindInternal, "lazily create user", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO participants (market, "user", stake, outcome, has_attested)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (market, "user") DO UPDATE SET
			stake = EXCLUDED.stake, outcome = EXCLUDED.outcome, has_attested = EXCLUDED.has_attested
	`, market, user, bigOrZero(stake).String(), outcome, hasAttested); err != nil {
		return WrapError(KindInternal, "upsert participant", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return WrapError(KindInternal, "commit participant upsert", err)
	}
	return nil
}

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	var stake string
	if err := row.Scan(&p.Market, &p.User, &stake, &p.Outcome, &p.HasAttested); err != nil {
		return nil, err
	}
	p.Stake, _ = new(big.Int).SetString(stake, 10)
	return &p, nil
}

func (s *PgStore) GetParticipant(ctx context.Context, market, user string) (*Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT market, "user", stake, outcome, has_attested FROM participants WHERE market=$1 AND "user"=$2`,
		NormalizeAddress(market), NormalizeAddress(user))
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewError(KindNotParticipant, "not a participant of this market")
	}
	if err != nil {
		return nil, WrapError(KindInternal, "get participant", err)
	}
	return p, nil
}

func (s *PgStore) ListParticipants(ctx context.Context, market string) ([]Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT market, "user", stake, outcome, has_attested FROM participants WHERE market=$1`, NormalizeAddress(market))
	if err != nil {
		return nil, WrapError(KindInternal, "list participants", err)
	}
	defer rows.Close()
	var out []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, WrapError(KindInternal, "scan participant", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PgStore) CountEligibleParticipants(ctx context.Context, market string, outcome int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM participants WHERE market=$1 AND outcome=$2`, NormalizeAddress(market), outcome).Scan(&count)
	if err != nil {
		return 0, WrapError(KindInternal, "count eligible participants", err)
	}
	return count, nil
}

func (s *PgStore) CountParticipants(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM participants`).Scan(&count); err != nil {
		return 0, WrapError(KindInternal, "count participants", err)
	}
	return count, nil
}

func (s *PgStore) CreateProposal(ctx context.Context, p Proposal) (*Proposal, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, WrapError(KindInternal, "begin tx", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx, `SELECT id FROM proposals WHERE market=$1 AND is_disputed=false FOR UPDATE`, NormalizeAddress(p.Market)).Scan(&existing)
	if err == nil {
		return nil, NewError(KindConflict, "an active proposal already exists for this market")
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, WrapError(KindInternal, "check active proposal", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO proposals (id, market, proposer, outcome, dispute_until, evidence_hash, attestation_count, is_disputed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,false,now())
	`, p.ID, NormalizeAddress(p.Market), NormalizeAddress(p.Proposer), p.Outcome, p.DisputeUntil, p.EvidenceHash)
	if err != nil {
		return nil, WrapError(KindInternal, "create proposal", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, WrapError(KindInternal, "commit proposal", err)
	}
	return &p, nil
}

func scanProposal(row pgx.Row) (*Proposal, error) {
	var p Proposal
	if err := row.Scan(&p.ID, &p.Market, &p.Proposer, &p.Outcome, &p.DisputeUntil,
		&p.EvidenceHash, &p.AttestationCount, &p.IsDisputed, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const proposalColumns = `id, market, proposer, outcome, dispute_until, evidence_hash, attestation_count, is_disputed, created_at`

func (s *PgStore) GetActiveProposal(ctx context.Context, market string) (*Proposal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE market=$1 AND is_disputed=false ORDER BY created_at DESC LIMIT 1`, NormalizeAddress(market))
	p, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewError(KindNoActiveProposal, "no active proposal for this market")
	}
	if err != nil {
		return nil, WrapError(KindInternal, "get active proposal", err)
	}
	return p, nil
}

func (s *PgStore) MarkProposalDisputed(ctx context.Context, market string) error {
	_, err := s.pool.Exec(ctx, `UPDATE proposals SET is_disputed=true WHERE market=$1 AND is_disputed=false`, NormalizeAddress(market))
	if err != nil {
		return WrapError(KindInternal, "mark proposal disputed", err)
	}
	return nil
}

func (s *PgStore) UpdateProposalAttestationCount(ctx context.Context, proposalID string, count int) error {
	_, err := s.pool.Exec(ctx, `UPDATE proposals SET attestation_count=$1 WHERE id=$2`, count, proposalID)
	if err != nil {
		return WrapError(KindInternal, "update attestation count", err)
	}
	return nil
}

func (s *PgStore) ListProposalsPastDisputeWindow(ctx context.Context, now time.Time) ([]Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals p
		JOIN markets m ON m.address = p.market
		WHERE p.is_disputed=false AND p.dispute_until <= $1 AND m.status NOT IN ($2,$3)
	`, now, int(StatusResolved), int(StatusCancelled))
	if err != nil {
		return nil, WrapError(KindInternal, "list expired dispute windows", err)
	}
	defer rows.Close()
	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, WrapError(KindInternal, "scan proposal", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PgStore) ListStaleOpenProposals(ctx context.Context, olderThan time.Time, minAttestations int) ([]Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+proposalColumns+` FROM proposals p
		JOIN markets m ON m.address = p.market
		WHERE p.is_disputed=false AND p.created_at <= $1 AND m.status=$2
	`, olderThan, int(StatusProposed))
	if err != nil {
		return nil, WrapError(KindInternal, "list stale proposals", err)
	}
	defer rows.Close()
	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, WrapError(KindInternal, "scan proposal", err)
		}
		if p.AttestationCount >= minAttestations {
			out = append(out, *p)
		}
	}
	return out, rows.Err()
}

func (s *PgStore) CreateAttestation(ctx context.Context, a Attestation) (*Attestation, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attestations (id, market, proposal_id, signer, outcome, nonce, signature, submitted_at, is_valid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),true)
	`, a.ID, NormalizeAddress(a.Market), a.ProposalID, NormalizeAddress(a.Signer), a.Outcome, bigOrZero(a.Nonce).String(), a.Signature)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, NewError(KindConflict, "attestation already submitted for this (market, signer, nonce)")
		}
		return nil, WrapError(KindInternal, "create attestation", err)
	}
	return &a, nil
}

func (s *PgStore) CountValidAttestations(ctx context.Context, market string, outcome int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM attestations WHERE market=$1 AND outcome=$2 AND is_valid=true`,
		NormalizeAddress(market), outcome).Scan(&count)
	if err != nil {
		return 0, WrapError(KindInternal, "count valid attestations", err)
	}
	return count, nil
}

func (s *PgStore) CountAttestations(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM attestations WHERE is_valid=true`).Scan(&count); err != nil {
		return 0, WrapError(KindInternal, "count attestations", err)
	}
	return count, nil
}

func (s *PgStore) GetAttestations(ctx context.Context, market string, outcome *int) ([]Attestation, error) {
	var rows pgx.Rows
	var err error
	if outcome != nil {
		rows, err = s.pool.Query(ctx, `SELECT id, market, proposal_id, signer, outcome, nonce, signature, submitted_at, is_valid FROM attestations WHERE market=$1 AND outcome=$2 AND is_valid=true ORDER BY submitted_at ASC`,
			NormalizeAddress(market), *outcome)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT id, market, proposal_id, signer, outcome, nonce, signature, submitted_at, is_valid FROM attestations WHERE market=$1 AND is_valid=true ORDER BY submitted_at ASC`,
			NormalizeAddress(market))
	}
	if err != nil {
		return nil, WrapError(KindInternal, "list attestations", err)
	}
	defer rows.Close()
	var out []Attestation
	for rows.Next() {
		var a Attestation
		var nonce string
		if err := rows.Scan(&a.ID, &a.Market, &a.ProposalID, &a.Signer, &a.Outcome, &nonce, &a.Signature, &a.SubmittedAt, &a.IsValid); err != nil {
			return nil, WrapError(KindInternal, "scan attestation", err)
		}
		a.Nonce, _ = new(big.Int).SetString(nonce, 10)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PgStore) GetAttestationsForFinalization(ctx context.Context, market string, outcome int) ([][]byte, []*big.Int, []string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature, nonce, signer FROM attestations
		WHERE market=$1 AND outcome=$2 AND is_valid=true ORDER BY submitted_at ASC
	`, NormalizeAddress(market), outcome)
	if err != nil {
		return nil, nil, nil, WrapError(KindInternal, "list attestations for finalization", err)
	}
	defer rows.Close()
	var sigs [][]byte
	var nonces []*big.Int
	var signers []string
	for rows.Next() {
		var sigHex, nonceStr, signer string
		if err := rows.Scan(&sigHex, &nonceStr, &signer); err != nil {
			return nil, nil, nil, WrapError(KindInternal, "scan finalization row", err)
		}
		sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
		if err != nil {
			return nil, nil, nil, WrapError(KindInternal, "decode attestation signature", err)
		}
		sigs = append(sigs, sig)
		n, _ := new(big.Int).SetString(nonceStr, 10)
		nonces = append(nonces, n)
		signers = append(signers, signer)
	}
	return sigs, nonces, signers, rows.Err()
}

func (s *PgStore) DeleteAttestations(ctx context.Context, market string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM attestations WHERE market=$1`, NormalizeAddress(market))
	if err != nil {
		return WrapError(KindInternal, "delete attestations", err)
	}
	return nil
}

func (s *PgStore) EnqueueFinalization(ctx context.Context, market string, signatureCount, eligibleCount, proposalOutcome int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO finalization_queue (market, signature_count, eligible_count, proposal_outcome, last_checked_at)
		VALUES ($1,$2,$3,$4, now())
		ON CONFLICT (market) DO UPDATE SET
			signature_count = EXCLUDED.signature_count,
			eligible_count = EXCLUDED.eligible_count,
			proposal_outcome = EXCLUDED.proposal_outcome,
			last_checked_at = now()
		WHERE finalization_queue.completed_at IS NULL
	`, NormalizeAddress(market), signatureCount, eligibleCount, proposalOutcome)
	if err != nil {
		return WrapError(KindInternal, "enqueue finalization", err)
	}
	return nil
}

func scanQueueEntry(row pgx.Row) (*FinalizationQueueEntry, error) {
	var e FinalizationQueueEntry
	if err := row.Scan(&e.Market, &e.SignatureCount, &e.EligibleCount, &e.ProposalOutcome,
		&e.LastCheckedAt, &e.AttemptedAt, &e.CompletedAt, &e.ThresholdMet, &e.LastError, &e.Attempts); err != nil {
		return nil, err
	}
	return &e, nil
}

const queueColumns = `market, signature_count, eligible_count, proposal_outcome, last_checked_at, attempted_at, completed_at, threshold_met, last_error, attempts`

func (s *PgStore) GetFinalizationEntry(ctx context.Context, market string) (*FinalizationQueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM finalization_queue WHERE market=$1`, NormalizeAddress(market))
	e, err := scanQueueEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NewError(KindNotFound, "no finalization queue entry for this market")
	}
	if err != nil {
		return nil, WrapError(KindInternal, "get finalization entry", err)
	}
	return e, nil
}

func (s *PgStore) ListFinalizationQueue(ctx context.Context, onlyPending bool, limit int) ([]FinalizationQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM finalization_queue`
	if onlyPending {
		query += ` WHERE completed_at IS NULL`
	}
	query += ` ORDER BY last_checked_at ASC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, WrapError(KindInternal, "list finalization queue", err)
	}
	defer rows.Close()
	var out []FinalizationQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, WrapError(KindInternal, "scan queue entry", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PgStore) TouchFinalizationEntry(ctx context.Context, market string) error {
	_, err := s.pool.Exec(ctx, `UPDATE finalization_queue SET last_checked_at=now() WHERE market=$1`, NormalizeAddress(market))
	if err != nil {
		return WrapError(KindInternal, "touch finalization entry", err)
	}
	return nil
}

func (s *PgStore) MarkFinalizationAttempted(ctx context.Context, market, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE finalization_queue
		SET attempted_at = now(), last_checked_at = now(), last_error = $2, attempts = attempts + 1
		WHERE market = $1 AND completed_at IS NULL
	`, NormalizeAddress(market), errMsg)
	if err != nil {
		return WrapError(KindInternal, "mark finalization attempted", err)
	}
	return nil
}

func (s *PgStore) MarkFinalizationCompleted(ctx context.Context, market string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE finalization_queue
		SET completed_at = now(), last_checked_at = now(), threshold_met = true, last_error = ''
		WHERE market = $1 AND completed_at IS NULL
	`, NormalizeAddress(market))
	if err != nil {
		return WrapError(KindInternal, "mark finalization completed", err)
	}
	return nil
}

func (s *PgStore) LogSyncOperation(ctx context.Context, op, market, status, message string, duration time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_log (id, op, market, status, message, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
	`, uuid.New().String(), op, NormalizeAddress(market), status, message, duration.Milliseconds())
	if err != nil {
		return WrapError(KindInternal, "log sync operation", err)
	}
	return nil
}

func (s *PgStore) ListRecentSyncLogs(ctx context.Context, limit int) ([]SyncLogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, op, market, status, message, duration_ms, created_at FROM sync_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, WrapError(KindInternal, "list sync logs", err)
	}
	defer rows.Close()
	var out []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		if err := rows.Scan(&e.ID, &e.Op, &e.Market, &e.Status, &e.Message, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, WrapError(KindInternal, "scan sync log", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgStore) DeleteOldSyncLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sync_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, WrapError(KindInternal, "delete old sync logs", err)
	}
	return tag.RowsAffected(), nil
}
