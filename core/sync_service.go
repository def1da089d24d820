package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SyncService pulls chain state into the Store, per spec.md §4.4. Every
// operation is isolated: one market's failure is logged to sync_log and
// does not abort the batch, matching the teacher's replication.go pattern
// of recording a per-item outcome rather than letting one bad record sink
// a whole pass.
type SyncService struct {
	store   Store
	chain   *ChainGateway
	factory string
	log     *zap.SugaredLogger
}

// NewSyncService wires a SyncService against factory, the address of the
// market-factory contract to enumerate for discovery.
func NewSyncService(store Store, chain *ChainGateway, factory string, log *zap.SugaredLogger) *SyncService {
	return &SyncService{store: store, chain: chain, factory: NormalizeAddress(factory), log: log}
}

// SyncMarket pulls the current on-chain market, proposal, and participant
// set for a single market and reconciles them into the Store. On failure it
// logs the error via sync_log and also returns it, so a batch sweep can
// count it and move on to the next market.
func (s *SyncService) SyncMarket(ctx context.Context, market string) error {
	market = NormalizeAddress(market)
	start := time.Now()

	info, err := s.chain.GetMarketInfo(ctx, market)
	if err != nil {
		s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
		return err
	}

	existing, getErr := s.store.GetMarket(ctx, market)
	wasProposed := getErr == nil && existing.Status == StatusProposed

	if err := s.store.UpsertMarket(ctx, *info); err != nil {
		s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
		return err
	}

	participants, err := s.chain.GetParticipants(ctx, market)
	if err != nil {
		s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
		return err
	}
	for _, p := range participants {
		if err := s.store.UpsertParticipant(ctx, p.Market, p.User, p.Stake, p.Outcome, p.HasAttested); err != nil {
			s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
			return err
		}
	}

	if info.Status == StatusDisputed && wasProposed {
		if err := s.store.MarkProposalDisputed(ctx, market); err != nil {
			s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
			return err
		}
	}

	if info.Status == StatusProposed {
		proposal, err := s.chain.GetProposal(ctx, market)
		if err != nil {
			s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
			return err
		}
		if proposal != nil {
			if _, existingErr := s.store.GetActiveProposal(ctx, market); existingErr != nil {
				if _, err := s.store.CreateProposal(ctx, *proposal); err != nil {
					if asErr, ok := AsError(err); !ok || asErr.Kind != KindConflict {
						s.logResult(ctx, "sync_market", market, "error", err.Error(), time.Since(start))
						return err
					}
				}
			}
		}
	}

	s.logResult(ctx, "sync_market", market, "ok", "", time.Since(start))
	return nil
}

// SyncAll syncs every market currently known to the Store, isolating
// per-market failures so one unreachable market does not block the rest.
func (s *SyncService) SyncAll(ctx context.Context) (synced, failed int) {
	addresses, err := s.store.ListAllMarketAddresses(ctx)
	if err != nil {
		s.log.Errorw("list markets for sync failed", "error", err)
		return 0, 0
	}
	for _, addr := range addresses {
		if err := s.SyncMarket(ctx, addr); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed
}

// StaleMarkets returns markets whose last_sync_at predates olderThan and
// re-syncs each, for the scheduler's stale-market sweep.
func (s *SyncService) StaleMarkets(ctx context.Context, olderThan time.Time) (synced, failed int) {
	addresses, err := s.store.ListStaleMarkets(ctx, olderThan)
	if err != nil {
		s.log.Errorw("list stale markets failed", "error", err)
		return 0, 0
	}
	for _, addr := range addresses {
		if err := s.SyncMarket(ctx, addr); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed
}

// DiscoverNewMarkets enumerates every market the factory has deployed and
// syncs any the Store has never recorded.
func (s *SyncService) DiscoverNewMarkets(ctx context.Context) (discovered int, err error) {
	onChain, err := s.chain.GetAllMarkets(ctx, s.factory)
	if err != nil {
		return 0, err
	}
	known, err := s.store.ListAllMarketAddresses(ctx)
	if err != nil {
		return 0, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	start := time.Now()
	for _, addr := range onChain {
		if knownSet[addr] {
			continue
		}
		if err := s.SyncMarket(ctx, addr); err != nil {
			continue
		}
		discovered++
	}
	s.logResult(ctx, "discover_markets", "", "ok", "", time.Since(start))
	return discovered, nil
}

func (s *SyncService) logResult(ctx context.Context, op, market, status, message string, d time.Duration) {
	if err := s.store.LogSyncOperation(ctx, op, market, status, message, d); err != nil {
		s.log.Errorw("failed to write sync log entry", "op", op, "market", market, "error", err)
	}
}
