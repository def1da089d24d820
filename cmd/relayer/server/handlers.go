package server

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sidebet/relayer/core"
)

type marketDTO struct {
	Address          string               `json:"address"`
	Topic            string               `json:"topic"`
	ThresholdPercent int                  `json:"thresholdPercent"`
	StakingToken     string               `json:"stakingToken"`
	ParticipantCount int                  `json:"participantCount"`
	TotalStaked      string               `json:"totalStaked"`
	Status           string               `json:"status"`
	CreatedAt        time.Time            `json:"createdAt"`
	ProposedAt       *time.Time           `json:"proposedAt,omitempty"`
	ResolvedAt       *time.Time           `json:"resolvedAt,omitempty"`
	LastSyncAt       time.Time            `json:"lastSyncAt"`
	CancelReason     *string              `json:"cancelReason,omitempty"`
	ActiveProposal   *proposalDTO         `json:"activeProposal,omitempty"`
	AttestationCounts map[string]int      `json:"attestationCounts,omitempty"`
}

type proposalDTO struct {
	ID               string    `json:"id"`
	Market           string    `json:"market"`
	Proposer         string    `json:"proposer"`
	Outcome          int       `json:"outcome"`
	DisputeUntil     time.Time `json:"disputeUntil"`
	EvidenceHash     string    `json:"evidenceHash"`
	AttestationCount int       `json:"attestationCount"`
	IsDisputed       bool      `json:"isDisputed"`
	CreatedAt        time.Time `json:"createdAt"`
}

type attestationDTO struct {
	ID          string    `json:"id"`
	Market      string    `json:"market"`
	ProposalID  string    `json:"proposalId"`
	Signer      string    `json:"signer"`
	Outcome     int       `json:"outcome"`
	Nonce       string    `json:"nonce"`
	Signature   string    `json:"signature"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type participantDTO struct {
	Market      string `json:"market"`
	User        string `json:"user"`
	Stake       string `json:"stake"`
	Outcome     int    `json:"outcome"`
	HasAttested bool   `json:"hasAttested"`
}

type queueEntryDTO struct {
	Market          string     `json:"market"`
	SignatureCount  int        `json:"signatureCount"`
	EligibleCount   int        `json:"eligibleCount"`
	ProposalOutcome int        `json:"proposalOutcome"`
	LastCheckedAt   time.Time  `json:"lastCheckedAt"`
	AttemptedAt     *time.Time `json:"attemptedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ThresholdMet    bool       `json:"thresholdMet"`
	LastError       string     `json:"lastError,omitempty"`
	Attempts        int        `json:"attempts"`
}

func toMarketDTO(m *core.Market) marketDTO {
	dto := marketDTO{
		Address: m.Address, Topic: m.Topic, ThresholdPercent: m.ThresholdPercent,
		StakingToken: m.StakingToken, ParticipantCount: m.ParticipantCount,
		Status: m.Status.String(), CreatedAt: m.CreatedAt,
		ProposedAt: m.ProposedAt, ResolvedAt: m.ResolvedAt, LastSyncAt: m.LastSyncAt,
		CancelReason: m.CancelReason,
	}
	if m.TotalStaked != nil {
		dto.TotalStaked = m.TotalStaked.String()
	} else {
		dto.TotalStaked = "0"
	}
	return dto
}

func toProposalDTO(p *core.Proposal) proposalDTO {
	return proposalDTO{
		ID: p.ID, Market: p.Market, Proposer: p.Proposer, Outcome: p.Outcome,
		DisputeUntil: p.DisputeUntil, EvidenceHash: p.EvidenceHash,
		AttestationCount: p.AttestationCount, IsDisputed: p.IsDisputed, CreatedAt: p.CreatedAt,
	}
}

func toAttestationDTO(a core.Attestation) attestationDTO {
	nonce := "0"
	if a.Nonce != nil {
		nonce = a.Nonce.String()
	}
	return attestationDTO{
		ID: a.ID, Market: a.Market, ProposalID: a.ProposalID, Signer: a.Signer,
		Outcome: a.Outcome, Nonce: nonce, Signature: a.Signature, SubmittedAt: a.SubmittedAt,
	}
}

func toParticipantDTO(p core.Participant) participantDTO {
	stake := "0"
	if p.Stake != nil {
		stake = p.Stake.String()
	}
	return participantDTO{Market: p.Market, User: p.User, Stake: stake, Outcome: p.Outcome, HasAttested: p.HasAttested}
}

func toQueueEntryDTO(e core.FinalizationQueueEntry) queueEntryDTO {
	return queueEntryDTO{
		Market: e.Market, SignatureCount: e.SignatureCount, EligibleCount: e.EligibleCount,
		ProposalOutcome: e.ProposalOutcome, LastCheckedAt: e.LastCheckedAt,
		AttemptedAt: e.AttemptedAt, CompletedAt: e.CompletedAt, ThresholdMet: e.ThresholdMet,
		LastError: e.LastError, Attempts: e.Attempts,
	}
}

// handleHealth is intentionally unguarded and unauthenticated, per spec.md §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	participants, _ := s.store.CountParticipants(ctx)
	attestations, _ := s.store.CountAttestations(ctx)
	statuses, _ := s.store.CountMarketsByStatus(ctx)
	queue, _ := s.store.ListFinalizationQueue(ctx, true, 1000)

	chainErr := s.chain.Ping(ctx)
	connectivity := "ok"
	if chainErr != nil {
		connectivity = "unreachable"
	}

	statusCounts := map[string]int{}
	for status, count := range statuses {
		statusCounts[status.String()] = count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"timestamp":          time.Now().UTC(),
		"uptime":             time.Since(s.startedAt).String(),
		"chainConnectivity":  connectivity,
		"relayerAddress":     s.chain.RelayerAddress(),
		"chainId":            s.chain.ChainID().String(),
		"participantCount":   participants,
		"attestationCount":   attestations,
		"marketsByStatus":    statusCounts,
		"pendingFinalization": len(queue),
	})
}

func (s *Server) handleHealthMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statuses, err := s.store.CountMarketsByStatus(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	attestations, _ := s.store.CountAttestations(ctx)
	participants, _ := s.store.CountParticipants(ctx)
	queue, _ := s.store.ListFinalizationQueue(ctx, true, 1000)
	logs, err := s.store.ListRecentSyncLogs(ctx, 10)
	if err != nil {
		writeError(w, err)
		return
	}

	statusCounts := map[string]int{}
	for status, count := range statuses {
		statusCounts[status.String()] = count
	}
	s.mx.RecordMarketStatuses(statuses)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"marketsByStatus":     statusCounts,
		"attestationCount":    attestations,
		"participantCount":    participants,
		"pendingFinalization": len(queue),
		"recentSyncLogs":      logs,
	})
}

func (s *Server) handleHealthQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListFinalizationQueue(r.Context(), true, 50)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]queueEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toQueueEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, offset := 20, 0
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}
	limit, offset, verr := core.ValidatePagination(limit, offset)
	if verr != nil {
		writeError(w, verr)
		return
	}

	var statusFilter *core.MarketStatus
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, core.NewError(core.KindValidation, "status must be an integer"))
			return
		}
		if verr := core.ValidateStatusFilter(n); verr != nil {
			writeError(w, verr)
			return
		}
		st := core.MarketStatus(n)
		statusFilter = &st
	}

	markets, err := s.store.ListMarkets(ctx, statusFilter, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]marketDTO, 0, len(markets))
	for _, m := range markets {
		dto := toMarketDTO(&m)
		if proposal, err := s.store.GetActiveProposal(ctx, m.Address); err == nil {
			p := toProposalDTO(proposal)
			dto.ActiveProposal = &p
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, verr := core.ValidateAddress("address", chi.URLParam(r, "address"))
	if verr != nil {
		writeError(w, verr)
		return
	}

	market, err := s.store.GetMarket(ctx, address)
	if err != nil {
		coreErr, ok := core.AsError(err)
		if !ok || coreErr.Kind != core.KindNotFound {
			writeError(w, err)
			return
		}
		if syncErr := s.sync.SyncMarket(ctx, address); syncErr != nil {
			writeError(w, syncErr)
			return
		}
		market, err = s.store.GetMarket(ctx, address)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	dto := toMarketDTO(market)
	if proposal, err := s.store.GetActiveProposal(ctx, address); err == nil {
		p := toProposalDTO(proposal)
		dto.ActiveProposal = &p
	}
	yes, _ := s.store.CountValidAttestations(ctx, address, 1)
	no, _ := s.store.CountValidAttestations(ctx, address, 0)
	dto.AttestationCounts = map[string]int{"0": no, "1": yes}

	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleSyncMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, verr := core.ValidateAddress("address", chi.URLParam(r, "address"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	if err := s.sync.SyncMarket(ctx, address); err != nil {
		writeError(w, err)
		return
	}
	market, err := s.store.GetMarket(ctx, address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketDTO(market))
}

func (s *Server) handleGetParticipants(w http.ResponseWriter, r *http.Request) {
	address, verr := core.ValidateAddress("address", chi.URLParam(r, "address"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	participants, err := s.store.ListParticipants(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]participantDTO, 0, len(participants))
	for _, p := range participants {
		dtos = append(dtos, toParticipantDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, verr := core.ValidateAddress("address", chi.URLParam(r, "address"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	proposal, err := s.store.GetActiveProposal(ctx, address)
	if err != nil {
		writeError(w, err)
		return
	}
	attestations, err := s.store.GetAttestations(ctx, address, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]attestationDTO, 0, len(attestations))
	for _, a := range attestations {
		dtos = append(dtos, toAttestationDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposal":     toProposalDTO(proposal),
		"attestations": dtos,
	})
}

func (s *Server) handleGetMarketStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address, verr := core.ValidateAddress("address", chi.URLParam(r, "address"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	info, err := s.chain.GetMarketInfo(ctx, address)
	if err != nil {
		writeError(w, err)
		return
	}
	proposal, err := s.chain.GetProposal(ctx, address)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"status": info.Status.String()}
	if proposal != nil {
		resp["proposal"] = toProposalDTO(proposal)
	}
	writeJSON(w, http.StatusOK, resp)
}

type predictAddressRequest struct {
	Topic            string `json:"topic"`
	ThresholdPercent int    `json:"thresholdPercent"`
	Token            string `json:"token"`
	MinStake         string `json:"minStake"`
	Salt             string `json:"salt,omitempty"`
}

func (s *Server) handlePredictAddress(w http.ResponseWriter, r *http.Request) {
	var req predictAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewError(core.KindValidation, "malformed request body"))
		return
	}
	if req.Topic == "" {
		writeError(w, core.NewError(core.KindValidation, "topic is required"))
		return
	}
	if verr := core.ValidateThresholdPercent("thresholdPercent", req.ThresholdPercent); verr != nil {
		writeError(w, verr)
		return
	}
	token, verr := core.ValidateAddress("token", req.Token)
	if verr != nil {
		writeError(w, verr)
		return
	}
	minStake, verr := core.ValidateDecimalBigInt("minStake", req.MinStake)
	if verr != nil {
		writeError(w, verr)
		return
	}

	salt := deriveSalt(req.Salt, req.Topic, token, req.ThresholdPercent, minStake.String())

	address, err := s.chain.PredictMarketAddress(r.Context(), s.cfg.FactoryAddress, salt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

// deriveSalt produces a deterministic CREATE2 salt from the market's
// defining parameters when the caller doesn't supply one explicitly.
func deriveSalt(explicit, topic, token string, thresholdPercent int, minStake string) [32]byte {
	if explicit != "" {
		return sha256.Sum256([]byte(explicit))
	}
	var buf []byte
	buf = append(buf, []byte(topic)...)
	buf = append(buf, []byte(token)...)
	buf = append(buf, []byte(minStake)...)
	thresholdBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(thresholdBytes, uint32(thresholdPercent))
	buf = append(buf, thresholdBytes...)
	return sha256.Sum256(buf)
}

type submitAttestationRequest struct {
	Market    string `json:"market"`
	Signer    string `json:"signer"`
	Outcome   string `json:"outcome"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

func (s *Server) handleSubmitAttestation(w http.ResponseWriter, r *http.Request) {
	var req submitAttestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewError(core.KindValidation, "malformed request body"))
		return
	}

	market, verr := core.ValidateAddress("market", req.Market)
	if verr != nil {
		writeError(w, verr)
		return
	}
	signer, verr := core.ValidateAddress("signer", req.Signer)
	if verr != nil {
		writeError(w, verr)
		return
	}
	outcome, verr := core.ValidateOutcome("outcome", req.Outcome)
	if verr != nil {
		writeError(w, verr)
		return
	}
	nonce, verr := core.ValidateDecimalBigInt("nonce", req.Nonce)
	if verr != nil {
		writeError(w, verr)
		return
	}
	if verr := core.ValidateSignature("signature", req.Signature); verr != nil {
		writeError(w, verr)
		return
	}

	attestation, err := s.sig.Submit(r.Context(), market, signer, outcome, nonce, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttestationDTO(*attestation))
}

func (s *Server) handleListAttestations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	market, verr := core.ValidateAddress("market", q.Get("market"))
	if verr != nil {
		writeError(w, verr)
		return
	}

	var outcome *int
	if v := q.Get("outcome"); v != "" {
		o, verr := core.ValidateOutcome("outcome", v)
		if verr != nil {
			writeError(w, verr)
			return
		}
		outcome = &o
	}

	attestations, err := s.store.GetAttestations(r.Context(), market, outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]attestationDTO, 0, len(attestations))
	for _, a := range attestations {
		dtos = append(dtos, toAttestationDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleListAttestationsByMarket(w http.ResponseWriter, r *http.Request) {
	market, verr := core.ValidateAddress("market", chi.URLParam(r, "market"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	attestations, err := s.store.GetAttestations(r.Context(), market, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]attestationDTO, 0, len(attestations))
	for _, a := range attestations {
		dtos = append(dtos, toAttestationDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) handleAttestationCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	market, verr := core.ValidateAddress("market", chi.URLParam(r, "market"))
	if verr != nil {
		writeError(w, verr)
		return
	}

	m, err := s.store.GetMarket(ctx, market)
	if err != nil {
		writeError(w, err)
		return
	}

	counts := map[string]interface{}{}
	for _, outcome := range []int{0, 1} {
		count, err := s.store.CountValidAttestations(ctx, market, outcome)
		if err != nil {
			writeError(w, err)
			return
		}
		eligible, err := s.store.CountEligibleParticipants(ctx, market, outcome)
		if err != nil {
			writeError(w, err)
			return
		}
		required := core.RequiredSignatures(eligible, m.ThresholdPercent)
		if required < s.cfg.MinGlobalThreshold {
			required = s.cfg.MinGlobalThreshold
		}
		counts[strconv.Itoa(outcome)] = map[string]int{
			"count": count, "eligible": eligible, "required": required,
		}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleDeleteAttestations(w http.ResponseWriter, r *http.Request) {
	market, verr := core.ValidateAddress("market", chi.URLParam(r, "market"))
	if verr != nil {
		writeError(w, verr)
		return
	}
	if err := s.store.DeleteAttestations(r.Context(), market); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}
