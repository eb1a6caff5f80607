package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/observability"
)

// ─── Reads ──────────────────────────────────────────────────────────────────

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Config(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	list := []domain.Event{}
	if s.recorder != nil {
		list = append(list, s.recorder.Events(queryInt(r, "limit", 100))...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	spans := []observability.Span{}
	if s.tracer != nil {
		spans = append(spans, s.tracer.Spans(queryInt(r, "limit", 100))...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"spans": spans})
}

func (s *Server) handleListRegistries(w http.ResponseWriter, r *http.Request) {
	regs, err := s.engine.ListRegistries(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if regs == nil {
		regs = []*domain.Registry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"registries": regs})
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := s.engine.GetRegistry(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.GetAccount(r.Context(), chi.URLParam(r, "voter"), chi.URLParam(r, "code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleListBallots(w http.ResponseWriter, r *http.Request) {
	status := domain.BallotStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	list, err := s.engine.ListBallots(r.Context(), status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if list == nil {
		list = []*domain.Ballot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ballots": list})
}

func (s *Server) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.GetBallot(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Results(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListReceipts(r.Context(), chi.URLParam(r, "voter"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if list == nil {
		list = []*domain.VoteReceipt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": list})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.GetReceipt(r.Context(), chi.URLParam(r, "voter"), chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := s.engine.GetWorker(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wk)
}

// ─── Config ─────────────────────────────────────────────────────────────────

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.LedgerConfig
	if !decode(w, r, &cfg) {
		return
	}
	if err := s.engine.SetConfig(r.Context(), cfg); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ─── Registries ─────────────────────────────────────────────────────────────

type newRegistryRequest struct {
	MaxSupply domain.Asset  `json:"max_supply"`
	Access    domain.Access `json:"access"`
}

func (s *Server) handleNewRegistry(w http.ResponseWriter, r *http.Request) {
	var req newRegistryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Access == "" {
		req.Access = domain.AccessPublic
	}
	reg, err := s.engine.NewRegistry(r.Context(), callerFrom(r.Context()), req.MaxSupply, req.Access)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

type settingRequest struct {
	Setting string `json:"setting"`
}

func (s *Server) handleToggleRegistry(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.ToggleRegistry(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code"), req.Setting))
}

func (s *Server) handleMutateMax(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxSupply domain.Asset `json:"max_supply"`
	}
	if !decode(w, r, &req) || !matchCode(w, r, req.MaxSupply) {
		return
	}
	s.respond(w, s.engine.MutateMax(r.Context(), callerFrom(r.Context()), req.MaxSupply))
}

func (s *Server) handleLockRegistry(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.LockRegistry(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code")))
}

func (s *Server) handleUnlockRegistry(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.UnlockRegistry(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code")))
}

func (s *Server) handleSetUnlocker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account    string `json:"unlock_acct"`
		Permission string `json:"unlock_auth"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.SetUnlocker(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code"), req.Account, req.Permission))
}

type quantityRequest struct {
	To       string       `json:"to,omitempty"`
	Voter    string       `json:"voter,omitempty"`
	Quantity domain.Asset `json:"quantity"`
}

// quantity decodes a quantityRequest whose asset must belong to the path registry.
func quantity(w http.ResponseWriter, r *http.Request) (quantityRequest, bool) {
	var req quantityRequest
	if !decode(w, r, &req) || !matchCode(w, r, req.Quantity) {
		return req, false
	}
	return req, true
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Mint(r.Context(), callerFrom(r.Context()), req.To, req.Quantity))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Transfer(r.Context(), callerFrom(r.Context()), req.To, req.Quantity))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Burn(r.Context(), callerFrom(r.Context()), req.Quantity))
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Reclaim(r.Context(), callerFrom(r.Context()), req.Voter, req.Quantity))
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Stake(r.Context(), callerFrom(r.Context()), req.Quantity))
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.Unstake(r.Context(), callerFrom(r.Context()), req.Quantity))
}

func (s *Server) handleFundReserve(w http.ResponseWriter, r *http.Request) {
	req, ok := quantity(w, r)
	if !ok {
		return
	}
	s.respond(w, s.engine.FundReserve(r.Context(), req.Quantity))
}

// handleRegisterVoter registers body.voter, or the caller when it is empty.
func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Voter string `json:"voter"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller := callerFrom(r.Context())
	if req.Voter == "" {
		req.Voter = caller
	}
	s.respond(w, s.engine.RegisterVoter(r.Context(), caller, req.Voter, chi.URLParam(r, "code")))
}

func (s *Server) handleUnregisterVoter(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.UnregisterVoter(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code")))
}

// ─── Ballots ────────────────────────────────────────────────────────────────

type newBallotRequest struct {
	Name     string              `json:"ballot_name"`
	Category domain.Category     `json:"category"`
	Registry string              `json:"registry"`
	Method   domain.VotingMethod `json:"voting_method"`
	Options  []string            `json:"options"`
}

func (s *Server) handleNewBallot(w http.ResponseWriter, r *http.Request) {
	var req newBallotRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := s.engine.NewBallot(r.Context(), req.Name, req.Category, callerFrom(r.Context()), req.Registry, req.Method, req.Options)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleEditDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Info        string `json:"ballot_info"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.EditDetails(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.Title, req.Description, req.Info))
}

func (s *Server) handleToggleBallot(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.ToggleBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.Setting))
}

func (s *Server) handleEditMaxOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxOptions int `json:"max_options"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.EditMaxOptions(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.MaxOptions))
}

func (s *Server) handleAddOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option string `json:"option"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.AddOption(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.Option))
}

func (s *Server) handleRemoveOption(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.RemoveOption(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), chi.URLParam(r, "option")))
}

func (s *Server) handleReadyBallot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EndTime time.Time `json:"end_time"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "end_time is required")
		return
	}
	s.respond(w, s.engine.ReadyBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.EndTime))
}

func (s *Server) handleCancelBallot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.CancelBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name")))
}

func (s *Server) handleCloseBallot(w http.ResponseWriter, r *http.Request) {
	req := struct {
		PostResults bool `json:"post_results"`
	}{PostResults: true}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.CloseBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.PostResults))
}

func (s *Server) handleArchiveBallot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Until time.Time `json:"archived_until"`
	}
	if !decode(w, r, &req) {
		return
	}
	fee, err := s.engine.ArchiveBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.Until)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fee": fee})
}

func (s *Server) handleUnarchiveBallot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.UnarchiveBallot(r.Context(), chi.URLParam(r, "name")))
}

func (s *Server) handleDeleteBallot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.DeleteBallot(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name")))
}

// ─── Votes ──────────────────────────────────────────────────────────────────

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selections []domain.Selection `json:"selections"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := s.engine.CastVote(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name"), req.Selections)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUnvote(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.Unvote(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "name")))
}

// ─── Workers ────────────────────────────────────────────────────────────────

type countRequest struct {
	Voter string `json:"voter,omitempty"`
	Count int    `json:"count,omitempty"` // 0 or absent: all, up to the engine batch cap
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.engine.Rebalance(r.Context(), callerFrom(r.Context()), req.Voter, chi.URLParam(r, "code"), req.Count)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rebalanced": n})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := s.engine.Cleanup(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "voter"), req.Count)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleaned": n})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	paid, err := s.engine.ClaimPayment(r.Context(), callerFrom(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"paid": paid})
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := s.engine.RegisterWorker(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wk)
}

func (s *Server) handleUnregisterWorker(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	s.respond(w, s.engine.UnregisterWorker(r.Context(), callerFrom(r.Context()), force))
}

func (s *Server) handleSuspendWorker(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.SuspendWorker(r.Context(), chi.URLParam(r, "name")))
}

func (s *Server) handleReinstateWorker(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.ReinstateWorker(r.Context(), chi.URLParam(r, "name")))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// respond writes {"ok":true} or the mapped engine error.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// matchCode rejects an asset whose symbol is not the {code} path parameter.
func matchCode(w http.ResponseWriter, r *http.Request, a domain.Asset) bool {
	code := chi.URLParam(r, "code")
	if a.Symbol.Code != code {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("asset %s does not belong to registry %s", a, code))
		return false
	}
	return true
}
