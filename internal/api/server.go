// Package api exposes the reconciliation core over a small JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"talentlink-dao/internal/domain"
	"talentlink-dao/internal/gate"
	"talentlink-dao/internal/idhash"
	"talentlink-dao/internal/observability"
	"talentlink-dao/internal/reconcile"
	"talentlink-dao/internal/storage"
)

// Reconciler runs the claim, vote and mint flows. Satisfied by
// *reconcile.Engine.
type Reconciler interface {
	Claim(ctx context.Context) (*reconcile.ClaimResult, error)
	Vote(ctx context.Context, creatorID string, amount uint64) (*reconcile.VoteResult, error)
	MintProfile(ctx context.Context, creatorID, tokenURI string) (*reconcile.MintResult, error)
}

// AccountReader serves cached account views. Satisfied by *chain.Reader.
type AccountReader interface {
	Track(ctx context.Context, addr common.Address)
	Snapshot(address string) (domain.AccountSnapshot, bool)
}

// Enricher produces advisory profile enrichment. Satisfied by *enrich.Client.
type Enricher interface {
	SuggestTags(ctx context.Context, bio, category string) []string
	RankOpportunities(ctx context.Context, creator *domain.Creator, opportunities []*domain.Opportunity) []*domain.Opportunity
}

// Server wires the core into HTTP handlers.
type Server struct {
	reconciler    Reconciler
	accounts      AccountReader
	creators      storage.CreatorStore
	votes         storage.VoteStore
	opportunities storage.OpportunityStore
	enricher      Enricher // nil disables enrichment endpoints' extras
	logger        *zap.Logger
}

// NewServer creates a Server.
func NewServer(
	reconciler Reconciler,
	accounts AccountReader,
	creators storage.CreatorStore,
	votes storage.VoteStore,
	opportunities storage.OpportunityStore,
	enricher Enricher,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		reconciler:    reconciler,
		accounts:      accounts,
		creators:      creators,
		votes:         votes,
		opportunities: opportunities,
		enricher:      enricher,
		logger:        logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/accounts/{address}", s.handleAccount)
		r.Post("/claim", s.handleClaim)
		r.Post("/votes", s.handleVote)

		r.Get("/creators", s.handleListCreators)
		r.Post("/creators", s.handleCreateCreator)
		r.Get("/creators/{id}", s.handleGetCreator)
		r.Get("/creators/{id}/votes", s.handleCreatorVotes)
		r.Post("/creators/{id}/mint", s.handleMintProfile)

		r.Get("/opportunities", s.handleListOpportunities)
		r.Get("/opportunities/{id}/access", s.handleAccessCheck)
	})

	return r
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type accountView struct {
	Address           string `json:"address"`
	Balance           uint64 `json:"balance"`
	LastClaimAt       int64  `json:"last_claim_at"`
	CanClaim          bool   `json:"can_claim"`
	CooldownRemaining int64  `json:"cooldown_remaining"`
	ObservedAt        int64  `json:"observed_at"`
	Stale             bool   `json:"stale"`
}

func toAccountView(s domain.AccountSnapshot) accountView {
	return accountView{
		Address:           s.Address,
		Balance:           s.Balance,
		LastClaimAt:       s.LastClaimAt,
		CanClaim:          s.CanClaim,
		CooldownRemaining: s.CooldownRemaining,
		ObservedAt:        s.ObservedAt,
		Stale:             s.Stale,
	}
}

type creatorView struct {
	ID            string   `json:"id"`
	WalletAddress string   `json:"wallet_address"`
	Name          string   `json:"name"`
	Bio           string   `json:"bio"`
	Category      string   `json:"category"`
	Skills        []string `json:"skills"`
	AITags        []string `json:"ai_tags"`
	NFTTokenID    *int64   `json:"nft_token_id"`
	NFTMinted     bool     `json:"nft_minted"`
	TotalVotes    uint64   `json:"total_votes"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

func toCreatorView(c *domain.Creator) creatorView {
	return creatorView{
		ID:            c.ID,
		WalletAddress: c.WalletAddress,
		Name:          c.Name,
		Bio:           c.Bio,
		Category:      c.Category,
		Skills:        c.Skills,
		AITags:        c.AITags,
		NFTTokenID:    c.NFTTokenID,
		NFTMinted:     c.NFTMinted,
		TotalVotes:    c.TotalVotes,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toCreatorViews(creators []*domain.Creator) []creatorView {
	views := make([]creatorView, len(creators))
	for i, c := range creators {
		views[i] = toCreatorView(c)
	}
	return views
}

type voteView struct {
	ID              string `json:"id"`
	CreatorID       string `json:"creator_id"`
	CuratorAddress  string `json:"curator_address"`
	Amount          uint64 `json:"amount"`
	TransactionHash string `json:"transaction_hash"`
	CreatedAt       int64  `json:"created_at"`
}

type opportunityView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Company        string   `json:"company"`
	Category       string   `json:"category"`
	RequiredTokens uint64   `json:"required_tokens"`
	Tags           []string `json:"tags"`
	ApplicationURL string   `json:"application_url"`
	CreatedAt      int64    `json:"created_at"`
}

func toOpportunityViews(list []*domain.Opportunity) []opportunityView {
	views := make([]opportunityView, len(list))
	for i, o := range list {
		views[i] = opportunityView{
			ID:             o.ID,
			Title:          o.Title,
			Description:    o.Description,
			Company:        o.Company,
			Category:       o.Category,
			RequiredTokens: o.RequiredTokens,
			Tags:           o.Tags,
			ApplicationURL: o.ApplicationURL,
			CreatedAt:      o.CreatedAt,
		}
	}
	return views
}

type claimView struct {
	TransactionHash string `json:"transaction_hash"`
	Amount          uint64 `json:"amount"`
}

type voteResultView struct {
	VoteID          string `json:"vote_id"`
	CreatorID       string `json:"creator_id"`
	Amount          uint64 `json:"amount"`
	NewTotal        uint64 `json:"new_total"`
	TransactionHash string `json:"transaction_hash"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

// writeFlowError maps the failure taxonomy onto HTTP statuses.
func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	var flowErr *reconcile.FlowError
	if !errors.As(err, &flowErr) {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusBadGateway
	switch flowErr.Reason {
	case domain.FailValidation:
		status = http.StatusBadRequest
	case domain.FailSignerRejected:
		status = http.StatusConflict
	case domain.FailInsufficient:
		status = http.StatusPaymentRequired
	case domain.FailReconciliation:
		// Chain state committed, local ledger behind. Not a client error.
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, errorResponse{Error: flowErr.Err.Error(), Reason: string(flowErr.Reason)})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address"})
		return
	}

	s.accounts.Track(r.Context(), common.HexToAddress(address))
	snap, ok := s.accounts.Snapshot(address)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not tracked"})
		return
	}
	s.writeJSON(w, http.StatusOK, toAccountView(snap))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	result, err := s.reconciler.Claim(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, claimView{
		TransactionHash: result.TransactionHash,
		Amount:          result.Amount,
	})
}

type voteRequest struct {
	CreatorID string `json:"creator_id"`
	Amount    uint64 `json:"amount"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := s.reconciler.Vote(r.Context(), req.CreatorID, req.Amount)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, voteResultView{
		VoteID:          result.VoteID,
		CreatorID:       result.CreatorID,
		Amount:          result.Amount,
		NewTotal:        result.NewTotal,
		TransactionHash: result.TransactionHash,
	})
}

type mintRequest struct {
	TokenURI string `json:"token_uri"`
}

type mintView struct {
	CreatorID       string `json:"creator_id"`
	TokenID         int64  `json:"token_id,omitempty"`
	TransactionHash string `json:"transaction_hash"`
}

func (s *Server) handleMintProfile(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.TokenURI == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token_uri is required"})
		return
	}

	result, err := s.reconciler.MintProfile(r.Context(), chi.URLParam(r, "id"), req.TokenURI)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mintView{
		CreatorID:       result.CreatorID,
		TokenID:         result.TokenID,
		TransactionHash: result.TransactionHash,
	})
}

func (s *Server) handleListCreators(w http.ResponseWriter, r *http.Request) {
	list, err := s.creators.List(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list creators failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, toCreatorViews(list))
}

type createCreatorRequest struct {
	WalletAddress string   `json:"wallet_address"`
	Name          string   `json:"name"`
	Bio           string   `json:"bio"`
	Category      string   `json:"category"`
	Skills        []string `json:"skills"`
}

func (s *Server) handleCreateCreator(w http.ResponseWriter, r *http.Request) {
	var req createCreatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if !common.IsHexAddress(req.WalletAddress) || req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "wallet_address and name are required"})
		return
	}

	wallet := domain.NormalizeAddress(req.WalletAddress)
	now := time.Now().Unix()
	creator := &domain.Creator{
		ID:            idhash.ComputeCreatorID(wallet),
		WalletAddress: wallet,
		Name:          req.Name,
		Bio:           req.Bio,
		Category:      req.Category,
		Skills:        req.Skills,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.creators.Insert(r.Context(), creator); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: "profile already exists for wallet"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "create creator failed"})
		return
	}

	// Advisory tags; profile creation never waits on or fails with enrichment.
	if s.enricher != nil {
		if tags := s.enricher.SuggestTags(r.Context(), creator.Bio, creator.Category); len(tags) > 0 {
			if err := s.creators.SetAITags(r.Context(), creator.ID, tags); err == nil {
				creator.AITags = tags
			}
		}
	}

	s.writeJSON(w, http.StatusCreated, toCreatorView(creator))
}

func (s *Server) handleGetCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := s.creators.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "creator not found"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "get creator failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, toCreatorView(creator))
}

func (s *Server) handleCreatorVotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.creators.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "creator not found"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "get creator failed"})
		return
	}

	list, err := s.votes.ListByCreator(r.Context(), id)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list votes failed"})
		return
	}

	views := make([]voteView, len(list))
	for i, v := range list {
		views[i] = voteView{
			ID:              v.ID,
			CreatorID:       v.CreatorID,
			CuratorAddress:  v.CuratorAddress,
			Amount:          v.Amount,
			TransactionHash: v.TransactionHash,
			CreatedAt:       v.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	list, err := s.opportunities.List(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "list opportunities failed"})
		return
	}

	// Optional relevance ranking for a creator; unranked list on any failure.
	if creatorID := r.URL.Query().Get("creator_id"); creatorID != "" && s.enricher != nil {
		if creator, err := s.creators.GetByID(r.Context(), creatorID); err == nil {
			if ranked := s.enricher.RankOpportunities(r.Context(), creator, list); ranked != nil {
				list = ranked
			}
		}
	}

	s.writeJSON(w, http.StatusOK, toOpportunityViews(list))
}

type accessResponse struct {
	Allowed   bool   `json:"allowed"`
	Votes     uint64 `json:"votes"`
	Required  uint64 `json:"required"`
	Shortfall uint64 `json:"shortfall"`
}

// handleAccessCheck gates an opportunity on the wallet's creator profile and
// its accumulated vote total. The total is read fresh on every check so a
// just-reconciled vote changes gating with no separate invalidation; a
// wallet with no profile has zero votes.
func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if !common.IsHexAddress(address) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "address query parameter required"})
		return
	}

	opportunity, err := s.opportunities.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "opportunity not found"})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "get opportunity failed"})
		return
	}

	var votes uint64
	creator, err := s.creators.GetByWallet(r.Context(), domain.NormalizeAddress(address))
	switch {
	case err == nil:
		votes = creator.TotalVotes
	case errors.Is(err, storage.ErrNotFound):
		// No profile, zero reputation
	default:
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "get creator failed"})
		return
	}

	d := gate.CheckOpportunity(votes, opportunity)
	s.writeJSON(w, http.StatusOK, accessResponse{
		Allowed:   d.Allowed,
		Votes:     d.Votes,
		Required:  d.Required,
		Shortfall: d.Shortfall,
	})
}
