// Package session provides the HTTP handlers and business logic for
// running timed market-making practice sessions: creating them against
// a catalog scenario, submitting quotes, querying PnL, and producing
// the end-of-session report.
//
// All monetary values use shopspring/decimal — never float64 for money.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotedrill/sim-engine/internal/catalog"
	"github.com/quotedrill/sim-engine/internal/engine"
	"github.com/quotedrill/sim-engine/internal/metrics"
	"github.com/quotedrill/sim-engine/internal/model"
	"github.com/quotedrill/sim-engine/internal/odds"
)

// Service handles session operations. Sessions live in a
// capacity-capped registry; a per-session mutex serializes engine
// access, and all state is local to one server instance.
type Service struct {
	catalog   catalog.Catalog
	registry  *Registry
	hub       *FeedHub // optional WebSocket hub for fill broadcasts
	houseEdge decimal.Decimal
	defaults  model.Settings
}

// NewService creates a new session service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(cat catalog.Catalog, reg *Registry, hub *FeedHub, houseEdge decimal.Decimal) *Service {
	return &Service{
		catalog:   cat,
		registry:  reg,
		hub:       hub,
		houseEdge: houseEdge,
		defaults:  DefaultSettings(),
	}
}

// DefaultSettings returns the session configuration used when a create
// request omits overrides: a five-minute drill with a predefined
// spread of 10 and an inventory limit of 10.
func DefaultSettings() model.Settings {
	return model.Settings{
		DurationSec:    300,
		SpreadMode:     model.SpreadPredefined,
		SpreadValue:    decimal.NewFromInt(10),
		InventoryLimit: 10,
		RiskAversion:   decimal.NewFromInt(1),
		InvSkew:        decimal.NewFromFloat(0.5),
		SpreadWiden:    decimal.NewFromFloat(0.5),
	}
}

// --- Request/Response types ---

// StartSessionRequest is the JSON body for session creation. An empty
// scenario_id picks a random catalog entry; omitted settings fall back
// to the service defaults.
type StartSessionRequest struct {
	ScenarioID string         `json:"scenario_id"`
	Settings   *SettingsPatch `json:"settings"`
}

// SettingsPatch carries optional settings overrides.
type SettingsPatch struct {
	DurationSec    *int             `json:"duration_sec"`
	SpreadMode     *string          `json:"spread_mode"`
	SpreadValue    *decimal.Decimal `json:"spread_value"`
	InventoryLimit *int64           `json:"inventory_limit"`
	RiskAversion   *decimal.Decimal `json:"risk_aversion"`
	InvSkew        *decimal.Decimal `json:"inv_skew"`
	SpreadWiden    *decimal.Decimal `json:"spread_widen"`
	Seed           *int64           `json:"seed"`
}

func (p *SettingsPatch) apply(s model.Settings) model.Settings {
	if p == nil {
		return s
	}
	if p.DurationSec != nil {
		s.DurationSec = *p.DurationSec
	}
	if p.SpreadMode != nil {
		s.SpreadMode = *p.SpreadMode
	}
	if p.SpreadValue != nil {
		s.SpreadValue = *p.SpreadValue
	}
	if p.InventoryLimit != nil {
		s.InventoryLimit = *p.InventoryLimit
	}
	if p.RiskAversion != nil {
		s.RiskAversion = *p.RiskAversion
	}
	if p.InvSkew != nil {
		s.InvSkew = *p.InvSkew
	}
	if p.SpreadWiden != nil {
		s.SpreadWiden = *p.SpreadWiden
	}
	if p.Seed != nil {
		s.Seed = *p.Seed
	}
	return s
}

// ScenarioView is a scenario as shown to the player: the settlement
// value stays hidden until the end-of-session report.
type ScenarioView struct {
	ID     string           `json:"id"`
	Prompt string           `json:"prompt"`
	Unit   string           `json:"unit"`
	Min    *decimal.Decimal `json:"min,omitempty"`
	Max    *decimal.Decimal `json:"max,omitempty"`
	Hint   string           `json:"hint,omitempty"`
	Tags   []string         `json:"tags,omitempty"`
}

func scenarioView(scn model.Scenario) ScenarioView {
	return ScenarioView{
		ID:     scn.ID,
		Prompt: scn.Prompt,
		Unit:   scn.Unit,
		Min:    scn.Min,
		Max:    scn.Max,
		Hint:   scn.Hint,
		Tags:   scn.Tags,
	}
}

// SessionResponse is the session view returned from create/get.
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	Scenario  ScenarioView    `json:"scenario"`
	Settings  model.Settings  `json:"settings"`
	StartedAt time.Time       `json:"started_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Ended     bool            `json:"ended"`
	Cash      decimal.Decimal `json:"cash"`
	Inventory int64           `json:"inventory"`
	FillCount int             `json:"fill_count"`
}

// QuoteRequest is the JSON body for POST quote submission. Qty defaults
// to 1.
type QuoteRequest struct {
	Bid decimal.Decimal `json:"bid"`
	Ask decimal.Decimal `json:"ask"`
	Qty int64           `json:"qty"`
}

// FillView is a fill as shown while the session is active: the
// counterparty's sampled fair value stays hidden until the report.
type FillView struct {
	ID    string          `json:"id"`
	Side  string          `json:"side"`
	Price decimal.Decimal `json:"price"`
	Qty   int64           `json:"qty"`
	At    time.Time       `json:"at"`
}

// QuoteResponse reports the outcome of one quote submission.
type QuoteResponse struct {
	Filled    bool            `json:"filled"`
	Fill      *FillView       `json:"fill,omitempty"`
	Cash      decimal.Decimal `json:"cash"`
	Inventory int64           `json:"inventory"`
	FillCount int             `json:"fill_count"`
}

// SuggestResponse is the default-quote helper payload.
type SuggestResponse struct {
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Estimate  decimal.Decimal `json:"estimate"`
	Inventory int64           `json:"inventory"`
}

// Report is the end-of-session summary. Ground truth is revealed here:
// the scenario's settlement value and each fill's sampled fair value.
type Report struct {
	SessionID string           `json:"session_id"`
	Scenario  model.Scenario   `json:"scenario"`
	Settings  model.Settings   `json:"settings"`
	Valuation model.Valuation  `json:"valuation"`
	BreakEven *decimal.Decimal `json:"break_even,omitempty"`
	Fills     []model.Fill     `json:"fills"`
	Score     decimal.Decimal  `json:"score"`
	EndedAt   time.Time        `json:"ended_at"`
}

// OddsRoundRequest is the JSON body for a one-shot odds round. The win
// probability is given either directly or as ratio odds "A:B", not
// both.
type OddsRoundRequest struct {
	WinProb decimal.Decimal `json:"win_prob"`
	Ratio   string          `json:"ratio,omitempty"`
	Stake   decimal.Decimal `json:"stake"`
	Seed    int64           `json:"seed"`
}

// OddsRoundResponse wraps a resolved round with the fair benchmark.
type OddsRoundResponse struct {
	odds.Result
	FairOdds decimal.Decimal `json:"fair_odds"`
}

// --- HTTP Handlers ---

// StartSession handles POST /api/v1/sessions
func (s *Service) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	var scn *model.Scenario
	var err error
	if req.ScenarioID != "" {
		scn, err = s.catalog.GetScenario(ctx, req.ScenarioID)
		if err != nil {
			writeError(w, "scenario not found: "+req.ScenarioID, http.StatusNotFound)
			return
		}
	} else {
		scn, err = s.randomScenario(ctx)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	settings := req.Settings.apply(s.defaults)

	eng, err := engine.New(settings)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		Scenario:  *scn,
		Settings:  settings,
		StartedAt: now,
		ExpiresAt: now.Add(time.Duration(settings.DurationSec) * time.Second),
		engine:    eng,
	}

	if err := s.registry.Add(sess); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	metrics.SessionsStarted.Inc()

	slog.Info("session started",
		"session_id", sess.ID,
		"scenario", scn.ID,
		"duration_sec", settings.DurationSec,
		"inventory_limit", settings.InventoryLimit,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

// SubmitQuote handles POST /api/v1/sessions/{sessionID}/quotes
// Resolves one synthetic counterparty decision against the quote.
func (s *Service) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	qty := req.Qty
	if qty == 0 {
		qty = 1
	}

	start := time.Now()

	sess.mu.Lock()
	if sess.Ended {
		sess.mu.Unlock()
		writeError(w, "session has ended", http.StatusConflict)
		return
	}
	if sess.Expired(time.Now()) {
		sess.mu.Unlock()
		writeError(w, "session has expired", http.StatusConflict)
		return
	}

	fill, err := sess.engine.SubmitQuote(sess.Scenario, model.Quote{Bid: req.Bid, Ask: req.Ask}, qty)
	if err != nil {
		sess.mu.Unlock()
		if errors.Is(err, engine.ErrInvalidQuote) {
			writeError(w, err.Error(), http.StatusBadRequest)
		} else {
			writeError(w, "quote submission failed", http.StatusInternalServerError)
		}
		return
	}
	st := sess.engine.State()
	sess.mu.Unlock()

	metrics.QuotesSubmitted.Inc()
	metrics.QuoteDecisionSeconds.Observe(time.Since(start).Seconds())

	resp := QuoteResponse{
		Filled:    fill != nil,
		Cash:      st.Cash,
		Inventory: st.Inventory,
		FillCount: len(st.Fills),
	}

	if fill != nil {
		resp.Fill = &FillView{
			ID:    fill.ID,
			Side:  fill.Side,
			Price: fill.Price,
			Qty:   fill.Qty,
			At:    fill.At,
		}

		metrics.Fills.WithLabelValues(fill.Side).Inc()
		metrics.FillVolume.WithLabelValues(fill.Side).Add(float64(fill.Qty))

		slog.Info("fill",
			"session_id", sess.ID,
			"side", fill.Side,
			"price", fill.Price.String(),
			"qty", fill.Qty,
			"cash", st.Cash.String(),
			"inventory", st.Inventory,
		)

		if s.hub != nil {
			s.hub.Broadcast(sess.ID, FeedMessage{
				Type:      "fill",
				SessionID: sess.ID,
				Side:      fill.Side,
				Price:     fill.Price.String(),
				Qty:       fill.Qty,
				Cash:      st.Cash.String(),
				Inventory: st.Inventory,
				FillCount: len(st.Fills),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Suggest handles GET /api/v1/sessions/{sessionID}/suggest?estimate=E
// Returns the inventory-aware default quote around the estimate.
func (s *Service) Suggest(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	raw := r.URL.Query().Get("estimate")
	if raw == "" {
		writeError(w, "estimate query parameter is required", http.StatusBadRequest)
		return
	}
	estimate, err := decimal.NewFromString(raw)
	if err != nil || !estimate.IsPositive() {
		writeError(w, "estimate must be a positive number", http.StatusBadRequest)
		return
	}

	sess.mu.Lock()
	q := sess.engine.DefaultQuote(estimate)
	st := sess.engine.State()
	sess.mu.Unlock()

	resp := SuggestResponse{
		Bid:       q.Bid,
		Ask:       q.Ask,
		Estimate:  estimate,
		Inventory: st.Inventory,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetPnL handles GET /api/v1/sessions/{sessionID}/pnl?mark=M
// While the session is active the caller must supply the mark (ground
// truth stays hidden); after end the mark defaults to the settlement
// value.
func (s *Service) GetPnL(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	raw := r.URL.Query().Get("mark")

	sess.mu.Lock()
	var mark decimal.Decimal
	switch {
	case raw != "":
		mark, err = decimal.NewFromString(raw)
		if err != nil || !mark.IsPositive() {
			sess.mu.Unlock()
			writeError(w, "mark must be a positive number", http.StatusBadRequest)
			return
		}
	case sess.Ended:
		mark = sess.Scenario.TrueValue
	default:
		sess.mu.Unlock()
		writeError(w, "mark query parameter is required while the session is active", http.StatusBadRequest)
		return
	}
	v := sess.engine.PnL(mark)
	sess.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// EndSession handles POST /api/v1/sessions/{sessionID}/end
// Finalizes the session and reveals ground truth in the report.
func (s *Service) EndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	sess.mu.Lock()
	if sess.Ended {
		sess.mu.Unlock()
		writeError(w, "session already ended", http.StatusConflict)
		return
	}
	sess.Ended = true
	endedAt := time.Now().UTC()

	scn := sess.Scenario
	settings := sess.Settings
	v := sess.engine.PnL(scn.TrueValue)
	st := sess.engine.State()
	var breakEven *decimal.Decimal
	if be, ok := sess.engine.BreakEven(); ok {
		breakEven = &be
	}
	sess.mu.Unlock()

	report := Report{
		SessionID: sess.ID,
		Scenario:  scn,
		Settings:  settings,
		Valuation: v,
		BreakEven: breakEven,
		Fills:     st.Fills,
		Score:     v.RiskAdjusted.Round(2),
		EndedAt:   endedAt,
	}
	if report.Fills == nil {
		report.Fills = []model.Fill{}
	}

	slog.Info("session ended",
		"session_id", sess.ID,
		"scenario", scn.ID,
		"fills", len(st.Fills),
		"score", report.Score.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(sess.ID, FeedMessage{
			Type:      "session_ended",
			SessionID: sess.ID,
			Cash:      st.Cash.String(),
			Inventory: st.Inventory,
			FillCount: len(st.Fills),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ResetSession handles POST /api/v1/sessions/{sessionID}/reset
// Swaps in a fresh engine and restarts the clock; scenario and
// settings stay.
func (s *Service) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}

	sess.mu.Lock()
	eng, err := engine.New(sess.Settings)
	if err != nil {
		sess.mu.Unlock()
		writeError(w, "session settings no longer valid", http.StatusInternalServerError)
		return
	}
	sess.engine = eng
	sess.Ended = false
	now := time.Now().UTC()
	sess.StartedAt = now
	sess.ExpiresAt = now.Add(time.Duration(sess.Settings.DurationSec) * time.Second)
	sess.mu.Unlock()

	slog.Info("session reset", "session_id", sess.ID)

	if s.hub != nil {
		s.hub.Broadcast(sess.ID, FeedMessage{
			Type:      "session_reset",
			SessionID: sess.ID,
			Cash:      decimal.Zero.String(),
			Inventory: 0,
			FillCount: 0,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sessionResponse(sess))
}

// SessionFeed handles GET /api/v1/sessions/{sessionID}/ws
func (s *Service) SessionFeed(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, "feed not enabled", http.StatusNotFound)
		return
	}
	sess, err := s.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}
	s.hub.Serve(w, r, sess.ID)
}

// ListScenarios handles GET /api/v1/scenarios
// Returns catalog views; settlement values stay hidden.
func (s *Service) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.catalog.ListScenarios(r.Context())
	if err != nil {
		writeError(w, "failed to list scenarios", http.StatusInternalServerError)
		return
	}

	views := make([]ScenarioView, 0, len(scenarios))
	for _, scn := range scenarios {
		views = append(views, scenarioView(scn))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// CreateScenario handles POST /api/v1/scenarios
// Operator upsert of a full scenario record.
func (s *Service) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var scn model.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scn); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if scn.CreatedAt.IsZero() {
		scn.CreatedAt = time.Now().UTC()
	}

	if err := catalog.Validate(&scn); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.catalog.PutScenario(r.Context(), &scn); err != nil {
		writeError(w, "failed to store scenario", http.StatusInternalServerError)
		return
	}

	slog.Info("scenario stored", "id", scn.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(scn)
}

// PlayOddsRound handles POST /api/v1/odds/rounds
// Resolves one warm-up bet at the configured house edge.
func (s *Service) PlayOddsRound(w http.ResponseWriter, r *http.Request) {
	var req OddsRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	winProb := req.WinProb
	if req.Ratio != "" {
		if !req.WinProb.IsZero() {
			writeError(w, "provide either win_prob or ratio, not both", http.StatusBadRequest)
			return
		}
		p, err := odds.ImpliedProb(req.Ratio)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		winProb = p
	}

	resolver, err := odds.NewSeededResolver(s.houseEdge, req.Seed)
	if err != nil {
		writeError(w, "invalid house edge configuration", http.StatusInternalServerError)
		return
	}

	res, err := resolver.Resolve(winProb, req.Stake)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	fair, err := odds.FairOdds(winProb)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome := "loss"
	if res.Win {
		outcome = "win"
	}
	metrics.OddsRounds.WithLabelValues(outcome).Inc()

	slog.Info("odds round resolved",
		"win", res.Win,
		"win_prob", winProb.String(),
		"stake", req.Stake.String(),
		"payout", res.Payout.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OddsRoundResponse{Result: *res, FairOdds: fair})
}

// --- Helpers ---

func (s *Service) sessionResponse(sess *Session) SessionResponse {
	sess.mu.Lock()
	st := sess.engine.State()
	resp := SessionResponse{
		SessionID: sess.ID,
		Scenario:  scenarioView(sess.Scenario),
		Settings:  sess.Settings,
		StartedAt: sess.StartedAt,
		ExpiresAt: sess.ExpiresAt,
		Ended:     sess.Ended,
		Cash:      st.Cash,
		Inventory: st.Inventory,
		FillCount: len(st.Fills),
	}
	sess.mu.Unlock()
	return resp
}

func (s *Service) randomScenario(ctx context.Context) (*model.Scenario, error) {
	scenarios, err := s.catalog.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return nil, errors.New("catalog has no scenarios")
	}
	scn := scenarios[rand.Intn(len(scenarios))]
	return &scn, nil
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
