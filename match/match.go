// Package match implements the per-pair coordinator: the problem loop,
// answer adjudication, chat/emoji relay, reconnect handling, and
// settlement (spec.md §4.5).
package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quizduel-server/config"
	"quizduel-server/duel"
	"quizduel-server/presence"
	"quizduel-server/problems"
	"quizduel-server/storage"
)

// Conn is the minimal channel-facing surface the runner needs from a
// connection. Defined here rather than imported from the gateway package
// to avoid a match<->gateway import cycle: the gateway depends on match to
// hand off attached connections, not the other way around.
type Conn interface {
	// SendText delivers one outbound text frame. Used for every frame,
	// including the handshake ping, whose write error is checked
	// synchronously.
	SendText(text string) error
	Close()
}

// Binder is implemented by a Conn that also needs to learn which Match it
// has just been paired into, so its read pump can start forwarding
// classified inbound frames via PushEvent. matchmaker.spawn checks for
// this optionally, after match.New, since Conn itself carries no
// way to route events back to a match.
type Binder interface {
	BindMatch(m *Match)
}

// State is one node of the match state machine (spec.md §4.5).
type State int

const (
	StateHandshaking State = iota
	StatePlaying
	StateAwaitingReconnect
	StateSettling
	StateFinished
	StateAborted
	StateCancelled
)

// Participant is one side of a match.
type Participant struct {
	UserID string
	Name   string
	Rating float64
	Conn   Conn
	Score  int
}

type actionKind int

const (
	actionExternal actionKind = iota
	actionProblemDeadline
	actionReconnectTimeout
	actionReattach
	actionCancel
)

type action struct {
	kind   actionKind
	event  duel.Event
	userID string
	conn   Conn
}

// Match runs one paired duel to completion. All state is owned
// exclusively by the goroutine executing Run; every other goroutine
// communicates with it only by pushing an action onto actions.
type Match struct {
	ID string

	cfg      *config.Config
	presence *presence.Registry
	source   problems.Source
	store    storage.RatingStore
	log      *slog.Logger

	a, b *Participant

	problemSet []duel.Problem
	problemIdx int
	resolved   bool

	state State

	actions chan action
	done    chan struct{}

	rate *rateLimiter

	problemTimerCancel chan struct{}

	disconnectedUser string
}

// New constructs a Match for the pair (a, b). Run must be called to drive it.
func New(cfg *config.Config, a, b *Participant, source problems.Source, store storage.RatingStore, log *slog.Logger) *Match {
	return &Match{
		ID:       uuid.NewString(),
		cfg:      cfg,
		source:   source,
		store:    store,
		log:      log,
		a:        a,
		b:        b,
		state:    StateHandshaking,
		actions:  make(chan action, 64),
		done:     make(chan struct{}),
		rate:     newRateLimiter(time.Duration(cfg.RateWindowSec)*time.Second, cfg.RateMax),
	}
}

// AttachPresence gives the match a presence registry to mark/release
// in_match and awaiting_reconnect state on. Separated from New so
// matchmaker tests can run a Match without a registry.
func (m *Match) AttachPresence(reg *presence.Registry) {
	m.presence = reg
}

// PushEvent is the producer-side entrypoint: both connections' read pumps
// forward every inbound frame here after classification. Non-blocking; if
// the bounded queue is full the event is replaced with a synthetic
// disconnected event for its sender, since a stalled consumer and a live
// connection cannot be told apart from the producer's side (spec.md §9).
func (m *Match) PushEvent(e duel.Event) {
	select {
	case m.actions <- action{kind: actionExternal, event: e}:
		return
	default:
	}
	select {
	case m.actions <- action{kind: actionExternal, event: duel.Event{UserID: e.UserID, Kind: duel.EventDisconnected}}:
	default:
	}
}

// Done is closed once the match reaches a terminal state.
func (m *Match) Done() <-chan struct{} { return m.done }

// reattach is the ReconnectTarget implementation funneled through a
// per-user reconnectHandle (see reconnectHandle below), since
// presence.ReconnectTarget.Reattach carries no user id of its own.
func (m *Match) reattach(userID string, channel any) bool {
	conn, ok := channel.(Conn)
	if !ok {
		return false
	}
	select {
	case m.actions <- action{kind: actionReattach, userID: userID, conn: conn}:
		return true
	default:
		return false
	}
}

// reconnectHandle adapts one specific user's reconnect slot to
// presence.ReconnectTarget.
type reconnectHandle struct {
	m      *Match
	userID string
}

func (h *reconnectHandle) Reattach(channel any) bool {
	return h.m.reattach(h.userID, channel)
}

// Run drives the match to completion. It must run on its own goroutine.
// ctx cancellation (process shutdown) takes the cancellation path.
func (m *Match) Run(ctx context.Context) {
	defer close(m.done)

	if !m.handshake() {
		m.state = StateAborted
		return
	}

	batch, err := m.source.FetchRandomBatch(ctx, m.cfg.ProblemCount)
	if err != nil {
		m.log.Warn("insufficient problems, aborting match", "match_id", m.ID, "error", err)
		m.a.Conn.SendText("нет задач")
		m.b.Conn.SendText("нет задач")
		m.a.Conn.Close()
		m.b.Conn.Close()
		m.release()
		m.state = StateAborted
		return
	}
	m.problemSet = batch

	m.state = StatePlaying
	m.broadcast("match started")
	m.announceProblem()
	m.startProblemTimer()

	for {
		select {
		case <-ctx.Done():
			m.cancelProblemTimer()
			// The loop ctx is already cancelled (process shutdown); the
			// cancellation write still needs its own short-lived context.
			writeCtx, writeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.cancel(writeCtx)
			writeCancel()
			return
		case act := <-m.actions:
			if m.step(ctx, act) {
				return
			}
		}
	}
}

// step processes one action. It returns true when the match has reached a
// terminal state and Run should stop consuming.
func (m *Match) step(ctx context.Context, act action) (terminal bool) {
	switch act.kind {
	case actionExternal:
		return m.handleEvent(ctx, act.event)
	case actionProblemDeadline:
		return m.handleProblemDeadline(ctx)
	case actionReconnectTimeout:
		m.cancel(ctx)
		return true
	case actionReattach:
		m.handleReattach(act.userID, act.conn)
		return false
	}
	return false
}

func (m *Match) handleEvent(ctx context.Context, e duel.Event) (terminal bool) {
	switch e.Kind {
	case duel.EventChat:
		m.relay(e.UserID, "chat message "+e.Payload)
		return false
	case duel.EventEmoji:
		m.relay(e.UserID, "emoji "+e.Payload)
		return false
	case duel.EventDisconnected:
		m.handleDisconnect(e.UserID)
		return false
	default:
		return m.handleAnswer(ctx, e)
	}
}

func (m *Match) handleAnswer(ctx context.Context, e duel.Event) (terminal bool) {
	if !m.rate.Allow(e.UserID, time.Now()) {
		m.sendTo(e.UserID, "please wait "+itoa(m.cfg.RateWindowSec)+" seconds between answers")
		return false
	}

	problem := m.problemSet[m.problemIdx]
	matches := Normalize(e.Payload) == Normalize(problem.CanonicalAnswer)
	if !matches || m.resolved {
		// Either wrong, or right but arriving after the problem was
		// already resolved by the other participant's answer — both
		// get a plain "incorrect" to the submitter (spec.md §4.5 step 5).
		m.sendTo(e.UserID, "incorrect")
		return false
	}
	m.resolved = true
	p := m.participant(e.UserID)
	p.Score++
	m.sendTo(e.UserID, "correct")
	m.sendTo(m.opponentOf(e.UserID).UserID, "other player answered. next task")

	return m.advanceProblem(ctx)
}

func (m *Match) handleProblemDeadline(ctx context.Context) (terminal bool) {
	if m.problemTimerCancel == nil {
		return false // already cancelled by an earlier resolution
	}
	m.problemTimerCancel = nil
	m.broadcast("time is up. next task")
	return m.advanceProblem(ctx)
}

// advanceProblem moves to the next problem, applying the majority early
// stop (spec.md §4.5 step 7), or settles the match once every problem has
// been played.
func (m *Match) advanceProblem(ctx context.Context) (terminal bool) {
	m.cancelProblemTimer()
	majority := m.cfg.ProblemCount / 2
	if m.a.Score > majority || m.b.Score > majority {
		m.settle(ctx)
		return true
	}
	m.problemIdx++
	if m.problemIdx >= len(m.problemSet) {
		m.settle(ctx)
		return true
	}
	m.resolved = false
	m.announceProblem()
	m.startProblemTimer()
	return false
}

func (m *Match) announceProblem() {
	id := m.problemSet[m.problemIdx].ID
	m.broadcast(id)
}

func (m *Match) handleDisconnect(userID string) {
	if m.disconnectedUser != "" {
		// The other participant is already in reconnect wait; a second
		// concurrent disconnect falls through to cancellation once its
		// own grace (tracked by presence) expires.
	}
	m.disconnectedUser = userID
	m.state = StateAwaitingReconnect
	if m.presence == nil {
		return
	}
	grace := time.Duration(m.cfg.ReconnectGraceSec) * time.Second
	handle := &reconnectHandle{m: m, userID: userID}
	m.presence.MarkAwaitingReconnect(userID, handle, grace, func() {
		select {
		case m.actions <- action{kind: actionReconnectTimeout, userID: userID}:
		case <-m.done:
		}
	})
}

func (m *Match) handleReattach(userID string, conn Conn) {
	if m.disconnectedUser != userID {
		return
	}
	p := m.participant(userID)
	p.Conn = conn
	if binder, ok := conn.(Binder); ok {
		binder.BindMatch(m)
	}
	m.disconnectedUser = ""
	m.state = StatePlaying
	conn.SendText("match started")
	conn.SendText(m.problemSet[m.problemIdx].ID)
}

// handshake sends the liveness probe to both channels; a write failure
// before the match truly starts means that participant never entered it.
func (m *Match) handshake() bool {
	aOK := m.a.Conn.SendText("ping") == nil
	bOK := m.b.Conn.SendText("ping") == nil
	switch {
	case aOK && bOK:
		return true
	case aOK && !bOK:
		m.requeueSurvivor(m.a)
		m.releasePresence(m.b)
		return false
	case bOK && !aOK:
		m.requeueSurvivor(m.b)
		m.releasePresence(m.a)
		return false
	default:
		m.releasePresence(m.a)
		m.releasePresence(m.b)
		return false
	}
}

// requeueSurvivor reinserts survivor's still-live connection into the
// waiting pool and marks it queued again, so a handshake failure on the
// other side doesn't strand a working connection with no way back into
// matchmaking (spec.md §4.5).
func (m *Match) requeueSurvivor(survivor *Participant) {
	if m.presence != nil {
		m.presence.Requeue(survivor.UserID, survivor.Name, survivor.Rating, survivor.Conn)
	}
}

// releasePresence clears p's in_match flag left over from
// matchmaker.tick's MarkInMatch, so a later reconnect isn't rejected with
// "already in a match" for a match that was never recorded.
func (m *Match) releasePresence(p *Participant) {
	if m.presence != nil {
		m.presence.Release(p.UserID)
	}
}

// cancel takes the cancellation path: both participants are told the
// opponent disconnected, a cancelled match record with zero deltas is
// written, and two zero-delta history rows are appended. Ratings are
// never modified.
func (m *Match) cancel(ctx context.Context) {
	m.state = StateCancelled
	m.broadcast("opponent disconnected")

	rec := duel.MatchRecord{
		MatchID:   m.ID,
		PlayerA:   m.a.UserID,
		PlayerB:   m.b.UserID,
		Result:    duel.ResultCancelled,
		DeltaA:    0,
		DeltaB:    0,
		CreatedAt: time.Now(),
	}
	rows := []duel.RatingHistoryRow{
		{UserID: m.a.UserID, RatingBefore: m.a.Rating, RatingAfter: m.a.Rating, Delta: 0, CreatedAt: rec.CreatedAt},
		{UserID: m.b.UserID, RatingBefore: m.b.Rating, RatingAfter: m.b.Rating, Delta: 0, CreatedAt: rec.CreatedAt},
	}
	if m.store != nil {
		if err := m.store.RecordMatch(ctx, rec); err != nil {
			m.log.Error("failed to record cancelled match", "match_id", m.ID, "error", err)
		}
		if err := m.store.AppendRatingHistory(ctx, rows...); err != nil {
			m.log.Error("failed to append cancelled rating history", "match_id", m.ID, "error", err)
		}
	}
	m.release()
	m.state = StateFinished
	m.a.Conn.Close()
	m.b.Conn.Close()
}

// settle computes the result, applies Elo deltas, persists them, and
// notifies both participants. Persistence is three separate store calls
// (both rating deltas, the match record, the history rows), each committed
// on its own, not one transaction; a retry re-runs all of them. On a
// persistence error it is retried once, then degrades to the cancellation
// path (spec.md §7).
func (m *Match) settle(ctx context.Context) {
	m.state = StateSettling

	result, sa, sb := outcome(m.a.Score, m.b.Score)
	deltaA := eloDelta(m.a.Rating, m.b.Rating, sa, m.cfg.EloK)
	deltaB := eloDelta(m.b.Rating, m.a.Rating, sb, m.cfg.EloK)

	if err := m.persistSettlement(ctx, result, deltaA, deltaB); err != nil {
		m.log.Warn("settlement failed, retrying once", "match_id", m.ID, "error", err)
		if err := m.persistSettlement(ctx, result, deltaA, deltaB); err != nil {
			m.log.Error("settlement failed twice, cancelling with zero rating change", "match_id", m.ID, "error", err)
			m.cancel(ctx)
			return
		}
	}

	newA := m.a.Rating + deltaA
	newB := m.b.Rating + deltaB
	switch result {
	case duel.ResultAWins:
		m.sendTo(m.a.UserID, "win "+formatRating(newA))
		m.sendTo(m.b.UserID, "loss "+formatRating(newB))
	case duel.ResultBWins:
		m.sendTo(m.a.UserID, "loss "+formatRating(newA))
		m.sendTo(m.b.UserID, "win "+formatRating(newB))
	default:
		m.sendTo(m.a.UserID, "draw "+formatRating(newA))
		m.sendTo(m.b.UserID, "draw "+formatRating(newB))
	}

	m.release()
	m.state = StateFinished
	m.a.Conn.Close()
	m.b.Conn.Close()
}

func (m *Match) persistSettlement(ctx context.Context, result duel.Result, deltaA, deltaB float64) error {
	if m.store == nil {
		return nil
	}
	newA, err := m.store.ApplyRatingDelta(ctx, m.a.UserID, deltaA)
	if err != nil {
		return err
	}
	newB, err := m.store.ApplyRatingDelta(ctx, m.b.UserID, deltaB)
	if err != nil {
		return err
	}
	rec := duel.MatchRecord{
		MatchID:   m.ID,
		PlayerA:   m.a.UserID,
		PlayerB:   m.b.UserID,
		Result:    result,
		DeltaA:    deltaA,
		DeltaB:    deltaB,
		CreatedAt: time.Now(),
	}
	if err := m.store.RecordMatch(ctx, rec); err != nil {
		return err
	}
	rows := []duel.RatingHistoryRow{
		{UserID: m.a.UserID, RatingBefore: m.a.Rating, RatingAfter: newA, Delta: deltaA, CreatedAt: rec.CreatedAt},
		{UserID: m.b.UserID, RatingBefore: m.b.Rating, RatingAfter: newB, Delta: deltaB, CreatedAt: rec.CreatedAt},
	}
	return m.store.AppendRatingHistory(ctx, rows...)
}

// outcome classifies the final scores into a result plus each side's Elo
// outcome score.
func outcome(scoreA, scoreB int) (duel.Result, score, score) {
	switch {
	case scoreA > scoreB:
		return duel.ResultAWins, scoreWin, scoreLoss
	case scoreB > scoreA:
		return duel.ResultBWins, scoreLoss, scoreWin
	default:
		return duel.ResultDraw, scoreDraw, scoreDraw
	}
}

func (m *Match) release() {
	if m.presence == nil {
		return
	}
	m.presence.Release(m.a.UserID)
	m.presence.Release(m.b.UserID)
}

func (m *Match) startProblemTimer() {
	m.cancelProblemTimer()
	cancel := make(chan struct{})
	m.problemTimerCancel = cancel
	timeout := time.Duration(m.cfg.ProblemTimeoutSec) * time.Second
	go func() {
		select {
		case <-time.After(timeout):
			select {
			case m.actions <- action{kind: actionProblemDeadline}:
			case <-m.done:
			}
		case <-cancel:
		}
	}()
}

func (m *Match) cancelProblemTimer() {
	if m.problemTimerCancel != nil {
		close(m.problemTimerCancel)
		m.problemTimerCancel = nil
	}
}

func (m *Match) participant(userID string) *Participant {
	if m.a.UserID == userID {
		return m.a
	}
	return m.b
}

func (m *Match) opponentOf(userID string) *Participant {
	if m.a.UserID == userID {
		return m.b
	}
	return m.a
}

func (m *Match) sendTo(userID, text string) {
	p := m.participant(userID)
	if p.Conn == nil {
		return
	}
	if err := p.Conn.SendText(text); err != nil {
		m.log.Debug("send failed", "match_id", m.ID, "user_id", userID, "error", err)
	}
}

func (m *Match) relay(fromUserID, text string) {
	m.sendTo(m.opponentOf(fromUserID).UserID, text)
}

func (m *Match) broadcast(text string) {
	m.sendTo(m.a.UserID, text)
	m.sendTo(m.b.UserID, text)
}
