package quiz

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quizlive/quizlive/go/internal/models"
)

const testPerQuestion = 10 * time.Second

type stateMsg struct {
	sessionID string
	snap      models.SessionSnapshot
}

type resultMsg struct {
	connID  string
	correct bool
	score   int
}

// recordingBroadcaster captures engine output so tests can assert on the
// exact sequence of broadcasts and directed results.
type recordingBroadcaster struct {
	states  chan stateMsg
	results chan resultMsg
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		states:  make(chan stateMsg, 64),
		results: make(chan resultMsg, 64),
	}
}

func (b *recordingBroadcaster) BroadcastState(sessionID string, snap models.SessionSnapshot) {
	b.states <- stateMsg{sessionID: sessionID, snap: snap}
}

func (b *recordingBroadcaster) SendAnswerResult(connID string, correct bool, score int) {
	b.results <- resultMsg{connID: connID, correct: correct, score: score}
}

func (b *recordingBroadcaster) nextState(t *testing.T) models.SessionSnapshot {
	t.Helper()
	select {
	case m := <-b.states:
		return m.snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state broadcast")
		return models.SessionSnapshot{}
	}
}

func (b *recordingBroadcaster) nextResult(t *testing.T) resultMsg {
	t.Helper()
	select {
	case m := <-b.results:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for answer result")
		return resultMsg{}
	}
}

func (b *recordingBroadcaster) expectNoState(t *testing.T) {
	t.Helper()
	select {
	case m := <-b.states:
		t.Fatalf("unexpected state broadcast: %+v", m.snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func threeQuestions() []models.Question {
	return []models.Question{
		{Prompt: "Which country's flag shows a red maple leaf?", Options: []string{"Japan", "Canada", "Peru", "Norway"}, Answer: 1},
		{Prompt: "Injera is the staple flatbread of which cuisine?", Options: []string{"Ethiopian", "Thai", "Greek", "Mexican"}, Answer: 0},
		{Prompt: "Holi is a festival of what?", Options: []string{"Lanterns", "Harvest", "Colors", "Kites"}, Answer: 2},
	}
}

func newTestEngine(t *testing.T, questions []models.Question) (*Engine, *recordingBroadcaster, *clockwork.FakeClock) {
	t.Helper()
	broadcaster := newRecordingBroadcaster()
	engine := NewEngine(NewStore(), NewRegistry(), broadcaster, NopPublisher{}, testPerQuestion)
	clock := clockwork.NewFakeClock()
	engine.clock = clock
	return engine, broadcaster, clock
}

func TestJoinUnknownSession(t *testing.T) {
	engine, _, _ := newTestEngine(t, threeQuestions())

	err := engine.Join("conn-1", "no-such-session", models.RolePlayer, "Foxes")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Join() error = %v, want ErrSessionNotFound", err)
	}
}

func TestJoinPlayerRequiresTeamName(t *testing.T) {
	engine, _, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	for _, name := range []string{"", "   ", "\t"} {
		if err := engine.Join("conn-1", id, models.RolePlayer, name); !errors.Is(err, ErrTeamNameRequired) {
			t.Fatalf("Join(%q) error = %v, want ErrTeamNameRequired", name, err)
		}
	}
}

func TestJoinHostNeedsNoTeam(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	if err := engine.Join("host-1", id, models.RoleHost, ""); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	snap := broadcaster.nextState(t)
	if len(snap.Teams) != 0 {
		t.Fatalf("host join created teams: %v", snap.Teams)
	}
	if snap.Status != models.SessionStatusLobby {
		t.Fatalf("status = %q, want lobby", snap.Status)
	}
}

func TestJoinPlayerRegistersTeamAtZero(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	if err := engine.Join("conn-1", id, models.RolePlayer, "  Foxes  "); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	snap := broadcaster.nextState(t)
	if score, ok := snap.Teams["Foxes"]; !ok || score != 0 {
		t.Fatalf("teams = %v, want Foxes at 0", snap.Teams)
	}
}

func TestStartArmsFirstQuestion(t *testing.T) {
	engine, broadcaster, clock := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	if err := engine.Join("conn-a", id, models.RolePlayer, "A"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	broadcaster.nextState(t)

	engine.Start(id)
	snap := broadcaster.nextState(t)

	if snap.Status != models.SessionStatusRunning {
		t.Fatalf("status = %q, want running", snap.Status)
	}
	if snap.Idx != 0 {
		t.Fatalf("idx = %d, want 0", snap.Idx)
	}
	if snap.Deadline == nil {
		t.Fatal("deadline is nil while running")
	}
	want := clock.Now().Add(testPerQuestion)
	if !snap.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", snap.Deadline, want)
	}
}

func TestAnswerIsIdempotentPerQuestion(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Join("conn-b", id, models.RolePlayer, "B")
	engine.Start(id)
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	engine.Answer("conn-a", 1) // correct for question 0
	res := broadcaster.nextResult(t)
	if !res.correct || res.score != 1 {
		t.Fatalf("first answer result = %+v, want correct score 1", res)
	}
	broadcaster.nextState(t)

	// Duplicate submission must not double-score and emits nothing.
	engine.Answer("conn-a", 1)
	broadcaster.expectNoState(t)

	engine.Answer("conn-b", 3) // wrong, completes the question
	res = broadcaster.nextResult(t)
	if res.correct || res.score != 0 {
		t.Fatalf("second team result = %+v, want incorrect score 0", res)
	}
	snap := broadcaster.nextState(t)
	if snap.Teams["A"] != 1 || snap.Teams["B"] != 0 {
		t.Fatalf("teams = %v, want A:1 B:0", snap.Teams)
	}
}

func TestFullAnswerShortCircuitsDeadline(t *testing.T) {
	engine, broadcaster, clock := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Join("conn-b", id, models.RolePlayer, "B")
	engine.Start(id)
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	engine.Answer("conn-a", 1)
	broadcaster.nextResult(t)
	broadcaster.nextState(t)

	engine.Answer("conn-b", 0)
	broadcaster.nextResult(t)
	snap := broadcaster.nextState(t)

	// Advance happened immediately, without the clock moving.
	if snap.Idx != 1 {
		t.Fatalf("idx = %d, want 1", snap.Idx)
	}
	if snap.Deadline == nil || !snap.Deadline.Equal(clock.Now().Add(testPerQuestion)) {
		t.Fatalf("deadline not re-armed for next question: %v", snap.Deadline)
	}

	// The superseded question-0 timer must never fire as an advance.
	clock.BlockUntil(1)
	clock.Advance(testPerQuestion)
	next := broadcaster.nextState(t)
	if next.Idx != 2 {
		t.Fatalf("after deadline, idx = %d, want 2", next.Idx)
	}
	broadcaster.expectNoState(t)
}

func TestDeadlineFallbackAdvancesOnce(t *testing.T) {
	engine, broadcaster, clock := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Join("conn-b", id, models.RolePlayer, "B")
	engine.Start(id)
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	// Only one of two teams answers.
	engine.Answer("conn-a", 1)
	broadcaster.nextResult(t)
	broadcaster.nextState(t)

	clock.BlockUntil(1)
	clock.Advance(testPerQuestion)

	snap := broadcaster.nextState(t)
	if snap.Idx != 1 {
		t.Fatalf("idx = %d, want 1 after deadline", snap.Idx)
	}
	if snap.Teams["A"] != 1 {
		t.Fatalf("teams = %v, want A:1", snap.Teams)
	}
	broadcaster.expectNoState(t)

	// answered was cleared: the slow team can answer the new question.
	engine.Answer("conn-b", 0)
	res := broadcaster.nextResult(t)
	if !res.correct || res.score != 1 {
		t.Fatalf("result = %+v, want correct score 1", res)
	}
}

func TestStaleTimerFireIsDropped(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Start(id)
	broadcaster.nextState(t)
	broadcaster.nextState(t)

	// A fire carrying a superseded generation acts on stale state and must
	// be a no-op.
	engine.handleFire(id, 0)
	broadcaster.expectNoState(t)

	snap, err := engine.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Idx != 0 || snap.Status != models.SessionStatusRunning {
		t.Fatalf("stale fire mutated session: idx=%d status=%q", snap.Idx, snap.Status)
	}
}

func TestTerminalClamp(t *testing.T) {
	questions := threeQuestions()[:1]
	engine, broadcaster, _ := newTestEngine(t, questions)
	id := engine.CreateSession(questions)

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Start(id)
	broadcaster.nextState(t)
	broadcaster.nextState(t)

	engine.Answer("conn-a", 1)
	broadcaster.nextResult(t)
	snap := broadcaster.nextState(t)

	if snap.Status != models.SessionStatusEnded {
		t.Fatalf("status = %q, want ended", snap.Status)
	}
	if snap.Idx != len(questions)-1 {
		t.Fatalf("idx = %d, want %d", snap.Idx, len(questions)-1)
	}
	if snap.Deadline != nil {
		t.Fatalf("deadline = %v, want nil after end", snap.Deadline)
	}

	engine.activeTimersMu.Lock()
	armed := len(engine.activeTimers)
	engine.activeTimersMu.Unlock()
	if armed != 0 {
		t.Fatalf("armed timers = %d, want 0 after end", armed)
	}
}

func TestLobbyDisconnectRemovesTeam(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-1", id, models.RolePlayer, "Foxes")
	broadcaster.nextState(t)

	engine.Leave("conn-1")
	snap := broadcaster.nextState(t)
	if _, ok := snap.Teams["Foxes"]; ok {
		t.Fatalf("teams = %v, want Foxes removed after lobby disconnect", snap.Teams)
	}
}

func TestRunningDisconnectPreservesScore(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-1", id, models.RolePlayer, "Foxes")
	engine.Join("conn-2", id, models.RolePlayer, "Wolves")
	engine.Start(id)
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	engine.Answer("conn-1", 1)
	broadcaster.nextResult(t)
	broadcaster.nextState(t)

	engine.Leave("conn-1")
	broadcaster.expectNoState(t)

	snap, err := engine.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Teams["Foxes"] != 1 {
		t.Fatalf("teams = %v, want Foxes retained at 1", snap.Teams)
	}

	// The departed team still counts toward full-answer completion.
	engine.Answer("conn-2", 0)
	broadcaster.nextResult(t)
	next := broadcaster.nextState(t)
	if next.Idx != 0 {
		t.Fatalf("idx = %d, want 0: departed team has not answered", next.Idx)
	}
}

func TestRejoinResetsScore(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-1", id, models.RolePlayer, "Foxes")
	engine.Join("conn-2", id, models.RolePlayer, "Wolves")
	engine.Start(id)
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	engine.Answer("conn-1", 1)
	broadcaster.nextResult(t)
	broadcaster.nextState(t)

	// Rejoining under the same team name resets its score.
	if err := engine.Join("conn-3", id, models.RolePlayer, "Foxes"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	snap := broadcaster.nextState(t)
	if snap.Teams["Foxes"] != 0 {
		t.Fatalf("teams = %v, want Foxes reset to 0", snap.Teams)
	}
}

func TestAnswerIgnoredOutsideRunning(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("conn-1", id, models.RolePlayer, "Foxes")
	broadcaster.nextState(t)

	// Session still in lobby.
	engine.Answer("conn-1", 1)
	broadcaster.expectNoState(t)

	// Unmapped connection.
	engine.Answer("ghost", 1)
	broadcaster.expectNoState(t)

	snap, _ := engine.Snapshot(id)
	if snap.Teams["Foxes"] != 0 {
		t.Fatalf("teams = %v, want no scoring outside running", snap.Teams)
	}
}

// lockCheckBroadcaster verifies snapshots are enqueued while the session
// lock is held, so their order always matches the mutation order.
type lockCheckBroadcaster struct {
	t       *testing.T
	session *Session
	states  chan models.SessionSnapshot
}

func (b *lockCheckBroadcaster) BroadcastState(sessionID string, snap models.SessionSnapshot) {
	if b.session != nil && b.session.mu.TryLock() {
		b.session.mu.Unlock()
		b.t.Error("state broadcast enqueued without the session lock held")
	}
	b.states <- snap
}

func (b *lockCheckBroadcaster) SendAnswerResult(connID string, correct bool, score int) {}

func TestSnapshotEnqueueHoldsSessionLock(t *testing.T) {
	broadcaster := &lockCheckBroadcaster{t: t, states: make(chan models.SessionSnapshot, 64)}
	engine := NewEngine(NewStore(), NewRegistry(), broadcaster, NopPublisher{}, testPerQuestion)
	engine.clock = clockwork.NewFakeClock()

	id := engine.CreateSession(threeQuestions())
	s, ok := engine.store.Get(id)
	if !ok {
		t.Fatal("created session not in store")
	}
	broadcaster.session = s

	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Start(id)
	engine.Answer("conn-a", 1)
	engine.handleFire(id, s.timerGen)
	engine.Leave("conn-a")
}

func TestConcurrentAnswersKeepSnapshotOrder(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	conns := []string{"conn-a", "conn-b", "conn-c", "conn-d"}
	for i, conn := range conns {
		engine.Join(conn, id, models.RolePlayer, string(rune('A'+i)))
		broadcaster.nextState(t)
	}
	engine.Start(id)
	broadcaster.nextState(t)

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn string) {
			defer wg.Done()
			engine.Answer(conn, 1)
		}(conn)
	}
	wg.Wait()

	// Every enqueued snapshot must be at least as far along as the one
	// before it, regardless of how the answers interleaved.
	prev := -1
	for len(broadcaster.states) > 0 {
		snap := broadcaster.nextState(t)
		if snap.Idx < prev {
			t.Fatalf("snapshot went backwards: idx %d after %d", snap.Idx, prev)
		}
		prev = snap.Idx
	}
	if prev != 1 {
		t.Fatalf("final snapshot idx = %d, want 1 after full answer", prev)
	}
}

// Full walkthrough: three questions, two teams, immediate advance on the
// first question once both have answered.
func TestSessionScenario(t *testing.T) {
	engine, broadcaster, _ := newTestEngine(t, threeQuestions())
	id := engine.CreateSession(threeQuestions())

	engine.Join("host", id, models.RoleHost, "")
	engine.Join("conn-a", id, models.RolePlayer, "A")
	engine.Join("conn-b", id, models.RolePlayer, "B")
	for i := 0; i < 3; i++ {
		broadcaster.nextState(t)
	}

	engine.Start(id)
	snap := broadcaster.nextState(t)
	if snap.Idx != 0 || snap.Status != models.SessionStatusRunning {
		t.Fatalf("after start: idx=%d status=%q", snap.Idx, snap.Status)
	}

	engine.Answer("conn-a", 1) // correct
	resA := broadcaster.nextResult(t)
	broadcaster.nextState(t)
	engine.Answer("conn-b", 3) // incorrect
	resB := broadcaster.nextResult(t)
	snap = broadcaster.nextState(t)

	if !resA.correct || resA.score != 1 {
		t.Fatalf("team A result = %+v", resA)
	}
	if resB.correct || resB.score != 0 {
		t.Fatalf("team B result = %+v", resB)
	}
	if snap.Idx != 1 {
		t.Fatalf("idx = %d, want immediate advance to 1", snap.Idx)
	}
	if snap.Teams["A"] != 1 || snap.Teams["B"] != 0 {
		t.Fatalf("teams = %v, want A:1 B:0", snap.Teams)
	}
}
