// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/input"
	"github.com/playgrid/playgrid/lib/clock"
	"github.com/playgrid/playgrid/lib/ref"
	"github.com/playgrid/playgrid/messaging"
	"github.com/playgrid/playgrid/persist"
	"github.com/playgrid/playgrid/scheduler"
	"github.com/playgrid/playgrid/session"
)

// fakeTransport records everything the bot sends and hands out
// sequential event IDs. failSend makes SendMessage fail, which
// exercises the display-attachment rollback path.
type fakeTransport struct {
	mu       sync.Mutex
	sends    []sentMessage
	edits    []sentEdit
	reacts   []sentReaction
	redacts  []ref.EventID
	nextID   int
	failSend bool
}

type sentMessage struct {
	room    ref.RoomID
	content messaging.MessageContent
	event   ref.EventID
}

type sentEdit struct {
	target  ref.EventID
	content messaging.MessageContent
}

type sentReaction struct {
	target ref.EventID
	key    string
}

func (f *fakeTransport) newEventID() ref.EventID {
	f.nextID++
	return ref.MustParseEventID(fmt.Sprintf("$fake-%d:example.org", f.nextID))
}

func (f *fakeTransport) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return ref.EventID{}, errors.New("homeserver unavailable")
	}
	id := f.newEventID()
	f.sends = append(f.sends, sentMessage{room: roomID, content: content, event: id})
	return id, nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, roomID ref.RoomID, target ref.EventID, content messaging.MessageContent) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentEdit{target: target, content: content})
	return f.newEventID(), nil
}

func (f *fakeTransport) React(ctx context.Context, roomID ref.RoomID, target ref.EventID, key string) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, sentReaction{target: target, key: key})
	return f.newEventID(), nil
}

func (f *fakeTransport) RedactEvent(ctx context.Context, roomID ref.RoomID, target ref.EventID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redacts = append(f.redacts, target)
	return nil
}

func (f *fakeTransport) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := make([]string, len(f.sends))
	for i, s := range f.sends {
		bodies[i] = s.content.Body
	}
	return bodies
}

func (f *fakeTransport) lastSentBody(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sends[len(f.sends)-1].content.Body
}

// memStore is an in-memory persist.SnapshotStore.
type memStore struct {
	mu    sync.Mutex
	saves map[string]*persist.Snapshot
}

func newMemStore() *memStore {
	return &memStore{saves: make(map[string]*persist.Snapshot)}
}

func (m *memStore) key(owner ref.UserID, slot string) string {
	return owner.String() + "\x00" + slot
}

func (m *memStore) Put(ctx context.Context, snapshot *persist.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[m.key(snapshot.Owner, snapshot.Slot)] = snapshot
	return nil
}

func (m *memStore) Get(ctx context.Context, owner ref.UserID, slot string) (*persist.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.saves[m.key(owner, slot)]
	if !ok {
		return nil, persist.ErrNoSave
	}
	return snapshot, nil
}

func (m *memStore) Delete(ctx context.Context, owner ref.UserID, slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saves, m.key(owner, slot))
	return nil
}

func (m *memStore) List(ctx context.Context, owner ref.UserID) ([]persist.SlotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slots []persist.SlotInfo
	for key, snapshot := range m.saves {
		if strings.HasPrefix(key, owner.String()+"\x00") {
			slots = append(slots, persist.SlotInfo{Slot: snapshot.Slot, SavedAt: snapshot.SavedAt})
		}
	}
	return slots, nil
}

type botFixture struct {
	bot       *Bot
	transport *fakeTransport
	registry  *session.Registry
	store     *memStore
	clock     *clock.FakeClock
}

func newBotFixture(t *testing.T, mutate func(*Config)) *botFixture {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	transport := &fakeTransport{}
	store := newMemStore()
	registry := session.NewRegistry(session.RegistryConfig{
		MaxSessions:    4,
		SinglePerOwner: true,
		Clock:          fake,
		Logger:         slog.New(slog.DiscardHandler),
	})
	config := Config{
		Transport: transport,
		Room:      ref.MustParseRoomID("!arcade:example.org"),
		Self:      ref.MustParseUserID("@playgrid:example.org"),
		Registry:  registry,
		Gateway:   persist.NewGateway(store, fake, slog.New(slog.DiscardHandler)),
		Keymap:    input.DefaultKeymap(),
		NewEngine: func() engine.Engine { return engine.NewDemo(20, 10) },
		SessionConfig: session.Config{
			GridWidth:       20,
			GridHeight:      10,
			NoiseThreshold:  2,
			QueueCapacity:   8,
			Overflow:        session.DropOldest,
			CommandsPerTick: 4,
			StatusLine:      true,
		},
		Scheduler: scheduler.Config{
			TickInterval: time.Second,
			SendBudget:   1,
			RetryLimit:   3,
		},
		Debounce: 2 * time.Second,
		Clock:    fake,
		Logger:   slog.New(slog.DiscardHandler),
	}
	if mutate != nil {
		mutate(&config)
	}
	return &botFixture{
		bot:       New(config),
		transport: transport,
		registry:  config.Registry,
		store:     store,
		clock:     fake,
	}
}

func (f *botFixture) command(owner, body string) {
	f.bot.handleCommand(context.Background(), ref.MustParseUserID(owner), body)
}

// react delivers a reaction event the way the sync watcher would.
func (f *botFixture) react(owner, symbol string, target ref.EventID, reactionID string) {
	event := messaging.Event{
		EventID: ref.MustParseEventID(reactionID),
		Type:    "m.reaction",
		Sender:  ref.MustParseUserID(owner),
		Content: map[string]any{
			"m.relates_to": map[string]any{
				"rel_type": "m.annotation",
				"event_id": target.String(),
				"key":      symbol,
			},
		},
	}
	f.bot.dispatch(context.Background(), event)
}

func (f *botFixture) ownSession(t *testing.T, owner string) *session.Session {
	t.Helper()
	s, ok := f.registry.FindByOwner(ref.MustParseUserID(owner))
	if !ok {
		t.Fatalf("no session for %s", owner)
	}
	return s
}

func TestStartCreatesSessionAndSeedsControls(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")

	s := f.ownSession(t, "@ada:example.org")
	if s.Sink().IsZero() {
		t.Fatal("session has no sink after start")
	}
	if s.State() != session.Running {
		t.Fatalf("state = %v, want Running", s.State())
	}
	if len(f.transport.sends) != 1 {
		t.Fatalf("sends = %d, want 1 display message", len(f.transport.sends))
	}
	if f.transport.sends[0].event != s.Sink() {
		t.Fatal("sink does not match the display message event ID")
	}
	if f.transport.sends[0].content.Format != "org.matrix.custom.html" {
		t.Fatal("display message is not a formatted code block")
	}

	symbols := input.DefaultKeymap().Symbols()
	if len(f.transport.reacts) != len(symbols) {
		t.Fatalf("seeded %d reactions, want %d", len(f.transport.reacts), len(symbols))
	}
	for i, r := range f.transport.reacts {
		if r.target != s.Sink() || r.key != symbols[i] {
			t.Fatalf("reaction %d = %q on %s, want %q on %s", i, r.key, r.target, symbols[i], s.Sink())
		}
	}
}

func TestStartTwiceRefused(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	f.command("@ada:example.org", "!play")

	if got := f.registry.Len(); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "already have an active game") {
		t.Fatalf("reply = %q; want already-active refusal", body)
	}
}

func TestStartAtCapacityRefused(t *testing.T) {
	f := newBotFixture(t, func(c *Config) {
		c.Registry = session.NewRegistry(session.RegistryConfig{
			MaxSessions:    1,
			SinglePerOwner: true,
			Clock:          c.Clock,
			Logger:         c.Logger,
		})
	})
	f.command("@ada:example.org", "!play")
	f.command("@bob:example.org", "!play")

	if body := f.transport.lastSentBody(t); !strings.Contains(body, "slots are busy") {
		t.Fatalf("reply = %q; want capacity refusal", body)
	}
}

func TestStartRollsBackOnTransportFailure(t *testing.T) {
	f := newBotFixture(t, nil)
	f.transport.failSend = true
	f.command("@ada:example.org", "!play")

	if got := f.registry.Len(); got != 0 {
		t.Fatalf("sessions = %d after failed start, want 0", got)
	}
}

func TestQuitDestroysSession(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	f.command("@ada:example.org", "!play quit")

	if got := f.registry.Len(); got != 0 {
		t.Fatalf("sessions = %d after quit, want 0", got)
	}
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "session ended") {
		t.Fatalf("reply = %q; want session-ended confirmation", body)
	}
}

func TestQuitWithoutSession(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play quit")

	if body := f.transport.lastSentBody(t); !strings.Contains(body, "no active game") {
		t.Fatalf("reply = %q; want no-active-game notice", body)
	}
}

func TestPauseResume(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	f.command("@ada:example.org", "!play pause")
	if s.State() != session.Paused {
		t.Fatalf("state after pause = %v, want Paused", s.State())
	}
	f.command("@ada:example.org", "!play resume")
	if s.State() != session.Running {
		t.Fatalf("state after resume = %v, want Running", s.State())
	}
}

func TestReactionEnqueuesForOwnerOnly(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	f.react("@mallory:example.org", "⬆️", s.Sink(), "$press-1:example.org")
	if got := s.QueueLen(); got != 0 {
		t.Fatalf("queue = %d after non-owner press, want 0", got)
	}

	f.react("@ada:example.org", "⬆️", s.Sink(), "$press-2:example.org")
	if got := s.QueueLen(); got != 1 {
		t.Fatalf("queue = %d after owner press, want 1", got)
	}
	if len(f.transport.redacts) != 1 || f.transport.redacts[0] != ref.MustParseEventID("$press-2:example.org") {
		t.Fatalf("redacts = %v, want the consumed owner press", f.transport.redacts)
	}
}

func TestReactionOnUnknownMessageIgnored(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	f.react("@ada:example.org", "⬆️", ref.MustParseEventID("$elsewhere:example.org"), "$press-1:example.org")
	if got := s.QueueLen(); got != 0 {
		t.Fatalf("queue = %d, want 0", got)
	}
	if len(f.transport.redacts) != 0 {
		t.Fatal("reaction on an unrelated message must not be redacted")
	}
}

// Five identical presses inside the debounce window collapse to one
// queued command, while every recognized press is still cleared off
// the display message.
func TestRapidIdenticalPressesCoalesce(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	for i := 0; i < 5; i++ {
		f.react("@ada:example.org", "➡️", s.Sink(), fmt.Sprintf("$press-%d:example.org", i))
		f.clock.Advance(100 * time.Millisecond)
	}

	if got := s.QueueLen(); got != 1 {
		t.Fatalf("queue = %d after 5 rapid identical presses, want 1", got)
	}
	if len(f.transport.redacts) != 5 {
		t.Fatalf("redacts = %d, want all 5 presses consumed", len(f.transport.redacts))
	}

	// Outside the window the same command goes through again.
	f.clock.Advance(3 * time.Second)
	f.react("@ada:example.org", "➡️", s.Sink(), "$press-late:example.org")
	if got := s.QueueLen(); got != 2 {
		t.Fatalf("queue = %d after window expiry, want 2", got)
	}
}

func TestOwnEchoesIgnored(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	// The bot's own seeded reaction echoing back must not enqueue.
	f.react("@playgrid:example.org", "⬆️", s.Sink(), "$seed-1:example.org")
	if got := s.QueueLen(); got != 0 {
		t.Fatalf("queue = %d after own echo, want 0", got)
	}

	// Nor must its own command-looking messages loop.
	f.bot.dispatch(context.Background(), messaging.Event{
		EventID: ref.MustParseEventID("$echo:example.org"),
		Type:    "m.room.message",
		Sender:  ref.MustParseUserID("@playgrid:example.org"),
		Content: map[string]any{"msgtype": "m.text", "body": "!play"},
	})
	if got := f.registry.Len(); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
}

func TestSaveLoadFlow(t *testing.T) {
	f := newBotFixture(t, nil)
	ctx := context.Background()
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	// Play a little so the save captures a non-initial pose.
	for _, c := range []engine.Command{engine.Forward, engine.TurnRight, engine.Forward} {
		if err := s.Enqueue(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Step(ctx, 250*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	f.command("@ada:example.org", "!play save cavern")
	if body := f.transport.lastSentBody(t); !strings.Contains(body, `saved to slot "cavern"`) {
		t.Fatalf("reply = %q; want save confirmation", body)
	}
	if s.State() != session.Running {
		t.Fatalf("state after save = %v, want Running", s.State())
	}

	// Loading is refused while a session is live.
	f.command("@ada:example.org", "!play load cavern")
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "quit your current game") {
		t.Fatalf("reply = %q; want live-session refusal", body)
	}

	f.command("@ada:example.org", "!play quit")
	f.command("@ada:example.org", "!play load cavern")

	restored := f.ownSession(t, "@ada:example.org")
	if restored.State() != session.Paused {
		t.Fatalf("restored state = %v, want Paused", restored.State())
	}
	if restored.Sink().IsZero() {
		t.Fatal("restored session has no display message")
	}
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "resume") {
		t.Fatalf("reply = %q; want resume hint", body)
	}
}

func TestLoadMissingSlot(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play load nowhere")

	if body := f.transport.lastSentBody(t); !strings.Contains(body, `no save in slot "nowhere"`) {
		t.Fatalf("reply = %q; want missing-slot notice", body)
	}
}

func TestSavesListing(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play saves")
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "no saves yet") {
		t.Fatalf("reply = %q; want empty listing", body)
	}

	f.command("@ada:example.org", "!play")
	f.command("@ada:example.org", "!play save")
	f.command("@ada:example.org", "!play saves")
	body := f.transport.lastSentBody(t)
	if !strings.Contains(body, "default") || !strings.Contains(body, "2026-03-01") {
		t.Fatalf("listing = %q; want default slot with timestamp", body)
	}
}

func TestHelpAndUnknownSubcommand(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play help")
	if body := f.transport.lastSentBody(t); !strings.Contains(body, "!play save") {
		t.Fatalf("help = %q; want subcommand listing", body)
	}

	f.command("@ada:example.org", "!play dance")
	if body := f.transport.lastSentBody(t); !strings.Contains(body, `unknown subcommand "dance"`) {
		t.Fatalf("reply = %q; want unknown-subcommand notice", body)
	}

	// Ordinary chat is not a command.
	before := len(f.transport.sends)
	f.command("@ada:example.org", "just chatting about !play strategies")
	if len(f.transport.sends) != before {
		t.Fatal("non-command chat produced a reply")
	}
}

func TestSchedulerRendersIntoDisplayMessage(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	f.bot.scheduler.Tick(context.Background())
	if len(f.transport.edits) != 1 {
		t.Fatalf("edits = %d, want 1 frame", len(f.transport.edits))
	}
	e := f.transport.edits[0]
	if e.target != s.Sink() {
		t.Fatal("frame edited the wrong message")
	}
	if e.content.Format != "org.matrix.custom.html" || !strings.Contains(e.content.Formatted, "<pre><code>") {
		t.Fatal("frame is not a monospace block")
	}
	if !strings.Contains(e.content.Body, "HP") {
		t.Fatal("frame body is missing the status line")
	}
}

func TestEndNoticeBodies(t *testing.T) {
	owner := ref.MustParseUserID("@ada:example.org")
	tests := []struct {
		reason scheduler.EndReason
		want   string
	}{
		{scheduler.EndGameOver, "game over"},
		{scheduler.EndEngineFault, "crashed"},
		{scheduler.EndTransportFailure, "display could not be updated"},
		{scheduler.EndIdleTimeout, "inactivity"},
	}
	for _, test := range tests {
		body := endNoticeBody(notice{owner: owner, reason: test.reason})
		if !strings.Contains(body, test.want) {
			t.Errorf("%v notice = %q; want mention of %q", test.reason, body, test.want)
		}
		if !strings.Contains(body, "ada") {
			t.Errorf("%v notice = %q; want the player's name", test.reason, body)
		}
	}
}

func TestSessionEndClearsDebounce(t *testing.T) {
	f := newBotFixture(t, nil)
	f.command("@ada:example.org", "!play")
	s := f.ownSession(t, "@ada:example.org")

	f.react("@ada:example.org", "➡️", s.Sink(), "$press-1:example.org")
	f.bot.sessionEnded(s, scheduler.EndGameOver)
	f.command("@ada:example.org", "!play quit")

	// A fresh session starts with clean debounce state: the same
	// command goes through immediately.
	f.command("@ada:example.org", "!play")
	fresh := f.ownSession(t, "@ada:example.org")
	f.react("@ada:example.org", "➡️", fresh.Sink(), "$press-2:example.org")
	if got := fresh.QueueLen(); got != 1 {
		t.Fatalf("queue = %d on fresh session, want 1", got)
	}
}
