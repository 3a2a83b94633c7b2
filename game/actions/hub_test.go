package actions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"khawawish/catalog"
	"khawawish/game/connection"
	"khawawish/models"

	"go.uber.org/zap/zaptest"
)

type completedCall struct {
	sessionID string
	winnerID  string
	playerIDs []string
}

type fakeSessions struct {
	mu        sync.Mutex
	created   []string
	configs   []map[string]any
	completed []completedCall
	createErr error
}

func (f *fakeSessions) CreateSession(ctx context.Context, sessionID, lobbyID, creatorID string, maxPlayers int, config map[string]any) (*models.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, sessionID)
	f.configs = append(f.configs, config)
	return &models.GameSession{SessionID: sessionID, LobbyID: lobbyID, CreatorID: creatorID, MaxPlayers: maxPlayers}, nil
}

func (f *fakeSessions) CompleteSession(ctx context.Context, sessionID, winnerID string, playerIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, completedCall{sessionID, winnerID, playerIDs})
	return nil
}

type received struct {
	Type string
	Raw  json.RawMessage
}

func newTestHub(t *testing.T) (*Hub, *fakeSessions) {
	t.Helper()
	sessions := &fakeSessions{}
	cat := catalog.New([]string{"a.png", "b.png", "c.png", "d.png", "e.png"})
	return NewHub(sessions, cat, zaptest.NewLogger(t)), sessions
}

func newTestClient(t *testing.T, userID string) *connection.Client {
	t.Helper()
	identity := models.Identity{UserID: userID, Username: userID, DisplayName: strings.ToUpper(userID)}
	return connection.NewClient(nil, identity, 64, zaptest.NewLogger(t))
}

// drain は送信キューに溜まったメッセージをすべて取り出す
func drain(t *testing.T, c *connection.Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case data := <-c.Outbound():
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("outbound message is not JSON: %s", data)
			}
			out = append(out, received{Type: env.Type, Raw: data})
		default:
			return out
		}
	}
}

func find(t *testing.T, msgs []received, msgType string, v any) {
	t.Helper()
	for _, m := range msgs {
		if m.Type == msgType {
			if v != nil {
				if err := json.Unmarshal(m.Raw, v); err != nil {
					t.Fatalf("unmarshal %s: %v", msgType, err)
				}
			}
			return
		}
	}
	t.Fatalf("expected %s in %v", msgType, types(msgs))
}

func count(msgs []received, msgType string) int {
	n := 0
	for _, m := range msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func types(msgs []received) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func failureReason(t *testing.T, msgs []received, msgType string) string {
	t.Helper()
	var f models.FailureMessage
	find(t, msgs, msgType, &f)
	return f.Reason
}

func boolPtr(b bool) *bool { return &b }

// setupLobby はownerがロビーを作りguestが参加した状態を返す
func setupLobby(t *testing.T, h *Hub, cfg models.CreateLobbyCommand) (owner, guest *connection.Client, lobby *models.Lobby) {
	t.Helper()
	ctx := context.Background()
	owner = newTestClient(t, "alice")
	guest = newTestClient(t, "bob")

	h.Dispatch(ctx, owner, models.SignCommand{})
	h.Dispatch(ctx, guest, models.SignCommand{})
	h.Dispatch(ctx, owner, cfg)

	var created models.LobbyMessage
	find(t, drain(t, owner), models.OutLobbyCreated, &created)

	h.Dispatch(ctx, guest, models.JoinLobbyCommand{LobbyID: created.Lobby.LobbyID, Password: cfg.Password})
	find(t, drain(t, guest), models.OutLobbyJoined, nil)
	find(t, drain(t, owner), models.OutPlayerJoined, nil)

	lobby, ok := h.Lobbies.Get(created.Lobby.LobbyID)
	if !ok {
		t.Fatal("lobby not registered")
	}
	return owner, guest, lobby
}

// startGame は両者を準備完了にしてownerが開始する
func startGame(t *testing.T, h *Hub, owner, guest *connection.Client) {
	t.Helper()
	ctx := context.Background()
	h.Dispatch(ctx, owner, models.ReadyCommand{Ready: boolPtr(true)})
	h.Dispatch(ctx, guest, models.ReadyCommand{Ready: boolPtr(true)})
	h.Dispatch(ctx, owner, models.StartGameCommand{})
	drain(t, owner)
	drain(t, guest)
}

func TestCreateLobbyBroadcastsPublicList(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner := newTestClient(t, "alice")
	watcher := newTestClient(t, "carol")
	h.Dispatch(ctx, watcher, models.SignCommand{})

	h.Dispatch(ctx, owner, models.CreateLobbyCommand{LobbyName: "fun", MaxImages: 10, Seed: "S"})

	var created models.LobbyMessage
	msgs := drain(t, owner)
	find(t, msgs, models.OutLobbyCreated, &created)
	if created.Lobby.LobbyName != "fun" || created.Lobby.MaxImages != 10 || created.Lobby.Seed != "S" {
		t.Fatalf("unexpected lobby: %+v", created.Lobby)
	}
	if created.Lobby.CreatorID != "alice" || created.Lobby.PlayerCount != 1 {
		t.Fatalf("unexpected owner state: %+v", created.Lobby)
	}
	if owner.LobbyID() != created.Lobby.LobbyID {
		t.Fatal("creator should be in the new lobby")
	}
	if _, ok := h.Clients.Get("alice"); !ok {
		t.Fatal("create_lobby should register the connection")
	}

	var list models.PublicLobbiesMessage
	find(t, drain(t, watcher), models.OutNewLobby, &list)
	if list.Count != 1 || list.PublicLobbies[0].LobbyID != created.Lobby.LobbyID {
		t.Fatalf("unexpected public list: %+v", list)
	}
}

func TestJoinLobbyFailures(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	pw := "secret"
	wrong := "nope"
	owner := newTestClient(t, "alice")
	h.Dispatch(ctx, owner, models.CreateLobbyCommand{Password: &pw})
	var created models.LobbyMessage
	find(t, drain(t, owner), models.OutLobbyCreated, &created)
	lobbyID := created.Lobby.LobbyID

	guest := newTestClient(t, "bob")
	h.Dispatch(ctx, guest, models.JoinLobbyCommand{LobbyID: "missing"})
	if r := failureReason(t, drain(t, guest), models.OutJoinFailed); r != reasonLobbyNotFound {
		t.Fatalf("unexpected reason %q", r)
	}

	h.Dispatch(ctx, guest, models.JoinLobbyCommand{LobbyID: lobbyID, Password: &wrong})
	if r := failureReason(t, drain(t, guest), models.OutJoinFailed); r != reasonIncorrectPass {
		t.Fatalf("unexpected reason %q", r)
	}

	h.Dispatch(ctx, guest, models.JoinLobbyCommand{LobbyID: lobbyID, Password: &pw})
	find(t, drain(t, guest), models.OutLobbyJoined, nil)

	third := newTestClient(t, "carol")
	h.Dispatch(ctx, third, models.JoinLobbyCommand{LobbyID: lobbyID, Password: &pw})
	if r := failureReason(t, drain(t, third), models.OutJoinFailed); r != reasonLobbyFull {
		t.Fatalf("unexpected reason %q", r)
	}

	lobby, _ := h.Lobbies.Get(lobbyID)
	lobby.GameStarted = true
	lobby.RemovePlayer("bob")
	h.Dispatch(ctx, third, models.JoinLobbyCommand{LobbyID: lobbyID, Password: &pw})
	if r := failureReason(t, drain(t, third), models.OutJoinFailed); r != reasonGameStarted {
		t.Fatalf("unexpected reason %q", r)
	}
	if third.LobbyID() != "" {
		t.Fatal("failed join must not set the lobby id")
	}
}

func TestReadyBroadcastsAllReady(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, _ := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, owner, models.ReadyCommand{})
	var changed models.ReadyChangedMessage
	find(t, drain(t, guest), models.OutPlayerReadyChanged, &changed)
	if changed.UserID != "alice" || !changed.IsReady || changed.AllReady {
		t.Fatalf("unexpected ready change: %+v", changed)
	}
	drain(t, owner)

	h.Dispatch(ctx, guest, models.ReadyCommand{Ready: boolPtr(true)})
	find(t, drain(t, owner), models.OutPlayerReadyChanged, &changed)
	if !changed.AllReady {
		t.Fatal("expected all_ready once both are ready")
	}

	// 省略時は反転
	h.Dispatch(ctx, owner, models.ReadyCommand{})
	find(t, drain(t, owner), models.OutPlayerReadyChanged, &changed)
	if changed.IsReady || changed.AllReady {
		t.Fatalf("expected toggle back to not ready: %+v", changed)
	}
}

func TestStartGameScenario(t *testing.T) {
	h, sessions := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{MaxImages: 10, Seed: "S"})

	h.Dispatch(ctx, owner, models.ReadyCommand{Ready: boolPtr(true)})
	h.Dispatch(ctx, guest, models.ReadyCommand{Ready: boolPtr(true)})
	drain(t, owner)
	drain(t, guest)

	h.Dispatch(ctx, owner, models.StartGameCommand{})

	var a, b models.GameStartedMessage
	find(t, drain(t, owner), models.OutGameStarted, &a)
	find(t, drain(t, guest), models.OutGameStarted, &b)

	if len(a.Images) != 5 {
		t.Fatalf("expected min(10, 5) images, got %d", len(a.Images))
	}
	if strings.Join(a.Images, ",") != strings.Join(b.Images, ",") {
		t.Fatalf("clients received different images: %v vs %v", a.Images, b.Images)
	}
	if a.SessionID == "" || a.SessionID != b.SessionID || a.Seed != "S" {
		t.Fatalf("unexpected session or seed: %+v", a)
	}
	if !lobby.GameStarted || lobby.State() != models.StateSelecting {
		t.Fatalf("expected started selecting lobby, got %s", lobby.State())
	}
	if lobby.UserTurn != "alice" && lobby.UserTurn != "bob" {
		t.Fatalf("turn must belong to a player, got %q", lobby.UserTurn)
	}
	if len(sessions.created) != 1 || sessions.created[0] != a.SessionID {
		t.Fatalf("expected one stored session, got %v", sessions.created)
	}
	if sessions.configs[0]["max_images"] != 10 {
		t.Fatalf("unexpected stored config: %v", sessions.configs[0])
	}

	h.Dispatch(ctx, owner, models.StartGameCommand{})
	if r := failureReason(t, drain(t, owner), models.OutStartFailed); r != reasonAlreadyStarted {
		t.Fatalf("unexpected reason %q", r)
	}
}

func TestStartGamePreconditions(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, guest, models.StartGameCommand{})
	if r := failureReason(t, drain(t, guest), models.OutStartFailed); r != reasonNotCreator {
		t.Fatalf("unexpected reason %q", r)
	}

	h.Dispatch(ctx, owner, models.ReadyCommand{Ready: boolPtr(true)})
	drain(t, owner)
	h.Dispatch(ctx, owner, models.StartGameCommand{})
	if r := failureReason(t, drain(t, owner), models.OutStartFailed); r != reasonNotReady {
		t.Fatalf("unexpected reason %q", r)
	}
	if lobby.GameStarted || lobby.Starting {
		t.Fatal("lobby must not advance on failure")
	}
}

func TestStartGamePersistenceFailure(t *testing.T) {
	h, sessions := newTestHub(t)
	sessions.createErr = errors.New("database down")
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	startGame(t, h, owner, guest)
	// startGameはメッセージを捨てるので、もう一度開始して結果を見る
	h.Dispatch(context.Background(), owner, models.StartGameCommand{})
	if r := failureReason(t, drain(t, owner), models.OutStartFailed); r != reasonSessionFailed {
		t.Fatalf("unexpected reason %q", r)
	}
	if count(drain(t, guest), models.OutGameStarted) != 0 {
		t.Fatal("game_started must not be broadcast when the session is not stored")
	}
	if lobby.GameStarted || lobby.Starting {
		t.Fatal("lobby must not be marked started without a stored session")
	}
}

func TestSelectionCompleteFiresOnce(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	startGame(t, h, owner, guest)

	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Mallory"})

	if n := count(drain(t, owner), models.OutSelectionComplete); n != 1 {
		t.Fatalf("expected exactly one selection_complete, got %d", n)
	}
	if n := count(drain(t, guest), models.OutSelectionComplete); n != 1 {
		t.Fatalf("expected exactly one selection_complete for guest, got %d", n)
	}
	if lobby.Owner.Character != "Alice" {
		t.Fatalf("selection must be write-once, got %s", lobby.Owner.Character)
	}
	if lobby.State() != models.StatePlaying {
		t.Fatalf("expected playing state, got %s", lobby.State())
	}
}

func TestCorrectGuessScenario(t *testing.T) {
	h, sessions := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	startGame(t, h, owner, guest)
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	drain(t, owner)
	drain(t, guest)

	lobby.UserTurn = "alice"
	sessionID := lobby.SessionID
	h.Dispatch(ctx, owner, models.GuessCommand{Character: "Bob"})

	var result models.GuessResultMessage
	find(t, drain(t, owner), models.OutCorrectGuess, &result)
	if result.Character != "Bob" {
		t.Fatalf("unexpected guess result: %+v", result)
	}
	guestMsgs := drain(t, guest)
	find(t, guestMsgs, models.OutPlayerScored, nil)
	if count(guestMsgs, models.OutCorrectGuess) != 0 {
		t.Fatal("opponent must not receive correct_guess")
	}
	if lobby.UserTurn != "bob" {
		t.Fatalf("expected turn to flip to bob, got %s", lobby.UserTurn)
	}
	if len(sessions.completed) != 1 || sessions.completed[0].winnerID != "alice" || sessions.completed[0].sessionID != sessionID {
		t.Fatalf("expected result recorded for alice, got %+v", sessions.completed)
	}
}

func TestIncorrectGuessSwitchesTurn(t *testing.T) {
	h, sessions := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	startGame(t, h, owner, guest)
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	drain(t, owner)
	drain(t, guest)

	lobby.UserTurn = "bob"
	h.Dispatch(ctx, guest, models.GuessCommand{Character: "Zed"})

	guestMsgs := drain(t, guest)
	find(t, guestMsgs, models.OutIncorrectGuess, nil)
	find(t, guestMsgs, models.OutUpdateLobby, nil)
	var update models.LobbyMessage
	find(t, drain(t, owner), models.OutUpdateLobby, &update)
	if update.Lobby.UserTurn != "alice" || lobby.UserTurn != "alice" {
		t.Fatalf("expected turn to flip to alice, got %s", lobby.UserTurn)
	}
	if len(sessions.completed) != 0 {
		t.Fatal("incorrect guess must not record a result")
	}

	// 空のキャラクターは無視
	h.Dispatch(ctx, guest, models.GuessCommand{})
	if len(drain(t, guest)) != 0 {
		t.Fatal("guess without character should be ignored")
	}
}

func TestEndTurn(t *testing.T) {
	h, _ := newTestHub(t)
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	startGame(t, h, owner, guest)

	lobby.UserTurn = "bob"

	// 手番でないプレイヤーのターン終了は無視
	h.Dispatch(context.Background(), owner, models.EndTurnCommand{})
	if lobby.UserTurn != "bob" || count(drain(t, guest), models.OutEndTurn) != 0 {
		t.Fatalf("end_turn out of turn must be ignored, turn=%s", lobby.UserTurn)
	}

	h.Dispatch(context.Background(), guest, models.EndTurnCommand{})
	var msg models.LobbyMessage
	find(t, drain(t, owner), models.OutEndTurn, &msg)
	if lobby.UserTurn != "alice" || msg.Lobby.UserTurn != "alice" {
		t.Fatalf("expected turn to pass to alice, got %s", lobby.UserTurn)
	}
}

func TestRematchRedrawsAndClears(t *testing.T) {
	h, sessions := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{Seed: "S"})
	startGame(t, h, owner, guest)
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	drain(t, owner)
	drain(t, guest)
	lobbyID := lobby.LobbyID

	h.Dispatch(ctx, owner, models.StartGameCommand{IsRematch: true})

	var msg models.GameStartedMessage
	find(t, drain(t, guest), models.OutRematchStarted, &msg)
	if msg.Seed == "S" || lobby.Seed != msg.Seed {
		t.Fatalf("expected a fresh seed, got %s", msg.Seed)
	}
	if msg.Lobby.LobbyID != lobbyID {
		t.Fatal("rematch must keep the lobby id")
	}
	if lobby.Owner.Character != "" || lobby.SecondPlayer.Character != "" {
		t.Fatal("rematch must clear secret picks")
	}
	if lobby.State() != models.StateSelecting {
		t.Fatalf("expected selecting state, got %s", lobby.State())
	}
	if len(sessions.created) != 2 {
		t.Fatalf("expected a new session record for the rematch, got %d", len(sessions.created))
	}

	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Carol"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Dave"})
	if count(drain(t, owner), models.OutSelectionComplete) != 1 {
		t.Fatal("selection_complete should fire again after a rematch")
	}
}

func TestKickPlayerScenario(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, guest, models.KickPlayerCommand{UserID: "alice"})
	if r := failureReason(t, drain(t, guest), models.OutKickFailed); r != reasonNotCreator {
		t.Fatalf("unexpected reason %q", r)
	}
	h.Dispatch(ctx, owner, models.KickPlayerCommand{UserID: "alice"})
	if r := failureReason(t, drain(t, owner), models.OutKickFailed); r != reasonCannotKickSelf {
		t.Fatalf("unexpected reason %q", r)
	}

	h.Dispatch(ctx, owner, models.KickPlayerCommand{UserID: "bob"})

	var kicked models.KickedMessage
	find(t, drain(t, guest), models.OutKicked, &kicked)
	if kicked.LobbyID != lobby.LobbyID {
		t.Fatalf("unexpected kicked message: %+v", kicked)
	}
	if guest.LobbyID() != "" {
		t.Fatal("kicked player's lobby id must be cleared")
	}
	var msg models.LobbyMessage
	find(t, drain(t, owner), models.OutPlayerKicked, &msg)
	if msg.UserID != "bob" || msg.Lobby.PlayerCount != 1 {
		t.Fatalf("unexpected player_kicked: %+v", msg)
	}
	if _, ok := h.Lobbies.Get(lobby.LobbyID); !ok {
		t.Fatal("lobby with its owner must not be deleted")
	}
}

func TestOwnerLeavesPromotesGuest(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, owner, models.LeaveLobbyCommand{})

	var msg models.LobbyMessage
	find(t, drain(t, guest), models.OutPlayerLeftInResults, &msg)
	if msg.Lobby.Owner == nil || msg.Lobby.Owner.UserID != "bob" {
		t.Fatalf("expected bob promoted, got %+v", msg.Lobby.Owner)
	}
	if lobby.CreatorID != "alice" {
		t.Fatalf("creator id must stay alice, got %s", lobby.CreatorID)
	}
	ownerMsgs := drain(t, owner)
	if count(ownerMsgs, models.OutPlayerLeftInResults) != 0 {
		t.Fatal("leaver must not receive player_left_in_results")
	}
	find(t, ownerMsgs, models.OutNewLobby, nil)
	if owner.LobbyID() != "" {
		t.Fatal("leaver's lobby id must be cleared")
	}

	// 作成者ではなくなったbobは開始できない
	h.Dispatch(ctx, guest, models.ReadyCommand{Ready: boolPtr(true)})
	h.Dispatch(ctx, guest, models.StartGameCommand{})
	if r := failureReason(t, drain(t, guest), models.OutStartFailed); r != reasonNotCreator {
		t.Fatalf("unexpected reason %q", r)
	}

	h.Dispatch(ctx, guest, models.LeaveLobbyCommand{InResult: true})
	if _, ok := h.Lobbies.Get(lobby.LobbyID); ok {
		t.Fatal("empty lobby should be deleted")
	}
}

func TestChatMessage(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, _ := setupLobby(t, h, models.CreateLobbyCommand{})
	outsider := newTestClient(t, "carol")
	h.Dispatch(ctx, outsider, models.SignCommand{})

	h.Dispatch(ctx, owner, models.ChatCommand{Message: "   "})
	find(t, drain(t, owner), models.OutChatFailed, nil)
	h.Dispatch(ctx, owner, models.ChatCommand{Message: strings.Repeat("あ", 501)})
	find(t, drain(t, owner), models.OutChatFailed, nil)

	h.Dispatch(ctx, owner, models.ChatCommand{Message: strings.Repeat("あ", 500)})
	var chat models.ChatMessage
	find(t, drain(t, guest), models.OutChatMessage, &chat)
	if chat.From != "alice" || chat.DisplayName != "ALICE" || chat.Timestamp == "" {
		t.Fatalf("unexpected chat message: %+v", chat)
	}
	find(t, drain(t, owner), models.OutChatMessage, nil)
	if count(drain(t, outsider), models.OutChatMessage) != 0 {
		t.Fatal("chat must stay inside the lobby")
	}
}

func TestDisconnectTeardown(t *testing.T) {
	h, _ := newTestHub(t)
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Disconnect(guest)

	var msg models.LobbyMessage
	ownerMsgs := drain(t, owner)
	find(t, ownerMsgs, models.OutPlayerLeft, &msg)
	find(t, ownerMsgs, models.OutNewLobby, nil)
	if msg.UserID != "bob" || msg.Lobby.PlayerCount != 1 {
		t.Fatalf("unexpected player_left: %+v", msg)
	}
	if _, ok := h.Clients.Get("bob"); ok {
		t.Fatal("connection must be removed from the registry")
	}
	select {
	case <-guest.Done():
	default:
		t.Fatal("connection must be closed")
	}

	h.Disconnect(owner)
	if _, ok := h.Lobbies.Get(lobby.LobbyID); ok {
		t.Fatal("empty lobby should be deleted on disconnect")
	}
	if h.Clients.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", h.Clients.Len())
	}
}

func TestSupersededConnectionKeepsSeat(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, _, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	reconnected := newTestClient(t, "alice")
	h.Dispatch(ctx, reconnected, models.SignCommand{})
	h.Disconnect(owner)

	if !lobby.HasPlayer("alice") {
		t.Fatal("reconnected user must keep the seat")
	}
	if reconnected.LobbyID() != lobby.LobbyID {
		t.Fatal("seat should be handed to the newer connection")
	}
	if got, _ := h.Clients.Get("alice"); got != reconnected {
		t.Fatal("registry must keep the newer connection")
	}
}

func TestSweepEmptyLobbies(t *testing.T) {
	h, _ := newTestHub(t)
	owner, _, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	drain(t, owner)

	lobby.RemovePlayer("alice")
	lobby.RemovePlayer("bob")
	if n := h.SweepEmptyLobbies(); n != 1 {
		t.Fatalf("expected one lobby swept, got %d", n)
	}
	find(t, drain(t, owner), models.OutNewLobby, nil)
	if n := h.SweepEmptyLobbies(); n != 0 {
		t.Fatalf("expected nothing to sweep, got %d", n)
	}
}

func TestUnknownAndPongAreIgnored(t *testing.T) {
	h, _ := newTestHub(t)
	c := newTestClient(t, "alice")
	h.Dispatch(context.Background(), c, models.UnknownCommand{Type: "discard_character"})
	h.Dispatch(context.Background(), c, models.PongCommand{})
	if len(drain(t, c)) != 0 {
		t.Fatal("unknown and pong must not produce replies")
	}
}

func TestGuessRequiresTurn(t *testing.T) {
	h, sessions := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, owner, models.GuessCommand{Character: "Bob"})
	if r := failureReason(t, drain(t, owner), models.OutGuessFailed); r != reasonGameNotStarted {
		t.Fatalf("unexpected reason %q", r)
	}

	startGame(t, h, owner, guest)
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	drain(t, owner)
	drain(t, guest)

	lobby.UserTurn = "bob"
	h.Dispatch(ctx, owner, models.GuessCommand{Character: "Bob"})

	ownerMsgs := drain(t, owner)
	if r := failureReason(t, ownerMsgs, models.OutGuessFailed); r != reasonNotYourTurn {
		t.Fatalf("unexpected reason %q", r)
	}
	if count(ownerMsgs, models.OutCorrectGuess) != 0 || count(ownerMsgs, models.OutIncorrectGuess) != 0 {
		t.Fatalf("guess out of turn must not be judged: %v", types(ownerMsgs))
	}
	if len(drain(t, guest)) != 0 {
		t.Fatal("opponent must not hear about a rejected guess")
	}
	if lobby.UserTurn != "bob" {
		t.Fatalf("turn must stay with bob, got %s", lobby.UserTurn)
	}
	if len(sessions.completed) != 0 {
		t.Fatal("rejected guess must not record a result")
	}

	outsider := newTestClient(t, "carol")
	h.Dispatch(ctx, outsider, models.GuessCommand{Character: "Bob"})
	if r := failureReason(t, drain(t, outsider), models.OutGuessFailed); r != reasonNotInLobby {
		t.Fatalf("unexpected reason %q", r)
	}
}

func TestSelectionBeforeStartIsIgnored(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	if n := count(drain(t, owner), models.OutSelectionComplete); n != 0 {
		t.Fatalf("selection_complete must not fire before start, got %d", n)
	}
	if lobby.Owner.Character != "" || lobby.SecondPlayer.Character != "" {
		t.Fatal("picks before start must not be recorded")
	}

	startGame(t, h, owner, guest)
	if lobby.State() != models.StateSelecting {
		t.Fatalf("expected selecting state after start, got %s", lobby.State())
	}
	h.Dispatch(ctx, owner, models.SelectCharacterCommand{Character: "Alice"})
	h.Dispatch(ctx, guest, models.SelectCharacterCommand{Character: "Bob"})
	if n := count(drain(t, guest), models.OutSelectionComplete); n != 1 {
		t.Fatalf("expected one selection_complete after start, got %d", n)
	}
}

func TestSupersededConnectionInOtherLobbyReleasesSeat(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})

	reconnected := newTestClient(t, "alice")
	h.Dispatch(ctx, reconnected, models.SignCommand{})
	h.Dispatch(ctx, reconnected, models.CreateLobbyCommand{LobbyName: "second"})
	var created models.LobbyMessage
	find(t, drain(t, reconnected), models.OutLobbyCreated, &created)
	drain(t, guest)

	h.Disconnect(owner)

	if lobby.HasPlayer("alice") {
		t.Fatal("old seat must be released")
	}
	var msg models.LobbyMessage
	find(t, drain(t, guest), models.OutPlayerLeft, &msg)
	if msg.Lobby.PlayerCount != 1 || msg.Lobby.Owner == nil || msg.Lobby.Owner.UserID != "bob" {
		t.Fatalf("unexpected player_left: %+v", msg.Lobby)
	}
	if reconnected.LobbyID() != created.Lobby.LobbyID {
		t.Fatal("newer connection must stay in its own lobby")
	}
	if got, _ := h.Clients.Get("alice"); got != reconnected {
		t.Fatal("registry must keep the newer connection")
	}
}

func TestLeavingStartedGameReopensLobby(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	owner, guest, lobby := setupLobby(t, h, models.CreateLobbyCommand{})
	startGame(t, h, owner, guest)

	h.Dispatch(ctx, guest, models.LeaveLobbyCommand{InResult: true})

	var msg models.LobbyMessage
	find(t, drain(t, owner), models.OutPlayerLeftInResults, &msg)
	if msg.Lobby.GameStarted || msg.Lobby.UserTurn != "" {
		t.Fatalf("remaining player should see a reset lobby: %+v", msg.Lobby)
	}
	if lobby.SessionID != "" || lobby.Owner.IsReady {
		t.Fatal("abandoned round must be cleared")
	}
	listed := false
	for _, v := range h.PublicLobbies() {
		if v.LobbyID == lobby.LobbyID {
			listed = true
		}
	}
	if !listed {
		t.Fatal("lobby should be public again")
	}

	carol := newTestClient(t, "carol")
	h.Dispatch(ctx, carol, models.JoinLobbyCommand{LobbyID: lobby.LobbyID})
	find(t, drain(t, carol), models.OutLobbyJoined, nil)
}
