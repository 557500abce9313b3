package core

import (
	"testing"

	"github.com/relaychat/relay-server/internal/store"
)

func TestHubJoinPresenceAndRoomSync(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")

	bob := connect(t, hub, "b", "bob")

	// Alice learns that bob came online.
	pres := mustEvent(t, alice.Events, EventPresence)
	if pres.User != "bob" || !pres.Online {
		t.Fatalf("unexpected presence event: %+v", pres)
	}

	// Bob's join response carries the (empty) room history; alice gets
	// a joined notice but bob does not hear about himself.
	hist := joinRoom(t, bob, "general")
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(hist.Messages))
	}

	joined := mustEvent(t, alice.Events, EventUserJoined)
	if joined.User != "bob" || joined.Room != "general" {
		t.Fatalf("unexpected join notice: %+v", joined)
	}
	mustNoEvent(t, bob.Events, EventUserJoined)
}

func TestHubRoomBroadcastIncludesSender(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")

	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "hi"}

	// Both sides get the same stored message, sender included, so no
	// extra history fetch is needed to see it.
	forAlice := mustEvent(t, alice.Events, EventRoomMessage)
	forBob := mustEvent(t, bob.Events, EventRoomMessage)

	if forAlice.Message == nil || forBob.Message == nil {
		t.Fatal("expected message payloads on both events")
	}
	if forAlice.Message.ID != forBob.Message.ID {
		t.Fatalf("message IDs differ: %d vs %d", forAlice.Message.ID, forBob.Message.ID)
	}
	if !forAlice.Message.CreatedAt.Equal(forBob.Message.CreatedAt) {
		t.Fatal("message timestamps differ between recipients")
	}
	if forBob.Message.From != "alice" || forBob.Message.Body != "hi" {
		t.Fatalf("unexpected message: %+v", forBob.Message)
	}
}

func TestHubPrivateMessageDeliveredAndEchoed(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "lobby") // history reply proves bob's identity is bound

	alice.Commands <- &Command{Kind: CommandSendPrivate, To: "bob", Body: "secret"}

	delivered := mustEvent(t, bob.Events, EventPrivateMessage)
	if delivered.Message.From != "alice" || delivered.Message.Body != "secret" {
		t.Fatalf("unexpected dm: %+v", delivered.Message)
	}
	if delivered.Room != DirectRoomName("alice", "bob") {
		t.Fatalf("unexpected dm room: %q", delivered.Room)
	}

	echo := mustEvent(t, alice.Events, EventPrivateMessage)
	if echo.Message.ID != delivered.Message.ID {
		t.Fatalf("echo carries different message: %d vs %d", echo.Message.ID, delivered.Message.ID)
	}

	// Exactly one delivery each.
	mustNoEvent(t, bob.Events, EventPrivateMessage)
	mustNoEvent(t, alice.Events, EventPrivateMessage)
}

func TestHubPrivateMessageToOfflineIdentity(t *testing.T) {
	hub, st := startHub(t)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- &Command{Kind: CommandSendPrivate, To: "carol", Body: "hello"}

	// The sender still gets its echo and the message is durable.
	echo := mustEvent(t, alice.Events, EventPrivateMessage)
	dmRoom := DirectRoomName("alice", "carol")
	if echo.Room != dmRoom {
		t.Fatalf("unexpected dm room: %q", echo.Room)
	}
	if got := st.messages(dmRoom); len(got) != 1 || got[0].Body != "hello" {
		t.Fatalf("expected one stored dm, got %+v", got)
	}

	// Carol joins later and finds it in the room history.
	carol := connect(t, hub, "c", "carol")
	hist := joinRoom(t, carol, dmRoom)
	if len(hist.Messages) != 1 || hist.Messages[0].Body != "hello" || hist.Messages[0].From != "alice" {
		t.Fatalf("unexpected dm history: %+v", hist.Messages)
	}
}

func TestHubDisconnectRevokesMembershipAndPresence(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")
	joinRoom(t, alice, DirectRoomName("alice", "bob"))
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")
	mustEvent(t, alice.Events, EventUserJoined)

	hub.UnregisterClient(alice)

	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User != "alice" || left.Room != "general" {
		t.Fatalf("unexpected leave notice: %+v", left)
	}
	offline := mustEvent(t, bob.Events, EventPresence)
	if offline.User != "alice" || offline.Online {
		t.Fatalf("unexpected presence event: %+v", offline)
	}

	// The dead connection's event channel closes once teardown is done.
	for range alice.Events {
	}

	// Unregistering again must be a harmless no-op, and the room keeps
	// working for the remaining member.
	hub.UnregisterClient(alice)
	bob.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "still here"}
	ev := mustEvent(t, bob.Events, EventRoomMessage)
	if ev.Message.Body != "still here" {
		t.Fatalf("unexpected message after disconnect: %+v", ev.Message)
	}
}

func TestHubSendWithoutMembershipRejected(t *testing.T) {
	hub, st := startHub(t)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")

	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "hi"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotMember {
		t.Fatalf("expected not_member error, got %+v", ev)
	}
	if got := st.messages("general"); len(got) != 0 {
		t.Fatalf("rejected message was persisted: %+v", got)
	}
	mustNoEvent(t, bob.Events, EventRoomMessage)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")

	// Second consecutive join has no observable effect.
	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "general"}
	mustNoEvent(t, alice.Events, EventHistory)
	mustNoEvent(t, alice.Events, EventError)

	// Still a member: sends go through.
	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "one"}
	mustEvent(t, alice.Events, EventRoomMessage)

	// Leave, then leave again: membership collapses to join/leave parity.
	alice.Commands <- &Command{Kind: CommandLeaveRoom, Room: "general"}
	alice.Commands <- &Command{Kind: CommandLeaveRoom, Room: "general"}
	mustNoEvent(t, alice.Events, EventError)

	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "two"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotMember {
		t.Fatalf("expected not_member after leave, got %+v", ev)
	}
}

func TestHubRoomCommandsBeforeHelloRejected(t *testing.T) {
	hub, _ := startHub(t)

	c := NewClient("x")
	hub.RegisterClient(c)

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: "general"}

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInvalidConnection {
		t.Fatalf("expected invalid_connection error, got %+v", ev)
	}
}

func TestHubLastJoinWinsIdentityRebinding(t *testing.T) {
	hub, _ := startHub(t)

	first := connect(t, hub, "a1", "alice")
	joinRoom(t, first, "sync-a1")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "sync-b")

	// A second connection claims the same identity and supersedes it.
	second := connect(t, hub, "a2", "alice")
	joinRoom(t, second, "sync-a2")

	bob.Commands <- &Command{Kind: CommandSendPrivate, To: "alice", Body: "ping"}
	mustEvent(t, second.Events, EventPrivateMessage)
	mustNoEvent(t, first.Events, EventPrivateMessage)

	// The stale connection's disconnect must not evict the new binding.
	hub.UnregisterClient(first)
	mustEvent(t, bob.Events, EventPrivateMessage) // bob's own echo from before

	bob.Commands <- &Command{Kind: CommandSendPrivate, To: "alice", Body: "pong"}
	ev := mustEvent(t, second.Events, EventPrivateMessage)
	if ev.Message.Body != "pong" {
		t.Fatalf("unexpected dm after rebinding: %+v", ev.Message)
	}
}

func TestHubRehelloReleasesPreviousIdentity(t *testing.T) {
	hub, st := startHub(t)

	a := connect(t, hub, "a", "alice")
	joinRoom(t, a, "sync-a")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "sync-b")

	// The connection takes a new identity; the old one goes offline.
	a.Commands <- &Command{Kind: CommandHello, User: "amelia"}
	joinRoom(t, a, "sync-a2")

	bob.Commands <- &Command{Kind: CommandSendPrivate, To: "alice", Body: "ping"}
	mustEvent(t, bob.Events, EventPrivateMessage) // bob's own echo
	mustNoEvent(t, a.Events, EventPrivateMessage)

	// The message stays durable for alice to find on a later connect.
	if got := st.messages(DirectRoomName("alice", "bob")); len(got) != 1 || got[0].Body != "ping" {
		t.Fatalf("expected one stored dm for alice, got %+v", got)
	}

	// The new identity routes to the connection.
	bob.Commands <- &Command{Kind: CommandSendPrivate, To: "amelia", Body: "hi"}
	ev := mustEvent(t, a.Events, EventPrivateMessage)
	if ev.Message.Body != "hi" || ev.Room != DirectRoomName("amelia", "bob") {
		t.Fatalf("unexpected dm after rebinding: %+v", ev)
	}
}

func TestHubTypingExcludesSender(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")
	mustEvent(t, alice.Events, EventUserJoined)

	alice.Commands <- &Command{Kind: CommandTyping, Room: "general", IsTyping: true}

	ev := mustEvent(t, bob.Events, EventTyping)
	if ev.User != "alice" || !ev.IsTyping {
		t.Fatalf("unexpected typing event: %+v", ev)
	}
	mustNoEvent(t, alice.Events, EventTyping)

	alice.Commands <- &Command{Kind: CommandTyping, Room: "general", IsTyping: false}
	stop := mustEvent(t, bob.Events, EventTyping)
	if stop.IsTyping {
		t.Fatal("expected typing stop")
	}
}

func TestHubTypingRequiresMembership(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	alice.Commands <- &Command{Kind: CommandTyping, Room: "general", IsTyping: true}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotMember {
		t.Fatalf("expected not_member error, got %+v", ev)
	}
}

func TestHubMarkReadNotifiesOthers(t *testing.T) {
	hub, st := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")
	mustEvent(t, alice.Events, EventUserJoined)

	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "hi"}
	sent := mustEvent(t, bob.Events, EventRoomMessage)
	mustEvent(t, alice.Events, EventRoomMessage)

	bob.Commands <- &Command{Kind: CommandMarkRead, Room: "general", MessageIDs: []int64{sent.Message.ID}}

	ev := mustEvent(t, alice.Events, EventRead)
	if ev.User != "bob" || len(ev.MessageIDs) != 1 || ev.MessageIDs[0] != sent.Message.ID {
		t.Fatalf("unexpected read event: %+v", ev)
	}
	mustNoEvent(t, bob.Events, EventRead)

	msgs := st.messages("general")
	if len(msgs) != 1 || len(msgs[0].ReadBy) != 2 {
		t.Fatalf("expected read set {alice, bob}, got %+v", msgs)
	}
}

func TestHubStoreFailureReachesOnlySender(t *testing.T) {
	hub, st := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")
	bob := connect(t, hub, "b", "bob")
	joinRoom(t, bob, "general")
	mustEvent(t, alice.Events, EventUserJoined)

	st.setFailing(true)
	alice.Commands <- &Command{Kind: CommandSendRoomMessage, Room: "general", Body: "hi"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeStoreUnavailable {
		t.Fatalf("expected store_unavailable error, got %+v", ev)
	}
	mustNoEvent(t, bob.Events, EventRoomMessage)
}

func TestHubRejectsUnknownContentType(t *testing.T) {
	hub, _ := startHub(t)

	alice := connect(t, hub, "a", "alice")
	joinRoom(t, alice, "general")

	alice.Commands <- &Command{
		Kind:        CommandSendRoomMessage,
		Room:        "general",
		Body:        "payload",
		ContentType: store.ContentType("video"),
	}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeBadEvent {
		t.Fatalf("expected bad_event error, got %+v", ev)
	}
}

func TestDirectRoomNameIsOrderIndependent(t *testing.T) {
	if DirectRoomName("alice", "bob") != DirectRoomName("bob", "alice") {
		t.Fatal("dm room name depends on argument order")
	}
	if DirectRoomName("alice", "bob") != "dm:alice:bob" {
		t.Fatalf("unexpected dm room name: %q", DirectRoomName("alice", "bob"))
	}
}
