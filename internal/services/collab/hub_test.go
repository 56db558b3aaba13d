package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
	"github.com/dictumlegal/dictum/internal/models"
)

type fakeLetterStore struct {
	mu      sync.Mutex
	letters map[string]*models.DemandLetter
	saves   int
}

func newFakeLetterStore() *fakeLetterStore {
	return &fakeLetterStore{letters: make(map[string]*models.DemandLetter)}
}

func (f *fakeLetterStore) Get(ctx context.Context, id string) (*models.DemandLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.letters[id]
	if !ok {
		return nil, fmt.Errorf("letter %s: %w", id, interfaces.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLetterStore) Save(ctx context.Context, letter *models.DemandLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *letter
	f.letters[letter.LetterID] = &cp
	f.saves++
	return nil
}

func (f *fakeLetterStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeLetterStore) UpdateSyncState(ctx context.Context, id string, state string, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.letters[id]
	if !ok {
		return fmt.Errorf("letter %s: %w", id, interfaces.ErrNotFound)
	}
	l.SyncState = state
	l.SyncSeq = seq
	l.ModifiedAt = time.Now()
	return nil
}

func (f *fakeLetterStore) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeLetterStore) ListByFirm(ctx context.Context, firmID string) ([]*models.DemandLetter, error) {
	return nil, nil
}

func (f *fakeLetterStore) Close() error { return nil }

// collabServer exposes the hub over httptest with the user in the query.
func collabServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		letterID := r.URL.Query().Get("letter")
		userID := r.URL.Query().Get("user")
		if err := hub.Join(w, r, letterID, userID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, letterID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?letter=" + letterID + "&user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads messages until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", msgType)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHubJoinReceivesSnapshot(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{
		LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1",
		SyncState: "c2VlZC1zdGF0ZQ==", SyncSeq: 5,
	}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	conn := dial(t, srv, "ltr1", "u1")
	hello := readType(t, conn, MsgHello)

	assert.Equal(t, int64(5), hello.Seq)
	assert.Equal(t, "c2VlZC1zdGF0ZQ==", hello.Payload)
	assert.Equal(t, 1, hello.Editors)
}

func TestHubJoinUnknownLetter(t *testing.T) {
	hub := NewHub(newFakeLetterStore(), common.NewSilentLogger())
	srv := collabServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?letter=nope&user=u1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubRelaysUpdatesWithSequence(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1"}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	alice := dial(t, srv, "ltr1", "alice")
	readType(t, alice, MsgHello)

	bob := dial(t, srv, "ltr1", "bob")
	readType(t, bob, MsgHello)

	// Updates are relayed to the other editor, not echoed back
	send(t, alice, Message{Type: MsgUpdate, Payload: "ZGVsdGEtMQ=="})
	got := readType(t, bob, MsgUpdate)
	assert.Equal(t, "ZGVsdGEtMQ==", got.Payload)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, int64(1), got.Seq)

	send(t, bob, Message{Type: MsgUpdate, Payload: "ZGVsdGEtMg=="})
	got = readType(t, alice, MsgUpdate)
	assert.Equal(t, int64(2), got.Seq)
	assert.Equal(t, "bob", got.Sender)
}

func TestHubPersistsSnapshot(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1"}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	conn := dial(t, srv, "ltr1", "alice")
	readType(t, conn, MsgHello)

	send(t, conn, Message{Type: MsgUpdate, Payload: "ZQ=="})
	send(t, conn, Message{Type: MsgSnapshot, Payload: "ZnVsbC1zdGF0ZQ=="})

	require.Eventually(t, func() bool {
		letter, err := store.Get(context.Background(), "ltr1")
		return err == nil && letter.SyncState == "ZnVsbC1zdGF0ZQ=="
	}, 5*time.Second, 20*time.Millisecond)

	letter, err := store.Get(context.Background(), "ltr1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), letter.SyncSeq)
}

func TestHubSnapshotPersistLeavesContentEdits(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{
		LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1", Content: "draft body",
	}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	conn := dial(t, srv, "ltr1", "alice")
	readType(t, conn, MsgHello)

	// A REST edit lands while the editing session is open.
	letter, err := store.Get(context.Background(), "ltr1")
	require.NoError(t, err)
	letter.Content = "revised body"
	require.NoError(t, store.Save(context.Background(), letter))

	send(t, conn, Message{Type: MsgUpdate, Payload: "ZQ=="})
	send(t, conn, Message{Type: MsgSnapshot, Payload: "c25hcA=="})

	require.Eventually(t, func() bool {
		l, err := store.Get(context.Background(), "ltr1")
		return err == nil && l.SyncState == "c25hcA=="
	}, 5*time.Second, 20*time.Millisecond)

	got, err := store.Get(context.Background(), "ltr1")
	require.NoError(t, err)
	assert.Equal(t, "revised body", got.Content)
	assert.Equal(t, int64(1), got.SyncSeq)

	// The persist touched only sync fields, never the whole record.
	assert.Equal(t, 1, store.saveCount())
}

func TestHubEvictsEmptyRooms(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1"}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	conn := dial(t, srv, "ltr1", "alice")
	readType(t, conn, MsgHello)
	assert.Equal(t, 1, hub.RoomCount())

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.RoomCount() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHubStopPersistsAndRejectsJoins(t *testing.T) {
	store := newFakeLetterStore()
	store.letters["ltr1"] = &models.DemandLetter{LetterID: "ltr1", FirmID: "firm1", OwnerID: "u1"}
	hub := NewHub(store, common.NewSilentLogger())
	srv := collabServer(t, hub)

	conn := dial(t, srv, "ltr1", "alice")
	readType(t, conn, MsgHello)
	send(t, conn, Message{Type: MsgUpdate, Payload: "ZQ=="})

	// Give the relay a moment to process the update before stopping
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		r, ok := hub.rooms["ltr1"]
		if !ok {
			return false
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.seq == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.Stop()

	letter, err := store.Get(context.Background(), "ltr1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), letter.SyncSeq)

	// New joins are refused while shutting down
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?letter=ltr1&user=bob"
	_, resp, dialErr := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, dialErr)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
