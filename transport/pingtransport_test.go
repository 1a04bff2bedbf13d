package transport

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/foobarren/freeswitch-old/crypto"
	"github.com/foobarren/freeswitch-old/dht"
	"github.com/foobarren/freeswitch-old/nodeid"
)

type recordingNotifier struct {
	touched chan nodeid.ID
	expired chan nodeid.ID
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		touched: make(chan nodeid.ID, 4),
		expired: make(chan nodeid.ID, 4),
	}
}

func (n *recordingNotifier) Touch(id nodeid.ID)  { n.touched <- id }
func (n *recordingNotifier) Expire(id nodeid.ID) { n.expired <- id }

func TestPingTransportIKRoundTrip(t *testing.T) {
	kpInitiator, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}
	kpResponder, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}

	initiatorNotifier := newRecordingNotifier()
	responderNotifier := newRecordingNotifier()

	initiator, err := NewPingTransport("127.0.0.1:0", kpInitiator, initiatorNotifier)
	if err != nil {
		t.Fatalf("NewPingTransport() error: %v", err)
	}
	defer initiator.Close()

	responder, err := NewPingTransport("127.0.0.1:0", kpResponder, responderNotifier)
	if err != nil {
		t.Fatalf("NewPingTransport() error: %v", err)
	}
	defer responder.Close()

	target := nodeid.ID{0x42}
	initiator.RegisterPeerKey(target, kpResponder.Public[:])

	req := dht.PingRequest{
		TransactionID: uuid.New(),
		Target:        target,
		Addr:          responder.LocalAddr(),
	}

	if err := initiator.Ping(req); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	select {
	case got := <-initiatorNotifier.touched:
		if got != target {
			t.Errorf("Touch() target = %v, want %v", got, target)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Touch after ping round trip")
	}
}

func TestPingTransportXXFallback(t *testing.T) {
	kpInitiator, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}
	kpResponder, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}

	initiatorNotifier := newRecordingNotifier()
	responderNotifier := newRecordingNotifier()

	initiator, err := NewPingTransport("127.0.0.1:0", kpInitiator, initiatorNotifier)
	if err != nil {
		t.Fatalf("NewPingTransport() error: %v", err)
	}
	defer initiator.Close()

	responder, err := NewPingTransport("127.0.0.1:0", kpResponder, responderNotifier)
	if err != nil {
		t.Fatalf("NewPingTransport() error: %v", err)
	}
	defer responder.Close()

	// No RegisterPeerKey call: Ping must fall back to the XX pattern.
	target := nodeid.ID{0x7}
	req := dht.PingRequest{
		TransactionID: uuid.New(),
		Target:        target,
		Addr:          responder.LocalAddr(),
	}

	if err := initiator.Ping(req); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	select {
	case got := <-initiatorNotifier.touched:
		if got != target {
			t.Errorf("Touch() target = %v, want %v", got, target)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Touch after XX round trip")
	}
}
