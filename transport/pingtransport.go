package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	flnoise "github.com/flynn/noise"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/foobarren/freeswitch-old/crypto"
	"github.com/foobarren/freeswitch-old/dht"
	"github.com/foobarren/freeswitch-old/nodeid"
	"github.com/foobarren/freeswitch-old/noise"
)

// TableNotifier is the slice of dht.Table that PingTransport needs to
// report probe outcomes back to. *dht.Table satisfies this directly.
type TableNotifier interface {
	Touch(id nodeid.ID)
	Expire(id nodeid.ID)
}

// handshaker is the common surface of noise.IKHandshake and
// noise.XXHandshake that PingTransport drives without caring which
// pattern a given session negotiated.
type handshaker interface {
	WriteMessage(payload, receivedMessage []byte) ([]byte, bool, error)
	ReadMessage(message []byte) ([]byte, bool, error)
	IsComplete() bool
	GetCipherStates() (*flnoise.CipherState, *flnoise.CipherState, error)
}

// session tracks one peer's handshake progress and, once established, the
// cipher states used to seal ping/pong traffic exchanged with it.
type session struct {
	hs         handshaker
	sendCipher *flnoise.CipherState
	recvCipher *flnoise.CipherState
	// pendingTxn is the probe that triggered this handshake, sent as soon
	// as the session is established.
	pendingTxn uuid.UUID
	hasPending bool
}

// pendingPing is an outstanding probe awaiting either a pong or a sweep
// timeout (handled entirely by the Table; PingTransport just needs to know
// which node a transaction ID belongs to so it can Touch it on reply).
type pendingPing struct {
	target nodeid.ID
	addr   net.Addr
}

// PingTransport is the dht.Pinger implementation that actually puts probes
// on the wire: a UDP socket carrying Noise-encrypted ping/pong packets.
// Ping requests dispatched by a Table's sweep are non-blocking — they hand
// the probe to a background goroutine (the underlying UDPTransport's read
// loop). A matching pong is reported back through Touch. PingTransport has
// no probe timeout and never calls Expire; an unanswered probe stays in its
// pending map and is left to the Table's own sweep.
//
//export DHTPingTransport
type PingTransport struct {
	udp      Transport
	keyPair  *crypto.KeyPair
	notifier TableNotifier
	log      *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*session      // keyed by addr.String()
	peerKeys map[nodeid.ID][]byte     // known peer static public keys (TOFU cache)
	pending  map[uuid.UUID]pendingPing
}

// NewPingTransport binds a UDP socket at listenAddr and wires it to drive
// Noise-authenticated ping traffic on behalf of notifier. notifier is
// typically a *dht.Table; it learns about answered probes through Touch.
// Expire is never called from here.
func NewPingTransport(listenAddr string, keyPair *crypto.KeyPair, notifier TableNotifier) (*PingTransport, error) {
	udp, err := NewUDPTransport(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("ping transport: bind %s: %w", listenAddr, err)
	}

	pt := &PingTransport{
		udp:      udp,
		keyPair:  keyPair,
		notifier: notifier,
		log:      logrus.WithField("component", "pingtransport"),
		sessions: make(map[string]*session),
		peerKeys: make(map[nodeid.ID][]byte),
		pending:  make(map[uuid.UUID]pendingPing),
	}

	udp.RegisterHandler(PacketNoiseHandshakeInitXX, pt.handleHandshakeInitXX)
	udp.RegisterHandler(PacketNoiseHandshakeInitIK, pt.handleHandshakeInitIK)
	udp.RegisterHandler(PacketNoiseHandshakeResp, pt.handleHandshakeResp)
	udp.RegisterHandler(PacketNoiseHandshakeFinal, pt.handleHandshakeFinal)
	udp.RegisterHandler(PacketNoiseMessage, pt.handleNoiseMessage)

	return pt, nil
}

// RegisterPeerKey pins a peer's long-term public key ahead of time so its
// first probe can use the IK pattern. Without a pinned key, Ping falls
// back to XX and learns (and pins) the key from that handshake instead.
func (pt *PingTransport) RegisterPeerKey(id nodeid.ID, pubKey []byte) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	cp := make([]byte, len(pubKey))
	copy(cp, pubKey)
	pt.peerKeys[id] = cp
}

// Close shuts down the underlying UDP socket.
func (pt *PingTransport) Close() error {
	return pt.udp.Close()
}

// LocalAddr reports the bound UDP address.
func (pt *PingTransport) LocalAddr() net.Addr {
	return pt.udp.LocalAddr()
}

// Ping implements dht.Pinger. It starts (or reuses) a Noise session with
// req.Addr and sends an encrypted ping payload carrying the transaction ID
// the Table will expect back on Touch/Expire. It never blocks on the
// network; handshake and reply handling happen in the UDP transport's
// read-loop goroutine.
func (pt *PingTransport) Ping(req dht.PingRequest) error {
	pt.mu.Lock()
	pt.pending[req.TransactionID] = pendingPing{target: req.Target, addr: req.Addr}
	sess, ok := pt.sessions[req.Addr.String()]
	peerKey := pt.peerKeys[req.Target]
	pt.mu.Unlock()

	if ok && sess.sendCipher != nil {
		return pt.sendPing(sess, req.TransactionID, req.Addr)
	}

	return pt.startHandshake(req.TransactionID, req.Addr, peerKey)
}

func (pt *PingTransport) startHandshake(txn uuid.UUID, addr net.Addr, peerKey []byte) error {
	var hs handshaker
	var err error
	pktType := PacketNoiseHandshakeInitXX

	if peerKey != nil {
		hs, err = noise.NewIKHandshake(pt.keyPair.Private[:], peerKey, noise.Initiator)
		pktType = PacketNoiseHandshakeInitIK
	} else {
		hs, err = noise.NewXXHandshake(pt.keyPair.Private[:], noise.Initiator)
	}
	if err != nil {
		return fmt.Errorf("ping transport: start handshake with %s: %w", addr, err)
	}

	msg, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("ping transport: handshake init: %w", err)
	}

	pt.mu.Lock()
	pt.sessions[addr.String()] = &session{hs: hs, pendingTxn: txn, hasPending: true}
	pt.mu.Unlock()

	return pt.udp.Send(&Packet{PacketType: pktType, Data: msg}, addr)
}

func (pt *PingTransport) sendPing(sess *session, txn uuid.UUID, addr net.Addr) error {
	payload := txn[:]
	sealed := sess.sendCipher.Encrypt(nil, nil, payload)
	return pt.udp.Send(&Packet{PacketType: PacketNoiseMessage, Data: sealed}, addr)
}

// handleHandshakeInitXX responds to a peer's XX handshake opening: read its
// ephemeral-only first message, then write our own (e, ee, s, es).
func (pt *PingTransport) handleHandshakeInitXX(packet *Packet, addr net.Addr) error {
	hs, err := noise.NewXXHandshake(pt.keyPair.Private[:], noise.Responder)
	if err != nil {
		return err
	}

	if _, _, err := hs.ReadMessage(packet.Data); err != nil {
		return fmt.Errorf("ping transport: XX handshake read from %s: %w", addr, err)
	}

	resp, complete, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("ping transport: XX handshake respond to %s: %w", addr, err)
	}

	pt.mu.Lock()
	pt.sessions[addr.String()] = &session{hs: hs}
	pt.mu.Unlock()

	if complete {
		pt.completeSession(addr, hs)
	}

	return pt.udp.Send(&Packet{PacketType: PacketNoiseHandshakeResp, Data: resp}, addr)
}

// handleHandshakeInitIK responds to a peer's IK handshake opening. Unlike
// XX, the IK responder combines the read and the reply into a single
// WriteMessage call and completes immediately.
func (pt *PingTransport) handleHandshakeInitIK(packet *Packet, addr net.Addr) error {
	hs, err := noise.NewIKHandshake(pt.keyPair.Private[:], nil, noise.Responder)
	if err != nil {
		return err
	}

	resp, complete, err := hs.WriteMessage(nil, packet.Data)
	if err != nil {
		return fmt.Errorf("ping transport: IK handshake respond to %s: %w", addr, err)
	}

	pt.mu.Lock()
	pt.sessions[addr.String()] = &session{hs: hs}
	pt.mu.Unlock()

	if complete {
		pt.completeSession(addr, hs)
	}

	return pt.udp.Send(&Packet{PacketType: PacketNoiseHandshakeResp, Data: resp}, addr)
}

// handleHandshakeResp processes the responder's reply from the initiator's
// side. IK completes here; XX still owes a third message (s, se) before the
// session is usable, so this dispatches handleHandshakeFinal's counterpart.
func (pt *PingTransport) handleHandshakeResp(packet *Packet, addr net.Addr) error {
	pt.mu.Lock()
	sess, ok := pt.sessions[addr.String()]
	pt.mu.Unlock()
	if !ok {
		return errors.New("ping transport: handshake response from unknown peer")
	}

	_, complete, err := sess.hs.ReadMessage(packet.Data)
	if err != nil {
		return fmt.Errorf("ping transport: handshake completion from %s: %w", addr, err)
	}
	if complete {
		pt.completeSession(addr, sess.hs)
		return nil
	}

	final, complete, err := sess.hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("ping transport: XX handshake finish with %s: %w", addr, err)
	}
	// Send the third message before completeSession fires the pending ping,
	// so the responder sees the handshake finish ahead of the ping.
	if err := pt.udp.Send(&Packet{PacketType: PacketNoiseHandshakeFinal, Data: final}, addr); err != nil {
		return err
	}
	if complete {
		pt.completeSession(addr, sess.hs)
	}
	return nil
}

// handleHandshakeFinal reads the XX pattern's third message on the
// responder side, completing the session.
func (pt *PingTransport) handleHandshakeFinal(packet *Packet, addr net.Addr) error {
	pt.mu.Lock()
	sess, ok := pt.sessions[addr.String()]
	pt.mu.Unlock()
	if !ok {
		return errors.New("ping transport: handshake finalization from unknown peer")
	}

	if _, _, err := sess.hs.ReadMessage(packet.Data); err != nil {
		return fmt.Errorf("ping transport: XX handshake finalization from %s: %w", addr, err)
	}

	pt.completeSession(addr, sess.hs)
	return nil
}

func (pt *PingTransport) completeSession(addr net.Addr, hs handshaker) {
	send, recv, err := hs.GetCipherStates()
	if err != nil {
		pt.log.WithError(err).WithField("addr", addr.String()).Warn("handshake completed without usable cipher states")
		return
	}

	pt.mu.Lock()
	prev := pt.sessions[addr.String()]
	next := &session{hs: hs, sendCipher: send, recvCipher: recv}
	if prev != nil {
		next.pendingTxn, next.hasPending = prev.pendingTxn, prev.hasPending
	}
	pt.sessions[addr.String()] = next
	// Pin the key this handshake authenticated for the probed node, so
	// later probes to it use IK.
	if p, ok := pt.pending[next.pendingTxn]; next.hasPending && ok {
		if _, pinned := pt.peerKeys[p.target]; !pinned {
			if rk, ok := hs.(interface{ GetRemoteStaticKey() ([]byte, error) }); ok {
				if key, err := rk.GetRemoteStaticKey(); err == nil && len(key) > 0 {
					pt.peerKeys[p.target] = append([]byte(nil), key...)
				}
			}
		}
	}
	pt.mu.Unlock()

	if next.hasPending {
		if err := pt.sendPing(next, next.pendingTxn, addr); err != nil {
			pt.log.WithError(err).WithField("addr", addr.String()).Warn("failed to send ping after handshake")
		}
	}
}

// handleNoiseMessage decrypts an established session's traffic. A 16-byte
// payload is a bare transaction ID: if it matches one of our own pending
// probes, it is the peer's pong and the probe is reported to the Table via
// Touch; otherwise it is the peer's ping and we echo it back as a pong.
func (pt *PingTransport) handleNoiseMessage(packet *Packet, addr net.Addr) error {
	pt.mu.Lock()
	sess, ok := pt.sessions[addr.String()]
	pt.mu.Unlock()
	if !ok || sess.recvCipher == nil {
		return errors.New("ping transport: encrypted message from unestablished session")
	}

	plain, err := sess.recvCipher.Decrypt(nil, nil, packet.Data)
	if err != nil {
		return fmt.Errorf("ping transport: decrypt from %s: %w", addr, err)
	}
	if len(plain) != 16 {
		return fmt.Errorf("ping transport: malformed ping payload from %s (%d bytes)", addr, len(plain))
	}

	var txn uuid.UUID
	copy(txn[:], plain)

	pt.mu.Lock()
	pending, isPending := pt.pending[txn]
	if isPending {
		delete(pt.pending, txn)
	}
	pt.mu.Unlock()

	if isPending {
		pt.notifier.Touch(pending.target)
		return nil
	}

	sealed := sess.sendCipher.Encrypt(nil, nil, plain)
	return pt.udp.Send(&Packet{PacketType: PacketNoiseMessage, Data: sealed}, addr)
}
