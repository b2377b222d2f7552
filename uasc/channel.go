// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/gammazero/deque"
	"github.com/gammazero/workerpool"
)

// channel states
const (
	channelInit int32 = iota
	channelAwaitingOpen
	channelOpen
	channelClosed
	channelAborted
)

// channelIDCounter is shared by all channels of the process. The first
// channel gets id 1.
var channelIDCounter uint32

func getNextChannelID() uint32 {
	id := atomic.AddUint32(&channelIDCounter, 1)
	for id == 0 {
		id = atomic.AddUint32(&channelIDCounter, 1)
	}
	return id
}

// securityKeySet holds the derived symmetric keys of one direction of traffic.
type securityKeySet struct {
	signingKey    []byte
	encryptingKey []byte
	iv            []byte
}

func (k *securityKeySet) zeroise() {
	if k == nil {
		return
	}
	for i := range k.signingKey {
		k.signingKey[i] = 0
	}
	for i := range k.encryptingKey {
		k.encryptingKey[i] = 0
	}
	for i := range k.iv {
		k.iv[i] = 0
	}
}

// transaction tracks a request from the arrival of its first chunk until the
// response has been written.
type transaction struct {
	requestID     uint32
	requestHandle uint32
	tick0         time.Time
	tick1         time.Time
	bytesRead     uint64
	bytesWritten  uint64
}

// EndpointDescription names a security configuration offered to clients.
type EndpointDescription struct {
	SecurityPolicyURI string
	SecurityMode      ua.MessageSecurityMode
}

// Channel is the server side of a secure channel. A channel is bound to one
// connection and processes its requests sequentially. Responses may be sent
// from any goroutine.
type Channel struct {
	sync.RWMutex
	transport     Transport
	channelID     uint32
	state         int32
	endpoints     []EndpointDescription
	namespaceURIs []string

	localCertificate           []byte
	localPrivateKey            *rsa.PrivateKey
	localCertificateThumbprint ua.ByteString

	observer   ChannelObserver
	factory    *ObjectFactory
	validator  *CertificateValidator
	workerPool *workerpool.WorkerPool
	trace      bool

	openTimeout   time.Duration
	tokenLifetime uint32
	tokenManager  *TokenManager

	securityPolicyURI string
	securityPolicy    ua.SecurityPolicy
	securityMode      ua.MessageSecurityMode
	remoteCertificate []byte
	remotePublicKey   *rsa.PublicKey
	receivedThumbprint ua.ByteString
	localNonce        []byte
	remoteNonce       []byte

	asymLocalKeySize              int
	asymLocalPlainTextBlockSize   int
	asymLocalCipherTextBlockSize  int
	asymLocalSignatureSize        int
	asymRemoteKeySize             int
	asymRemotePlainTextBlockSize  int
	asymRemoteCipherTextBlockSize int
	asymRemoteSignatureSize       int

	localKeys   *securityKeySet
	inboundKeys map[uint32]*securityKeySet

	sendingSemaphore   sync.Mutex
	receivingSemaphore sync.Mutex
	sequenceNumber     uint32
	lastSequenceNumber uint32

	transactionsMu      sync.Mutex
	pendingTransactions deque.Deque[*transaction]

	shutdownOnce sync.Once
	closeReason  ua.StatusCode
}

// NewServerChannel returns a channel for the given accepted connection.
// The certificate is DER encoded and may be nil when only the None security
// policy is offered.
func NewServerChannel(conn net.Conn, localCertificate []byte, localPrivateKey *rsa.PrivateKey, endpoints []EndpointDescription, opts ...Option) (*Channel, error) {
	options := defaultChannelOptions()
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	channelID := getNextChannelID()
	ch := &Channel{
		transport:                  NewTCPTransport(conn, options.receiveBufferSize, options.sendBufferSize, options.maxMessageSize, options.maxChunkCount),
		channelID:                  channelID,
		endpoints:                  endpoints,
		namespaceURIs:              []string{"http://opcfoundation.org/UA/"},
		localCertificate:           localCertificate,
		localPrivateKey:            localPrivateKey,
		localCertificateThumbprint: ua.CertificateThumbprint(localCertificate),
		observer:                   options.observer,
		factory:                    options.factory,
		validator:                  options.validator,
		workerPool:                 options.workerPool,
		trace:                      options.trace,
		openTimeout:                options.openTimeout,
		tokenLifetime:              options.tokenLifetime,
		tokenManager:               NewTokenManager(channelID, options.tokenLifetime),
		securityMode:               ua.MessageSecurityModeInvalid,
		inboundKeys:                make(map[uint32]*securityKeySet),
	}
	return ch, nil
}

// ChannelID returns the channel id.
func (ch *Channel) ChannelID() uint32 {
	return ch.channelID
}

// SecurityPolicyURI returns the security policy negotiated for the channel.
func (ch *Channel) SecurityPolicyURI() string {
	ch.RLock()
	defer ch.RUnlock()
	return ch.securityPolicyURI
}

// SecurityMode returns the security mode negotiated for the channel.
func (ch *Channel) SecurityMode() ua.MessageSecurityMode {
	ch.RLock()
	defer ch.RUnlock()
	return ch.securityMode
}

// EndpointURL returns the endpoint url requested by the client.
func (ch *Channel) EndpointURL() string {
	return ch.transport.EndpointURL()
}

// RemoteCertificate returns the DER encoded certificate of the client, or nil.
func (ch *Channel) RemoteCertificate() []byte {
	ch.RLock()
	defer ch.RUnlock()
	return ch.remoteCertificate
}

// IsOpen returns true while the channel accepts service requests.
func (ch *Channel) IsOpen() bool {
	return atomic.LoadInt32(&ch.state) == channelOpen
}

// IsClosed returns true once the channel has been closed or aborted.
func (ch *Channel) IsClosed() bool {
	s := atomic.LoadInt32(&ch.state)
	return s == channelClosed || s == channelAborted
}

// CloseReason returns the status the channel was closed with, or Good while
// the channel is live.
func (ch *Channel) CloseReason() ua.StatusCode {
	ch.RLock()
	defer ch.RUnlock()
	return ch.closeReason
}

// BytesRead returns the total number of bytes read from the connection.
func (ch *Channel) BytesRead() uint64 {
	return ch.transport.BytesRead()
}

// BytesWritten returns the total number of bytes written to the connection.
func (ch *Channel) BytesWritten() uint64 {
	return ch.transport.BytesWritten()
}

// NamespaceURIs returns a slice of NamespaceURI
func (ch *Channel) NamespaceURIs() []string {
	return ch.namespaceURIs
}

// Open completes the transport and security handshakes. The handshake must
// finish before the timeout given by WithOpenTimeout, or the deadline of ctx
// if that is sooner, otherwise the channel is aborted with BadTimeout.
// On success a worker goroutine begins reading requests.
func (ch *Channel) Open(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&ch.state, channelInit, channelAwaitingOpen) {
		return ua.BadTCPInternalError
	}
	deadline := time.Now().Add(ch.openTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ch.transport.SetDeadline(deadline)
	if err := ch.transport.Accept(); err != nil {
		code := statusFromError(err)
		ch.shutdown(channelAborted, code, "connection rejected", true, false)
		return code
	}
	req, requestID, err := ch.readRequest()
	if err != nil {
		code := statusFromError(err)
		switch code {
		case ua.BadSecurityPolicyRejected:
			// policy was unknown, answer with an unsecured fault
			ch.Lock()
			ch.securityPolicyURI = ua.SecurityPolicyURINone
			ch.securityPolicy, _ = ua.SecurityPolicyForURI(ua.SecurityPolicyURINone)
			ch.securityMode = ua.MessageSecurityModeNone
			ch.Unlock()
			ch.sendOpenSecureChannelFault(requestID, 0, code)
			ch.shutdown(channelAborted, code, "security policy rejected", false, false)
		default:
			ch.shutdown(channelAborted, code, "open failed", true, false)
		}
		return code
	}
	opn, ok := req.(*ua.OpenSecureChannelRequest)
	if !ok {
		ch.shutdown(channelAborted, ua.BadCommunicationError, "first message was not an open request", true, false)
		return ua.BadCommunicationError
	}
	if err := ch.handleOpenSecureChannel(opn, requestID); err != nil {
		return err
	}
	ch.transport.SetDeadline(time.Time{})
	atomic.StoreInt32(&ch.state, channelOpen)
	go ch.requestWorker()
	return nil
}

// requestWorker reads requests from the transport until the channel closes.
func (ch *Channel) requestWorker() {
	for {
		req, requestID, err := ch.readRequest()
		if err != nil {
			if ch.IsClosed() {
				return
			}
			code := statusFromError(err)
			ch.abort(code, code.Error(), code != ua.BadConnectionClosed)
			return
		}
		ch.handleRequest(req, requestID)
		if !ch.IsOpen() {
			return
		}
	}
}

func (ch *Channel) handleRequest(req ua.ServiceRequest, requestID uint32) {
	switch r := req.(type) {
	case *ua.OpenSecureChannelRequest:
		if err := ch.handleRenewSecureChannel(r, requestID); err != nil {
			code := statusFromError(err)
			ch.abort(code, "renew failed", true)
		}
	case *ua.CloseSecureChannelRequest:
		ch.takeTransaction(requestID)
		ch.Close()
	default:
		if ch.workerPool != nil {
			ch.workerPool.Submit(func() { ch.deliver(req, requestID) })
			return
		}
		ch.deliver(req, requestID)
	}
}

func (ch *Channel) deliver(req ua.ServiceRequest, requestID uint32) {
	if ch.observer == nil {
		fault := &ua.ServiceFault{ResponseHeader: ua.ResponseHeader{ServiceResult: ua.BadServiceUnsupported}}
		ch.SendResponse(fault, requestID)
		return
	}
	ch.observer.OnMessage(ch, req, requestID)
}

// Close closes the channel without writing an error message.
func (ch *Channel) Close() error {
	ch.shutdown(channelClosed, ua.BadSecureChannelClosed, "", false, false)
	return nil
}

// SendErrorAndAbort answers a request with a ServiceFault and closes the
// channel once the fault has been written.
func (ch *Channel) SendErrorAndAbort(code ua.StatusCode, message string, requestID uint32) error {
	fault := &ua.ServiceFault{ResponseHeader: ua.ResponseHeader{ServiceResult: code}}
	if err := ch.SendResponse(fault, requestID); err != nil {
		return err
	}
	ch.abort(code, message, false)
	return nil
}

// Abort writes an error message to the remote side, closes the connection,
// and notifies the observer if the channel was open. Calling Abort or Close
// again has no effect.
func (ch *Channel) Abort(reason ua.StatusCode, message string) error {
	ch.abort(reason, message, true)
	return nil
}

func (ch *Channel) abort(reason ua.StatusCode, message string, sendError bool) {
	ch.shutdown(channelAborted, reason, message, sendError, ch.IsOpen())
}

func (ch *Channel) shutdown(state int32, reason ua.StatusCode, message string, sendError, notify bool) {
	ch.shutdownOnce.Do(func() {
		atomic.StoreInt32(&ch.state, state)
		ch.Lock()
		ch.closeReason = reason
		ch.Unlock()
		if sendError {
			ch.sendError(reason, message)
		}
		ch.transport.Close()
		ch.tokenManager.Close()
		ch.zeroiseKeys()
		if notify && ch.observer != nil {
			ch.observer.OnAbort(ch, reason, message)
		}
		if state == channelAborted {
			log.Printf("channel %d aborted. %s %s", ch.channelID, reason.Error(), message)
		} else if ch.trace {
			log.Printf("channel %d closed", ch.channelID)
		}
	})
}

// sendError writes an error chunk. Errors are ignored, the connection is
// about to close.
func (ch *Channel) sendError(reason ua.StatusCode, message string) {
	buf := *(bytesPool.Get().(*[]byte))
	defer bytesPool.Put(&buf)
	writer := ua.NewWriter(buf)
	enc := ua.NewBinaryEncoder(writer, ch)
	enc.WriteUInt32(ua.MessageTypeError)
	enc.WriteUInt32(uint32(16 + len(message)))
	enc.WriteUInt32(uint32(reason))
	enc.WriteString(message)
	ch.transport.WriteChunk(writer.Bytes())
}

// zeroiseKeys overwrites all derived key material.
func (ch *Channel) zeroiseKeys() {
	ch.Lock()
	defer ch.Unlock()
	ch.localKeys.zeroise()
	ch.localKeys = nil
	for id, keys := range ch.inboundKeys {
		keys.zeroise()
		delete(ch.inboundKeys, id)
	}
	for i := range ch.localNonce {
		ch.localNonce[i] = 0
	}
	for i := range ch.remoteNonce {
		ch.remoteNonce[i] = 0
	}
	ch.localNonce = nil
	ch.remoteNonce = nil
}

// getNextSequenceNumber returns the next sequence number, skipping zero.
func (ch *Channel) getNextSequenceNumber() uint32 {
	ch.Lock()
	defer ch.Unlock()
	if ch.sequenceNumber == math.MaxUint32 {
		ch.sequenceNumber = 0
	}
	ch.sequenceNumber++
	return ch.sequenceNumber
}

// getNextNonce returns a nonce of the given length.
func getNextNonce(length int) []byte {
	nonce := make([]byte, length)
	rand.Read(nonce)
	return nonce
}

func (ch *Channel) addTransaction(tx *transaction) {
	ch.transactionsMu.Lock()
	defer ch.transactionsMu.Unlock()
	if ch.trace {
		i := ch.pendingTransactions.Index(func(t *transaction) bool { return t.requestID == tx.requestID })
		if i >= 0 {
			log.Printf("channel %d received duplicate request id %d", ch.channelID, tx.requestID)
		}
	}
	ch.pendingTransactions.PushBack(tx)
}

func (ch *Channel) takeTransaction(requestID uint32) *transaction {
	ch.transactionsMu.Lock()
	defer ch.transactionsMu.Unlock()
	i := ch.pendingTransactions.Index(func(t *transaction) bool { return t.requestID == requestID })
	if i < 0 {
		return nil
	}
	return ch.pendingTransactions.Remove(i)
}

// statusFromError maps an error to a StatusCode.
func statusFromError(err error) ua.StatusCode {
	var code ua.StatusCode
	if errors.As(err, &code) {
		return code
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ua.BadTimeout
	}
	return ua.BadConnectionClosed
}
