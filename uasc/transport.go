// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awcullen/uasc/ua"
)

// Transport moves whole message chunks between the channel and the wire.
type Transport interface {
	// Accept performs the transport handshake, negotiating buffer sizes and limits.
	Accept() error
	// ReadChunk reads one complete chunk into p and returns the number of bytes read.
	ReadChunk(p []byte) (int, error)
	// WriteChunk writes one complete chunk.
	WriteChunk(p []byte) error
	// Close closes the underlying connection.
	Close() error
	// SetDeadline sets the read and write deadlines of the connection.
	SetDeadline(t time.Time) error
	ReceiveBufferSize() uint32
	SendBufferSize() uint32
	MaxMessageSize() uint32
	MaxChunkCount() uint32
	EndpointURL() string
	BytesRead() uint64
	BytesWritten() uint64
}

// TCPTransport frames chunks over a net.Conn using the binary transport protocol.
type TCPTransport struct {
	sync.Mutex
	conn              net.Conn
	receiveBufferSize uint32
	sendBufferSize    uint32
	maxMessageSize    uint32
	maxChunkCount     uint32
	endpointURL       string
	bytesRead         uint64
	bytesWritten      uint64
	closed            bool
}

// NewTCPTransport returns a transport for the given connection. The sizes are
// the local limits offered during the handshake and may be revised downward
// to the limits of the remote side.
func NewTCPTransport(conn net.Conn, receiveBufferSize, sendBufferSize, maxMessageSize, maxChunkCount uint32) *TCPTransport {
	return &TCPTransport{
		conn:              conn,
		receiveBufferSize: receiveBufferSize,
		sendBufferSize:    sendBufferSize,
		maxMessageSize:    maxMessageSize,
		maxChunkCount:     maxChunkCount,
	}
}

// Accept reads the Hello message and writes the Acknowledge message.
// The local buffer sizes are clamped to the sizes offered by the remote side.
func (t *TCPTransport) Accept() error {
	buf := *(bytesPool.Get().(*[]byte))
	defer bytesPool.Put(&buf)
	n, err := t.ReadChunk(buf)
	if err != nil {
		return err
	}
	var reader = bytes.NewReader(buf[0:n])
	var ec = ua.NewEncodingContext()
	var dec = ua.NewBinaryDecoder(reader, ec)
	var msgType, msgLen uint32
	if err := dec.ReadUInt32(&msgType); err != nil {
		return ua.BadDecodingError
	}
	if err := dec.ReadUInt32(&msgLen); err != nil {
		return ua.BadDecodingError
	}
	if msgType != ua.MessageTypeHello || msgLen < 28 {
		return ua.BadDecodingError
	}
	var remoteProtocolVersion, remoteReceiveBufferSize, remoteSendBufferSize, remoteMaxMessageSize, remoteMaxChunkCount uint32
	if err := dec.ReadUInt32(&remoteProtocolVersion); err != nil {
		return ua.BadDecodingError
	}
	if remoteProtocolVersion < protocolVersion {
		return ua.BadProtocolVersionUnsupported
	}
	if err := dec.ReadUInt32(&remoteReceiveBufferSize); err != nil {
		return ua.BadDecodingError
	}
	if err := dec.ReadUInt32(&remoteSendBufferSize); err != nil {
		return ua.BadDecodingError
	}
	if err := dec.ReadUInt32(&remoteMaxMessageSize); err != nil {
		return ua.BadDecodingError
	}
	if err := dec.ReadUInt32(&remoteMaxChunkCount); err != nil {
		return ua.BadDecodingError
	}
	if err := dec.ReadString(&t.endpointURL); err != nil {
		return ua.BadDecodingError
	}

	// the channel cannot send chunks larger than the remote side can receive
	if remoteReceiveBufferSize < t.sendBufferSize {
		t.sendBufferSize = remoteReceiveBufferSize
	}
	if remoteSendBufferSize < t.receiveBufferSize {
		t.receiveBufferSize = remoteSendBufferSize
	}
	if remoteMaxMessageSize != 0 && remoteMaxMessageSize < t.maxMessageSize {
		t.maxMessageSize = remoteMaxMessageSize
	}
	if remoteMaxChunkCount != 0 && remoteMaxChunkCount < t.maxChunkCount {
		t.maxChunkCount = remoteMaxChunkCount
	}

	var writer = ua.NewWriter(buf)
	var enc = ua.NewBinaryEncoder(writer, ec)
	enc.WriteUInt32(ua.MessageTypeAck)
	enc.WriteUInt32(uint32(28))
	enc.WriteUInt32(protocolVersion)
	enc.WriteUInt32(t.receiveBufferSize)
	enc.WriteUInt32(t.sendBufferSize)
	enc.WriteUInt32(t.maxMessageSize)
	enc.WriteUInt32(t.maxChunkCount)
	if err := t.WriteChunk(writer.Bytes()); err != nil {
		return ua.BadConnectionClosed
	}
	return nil
}

// ReadChunk reads a complete chunk into p. The message length field of the
// header determines how many bytes to read.
func (t *TCPTransport) ReadChunk(p []byte) (int, error) {
	if t.isClosed() {
		return 0, ua.BadConnectionClosed
	}
	var err error
	num := 0
	n := 0
	count := 8
	for num < count {
		n, err = t.conn.Read(p[num:count])
		if err != nil || n == 0 {
			t.Close()
			return num, err
		}
		num += n
	}
	count = int(binary.LittleEndian.Uint32(p[4:8]))
	if count > len(p) {
		t.Close()
		return num, ua.BadTCPMessageTooLarge
	}
	for num < count {
		n, err = t.conn.Read(p[num:count])
		if err != nil || n == 0 {
			t.Close()
			return num, err
		}
		num += n
	}
	atomic.AddUint64(&t.bytesRead, uint64(num))
	return num, err
}

// WriteChunk writes a complete chunk to the connection.
func (t *TCPTransport) WriteChunk(p []byte) error {
	if t.isClosed() {
		return ua.BadConnectionClosed
	}
	_, err := t.conn.Write(p)
	if err != nil {
		t.Close()
		return err
	}
	atomic.AddUint64(&t.bytesWritten, uint64(len(p)))
	return nil
}

// Close closes the connection.
func (t *TCPTransport) Close() error {
	t.Lock()
	defer t.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *TCPTransport) isClosed() bool {
	t.Lock()
	defer t.Unlock()
	return t.closed
}

// SetDeadline sets the read and write deadlines of the connection.
// A zero value means no deadline.
func (t *TCPTransport) SetDeadline(deadline time.Time) error {
	return t.conn.SetDeadline(deadline)
}

// ReceiveBufferSize returns the negotiated size of the receive buffer.
func (t *TCPTransport) ReceiveBufferSize() uint32 { return t.receiveBufferSize }

// SendBufferSize returns the negotiated size of the send buffer.
func (t *TCPTransport) SendBufferSize() uint32 { return t.sendBufferSize }

// MaxMessageSize returns the negotiated maximum size of a message.
func (t *TCPTransport) MaxMessageSize() uint32 { return t.maxMessageSize }

// MaxChunkCount returns the negotiated maximum number of chunks of a message.
func (t *TCPTransport) MaxChunkCount() uint32 { return t.maxChunkCount }

// EndpointURL returns the endpoint url requested by the remote side.
func (t *TCPTransport) EndpointURL() string { return t.endpointURL }

// BytesRead returns the total number of bytes read from the connection.
func (t *TCPTransport) BytesRead() uint64 { return atomic.LoadUint64(&t.bytesRead) }

// BytesWritten returns the total number of bytes written to the connection.
func (t *TCPTransport) BytesWritten() uint64 { return atomic.LoadUint64(&t.bytesWritten) }
