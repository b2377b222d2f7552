// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/awcullen/uasc/uasc"
	"gotest.tools/assert"
)

var (
	echoRequestID  = ua.NewNodeIDNumeric(2, 1000)
	echoResponseID = ua.NewNodeIDNumeric(2, 1001)
)

type echoRequest struct {
	ua.RequestHeader
	Message string
}

func (r *echoRequest) EncodeBinary(enc *ua.BinaryEncoder) error {
	if err := enc.WriteRequestHeader(&r.RequestHeader); err != nil {
		return err
	}
	return enc.WriteString(r.Message)
}

func (r *echoRequest) DecodeBinary(dec *ua.BinaryDecoder) error {
	if err := dec.ReadRequestHeader(&r.RequestHeader); err != nil {
		return err
	}
	return dec.ReadString(&r.Message)
}

type echoResponse struct {
	ua.ResponseHeader
	Message string
}

func (r *echoResponse) EncodingID() ua.NodeID { return echoResponseID }

func (r *echoResponse) EncodeBinary(enc *ua.BinaryEncoder) error {
	if err := enc.WriteResponseHeader(&r.ResponseHeader); err != nil {
		return err
	}
	return enc.WriteString(r.Message)
}

func (r *echoResponse) DecodeBinary(dec *ua.BinaryDecoder) error {
	if err := dec.ReadResponseHeader(&r.ResponseHeader); err != nil {
		return err
	}
	return dec.ReadString(&r.Message)
}

// recordingObserver captures the notifications of a channel for inspection.
type recordingObserver struct {
	sync.Mutex
	onMessage func(ch *uasc.Channel, req ua.ServiceRequest, requestID uint32)
	tokens    []ua.ChannelSecurityToken
	renewed   []bool
	stats     []uasc.TransactionStats
	aborts    []ua.StatusCode
}

func (o *recordingObserver) OnMessage(ch *uasc.Channel, req ua.ServiceRequest, requestID uint32) {
	o.Lock()
	handler := o.onMessage
	o.Unlock()
	if handler != nil {
		handler(ch, req, requestID)
	}
}

func (o *recordingObserver) OnTokenIssued(ch *uasc.Channel, token ua.ChannelSecurityToken, renewed bool) {
	o.Lock()
	defer o.Unlock()
	o.tokens = append(o.tokens, token)
	o.renewed = append(o.renewed, renewed)
}

func (o *recordingObserver) OnTransactionDone(ch *uasc.Channel, stats uasc.TransactionStats) {
	o.Lock()
	defer o.Unlock()
	o.stats = append(o.stats, stats)
}

func (o *recordingObserver) OnAbort(ch *uasc.Channel, reason ua.StatusCode, message string) {
	o.Lock()
	defer o.Unlock()
	o.aborts = append(o.aborts, reason)
}

// testClient drives the client side of a channel over an in-memory connection.
type testClient struct {
	t         *testing.T
	conn      net.Conn
	ec        ua.EncodingContext
	wbuf      []byte
	rbuf      []byte
	sequence  uint32
	requestID uint32
	channelID uint32
	tokenID   uint32
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{
		t:    t,
		conn: conn,
		ec:   ua.NewEncodingContext(),
		wbuf: make([]byte, 65535),
		rbuf: make([]byte, 65535),
	}
}

func startServerChannel(t *testing.T, opts ...uasc.Option) (*uasc.Channel, *testClient, chan error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	endpoints := []uasc.EndpointDescription{
		{SecurityPolicyURI: ua.SecurityPolicyURINone, SecurityMode: ua.MessageSecurityModeNone},
	}
	ch, err := uasc.NewServerChannel(serverConn, nil, nil, endpoints, opts...)
	if err != nil {
		t.Fatal(err)
	}
	openErr := make(chan error, 1)
	go func() { openErr <- ch.Open(context.Background()) }()
	t.Cleanup(func() {
		ch.Close()
		clientConn.Close()
	})
	return ch, newTestClient(t, clientConn), openErr
}

func (c *testClient) write(p []byte) {
	c.t.Helper()
	if _, err := c.conn.Write(p); err != nil {
		c.t.Fatal(err)
	}
}

func (c *testClient) readChunk() []byte {
	c.t.Helper()
	if _, err := io.ReadFull(c.conn, c.rbuf[:8]); err != nil {
		c.t.Fatal(err)
	}
	count := int(binary.LittleEndian.Uint32(c.rbuf[4:8]))
	if _, err := io.ReadFull(c.conn, c.rbuf[8:count]); err != nil {
		c.t.Fatal(err)
	}
	return c.rbuf[:count]
}

// handshake sends the Hello message and reads the Acknowledge message.
func (c *testClient) handshake() {
	c.t.Helper()
	w := ua.NewWriter(c.wbuf)
	enc := ua.NewBinaryEncoder(w, c.ec)
	enc.WriteUInt32(ua.MessageTypeHello)
	enc.WriteUInt32(0)
	enc.WriteUInt32(0)
	enc.WriteUInt32(65535)
	enc.WriteUInt32(65535)
	enc.WriteUInt32(0)
	enc.WriteUInt32(0)
	enc.WriteString("opc.tcp://localhost:46010")
	binary.LittleEndian.PutUint32(c.wbuf[4:8], uint32(w.Len()))
	c.write(w.Bytes())
	chunk := c.readChunk()
	assert.Equal(c.t, binary.LittleEndian.Uint32(chunk[0:4]), ua.MessageTypeAck)
}

// sendOpen writes an open request in a single asymmetric chunk.
func (c *testClient) sendOpen(req *ua.OpenSecureChannelRequest, policyURI string) uint32 {
	c.t.Helper()
	w := ua.NewWriter(c.wbuf)
	enc := ua.NewBinaryEncoder(w, c.ec)
	enc.WriteUInt32(ua.MessageTypeOpenFinal)
	enc.WriteUInt32(0)
	enc.WriteUInt32(c.channelID)
	enc.WriteString(policyURI)
	enc.WriteByteString(ua.NilByteString)
	enc.WriteByteString(ua.NilByteString)
	c.sequence++
	c.requestID++
	enc.WriteUInt32(c.sequence)
	enc.WriteUInt32(c.requestID)
	enc.WriteNodeID(ua.ObjectIDOpenSecureChannelRequestEncodingDefaultBinary)
	if err := enc.Encode(req); err != nil {
		c.t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(c.wbuf[4:8], uint32(w.Len()))
	c.write(w.Bytes())
	return c.requestID
}

// readOpenResponse reads an asymmetric chunk holding either an open response
// or a service fault.
func (c *testClient) readOpenResponse() (*ua.OpenSecureChannelResponse, *ua.ServiceFault) {
	c.t.Helper()
	chunk := c.readChunk()
	dec := ua.NewBinaryDecoder(bytes.NewReader(chunk), c.ec)
	var messageType, messageLength, channelID uint32
	if err := dec.ReadUInt32(&messageType); err != nil {
		c.t.Fatal(err)
	}
	if err := dec.ReadUInt32(&messageLength); err != nil {
		c.t.Fatal(err)
	}
	if err := dec.ReadUInt32(&channelID); err != nil {
		c.t.Fatal(err)
	}
	assert.Equal(c.t, messageType, ua.MessageTypeOpenFinal)
	var securityHeader ua.AsymmetricSecurityHeader
	if err := dec.ReadAsymmetricSecurityHeader(&securityHeader); err != nil {
		c.t.Fatal(err)
	}
	var sequenceHeader ua.SequenceHeader
	if err := dec.ReadSequenceHeader(&sequenceHeader); err != nil {
		c.t.Fatal(err)
	}
	var id ua.NodeID
	if err := dec.ReadNodeID(&id); err != nil {
		c.t.Fatal(err)
	}
	switch id {
	case ua.ObjectIDOpenSecureChannelResponseEncodingDefaultBinary:
		res := &ua.OpenSecureChannelResponse{}
		if err := dec.Decode(res); err != nil {
			c.t.Fatal(err)
		}
		c.channelID = res.SecurityToken.ChannelID
		c.tokenID = res.SecurityToken.TokenID
		return res, nil
	case ua.ObjectIDServiceFaultEncodingDefaultBinary:
		fault := &ua.ServiceFault{}
		if err := dec.Decode(fault); err != nil {
			c.t.Fatal(err)
		}
		return nil, fault
	}
	c.t.Fatalf("unexpected response type %v", id)
	return nil, nil
}

// open performs the default open handshake with the None security policy.
func (c *testClient) open() *ua.OpenSecureChannelResponse {
	c.t.Helper()
	c.handshake()
	c.sendOpen(&ua.OpenSecureChannelRequest{
		RequestHeader:     ua.RequestHeader{Timestamp: time.Now(), RequestHandle: 1},
		RequestType:       ua.SecurityTokenRequestTypeIssue,
		SecurityMode:      ua.MessageSecurityModeNone,
		ClientNonce:       ua.NilByteString,
		RequestedLifetime: 0,
	}, ua.SecurityPolicyURINone)
	res, fault := c.readOpenResponse()
	if fault != nil {
		c.t.Fatalf("open rejected. %s", fault.ServiceResult.Error())
	}
	return res
}

// sendMessage writes one symmetric chunk holding the encoded body.
func (c *testClient) sendMessage(messageType uint32, id ua.NodeID, encode func(*ua.BinaryEncoder) error) uint32 {
	c.t.Helper()
	w := ua.NewWriter(c.wbuf)
	enc := ua.NewBinaryEncoder(w, c.ec)
	enc.WriteUInt32(messageType)
	enc.WriteUInt32(0)
	enc.WriteUInt32(c.channelID)
	enc.WriteUInt32(c.tokenID)
	c.sequence++
	c.requestID++
	enc.WriteUInt32(c.sequence)
	enc.WriteUInt32(c.requestID)
	enc.WriteNodeID(id)
	if err := encode(enc); err != nil {
		c.t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(c.wbuf[4:8], uint32(w.Len()))
	c.write(w.Bytes())
	return c.requestID
}

// readEchoResponse reads one symmetric chunk holding an echo response.
func (c *testClient) readEchoResponse() *echoResponse {
	c.t.Helper()
	chunk := c.readChunk()
	dec := ua.NewBinaryDecoder(bytes.NewReader(chunk), c.ec)
	var messageType, messageLength, channelID, tokenID uint32
	dec.ReadUInt32(&messageType)
	dec.ReadUInt32(&messageLength)
	dec.ReadUInt32(&channelID)
	dec.ReadUInt32(&tokenID)
	assert.Equal(c.t, messageType, ua.MessageTypeFinal)
	assert.Equal(c.t, channelID, c.channelID)
	assert.Equal(c.t, tokenID, c.tokenID)
	var sequenceHeader ua.SequenceHeader
	if err := dec.ReadSequenceHeader(&sequenceHeader); err != nil {
		c.t.Fatal(err)
	}
	var id ua.NodeID
	if err := dec.ReadNodeID(&id); err != nil {
		c.t.Fatal(err)
	}
	assert.Equal(c.t, id, echoResponseID)
	res := &echoResponse{}
	if err := res.DecodeBinary(dec); err != nil {
		c.t.Fatal(err)
	}
	return res
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannelOpen(t *testing.T) {
	obs := &recordingObserver{}
	ch, client, openErr := startServerChannel(t, uasc.WithObserver(obs))
	res := client.open()
	assert.NilError(t, <-openErr)
	assert.Equal(t, res.ServerProtocolVersion, uint32(0))
	assert.Equal(t, res.RequestHandle, uint32(1))
	assert.Equal(t, res.SecurityToken.ChannelID, ch.ChannelID())
	assert.Equal(t, res.SecurityToken.TokenID, uint32(1))
	assert.Equal(t, res.SecurityToken.RevisedLifetime, uint32(600000))
	assert.Assert(t, ch.IsOpen())
	assert.Equal(t, ch.SecurityPolicyURI(), ua.SecurityPolicyURINone)
	assert.Equal(t, ch.SecurityMode(), ua.MessageSecurityModeNone)
	waitFor(t, func() bool { obs.Lock(); defer obs.Unlock(); return len(obs.tokens) == 1 })
	obs.Lock()
	defer obs.Unlock()
	assert.Equal(t, obs.renewed[0], false)
}

func TestChannelOpenUnknownPolicy(t *testing.T) {
	ch, client, openErr := startServerChannel(t)
	client.handshake()
	client.sendOpen(&ua.OpenSecureChannelRequest{
		RequestHeader: ua.RequestHeader{Timestamp: time.Now(), RequestHandle: 1},
		RequestType:   ua.SecurityTokenRequestTypeIssue,
		SecurityMode:  ua.MessageSecurityModeNone,
		ClientNonce:   ua.NilByteString,
	}, "http://opcfoundation.org/UA/SecurityPolicy#Unknown")
	res, fault := client.readOpenResponse()
	assert.Assert(t, res == nil)
	assert.Equal(t, fault.ServiceResult, ua.BadSecurityPolicyRejected)
	assert.Equal(t, <-openErr, ua.BadSecurityPolicyRejected)
	assert.Assert(t, ch.IsClosed())
	assert.Equal(t, ch.CloseReason(), ua.BadSecurityPolicyRejected)
}

func TestChannelRenewToken(t *testing.T) {
	obs := &recordingObserver{}
	_, client, openErr := startServerChannel(t, uasc.WithObserver(obs))
	client.open()
	assert.NilError(t, <-openErr)
	client.sendOpen(&ua.OpenSecureChannelRequest{
		RequestHeader:     ua.RequestHeader{Timestamp: time.Now(), RequestHandle: 77},
		RequestType:       ua.SecurityTokenRequestTypeRenew,
		SecurityMode:      ua.MessageSecurityModeNone,
		ClientNonce:       ua.NilByteString,
		RequestedLifetime: 30000,
	}, ua.SecurityPolicyURINone)
	res, fault := client.readOpenResponse()
	assert.Assert(t, fault == nil)
	assert.Equal(t, res.RequestHandle, uint32(77))
	assert.Equal(t, res.SecurityToken.TokenID, uint32(2))
	assert.Equal(t, res.SecurityToken.RevisedLifetime, uint32(30000))
	waitFor(t, func() bool { obs.Lock(); defer obs.Unlock(); return len(obs.tokens) == 2 })
	obs.Lock()
	defer obs.Unlock()
	assert.Equal(t, obs.renewed[1], true)
}

func TestChannelServiceRoundTrip(t *testing.T) {
	obs := &recordingObserver{}
	obs.onMessage = func(ch *uasc.Channel, req ua.ServiceRequest, requestID uint32) {
		echo := req.(*echoRequest)
		res := &echoResponse{
			ResponseHeader: ua.ResponseHeader{RequestHandle: echo.RequestHandle},
			Message:        echo.Message,
		}
		if err := ch.SendResponse(res, requestID); err != nil {
			t.Error(err)
		}
	}
	factory := uasc.NewObjectFactory()
	factory.Register(echoRequestID, func() ua.ServiceRequest { return new(echoRequest) })
	_, client, openErr := startServerChannel(t, uasc.WithObserver(obs), uasc.WithObjectFactory(factory))
	client.open()
	assert.NilError(t, <-openErr)

	echo := &echoRequest{
		RequestHeader: ua.RequestHeader{Timestamp: time.Now(), RequestHandle: 5},
		Message:       "the quick brown fox",
	}
	requestID := client.sendMessage(ua.MessageTypeFinal, echoRequestID, echo.EncodeBinary)
	res := client.readEchoResponse()
	assert.Equal(t, res.Message, "the quick brown fox")
	assert.Equal(t, res.RequestHandle, uint32(5))

	waitFor(t, func() bool {
		obs.Lock()
		defer obs.Unlock()
		for _, stats := range obs.stats {
			if stats.RequestID == requestID {
				return true
			}
		}
		return false
	})
	obs.Lock()
	defer obs.Unlock()
	for _, stats := range obs.stats {
		if stats.RequestID == requestID {
			assert.Equal(t, stats.RequestHandle, uint32(5))
			assert.Assert(t, stats.BytesRead > 0)
			assert.Assert(t, stats.BytesWritten > 0)
		}
	}
}

func TestChannelCloseRequest(t *testing.T) {
	ch, client, openErr := startServerChannel(t)
	client.open()
	assert.NilError(t, <-openErr)
	client.sendMessage(ua.MessageTypeCloseFinal, ua.ObjectIDCloseSecureChannelRequestEncodingDefaultBinary, func(enc *ua.BinaryEncoder) error {
		return enc.Encode(&ua.CloseSecureChannelRequest{
			RequestHeader: ua.RequestHeader{Timestamp: time.Now(), RequestHandle: 2},
		})
	})
	waitFor(t, ch.IsClosed)
	assert.Equal(t, ch.CloseReason(), ua.BadSecureChannelClosed)
}

func TestChannelFirstMessageNotOpen(t *testing.T) {
	ch, client, openErr := startServerChannel(t)
	client.handshake()
	client.sendMessage(ua.MessageTypeFinal, echoRequestID, func(enc *ua.BinaryEncoder) error {
		return nil
	})
	chunk := client.readChunk()
	assert.Equal(t, binary.LittleEndian.Uint32(chunk[0:4]), ua.MessageTypeError)
	assert.Equal(t, ua.StatusCode(binary.LittleEndian.Uint32(chunk[8:12])), ua.BadCommunicationError)
	assert.Equal(t, <-openErr, ua.BadCommunicationError)
	assert.Assert(t, ch.IsClosed())
}

func TestChannelOpenTimeout(t *testing.T) {
	ch, _, openErr := startServerChannel(t, uasc.WithOpenTimeout(50*time.Millisecond))
	assert.Equal(t, <-openErr, ua.BadTimeout)
	assert.Assert(t, ch.IsClosed())
	assert.Equal(t, ch.CloseReason(), ua.BadTimeout)
}
