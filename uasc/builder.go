// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"log"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/djherbis/buffer"
)

// readRequest reads the chunks of one message from the transport, removes the
// security layer, and decodes the service request.
func (ch *Channel) readRequest() (ua.ServiceRequest, uint32, error) {
	ch.receivingSemaphore.Lock()
	defer ch.receivingSemaphore.Unlock()
	buf := *(bytesPool.Get().(*[]byte))
	defer bytesPool.Put(&buf)
	bodyStream := buffer.NewPartitionAt(bufferPool)
	defer bodyStream.Reset()
	bodyDecoder := ua.NewBinaryDecoder(bodyStream, ch)

	var requestID uint32
	var tick0 time.Time
	var bytesRead0, bytesWritten0 uint64
	var bodySize int
	var chunkCount uint32
	maxChunkCount := ch.transport.MaxChunkCount()
	maxMessageSize := int(ch.transport.MaxMessageSize())

loop:
	for {
		count, err := ch.transport.ReadChunk(buf)
		if err != nil {
			return nil, 0, err
		}
		if tick0.IsZero() {
			tick0 = time.Now()
			bytesRead0 = ch.transport.BytesRead() - uint64(count)
			bytesWritten0 = ch.transport.BytesWritten()
		}
		chunkCount++
		if maxChunkCount > 0 && chunkCount > maxChunkCount {
			return nil, 0, ua.BadEncodingLimitsExceeded
		}

		stream := bytes.NewReader(buf[0:count])
		dec := ua.NewBinaryDecoder(stream, ch)
		var messageType, messageLength uint32
		if err := dec.ReadUInt32(&messageType); err != nil {
			return nil, 0, ua.BadDecodingError
		}
		if err := dec.ReadUInt32(&messageLength); err != nil {
			return nil, 0, ua.BadDecodingError
		}
		if int(messageLength) != count {
			return nil, 0, ua.BadDecodingError
		}

		switch messageType {
		case ua.MessageTypeChunk, ua.MessageTypeFinal, ua.MessageTypeCloseFinal:
			if !ch.IsOpen() {
				return nil, 0, ua.BadCommunicationError
			}
			var channelID, tokenID uint32
			if err := dec.ReadUInt32(&channelID); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if channelID != ch.channelID {
				return nil, 0, ua.BadTCPSecureChannelUnknown
			}
			if err := dec.ReadUInt32(&tokenID); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if err := ch.tokenManager.Validate(tokenID); err != nil {
				return nil, 0, err
			}
			mode := ch.SecurityMode()
			var keys *securityKeySet
			if mode != ua.MessageSecurityModeNone {
				ch.RLock()
				keys = ch.inboundKeys[tokenID]
				ch.RUnlock()
				if keys == nil {
					return nil, 0, ua.BadSecureChannelTokenUnknown
				}
			}
			const plainHeaderSize = 16
			if mode == ua.MessageSecurityModeSignAndEncrypt {
				block, err := aes.NewCipher(keys.encryptingKey)
				if err != nil {
					return nil, 0, ua.BadSecurityChecksFailed
				}
				if (count-plainHeaderSize)%block.BlockSize() != 0 {
					return nil, 0, ua.BadSecurityChecksFailed
				}
				cbc := cipher.NewCBCDecrypter(block, keys.iv)
				cbc.CryptBlocks(buf[plainHeaderSize:count], buf[plainHeaderSize:count])
			}
			signatureSize := 0
			if mode != ua.MessageSecurityModeNone {
				signatureSize = ch.securityPolicy.SymSignatureSize()
				mac := ch.securityPolicy.SymHMACFactory(keys.signingKey)
				mac.Write(buf[:count-signatureSize])
				if !hmac.Equal(mac.Sum(nil), buf[count-signatureSize:count]) {
					return nil, 0, ua.BadSecurityChecksFailed
				}
			}
			var sequenceHeader ua.SequenceHeader
			if err := dec.ReadSequenceHeader(&sequenceHeader); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if ch.trace && ch.lastSequenceNumber != 0 && sequenceHeader.SequenceNumber != ch.lastSequenceNumber+1 {
				log.Printf("channel %d received sequence number %d, expected %d", ch.channelID, sequenceHeader.SequenceNumber, ch.lastSequenceNumber+1)
			}
			ch.lastSequenceNumber = sequenceHeader.SequenceNumber
			requestID = sequenceHeader.RequestID
			paddingSize := 0
			paddingHeaderSize := 0
			if mode == ua.MessageSecurityModeSignAndEncrypt {
				paddingHeaderSize = 1
				paddingSize = int(buf[count-signatureSize-1])
			}
			bodyStart := plainHeaderSize + sequenceHeaderSize
			bodyEnd := count - signatureSize - paddingSize - paddingHeaderSize
			if bodyEnd < bodyStart {
				return nil, 0, ua.BadDecodingError
			}
			bodySize += bodyEnd - bodyStart
			if maxMessageSize > 0 && bodySize > maxMessageSize {
				return nil, 0, ua.BadEncodingLimitsExceeded
			}
			if _, err := bodyStream.Write(buf[bodyStart:bodyEnd]); err != nil {
				return nil, 0, ua.BadTCPInternalError
			}
			if messageType == ua.MessageTypeChunk {
				continue
			}
			break loop

		case ua.MessageTypeOpenFinal:
			var channelID uint32
			if err := dec.ReadUInt32(&channelID); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			var securityHeader ua.AsymmetricSecurityHeader
			if err := dec.ReadAsymmetricSecurityHeader(&securityHeader); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if err := ch.setSecurityPolicy(securityHeader.SecurityPolicyURI); err != nil {
				return nil, 0, err
			}
			if err := ch.setRemoteCertificate([]byte(securityHeader.SenderCertificate)); err != nil {
				return nil, 0, err
			}
			ch.Lock()
			ch.receivedThumbprint = securityHeader.ReceiverCertificateThumbprint
			ch.Unlock()
			plainHeaderSize := count - stream.Len()
			bodyEnd := count
			if ch.securityPolicyURI != ua.SecurityPolicyURINone {
				// decrypt with the local private key
				cipherTextBlockSize := ch.asymLocalCipherTextBlockSize
				if cipherTextBlockSize == 0 || (count-plainHeaderSize)%cipherTextBlockSize != 0 {
					return nil, 0, ua.BadSecurityChecksFailed
				}
				cipherText := make([]byte, cipherTextBlockSize)
				jj := plainHeaderSize
				for ii := plainHeaderSize; ii < count; ii += cipherTextBlockSize {
					copy(cipherText, buf[ii:ii+cipherTextBlockSize])
					plainText, err := ch.securityPolicy.RSADecrypt(ch.localPrivateKey, cipherText)
					if err != nil {
						return nil, 0, ua.BadSecurityChecksFailed
					}
					jj += copy(buf[jj:], plainText)
				}
				count = jj
				// verify the signature with the remote public key
				signatureSize := ch.asymRemoteSignatureSize
				sigStart := count - signatureSize
				if sigStart < plainHeaderSize+sequenceHeaderSize {
					return nil, 0, ua.BadSecurityChecksFailed
				}
				if err := ch.securityPolicy.RSAVerify(ch.remotePublicKey, buf[:sigStart], buf[sigStart:count]); err != nil {
					return nil, 0, ua.BadSecurityChecksFailed
				}
				paddingHeaderSize := 1
				if ch.asymLocalCipherTextBlockSize > 256 {
					paddingHeaderSize = 2
				}
				paddingSize := 0
				if paddingHeaderSize == 2 {
					paddingSize = int(binary.LittleEndian.Uint16(buf[sigStart-2 : sigStart]))
				} else {
					paddingSize = int(buf[sigStart-1])
				}
				bodyEnd = sigStart - paddingHeaderSize - paddingSize
			}
			var sequenceHeader ua.SequenceHeader
			if err := dec.ReadSequenceHeader(&sequenceHeader); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			ch.lastSequenceNumber = sequenceHeader.SequenceNumber
			requestID = sequenceHeader.RequestID
			bodyStart := plainHeaderSize + sequenceHeaderSize
			if bodyEnd < bodyStart {
				return nil, 0, ua.BadDecodingError
			}
			bodySize += bodyEnd - bodyStart
			if maxMessageSize > 0 && bodySize > maxMessageSize {
				return nil, 0, ua.BadEncodingLimitsExceeded
			}
			if _, err := bodyStream.Write(buf[bodyStart:bodyEnd]); err != nil {
				return nil, 0, ua.BadTCPInternalError
			}
			break loop

		case ua.MessageTypeError, ua.MessageTypeAbort:
			var statusCode uint32
			var message string
			if err := dec.ReadUInt32(&statusCode); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if err := dec.ReadString(&message); err != nil {
				return nil, 0, ua.BadDecodingError
			}
			if messageType == ua.MessageTypeAbort {
				// the remote side abandoned the message, wait for the next one
				bodyStream.Reset()
				bodySize = 0
				chunkCount = 0
				tick0 = time.Time{}
				continue
			}
			return nil, 0, ua.StatusCode(statusCode)

		default:
			return nil, 0, ua.BadTCPMessageTypeInvalid
		}
	}

	var nodeID ua.NodeID
	if err := bodyDecoder.ReadNodeID(&nodeID); err != nil {
		return nil, 0, ua.BadDecodingError
	}
	req, err := ch.factory.New(nodeID)
	if err != nil {
		return nil, 0, err
	}
	if err := bodyDecoder.Decode(req); err != nil {
		return nil, 0, ua.BadDecodingError
	}
	tick1 := time.Now()
	ch.addTransaction(&transaction{
		requestID:     requestID,
		requestHandle: req.Header().RequestHandle,
		tick0:         tick0,
		tick1:         tick1,
		bytesRead:     bytesRead0,
		bytesWritten:  bytesWritten0,
	})
	return req, requestID, nil
}
