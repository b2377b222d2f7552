// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"crypto/aes"
	"crypto/cipher"
	"io"
	"log"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/djherbis/buffer"
)

// SendResponse encodes and writes a service response. The response header is
// completed from the pending transaction of the given requestID, and the
// observer is notified with the transaction statistics once the response has
// been written.
func (ch *Channel) SendResponse(res ua.ServiceResponse, requestID uint32) error {
	if ch.IsClosed() {
		return ua.BadSecureChannelClosed
	}
	tx := ch.takeTransaction(requestID)
	if tx == nil && ch.trace {
		log.Printf("channel %d sent duplicate response for request id %d", ch.channelID, requestID)
	}
	tick2 := time.Now()
	header := res.Header()
	if header.Timestamp.IsZero() {
		header.Timestamp = tick2
	}
	if tx != nil && header.RequestHandle == 0 {
		header.RequestHandle = tx.requestHandle
	}
	var err error
	switch res.(type) {
	case *ua.OpenSecureChannelResponse:
		err = ch.sendAsymmetric(res, requestID)
	default:
		err = ch.sendSymmetric(res, requestID)
	}
	if tx != nil && ch.observer != nil {
		tick3 := time.Now()
		ch.observer.OnTransactionDone(ch, TransactionStats{
			RequestID:     requestID,
			RequestHandle: tx.requestHandle,
			Reception:     tx.tick1.Sub(tx.tick0),
			Processing:    tick2.Sub(tx.tick1),
			Emission:      tick3.Sub(tick2),
			BytesRead:     ch.transport.BytesRead() - tx.bytesRead,
			BytesWritten:  ch.transport.BytesWritten() - tx.bytesWritten,
		})
	}
	return err
}

// sendAsymmetric writes a response secured with the asymmetric keys of the
// open handshake. Responses of the handshake fit in a single chunk.
func (ch *Channel) sendAsymmetric(res ua.ServiceResponse, requestID uint32) error {
	ch.sendingSemaphore.Lock()
	defer ch.sendingSemaphore.Unlock()
	bodyStream := buffer.NewPartitionAt(bufferPool)
	defer bodyStream.Reset()
	bodyEncoder := ua.NewBinaryEncoder(bodyStream, ch)
	id, err := responseEncodingID(res)
	if err != nil {
		return err
	}
	if err := bodyEncoder.WriteNodeID(id); err != nil {
		return ua.BadEncodingError
	}
	if err := bodyEncoder.Encode(res); err != nil {
		return ua.BadEncodingError
	}
	bodySize := int(bodyStream.Len())

	ch.RLock()
	policy := ch.securityPolicy
	policyURI := ch.securityPolicyURI
	localCertificate := ch.localCertificate
	remotePublicKey := ch.remotePublicKey
	localPrivateKey := ch.localPrivateKey
	plainTextBlockSize := ch.asymRemotePlainTextBlockSize
	cipherTextBlockSize := ch.asymRemoteCipherTextBlockSize
	signatureSize := ch.asymLocalSignatureSize
	ch.RUnlock()
	secure := policyURI != ua.SecurityPolicyURINone

	var senderCertificate ua.ByteString
	var receiverThumbprint ua.ByteString
	var plainHeaderSize int
	if secure {
		senderCertificate = ua.ByteString(localCertificate)
		receiverThumbprint = ua.CertificateThumbprint(ch.RemoteCertificate())
		plainHeaderSize = 16 + len(policyURI) + 28 + len(localCertificate)
	} else {
		plainHeaderSize = 16 + len(policyURI) + 8
	}

	var paddingHeaderSize, maxBodySize, paddingSize, chunkSize int
	sendBufferSize := int(ch.transport.SendBufferSize())
	if secure {
		paddingHeaderSize = 1
		if cipherTextBlockSize > 256 {
			paddingHeaderSize = 2
		}
		maxBodySize = ((sendBufferSize-plainHeaderSize)/cipherTextBlockSize)*plainTextBlockSize - sequenceHeaderSize - paddingHeaderSize - signatureSize
		if bodySize > maxBodySize {
			return ua.BadEncodingLimitsExceeded
		}
		paddingSize = (plainTextBlockSize - ((sequenceHeaderSize + bodySize + paddingHeaderSize + signatureSize) % plainTextBlockSize)) % plainTextBlockSize
		chunkSize = plainHeaderSize + ((sequenceHeaderSize+bodySize+paddingSize+paddingHeaderSize+signatureSize)/plainTextBlockSize)*cipherTextBlockSize
	} else {
		maxBodySize = sendBufferSize - plainHeaderSize - sequenceHeaderSize
		if bodySize > maxBodySize {
			return ua.BadEncodingLimitsExceeded
		}
		chunkSize = plainHeaderSize + sequenceHeaderSize + bodySize
	}

	buf := *(bytesPool.Get().(*[]byte))
	defer bytesPool.Put(&buf)
	writer := ua.NewWriter(buf)
	enc := ua.NewBinaryEncoder(writer, ch)
	enc.WriteUInt32(ua.MessageTypeOpenFinal)
	enc.WriteUInt32(uint32(chunkSize))
	enc.WriteUInt32(ch.channelID)
	enc.WriteString(policyURI)
	enc.WriteByteString(senderCertificate)
	enc.WriteByteString(receiverThumbprint)
	enc.WriteUInt32(ch.getNextSequenceNumber())
	enc.WriteUInt32(requestID)
	if _, err := io.CopyN(writer, bodyStream, int64(bodySize)); err != nil {
		return ua.BadEncodingError
	}
	if secure {
		paddingByte := byte(paddingSize & 0xFF)
		for i := 0; i < paddingSize+1; i++ {
			writer.Write([]byte{paddingByte})
		}
		if paddingHeaderSize == 2 {
			writer.Write([]byte{byte(paddingSize >> 8)})
		}
		signature, err := policy.RSASign(localPrivateKey, writer.Bytes())
		if err != nil {
			return ua.BadSecurityChecksFailed
		}
		writer.Write(signature)

		dst := *(bytesPool.Get().(*[]byte))
		defer bytesPool.Put(&dst)
		copy(dst, writer.Bytes()[:plainHeaderSize])
		jj := plainHeaderSize
		for ii := plainHeaderSize; ii < writer.Len(); ii += plainTextBlockSize {
			cipherText, err := policy.RSAEncrypt(remotePublicKey, writer.Bytes()[ii:ii+plainTextBlockSize])
			if err != nil {
				return ua.BadSecurityChecksFailed
			}
			jj += copy(dst[jj:], cipherText)
		}
		return ch.transport.WriteChunk(dst[:jj])
	}
	return ch.transport.WriteChunk(writer.Bytes())
}

// sendSymmetric writes a response secured with the symmetric keys of the
// current token, splitting the body into chunks as needed.
func (ch *Channel) sendSymmetric(res ua.ServiceResponse, requestID uint32) error {
	ch.sendingSemaphore.Lock()
	defer ch.sendingSemaphore.Unlock()
	bodyStream := buffer.NewPartitionAt(bufferPool)
	defer bodyStream.Reset()
	bodyEncoder := ua.NewBinaryEncoder(bodyStream, ch)
	id, err := responseEncodingID(res)
	if err != nil {
		return err
	}
	if err := bodyEncoder.WriteNodeID(id); err != nil {
		return ua.BadEncodingError
	}
	if err := bodyEncoder.Encode(res); err != nil {
		return ua.BadEncodingError
	}
	bodySize := int(bodyStream.Len())

	mode := ch.SecurityMode()
	ch.RLock()
	policy := ch.securityPolicy
	keys := ch.localKeys
	ch.RUnlock()
	tokenID := ch.tokenManager.CurrentTokenID()
	if mode != ua.MessageSecurityModeNone && keys == nil {
		return ua.BadSecureChannelClosed
	}

	const plainHeaderSize = 16
	sendBufferSize := int(ch.transport.SendBufferSize())
	maxMessageSize := int(ch.transport.MaxMessageSize())
	maxChunkCount := int(ch.transport.MaxChunkCount())
	if maxMessageSize > 0 && bodySize > maxMessageSize {
		return ua.BadEncodingLimitsExceeded
	}

	var signatureSize, blockSize, paddingHeaderSize, maxBodySize int
	switch mode {
	case ua.MessageSecurityModeSignAndEncrypt:
		signatureSize = policy.SymSignatureSize()
		blockSize = policy.SymEncryptionBlockSize()
		paddingHeaderSize = 1
		maxBodySize = ((sendBufferSize-plainHeaderSize)/blockSize)*blockSize - sequenceHeaderSize - paddingHeaderSize - signatureSize
	case ua.MessageSecurityModeSign:
		signatureSize = policy.SymSignatureSize()
		maxBodySize = sendBufferSize - plainHeaderSize - sequenceHeaderSize - signatureSize
	default:
		maxBodySize = sendBufferSize - plainHeaderSize - sequenceHeaderSize
	}

	buf := *(bytesPool.Get().(*[]byte))
	defer bytesPool.Put(&buf)
	chunkCount := 0
	for bodySize > 0 || chunkCount == 0 {
		chunkCount++
		if maxChunkCount > 0 && chunkCount > maxChunkCount {
			return ua.BadEncodingLimitsExceeded
		}
		bodyCount := bodySize
		messageType := ua.MessageTypeFinal
		if bodyCount > maxBodySize {
			bodyCount = maxBodySize
			messageType = ua.MessageTypeChunk
		}
		if _, ok := res.(*ua.CloseSecureChannelResponse); ok && messageType == ua.MessageTypeFinal {
			messageType = ua.MessageTypeCloseFinal
		}
		var paddingSize, chunkSize int
		if mode == ua.MessageSecurityModeSignAndEncrypt {
			paddingSize = (blockSize - ((sequenceHeaderSize + bodyCount + paddingHeaderSize + signatureSize) % blockSize)) % blockSize
			chunkSize = plainHeaderSize + sequenceHeaderSize + bodyCount + paddingSize + paddingHeaderSize + signatureSize
		} else {
			chunkSize = plainHeaderSize + sequenceHeaderSize + bodyCount + signatureSize
		}

		writer := ua.NewWriter(buf)
		enc := ua.NewBinaryEncoder(writer, ch)
		enc.WriteUInt32(messageType)
		enc.WriteUInt32(uint32(chunkSize))
		enc.WriteUInt32(ch.channelID)
		enc.WriteUInt32(tokenID)
		enc.WriteUInt32(ch.getNextSequenceNumber())
		enc.WriteUInt32(requestID)
		if _, err := io.CopyN(writer, bodyStream, int64(bodyCount)); err != nil {
			return ua.BadEncodingError
		}
		bodySize -= bodyCount
		if mode == ua.MessageSecurityModeSignAndEncrypt {
			paddingByte := byte(paddingSize & 0xFF)
			for i := 0; i < paddingSize+1; i++ {
				writer.Write([]byte{paddingByte})
			}
		}
		if mode != ua.MessageSecurityModeNone {
			mac := policy.SymHMACFactory(keys.signingKey)
			mac.Write(writer.Bytes())
			writer.Write(mac.Sum(nil))
		}
		if mode == ua.MessageSecurityModeSignAndEncrypt {
			block, err := aes.NewCipher(keys.encryptingKey)
			if err != nil {
				return ua.BadSecurityChecksFailed
			}
			cbc := cipher.NewCBCEncrypter(block, keys.iv)
			p := writer.Bytes()
			cbc.CryptBlocks(p[plainHeaderSize:], p[plainHeaderSize:])
		}
		if err := ch.transport.WriteChunk(writer.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
