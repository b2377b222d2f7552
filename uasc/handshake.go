// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"crypto/rsa"
	"crypto/x509"
	"time"

	"github.com/awcullen/uasc/ua"
)

// setSecurityPolicy selects the security policy of the channel. The policy is
// fixed by the first open request, later open requests must carry the same uri.
func (ch *Channel) setSecurityPolicy(uri string) error {
	ch.Lock()
	defer ch.Unlock()
	if ch.securityPolicy != nil {
		if ch.securityPolicyURI != uri {
			return ua.BadSecurityPolicyRejected
		}
		return nil
	}
	policy, err := ua.SecurityPolicyForURI(uri)
	if err != nil {
		return err
	}
	ch.securityPolicyURI = uri
	ch.securityPolicy = policy
	if uri != ua.SecurityPolicyURINone && ch.localPrivateKey != nil {
		keySize := len(ch.localPrivateKey.D.Bytes())
		ch.asymLocalKeySize = keySize
		ch.asymLocalPlainTextBlockSize = keySize - policy.RSAPaddingSize()
		ch.asymLocalCipherTextBlockSize = keySize
		ch.asymLocalSignatureSize = keySize
	}
	return nil
}

// setRemoteCertificate stores the sender certificate of an open request and
// prepares the asymmetric sizes derived from its public key.
func (ch *Channel) setRemoteCertificate(cert []byte) error {
	ch.Lock()
	defer ch.Unlock()
	ch.remoteCertificate = cert
	if len(cert) == 0 {
		return nil
	}
	crt, err := x509.ParseCertificate(cert)
	if err != nil {
		return ua.BadSecurityChecksFailed
	}
	pub, ok := crt.PublicKey.(*rsa.PublicKey)
	if !ok {
		return ua.BadSecurityChecksFailed
	}
	ch.remotePublicKey = pub
	keySize := len(pub.N.Bytes())
	ch.asymRemoteKeySize = keySize
	ch.asymRemotePlainTextBlockSize = keySize - ch.securityPolicy.RSAPaddingSize()
	ch.asymRemoteCipherTextBlockSize = keySize
	ch.asymRemoteSignatureSize = keySize
	return nil
}

// deriveKeys computes the symmetric keys for both directions of traffic from
// the exchanged nonces. The inbound keys are stored under the given token id
// so that messages secured with a retained previous token remain verifiable.
func (ch *Channel) deriveKeys(tokenID uint32) {
	ch.Lock()
	defer ch.Unlock()
	policy := ch.securityPolicy
	sigKeySize := policy.SymSignatureKeySize()
	encKeySize := policy.SymEncryptionKeySize()
	blockSize := policy.SymEncryptionBlockSize()
	n := sigKeySize + encKeySize + blockSize
	localMaterial := ua.CalculatePSHA(ch.remoteNonce, ch.localNonce, n)
	remoteMaterial := ua.CalculatePSHA(ch.localNonce, ch.remoteNonce, n)
	ch.localKeys = &securityKeySet{
		signingKey:    localMaterial[:sigKeySize],
		encryptingKey: localMaterial[sigKeySize : sigKeySize+encKeySize],
		iv:            localMaterial[sigKeySize+encKeySize:],
	}
	ch.inboundKeys[tokenID] = &securityKeySet{
		signingKey:    remoteMaterial[:sigKeySize],
		encryptingKey: remoteMaterial[sigKeySize : sigKeySize+encKeySize],
		iv:            remoteMaterial[sigKeySize+encKeySize:],
	}
	cur, prev := ch.tokenManager.CurrentTokenID(), ch.tokenManager.PreviousTokenID()
	for id, keys := range ch.inboundKeys {
		if id != cur && id != prev {
			keys.zeroise()
			delete(ch.inboundKeys, id)
		}
	}
}

// endpointOffered checks the policy and mode of an open request against the
// configured endpoints.
func (ch *Channel) endpointOffered(uri string, mode ua.MessageSecurityMode) ua.StatusCode {
	policyOffered := false
	for _, ep := range ch.endpoints {
		if ep.SecurityPolicyURI != uri {
			continue
		}
		policyOffered = true
		if ep.SecurityMode == mode {
			return ua.Good
		}
	}
	if !policyOffered {
		return ua.BadSecurityPolicyRejected
	}
	return ua.BadSecurityModeRejected
}

// handleOpenSecureChannel performs the security handshake for the first open
// request of the channel. Rejections are answered with a ServiceFault, or with
// a degraded open response for thumbprint and nonce-length mismatches, and
// close the channel.
func (ch *Channel) handleOpenSecureChannel(req *ua.OpenSecureChannelRequest, requestID uint32) error {
	mode := req.SecurityMode
	if mode == ua.MessageSecurityModeInvalid {
		return ch.openFault(requestID, req.RequestHandle, ua.BadSecurityModeRejected)
	}
	if result := ch.endpointOffered(ch.securityPolicyURI, mode); result.IsBad() {
		return ch.openFault(requestID, req.RequestHandle, result)
	}
	if req.RequestType != ua.SecurityTokenRequestTypeIssue {
		return ch.openFault(requestID, req.RequestHandle, ua.BadSecurityChecksFailed)
	}
	if mode != ua.MessageSecurityModeNone {
		// certificate validity outranks the thumbprint check
		if result := ch.validator.Validate(ch.remoteCertificate); result.IsBad() {
			return ch.openFault(requestID, req.RequestHandle, result)
		}
		if ch.receivedThumbprint != ch.localCertificateThumbprint {
			return ch.openDegraded(requestID, req.RequestHandle, ua.BadCertificateInvalid)
		}
		if len(req.ClientNonce) != ch.securityPolicy.NonceSize() {
			return ch.openDegraded(requestID, req.RequestHandle, ua.BadSecurityModeRejected)
		}
	}
	ch.Lock()
	ch.securityMode = mode
	ch.remoteNonce = []byte(req.ClientNonce)
	ch.localNonce = getNextNonce(ch.securityPolicy.NonceSize())
	ch.Unlock()
	token := ch.tokenManager.Issue(req.RequestedLifetime)
	if mode != ua.MessageSecurityModeNone {
		ch.deriveKeys(token.TokenID)
	}
	res := &ua.OpenSecureChannelResponse{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Now(),
			RequestHandle: req.RequestHandle,
			ServiceResult: ua.Good,
		},
		ServerProtocolVersion: protocolVersion,
		SecurityToken:         token,
		ServerNonce:           ua.ByteString(ch.localNonce),
	}
	if err := ch.SendResponse(res, requestID); err != nil {
		code := statusFromError(err)
		ch.shutdown(channelAborted, code, "unable to send open response", false, false)
		return code
	}
	if ch.observer != nil {
		ch.observer.OnTokenIssued(ch, token, false)
	}
	return nil
}

// handleRenewSecureChannel renews the security token of an open channel.
// The previous token stays valid for inbound messages until the client first
// uses the new token or the previous token expires. Outbound messages switch
// to the new token immediately.
func (ch *Channel) handleRenewSecureChannel(req *ua.OpenSecureChannelRequest, requestID uint32) error {
	if req.RequestType != ua.SecurityTokenRequestTypeRenew {
		return ua.BadSecurityChecksFailed
	}
	if req.SecurityMode != ch.SecurityMode() {
		return ch.openFault(requestID, req.RequestHandle, ua.BadSecurityModeRejected)
	}
	if ch.SecurityMode() != ua.MessageSecurityModeNone &&
		len(req.ClientNonce) != ch.securityPolicy.NonceSize() {
		return ch.openDegraded(requestID, req.RequestHandle, ua.BadSecurityModeRejected)
	}
	ch.Lock()
	ch.remoteNonce = []byte(req.ClientNonce)
	ch.localNonce = getNextNonce(ch.securityPolicy.NonceSize())
	ch.Unlock()
	token := ch.tokenManager.Renew(req.RequestedLifetime)
	if ch.SecurityMode() != ua.MessageSecurityModeNone {
		ch.deriveKeys(token.TokenID)
	}
	res := &ua.OpenSecureChannelResponse{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Now(),
			RequestHandle: req.RequestHandle,
			ServiceResult: ua.Good,
		},
		ServerProtocolVersion: protocolVersion,
		SecurityToken:         token,
		ServerNonce:           ua.ByteString(ch.localNonce),
	}
	if err := ch.SendResponse(res, requestID); err != nil {
		return err
	}
	if ch.observer != nil {
		ch.observer.OnTokenIssued(ch, token, true)
	}
	return nil
}

// openFault answers an open request with a ServiceFault and closes the
// channel after the fault has been written. The observer is only notified
// when the channel had already reached the open state.
func (ch *Channel) openFault(requestID, requestHandle uint32, code ua.StatusCode) error {
	ch.sendOpenSecureChannelFault(requestID, requestHandle, code)
	ch.shutdown(channelAborted, code, code.Error(), false, ch.IsOpen())
	return code
}

// openDegraded answers an open request with a response carrying the failing
// service result, then closes the channel. A degraded response lets the
// client read the reason; a ServiceFault is reserved for failures that
// invalidate the request itself.
func (ch *Channel) openDegraded(requestID, requestHandle uint32, code ua.StatusCode) error {
	res := &ua.OpenSecureChannelResponse{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Now(),
			RequestHandle: requestHandle,
			ServiceResult: code,
		},
		ServerProtocolVersion: protocolVersion,
	}
	ch.sendAsymmetric(res, requestID)
	ch.shutdown(channelAborted, code, code.Error(), false, ch.IsOpen())
	return code
}

// sendOpenSecureChannelFault writes a ServiceFault using the asymmetric path.
func (ch *Channel) sendOpenSecureChannelFault(requestID, requestHandle uint32, code ua.StatusCode) error {
	fault := &ua.ServiceFault{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Now(),
			RequestHandle: requestHandle,
			ServiceResult: code,
		},
	}
	return ch.sendAsymmetric(fault, requestID)
}
