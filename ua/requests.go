// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

import "time"

// RequestHeader is the common header of every service request.
type RequestHeader struct {
	AuthenticationToken NodeID
	Timestamp           time.Time
	RequestHandle       uint32
	ReturnDiagnostics   uint32
	AuditEntryID        string
	TimeoutHint         uint32
}

// ResponseHeader is the common header of every service response.
type ResponseHeader struct {
	Timestamp     time.Time
	RequestHandle uint32
	ServiceResult StatusCode
	StringTable   []string
}

// ServiceRequest is a request for a service.
type ServiceRequest interface {
	Header() *RequestHeader
}

// Header returns the request header.
func (h *RequestHeader) Header() *RequestHeader {
	return h
}

// ServiceResponse is a response from a service.
type ServiceResponse interface {
	Header() *ResponseHeader
}

// Header returns the response header.
func (h *ResponseHeader) Header() *ResponseHeader {
	return h
}

// ChannelSecurityToken describes the token issued for a secure channel.
type ChannelSecurityToken struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime uint32
}

// OpenSecureChannelRequest opens or renews a secure channel.
type OpenSecureChannelRequest struct {
	RequestHeader
	ClientProtocolVersion uint32
	RequestType           SecurityTokenRequestType
	SecurityMode          MessageSecurityMode
	ClientNonce           ByteString
	RequestedLifetime     uint32
}

// OpenSecureChannelResponse is the response to an OpenSecureChannelRequest.
type OpenSecureChannelResponse struct {
	ResponseHeader
	ServerProtocolVersion uint32
	SecurityToken         ChannelSecurityToken
	ServerNonce           ByteString
}

// CloseSecureChannelRequest closes a secure channel.
type CloseSecureChannelRequest struct {
	RequestHeader
}

// CloseSecureChannelResponse is the response to a CloseSecureChannelRequest.
type CloseSecureChannelResponse struct {
	ResponseHeader
}

// ServiceFault is returned when a service level error occurs.
type ServiceFault struct {
	ResponseHeader
}

// AsymmetricSecurityHeader secures the OpenSecureChannel messages.
type AsymmetricSecurityHeader struct {
	SecurityPolicyURI             string
	SenderCertificate             ByteString
	ReceiverCertificateThumbprint ByteString
}

// SymmetricSecurityHeader secures the ordinary messages of a channel.
type SymmetricSecurityHeader struct {
	TokenID uint32
}

// SequenceHeader correlates a chunk with a request.
type SequenceHeader struct {
	SequenceNumber uint32
	RequestID      uint32
}
