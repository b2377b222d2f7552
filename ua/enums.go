// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

// MessageSecurityMode selects the security applied to messages on a channel.
type MessageSecurityMode int32

// MessageSecurityModes
const (
	MessageSecurityModeInvalid        MessageSecurityMode = 0
	MessageSecurityModeNone           MessageSecurityMode = 1
	MessageSecurityModeSign           MessageSecurityMode = 2
	MessageSecurityModeSignAndEncrypt MessageSecurityMode = 3
)

// SecurityTokenRequestType indicates whether a token is requested for a new
// channel or to renew an existing one.
type SecurityTokenRequestType int32

// SecurityTokenRequestTypes
const (
	SecurityTokenRequestTypeIssue SecurityTokenRequestType = 0
	SecurityTokenRequestTypeRenew SecurityTokenRequestType = 1
)

// IDType is the type of a NodeID identifier.
type IDType int32

// IDTypes
const (
	IDTypeNumeric IDType = 0
	IDTypeString  IDType = 1
	IDTypeGUID    IDType = 2
	IDTypeOpaque  IDType = 3
)
