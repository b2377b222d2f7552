// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"time"

	"github.com/awcullen/uasc/ua"
)

// TransactionStats summarizes the lifecycle of a single request/response pair.
// Reception covers reading and decoding the request chunks, Processing covers
// the time spent by the application handler, and Emission covers encoding and
// writing the response chunks.
type TransactionStats struct {
	RequestID     uint32
	RequestHandle uint32
	Reception     time.Duration
	Processing    time.Duration
	Emission      time.Duration
	BytesRead     uint64
	BytesWritten  uint64
}

// ChannelObserver receives notifications from a Channel. Methods are called
// from the channel's worker goroutines and must not block for long.
type ChannelObserver interface {

	// OnMessage is called when a service request arrives on an open channel.
	// The observer completes the transaction by calling ch.SendResponse with
	// the given requestID.
	OnMessage(ch *Channel, req ua.ServiceRequest, requestID uint32)

	// OnTokenIssued is called after a security token is issued or renewed.
	OnTokenIssued(ch *Channel, token ua.ChannelSecurityToken, renewed bool)

	// OnTransactionDone is called after the response of a transaction has been
	// written to the transport.
	OnTransactionDone(ch *Channel, stats TransactionStats)

	// OnAbort is called at most once, when an open channel is aborted.
	// Failures of the open handshake are reported only by the error
	// returned from Open, and Close does not call OnAbort.
	OnAbort(ch *Channel, reason ua.StatusCode, message string)
}
