// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"time"

	"github.com/gammazero/workerpool"
)

const (
	// protocolVersion of the transport protocol.
	protocolVersion uint32 = 0
	// defaultBufferSize sets the default size of the send and receive buffers.
	defaultBufferSize uint32 = 64 * 1024
	// defaultMaxMessageSize sets the default maximum size of a message that may be sent or received.
	defaultMaxMessageSize uint32 = 16 * 1024 * 1024
	// defaultMaxChunkCount sets the default maximum number of message chunks that may be sent or received.
	defaultMaxChunkCount uint32 = 4 * 1024
	// defaultMaxWorkerThreads sets the default number of worker threads that may be created.
	defaultMaxWorkerThreads int = 4
	// defaultSecureTokenLifetime sets the default lifetime of a security token, in milliseconds.
	defaultSecureTokenLifetime uint32 = 600000
	// defaultOpenTimeout sets how long a new connection may take to complete the handshake.
	defaultOpenTimeout time.Duration = 10 * time.Second
	// sequenceHeaderSize is the size of the sequence header, in bytes.
	sequenceHeaderSize int = 8
)

// channelOptions hold the channel configuration.
type channelOptions struct {
	receiveBufferSize uint32
	sendBufferSize    uint32
	maxMessageSize    uint32
	maxChunkCount     uint32
	tokenLifetime     uint32
	openTimeout       time.Duration
	observer          ChannelObserver
	factory           *ObjectFactory
	validator         *CertificateValidator
	workerPool        *workerpool.WorkerPool
	maxWorkerThreads  int
	trace             bool
}

func defaultChannelOptions() channelOptions {
	return channelOptions{
		receiveBufferSize: defaultBufferSize,
		sendBufferSize:    defaultBufferSize,
		maxMessageSize:    defaultMaxMessageSize,
		maxChunkCount:     defaultMaxChunkCount,
		tokenLifetime:     defaultSecureTokenLifetime,
		openTimeout:       defaultOpenTimeout,
		factory:           NewObjectFactory(),
		validator:         NewCertificateValidator(),
		maxWorkerThreads:  defaultMaxWorkerThreads,
	}
}

// Option is a functional option for configuring channels and endpoints.
type Option func(*channelOptions) error

// WithReceiveBufferSize sets the size of the receive buffer.
func WithReceiveBufferSize(size uint32) Option {
	return func(opts *channelOptions) error {
		opts.receiveBufferSize = size
		return nil
	}
}

// WithSendBufferSize sets the size of the send buffer.
func WithSendBufferSize(size uint32) Option {
	return func(opts *channelOptions) error {
		opts.sendBufferSize = size
		return nil
	}
}

// WithMaxMessageSize sets the maximum size of a message that may be sent or received.
func WithMaxMessageSize(size uint32) Option {
	return func(opts *channelOptions) error {
		opts.maxMessageSize = size
		return nil
	}
}

// WithMaxChunkCount sets the maximum number of chunks of a message.
func WithMaxChunkCount(count uint32) Option {
	return func(opts *channelOptions) error {
		opts.maxChunkCount = count
		return nil
	}
}

// WithSecureTokenLifetime sets the maximum lifetime granted to a security
// token, in milliseconds.
func WithSecureTokenLifetime(ms uint32) Option {
	return func(opts *channelOptions) error {
		opts.tokenLifetime = ms
		return nil
	}
}

// WithOpenTimeout sets how long a new connection may take to complete the
// handshake before the channel is aborted.
func WithOpenTimeout(d time.Duration) Option {
	return func(opts *channelOptions) error {
		opts.openTimeout = d
		return nil
	}
}

// WithObserver sets the observer that receives channel notifications.
func WithObserver(observer ChannelObserver) Option {
	return func(opts *channelOptions) error {
		opts.observer = observer
		return nil
	}
}

// WithObjectFactory sets the factory used to instantiate service requests.
func WithObjectFactory(factory *ObjectFactory) Option {
	return func(opts *channelOptions) error {
		opts.factory = factory
		return nil
	}
}

// WithCertificateValidator sets the validator applied to client certificates.
func WithCertificateValidator(validator *CertificateValidator) Option {
	return func(opts *channelOptions) error {
		opts.validator = validator
		return nil
	}
}

// WithMaxWorkerThreads sets the number of worker threads that dispatch
// service requests to the observer.
func WithMaxWorkerThreads(n int) Option {
	return func(opts *channelOptions) error {
		opts.maxWorkerThreads = n
		return nil
	}
}

// withWorkerPool shares the endpoint's worker pool with its channels.
func withWorkerPool(wp *workerpool.WorkerPool) Option {
	return func(opts *channelOptions) error {
		opts.workerPool = wp
		return nil
	}
}

// WithTrace enables debug logging, including duplicate request and response detection.
func WithTrace() Option {
	return func(opts *channelOptions) error {
		opts.trace = true
		return nil
	}
}
