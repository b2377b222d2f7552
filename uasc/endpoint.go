// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log"
	"net"
	"net/url"
	"os"
	"sync"

	"github.com/awcullen/uasc/ua"
	"github.com/gammazero/workerpool"
)

// Endpoint listens for connections and serves one secure channel per
// connection. All channels share a worker pool for dispatching requests
// to the observer.
type Endpoint struct {
	sync.Mutex
	endpointURL      string
	endpoints        []EndpointDescription
	localCertificate []byte
	localPrivateKey  *rsa.PrivateKey
	opts             []Option
	channelManager   *ChannelManager
	workerPool       *workerpool.WorkerPool
	listener         net.Listener
	closing          chan struct{}
	closeOnce        sync.Once
}

// NewEndpoint returns an endpoint listening at endpointURL, an opc.tcp url.
// The certificate and key may be nil when only the None security policy is
// offered.
func NewEndpoint(endpointURL string, localCertificate []byte, localPrivateKey *rsa.PrivateKey, endpoints []EndpointDescription, opts ...Option) (*Endpoint, error) {
	options := defaultChannelOptions()
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	return &Endpoint{
		endpointURL:      endpointURL,
		endpoints:        endpoints,
		localCertificate: localCertificate,
		localPrivateKey:  localPrivateKey,
		opts:             opts,
		channelManager:   NewChannelManager(),
		workerPool:       workerpool.New(options.maxWorkerThreads),
		closing:          make(chan struct{}),
	}, nil
}

// ChannelManager returns the manager tracking the channels of the endpoint.
func (e *Endpoint) ChannelManager() *ChannelManager {
	return e.channelManager
}

// EndpointURL returns the url the endpoint listens at.
func (e *Endpoint) EndpointURL() string {
	return e.endpointURL
}

// ListenAndServe accepts connections until Close is called.
func (e *Endpoint) ListenAndServe() error {
	u, err := url.Parse(e.endpointURL)
	if err != nil {
		return ua.BadTCPEndpointURLInvalid
	}
	if u.Scheme != "opc.tcp" {
		return ua.BadTCPEndpointURLInvalid
	}
	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return err
	}
	e.Lock()
	e.listener = listener
	e.Unlock()
	log.Printf("listening at %s", e.endpointURL)
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-e.closing:
				return nil
			default:
				return err
			}
		}
		go e.serveConn(conn)
	}
}

func (e *Endpoint) serveConn(conn net.Conn) {
	opts := append([]Option{}, e.opts...)
	opts = append(opts, withWorkerPool(e.workerPool))
	ch, err := NewServerChannel(conn, e.localCertificate, e.localPrivateKey, e.endpoints, opts...)
	if err != nil {
		conn.Close()
		return
	}
	e.channelManager.Add(ch)
	if err := ch.Open(context.Background()); err != nil {
		e.channelManager.Delete(ch)
	}
}

// Close stops the listener, closes all channels, and waits for queued
// requests to finish.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.closing)
		e.Lock()
		listener := e.listener
		e.Unlock()
		if listener != nil {
			listener.Close()
		}
		e.channelManager.Close()
		e.workerPool.StopWait()
	})
	return nil
}

// LoadCertificateFromFile reads a DER encoded certificate from a PEM file.
func LoadCertificateFromFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ua.BadCertificateInvalid
	}
	return block.Bytes, nil
}

// LoadPrivateKeyFromFile reads an RSA private key from a PEM file.
func LoadPrivateKeyFromFile(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ua.BadSecurityChecksFailed
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ua.BadSecurityChecksFailed
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ua.BadSecurityChecksFailed
	}
	return rsaKey, nil
}
