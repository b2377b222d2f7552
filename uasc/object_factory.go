// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"sync"

	"github.com/awcullen/uasc/ua"
)

// ObjectFactory maps binary encoding ids to service request constructors.
// The channel layer registers its own messages, applications register the
// requests of the service sets they implement.
type ObjectFactory struct {
	sync.RWMutex
	constructors map[ua.NodeID]func() ua.ServiceRequest
}

// NewObjectFactory returns a factory with the channel-layer requests registered.
func NewObjectFactory() *ObjectFactory {
	f := &ObjectFactory{constructors: make(map[ua.NodeID]func() ua.ServiceRequest)}
	f.Register(ua.ObjectIDOpenSecureChannelRequestEncodingDefaultBinary, func() ua.ServiceRequest { return new(ua.OpenSecureChannelRequest) })
	f.Register(ua.ObjectIDCloseSecureChannelRequestEncodingDefaultBinary, func() ua.ServiceRequest { return new(ua.CloseSecureChannelRequest) })
	return f
}

// Register stores a constructor for the given encoding id.
func (f *ObjectFactory) Register(id ua.NodeID, constructor func() ua.ServiceRequest) {
	f.Lock()
	defer f.Unlock()
	f.constructors[id] = constructor
}

// New returns a new request for the given encoding id, or
// BadServiceUnsupported when the id is not registered.
func (f *ObjectFactory) New(id ua.NodeID) (ua.ServiceRequest, error) {
	f.RLock()
	constructor, ok := f.constructors[id]
	f.RUnlock()
	if !ok {
		return nil, ua.BadServiceUnsupported
	}
	return constructor(), nil
}

// responseEncodingID returns the binary encoding id of a service response.
func responseEncodingID(res ua.ServiceResponse) (ua.NodeID, error) {
	switch res.(type) {
	case *ua.OpenSecureChannelResponse:
		return ua.ObjectIDOpenSecureChannelResponseEncodingDefaultBinary, nil
	case *ua.CloseSecureChannelResponse:
		return ua.ObjectIDCloseSecureChannelResponseEncodingDefaultBinary, nil
	case *ua.ServiceFault:
		return ua.ObjectIDServiceFaultEncodingDefaultBinary, nil
	}
	if e, ok := res.(interface{ EncodingID() ua.NodeID }); ok {
		return e.EncodingID(), nil
	}
	return ua.NilNodeID, ua.BadEncodingError
}
