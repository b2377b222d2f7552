// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"sync"
	"time"

	"github.com/awcullen/uasc/ua"
)

// ChannelManager tracks the open channels of an endpoint and sweeps out
// channels that have closed.
type ChannelManager struct {
	sync.RWMutex
	channelsByID map[uint32]*Channel
	closing      chan struct{}
	closeOnce    sync.Once
}

// NewChannelManager returns a manager and starts its sweeper.
func NewChannelManager() *ChannelManager {
	m := &ChannelManager{
		channelsByID: make(map[uint32]*Channel),
		closing:      make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-m.closing:
				return
			case <-ticker.C:
				m.Lock()
				for id, ch := range m.channelsByID {
					if ch.IsClosed() {
						delete(m.channelsByID, id)
					}
				}
				m.Unlock()
			}
		}
	}()
	return m
}

// Get returns the channel with the given id.
func (m *ChannelManager) Get(id uint32) (*Channel, bool) {
	m.RLock()
	defer m.RUnlock()
	ch, ok := m.channelsByID[id]
	return ch, ok
}

// Add stores a channel.
func (m *ChannelManager) Add(ch *Channel) {
	m.Lock()
	defer m.Unlock()
	m.channelsByID[ch.ChannelID()] = ch
}

// Delete removes a channel.
func (m *ChannelManager) Delete(ch *Channel) {
	m.Lock()
	defer m.Unlock()
	delete(m.channelsByID, ch.ChannelID())
}

// Len returns the number of tracked channels.
func (m *ChannelManager) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.channelsByID)
}

// Close stops the sweeper and closes all channels.
func (m *ChannelManager) Close() {
	m.closeOnce.Do(func() {
		close(m.closing)
	})
	m.Lock()
	channels := make([]*Channel, 0, len(m.channelsByID))
	for _, ch := range m.channelsByID {
		channels = append(channels, ch)
	}
	m.channelsByID = make(map[uint32]*Channel)
	m.Unlock()
	for _, ch := range channels {
		ch.Abort(ua.BadSecureChannelClosed, "endpoint closing")
	}
}
