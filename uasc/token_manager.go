// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"math"
	"sync"
	"time"

	"github.com/awcullen/uasc/ua"
)

// tokenEntry tracks the state of one issued security token. A token stays
// usable for inbound messages until the watchdog marks it expired, which
// happens at 120 percent of the revised lifetime.
type tokenEntry struct {
	token    ua.ChannelSecurityToken
	expired  bool
	watchdog *time.Timer
}

// TokenManager issues and renews the security tokens of a channel. After a
// renewal the previous token remains valid for inbound messages until the
// remote side first uses the new token or the previous token expires.
type TokenManager struct {
	sync.Mutex
	channelID       uint32
	defaultLifetime uint32
	lastTokenID     uint32
	current         *tokenEntry
	previous        *tokenEntry
	closed          bool
}

// NewTokenManager returns a manager for the channel with the given id.
// The defaultLifetime caps the lifetime granted to any token, in milliseconds.
func NewTokenManager(channelID, defaultLifetime uint32) *TokenManager {
	if defaultLifetime == 0 {
		defaultLifetime = defaultSecureTokenLifetime
	}
	return &TokenManager{channelID: channelID, defaultLifetime: defaultLifetime}
}

// reviseLifetime clamps the requested lifetime to the default lifetime.
// A requested lifetime of zero selects the default.
func (tm *TokenManager) reviseLifetime(requestedLifetime uint32) uint32 {
	if requestedLifetime == 0 || requestedLifetime > tm.defaultLifetime {
		return tm.defaultLifetime
	}
	return requestedLifetime
}

// Issue creates the first security token of the channel.
func (tm *TokenManager) Issue(requestedLifetime uint32) ua.ChannelSecurityToken {
	tm.Lock()
	defer tm.Unlock()
	return tm.issue(requestedLifetime)
}

// Renew creates a new security token. The previous token is retained so that
// inbound messages secured with it remain valid during the changeover.
func (tm *TokenManager) Renew(requestedLifetime uint32) ua.ChannelSecurityToken {
	tm.Lock()
	defer tm.Unlock()
	if tm.previous != nil {
		tm.previous.watchdog.Stop()
	}
	tm.previous = tm.current
	return tm.issue(requestedLifetime)
}

func (tm *TokenManager) issue(requestedLifetime uint32) ua.ChannelSecurityToken {
	entry := &tokenEntry{
		token: ua.ChannelSecurityToken{
			ChannelID:       tm.channelID,
			TokenID:         tm.getNextTokenID(),
			CreatedAt:       time.Now(),
			RevisedLifetime: tm.reviseLifetime(requestedLifetime),
		},
	}
	// the remote side may keep using a token for up to 120 percent of its lifetime
	deadline := time.Duration(entry.token.RevisedLifetime) * time.Millisecond * 6 / 5
	entry.watchdog = time.AfterFunc(deadline, func() {
		tm.Lock()
		defer tm.Unlock()
		entry.expired = true
	})
	tm.current = entry
	return entry.token
}

// Validate checks that tokenID identifies a live token of this channel.
// The first use of the current token retires the previous token.
func (tm *TokenManager) Validate(tokenID uint32) error {
	tm.Lock()
	defer tm.Unlock()
	if tm.closed {
		return ua.BadSecureChannelClosed
	}
	if tm.current != nil && tokenID == tm.current.token.TokenID {
		if tm.current.expired {
			return ua.BadSecureChannelTokenUnknown
		}
		if tm.previous != nil {
			tm.previous.watchdog.Stop()
			tm.previous = nil
		}
		return nil
	}
	if tm.previous != nil && tokenID == tm.previous.token.TokenID {
		if tm.previous.expired {
			return ua.BadSecureChannelTokenUnknown
		}
		return nil
	}
	return ua.BadSecureChannelTokenUnknown
}

// CurrentTokenID returns the id of the current token, or zero before the
// first token is issued.
func (tm *TokenManager) CurrentTokenID() uint32 {
	tm.Lock()
	defer tm.Unlock()
	if tm.current == nil {
		return 0
	}
	return tm.current.token.TokenID
}

// PreviousTokenID returns the id of the retained previous token, or zero.
func (tm *TokenManager) PreviousTokenID() uint32 {
	tm.Lock()
	defer tm.Unlock()
	if tm.previous == nil {
		return 0
	}
	return tm.previous.token.TokenID
}

// Close stops the watchdogs and invalidates all tokens.
func (tm *TokenManager) Close() {
	tm.Lock()
	defer tm.Unlock()
	if tm.closed {
		return
	}
	tm.closed = true
	if tm.current != nil {
		tm.current.watchdog.Stop()
		tm.current = nil
	}
	if tm.previous != nil {
		tm.previous.watchdog.Stop()
		tm.previous = nil
	}
}

// getNextTokenID returns the next token id, skipping zero.
func (tm *TokenManager) getNextTokenID() uint32 {
	if tm.lastTokenID == math.MaxUint32 {
		tm.lastTokenID = 0
	}
	tm.lastTokenID++
	return tm.lastTokenID
}
