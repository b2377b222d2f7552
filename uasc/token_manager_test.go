// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc_test

import (
	"testing"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/awcullen/uasc/uasc"
	"gotest.tools/assert"
)

func TestTokenLifetimeRevision(t *testing.T) {
	cases := []struct {
		requested uint32
		revised   uint32
	}{
		{0, 600000},
		{1, 1},
		{300000, 300000},
		{600000, 600000},
		{600001, 600000},
		{3600000, 600000},
	}
	for _, c := range cases {
		tm := uasc.NewTokenManager(1, 600000)
		token := tm.Issue(c.requested)
		assert.Equal(t, token.RevisedLifetime, c.revised)
		tm.Close()
	}
}

func TestTokenIDsAreSequential(t *testing.T) {
	tm := uasc.NewTokenManager(1, 600000)
	defer tm.Close()
	token := tm.Issue(0)
	assert.Equal(t, token.TokenID, uint32(1))
	assert.Equal(t, token.ChannelID, uint32(1))
	for i := uint32(2); i < 5; i++ {
		token = tm.Renew(0)
		assert.Equal(t, token.TokenID, i)
	}
}

func TestTokenExpiresAfterGracePeriod(t *testing.T) {
	tm := uasc.NewTokenManager(1, 50)
	defer tm.Close()
	token := tm.Issue(0)
	assert.Equal(t, token.RevisedLifetime, uint32(50))
	// the token stays valid for 120 percent of its lifetime
	assert.NilError(t, tm.Validate(token.TokenID))
	time.Sleep(30 * time.Millisecond)
	assert.NilError(t, tm.Validate(token.TokenID))
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, tm.Validate(token.TokenID), ua.BadSecureChannelTokenUnknown)
}

func TestPreviousTokenRetainedUntilNewTokenUsed(t *testing.T) {
	tm := uasc.NewTokenManager(1, 600000)
	defer tm.Close()
	first := tm.Issue(0)
	second := tm.Renew(0)
	assert.Equal(t, tm.PreviousTokenID(), first.TokenID)
	// the previous token still verifies inbound messages
	assert.NilError(t, tm.Validate(first.TokenID))
	// the first use of the new token retires the previous one
	assert.NilError(t, tm.Validate(second.TokenID))
	assert.Equal(t, tm.PreviousTokenID(), uint32(0))
	assert.Equal(t, tm.Validate(first.TokenID), ua.BadSecureChannelTokenUnknown)
}

func TestPreviousTokenExpiresDuringGracePeriod(t *testing.T) {
	tm := uasc.NewTokenManager(1, 10000)
	defer tm.Close()
	first := tm.Issue(50)
	second := tm.Renew(0)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, tm.Validate(first.TokenID), ua.BadSecureChannelTokenUnknown)
	assert.NilError(t, tm.Validate(second.TokenID))
}

func TestUnknownTokenRejected(t *testing.T) {
	tm := uasc.NewTokenManager(1, 600000)
	defer tm.Close()
	tm.Issue(0)
	assert.Equal(t, tm.Validate(99), ua.BadSecureChannelTokenUnknown)
}

func TestClosedTokenManagerRejectsAll(t *testing.T) {
	tm := uasc.NewTokenManager(1, 600000)
	token := tm.Issue(0)
	tm.Close()
	assert.Equal(t, tm.Validate(token.TokenID), ua.BadSecureChannelClosed)
}
