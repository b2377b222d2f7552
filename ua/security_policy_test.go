// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/awcullen/uasc/ua"
	"gotest.tools/assert"
)

func TestSecurityPolicyForURI(t *testing.T) {
	cases := []struct {
		uri                    string
		symSignatureSize       int
		symSignatureKeySize    int
		symEncryptionBlockSize int
		symEncryptionKeySize   int
		nonceSize              int
	}{
		{ua.SecurityPolicyURINone, 0, 0, 1, 0, 0},
		{ua.SecurityPolicyURIBasic128Rsa15, 20, 16, 16, 16, 16},
		{ua.SecurityPolicyURIBasic256, 20, 24, 16, 32, 32},
	}
	for _, c := range cases {
		p, err := ua.SecurityPolicyForURI(c.uri)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, p.PolicyURI(), c.uri)
		assert.Equal(t, p.SymSignatureSize(), c.symSignatureSize)
		assert.Equal(t, p.SymSignatureKeySize(), c.symSignatureKeySize)
		assert.Equal(t, p.SymEncryptionBlockSize(), c.symEncryptionBlockSize)
		assert.Equal(t, p.SymEncryptionKeySize(), c.symEncryptionKeySize)
		assert.Equal(t, p.NonceSize(), c.nonceSize)
	}
}

func TestSecurityPolicyForURIUnknown(t *testing.T) {
	_, err := ua.SecurityPolicyForURI("http://opcfoundation.org/UA/SecurityPolicy#Unknown")
	assert.Equal(t, err, ua.BadSecurityPolicyRejected)
}

func TestRSASignAndVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	for _, uri := range []string{ua.SecurityPolicyURIBasic128Rsa15, ua.SecurityPolicyURIBasic256} {
		p, err := ua.SecurityPolicyForURI(uri)
		if err != nil {
			t.Fatal(err)
		}
		plainText := []byte("the quick brown fox jumps over the lazy dog")
		signature, err := p.RSASign(key, plainText)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, len(signature), 256)
		if err := p.RSAVerify(&key.PublicKey, plainText, signature); err != nil {
			t.Fatal(err)
		}
		plainText[0] ^= 0xFF
		assert.Assert(t, p.RSAVerify(&key.PublicKey, plainText, signature) != nil)
	}
}

func TestRSAEncryptAndDecrypt(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	for _, uri := range []string{ua.SecurityPolicyURIBasic128Rsa15, ua.SecurityPolicyURIBasic256} {
		p, err := ua.SecurityPolicyForURI(uri)
		if err != nil {
			t.Fatal(err)
		}
		keySize := len(key.PublicKey.N.Bytes())
		plainText := make([]byte, keySize-p.RSAPaddingSize())
		rand.Read(plainText)
		cipherText, err := p.RSAEncrypt(&key.PublicKey, plainText)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, len(cipherText), keySize)
		out, err := p.RSADecrypt(key, cipherText)
		if err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, out, plainText)
	}
}

func TestCalculatePSHA(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed")
	for _, size := range []int{1, 20, 48, 52, 64} {
		out := ua.CalculatePSHA(secret, seed, size)
		assert.Equal(t, len(out), size)
		// deterministic for the same inputs
		assert.DeepEqual(t, out, ua.CalculatePSHA(secret, seed, size))
	}
	// prefixes of longer outputs match shorter outputs
	long := ua.CalculatePSHA(secret, seed, 64)
	short := ua.CalculatePSHA(secret, seed, 20)
	assert.DeepEqual(t, long[:20], short)
	// different seeds give different key material
	other := ua.CalculatePSHA(secret, []byte("seed2"), 64)
	assert.Assert(t, string(long) != string(other))
}

func TestCertificateThumbprint(t *testing.T) {
	assert.Equal(t, ua.CertificateThumbprint(nil), ua.NilByteString)
	sum := ua.CertificateThumbprint([]byte{0x30, 0x82, 0x01, 0x0A})
	assert.Equal(t, len(sum), 20)
}
