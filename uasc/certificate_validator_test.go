// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/awcullen/uasc/uasc"
	"gotest.tools/assert"
)

func makeTestCertificate(t *testing.T, notBefore, notAfter time.Time) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "testclient"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

func TestValidateCertificate(t *testing.T) {
	v := uasc.NewCertificateValidator()
	der := makeTestCertificate(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	assert.Equal(t, v.Validate(der), ua.Good)
}

func TestValidateEmptyCertificate(t *testing.T) {
	v := uasc.NewCertificateValidator()
	assert.Equal(t, v.Validate(nil), ua.BadSecurityChecksFailed)
}

func TestValidateMalformedCertificate(t *testing.T) {
	v := uasc.NewCertificateValidator()
	assert.Equal(t, v.Validate([]byte{0x30, 0x03, 0x02, 0x01, 0x01}), ua.BadCertificateInvalid)
}

func TestValidateExpiredCertificate(t *testing.T) {
	v := uasc.NewCertificateValidator()
	der := makeTestCertificate(t, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	assert.Equal(t, v.Validate(der), ua.BadCertificateTimeInvalid)
}

func TestValidateNotYetValidCertificate(t *testing.T) {
	v := uasc.NewCertificateValidator()
	der := makeTestCertificate(t, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	assert.Equal(t, v.Validate(der), ua.BadCertificateTimeInvalid)
}

func TestValidateHookRejects(t *testing.T) {
	v := uasc.NewCertificateValidator(func(cert *x509.Certificate) ua.StatusCode {
		if cert.Subject.CommonName != "trusted" {
			return ua.BadCertificateUntrusted
		}
		return ua.Good
	})
	der := makeTestCertificate(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	assert.Equal(t, v.Validate(der), ua.BadCertificateUntrusted)
}
