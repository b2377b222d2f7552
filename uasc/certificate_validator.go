// Copyright 2021 Converter Systems LLC. All rights reserved.

package uasc

import (
	"crypto/x509"
	"time"

	"github.com/awcullen/uasc/ua"
)

// ValidateFunc inspects a client certificate and returns Good to accept it.
type ValidateFunc func(cert *x509.Certificate) ua.StatusCode

// CertificateValidator checks the sender certificate of an open request.
// The built-in checks verify that the certificate parses and that the
// current time falls inside its validity window. Additional hooks may
// reject certificates for application reasons, such as trust lists.
type CertificateValidator struct {
	now   func() time.Time
	hooks []ValidateFunc
}

// NewCertificateValidator returns a validator running the given hooks after
// the built-in checks.
func NewCertificateValidator(hooks ...ValidateFunc) *CertificateValidator {
	return &CertificateValidator{now: time.Now, hooks: hooks}
}

// Validate checks a DER encoded certificate.
func (v *CertificateValidator) Validate(der []byte) ua.StatusCode {
	if len(der) == 0 {
		return ua.BadSecurityChecksFailed
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return ua.BadCertificateInvalid
	}
	now := v.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return ua.BadCertificateTimeInvalid
	}
	for _, hook := range v.hooks {
		if result := hook(cert); result.IsBad() {
			return result
		}
	}
	return ua.Good
}
