// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

import "fmt"

// StatusCode is the result of a service call or channel operation.
type StatusCode uint32

// IsGood returns true if the StatusCode is good.
func (c StatusCode) IsGood() bool {
	return (uint32(c) & SeverityMask) == SeverityGood
}

// IsBad returns true if the StatusCode is bad.
func (c StatusCode) IsBad() bool {
	return (uint32(c) & SeverityMask) == SeverityBad
}

// IsUncertain returns true if the StatusCode is uncertain.
func (c StatusCode) IsUncertain() bool {
	return (uint32(c) & SeverityMask) == SeverityUncertain
}

// Error implements the error interface.
func (c StatusCode) Error() string {
	if name, ok := statusCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(c))
}

const (
	// Good - The operation completed successfully.
	Good StatusCode = 0x00000000
	// SeverityMask - .
	SeverityMask uint32 = 0xC0000000
	// SeverityGood - .
	SeverityGood uint32 = 0x00000000
	// SeverityUncertain - .
	SeverityUncertain uint32 = 0x40000000
	// SeverityBad - .
	SeverityBad uint32 = 0x80000000

	// BadUnexpectedError - An unexpected error occurred.
	BadUnexpectedError StatusCode = 0x80010000
	// BadCommunicationError - A low level communication error occurred.
	BadCommunicationError StatusCode = 0x80050000
	// BadEncodingError - Encoding halted because of invalid data in the objects being serialized.
	BadEncodingError StatusCode = 0x80060000
	// BadDecodingError - Decoding halted because of invalid data in the stream.
	BadDecodingError StatusCode = 0x80070000
	// BadEncodingLimitsExceeded - The message encoding/decoding limits imposed by the stack have been exceeded.
	BadEncodingLimitsExceeded StatusCode = 0x80080000
	// BadRequestTooLarge - The request message size exceeds limits set by the server.
	BadRequestTooLarge StatusCode = 0x80B80000
	// BadTimeout - The operation timed out.
	BadTimeout StatusCode = 0x800A0000
	// BadServiceUnsupported - The server does not support the requested service.
	BadServiceUnsupported StatusCode = 0x800B0000
	// BadCertificateInvalid - The certificate provided as a parameter is not valid.
	BadCertificateInvalid StatusCode = 0x80120000
	// BadSecurityChecksFailed - An error occurred verifying security.
	BadSecurityChecksFailed StatusCode = 0x80130000
	// BadCertificateTimeInvalid - The certificate has expired or is not yet valid.
	BadCertificateTimeInvalid StatusCode = 0x80140000
	// BadCertificateIssuerTimeInvalid - An issuer certificate has expired or is not yet valid.
	BadCertificateIssuerTimeInvalid StatusCode = 0x80150000
	// BadCertificateHostNameInvalid - The hostname used to connect to a server does not match a hostname in the certificate.
	BadCertificateHostNameInvalid StatusCode = 0x80160000
	// BadCertificateURIInvalid - The URI specified in the ApplicationDescription does not match the URI in the certificate.
	BadCertificateURIInvalid StatusCode = 0x80170000
	// BadCertificateUseNotAllowed - The certificate may not be used for the requested operation.
	BadCertificateUseNotAllowed StatusCode = 0x80180000
	// BadCertificateUntrusted - The certificate is not trusted.
	BadCertificateUntrusted StatusCode = 0x801A0000
	// BadCertificateRevocationUnknown - It was not possible to determine if the certificate has been revoked.
	BadCertificateRevocationUnknown StatusCode = 0x801B0000
	// BadCertificateRevoked - The certificate has been revoked.
	BadCertificateRevoked StatusCode = 0x801D0000
	// BadSecureChannelIDInvalid - The specified secure channel is no longer valid.
	BadSecureChannelIDInvalid StatusCode = 0x80220000
	// BadNonceInvalid - The nonce does appear to be not a random value or it is not the correct length.
	BadNonceInvalid StatusCode = 0x80240000
	// BadSecurityModeRejected - The security mode does not meet the requirements set by the server.
	BadSecurityModeRejected StatusCode = 0x80540000
	// BadSecurityPolicyRejected - The security policy does not meet the requirements set by the server.
	BadSecurityPolicyRejected StatusCode = 0x80550000
	// BadTCPMessageTypeInvalid - The type of the message specified in the header invalid.
	BadTCPMessageTypeInvalid StatusCode = 0x807E0000
	// BadTCPMessageTooLarge - The size of the message specified in the header is too large.
	BadTCPMessageTooLarge StatusCode = 0x80800000
	// BadTCPInternalError - An internal error occurred.
	BadTCPInternalError StatusCode = 0x80820000
	// BadTCPEndpointURLInvalid - The server does not recognize the QueryString specified.
	BadTCPEndpointURLInvalid StatusCode = 0x80830000
	// BadTCPSecureChannelUnknown - The SecureChannelId and/or TokenId are not currently in use.
	BadTCPSecureChannelUnknown StatusCode = 0x80850000
	// BadSecureChannelClosed - The secure channel has been closed.
	BadSecureChannelClosed StatusCode = 0x80860000
	// BadSecureChannelTokenUnknown - The token has expired or is not recognized.
	BadSecureChannelTokenUnknown StatusCode = 0x80870000
	// BadSequenceNumberInvalid - The sequence number is not valid.
	BadSequenceNumberInvalid StatusCode = 0x80880000
	// BadProtocolVersionUnsupported - The applications do not have compatible protocol versions.
	BadProtocolVersionUnsupported StatusCode = 0x80BE0000
	// BadRequestTimeout - Timeout occurred while processing the request.
	BadRequestTimeout StatusCode = 0x80AC0000
	// BadConnectionClosed - The network connection has been closed.
	BadConnectionClosed StatusCode = 0x80AE0000
	// BadUnknownResponse - An unrecognized response was received from the server.
	BadUnknownResponse StatusCode = 0x80090000
)

var statusCodeNames = map[StatusCode]string{
	Good:                            "Good",
	BadUnexpectedError:              "BadUnexpectedError",
	BadCommunicationError:           "BadCommunicationError",
	BadEncodingError:                "BadEncodingError",
	BadDecodingError:                "BadDecodingError",
	BadEncodingLimitsExceeded:       "BadEncodingLimitsExceeded",
	BadRequestTooLarge:              "BadRequestTooLarge",
	BadTimeout:                      "BadTimeout",
	BadServiceUnsupported:           "BadServiceUnsupported",
	BadCertificateInvalid:           "BadCertificateInvalid",
	BadSecurityChecksFailed:         "BadSecurityChecksFailed",
	BadCertificateTimeInvalid:       "BadCertificateTimeInvalid",
	BadCertificateIssuerTimeInvalid: "BadCertificateIssuerTimeInvalid",
	BadCertificateHostNameInvalid:   "BadCertificateHostNameInvalid",
	BadCertificateURIInvalid:        "BadCertificateURIInvalid",
	BadCertificateUseNotAllowed:     "BadCertificateUseNotAllowed",
	BadCertificateUntrusted:         "BadCertificateUntrusted",
	BadCertificateRevocationUnknown: "BadCertificateRevocationUnknown",
	BadCertificateRevoked:           "BadCertificateRevoked",
	BadSecureChannelIDInvalid:       "BadSecureChannelIDInvalid",
	BadNonceInvalid:                 "BadNonceInvalid",
	BadSecurityModeRejected:         "BadSecurityModeRejected",
	BadSecurityPolicyRejected:       "BadSecurityPolicyRejected",
	BadTCPMessageTypeInvalid:        "BadTCPMessageTypeInvalid",
	BadTCPMessageTooLarge:           "BadTCPMessageTooLarge",
	BadTCPInternalError:             "BadTCPInternalError",
	BadTCPEndpointURLInvalid:        "BadTCPEndpointURLInvalid",
	BadTCPSecureChannelUnknown:      "BadTCPSecureChannelUnknown",
	BadSecureChannelClosed:          "BadSecureChannelClosed",
	BadSecureChannelTokenUnknown:    "BadSecureChannelTokenUnknown",
	BadSequenceNumberInvalid:        "BadSequenceNumberInvalid",
	BadProtocolVersionUnsupported:   "BadProtocolVersionUnsupported",
	BadRequestTimeout:               "BadRequestTimeout",
	BadConnectionClosed:             "BadConnectionClosed",
	BadUnknownResponse:              "BadUnknownResponse",
}
