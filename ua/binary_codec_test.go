// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/awcullen/uasc/ua"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/assert"
)

func TestString(t *testing.T) {
	cases := []struct {
		in    string
		bytes []byte
	}{
		{
			"abc",
			[]byte{
				0x03, 0x00, 0x00, 0x00, 0x61, 0x62, 0x63,
			},
		},
		{
			"",
			[]byte{
				0xFF, 0xFF, 0xFF, 0xFF,
			},
		},
	}
	for _, c := range cases {
		buf := &bytes.Buffer{}
		enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
		if err := enc.WriteString(c.in); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, buf.Bytes(), c.bytes)

		dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
		var out string
		if err := dec.ReadString(&out); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, out, c.in)
	}
}

func TestByteString(t *testing.T) {
	cases := []struct {
		in    ua.ByteString
		bytes []byte
	}{
		{
			ua.ByteString("\x01\x02\x03"),
			[]byte{
				0x03, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03,
			},
		},
		{
			ua.NilByteString,
			[]byte{
				0xFF, 0xFF, 0xFF, 0xFF,
			},
		},
	}
	for _, c := range cases {
		buf := &bytes.Buffer{}
		enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
		if err := enc.WriteByteString(c.in); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, buf.Bytes(), c.bytes)

		dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
		var out ua.ByteString
		if err := dec.ReadByteString(&out); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, out, c.in)
	}
}

func TestNodeID(t *testing.T) {
	cases := []struct {
		in    ua.NodeID
		bytes []byte
	}{
		{
			// two byte form
			ua.NewNodeIDNumeric(0, 255),
			[]byte{
				0x00, 0xFF,
			},
		},
		{
			// four byte form
			ua.NewNodeIDNumeric(2, 1025),
			[]byte{
				0x01, 0x02, 0x01, 0x04,
			},
		},
		{
			ua.NewNodeIDString(1, "Hot"),
			[]byte{
				0x03, 0x01, 0x00, 0x03, 0x00, 0x00, 0x00, 0x48, 0x6F, 0x74,
			},
		},
	}
	for _, c := range cases {
		buf := &bytes.Buffer{}
		enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
		if err := enc.WriteNodeID(c.in); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, buf.Bytes(), c.bytes)

		dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
		var out ua.NodeID
		if err := dec.ReadNodeID(&out); err != nil {
			t.Fatal(err)
		}
		assert.DeepEqual(t, out, c.in, cmp.AllowUnexported(ua.NodeID{}))
	}
}

func TestDateTime(t *testing.T) {
	cases := []struct {
		in time.Time
	}{
		{time.Date(2021, 9, 7, 15, 56, 1, 500, time.UTC)},
		{time.Time{}},
	}
	for _, c := range cases {
		buf := &bytes.Buffer{}
		enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
		if err := enc.WriteDateTime(c.in); err != nil {
			t.Fatal(err)
		}

		dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
		var out time.Time
		if err := dec.ReadDateTime(&out); err != nil {
			t.Fatal(err)
		}
		// encoding truncates to 100 nanosecond ticks
		assert.Assert(t, out.Sub(c.in) < 100*time.Nanosecond)
	}
}

func TestOpenSecureChannelRequest(t *testing.T) {
	in := &ua.OpenSecureChannelRequest{
		RequestHeader: ua.RequestHeader{
			Timestamp:     time.Date(2021, 9, 7, 15, 56, 1, 0, time.UTC),
			RequestHandle: 42,
			TimeoutHint:   15000,
		},
		ClientProtocolVersion: 0,
		RequestType:           ua.SecurityTokenRequestTypeIssue,
		SecurityMode:          ua.MessageSecurityModeNone,
		ClientNonce:           ua.NilByteString,
		RequestedLifetime:     300000,
	}
	buf := &bytes.Buffer{}
	enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
	if err := enc.Encode(in); err != nil {
		t.Fatal(err)
	}
	dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
	out := &ua.OpenSecureChannelRequest{}
	if err := dec.Decode(out); err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, out, in, cmp.AllowUnexported(ua.NodeID{}))
}

func TestOpenSecureChannelResponse(t *testing.T) {
	in := &ua.OpenSecureChannelResponse{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Date(2021, 9, 7, 15, 56, 2, 0, time.UTC),
			RequestHandle: 42,
			ServiceResult: ua.Good,
		},
		ServerProtocolVersion: 0,
		SecurityToken: ua.ChannelSecurityToken{
			ChannelID:       7,
			TokenID:         1,
			CreatedAt:       time.Date(2021, 9, 7, 15, 56, 2, 0, time.UTC),
			RevisedLifetime: 600000,
		},
		ServerNonce: ua.ByteString("\x01\x02\x03\x04"),
	}
	buf := &bytes.Buffer{}
	enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
	if err := enc.Encode(in); err != nil {
		t.Fatal(err)
	}
	dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
	out := &ua.OpenSecureChannelResponse{}
	if err := dec.Decode(out); err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, out, in)
}

func TestServiceFault(t *testing.T) {
	in := &ua.ServiceFault{
		ResponseHeader: ua.ResponseHeader{
			Timestamp:     time.Date(2021, 9, 7, 15, 56, 3, 0, time.UTC),
			RequestHandle: 9,
			ServiceResult: ua.BadServiceUnsupported,
			StringTable:   []string{"service not supported"},
		},
	}
	buf := &bytes.Buffer{}
	enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
	if err := enc.Encode(in); err != nil {
		t.Fatal(err)
	}
	dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
	out := &ua.ServiceFault{}
	if err := dec.Decode(out); err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, out, in)
}

func TestAsymmetricSecurityHeader(t *testing.T) {
	in := &ua.AsymmetricSecurityHeader{
		SecurityPolicyURI:             ua.SecurityPolicyURIBasic256,
		SenderCertificate:             ua.ByteString("\x30\x82\x01\x0A"),
		ReceiverCertificateThumbprint: ua.ByteString(bytes.Repeat([]byte{0xAB}, 20)),
	}
	buf := &bytes.Buffer{}
	enc := ua.NewBinaryEncoder(buf, ua.NewEncodingContext())
	if err := enc.Encode(in); err != nil {
		t.Fatal(err)
	}
	dec := ua.NewBinaryDecoder(buf, ua.NewEncodingContext())
	out := &ua.AsymmetricSecurityHeader{}
	if err := dec.Decode(out); err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, out, in)
}
