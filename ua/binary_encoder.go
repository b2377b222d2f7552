// Copyright 2021 Converter Systems LLC. All rights reserved.

package ua

import (
	"encoding/binary"
	"io"
	"math"
	"time"
	"unsafe"

	uuid "github.com/google/uuid"
)

// BinaryEncoder encodes the UA binary protocol.
type BinaryEncoder struct {
	w  io.Writer
	ec EncodingContext
	bs [8]byte
}

// NewBinaryEncoder returns a new encoder that writes to an io.Writer.
func NewBinaryEncoder(w io.Writer, ec EncodingContext) *BinaryEncoder {
	return &BinaryEncoder{w, ec, [8]byte{}}
}

// Encode encodes the value using the UA binary protocol.
func (enc *BinaryEncoder) Encode(value interface{}) error {
	switch v := value.(type) {
	case *RequestHeader:
		return enc.WriteRequestHeader(v)
	case *ResponseHeader:
		return enc.WriteResponseHeader(v)
	case *ChannelSecurityToken:
		return enc.WriteChannelSecurityToken(v)
	case *OpenSecureChannelRequest:
		return enc.WriteOpenSecureChannelRequest(v)
	case *OpenSecureChannelResponse:
		return enc.WriteOpenSecureChannelResponse(v)
	case *CloseSecureChannelRequest:
		return enc.WriteCloseSecureChannelRequest(v)
	case *CloseSecureChannelResponse:
		return enc.WriteCloseSecureChannelResponse(v)
	case *ServiceFault:
		return enc.WriteServiceFault(v)
	case *AsymmetricSecurityHeader:
		return enc.WriteAsymmetricSecurityHeader(v)
	case *SymmetricSecurityHeader:
		return enc.WriteSymmetricSecurityHeader(v)
	case *SequenceHeader:
		return enc.WriteSequenceHeader(v)
	default:
		if e, ok := value.(interface{ EncodeBinary(*BinaryEncoder) error }); ok {
			return e.EncodeBinary(enc)
		}
		return BadEncodingError
	}
}

// WriteBoolean writes a boolean.
func (enc *BinaryEncoder) WriteBoolean(value bool) error {
	if value {
		enc.bs[0] = 1
	} else {
		enc.bs[0] = 0
	}
	if _, err := enc.w.Write(enc.bs[:1]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteSByte writes a sbyte.
func (enc *BinaryEncoder) WriteSByte(value int8) error {
	enc.bs[0] = byte(value)
	if _, err := enc.w.Write(enc.bs[:1]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteByte writes a byte.
func (enc *BinaryEncoder) WriteByte(value byte) error {
	enc.bs[0] = value
	if _, err := enc.w.Write(enc.bs[:1]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteInt16 writes a int16.
func (enc *BinaryEncoder) WriteInt16(value int16) error {
	binary.LittleEndian.PutUint16(enc.bs[:2], uint16(value))
	if _, err := enc.w.Write(enc.bs[:2]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteUInt16 writes a uint16.
func (enc *BinaryEncoder) WriteUInt16(value uint16) error {
	binary.LittleEndian.PutUint16(enc.bs[:2], value)
	if _, err := enc.w.Write(enc.bs[:2]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteInt32 writes an int32.
func (enc *BinaryEncoder) WriteInt32(value int32) error {
	binary.LittleEndian.PutUint32(enc.bs[:4], uint32(value))
	if _, err := enc.w.Write(enc.bs[:4]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteUInt32 writes an uint32.
func (enc *BinaryEncoder) WriteUInt32(value uint32) error {
	binary.LittleEndian.PutUint32(enc.bs[:4], value)
	if _, err := enc.w.Write(enc.bs[:4]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteInt64 writes an int64.
func (enc *BinaryEncoder) WriteInt64(value int64) error {
	binary.LittleEndian.PutUint64(enc.bs[:8], uint64(value))
	if _, err := enc.w.Write(enc.bs[:8]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteUInt64 writes an uint64.
func (enc *BinaryEncoder) WriteUInt64(value uint64) error {
	binary.LittleEndian.PutUint64(enc.bs[:8], value)
	if _, err := enc.w.Write(enc.bs[:8]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteFloat writes a float.
func (enc *BinaryEncoder) WriteFloat(value float32) error {
	binary.LittleEndian.PutUint32(enc.bs[:4], math.Float32bits(value))
	if _, err := enc.w.Write(enc.bs[:4]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteDouble writes a double.
func (enc *BinaryEncoder) WriteDouble(value float64) error {
	binary.LittleEndian.PutUint64(enc.bs[:8], math.Float64bits(value))
	if _, err := enc.w.Write(enc.bs[:8]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteString writes a string.
func (enc *BinaryEncoder) WriteString(value string) error {
	if len(value) == 0 {
		return enc.WriteInt32(-1)
	}
	if err := enc.WriteInt32(int32(len(value))); err != nil {
		return BadEncodingError
	}
	// eliminate alloc of a second byte array and copying of one byte array to another.
	var bytes []byte
	str := (*stringHeader)(unsafe.Pointer(&value))
	slice := (*sliceHeader)(unsafe.Pointer(&bytes))
	slice.Data = str.Data
	slice.Len = str.Len
	slice.Cap = str.Len
	if _, err := enc.w.Write(bytes); err != nil {
		return BadEncodingError
	}
	return nil
}

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

type stringHeader struct {
	Data unsafe.Pointer
	Len  int
}

// WriteDateTime writes a date/time.
func (enc *BinaryEncoder) WriteDateTime(value time.Time) error {
	// ticks are 100 nanosecond intervals since January 1, 1601
	ticks := (value.Unix()+11644473600)*10000000 + int64(value.Nanosecond())/100
	if ticks < 0 {
		ticks = 0
	}
	if ticks >= 2650467743990000000 {
		ticks = 0x7FFFFFFFFFFFFFFF
	}
	if err := enc.WriteInt64(ticks); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteGUID writes a UUID
func (enc *BinaryEncoder) WriteGUID(value uuid.UUID) error {
	enc.bs[0] = value[3]
	enc.bs[1] = value[2]
	enc.bs[2] = value[1]
	enc.bs[3] = value[0]
	enc.bs[4] = value[5]
	enc.bs[5] = value[4]
	enc.bs[6] = value[7]
	enc.bs[7] = value[6]
	if _, err := enc.w.Write(enc.bs[:8]); err != nil {
		return BadEncodingError
	}
	if _, err := enc.w.Write(value[8:]); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteByteString writes a ByteString
func (enc *BinaryEncoder) WriteByteString(value ByteString) error {
	if len(value) == 0 {
		return enc.WriteInt32(-1)
	}
	if err := enc.WriteInt32(int32(len(value))); err != nil {
		return BadEncodingError
	}
	var bytes []byte
	str := (*stringHeader)(unsafe.Pointer(&value))
	slice := (*sliceHeader)(unsafe.Pointer(&bytes))
	slice.Data = str.Data
	slice.Len = str.Len
	slice.Cap = str.Len
	if _, err := enc.w.Write(bytes); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteStatusCode writes a StatusCode
func (enc *BinaryEncoder) WriteStatusCode(value StatusCode) error {
	return enc.WriteUInt32(uint32(value))
}

// WriteNodeID writes a NodeID
func (enc *BinaryEncoder) WriteNodeID(value NodeID) error {
	switch value.idType {
	case IDTypeNumeric:
		switch {
		case value.nid <= 255 && value.namespaceIndex == 0:
			if err := enc.WriteByte(0x00); err != nil {
				return BadEncodingError
			}
			if err := enc.WriteByte(byte(value.nid)); err != nil {
				return BadEncodingError
			}
		case value.nid <= 65535 && value.namespaceIndex <= 255:
			if err := enc.WriteByte(0x01); err != nil {
				return BadEncodingError
			}
			if err := enc.WriteByte(byte(value.namespaceIndex)); err != nil {
				return BadEncodingError
			}
			if err := enc.WriteUInt16(uint16(value.nid)); err != nil {
				return BadEncodingError
			}
		default:
			if err := enc.WriteByte(0x02); err != nil {
				return BadEncodingError
			}
			if err := enc.WriteUInt16(value.namespaceIndex); err != nil {
				return BadEncodingError
			}
			if err := enc.WriteUInt32(value.nid); err != nil {
				return BadEncodingError
			}
		}
	case IDTypeString:
		if err := enc.WriteByte(0x03); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteUInt16(value.namespaceIndex); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteString(value.sid); err != nil {
			return BadEncodingError
		}
	case IDTypeGUID:
		if err := enc.WriteByte(0x04); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteUInt16(value.namespaceIndex); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteGUID(value.gid); err != nil {
			return BadEncodingError
		}
	case IDTypeOpaque:
		if err := enc.WriteByte(0x05); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteUInt16(value.namespaceIndex); err != nil {
			return BadEncodingError
		}
		if err := enc.WriteByteString(value.bid); err != nil {
			return BadEncodingError
		}
	}
	return nil
}

// WriteStringArray writes a string array.
func (enc *BinaryEncoder) WriteStringArray(value []string) error {
	if value == nil {
		return enc.WriteInt32(-1)
	}
	if err := enc.WriteInt32(int32(len(value))); err != nil {
		return BadEncodingError
	}
	for i := range value {
		if err := enc.WriteString(value[i]); err != nil {
			return BadEncodingError
		}
	}
	return nil
}

// WriteRequestHeader writes a RequestHeader.
func (enc *BinaryEncoder) WriteRequestHeader(value *RequestHeader) error {
	if err := enc.WriteNodeID(value.AuthenticationToken); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteDateTime(value.Timestamp); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.RequestHandle); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.ReturnDiagnostics); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteString(value.AuditEntryID); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.TimeoutHint); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteResponseHeader writes a ResponseHeader.
func (enc *BinaryEncoder) WriteResponseHeader(value *ResponseHeader) error {
	if err := enc.WriteDateTime(value.Timestamp); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.RequestHandle); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteStatusCode(value.ServiceResult); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteStringArray(value.StringTable); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteChannelSecurityToken writes a ChannelSecurityToken.
func (enc *BinaryEncoder) WriteChannelSecurityToken(value *ChannelSecurityToken) error {
	if err := enc.WriteUInt32(value.ChannelID); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.TokenID); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteDateTime(value.CreatedAt); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.RevisedLifetime); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteOpenSecureChannelRequest writes an OpenSecureChannelRequest.
func (enc *BinaryEncoder) WriteOpenSecureChannelRequest(value *OpenSecureChannelRequest) error {
	if err := enc.WriteRequestHeader(&value.RequestHeader); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.ClientProtocolVersion); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteInt32(int32(value.RequestType)); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteInt32(int32(value.SecurityMode)); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteByteString(value.ClientNonce); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.RequestedLifetime); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteOpenSecureChannelResponse writes an OpenSecureChannelResponse.
func (enc *BinaryEncoder) WriteOpenSecureChannelResponse(value *OpenSecureChannelResponse) error {
	if err := enc.WriteResponseHeader(&value.ResponseHeader); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.ServerProtocolVersion); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteChannelSecurityToken(&value.SecurityToken); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteByteString(value.ServerNonce); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteCloseSecureChannelRequest writes a CloseSecureChannelRequest.
func (enc *BinaryEncoder) WriteCloseSecureChannelRequest(value *CloseSecureChannelRequest) error {
	return enc.WriteRequestHeader(&value.RequestHeader)
}

// WriteCloseSecureChannelResponse writes a CloseSecureChannelResponse.
func (enc *BinaryEncoder) WriteCloseSecureChannelResponse(value *CloseSecureChannelResponse) error {
	return enc.WriteResponseHeader(&value.ResponseHeader)
}

// WriteServiceFault writes a ServiceFault.
func (enc *BinaryEncoder) WriteServiceFault(value *ServiceFault) error {
	return enc.WriteResponseHeader(&value.ResponseHeader)
}

// WriteAsymmetricSecurityHeader writes an AsymmetricSecurityHeader.
func (enc *BinaryEncoder) WriteAsymmetricSecurityHeader(value *AsymmetricSecurityHeader) error {
	if err := enc.WriteString(value.SecurityPolicyURI); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteByteString(value.SenderCertificate); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteByteString(value.ReceiverCertificateThumbprint); err != nil {
		return BadEncodingError
	}
	return nil
}

// WriteSymmetricSecurityHeader writes a SymmetricSecurityHeader.
func (enc *BinaryEncoder) WriteSymmetricSecurityHeader(value *SymmetricSecurityHeader) error {
	return enc.WriteUInt32(value.TokenID)
}

// WriteSequenceHeader writes a SequenceHeader.
func (enc *BinaryEncoder) WriteSequenceHeader(value *SequenceHeader) error {
	if err := enc.WriteUInt32(value.SequenceNumber); err != nil {
		return BadEncodingError
	}
	if err := enc.WriteUInt32(value.RequestID); err != nil {
		return BadEncodingError
	}
	return nil
}
