package ports

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufield/certifier/internal/core/errors"
)

// Wire layout of the certification messages:
//
//	message CertificationRequest {
//	  string request_id = 1;
//	  string domain = 2;
//	  string purpose = 3;
//	  string enclave_type = 4;
//	  bytes evidence = 5;
//	  bytes public_key = 6;
//	  bytes policy_cert = 7;
//	}
//	message CertificationResponse {
//	  string request_id = 1;
//	  string status = 2;
//	  bytes admission_cert = 3;
//	  string reason = 4;
//	}
const (
	fieldReqRequestID   protowire.Number = 1
	fieldReqDomain      protowire.Number = 2
	fieldReqPurpose     protowire.Number = 3
	fieldReqEnclaveType protowire.Number = 4
	fieldReqEvidence    protowire.Number = 5
	fieldReqPublicKey   protowire.Number = 6
	fieldReqPolicyCert  protowire.Number = 7

	fieldRespRequestID     protowire.Number = 1
	fieldRespStatus        protowire.Number = 2
	fieldRespAdmissionCert protowire.Number = 3
	fieldRespReason        protowire.Number = 4
)

// AppendWire appends the protobuf encoding of r to b. Empty fields are
// omitted.
func (r *CertificationRequest) AppendWire(b []byte) []byte {
	b = AppendWireBytes(b, fieldReqRequestID, []byte(r.RequestID))
	b = AppendWireBytes(b, fieldReqDomain, []byte(r.Domain))
	b = AppendWireBytes(b, fieldReqPurpose, []byte(r.Purpose))
	b = AppendWireBytes(b, fieldReqEnclaveType, []byte(r.EnclaveType))
	b = AppendWireBytes(b, fieldReqEvidence, r.Evidence)
	b = AppendWireBytes(b, fieldReqPublicKey, r.PublicKey)
	b = AppendWireBytes(b, fieldReqPolicyCert, r.PolicyCert)
	return b
}

// ConsumeWire replaces r with the request encoded in b.
func (r *CertificationRequest) ConsumeWire(b []byte) error {
	*r = CertificationRequest{}
	return ConsumeWireBytes(b, func(num protowire.Number, v []byte) {
		switch num {
		case fieldReqRequestID:
			r.RequestID = string(v)
		case fieldReqDomain:
			r.Domain = string(v)
		case fieldReqPurpose:
			r.Purpose = string(v)
		case fieldReqEnclaveType:
			r.EnclaveType = string(v)
		case fieldReqEvidence:
			r.Evidence = bytes.Clone(v)
		case fieldReqPublicKey:
			r.PublicKey = bytes.Clone(v)
		case fieldReqPolicyCert:
			r.PolicyCert = bytes.Clone(v)
		}
	})
}

// AppendWire appends the protobuf encoding of r to b.
func (r *CertificationResponse) AppendWire(b []byte) []byte {
	b = AppendWireBytes(b, fieldRespRequestID, []byte(r.RequestID))
	b = AppendWireBytes(b, fieldRespStatus, []byte(r.Status))
	b = AppendWireBytes(b, fieldRespAdmissionCert, r.AdmissionCert)
	b = AppendWireBytes(b, fieldRespReason, []byte(r.Reason))
	return b
}

// ConsumeWire replaces r with the response encoded in b.
func (r *CertificationResponse) ConsumeWire(b []byte) error {
	*r = CertificationResponse{}
	return ConsumeWireBytes(b, func(num protowire.Number, v []byte) {
		switch num {
		case fieldRespRequestID:
			r.RequestID = string(v)
		case fieldRespStatus:
			r.Status = string(v)
		case fieldRespAdmissionCert:
			r.AdmissionCert = bytes.Clone(v)
		case fieldRespReason:
			r.Reason = string(v)
		}
	})
}

// AppendWireBytes appends a length-delimited field unless v is empty.
func AppendWireBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// ConsumeWireBytes walks the fields of a message, passing every
// length-delimited field to set. Fields of other wire types are skipped.
// Malformed input yields an ErrDecode error.
func ConsumeWireBytes(b []byte, set func(num protowire.Number, v []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError("field tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wireError("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return wireError("field %d: %v", num, protowire.ParseError(n))
		}
		set(num, v)
		b = b[n:]
	}
	return nil
}

func wireError(format string, args ...any) error {
	return errors.NewDomainError(errors.ErrDecode, fmt.Errorf(format, args...))
}
