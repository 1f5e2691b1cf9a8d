package ports

import (
	"bytes"
	"context"

	"github.com/sufield/certifier/internal/core/domain"
)

// CertificationRequest is sent to a domain's certifier service.
type CertificationRequest struct {
	RequestID   string
	Domain      string
	Purpose     string
	EnclaveType string
	// Evidence is the enclave's attestation over PublicKey.
	Evidence  []byte
	PublicKey []byte
	// PolicyCert lets the service check the node trusts the same policy key.
	PolicyCert []byte
}

// Claims returns the bytes the enclave attests to for this request. Both the
// node and the certifier service derive them from the request fields.
func (r *CertificationRequest) Claims() []byte {
	var b bytes.Buffer
	b.WriteString("certifier-claims/v1")
	for _, f := range [][]byte{[]byte(r.Domain), []byte(r.RequestID), []byte(r.Purpose), r.PublicKey} {
		b.WriteByte(0)
		b.Write(f)
	}
	return b.Bytes()
}

// CertificationResponse carries the admission certificate on success.
type CertificationResponse struct {
	RequestID     string
	Status        string
	AdmissionCert []byte
	Reason        string
}

// Response statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// CertifierClient talks to a domain's certifier service. Implementations must
// honor ctx cancellation; any error means the domain was not certified.
type CertifierClient interface {
	Certify(ctx context.Context, endpoint domain.Endpoint, req *CertificationRequest) (*CertificationResponse, error)
}
