package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

func TestWireCodec_Registered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestWireCodec_Messages(t *testing.T) {
	c := wireCodec{}

	req := &ports.CertificationRequest{RequestID: "req-1", Domain: "primary.test", PublicKey: []byte("pk")}
	b, err := c.Marshal(req)
	require.NoError(t, err)
	got := new(ports.CertificationRequest)
	require.NoError(t, c.Unmarshal(b, got))
	assert.Equal(t, req, got)

	reply := &HelloReply{Message: ServerGreeting, Peer: "spiffe://primary.test/enclave/0a"}
	b, err = c.Marshal(reply)
	require.NoError(t, err)
	gotReply := new(HelloReply)
	require.NoError(t, c.Unmarshal(b, gotReply))
	assert.Equal(t, reply, gotReply)

	// Empty messages encode to nothing.
	b, err = c.Marshal(&HelloRequest{})
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestWireCodec_Errors(t *testing.T) {
	c := wireCodec{}

	_, err := c.Marshal(struct{ Name string }{"x"})
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(nil, &struct{}{}))

	err = c.Unmarshal([]byte{0x0a, 0x05, 'x'}, new(HelloRequest))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDecode)
	assert.Contains(t, err.Error(), CodecName)
}
