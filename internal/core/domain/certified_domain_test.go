package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCertifiedDomain(t *testing.T) {
	good := Endpoint{Host: "localhost", Port: 8121}

	tests := []struct {
		name      string
		domain    string
		admission Endpoint
		service   Endpoint
		wantErr   bool
	}{
		{name: "valid", domain: "test-security-domain", admission: good, service: good},
		{name: "dotted name", domain: "certifier.example.com", admission: good, service: good},
		{name: "empty name", domain: "", admission: good, service: good, wantErr: true},
		{name: "mixed case name", domain: "Datica", admission: good, service: good},
		{name: "name with space", domain: "bad domain", admission: good, service: good, wantErr: true},
		{name: "name with slash", domain: "a/b", admission: good, service: good, wantErr: true},
		{name: "uri name", domain: "spiffe://dom", admission: good, service: good, wantErr: true},
		{name: "bad admission port", domain: "dom", admission: Endpoint{Host: "localhost"}, service: good, wantErr: true},
		{name: "bad service host", domain: "dom", admission: good, service: Endpoint{Port: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewCertifiedDomain(tt.domain, []byte("cert"), tt.admission, tt.service)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.domain, d.Name)
			assert.False(t, d.IsCertified())
		})
	}
}

func TestCertifiedDomain_Clone(t *testing.T) {
	d := mustDomain(t, "dom")
	d.AdmissionCert = []byte("issued")

	c := d.Clone()
	c.Certificate[0] = 'X'
	c.AdmissionCert[0] = 'X'

	assert.Equal(t, []byte("test-dummy-certificate"), d.Certificate)
	assert.Equal(t, []byte("issued"), d.AdmissionCert)
	assert.True(t, c.IsCertified())

	var nilDomain *CertifiedDomain
	assert.Nil(t, nilDomain.Clone())
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{name: "hostname", host: "localhost", port: 8121, want: "localhost:8121"},
		{name: "ipv4", host: "10.0.0.1", port: 443, want: "10.0.0.1:443"},
		{name: "ipv6", host: "::1", port: 8123, want: "[::1]:8123"},
		{name: "trimmed", host: "  localhost ", port: 1, want: "localhost:1"},
		{name: "empty host", host: "", port: 80, wantErr: true},
		{name: "port zero", host: "localhost", port: 0, wantErr: true},
		{name: "port too big", host: "localhost", port: 70000, wantErr: true},
		{name: "host with slash", host: "local/host", port: 80, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := NewEndpoint(tt.host, tt.port)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, ep.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ep.String())
		})
	}
}
