package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

func TestLookupFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "registration", r.URL.Query().Get("purpose"))
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "260", r.URL.Query().Get("chainId"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found":true,"record":{"address":"0x0000000000000000000000000000000000000def","credentialPublicKey":"0xa50102"}}`))
	}))
	defer srv.Close()

	client := &Client{ServerAddr: srv.URL}
	record, err := client.Lookup(context.Background(), interfaces.PurposeRegistration, "alice", 260)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000def"), record.Address)
	assert.NotEmpty(t, record.CredentialPublicKey)
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found":false}`))
	}))
	defer srv.Close()

	client := &Client{ServerAddr: srv.URL}
	record, err := client.Lookup(context.Background(), interfaces.PurposeRegistration, "alice", 260)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLookupEmptyRecordIsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found":true,"record":{}}`))
	}))
	defer srv.Close()

	client := &Client{ServerAddr: srv.URL}
	record, err := client.Lookup(context.Background(), interfaces.PurposeLogin, "alice", 260)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestLookupServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := &Client{ServerAddr: srv.URL}
	_, err := client.Lookup(context.Background(), interfaces.PurposeRegistration, "alice", 260)
	assert.ErrorIs(t, err, interfaces.ErrDirectoryUnavailable)
}

func TestLookupUnreachableIsUnavailable(t *testing.T) {
	// Connection refused must not be conflated with "username available".
	client := &Client{ServerAddr: "http://127.0.0.1:1"}
	_, err := client.Lookup(context.Background(), interfaces.PurposeRegistration, "alice", 260)
	assert.ErrorIs(t, err, interfaces.ErrDirectoryUnavailable)
}

func TestLookupIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found":true,"record":{"address":"0x0000000000000000000000000000000000000abc","credentialPublicKey":"0x0102"}}`))
	}))
	defer srv.Close()

	client := &Client{ServerAddr: srv.URL}
	first, err := client.Lookup(context.Background(), interfaces.PurposeLogin, "bob", 260)
	require.NoError(t, err)
	second, err := client.Lookup(context.Background(), interfaces.PurposeLogin, "bob", 260)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
