package socket

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/cloudsqlconn/internal/cloudsql/adminapi"
)

func generateSelfSigned(t *testing.T, commonName string) (tls.Certificate, *x509.CertPool, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv, Leaf: leaf}
	return cert, pool, priv
}

func TestBuilderDialVerifiesServerIdentity(t *testing.T) {
	serverCert, serverPool, _ := generateSelfSigned(t, "proj:region:inst")
	clientCert, clientPool, _ := generateSelfSigned(t, "client")

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientPool,
	})
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		_, _ = conn.Read(buf)
	}()

	addr := listener.Addr().(*net.TCPAddr)

	data := &adminapi.InstanceData{
		ClientCert:   clientCert,
		ServerCAPool: serverPool,
		ServerName:   "proj:region:inst",
	}

	builder := NewBuilder()
	builder.Port = addr.Port

	conn, err := builder.Dial(context.Background(), "127.0.0.1", data)
	require.NoError(t, err)
	defer conn.Close()
}

func TestBuilderDialRejectsWrongServerIdentity(t *testing.T) {
	serverCert, serverPool, _ := generateSelfSigned(t, "proj:region:other-instance")
	clientCert, clientPool, _ := generateSelfSigned(t, "client")

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientPool,
	})
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
	}()

	addr := listener.Addr().(*net.TCPAddr)

	data := &adminapi.InstanceData{
		ClientCert:   clientCert,
		ServerCAPool: serverPool,
		ServerName:   "proj:region:inst", // does not match the server's CN
	}

	builder := NewBuilder()
	builder.Port = addr.Port

	_, err = builder.Dial(context.Background(), "127.0.0.1", data)
	require.Error(t, err)
}
