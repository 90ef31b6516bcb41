package webserver

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	selfSignedCert = "jamoveo.crt"
	selfSignedKey  = "jamoveo.key"
)

// selfSignedTLS returns a tls.Config backed by a self-signed ECDSA cert kept
// in cacheDir. The pair is generated on first use, and again whenever the
// cached files cannot be loaded or the cert has expired. host is added to
// the cert's names unless it is a wildcard address.
func selfSignedTLS(cacheDir, host string) (*tls.Config, error) {
	if cacheDir == "" {
		return nil, errors.New("self-signed tls requires a cache directory")
	}
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, err
	}
	certFile := filepath.Join(cacheDir, selfSignedCert)
	keyFile := filepath.Join(cacheDir, selfSignedKey)

	cert, err := loadUnexpired(certFile, keyFile)
	if err != nil {
		if err := generateSelfSigned(certFile, keyFile, host); err != nil {
			return nil, err
		}
		if cert, err = loadUnexpired(certFile, keyFile); err != nil {
			return nil, err
		}
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func loadUnexpired(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return cert, err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return cert, err
	}
	if time.Now().After(leaf.NotAfter) {
		return cert, errors.New("cached certificate expired")
	}
	return cert, nil
}

func generateSelfSigned(certFile, keyFile, host string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"jamoveo"}},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(2 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	switch ip := net.ParseIP(host); {
	case host == "" || host == "0.0.0.0" || host == "::" || host == "localhost":
	case ip != nil:
		template.IPAddresses = append(template.IPAddresses, ip)
	default:
		template.DNSNames = append(template.DNSNames, host)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	if err := writePEM(certFile, 0644, "CERTIFICATE", certDER); err != nil {
		return err
	}
	return writePEM(keyFile, 0600, "EC PRIVATE KEY", keyBytes)
}

func writePEM(path string, mode os.FileMode, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
