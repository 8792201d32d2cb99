package crt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"pdavault/logs"
	"pdavault/pda"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/ripemd160"
)

// FingerprintHRP 节点证书指纹的 bech32 前缀
const FingerprintHRP = "vault"

// Fingerprint 由证书公钥生成一个 bech32 指纹：hash160(pubkey)，witness version 0
func Fingerprint(pubKey *ecdsa.PublicKey) (string, error) {
	// 公钥序列化（非压缩）
	pubKeyBytes := elliptic.Marshal(pubKey.Curve, pubKey.X, pubKey.Y)

	sha256Hash := sha256.Sum256(pubKeyBytes)
	ripemdHasher := ripemd160.New()
	if _, err := ripemdHasher.Write(sha256Hash[:]); err != nil {
		return "", err
	}
	hash160 := ripemdHasher.Sum(nil)
	if len(hash160) != 20 {
		return "", fmt.Errorf("invalid RIPEMD-160 hash length: %d", len(hash160))
	}

	converted, err := bech32.ConvertBits(hash160, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{0x00}, converted...)
	return bech32.Encode(FingerprintHRP, data)
}

// CertFingerprint 已加载证书的公钥指纹，只支持 ECDSA 证书
func CertFingerprint(cert tls.Certificate) (string, error) {
	if len(cert.Certificate) == 0 {
		return "", fmt.Errorf("empty certificate chain")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return "", err
	}
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("unsupported certificate key %T", leaf.PublicKey)
	}
	return Fingerprint(pub)
}

// GenerateSelfSigned 生成自签名证书，Organization 写程序 ID，OrganizationalUnit 写公钥指纹
func GenerateSelfSigned(certPath, keyPath string, programID pda.Address, validFor time.Duration) error {
	if validFor <= 0 {
		validFor = 365 * 24 * time.Hour
	}
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	fp, err := Fingerprint(&privateKey.PublicKey)
	if err != nil {
		return err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization:       []string{programID.String()},
			OrganizationalUnit: []string{fp},
			CommonName:         "localhost",
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validFor),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return err
	}
	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return err
	}

	if err := writePEM(certPath, "CERTIFICATE", certBytes, 0o644); err != nil {
		return err
	}
	if err := writePEM(keyPath, "EC PRIVATE KEY", privBytes, 0o600); err != nil {
		return err
	}

	logs.Debug("Certificate and key generated: cert=%s key=%s", certPath, keyPath)
	logs.Debug("Certificate fingerprint: %s", fp)
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: der})
}

// LoadOrGenerate 证书文件缺失时生成一份，再加载
func LoadOrGenerate(certPath, keyPath string, programID pda.Address) (tls.Certificate, error) {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	if os.IsNotExist(certErr) || os.IsNotExist(keyErr) {
		logs.Info("[TLS] no certificate at %s, generating self-signed", certPath)
		if err := GenerateSelfSigned(certPath, keyPath, programID, 0); err != nil {
			return tls.Certificate{}, fmt.Errorf("generate certificate: %w", err)
		}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load certificate: %w", err)
	}
	return cert, nil
}
