package tlscert

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

func parsePKCS8RSAKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("tlscert: parse cached leaf key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tlscert: cached leaf key is not RSA")
	}
	return rsaKey, nil
}

func marshalPKCS8RSAKey(key any) ([]byte, error) {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("tlscert: leaf key is not RSA")
	}
	return x509.MarshalPKCS8PrivateKey(rsaKey)
}
