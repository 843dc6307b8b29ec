// Copyright 2025 Certen Protocol
//
// Signature verification across the algorithm families a validator signature
// may use: classical Ed25519 and the post-quantum ML-DSA and SLH-DSA
// families, selected by signature_algorithm on the wire.

package cryptoverify

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/schemes"
)

// Algorithm identifies a signature scheme by its wire identifier.
type Algorithm string

const (
	AlgorithmEd25519    Algorithm = "ED25519"
	AlgorithmMLDSA65    Algorithm = "ML-DSA-65"
	AlgorithmSLHDSA128S Algorithm = "SLH-DSA-128S"
	AlgorithmSLHDSA192S Algorithm = "SLH-DSA-192S"
)

// circlSchemeNames maps a wire algorithm identifier to the scheme name circl
// registers it under.
var circlSchemeNames = map[Algorithm]string{
	AlgorithmMLDSA65:    "ML-DSA-65",
	AlgorithmSLHDSA128S: "SLH-DSA-SHA2-128s",
	AlgorithmSLHDSA192S: "SLH-DSA-SHA2-192s",
}

// Verify checks signature over message with publicKey under algorithm. It
// returns an error for malformed keys/signatures and a false result (nil
// error) for a well-formed signature that simply doesn't verify.
func Verify(algorithm Algorithm, publicKey, message, signature []byte) (bool, error) {
	switch algorithm {
	case AlgorithmEd25519:
		return verifyEd25519(publicKey, message, signature)
	case AlgorithmMLDSA65, AlgorithmSLHDSA128S, AlgorithmSLHDSA192S:
		return verifyCircl(algorithm, publicKey, message, signature)
	default:
		return false, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}
}

func verifyEd25519(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ed25519: invalid public key size: expected %d, got %d",
			ed25519.PublicKeySize, len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("ed25519: invalid signature size: expected %d, got %d",
			ed25519.SignatureSize, len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
}

func verifyCircl(algorithm Algorithm, publicKey, message, signature []byte) (bool, error) {
	schemeName, ok := circlSchemeNames[algorithm]
	if !ok {
		return false, fmt.Errorf("no circl scheme registered for algorithm: %s", algorithm)
	}

	scheme := schemes.ByName(schemeName)
	if scheme == nil {
		return false, fmt.Errorf("circl scheme unavailable: %s", schemeName)
	}

	pub, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false, fmt.Errorf("%s: unmarshal public key: %w", algorithm, err)
	}

	return scheme.Verify(pub, message, signature, nil), nil
}

// GenerateKey creates a fresh key pair for algorithm, for use by test fixtures
// and the genesis bootstrap tooling.
func GenerateKey(algorithm Algorithm) (publicKey, privateKey []byte, err error) {
	switch algorithm {
	case AlgorithmEd25519:
		pub, priv, genErr := ed25519.GenerateKey(nil)
		if genErr != nil {
			return nil, nil, genErr
		}
		return []byte(pub), []byte(priv), nil
	case AlgorithmMLDSA65, AlgorithmSLHDSA128S, AlgorithmSLHDSA192S:
		schemeName := circlSchemeNames[algorithm]
		scheme := schemes.ByName(schemeName)
		if scheme == nil {
			return nil, nil, fmt.Errorf("circl scheme unavailable: %s", schemeName)
		}
		pub, priv, genErr := scheme.GenerateKey()
		if genErr != nil {
			return nil, nil, genErr
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		privBytes, err := priv.MarshalBinary()
		if err != nil {
			return nil, nil, err
		}
		return pubBytes, privBytes, nil
	default:
		return nil, nil, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}
}

// Sign signs message with privateKey under algorithm. Used by test fixtures
// and by internal tooling that must produce real validator signatures
// (e.g. the genesis bootstrap CLI); production signing happens in the
// wallet service, reached only through internal/ports.
func Sign(algorithm Algorithm, privateKey, message []byte) ([]byte, error) {
	switch algorithm {
	case AlgorithmEd25519:
		if len(privateKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("ed25519: invalid private key size: expected %d, got %d",
				ed25519.PrivateKeySize, len(privateKey))
		}
		return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
	case AlgorithmMLDSA65, AlgorithmSLHDSA128S, AlgorithmSLHDSA192S:
		schemeName := circlSchemeNames[algorithm]
		scheme := schemes.ByName(schemeName)
		if scheme == nil {
			return nil, fmt.Errorf("circl scheme unavailable: %s", schemeName)
		}
		priv, err := scheme.UnmarshalBinaryPrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%s: unmarshal private key: %w", algorithm, err)
		}
		return scheme.Sign(priv, message, nil), nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}
}
