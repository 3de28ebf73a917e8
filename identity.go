package telehash

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/transports"
)

const (
	sealIterations = 4096
	sealSaltSize   = 16
)

// Identity is the local key pair.
type Identity struct {
	suite    cipherset.Suite
	private  cipherset.PrivateKey
	hashname hashname.H
}

// GenerateIdentity makes a new identity with a fresh key.
func GenerateIdentity(suite cipherset.Suite) (*Identity, error) {
	prv, err := suite.GenerateKey()
	if err != nil {
		return nil, cipherset.Fail("generate identity", err)
	}
	return NewIdentity(suite, prv)
}

func NewIdentity(suite cipherset.Suite, prv cipherset.PrivateKey) (*Identity, error) {
	if prv == nil {
		return nil, ErrMissingIdentity
	}

	h, err := cipherset.Hashname(suite, prv.Public())
	if err != nil {
		return nil, err
	}

	return &Identity{suite: suite, private: prv, hashname: h}, nil
}

func (i *Identity) Suite() cipherset.Suite           { return i.suite }
func (i *Identity) Hashname() hashname.H             { return i.hashname }
func (i *Identity) PrivateKey() cipherset.PrivateKey { return i.private }
func (i *Identity) PublicKey() cipherset.PublicKey   { return i.private.Public() }

// Node returns the node other peers use to reach this identity at endpoint.
func (i *Identity) Node(endpoint transports.Addr) (*Node, error) {
	return NewNode(i.suite, i.private.Public(), endpoint)
}

type jsonIdentity struct {
	Suite    string     `json:"suite"`
	Hashname hashname.H `json:"hashname"`
	Public   string     `json:"public"`
	Private  string     `json:"private,omitempty"`
	Sealed   string     `json:"sealed,omitempty"`
	Salt     string     `json:"salt,omitempty"`
}

// EncodeIdentity returns the JSON form of i. When passphrase is not empty
// the private key is sealed with a key derived from it.
func EncodeIdentity(i *Identity, passphrase string) ([]byte, error) {
	pubder, err := i.private.Public().DER()
	if err != nil {
		return nil, cipherset.Fail("encode identity", err)
	}

	prvder, err := i.private.DER()
	if err != nil {
		return nil, cipherset.Fail("encode identity", err)
	}

	desc := jsonIdentity{
		Suite:    fmt.Sprintf("%02x", i.suite.ID()),
		Hashname: i.hashname,
		Public:   base64.StdEncoding.EncodeToString(pubder),
	}

	if passphrase == "" {
		desc.Private = base64.StdEncoding.EncodeToString(prvder)
	} else {
		salt := make([]byte, sealSaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}

		sealed, err := seal(passphrase, salt, prvder)
		if err != nil {
			return nil, err
		}

		desc.Salt = base64.StdEncoding.EncodeToString(salt)
		desc.Sealed = base64.StdEncoding.EncodeToString(sealed)
	}

	data, err := json.MarshalIndent(&desc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteIdentity stores i at path with mode 0600. See EncodeIdentity.
func WriteIdentity(i *Identity, path, passphrase string) error {
	data, err := EncodeIdentity(i, passphrase)
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadIdentity loads an identity written by WriteIdentity. A missing file
// returns an error for which os.IsNotExist is true.
//
// When suite is nil the suite named in the file is looked up in the
// cipherset registry. Otherwise the file must name suite or no suite at all.
func ReadIdentity(suite cipherset.Suite, path, passphrase string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var desc jsonIdentity
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("telehash: invalid identity file %s: %w", path, err)
	}

	suite, err = identitySuite(suite, desc.Suite)
	if err != nil {
		return nil, err
	}

	var prvder []byte
	switch {
	case desc.Sealed != "":
		if passphrase == "" {
			return nil, ErrBadPassphrase
		}

		salt, err := base64.StdEncoding.DecodeString(desc.Salt)
		if err != nil {
			return nil, fmt.Errorf("telehash: invalid identity file %s: %w", path, err)
		}
		sealed, err := base64.StdEncoding.DecodeString(desc.Sealed)
		if err != nil {
			return nil, fmt.Errorf("telehash: invalid identity file %s: %w", path, err)
		}

		prvder, err = unseal(passphrase, salt, sealed)
		if err != nil {
			return nil, err
		}

	case desc.Private != "":
		prvder, err = base64.StdEncoding.DecodeString(desc.Private)
		if err != nil {
			return nil, fmt.Errorf("telehash: invalid identity file %s: %w", path, err)
		}

	default:
		return nil, ErrMissingIdentity
	}

	prv, err := suite.DecodePrivateKey(prvder)
	if err != nil {
		return nil, err
	}

	ident, err := NewIdentity(suite, prv)
	if err != nil {
		return nil, err
	}

	if !desc.Hashname.IsZero() && desc.Hashname != ident.hashname {
		return nil, hashname.ErrInvalidHashname
	}

	return ident, nil
}

func identitySuite(suite cipherset.Suite, id string) (cipherset.Suite, error) {
	if id == "" {
		if suite == nil {
			return nil, cipherset.ErrUnknownSuite
		}
		return suite, nil
	}

	n, err := strconv.ParseUint(id, 16, 8)
	if err != nil {
		return nil, cipherset.ErrUnknownSuite
	}

	if suite != nil {
		if suite.ID() != uint8(n) {
			return nil, cipherset.ErrUnknownSuite
		}
		return suite, nil
	}

	return cipherset.Lookup(uint8(n))
}

// ReadPublicKey reads a public key from path. The file may hold a bare
// base64 DER key or any JSON document with a "public" field.
func ReadPublicKey(suite cipherset.Suite, path string) (cipherset.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		var desc struct {
			Public string `json:"public"`
		}
		if err := json.Unmarshal([]byte(text), &desc); err != nil {
			return nil, err
		}
		text = desc.Public
	}

	der, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, cipherset.Fail("read public key", err)
	}

	return suite.DecodePublicKey(der)
}

// ReadSeeds reads a JSON array of nodes (see Node.MarshalJSON).
func ReadSeeds(suite cipherset.Suite, path string) ([]*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("telehash: invalid seeds file %s: %w", path, err)
	}

	nodes := make([]*Node, 0, len(raw))
	for _, r := range raw {
		node, err := DecodeNode(suite, r)
		if err != nil {
			return nil, fmt.Errorf("telehash: invalid seed in %s: %w", path, err)
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

func sealKey(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, sealIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(passphrase string, salt, plaintext []byte) ([]byte, error) {
	aead, err := sealKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func unseal(passphrase string, salt, sealed []byte) ([]byte, error) {
	aead, err := sealKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrBadPassphrase
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}
