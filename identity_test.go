package telehash

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/cipherset/cs3a"
	"github.com/telehash/gotelehash/transports/pipe"
)

func TestIdentityRoundTrip(t *testing.T) {
	assert := assert.New(t)

	ident, err := GenerateIdentity(testSuite)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, WriteIdentity(ident, path, ""))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(os.FileMode(0600), info.Mode().Perm())

	out, err := ReadIdentity(testSuite, path, "")
	require.NoError(t, err)
	assert.Equal(ident.Hashname(), out.Hashname())

	a, err := ident.Node(nil)
	require.NoError(t, err)
	b, err := out.Node(pipe.Addr(1))
	require.NoError(t, err)
	assert.True(a.Equal(b))
}

func TestSealedIdentity(t *testing.T) {
	assert := assert.New(t)

	ident, err := GenerateIdentity(testSuite)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, WriteIdentity(ident, path, "correct horse"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var desc map[string]string
	require.NoError(t, json.Unmarshal(data, &desc))
	assert.Empty(desc["private"])
	assert.NotEmpty(desc["sealed"])
	assert.NotEmpty(desc["salt"])

	out, err := ReadIdentity(testSuite, path, "correct horse")
	require.NoError(t, err)
	assert.Equal(ident.Hashname(), out.Hashname())

	_, err = ReadIdentity(testSuite, path, "wrong")
	assert.Equal(ErrBadPassphrase, err)

	_, err = ReadIdentity(testSuite, path, "")
	assert.Equal(ErrBadPassphrase, err)
}

func TestReadIdentityMissing(t *testing.T) {
	_, err := ReadIdentity(testSuite, filepath.Join(t.TempDir(), "nope.json"), "")
	assert.True(t, os.IsNotExist(err))
}

func TestReadIdentityWithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"suite":"1a"}`), 0600))

	_, err := ReadIdentity(testSuite, path, "")
	assert.Equal(t, ErrMissingIdentity, err)
}

func TestReadIdentityLooksUpSuite(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()

	ident, err := GenerateIdentity(cs3a.New())
	require.NoError(t, err)

	path := filepath.Join(dir, "id.json")
	require.NoError(t, WriteIdentity(ident, path, "secret"))

	out, err := ReadIdentity(nil, path, "secret")
	require.NoError(t, err)
	assert.Equal(uint8(cs3a.ID), out.Suite().ID())
	assert.Equal(ident.Hashname(), out.Hashname())

	// a suite given by the caller must match the file
	_, err = ReadIdentity(testSuite, path, "secret")
	assert.Equal(cipherset.ErrUnknownSuite, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"suite":"ff","private":"AAAA"}`), 0600))
	_, err = ReadIdentity(nil, unknown, "")
	assert.Equal(cipherset.ErrUnknownSuite, err)

	bare := filepath.Join(dir, "bare.json")
	require.NoError(t, os.WriteFile(bare, []byte(`{"private":"AAAA"}`), 0600))
	_, err = ReadIdentity(nil, bare, "")
	assert.Equal(cipherset.ErrUnknownSuite, err)
}

func TestReadPublicKey(t *testing.T) {
	assert := assert.New(t)

	var (
		dir   = t.TempDir()
		ident *Identity
		err   error
	)

	ident, err = GenerateIdentity(testSuite)
	require.NoError(t, err)

	der, err := ident.PublicKey().DER()
	require.NoError(t, err)

	bare := filepath.Join(dir, "key.pub")
	require.NoError(t, os.WriteFile(bare, []byte(base64.StdEncoding.EncodeToString(der)+"\n"), 0644))

	full := filepath.Join(dir, "id.json")
	require.NoError(t, WriteIdentity(ident, full, "secret"))

	for _, path := range []string{bare, full} {
		pub, err := ReadPublicKey(testSuite, path)
		require.NoError(t, err)

		node, err := NewNode(testSuite, pub, nil)
		require.NoError(t, err)
		assert.Equal(ident.Hashname(), node.Hashname(), path)
	}
}

func TestReadSeeds(t *testing.T) {
	assert := assert.New(t)

	var (
		a    = makeNode(t).withEndpoint(pipe.Addr(1))
		b    = makeNode(t)
		path = filepath.Join(t.TempDir(), "seeds.json")
	)

	data, err := json.Marshal([]*Node{a, b})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	seeds, err := ReadSeeds(testSuite, path)
	require.NoError(t, err)

	if assert.Len(seeds, 2) {
		assert.True(a.Equal(seeds[0]))
		assert.Equal("pipe:1", seeds[0].Endpoint().String())
		assert.True(b.Equal(seeds[1]))
		assert.Nil(seeds[1].Endpoint())
	}
}
