package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/docopt/docopt-go"

	"github.com/telehash/gotelehash"
	"github.com/telehash/gotelehash/cipherset"
	_ "github.com/telehash/gotelehash/cipherset/cs1a"
	_ "github.com/telehash/gotelehash/cipherset/cs3a"
)

const usage = `Telehash key generation tool.

Usage:
  th-keygen [--output=<file>] [--passphrase=<pass>] [--suite=<id>]
  th-keygen public <identity> [--passphrase=<pass>]
  th-keygen -h | --help
  th-keygen --version

Options:
  -o --output=<file>      Location to store the identity. [default: -]
  -p --passphrase=<pass>  Passphrase sealing the private key.
  --suite=<id>            Cipher set of new keys, 1a or 3a. [default: 1a]
  -h --help               Show this screen.
  --version               Show version.

The public command prints the node description of an identity, suitable for
a seeds file.
`

func main() {
	args, _ := docopt.Parse(usage, nil, true, "0.2-dev", false)

	var (
		passphrase, _ = args["--passphrase"].(string)
		data          []byte
	)

	if args["public"].(bool) {
		ident, err := telehash.ReadIdentity(nil, args["<identity>"].(string), passphrase)
		assert(err)

		node, err := ident.Node(nil)
		assert(err)

		data, err = json.MarshalIndent(node, "", "  ")
		assert(err)

		fmt.Println(string(data))
		return
	}

	output := args["--output"].(string)

	var id uint8
	_, err := fmt.Sscanf(args["--suite"].(string), "%x", &id)
	assert(err)
	suite, err := cipherset.Lookup(id)
	assert(err)

	ident, err := telehash.GenerateIdentity(suite)
	assert(err)

	fmt.Fprintf(os.Stderr, "Generated keys for: %s\n", ident.Hashname())

	if output == "-" {
		data, err = telehash.EncodeIdentity(ident, passphrase)
		assert(err)
		os.Stdout.Write(data)
	} else {
		err = telehash.WriteIdentity(ident, output, passphrase)
		assert(err)
	}
}

func assert(err error) {
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
}
