package telehash

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/transports"
)

// Node is a remote peer. Nodes are immutable and identified by their
// hashname only; two nodes with different endpoints but the same key are
// equal.
type Node struct {
	publicKey cipherset.PublicKey
	endpoint  transports.Addr
	hashname  hashname.H
}

// NewNode computes the hashname of pub. A failure to digest the key is
// reported as a *cipherset.CryptoError.
func NewNode(suite cipherset.Suite, pub cipherset.PublicKey, endpoint transports.Addr) (*Node, error) {
	h, err := cipherset.Hashname(suite, pub)
	if err != nil {
		return nil, err
	}

	return &Node{publicKey: pub, endpoint: endpoint, hashname: h}, nil
}

func (n *Node) PublicKey() cipherset.PublicKey { return n.publicKey }
func (n *Node) Endpoint() transports.Addr      { return n.endpoint }
func (n *Node) Hashname() hashname.H           { return n.hashname }

// Equal returns true when n and other have the same hashname.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.hashname == other.hashname
}

func (n *Node) String() string {
	if n.endpoint == nil {
		return fmt.Sprintf("Node[%s]", n.hashname.Short())
	}
	return fmt.Sprintf("Node[%s@%s]", n.hashname.Short(), n.endpoint)
}

// withEndpoint returns a copy of n reachable at endpoint.
func (n *Node) withEndpoint(endpoint transports.Addr) *Node {
	if transports.EqualAddr(n.endpoint, endpoint) {
		return n
	}
	x := *n
	x.endpoint = endpoint
	return &x
}

type jsonNode struct {
	Hashname hashname.H      `json:"hashname"`
	Public   string          `json:"public"`
	Endpoint json.RawMessage `json:"endpoint,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	der, err := n.publicKey.DER()
	if err != nil {
		return nil, err
	}

	desc := jsonNode{
		Hashname: n.hashname,
		Public:   base64.StdEncoding.EncodeToString(der),
	}

	if n.endpoint != nil {
		desc.Endpoint, err = n.endpoint.MarshalJSON()
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(&desc)
}

// DecodeNode parses the JSON form produced by Node.MarshalJSON. The hashname
// in the document must match the public key.
func DecodeNode(suite cipherset.Suite, data []byte) (*Node, error) {
	var desc jsonNode

	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, err
	}

	der, err := base64.StdEncoding.DecodeString(desc.Public)
	if err != nil {
		return nil, cipherset.Fail("decode node", err)
	}

	pub, err := suite.DecodePublicKey(der)
	if err != nil {
		return nil, err
	}

	var endpoint transports.Addr
	if len(desc.Endpoint) > 0 && string(desc.Endpoint) != "null" {
		endpoint, err = transports.DecodeAddr(desc.Endpoint)
		if err != nil {
			return nil, err
		}
	}

	node, err := NewNode(suite, pub, endpoint)
	if err != nil {
		return nil, err
	}

	if !desc.Hashname.IsZero() && desc.Hashname != node.hashname {
		return nil, hashname.ErrInvalidHashname
	}

	return node, nil
}
