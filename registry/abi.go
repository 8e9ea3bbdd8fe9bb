package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// SecretRegistryABI is the interface of the deployed SecretRegistry contract.
const SecretRegistryABI = `[
  {"type":"function","name":"registerSecret","stateMutability":"nonpayable","inputs":[
    {"name":"secretId","type":"bytes32"},{"name":"m","type":"uint8"},
    {"name":"participants","type":"address[]"},{"name":"secretHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"confirmReceipt","stateMutability":"nonpayable","inputs":[
    {"name":"secretId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"closeSecret","stateMutability":"nonpayable","inputs":[
    {"name":"secretId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getSecret","stateMutability":"view","inputs":[
    {"name":"secretId","type":"bytes32"}],"outputs":[
    {"name":"owner","type":"address"},{"name":"m","type":"uint8"},{"name":"n","type":"uint8"},
    {"name":"active","type":"bool"},{"name":"secretHash","type":"bytes32"},
    {"name":"participants","type":"address[]"},{"name":"confirmations","type":"uint256"}]},
  {"type":"function","name":"canReconstruct","stateMutability":"view","inputs":[
    {"name":"secretId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isParticipant","stateMutability":"view","inputs":[
    {"name":"secretId","type":"bytes32"},{"name":"who","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"hasConfirmed","stateMutability":"view","inputs":[
    {"name":"secretId","type":"bytes32"},{"name":"who","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"SecretRegistered","anonymous":false,"inputs":[
    {"name":"secretId","type":"bytes32","indexed":true},{"name":"owner","type":"address","indexed":true},
    {"name":"m","type":"uint8","indexed":false},{"name":"n","type":"uint8","indexed":false},
    {"name":"secretHash","type":"bytes32","indexed":false},{"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"ReceiptConfirmed","anonymous":false,"inputs":[
    {"name":"secretId","type":"bytes32","indexed":true},{"name":"participant","type":"address","indexed":true},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"SecretClosed","anonymous":false,"inputs":[
    {"name":"secretId","type":"bytes32","indexed":true},{"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"error","name":"AlreadyExists","inputs":[]},
  {"type":"error","name":"InvalidThreshold","inputs":[]},
  {"type":"error","name":"NotParticipant","inputs":[]},
  {"type":"error","name":"AlreadyConfirmed","inputs":[]},
  {"type":"error","name":"NotActive","inputs":[]},
  {"type":"error","name":"NotOwner","inputs":[]},
  {"type":"error","name":"UnknownSecret","inputs":[]}
]`

// Revert reasons the contract raises with require(..., reason).
const (
	revertDuplicateParticipant = "duplicate participant"
	revertZeroParticipant      = "zero participant"
)

var parsedABI = mustParseABI(SecretRegistryABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
