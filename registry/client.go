package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// OnchainRegistryClient implements interfaces.SecretRegistry against a
// SecretRegistry contract. Mutations wait for the transaction to be mined
// and return the event found in its receipt.
type OnchainRegistryClient struct {
	contract *bind.BoundContract
	caller   bind.ContractCaller
	filterer bind.ContractFilterer
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
}

// NewOnchainRegistryClient creates a new client for the contract at address.
// It requires a ContractBackend for reading from the blockchain and a
// DeployBackend for waiting on transactions.
func NewOnchainRegistryClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address) (*OnchainRegistryClient, error) {
	return newOnchainRegistryClient(client, client, client, backend, address), nil
}

func newOnchainRegistryClient(caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer, backend bind.DeployBackend, address common.Address) *OnchainRegistryClient {
	return &OnchainRegistryClient{
		contract: bind.NewBoundContract(address, parsedABI, caller, transactor, filterer),
		caller:   caller,
		filterer: filterer,
		backend:  backend,
		address:  address,
	}
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// The signer of auth becomes the registry caller.
func (c *OnchainRegistryClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// Caller returns the transacting address, or the zero address when read-only.
func (c *OnchainRegistryClient) Caller() interfaces.Address {
	if c.auth == nil {
		return interfaces.ZeroAddress
	}
	return c.auth.From
}

func (c *OnchainRegistryClient) callOpts(ctx context.Context) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx}
	if c.auth != nil {
		opts.From = c.auth.From
	}
	return opts
}

func (c *OnchainRegistryClient) RegisterSecret(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*interfaces.SecretRegistered, error) {
	receipt, err := c.transact(ctx, "registerSecret", [32]byte(id), threshold, participants, [32]byte(secretHash))
	if err != nil {
		return nil, err
	}
	for _, ev := range c.decodeLogs(receipt.Logs) {
		if ev.Registered != nil && ev.Registered.SecretID == id {
			return ev.Registered, nil
		}
	}
	return nil, fmt.Errorf("%w: no SecretRegistered event in receipt %s", interfaces.ErrLedgerUnavailable, receipt.TxHash.Hex())
}

func (c *OnchainRegistryClient) ConfirmReceipt(ctx context.Context, id interfaces.SecretID) (*interfaces.ReceiptConfirmed, error) {
	receipt, err := c.transact(ctx, "confirmReceipt", [32]byte(id))
	if err != nil {
		return nil, err
	}
	for _, ev := range c.decodeLogs(receipt.Logs) {
		if ev.Confirmed != nil && ev.Confirmed.SecretID == id {
			return ev.Confirmed, nil
		}
	}
	return nil, fmt.Errorf("%w: no ReceiptConfirmed event in receipt %s", interfaces.ErrLedgerUnavailable, receipt.TxHash.Hex())
}

func (c *OnchainRegistryClient) CloseSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretClosed, error) {
	receipt, err := c.transact(ctx, "closeSecret", [32]byte(id))
	if err != nil {
		return nil, err
	}
	for _, ev := range c.decodeLogs(receipt.Logs) {
		if ev.Closed != nil && ev.Closed.SecretID == id {
			return ev.Closed, nil
		}
	}
	return nil, fmt.Errorf("%w: no SecretClosed event in receipt %s", interfaces.ErrLedgerUnavailable, receipt.TxHash.Hex())
}

func (c *OnchainRegistryClient) transact(ctx context.Context, method string, params ...interface{}) (*types.Receipt, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	opts := *c.auth
	opts.Context = ctx
	tx, err := c.contract.Transact(&opts, method, params...)
	if err != nil {
		return nil, decodeError(err)
	}

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for %s: %v", interfaces.ErrLedgerUnavailable, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, c.revertReason(ctx, tx, receipt)
	}
	return receipt, nil
}

// revertReason replays a reverted transaction as a call against the state of
// its block. A transaction that lost a race to a conflicting one reverts with
// the registry error the replay reports.
func (c *OnchainRegistryClient) revertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) error {
	msg := ethereum.CallMsg{
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	if c.auth != nil {
		msg.From = c.auth.From
	}
	if _, err := c.caller.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		if mapped := decodeError(err); !errors.Is(mapped, interfaces.ErrLedgerUnavailable) {
			return mapped
		}
	}
	return fmt.Errorf("%w: transaction %s reverted", interfaces.ErrLedgerUnavailable, tx.Hash().Hex())
}

// GetSecret retrieves the record. Confirmed is filled by probing each participant.
func (c *OnchainRegistryClient) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, "getSecret", [32]byte(id)); err != nil {
		return nil, decodeError(err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("%w: unexpected getSecret output", interfaces.ErrLedgerUnavailable)
	}

	rec := &interfaces.SecretRecord{
		ID:           id,
		Owner:        *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Threshold:    *abi.ConvertType(out[1], new(uint8)).(*uint8),
		Active:       *abi.ConvertType(out[3], new(bool)).(*bool),
		SecretHash:   interfaces.SecretHash(*abi.ConvertType(out[4], new([32]byte)).(*[32]byte)),
		Participants: *abi.ConvertType(out[5], new([]common.Address)).(*[]common.Address),
		Confirmed:    make(map[interfaces.Address]bool),
	}
	rec.Confirmations = uint((*abi.ConvertType(out[6], new(*big.Int)).(**big.Int)).Uint64())

	if rec.Confirmations > 0 {
		for _, p := range rec.Participants {
			confirmed, err := c.HasConfirmed(ctx, id, p)
			if err != nil {
				return nil, err
			}
			if confirmed {
				rec.Confirmed[p] = true
			}
		}
	}
	return rec, nil
}

func (c *OnchainRegistryClient) CanReconstruct(ctx context.Context, id interfaces.SecretID) (bool, error) {
	return c.callBool(ctx, "canReconstruct", [32]byte(id))
}

func (c *OnchainRegistryClient) IsParticipant(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	return c.callBool(ctx, "isParticipant", [32]byte(id), addr)
}

func (c *OnchainRegistryClient) HasConfirmed(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	return c.callBool(ctx, "hasConfirmed", [32]byte(id), addr)
}

func (c *OnchainRegistryClient) callBool(ctx context.Context, method string, params ...interface{}) (bool, error) {
	var out []interface{}
	if err := c.contract.Call(c.callOpts(ctx), &out, method, params...); err != nil {
		return false, decodeError(err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%w: unexpected %s output", interfaces.ErrLedgerUnavailable, method)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Events returns the contract's events from block `from` onwards. Seq is the
// block number, so several events may share one Seq.
func (c *OnchainRegistryClient) Events(ctx context.Context, from uint64) ([]interfaces.Event, error) {
	logs, err := c.filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{c.address},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}
	ptrs := make([]*types.Log, len(logs))
	for i := range logs {
		ptrs[i] = &logs[i]
	}
	return c.decodeLogs(ptrs), nil
}

func (c *OnchainRegistryClient) decodeLogs(logs []*types.Log) []interfaces.Event {
	events := make([]interfaces.Event, 0, len(logs))
	for _, l := range logs {
		if l == nil {
			continue
		}
		if ev, ok := decodeLog(*l); ok {
			events = append(events, ev)
		}
	}
	return events
}

func decodeLog(l types.Log) (interfaces.Event, bool) {
	if len(l.Topics) == 0 {
		return interfaces.Event{}, false
	}

	var name string
	for n, ev := range parsedABI.Events {
		if ev.ID == l.Topics[0] {
			name = n
			break
		}
	}
	if name == "" {
		return interfaces.Event{}, false
	}

	fields := map[string]interface{}{}
	if len(l.Data) > 0 {
		if err := parsedABI.UnpackIntoMap(fields, name, l.Data); err != nil {
			return interfaces.Event{}, false
		}
	}
	var indexed abi.Arguments
	for _, arg := range parsedABI.Events[name].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return interfaces.Event{}, false
	}

	secretID, _ := fields["secretId"].([32]byte)
	ts := time.Time{}
	if v, ok := fields["timestamp"].(*big.Int); ok {
		ts = time.Unix(v.Int64(), 0).UTC()
	}
	ev := interfaces.Event{Seq: l.BlockNumber, Type: interfaces.EventType(name)}

	switch name {
	case string(interfaces.EventSecretRegistered):
		owner, _ := fields["owner"].(common.Address)
		m, _ := fields["m"].(uint8)
		n, _ := fields["n"].(uint8)
		hash, _ := fields["secretHash"].([32]byte)
		ev.Registered = &interfaces.SecretRegistered{
			SecretID:   interfaces.SecretID(secretID),
			Owner:      owner,
			Threshold:  m,
			N:          n,
			SecretHash: interfaces.SecretHash(hash),
			Timestamp:  ts,
		}
	case string(interfaces.EventReceiptConfirmed):
		participant, _ := fields["participant"].(common.Address)
		ev.Confirmed = &interfaces.ReceiptConfirmed{
			SecretID:    interfaces.SecretID(secretID),
			Participant: participant,
			Timestamp:   ts,
		}
	case string(interfaces.EventSecretClosed):
		ev.Closed = &interfaces.SecretClosed{SecretID: interfaces.SecretID(secretID), Timestamp: ts}
	default:
		return interfaces.Event{}, false
	}
	return ev, true
}

// dataError is implemented by RPC errors that carry revert data.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// decodeError maps contract reverts onto registry sentinels. Anything that
// is not a recognised revert is a ledger transport failure.
func decodeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoTransactOpts) {
		return err
	}

	var de dataError
	if errors.As(err, &de) {
		if data := revertData(de.ErrorData()); len(data) >= 4 {
			if mapped := mapRevert(data); mapped != nil {
				return mapped
			}
		}
	}

	if reason := strings.ToLower(err.Error()); strings.Contains(reason, "execution reverted") {
		switch {
		case strings.Contains(reason, revertDuplicateParticipant):
			return interfaces.ErrDuplicateParticipant
		case strings.Contains(reason, revertZeroParticipant):
			return interfaces.ErrZeroParticipant
		}
	}
	return fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
}

func revertData(data interface{}) []byte {
	switch v := data.(type) {
	case string:
		raw, err := hexutil.Decode(v)
		if err != nil {
			return nil
		}
		return raw
	case []byte:
		return v
	case hexutil.Bytes:
		return v
	}
	return nil
}

func mapRevert(data []byte) error {
	for name, e := range parsedABI.Errors {
		if string(e.ID[:4]) == string(data[:4]) {
			if mapped, ok := interfaces.RegistryErrors[name]; ok {
				return mapped
			}
		}
	}

	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return nil
	}
	switch reason {
	case revertDuplicateParticipant:
		return interfaces.ErrDuplicateParticipant
	case revertZeroParticipant:
		return interfaces.ErrZeroParticipant
	}
	return nil
}
