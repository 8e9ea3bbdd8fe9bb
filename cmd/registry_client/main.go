package main

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/threshold-secret-registry/api"
	"github.com/ruteri/threshold-secret-registry/bundle"
	"github.com/ruteri/threshold-secret-registry/client"
	"github.com/ruteri/threshold-secret-registry/cmd/flags"
	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/storage"
	"github.com/urfave/cli/v2"
)

var flagSecretID = &cli.StringFlag{
	Name:  "secret-id",
	Usage: "secret id (0x + 64 hex chars)",
}
var flagLabel = &cli.StringFlag{
	Name:  "label",
	Usage: "secret label, used instead of --secret-id",
}
var flagBundle = &cli.StringFlag{
	Name:  "bundle",
	Usage: "path to bundle.json",
}
var flagThreshold = &cli.UintFlag{
	Name:    "threshold",
	Aliases: []string{"m"},
	Usage:   "reconstruction threshold M (without --bundle)",
}
var flagParticipant = &cli.StringSliceFlag{
	Name:  "participant",
	Usage: "participant address (without --bundle); repeat in order",
}
var flagSecretHash = &cli.StringFlag{
	Name:  "secret-hash",
	Usage: "commitment keccak256(\"hash:\"+secret+\":\"+salt) (without --bundle)",
}
var flagFrom = &cli.Uint64Flag{
	Name:  "from",
	Usage: "first event sequence number (block number for --ledger onchain)",
}
var flagEncryptionKey = &cli.StringFlag{
	Name:    "encryption-key",
	Usage:   "hex secp256k1 encryption private key",
	EnvVars: []string{"REGISTRY_ENCRYPTION_KEY"},
}
var flagLegacy = &cli.BoolFlag{
	Name:  "legacy",
	Usage: "decrypt with the signing key (shares encrypted to an exported wallet key)",
}
var flagAddress = &cli.StringFlag{
	Name:  "address",
	Usage: "participant address; defaults to the --private-key address",
}
var flagOut = &cli.StringFlag{
	Name:  "out",
	Usage: "write the result to this file instead of stdout",
}

const usage string = `Register, confirm and inspect threshold secrets, and manage participant
encryption keys. Mutations are signed with --private-key.`

func main() {
	ledgerCommand := func(name, about string, extra []cli.Flag, action cli.ActionFunc) *cli.Command {
		return &cli.Command{
			Name:   name,
			Usage:  about,
			Flags:  append(append([]cli.Flag{}, flags.LedgerFlags...), extra...),
			Action: action,
		}
	}

	app := &cli.App{
		Name:  "registry-client",
		Usage: usage,
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("registry-client")}, flags.LogFlags...),
		Commands: []*cli.Command{
			ledgerCommand("register", "register a secret from a bundle or explicit metadata",
				[]cli.Flag{flagBundle, flagSecretID, flagLabel, flagThreshold, flagParticipant, flagSecretHash}, register),
			ledgerCommand("confirm", "confirm receipt of your share",
				[]cli.Flag{flagSecretID, flagLabel}, confirm),
			ledgerCommand("close", "close a secret you own",
				[]cli.Flag{flagSecretID, flagLabel}, closeSecret),
			ledgerCommand("status", "show a secret and your relation to it",
				[]cli.Flag{flagSecretID, flagLabel}, status),
			ledgerCommand("can-reconstruct", "report whether the confirmation quorum is met",
				[]cli.Flag{flagSecretID, flagLabel}, canReconstruct),
			ledgerCommand("events", "list registry events",
				[]cli.Flag{flagFrom}, events),
			{
				Name:   "keygen",
				Usage:  "generate a dedicated encryption keypair",
				Flags:  []cli.Flag{flagOut},
				Action: keygen,
			},
			{
				Name:   "announce-key",
				Usage:  "sign an encryption public key with your signing key",
				Flags:  []cli.Flag{flags.PrivateKeyFlag, flagEncryptionKey, flags.StorageFlag},
				Action: announceKey,
			},
			{
				Name:   "export-legacy-pubkey",
				Usage:  "export the signing public key for legacy encryption (no key separation)",
				Flags:  []cli.Flag{flags.PrivateKeyFlag},
				Action: exportLegacyPubkey,
			},
			{
				Name:   "decrypt-share",
				Usage:  "decrypt your share from a bundle",
				Flags:  []cli.Flag{flagBundle, flags.PrivateKeyFlag, flagEncryptionKey, flagLegacy, flagAddress, flagOut},
				Action: decryptShare,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) (*client.Client, *slog.Logger, error) {
	logger := flags.SetupLogger(cCtx)
	ledger, err := flags.OpenLedger(cCtx)
	if err != nil {
		return nil, nil, err
	}
	return client.New(ledger, ledger, logger), logger, nil
}

func secretID(cCtx *cli.Context) (interfaces.SecretID, error) {
	if label := cCtx.String(flagLabel.Name); label != "" {
		return client.SecretIDForLabel(label), nil
	}
	raw := cCtx.String(flagSecretID.Name)
	if raw == "" {
		return interfaces.SecretID{}, errors.New("--secret-id or --label is required")
	}
	return interfaces.NewSecretIDFromHex(raw)
}

// explain attaches the user facing description to a registry error.
func explain(err error) error {
	if err == nil {
		return nil
	}
	msg := client.Describe(err)
	return cli.Exit(fmt.Sprintf("%s (kind=%s, next=%s): %v", msg.Text, msg.Kind, msg.Action, err), 1)
}

func register(cCtx *cli.Context) error {
	c, _, err := newClient(cCtx)
	if err != nil {
		return err
	}

	if path := cCtx.String(flagBundle.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read bundle: %w", err)
		}
		b, err := bundle.Parse(data)
		if err != nil {
			return err
		}
		ev, err := c.RegisterBundle(cCtx.Context, b)
		if err != nil {
			return explain(err)
		}
		return printJSON(ev)
	}

	id, err := secretID(cCtx)
	if err != nil {
		return err
	}
	hash, err := interfaces.NewSecretHashFromHex(cCtx.String(flagSecretHash.Name))
	if err != nil {
		return fmt.Errorf("invalid --secret-hash: %w", err)
	}
	var participants []interfaces.Address
	for _, raw := range cCtx.StringSlice(flagParticipant.Name) {
		addr, err := parseAddress(raw)
		if err != nil {
			return err
		}
		participants = append(participants, addr)
	}
	threshold := cCtx.Uint(flagThreshold.Name)
	if threshold > interfaces.MaxParticipants {
		return explain(interfaces.ErrInvalidThreshold)
	}

	ev, err := c.Register(cCtx.Context, id, uint8(threshold), participants, hash)
	if err != nil {
		return explain(err)
	}
	return printJSON(ev)
}

func confirm(cCtx *cli.Context) error {
	c, _, err := newClient(cCtx)
	if err != nil {
		return err
	}
	id, err := secretID(cCtx)
	if err != nil {
		return err
	}
	ev, err := c.Confirm(cCtx.Context, id)
	if err != nil {
		return explain(err)
	}
	return printJSON(ev)
}

func closeSecret(cCtx *cli.Context) error {
	c, _, err := newClient(cCtx)
	if err != nil {
		return err
	}
	id, err := secretID(cCtx)
	if err != nil {
		return err
	}
	ev, err := c.Close(cCtx.Context, id)
	if err != nil {
		return explain(err)
	}
	return printJSON(ev)
}

type statusOutput struct {
	SecretID      interfaces.SecretID `json:"secret_id"`
	Availability  string              `json:"availability"`
	Caller        interfaces.Address  `json:"caller"`
	IsOwner       bool                `json:"is_owner"`
	IsParticipant bool                `json:"is_participant"`
	HasConfirmed  bool                `json:"has_confirmed"`
	Remaining     int                 `json:"remaining_confirmations"`
	Secret        *api.SecretInfo     `json:"secret,omitempty"`
	Error         string              `json:"error,omitempty"`
}

func status(cCtx *cli.Context) error {
	c, _, err := newClient(cCtx)
	if err != nil {
		return err
	}
	id, err := secretID(cCtx)
	if err != nil {
		return err
	}

	view := c.Status(cCtx.Context, id)
	out := statusOutput{
		SecretID:      view.SecretID,
		Availability:  view.Availability.String(),
		Caller:        view.Caller,
		IsOwner:       view.IsOwner,
		IsParticipant: view.IsParticipant,
		HasConfirmed:  view.HasConfirmed,
		Remaining:     view.Remaining(),
	}
	if view.Record != nil {
		out.Secret = api.NewSecretInfo(view.Record, view.CanReconstruct)
	}
	if view.Err != nil {
		out.Error = client.Describe(view.Err).Text
	}
	return printJSON(out)
}

func canReconstruct(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ledger, err := flags.OpenLedger(cCtx)
	if err != nil {
		return err
	}
	id, err := secretID(cCtx)
	if err != nil {
		return err
	}
	ok, err := ledger.CanReconstruct(cCtx.Context, id)
	if err != nil {
		return explain(err)
	}
	logger.Debug("Queried reconstruction gate", "secretId", id.String(), "result", ok)
	return printJSON(api.CanReconstructResponse{CanReconstruct: ok})
}

func events(cCtx *cli.Context) error {
	c, _, err := newClient(cCtx)
	if err != nil {
		return err
	}
	evs, err := c.Events(cCtx.Context, cCtx.Uint64(flagFrom.Name))
	if err != nil {
		return explain(err)
	}
	return printJSON(evs)
}

type keyOutput struct {
	PrivateKey string `json:"private_key,omitempty"`
	Pubkey     string `json:"pubkey"`
	Address    string `json:"address,omitempty"`
	Signature  string `json:"signature,omitempty"`
	Warning    string `json:"warning,omitempty"`
}

func keygen(cCtx *cli.Context) error {
	key, err := cryptoutils.GenerateEncryptionKey()
	if err != nil {
		return err
	}
	out := keyOutput{
		PrivateKey: cryptoutils.PrivateKeyHex(key),
		Pubkey:     cryptoutils.PublicKeyHex(&key.PublicKey),
	}
	if path := cCtx.String(flagOut.Name); path != "" {
		if err := os.WriteFile(path, []byte(out.PrivateKey+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
		out.PrivateKey = ""
	}
	return printJSON(out)
}

func requirePrivateKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	key, err := flags.PrivateKey(cCtx)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("--%s is required", flags.PrivateKeyFlag.Name)
	}
	return key, nil
}

func announceKey(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	signer, err := requirePrivateKey(cCtx)
	if err != nil {
		return err
	}
	encKey, err := cryptoutils.PrivateKeyFromHex(cCtx.String(flagEncryptionKey.Name))
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", flagEncryptionKey.Name, err)
	}

	announcement, err := cryptoutils.NewKeyAnnouncement(signer, &encKey.PublicKey)
	if err != nil {
		return err
	}

	if uris := cCtx.StringSlice(flags.StorageFlag.Name); len(uris) > 0 {
		locations := make([]interfaces.StorageBackendLocation, len(uris))
		for i, uri := range uris {
			locations[i] = interfaces.StorageBackendLocation(uri)
		}
		backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
		if err != nil {
			return err
		}
		id, err := bundle.PublishAnnouncement(cCtx.Context, backend, announcement)
		if err != nil {
			return err
		}
		logger.Info("Announcement published", "contentId", id.String(), "storage", backend.Name())
	}
	return printJSON(announcement)
}

func exportLegacyPubkey(cCtx *cli.Context) error {
	key, err := requirePrivateKey(cCtx)
	if err != nil {
		return err
	}
	sig, err := cryptoutils.SignText([]byte(cryptoutils.LegacyExportMessage), key)
	if err != nil {
		return err
	}
	pub, err := cryptoutils.LegacyPubkeyFromSignature(sig)
	if err != nil {
		return err
	}
	return printJSON(keyOutput{
		Pubkey:    cryptoutils.PublicKeyHex(pub),
		Address:   crypto.PubkeyToAddress(*pub).Hex(),
		Signature: "0x" + hex.EncodeToString(sig),
		Warning:   "this is the signing key; shares encrypted to it are only as safe as the wallet",
	})
}

func decryptShare(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	data, err := os.ReadFile(cCtx.String(flagBundle.Name))
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	b, err := bundle.Parse(data)
	if err != nil {
		return err
	}

	signingKey, err := flags.PrivateKey(cCtx)
	if err != nil {
		return err
	}
	var addr interfaces.Address
	switch {
	case cCtx.String(flagAddress.Name) != "":
		if addr, err = parseAddress(cCtx.String(flagAddress.Name)); err != nil {
			return err
		}
	case signingKey != nil:
		addr = crypto.PubkeyToAddress(signingKey.PublicKey)
	default:
		return fmt.Errorf("--%s or --%s is required", flagAddress.Name, flags.PrivateKeyFlag.Name)
	}

	var decryptionKey *ecdsa.PrivateKey
	if cCtx.Bool(flagLegacy.Name) {
		if signingKey == nil {
			return fmt.Errorf("--%s requires --%s", flagLegacy.Name, flags.PrivateKeyFlag.Name)
		}
		logger.Warn("Decrypting with the signing key")
		decryptionKey = signingKey
	} else if decryptionKey, err = cryptoutils.PrivateKeyFromHex(cCtx.String(flagEncryptionKey.Name)); err != nil {
		return fmt.Errorf("invalid --%s: %w", flagEncryptionKey.Name, err)
	}

	share, err := b.OpenShare(addr, decryptionKey)
	if err != nil {
		return explain(err)
	}
	defer share.Wipe()

	if path := cCtx.String(flagOut.Name); path != "" {
		if err := os.WriteFile(path, []byte(share.Hex()+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write share: %w", err)
		}
		logger.Info("Share written", "path", path, "secretId", b.SecretID().String())
		return nil
	}
	fmt.Println(share.Hex())
	return nil
}

func parseAddress(raw string) (interfaces.Address, error) {
	var addr interfaces.Address
	if err := addr.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
