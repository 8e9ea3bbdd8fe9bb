package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/threshold-secret-registry/bundle"
	"github.com/ruteri/threshold-secret-registry/cmd/flags"
	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/storage"
	"github.com/urfave/cli/v2"
)

var flagLabel = &cli.StringFlag{
	Name:     "label",
	Required: true,
	Usage:    "secret label; the secret id is keccak256(label)",
}
var flagSecret = &cli.StringFlag{
	Name:    "secret",
	Usage:   "secret value (prefer --secret-file or SECRET)",
	EnvVars: []string{"SECRET"},
}
var flagSecretFile = &cli.StringFlag{
	Name:  "secret-file",
	Usage: "read the secret from a file",
}
var flagSalt = &cli.StringFlag{
	Name:  "salt",
	Usage: "commitment salt; random when empty",
}
var flagThreshold = &cli.UintFlag{
	Name:     "threshold",
	Aliases:  []string{"m"},
	Required: true,
	Usage:    "number of shares needed to reconstruct (M)",
}
var flagParticipants = &cli.StringFlag{
	Name:     "participants",
	Required: true,
	Usage:    "YAML or JSON file listing {address, pubkey, signature?} entries",
}
var flagOutDir = &cli.StringFlag{
	Name:  "out",
	Value: "out",
	Usage: "output directory; the bundle is written to <out>/<secretId>/bundle.json",
}
var flagBundle = &cli.StringFlag{
	Name:  "bundle",
	Usage: "path to bundle.json",
}
var flagContentID = &cli.StringFlag{
	Name:  "content-id",
	Usage: "content id of a bundle in --storage",
}
var flagShares = &cli.StringSliceFlag{
	Name:     "share",
	Required: true,
	Usage:    "file holding one decrypted share in hex; repeat for each share",
}

func main() {
	app := &cli.App{
		Name:  "splitter",
		Usage: "Split a secret into encrypted threshold shares and reconstruct it",
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("splitter")}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "bundle",
				Usage: "split a secret and write the encrypted share bundle",
				Flags: []cli.Flag{
					flagLabel,
					flagSecret,
					flagSecretFile,
					flagSalt,
					flagThreshold,
					flagParticipants,
					flagOutDir,
					flags.StorageFlag,
				},
				Action: makeBundle,
			},
			{
				Name:  "combine",
				Usage: "reconstruct the secret from decrypted shares and check it against the bundle",
				Flags: []cli.Flag{
					flagBundle,
					flagContentID,
					flags.StorageFlag,
					flagShares,
				},
				Action: combine,
			},
			{
				Name:  "fetch",
				Usage: "fetch a bundle from storage",
				Flags: []cli.Flag{
					flagContentID,
					flags.StorageFlag,
					flagOutDir,
				},
				Action: fetch,
			},
			{
				Name:  "secret-id",
				Usage: "print the secret id for a label",
				Flags: []cli.Flag{flagLabel},
				Action: func(cCtx *cli.Context) error {
					fmt.Println(interfaces.SecretIDFromLabel(cCtx.String(flagLabel.Name)).String())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type bundleSummary struct {
	SecretID   interfaces.SecretID   `json:"secretId"`
	SecretHash interfaces.SecretHash `json:"secretHash"`
	Salt       string                `json:"salt"`
	M          uint8                 `json:"M"`
	N          int                   `json:"N"`
	Path       string                `json:"path,omitempty"`
	ContentID  string                `json:"contentId,omitempty"`

	// Undelivered maps participants without a share to the reason.
	Undelivered map[string]string `json:"undelivered,omitempty"`
}

func makeBundle(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	secret, err := readSecret(cCtx)
	if err != nil {
		return err
	}
	threshold := cCtx.Uint(flagThreshold.Name)
	if threshold > interfaces.MaxParticipants {
		return fmt.Errorf("%w: M=%d", interfaces.ErrInvalidThreshold, threshold)
	}
	recipients, err := bundle.LoadParticipants(cCtx.String(flagParticipants.Name))
	if err != nil {
		return err
	}
	for _, r := range recipients {
		if r.KeyErr != nil {
			logger.Warn("Participant key rejected, no share will be delivered", "participant", r.Address.Hex(), "err", r.KeyErr)
		}
	}

	b, err := bundle.Build(cCtx.Context, bundle.BuildParams{
		Label:      cCtx.String(flagLabel.Name),
		Secret:     secret,
		Salt:       cCtx.String(flagSalt.Name),
		Threshold:  uint8(threshold),
		Recipients: recipients,
	})
	var delivery *bundle.DeliveryError
	switch {
	case errors.As(err, &delivery):
		b = delivery.Partial
	case err != nil:
		return err
	}

	data, err := b.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Join(cCtx.String(flagOutDir.Name), b.SecretID().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, "bundle.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	logger.Info("Bundle written", "path", path, "secretId", b.SecretID().String(), "m", b.Threshold(), "n", b.N(), "delivered", b.Delivered())

	summary := bundleSummary{
		SecretID:   b.SecretID(),
		SecretHash: b.SecretHash(),
		Salt:       b.Salt(),
		M:          b.Threshold(),
		N:          b.N(),
		Path:       path,
	}
	if delivery != nil {
		summary.Undelivered = make(map[string]string, len(delivery.Failures))
		for addr, failure := range delivery.Failures {
			summary.Undelivered[addr.Hex()] = failure.Error()
		}
	}

	if uris := cCtx.StringSlice(flags.StorageFlag.Name); len(uris) > 0 {
		backend, err := openStorage(logger, uris)
		if err != nil {
			return err
		}
		id, err := bundle.Publish(cCtx.Context, backend, b)
		if err != nil {
			return err
		}
		summary.ContentID = id.String()
		logger.Info("Bundle published", "contentId", summary.ContentID, "storage", backend.Name())
	}

	if err := printJSON(summary); err != nil {
		return err
	}
	if delivery != nil {
		return cli.Exit(fmt.Sprintf("%d of %d shares not delivered; the other participants can still decrypt theirs", len(delivery.Failures), b.N()), 2)
	}
	return nil
}

func readSecret(cCtx *cli.Context) ([]byte, error) {
	if path := cCtx.String(flagSecretFile.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret file: %w", err)
		}
		return data, nil
	}
	if s := cCtx.String(flagSecret.Name); s != "" {
		return []byte(s), nil
	}
	return nil, errors.New("--secret or --secret-file is required")
}

func loadBundle(cCtx *cli.Context, logger *slog.Logger) (*bundle.ShareBundle, error) {
	if path := cCtx.String(flagBundle.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle: %w", err)
		}
		return bundle.Parse(data)
	}

	raw := cCtx.String(flagContentID.Name)
	uris := cCtx.StringSlice(flags.StorageFlag.Name)
	if raw == "" || len(uris) == 0 {
		return nil, errors.New("--bundle or --content-id with --storage is required")
	}
	id, err := interfaces.NewContentIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	backend, err := openStorage(logger, uris)
	if err != nil {
		return nil, err
	}
	return bundle.Fetch(cCtx.Context, backend, id)
}

func combine(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	b, err := loadBundle(cCtx, logger)
	if err != nil {
		return err
	}

	var shares []cryptoutils.Share
	defer func() {
		for _, s := range shares {
			s.Wipe()
		}
	}()
	for _, path := range cCtx.StringSlice(flagShares.Name) {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read share: %w", err)
		}
		share, err := cryptoutils.ShareFromHex(strings.TrimSpace(string(text)))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		shares = append(shares, share)
	}

	secret, err := b.Reconstruct(shares)
	if err != nil {
		return err
	}
	logger.Info("Secret reconstructed and matches commitment", "secretId", b.SecretID().String())
	fmt.Println(string(secret))
	return nil
}

func fetch(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	b, err := loadBundle(cCtx, logger)
	if err != nil {
		return err
	}
	data, err := b.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Join(cCtx.String(flagOutDir.Name), b.SecretID().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, "bundle.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	logger.Info("Bundle fetched", "path", path)
	return nil
}

func openStorage(logger *slog.Logger, uris []string) (interfaces.StorageBackend, error) {
	locations := make([]interfaces.StorageBackendLocation, len(uris))
	for i, uri := range uris {
		locations[i] = interfaces.StorageBackendLocation(uri)
	}
	factory := storage.NewStorageBackendFactory(logger)
	if len(locations) == 1 {
		return factory.StorageBackendFor(locations[0])
	}
	return factory.CreateMultiBackend(locations)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
