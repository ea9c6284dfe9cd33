package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/forj-go/pkg/artifacts"
	"github.com/Layr-Labs/forj-go/pkg/batch"
	"github.com/Layr-Labs/forj-go/pkg/forj"
	"github.com/Layr-Labs/forj-go/pkg/forjclient"
	"github.com/Layr-Labs/forj-go/pkg/ingest"
	"github.com/Layr-Labs/forj-go/pkg/logger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/types"
)

func main() {
	app := &cli.App{
		Name:  "forjctl",
		Usage: "Offline batch commitment and credential verification",
		Description: `Builds a batch commitment from a record file and verifies single
credentials against a root, without a server.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "hash-scheme",
				Usage: "Leaf and node hashing: legacy, domain-separated",
				Value: merkle.SchemeNameLegacy,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Commit a record file and print the descriptor and proofs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "csv",
						Usage: "CSV file with name,enroll,email[,position] rows",
					},
					&cli.StringFlag{
						Name:  "records",
						Usage: "JSON file with an array of record objects",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file, stdout when empty",
					},
				},
				Action: buildCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify one record against a root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "record",
						Usage:    "Record as a JSON object",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "proof",
						Usage: "Comma separated hex sibling hashes, leaf level first",
					},
					&cli.StringFlag{
						Name:     "root",
						Usage:    "Expected root (hex)",
						Required: true,
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "audit",
				Usage: "Download a batch from a server and verify every record locally",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server",
						Usage: "forj server URL",
						Value: "http://localhost:3001",
					},
					&cli.StringFlag{
						Name:     "issuer",
						Usage:    "Issuer address",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:     "unique-key",
						Usage:    "Unique key of the event",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Enable verbose logging",
					},
				},
				Action: auditCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// buildOutput is what build prints
type buildOutput struct {
	Descriptor *batch.Descriptor `json:"descriptor"`
	Proofs     json.RawMessage   `json:"proofs"`
}

func schemeOption(c *cli.Context) (merkle.Option, error) {
	scheme, err := merkle.SchemeByName(c.String("hash-scheme"))
	if err != nil {
		return nil, err
	}
	return merkle.WithScheme(scheme), nil
}

func readRecords(c *cli.Context) ([]types.Record, error) {
	switch {
	case c.String("csv") != "":
		data, err := os.ReadFile(c.String("csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		return ingest.ParseCSV(bytes.NewReader(data))
	case c.String("records") != "":
		data, err := os.ReadFile(c.String("records"))
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		return ingest.ParseJSON(data)
	default:
		return nil, fmt.Errorf("one of --csv or --records is required")
	}
}

func buildCommand(c *cli.Context) error {
	opt, err := schemeOption(c)
	if err != nil {
		return err
	}
	records, err := readRecords(c)
	if err != nil {
		return err
	}

	leaves := make([]types.Hash, len(records))
	for i, r := range records {
		leaves[i] = merkle.LeafFromRecord(r, opt)
	}
	tree, err := forj.BuildTree(leaves, opt)
	if err != nil {
		return err
	}
	proofs, err := tree.GenerateAllProofs()
	if err != nil {
		return err
	}
	proofData, err := artifacts.EncodeProofs(proofs)
	if err != nil {
		return err
	}
	descriptor, err := batch.NewDescriptor(tree)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(buildOutput{Descriptor: descriptor, Proofs: proofData}, "", "  ")
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func verifyCommand(c *cli.Context) error {
	opt, err := schemeOption(c)
	if err != nil {
		return err
	}

	var record types.Record
	if err := json.Unmarshal([]byte(c.String("record")), &record); err != nil {
		return fmt.Errorf("record must be a JSON object with string or null values: %w", err)
	}
	if record == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	var proof []types.Hash
	if raw := strings.TrimSpace(c.String("proof")); raw != "" {
		proof, err = types.HashesFromHex(strings.Split(raw, ","))
		if err != nil {
			return fmt.Errorf("invalid proof: %w", err)
		}
	}
	root, err := types.HashFromHex(c.String("root"))
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}

	if !forj.Verify(record, proof, root, opt) {
		return cli.Exit("not verified", 1)
	}
	fmt.Println("verified")
	return nil
}

func auditCommand(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	client, err := forjclient.NewClient(&forjclient.ClientConfig{
		BaseURL: c.String("server"),
		Logger:  l,
	})
	if err != nil {
		return err
	}

	report, err := client.Audit(c.Context, c.String("issuer"), c.Uint64("unique-key"))
	if err != nil {
		return err
	}

	fmt.Printf("event:    %s (%d)\n", report.Event.EventName, report.Event.UniqueKey)
	fmt.Printf("root:     %s\n", report.Event.MerkleRoot)
	fmt.Printf("records:  %d of %d anchored\n", report.Records, report.Event.BatchSize)
	fmt.Printf("verified: %d\n", report.Verified)
	if !report.OK() {
		return cli.Exit(fmt.Sprintf("audit failed for records %v", report.Failed), 1)
	}
	return nil
}
