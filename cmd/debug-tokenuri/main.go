// Command debug-tokenuri prints what a contract returns for tokenURI/ownerOf and,
// optionally, what the gateways serve for it.
//
//	debug-tokenuri --contract 0x... --token-id 1000001 --fetch
//	START=1000000 END=1000010 FETCH=1 debug-tokenuri --contract 0x...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Kittens/internal/core/ipfs"
	"Kittens/internal/core/metadata"
	"Kittens/internal/evm"
)

var errUsage = errors.New("either --token-id or both --start and --end are required")

var truthy = regexp.MustCompile(`(?i)^(1|true|yes)$`)

// options are the resolved command inputs after flag and environment fallbacks.
type options struct {
	contract string
	rpc      string
	tokenID  *uint64
	start    *uint64
	end      *uint64
	fetch    bool
}

// ids expands the options into the token IDs to inspect.
func (o options) ids() ([]uint64, error) {
	var ids []uint64
	if o.tokenID != nil {
		ids = append(ids, *o.tokenID)
	}
	if o.start != nil && o.end != nil {
		if *o.end < *o.start {
			return nil, fmt.Errorf("--end %d is before --start %d", *o.end, *o.start)
		}
		for id := *o.start; id <= *o.end; id++ {
			ids = append(ids, id)
			if id == *o.end {
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil, errUsage
	}
	return ids, nil
}

// tokenReader is the subset of the ERC721 reader this command uses.
type tokenReader interface {
	TokenURI(ctx context.Context, id uint64) (string, error)
	OwnerOf(ctx context.Context, id uint64) (string, error)
}

// Report is printed once per token.
type Report struct {
	Metadata         *metadata.Metadata `json:"metadata,omitempty"`
	CID              *ipfs.CIDInfo      `json:"cid,omitempty"`
	TokenID          string             `json:"tokenId"`
	TokenURI         string             `json:"tokenURI,omitempty"`
	TokenURIResolved string             `json:"tokenURI_resolved,omitempty"`
	TokenURIError    string             `json:"tokenURI_error,omitempty"`
	Owner            string             `json:"owner,omitempty"`
	OwnerError       string             `json:"owner_error,omitempty"`
	MetadataURL      string             `json:"metadata_url,omitempty"`
	MetadataError    string             `json:"metadata_last_error,omitempty"`
}

// inspector gathers a Report for one token.
type inspector struct {
	reader  tokenReader
	fetcher *metadata.GatewayFetcher
	timeout time.Duration
}

func (in *inspector) inspect(ctx context.Context, id uint64, fetch bool) Report {
	out := Report{TokenID: strconv.FormatUint(id, 10)}

	uri, err := in.reader.TokenURI(ctx, id)
	if err != nil {
		out.TokenURIError = err.Error()
	} else {
		out.TokenURI = uri
		out.TokenURIResolved = in.fetcher.Resolver().Resolve(uri)
		if info, err := ipfs.Inspect(uri); err == nil {
			out.CID = &info
		}
	}

	owner, err := in.reader.OwnerOf(ctx, id)
	if err != nil {
		out.OwnerError = err.Error()
	} else {
		out.Owner = owner
	}

	if !fetch || out.TokenURI == "" {
		return out
	}
	for _, candidate := range in.fetcher.Candidates(out.TokenURI) {
		md, err := in.fetcher.FetchMetadata(ctx, candidate, in.timeout)
		if err != nil {
			out.MetadataError = err.Error()
			continue
		}
		out.MetadataURL = candidate
		out.Metadata = &md
		break
	}
	return out
}

func newRootCmd() *cobra.Command {
	var (
		tokenID  string
		start    string
		end      string
		contract string
		rpc      string
		fetch    bool
	)

	cmd := &cobra.Command{
		Use:   "debug-tokenuri [token-id]",
		Short: "Inspect tokenURI, ownerOf and gateway metadata for ERC721 tokens",
		Long: `Inspect tokenURI, ownerOf and gateway metadata for ERC721 tokens.

Flags fall back to TOKEN_ID, START, END, FETCH, CONTRACT_ADDRESS and ETH_RPC_URL.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && tokenID == "" {
				tokenID = args[0]
			}
			opts, err := resolveOptions(tokenID, start, end, contract, rpc, fetch, os.Getenv)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&tokenID, "token-id", "t", "", "single token ID to inspect")
	cmd.Flags().StringVarP(&start, "start", "s", "", "first token ID of a range")
	cmd.Flags().StringVarP(&end, "end", "e", "", "last token ID of a range (inclusive)")
	cmd.Flags().BoolVarP(&fetch, "fetch", "f", false, "fetch metadata through the gateways")
	cmd.Flags().StringVar(&contract, "contract", "", "ERC721 contract address")
	cmd.Flags().StringVar(&rpc, "rpc", "", "Ethereum JSON-RPC URL")

	return cmd
}

// resolveOptions applies environment fallbacks to the raw flag values.
func resolveOptions(tokenID, start, end, contract, rpc string, fetch bool, getenv func(string) string) (options, error) {
	pick := func(flag string, keys ...string) string {
		if flag != "" {
			return flag
		}
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}

	opts := options{
		contract: pick(contract, "CONTRACT_ADDRESS"),
		rpc:      pick(rpc, "ETH_RPC_URL"),
		fetch:    fetch || truthy.MatchString(strings.TrimSpace(getenv("FETCH"))),
	}
	if opts.contract == "" {
		return opts, errors.New("--contract or CONTRACT_ADDRESS is required")
	}
	if opts.rpc == "" {
		opts.rpc = "http://127.0.0.1:8545"
	}

	var err error
	if opts.tokenID, err = parseID("token-id", pick(tokenID, "TOKEN_ID", "TOKENID")); err != nil {
		return opts, err
	}
	if opts.start, err = parseID("start", pick(start, "START")); err != nil {
		return opts, err
	}
	if opts.end, err = parseID("end", pick(end, "END")); err != nil {
		return opts, err
	}
	if opts.tokenID == nil && (opts.start == nil || opts.end == nil) {
		return opts, errUsage
	}
	return opts, nil
}

func parseID(name, s string) (*uint64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return &v, nil
}

func run(ctx context.Context, w io.Writer, opts options) error {
	ids, err := opts.ids()
	if err != nil {
		return err
	}

	client, err := evm.Dial(ctx, opts.rpc)
	if err != nil {
		return err
	}
	defer client.Close()

	reader, err := evm.NewReader(opts.contract, client)
	if err != nil {
		return err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}

	cfg := metadata.ConfigFromEnv()
	cfg.BreakerThreshold = 0
	in := &inspector{
		reader:  reader,
		fetcher: metadata.NewGatewayFetcher(cfg, nil, nil),
		timeout: cfg.FetchTimeout,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]string{"network": chainID.String(), "contract": reader.Address()}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := enc.Encode(in.inspect(ctx, id, opts.fetch)); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
