// Package resolver turns ENS names into account identifiers with a single
// call to the ENS Universal Resolver.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/piyushdaiya/nonce-checker/internal/core"
	"github.com/piyushdaiya/nonce-checker/internal/metrics"
	"github.com/piyushdaiya/nonce-checker/internal/validator"
)

// DefaultUniversalResolver is the mainnet ENS Universal Resolver.
const DefaultUniversalResolver = "0xce01f8eee7E479C928F8919abD53E553a36CeF67"

const ensABI = `[
	{"type":"function","name":"resolve","stateMutability":"view",
	 "inputs":[{"name":"name","type":"bytes"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"","type":"bytes"},{"name":"","type":"address"}]},
	{"type":"function","name":"addr","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

var parsedABI = mustParseABI(ensABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Caller is the transport the resolver needs. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	UniversalResolver common.Address
	Timeout           time.Duration
	Logger            *zerolog.Logger
}

type ENSResolver struct {
	caller   Caller
	contract common.Address
	timeout  time.Duration
	log      zerolog.Logger
}

func New(caller Caller, cfg Config) *ENSResolver {
	contract := cfg.UniversalResolver
	if contract == (common.Address{}) {
		contract = common.HexToAddress(DefaultUniversalResolver)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &ENSResolver{
		caller:   caller,
		contract: contract,
		timeout:  cfg.Timeout,
		log:      logger,
	}
}

// Dial connects to the name-resolution endpoint. The returned func closes
// the underlying client.
func Dial(ctx context.Context, url string, cfg Config) (*ENSResolver, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial resolution endpoint: %w", err)
	}
	return New(client, cfg), client.Close, nil
}

// Resolve maps name to an EIP-55 identifier. Every failure is reported in
// the result; Resolve does not panic.
func (r *ENSResolver) Resolve(ctx context.Context, name string) (res core.ResolutionResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = core.ResolutionFailed(fmt.Errorf("%w: panic: %v", core.ErrResolutionTransport, p))
		}
		outcome := "resolved"
		if !res.OK() {
			outcome = core.Reason(res.Err)
			r.log.Warn().Str("name", name).Err(res.Err).Dur("elapsed", time.Since(start)).Msg("name resolution failed")
		} else {
			r.log.Debug().Str("name", name).Str("identifier", res.Identifier).Dur("elapsed", time.Since(start)).Msg("name resolved")
		}
		metrics.RecordResolution(outcome)
	}()

	normalized, err := validator.NormalizeName(name)
	if err != nil {
		return core.ResolutionFailed(fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}
	name = normalized

	call, err := resolveCalldata(name)
	if err != nil {
		return core.ResolutionFailed(fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: call}, nil)
	if err != nil {
		if isRevert(err) {
			return core.ResolutionFailed(fmt.Errorf("%w: %v", core.ErrUnresolved, err))
		}
		return core.ResolutionFailed(fmt.Errorf("%w: %v", core.ErrResolutionTransport, err))
	}
	if len(out) == 0 {
		return core.ResolutionFailed(core.ErrUnresolved)
	}

	addr, err := decodeResolve(out)
	if err != nil {
		return core.ResolutionFailed(fmt.Errorf("%w: %v", core.ErrResolutionTransport, err))
	}
	if addr == (common.Address{}) {
		return core.ResolutionFailed(core.ErrUnresolved)
	}
	identifier := addr.Hex()
	if !validator.IsValidIdentifier(identifier) {
		return core.ResolutionFailed(fmt.Errorf("%w: resolved %q", core.ErrInvalidInput, identifier))
	}
	return core.Resolved(identifier)
}

func resolveCalldata(name string) ([]byte, error) {
	encoded, err := DNSEncode(name)
	if err != nil {
		return nil, err
	}
	inner, err := parsedABI.Pack("addr", [32]byte(Namehash(name)))
	if err != nil {
		return nil, fmt.Errorf("pack addr: %w", err)
	}
	call, err := parsedABI.Pack("resolve", encoded, inner)
	if err != nil {
		return nil, fmt.Errorf("pack resolve: %w", err)
	}
	return call, nil
}

func decodeResolve(out []byte) (common.Address, error) {
	values, err := parsedABI.Unpack("resolve", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode resolve: %w", err)
	}
	if len(values) != 2 {
		return common.Address{}, fmt.Errorf("decode resolve: %d values", len(values))
	}
	raw, ok := values[0].([]byte)
	if !ok {
		return common.Address{}, fmt.Errorf("decode resolve: unexpected %T", values[0])
	}
	if len(raw) == 0 {
		return common.Address{}, nil
	}
	inner, err := parsedABI.Unpack("addr", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode addr: %w", err)
	}
	if len(inner) != 1 {
		return common.Address{}, fmt.Errorf("decode addr: %d values", len(inner))
	}
	addr, ok := inner[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode addr: unexpected %T", inner[0])
	}
	return addr, nil
}

// isRevert reports whether err is a contract revert rather than a transport
// failure. The Universal Resolver reverts for names without a resolver.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
