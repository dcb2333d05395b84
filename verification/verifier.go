package verification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crytic/provenance/cache"
	"github.com/crytic/provenance/chain"
	"github.com/crytic/provenance/chain/rpc"
	"github.com/crytic/provenance/config"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/logging/colors"
	"github.com/crytic/provenance/metrics"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Create2ChainID is the pseudo chain identifier CREATE2 verifications are recorded under.
const Create2ChainID = "0"

// Verifier verifies contracts against the chains it was configured with.
type Verifier struct {
	// matcher runs the matching stages.
	matcher *Matcher

	// chains maps chain identifiers to the readers used to fetch their state.
	chains map[uint64]ChainState

	// closers are invoked when the Verifier is closed.
	closers []func()

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewVerifier creates a Verifier which matches contracts with the provided matcher against the provided chains.
func NewVerifier(matcher *Matcher, chains []ChainState, m *metrics.Metrics) *Verifier {
	v := &Verifier{
		matcher: matcher,
		chains:  make(map[uint64]ChainState, len(chains)),
		metrics: m,
		logger:  logging.GlobalLogger.NewSubLogger("module", logging.VERIFICATION_SERVICE),
	}
	for _, state := range chains {
		v.chains[state.ChainID()] = state
	}
	return v
}

// NewVerifierFromConfig creates a Verifier from a project configuration. Every supported chain is reached through its
// configured RPC endpoints. Fetched sources and creation transactions are stored in the provided cache.
func NewVerifierFromConfig(projectConfig *config.ProjectConfig, c cache.Cache, m *metrics.Metrics) (*Verifier, error) {
	compiler, err := projectConfig.Compiler.NewCompiler(m)
	if err != nil {
		return nil, err
	}

	resolver := NewSourceResolver(
		projectConfig.Sources.IpfsGateway,
		time.Duration(projectConfig.Sources.FetchTimeoutMs)*time.Millisecond,
		projectConfig.Sources.RequestsPerSecond,
		c,
		m,
	)
	matcher := NewMatcher(compiler, resolver, chain.NewSimulator(), m)

	rpcTimeout := time.Duration(projectConfig.RpcTimeoutMs) * time.Millisecond
	readers := make([]ChainState, 0, len(projectConfig.Chains))
	closers := make([]func(), 0, len(projectConfig.Chains))
	for _, chainConfig := range projectConfig.Chains {
		if !chainConfig.Supported {
			continue
		}
		pool, err := rpc.NewEndpointPool(chainConfig.ChainID, chainConfig.RPC, rpcTimeout, m)
		if err != nil {
			for _, closer := range closers {
				closer()
			}
			return nil, err
		}
		reader := rpc.NewChainReader(pool, c)
		readers = append(readers, reader)
		closers = append(closers, reader.Close)
	}

	v := NewVerifier(matcher, readers, m)
	v.closers = closers
	return v, nil
}

// Matcher returns the matcher used by the Verifier.
func (v *Verifier) Matcher() *Matcher {
	return v.matcher
}

// ChainIDs returns the identifiers of the chains the Verifier can reach, as sorted decimal strings.
func (v *Verifier) ChainIDs() []string {
	ids := make([]string, 0, len(v.chains))
	for id := range v.chains {
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	slices.Sort(ids)
	return ids
}

// Verify matches the contract against the bytecode deployed at the address on the chain. If only a partial match is
// found and the deployed bytecode embeds a metadata hash, source text variations are searched for the metadata the
// contract was originally compiled from, and a perfect match with it is preferred.
func (v *Verifier) Verify(ctx context.Context, contract *CheckedContract, chainId uint64, address string, contextVariables *ContextVariables, creatorTxHash string) (*Match, error) {
	state, ok := v.chains[chainId]
	if !ok {
		return nil, newInputError("Chain %d is not supported for verification", chainId)
	}

	v.logger.Info("Verifying ", colors.Bold, contract.Name, colors.Reset, " at ", address, " on chain ", chainId)
	result, err := v.matcher.verifyDeployed(ctx, contract, state, address, contextVariables, creatorTxHash)
	if err != nil {
		v.metrics.RecordVerification("failed")
		return nil, err
	}

	// The search runs on the compiled snapshot, so sources fetched for compilation take part in it.
	match := result.match
	if match.Status == StatusPartial {
		if rebased, ok := v.findOriginalMetadata(result.contract, result.deployed); ok {
			rematch, err := v.matcher.VerifyDeployed(ctx, rebased, state, address, contextVariables, creatorTxHash)
			if err == nil && rematch.Status == StatusPerfect {
				match = rematch
			}
		}
	}

	v.recordMatch(match)
	return match, nil
}

// findOriginalMetadata searches for a source text variation matching the metadata hash of the deployed bytecode, and
// returns the contract rebased onto it.
func (v *Verifier) findOriginalMetadata(contract *CheckedContract, deployed []byte) (*CheckedContract, bool) {
	if len(deployed) == 0 {
		return nil, false
	}

	variation, found, err := FindOriginalMetadata(deployed, contract.MetadataRaw, contract.Sources)
	if err != nil {
		v.logger.Warn("Could not search metadata variations of ", contract.Name, err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	v.logger.Info("Found original metadata of ", contract.Name, " using source variation ", variation.Key)
	rebased, err := contract.Rebase(variation.MetadataRaw, variation.Sources)
	if err != nil {
		v.logger.Warn("Could not rebase ", contract.Name, " onto its original metadata", err)
		return nil, false
	}
	return rebased, true
}

// VerifyCreate2 checks that deploying the contract through CREATE2 from the deployer with the salt yields the address.
func (v *Verifier) VerifyCreate2(ctx context.Context, contract *CheckedContract, deployerAddress string, salt string, create2Address string, abiEncodedConstructorArguments string) (*Match, error) {
	match, err := v.matcher.VerifyCreate2(ctx, contract, deployerAddress, salt, create2Address, abiEncodedConstructorArguments)
	if err != nil {
		v.metrics.RecordVerification("failed")
		return nil, err
	}
	v.recordMatch(match)
	return match, nil
}

// recordMatch records the verdict of a verification.
func (v *Verifier) recordMatch(match *Match) {
	if match.Status.Succeeded() {
		v.metrics.RecordVerification(string(match.Status))
		v.logger.Info("Verified ", match.Address, " on chain ", match.ChainID, ": ", colors.Bold, string(match.Status), colors.Reset)
	} else {
		v.metrics.RecordVerification("unavailable")
		v.logger.Warn(match.Message)
	}
}

// Close releases the connections held by the Verifier.
func (v *Verifier) Close() {
	for _, closer := range v.closers {
		closer()
	}
}

// VerifyCreate2 recompiles the contract and checks that CREATE2 from the deployer with the salt and constructor
// arguments yields create2Address. The addresses are compared case-insensitively.
func (m *Matcher) VerifyCreate2(ctx context.Context, contract *CheckedContract, deployerAddress string, salt string, create2Address string, abiEncodedConstructorArguments string) (*Match, error) {
	_, recompiled, err := contract.Recompile(ctx, m.oracle, m.resolver)
	if err != nil {
		return nil, err
	}

	computed, err := CalculateCreate2Address(deployerAddress, salt, recompiled.CreationBytecode, abiEncodedConstructorArguments)
	if err != nil {
		return nil, newInputError("%v", err)
	}
	if !strings.EqualFold(create2Address, computed) {
		return nil, &MatchFailureError{
			Message: fmt.Sprintf("The provided create2 address doesn't match server's generated one. Expected: %s ; Received: %s ;", computed, create2Address),
		}
	}

	storageTimestamp := time.Now()
	return &Match{
		Address:                        computed,
		ChainID:                        Create2ChainID,
		Status:                         StatusPerfect,
		AbiEncodedConstructorArguments: abiEncodedConstructorArguments,
		Create2Args: &Create2Args{
			DeployerAddress: deployerAddress,
			Salt:            salt,
		},
		StorageTimestamp: &storageTimestamp,
	}, nil
}

// ValidateChainIDs parses a comma separated list of chain identifiers. Each must be a supported chain, or the CREATE2
// pseudo chain "0". Returns an error naming every identifier which is not.
func ValidateChainIDs(chainIds string, supportedChainIds []string) ([]string, error) {
	valid := make([]string, 0)
	invalid := make([]string, 0)
	for _, id := range strings.Split(chainIds, ",") {
		id = strings.TrimSpace(id)
		if id == Create2ChainID || slices.Contains(supportedChainIds, id) {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return nil, errors.Errorf("invalid chainIds: %s", strings.Join(invalid, ", "))
	}
	return valid, nil
}
