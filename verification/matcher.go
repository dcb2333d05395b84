package verification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/provenance/chain"
	"github.com/crytic/provenance/chain/rpc"
	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/compilation/types"
	"github.com/crytic/provenance/events"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/metrics"
	"github.com/crytic/provenance/utils"
)

const (
	// extraFileInputBugVersions are the compiler versions affected by the extra file input bug.
	extraFileInputBugVersions = "=0.6.12 || =0.7.0"

	// extraFileInputBugMessage explains an extra-file-input-bug verdict.
	extraFileInputBugMessage = "It seems your contract has either Solidity v0.6.12 or v0.7.0, and the metadata hashes match but not the bytecodes. You should add all the files input to the compiler during compilation and remove all others. See the issue for more information: https://github.com/ethereum/sourcify/issues/618"

	// matchFailureMessage is reported when no matching stage reached a verdict.
	matchFailureMessage = "The deployed and recompiled bytecode don't match."
)

// Stage identifies a matching stage.
type Stage string

const (
	StageDirect            Stage = "direct"
	StageSimulation        Stage = "simulation"
	StageCreationTx        Stage = "creation-tx"
	StageExtraFileInputBug Stage = "extra-file-input-bug"
)

// StageEvent is published after each matching stage runs.
type StageEvent struct {
	// ChainID and Address identify the contract being verified.
	ChainID string
	Address string

	// Stage is the stage that ran.
	Stage Stage

	// Status is the match status after the stage ran.
	Status MatchStatus

	// Err holds the error that stopped the stage, if any.
	Err error
}

// ChainState provides the on-chain data a contract is matched against.
type ChainState interface {
	ChainID() uint64
	GetBytecode(ctx context.Context, address common.Address) ([]byte, error)
	GetCreationTransaction(ctx context.Context, hash common.Hash) (*rpc.CreationTransaction, error)
}

// CreationSimulator executes contract creations to recover the runtime bytecode they deploy.
type CreationSimulator interface {
	SimulateCreation(request chain.SimulationRequest) ([]byte, error)
}

// Matcher compares recompiled contracts against on-chain bytecode.
type Matcher struct {
	oracle    CompilerOracle
	resolver  *SourceResolver
	simulator CreationSimulator

	// StageEvents publishes a StageEvent after every matching stage.
	StageEvents events.EventEmitter[StageEvent]

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewMatcher creates a Matcher. The resolver is used to fetch missing sources before recompiling and may be nil.
func NewMatcher(oracle CompilerOracle, resolver *SourceResolver, simulator CreationSimulator, m *metrics.Metrics) *Matcher {
	return &Matcher{
		oracle:    oracle,
		resolver:  resolver,
		simulator: simulator,
		metrics:   m,
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.VERIFICATION_SERVICE),
	}
}

// VerifyDeployed recompiles the contract and matches it against the bytecode deployed at the address. The matching
// stages run in order until one sets the match status. If the chain cannot be reached or has no contract at the
// address, a Match without status and with an explanatory message is returned. A MatchFailureError is returned when
// every stage ran without a verdict.
func (m *Matcher) VerifyDeployed(ctx context.Context, contract *CheckedContract, state ChainState, address string, contextVariables *ContextVariables, creatorTxHash string) (*Match, error) {
	result, err := m.verifyDeployed(ctx, contract, state, address, contextVariables, creatorTxHash)
	if err != nil {
		return nil, err
	}
	return result.match, nil
}

// deployedVerification is the outcome of matching a contract against deployed bytecode.
type deployedVerification struct {
	match *Match

	// contract is the snapshot that was compiled, including any sources fetched to compile it.
	contract *CheckedContract

	// deployed is the bytecode found at the address. It is nil if the chain could not provide any.
	deployed []byte
}

// verifyDeployed runs the matching stages of VerifyDeployed, and returns the compiled contract snapshot and deployed
// bytecode alongside the match.
func (m *Matcher) verifyDeployed(ctx context.Context, contract *CheckedContract, state ChainState, address string, contextVariables *ContextVariables, creatorTxHash string) (*deployedVerification, error) {
	chainId := strconv.FormatUint(state.ChainID(), 10)
	match := &Match{
		Address: address,
		ChainID: chainId,
		Status:  StatusNone,
	}

	targetAddress, err := utils.HexStringToAddress(address)
	if err != nil {
		return nil, newInputError("Invalid address: %s", address)
	}

	contract, recompiled, err := contract.Recompile(ctx, m.oracle, m.resolver)
	if err != nil {
		return nil, err
	}
	result := &deployedVerification{match: match, contract: contract}

	deployed, err := state.GetBytecode(ctx, targetAddress)
	if err != nil {
		m.logger.Warn("Could not fetch deployed bytecode of ", address, " on chain ", chainId, err)
		match.Message = fmt.Sprintf("Chain #%s is temporarily unavailable.", chainId)
		return result, nil
	}
	if len(deployed) == 0 {
		match.Message = fmt.Sprintf("Chain #%s does not have a contract deployed at %s.", chainId, address)
		return result, nil
	}
	result.deployed = deployed
	deployedBytecode := hexutil.Encode(deployed)

	err = MatchWithDeployedBytecode(match, recompiled.DeployedBytecode, deployedBytecode)
	m.publishStage(match, StageDirect, err)
	if err != nil {
		m.logger.Debug("Could not link the libraries of ", contract.Name, " against the deployed bytecode", err)
	}
	if match.Status.Succeeded() {
		return result, nil
	}

	err = m.matchWithSimulation(match, recompiled.CreationBytecode, deployedBytecode, contract.Metadata.EvmVersion(), state.ChainID(), contextVariables)
	m.publishStage(match, StageSimulation, err)
	if err != nil {
		m.logger.Debug("Simulation of ", contract.Name, " failed", err)
	}
	if match.Status.Succeeded() {
		match.ContextVariables = contextVariables
		return result, nil
	}

	if creatorTxHash != "" {
		err = m.matchWithCreationTx(ctx, match, recompiled.CreationBytecode, state, targetAddress, creatorTxHash)
		m.publishStage(match, StageCreationTx, err)
		if err != nil {
			return nil, err
		}
		// A creation transaction for another address ends matching with its explanation.
		if match.Status.Succeeded() || match.Message != "" {
			return result, nil
		}
	}

	if compilation.VersionInRange(contract.Metadata.Compiler.Version, extraFileInputBugVersions) && contract.Metadata.OptimizerEnabled() {
		matchExtraFileInputBug(match, recompiled.DeployedBytecode, deployedBytecode)
		m.publishStage(match, StageExtraFileInputBug, nil)
		if match.Status.Succeeded() {
			return result, nil
		}
	}

	return nil, &MatchFailureError{Message: matchFailureMessage}
}

// publishStage records the outcome of a stage in metrics and publishes it to subscribers.
func (m *Matcher) publishStage(match *Match, stage Stage, err error) {
	outcome := "no_match"
	if err != nil {
		outcome = "error"
	} else if match.Status.Succeeded() {
		outcome = string(match.Status)
	}
	m.metrics.RecordStageAttempt(string(stage), outcome)

	event := StageEvent{ChainID: match.ChainID, Address: match.Address, Stage: stage, Status: match.Status, Err: err}
	if publishErr := m.StageEvents.Publish(event); publishErr != nil {
		m.logger.Warn("Stage event handler failed", publishErr)
	}
}

// MatchWithDeployedBytecode compares recompiled runtime bytecode against deployed bytecode, both 0x-prefixed hex. Library
// placeholders in the recompiled bytecode are first resolved from the deployed bytecode. Identical bytecode is a
// perfect match if it carries a metadata hash, and a partial match otherwise. Bytecode which only differs in its
// auxdata is a partial match. An error is returned, and the match left unchanged, if the library placeholders cannot
// be resolved.
func MatchWithDeployedBytecode(match *Match, recompiledDeployedBytecode string, deployedBytecode string) error {
	replaced, libraryMap, err := types.AddLibraryAddresses(recompiledDeployedBytecode, deployedBytecode)
	if err != nil {
		return err
	}

	if replaced == deployedBytecode {
		match.LibraryMap = libraryMap
		if doesContainMetadataHash(deployedBytecode) {
			match.Status = StatusPerfect
		} else {
			match.Status = StatusPartial
		}
		return nil
	}

	trimmedDeployed, _ := splitAuxdataHex(deployedBytecode)
	trimmedRecompiled, _ := splitAuxdataHex(replaced)
	if trimmedDeployed == trimmedRecompiled {
		match.LibraryMap = libraryMap
		match.Status = StatusPartial
	}
	return nil
}

// matchWithSimulation runs the recompiled creation bytecode and compares the runtime bytecode it deploys.
func (m *Matcher) matchWithSimulation(match *Match, recompiledCreationBytecode string, deployedBytecode string, evmVersion string, chainId uint64, contextVariables *ContextVariables) error {
	if m.simulator == nil {
		return nil
	}

	var constructorArguments string
	sender := common.Address{}
	if contextVariables != nil {
		constructorArguments = contextVariables.AbiEncodedConstructorArguments
		if contextVariables.MsgSender != "" {
			var err error
			if sender, err = utils.HexStringToAddress(contextVariables.MsgSender); err != nil {
				return newInputError("Invalid msgSender: %s", contextVariables.MsgSender)
			}
		}
	}

	initCode, err := utils.DecodeHex(utils.StripHexPrefix(recompiledCreationBytecode) + utils.StripHexPrefix(constructorArguments))
	if err != nil {
		return err
	}

	simulated, err := m.simulator.SimulateCreation(chain.SimulationRequest{
		ChainID:    chainId,
		EvmVersion: evmVersion,
		Sender:     sender,
		InitCode:   initCode,
	})
	if err != nil {
		return err
	}

	return MatchWithDeployedBytecode(match, hexutil.Encode(simulated), deployedBytecode)
}

// matchWithCreationTx compares the recompiled creation bytecode against the input of the transaction that created the
// contract. The transaction must create the address under verification; otherwise the match only receives a message.
func (m *Matcher) matchWithCreationTx(ctx context.Context, match *Match, recompiledCreationBytecode string, state ChainState, address common.Address, creatorTxHash string) error {
	txHash, err := utils.DecodeHex(creatorTxHash)
	if err != nil || len(txHash) != common.HashLength {
		return newInputError("Invalid creator transaction hash: %s", creatorTxHash)
	}

	tx, err := state.GetCreationTransaction(ctx, common.BytesToHash(txHash))
	if err != nil {
		return &NetworkError{Message: "Could not fetch creator transaction " + creatorTxHash, Err: err}
	}

	createdAddress, err := CalculateCreateAddress(tx.From, uint64(tx.Nonce))
	if err != nil {
		return err
	}
	if createdAddress != address.Hex() {
		match.Message = fmt.Sprintf("The address being verified %s doesn't match the address of the contract %s that will be created by the transaction %s.", match.Address, createdAddress, creatorTxHash)
		return nil
	}

	creatorTxData := hexutil.Encode(tx.Input)
	replaced, libraryMap, err := types.AddLibraryAddresses(recompiledCreationBytecode, creatorTxData)
	if err != nil {
		m.logger.Debug("Could not link libraries against the input of creator transaction ", creatorTxHash, err)
		return nil
	}

	if strings.HasPrefix(creatorTxData, replaced) {
		if doesContainMetadataHash(replaced) {
			match.Status = StatusPerfect
		} else {
			match.Status = StatusPartial
		}
	} else {
		// Creation input is followed by constructor arguments, so its auxdata usually fails to decode and the whole
		// input is kept as the prefix to test against.
		trimmedCreatorTxData, _ := splitAuxdataHex(creatorTxData)
		trimmedRecompiled, _ := splitAuxdataHex(replaced)
		if strings.HasPrefix(trimmedCreatorTxData, trimmedRecompiled) {
			match.Status = StatusPartial
		}
	}

	if match.Status.Succeeded() {
		match.LibraryMap = libraryMap
		match.AbiEncodedConstructorArguments = ExtractAbiEncodedConstructorArguments(creatorTxData, replaced)
	}
	return nil
}

// matchExtraFileInputBug classifies bytecode whose auxdata is identical but whose logic differs.
func matchExtraFileInputBug(match *Match, recompiledDeployedBytecode string, deployedBytecode string) {
	deployedLogic, deployedAuxdata := splitAuxdataHex(deployedBytecode)
	recompiledLogic, recompiledAuxdata := splitAuxdataHex(recompiledDeployedBytecode)
	if deployedAuxdata == "" || deployedAuxdata != recompiledAuxdata || deployedLogic == recompiledLogic {
		return
	}
	match.Status = StatusExtraFileInputBug
	match.Message = extraFileInputBugMessage
}

// splitAuxdataHex splits 0x-prefixed hex bytecode into its logic and auxdata halves. The logic half keeps the prefix.
// Bytecode that cannot be decoded is returned whole as logic.
func splitAuxdataHex(bytecode string) (string, string) {
	decoded, err := utils.DecodeHex(bytecode)
	if err != nil {
		return bytecode, ""
	}
	logic, auxdata := types.SplitAuxdata(decoded)
	if auxdata == nil {
		return bytecode, ""
	}
	return hexutil.Encode(logic), common.Bytes2Hex(auxdata)
}

// doesContainMetadataHash reports whether 0x-prefixed hex bytecode carries a metadata hash in its auxdata.
func doesContainMetadataHash(bytecode string) bool {
	decoded, err := utils.DecodeHex(bytecode)
	if err != nil {
		return false
	}
	return types.DoesContainMetadataHash(decoded)
}
