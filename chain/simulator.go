package chain

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/core/vm/runtime"
	"github.com/crytic/medusa-geth/params"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/utils"
	"github.com/pkg/errors"
)

// simulationGasLimit is the gas made available to simulated contract creations.
const simulationGasLimit = 0xffffffffff

// hardforks lists the EVM versions accepted by the compiler's evmVersion setting, in activation order.
var hardforks = []string{
	"homestead",
	"tangerineWhistle",
	"spuriousDragon",
	"byzantium",
	"constantinople",
	"petersburg",
	"istanbul",
	"berlin",
	"london",
	"paris",
	"shanghai",
	"cancun",
	"prague",
}

// SimulationRequest describes a contract creation to simulate.
type SimulationRequest struct {
	// ChainID is the chain identifier exposed to the init code.
	ChainID uint64

	// EvmVersion is the hardfork the contract was compiled for. An empty value selects the latest hardfork.
	EvmVersion string

	// Sender is the account executing the creation.
	Sender common.Address

	// InitCode is the creation bytecode, with any ABI-encoded constructor arguments appended.
	InitCode []byte
}

// Simulator executes contract creations against fresh, empty state to recover the runtime bytecode they deploy.
type Simulator struct {
	logger *logging.Logger
}

// NewSimulator creates a new Simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		logger: logging.GlobalLogger.NewSubLogger("module", logging.CHAIN_SERVICE),
	}
}

// SimulateCreation runs the request's init code and returns the runtime bytecode it deployed.
func (s *Simulator) SimulateCreation(request SimulationRequest) ([]byte, error) {
	chainConfig, err := NewChainConfigForHardfork(request.ChainID, request.EvmVersion)
	if err != nil {
		return nil, err
	}

	// Create our VM config
	vmConfig := vm.Config{
		NoBaseFee:        true,
		ConfigExtensions: &vm.ConfigExtensions{},
	}

	cfg := &runtime.Config{
		ChainConfig: chainConfig,
		Origin:      request.Sender,
		GasLimit:    simulationGasLimit,
		BlockNumber: big.NewInt(1),
		Time:        1,
		Value:       new(big.Int),
		EVMConfig:   vmConfig,
	}

	deployed, address, _, err := runtime.Create(request.InitCode, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "contract creation simulation failed")
	}
	s.logger.Debug("Simulated deployment of ", len(deployed), " bytes to ", address.Hex())
	return deployed, nil
}

// NewChainConfigForHardfork returns a chain configuration for the chain id with every hardfork up to and including the
// provided one active from genesis.
func NewChainConfigForHardfork(chainId uint64, hardfork string) (*params.ChainConfig, error) {
	forkIndex := len(hardforks) - 1
	if hardfork != "" {
		forkIndex = -1
		for i, fork := range hardforks {
			if fork == hardfork {
				forkIndex = i
				break
			}
		}
		if forkIndex < 0 {
			return nil, errors.Errorf("unsupported evm version %q", hardfork)
		}
	}

	// Copy our chain config, so it is not shared across simulations.
	chainConfig, err := utils.CopyChainConfig(params.TestChainConfig)
	if err != nil {
		return nil, err
	}
	chainConfig.ChainID = new(big.Int).SetUint64(chainId)
	chainConfig.BlobScheduleConfig = params.DefaultBlobSchedule

	zero := uint64(0)
	active := func(fork string) bool {
		for i := 0; i <= forkIndex; i++ {
			if hardforks[i] == fork {
				return true
			}
		}
		return false
	}
	block := func(fork string) *big.Int {
		if active(fork) {
			return new(big.Int)
		}
		return nil
	}
	timestamp := func(fork string) *uint64 {
		if active(fork) {
			return &zero
		}
		return nil
	}

	chainConfig.HomesteadBlock = block("homestead")
	chainConfig.DAOForkBlock = nil
	chainConfig.EIP150Block = block("tangerineWhistle")
	chainConfig.EIP155Block = block("spuriousDragon")
	chainConfig.EIP158Block = block("spuriousDragon")
	chainConfig.ByzantiumBlock = block("byzantium")
	chainConfig.ConstantinopleBlock = block("constantinople")
	chainConfig.PetersburgBlock = block("petersburg")
	chainConfig.IstanbulBlock = block("istanbul")
	chainConfig.MuirGlacierBlock = block("istanbul")
	chainConfig.BerlinBlock = block("berlin")
	chainConfig.LondonBlock = block("london")
	chainConfig.ArrowGlacierBlock = block("london")
	chainConfig.GrayGlacierBlock = block("london")
	chainConfig.MergeNetsplitBlock = block("paris")
	chainConfig.ShanghaiTime = timestamp("shanghai")
	chainConfig.CancunTime = timestamp("cancun")
	chainConfig.PragueTime = timestamp("prague")
	chainConfig.OsakaTime = nil
	chainConfig.VerkleTime = nil
	if !active("paris") {
		chainConfig.TerminalTotalDifficulty = nil
	}
	return chainConfig, nil
}
