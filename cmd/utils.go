package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/crytic/provenance/cache"
	"github.com/crytic/provenance/cmd/exitcodes"
	"github.com/crytic/provenance/compilation"
	"github.com/crytic/provenance/config"
	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/logging/colors"
	"github.com/crytic/provenance/metrics"
	"github.com/crytic/provenance/utils"
	"github.com/crytic/provenance/verification"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cmdValidFlagArgs will return which flags are valid for dynamic completion for commands that only accept flags
func cmdValidFlagArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateNoArgs makes sure that there are no positional arguments provided to a command
func cmdValidateNoArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("%s does not accept any positional arguments, only flags and their associated values", cmd.Name())
		cmdLogger.Error("Failed to validate args to the "+cmd.Name()+" command", err)
		return err
	}
	return nil
}

// addConfigFlags adds the flags shared by every command which loads a project configuration
func addConfigFlags(cmd *cobra.Command) {
	// Config file
	cmd.Flags().String("config", "", "path to config file")

	// Compiler backend
	cmd.Flags().String("backend", "",
		fmt.Sprintf("compiler backend used to recompile contracts (unless a config file is provided, default is %q)", DefaultCompilerBackend))

	// IPFS gateway
	cmd.Flags().String("ipfs-gateway", "", "gateway missing sources are fetched from")

	// Source cache
	cmd.Flags().String("cache-dir", "", "directory fetched sources and creation transactions are cached in")
}

// loadProjectConfig resolves the project configuration for a command:
// #1: We will search for either a custom config file (via --config) or the default (provenance.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If provenance.json can't be found, use the default project configuration.
// Flags shared by all commands are applied last.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	var projectConfig *config.ProjectConfig

	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `provenance.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		projectConfig, err = config.ReadProjectConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed && existenceError != nil {
		return nil, existenceError
	}

	// Possibility #3: --config flag was not used and provenance.json was not found, so use the default project config
	if !configFlagUsed && existenceError != nil {
		cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration for the "+
			"%v compiler backend instead", configPath, DefaultCompilerBackend))

		projectConfig, err = config.GetDefaultProjectConfig(DefaultCompilerBackend)
		if err != nil {
			return nil, err
		}
		if err = projectConfig.ApplyEnvironmentOverrides(); err != nil {
			return nil, err
		}
	}

	// Update the project configuration given whatever flags were set using the CLI
	if err = updateProjectConfigWithConfigFlags(cmd, projectConfig); err != nil {
		return nil, err
	}
	return projectConfig, projectConfig.Validate()
}

// updateProjectConfigWithConfigFlags will update the given projectConfig with the shared configuration flags
func updateProjectConfigWithConfigFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the compiler backend
	if cmd.Flags().Changed("backend") {
		backend, err := cmd.Flags().GetString("backend")
		if err != nil {
			return err
		}
		cacheConfig := projectConfig.Compiler.Cache
		resultCacheSize := projectConfig.Compiler.ResultCacheSize
		if projectConfig.Compiler, err = compilation.NewCompilationConfig(backend); err != nil {
			return err
		}
		projectConfig.Compiler.Cache = cacheConfig
		projectConfig.Compiler.ResultCacheSize = resultCacheSize
	}

	// Update the IPFS gateway
	if cmd.Flags().Changed("ipfs-gateway") {
		projectConfig.Sources.IpfsGateway, err = cmd.Flags().GetString("ipfs-gateway")
		if err != nil {
			return err
		}
	}

	// Update the cache directory
	if cmd.Flags().Changed("cache-dir") {
		projectConfig.Sources.CacheDirectory, err = cmd.Flags().GetString("cache-dir")
		if err != nil {
			return err
		}
	}
	return nil
}

// setupLogging configures the global logger from the project configuration. The returned function closes any log
// file that was opened.
func setupLogging(projectConfig *config.ProjectConfig) (func(), error) {
	logging.GlobalLogger = logging.NewLogger(projectConfig.Logging.Level)
	logging.GlobalLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, !projectConfig.Logging.NoColor)

	// If the log directory is a non-empty string, create a file for file logging
	if projectConfig.Logging.LogDirectory == "" {
		return func() {}, nil
	}
	// Filename will be the "log-current_unix_timestamp.log"
	filename := "log-" + strconv.FormatInt(time.Now().Unix(), 10) + ".log"
	file, err := utils.CreateFile(projectConfig.Logging.LogDirectory, filename)
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.AddWriter(file, logging.UNSTRUCTURED, false)
	return func() { _ = file.Close() }, nil
}

// verificationSession holds the collaborators a command verifies contracts with.
type verificationSession struct {
	verifier *verification.Verifier
	cache    cache.Cache
	metrics  *metrics.Metrics
	config   *config.ProjectConfig
}

// newVerificationSession creates a Verifier from the project configuration, along with its cache and metrics.
func newVerificationSession(ctx context.Context, projectConfig *config.ProjectConfig) (*verificationSession, error) {
	session := &verificationSession{config: projectConfig}
	if projectConfig.MetricsEnabled {
		session.metrics = metrics.New()
	}

	var err error
	if projectConfig.Sources.CacheDirectory != "" {
		if session.cache, err = cache.NewPersistentCache(ctx, projectConfig.Sources.CacheDirectory); err != nil {
			return nil, err
		}
	} else {
		session.cache = cache.NewNonPersistentCache()
	}

	if session.verifier, err = verification.NewVerifierFromConfig(projectConfig, session.cache, session.metrics); err != nil {
		_ = session.cache.Close()
		return nil, err
	}
	return session, nil
}

// Close releases the session's connections, flushes its cache, and writes metrics if configured.
func (s *verificationSession) Close() {
	s.verifier.Close()
	if err := s.cache.Close(); err != nil {
		cmdLogger.Warn("Failed to flush the cache", err)
	}
	if s.metrics != nil && s.config.MetricsFile != "" {
		if err := s.metrics.WriteToFile(s.config.MetricsFile); err != nil {
			cmdLogger.Warn("Failed to write metrics to ", s.config.MetricsFile, err)
		}
	}
}

// loadCheckedContract reads a metadata document and matches the files of a source directory against it.
func loadCheckedContract(metadataPath string, sourcesDirectory string) (*verification.CheckedContract, error) {
	metadataRaw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	files := make(map[string]string)
	if sourcesDirectory != "" {
		if files, err = utils.ReadSourceDirectory(sourcesDirectory); err != nil {
			return nil, err
		}
	}

	contract, err := verification.NewCheckedContractFromFiles(metadataRaw, files)
	if err != nil {
		return nil, err
	}
	if len(contract.Missing) > 0 {
		cmdLogger.Info("Sources missing for ", verification.StringifyInvalidAndMissing(contract), ", they will be fetched")
	}
	return contract, nil
}

// reportMatch prints the match as JSON, and returns an error carrying the verification failure exit code if the match
// has no status.
func reportMatch(match *verification.Match) error {
	encoded, err := json.MarshalIndent(match, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	if !match.Status.Succeeded() {
		cmdLogger.Error("Verification failed: ", match.Message)
		return exitcodes.NewErrorWithExitCode(errors.New(match.Message), exitcodes.ExitCodeVerificationFailed)
	}
	return nil
}

// verificationError assigns the exit code of an error returned by a verification.
func verificationError(err error) error {
	var matchFailure *verification.MatchFailureError
	if errors.As(err, &matchFailure) {
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeVerificationFailed)
	}
	return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
}
