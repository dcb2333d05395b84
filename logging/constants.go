package logging

// These constants are used to identify the various services that may do some logging
const (
	// COMPILATION_SERVICE is the constant used to identify the compilation package
	COMPILATION_SERVICE = "compilation"
	// VERIFICATION_SERVICE is the constant used to identify the verification package
	VERIFICATION_SERVICE = "verification"
	// CHAIN_SERVICE is the constant used to identify the chain packages
	CHAIN_SERVICE = "chain"
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
)
