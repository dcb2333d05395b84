package verification

import (
	"encoding/json"
	"time"
)

// MatchStatus describes the verdict of a verification attempt.
type MatchStatus string

const (
	// StatusNone indicates no verdict has been reached.
	StatusNone MatchStatus = ""

	// StatusPerfect indicates the recompiled bytecode is identical to the on-chain bytecode, embedded metadata hash
	// included.
	StatusPerfect MatchStatus = "perfect"

	// StatusPartial indicates the bytecode logic matches but the embedded metadata hash differs or is absent.
	StatusPartial MatchStatus = "partial"

	// StatusExtraFileInputBug indicates a known compiler defect where unused input files alter the generated bytecode
	// while the metadata hash is identical.
	StatusExtraFileInputBug MatchStatus = "extra-file-input-bug"
)

// MarshalJSON serializes StatusNone as null.
func (s MatchStatus) MarshalJSON() ([]byte, error) {
	if s == StatusNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON deserializes null as StatusNone.
func (s *MatchStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StatusNone
		return nil
	}
	var status string
	if err := json.Unmarshal(data, &status); err != nil {
		return err
	}
	*s = MatchStatus(status)
	return nil
}

// Succeeded returns true for any status other than StatusNone.
func (s MatchStatus) Succeeded() bool {
	return s != StatusNone
}

// Create2Args describes the inputs of a CREATE2 deployment.
type Create2Args struct {
	DeployerAddress string `json:"deployerAddress"`
	Salt            string `json:"salt"`
}

// ContextVariables describes the deployment context used when simulating a contract creation.
type ContextVariables struct {
	AbiEncodedConstructorArguments string `json:"abiEncodedConstructorArguments,omitempty"`
	MsgSender                      string `json:"msgSender,omitempty"`
}

// Match is the verdict of a verification attempt. It is filled in progressively by the matching stages and is final
// once Status is set.
type Match struct {
	Address                        string            `json:"address"`
	ChainID                        string            `json:"chainId"`
	Status                         MatchStatus       `json:"status"`
	Message                        string            `json:"message,omitempty"`
	LibraryMap                     map[string]string `json:"libraryMap,omitempty"`
	AbiEncodedConstructorArguments string            `json:"abiEncodedConstructorArguments,omitempty"`
	Create2Args                    *Create2Args      `json:"create2Args,omitempty"`
	ContextVariables               *ContextVariables `json:"contextVariables,omitempty"`
	StorageTimestamp               *time.Time        `json:"storageTimestamp,omitempty"`
}
