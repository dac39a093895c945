package contract

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoBytecode is returned when an artifact cannot be deployed.
var ErrNoBytecode = errors.New("artifact has no bytecode")

// Artifact is a compiled contract as written by Truffle, Hardhat or Foundry.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte // deployment bytecode, empty for interfaces

	// Networks is Truffle's record of where the contract was migrated,
	// keyed by network id.
	Networks map[string]ArtifactNetwork
}

// ArtifactNetwork is one entry of a Truffle artifact's networks map.
type ArtifactNetwork struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash"`
}

// Address returns the address the artifact was migrated to on networkID.
func (a *Artifact) Address(networkID string) (common.Address, bool) {
	n, ok := a.Networks[networkID]
	if !ok || !common.IsHexAddress(n.Address) {
		return common.Address{}, false
	}
	return common.HexToAddress(n.Address), true
}

// HasERC20 reports whether the artifact's ABI exposes the ERC-20 functions
// and events the typed client relies on.
func (a *Artifact) HasERC20() error {
	for name := range ERC20ABI.Methods {
		if _, ok := a.ABI.Methods[name]; !ok {
			return fmt.Errorf("artifact %s is missing function %s", a.ContractName, name)
		}
	}
	for name := range ERC20ABI.Events {
		if _, ok := a.ABI.Events[name]; !ok {
			return fmt.Errorf("artifact %s is missing event %s", a.ContractName, name)
		}
	}
	return nil
}

// LoadArtifact reads a contract artifact from path. The file is either:
//   - a Truffle/Hardhat artifact: {"contractName", "abi":[...], "bytecode":"0x...", "networks":{...}}
//   - a Foundry artifact:         {"abi":[...], "bytecode":{"object":"0x..."}}
//   - a raw ABI JSON array (no bytecode, cannot be deployed)
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read artifact file: %w", err)
	}
	art, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return art, nil
}

// ParseArtifact parses artifact JSON. See LoadArtifact for accepted shapes.
func ParseArtifact(data []byte) (*Artifact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("artifact is empty")
	}

	if data[0] == '[' {
		parsed, err := parseABI(data)
		if err != nil {
			return nil, err
		}
		return &Artifact{ABI: parsed}, nil
	}

	var raw struct {
		ContractName string                     `json:"contractName"`
		ABI          json.RawMessage            `json:"abi"`
		Bytecode     json.RawMessage            `json:"bytecode"`
		Networks     map[string]ArtifactNetwork `json:"networks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid artifact JSON: %w", err)
	}
	if len(raw.ABI) < 2 || raw.ABI[0] != '[' {
		return nil, fmt.Errorf("artifact has no valid \"abi\" array")
	}
	parsed, err := parseABI(raw.ABI)
	if err != nil {
		return nil, fmt.Errorf("parsing artifact ABI: %w", err)
	}

	art := &Artifact{ContractName: raw.ContractName, ABI: parsed, Networks: raw.Networks}
	if len(raw.Bytecode) > 0 && string(raw.Bytecode) != "null" {
		bcHex, err := extractBytecodeHex(raw.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("extracting bytecode from artifact: %w", err)
		}
		if strings.Contains(bcHex, "__") {
			return nil, fmt.Errorf("artifact bytecode has unlinked library placeholders")
		}
		art.Bytecode, err = hex.DecodeString(strings.TrimPrefix(bcHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid bytecode hex in artifact: %w", err)
		}
	}
	return art, nil
}

func parseABI(data []byte) (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("invalid ABI JSON: %w", err)
	}
	if len(parsed.Methods) == 0 && len(parsed.Events) == 0 {
		return abi.ABI{}, fmt.Errorf("ABI has no functions or events")
	}
	return parsed, nil
}

// extractBytecodeHex handles the two common artifact formats:
//   - Truffle/Hardhat: "bytecode": "0x608060..."
//   - Foundry:         "bytecode": {"object": "0x608060..."}
func extractBytecodeHex(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str), nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Object), nil
	}

	return "", fmt.Errorf("bytecode field is neither a hex string nor a {\"object\":\"0x...\"} object")
}
