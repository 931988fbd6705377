package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
)

// Contract names used for artifact lookup and the deployment cache.
const (
	ContractWETH9           = "WETH9"
	ContractFactory         = "UniswapV3Factory"
	ContractSwapRouter      = "SwapRouter"
	ContractPositionManager = "NonfungiblePositionManager"
)

// deployOrder is the constructor dependency order.
var deployOrder = []string{
	ContractWETH9,
	ContractFactory,
	ContractSwapRouter,
	ContractPositionManager,
}

// Artifacts holds creation bytecode per contract name, loaded from solc
// artifact JSON files. Bytecode lives on disk next to the compiled
// contracts rather than baked into the binary.
type Artifacts struct {
	bytecode map[string][]byte
}

// artifactFile covers the two artifact shapes in the wild: hardhat keeps
// bytecode as a hex string, foundry nests it under an object field.
type artifactFile struct {
	Bytecode json.RawMessage `json:"bytecode"`
}

type nestedBytecode struct {
	Object string `json:"object"`
}

// LoadArtifacts reads <dir>/<name>.json for every contract in the
// deployment set and extracts creation bytecode.
func LoadArtifacts(dir string) (*Artifacts, error) {
	arts := &Artifacts{bytecode: make(map[string][]byte, len(deployOrder))}
	for _, name := range deployOrder {
		path := filepath.Join(dir, name+".json")
		code, err := loadBytecode(path)
		if err != nil {
			return nil, fmt.Errorf("load artifact for %s: %w", name, err)
		}
		arts.bytecode[name] = code
	}
	return arts, nil
}

// Bytecode returns the creation bytecode for a contract name.
func (a *Artifacts) Bytecode(name string) ([]byte, error) {
	code, ok := a.bytecode[name]
	if !ok {
		return nil, fmt.Errorf("no artifact loaded for contract %q", name)
	}
	return code, nil
}

func loadBytecode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var art artifactFile
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(art.Bytecode) == 0 {
		return nil, fmt.Errorf("%s has no bytecode field", path)
	}

	var hexCode string
	if err := json.Unmarshal(art.Bytecode, &hexCode); err != nil {
		var nested nestedBytecode
		if err := json.Unmarshal(art.Bytecode, &nested); err != nil {
			return nil, fmt.Errorf("%s: unrecognized bytecode shape", path)
		}
		hexCode = nested.Object
	}

	code := common.FromHex(hexCode)
	if len(code) == 0 {
		return nil, fmt.Errorf("%s: empty bytecode", path)
	}
	return code, nil
}

// appendConstructorArgs appends ABI-encoded address arguments to creation
// bytecode.
func appendConstructorArgs(bytecode []byte, args ...common.Address) []byte {
	result := make([]byte, len(bytecode)+len(args)*32)
	copy(result, bytecode)
	for i, arg := range args {
		copy(result[len(bytecode)+i*32+12:], arg.Bytes())
	}
	return result
}
