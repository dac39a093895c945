package harness

import (
	"bytes"
	_ "embed"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Builtin returns the bundled ERC20Token suite.
func Builtin() []Scenario {
	scs, err := ParseScenarios(bytes.NewReader(builtinYAML))
	if err != nil {
		panic("harness: bad builtin suite: " + err.Error())
	}
	return scs
}
