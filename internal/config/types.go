package config

// Config holds all tkn configuration.
type Config struct {
	DefaultNetwork string `json:"default_network" mapstructure:"default_network"`
	DefaultWallet  string `json:"default_wallet"  mapstructure:"default_wallet"`
	DefaultToken   string `json:"default_token"   mapstructure:"default_token"` // deployment name or address
	Artifact       string `json:"artifact"        mapstructure:"artifact"`      // compiled ERC20Token artifact used by deploy/test
	LogLevel       string `json:"log_level"       mapstructure:"log_level"`
	PollInterval   int    `json:"poll_interval"   mapstructure:"poll_interval"` // seconds
	ServeAddr      string `json:"serve_addr"      mapstructure:"serve_addr"`

	// Networks adds to or overrides the built-in networks.
	Networks map[string]NetworkConfig `json:"networks" mapstructure:"networks"`

	// internal: config dir path used for Save()
	configDir string
}

// NetworkConfig is a user-defined RPC endpoint.
type NetworkConfig struct {
	RPC      string `json:"rpc"                mapstructure:"rpc"`
	ChainID  int64  `json:"chain_id"           mapstructure:"chain_id"`
	Explorer string `json:"explorer,omitempty" mapstructure:"explorer"`
	Local    bool   `json:"local,omitempty"    mapstructure:"local"`
}
