package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"jointPacks/internal/apperr"
	"jointPacks/internal/lootbox"
)

// Network identifies the chain the contract is deployed on.
type Network struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	ID     uint64 `json:"id"`
}

// ContractConfig is the contract description document (config/config.json).
type ContractConfig struct {
	Address        string  `json:"contract_address"`
	GasLimit       uint64  `json:"gas_limit"`
	ScanLink       string  `json:"scan_link"`
	Network        Network `json:"network"`
	NFTName        string  `json:"nft_name"`
	Symbol         string  `json:"symbol"`
	ShowBackground bool    `json:"show_background"`
	DeployBlock    uint64  `json:"deploy_block"`
	MaxBlockRange  uint64  `json:"max_block_range"`
}

// LoadContract reads and validates the contract document at path. Every
// failure is a *apperr.ConfigLoadError so callers can fall back to a
// degraded mode instead of exiting.
func LoadContract(path string) (ContractConfig, error) {
	if strings.TrimSpace(path) == "" {
		return ContractConfig{}, &apperr.ConfigLoadError{Path: path, Err: errors.New("no contract config path")}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("MAX_BLOCK_RANGE", uint64(lootbox.DefaultMaxBlockRange))
	if err := v.ReadInConfig(); err != nil {
		return ContractConfig{}, &apperr.ConfigLoadError{Path: path, Err: err}
	}

	cfg := ContractConfig{
		Address:  strings.TrimSpace(v.GetString("CONTRACT_ADDRESS")),
		GasLimit: v.GetUint64("GAS_LIMIT"),
		ScanLink: v.GetString("SCAN_LINK"),
		Network: Network{
			Name:   v.GetString("NETWORK.NAME"),
			Symbol: v.GetString("NETWORK.SYMBOL"),
			ID:     v.GetUint64("NETWORK.ID"),
		},
		NFTName:        v.GetString("NFT_NAME"),
		Symbol:         v.GetString("SYMBOL"),
		ShowBackground: v.GetBool("SHOW_BACKGROUND"),
		DeployBlock:    v.GetUint64("DEPLOY_BLOCK"),
		MaxBlockRange:  v.GetUint64("MAX_BLOCK_RANGE"),
	}

	if !common.IsHexAddress(cfg.Address) {
		return ContractConfig{}, &apperr.ConfigLoadError{Path: path, Err: fmt.Errorf("invalid CONTRACT_ADDRESS %q", cfg.Address)}
	}
	if cfg.MaxBlockRange == 0 {
		return ContractConfig{}, &apperr.ConfigLoadError{Path: path, Err: errors.New("MAX_BLOCK_RANGE must be positive")}
	}

	return cfg, nil
}

// Binding converts the document into the lootbox binding settings.
func (c ContractConfig) Binding() lootbox.Config {
	cfg := lootbox.Config{
		Address:       common.HexToAddress(c.Address),
		DeployBlock:   c.DeployBlock,
		MaxBlockRange: c.MaxBlockRange,
		GasLimit:      c.GasLimit,
	}
	if c.Network.ID != 0 {
		cfg.ChainID = new(big.Int).SetUint64(c.Network.ID)
	}
	return cfg
}

// Identity distinguishes one contract binding from another.
func (c ContractConfig) Identity() string {
	return fmt.Sprintf("%d:%s", c.Network.ID, common.HexToAddress(c.Address).Hex())
}

// TxLink returns an explorer link for txHash when SCAN_LINK points at the
// contract page of a block explorer, e.g. https://bscscan.com/address/0x....
func (c ContractConfig) TxLink(txHash string) string {
	base := c.ScanLink
	if i := strings.Index(base, "/address/"); i >= 0 {
		base = base[:i]
	} else if i := strings.Index(base, "/token/"); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/tx/" + txHash
}
