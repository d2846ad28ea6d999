package lootbox

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	EventRewardClaimed        = "RewardClaimed"
	MethodOpenLootBox         = "openLootBox"
	MethodBalanceOf           = "balanceOf"
	MethodTokenOfOwnerByIndex = "tokenOfOwnerByIndex"
	MethodTokenURI            = "tokenURI"
	MethodOwnerOf             = "ownerOf"
)

const lootBoxABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "tokenId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "RewardClaimed",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
    "name": "openLootBox",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "owner", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "uint256", "name": "index", "type": "uint256"}
    ],
    "name": "tokenOfOwnerByIndex",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
    "name": "tokenURI",
    "outputs": [{"internalType": "string", "name": "", "type": "string"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
    "name": "ownerOf",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	lootBoxABI     abi.ABI
	lootBoxABIOnce sync.Once
	lootBoxABIErr  error
)

// LootBoxABI returns the parsed LootBox contract ABI.
func LootBoxABI() (abi.ABI, error) {
	lootBoxABIOnce.Do(func() {
		lootBoxABI, lootBoxABIErr = abi.JSON(strings.NewReader(lootBoxABIJSON))
	})
	return lootBoxABI, lootBoxABIErr
}
