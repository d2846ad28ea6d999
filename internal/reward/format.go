package reward

import (
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of fractional digits between wei and ether.
const EtherDecimals = 18

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// ParseWei parses a non-negative decimal integer amount.
func ParseWei(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	abs := new(big.Int).Abs(wei)
	text := new(big.Rat).SetFrac(abs, weiPerEther).FloatString(EtherDecimals)
	text = strings.TrimRight(text, "0")
	text = strings.TrimSuffix(text, ".")
	if wei.Sign() < 0 {
		return "-" + text
	}
	return text
}

// FromWei converts a wei amount string into ether.
func FromWei(amountWei string) (string, error) {
	wei, err := ParseWei(amountWei)
	if err != nil {
		return "", err
	}
	return FormatEther(wei), nil
}

// RoundEther rounds an ether string to places fractional digits for display.
func RoundEther(ether string, places int) string {
	rat, ok := new(big.Rat).SetString(ether)
	if !ok {
		return ether
	}
	return rat.FloatString(places)
}
