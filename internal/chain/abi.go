package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/tidwall/gjson"
)

// Contract method and event names.
const (
	MethodGetOwner = "getOwner"
	MethodGetMemos = "getMemos"
	MethodBuyTea   = "buyTea"
	MethodWithdraw = "withdraw"
	EventNewMemo   = "NewMemo"
)

// TeaJarABI is the interface description of the tea-jar contract.
const TeaJarABI = `[
  {"type":"constructor","inputs":[],"stateMutability":"nonpayable"},
  {"type":"event","name":"NewMemo","anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"from","type":"address"},
    {"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"},
    {"indexed":false,"internalType":"string","name":"name","type":"string"},
    {"indexed":false,"internalType":"string","name":"message","type":"string"}]},
  {"type":"function","name":"buyTea","stateMutability":"payable","inputs":[
    {"internalType":"string","name":"_name","type":"string"},
    {"internalType":"string","name":"_message","type":"string"}],"outputs":[]},
  {"type":"function","name":"getMemos","stateMutability":"view","inputs":[],"outputs":[
    {"internalType":"struct BuyMeATea.Memo[]","name":"","type":"tuple[]","components":[
      {"internalType":"address","name":"from","type":"address"},
      {"internalType":"uint256","name":"timestamp","type":"uint256"},
      {"internalType":"string","name":"name","type":"string"},
      {"internalType":"string","name":"message","type":"string"}]}]},
  {"type":"function","name":"getOwner","stateMutability":"view","inputs":[],"outputs":[
    {"internalType":"address","name":"","type":"address"}]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// ParseABI parses a raw ABI JSON array and checks it exposes everything the
// client calls.
func ParseABI(raw string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	for _, m := range []string{MethodGetOwner, MethodGetMemos, MethodBuyTea, MethodWithdraw} {
		if _, ok := parsed.Methods[m]; !ok {
			return abi.ABI{}, fmt.Errorf("abi missing method %q", m)
		}
	}
	if _, ok := parsed.Events[EventNewMemo]; !ok {
		return abi.ABI{}, fmt.Errorf("abi missing event %q", EventNewMemo)
	}
	return parsed, nil
}

// DefaultABI returns the built-in contract ABI.
func DefaultABI() abi.ABI {
	parsed, err := ParseABI(TeaJarABI)
	if err != nil {
		panic(err)
	}
	return parsed
}

// LoadArtifactABI reads a compiler artifact (Hardhat/Truffle layout, with the
// ABI under "abi") or a bare ABI array from path.
func LoadArtifactABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read artifact: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return abi.ABI{}, fmt.Errorf("artifact %s is not valid JSON", path)
	}

	root := gjson.ParseBytes(data)
	if root.IsArray() {
		return ParseABI(root.Raw)
	}

	field := root.Get("abi")
	if !field.Exists() || !field.IsArray() {
		return abi.ABI{}, fmt.Errorf("artifact %s has no abi array", path)
	}
	return ParseABI(field.Raw)
}
