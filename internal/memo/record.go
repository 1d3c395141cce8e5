// Package memo holds tip records and the ordered store the API renders.
package memo

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DefaultName replaces an empty display name.
	DefaultName = "Anonymity"
	// DefaultMessage replaces an empty message.
	DefaultMessage = "Enjoy your tea!"
)

// Record is a single tip left on the contract. Records are values and never
// mutated after construction.
type Record struct {
	Sender    string `json:"sender"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// New builds a record, substituting defaults for empty name and message.
func New(sender string, timestamp int64, name, message string) Record {
	return Record{
		Sender:    sender,
		Name:      NameOrDefault(name),
		Message:   MessageOrDefault(message),
		Timestamp: timestamp,
	}
}

// NameOrDefault returns name, or DefaultName when it is empty. Whitespace is
// kept as sent.
func NameOrDefault(name string) string {
	if name == "" {
		return DefaultName
	}
	return name
}

// MessageOrDefault returns message, or DefaultMessage when it is empty.
func MessageOrDefault(message string) string {
	if message == "" {
		return DefaultMessage
	}
	return message
}

// Key is the synthetic identity of a record. The contract assigns memos no id,
// so two records with the same sender, timestamp, name and message are treated
// as the same memo.
func (r Record) Key() common.Hash {
	return crypto.Keccak256Hash(
		[]byte(strings.ToLower(r.Sender)),
		[]byte{0},
		[]byte(strconv.FormatInt(r.Timestamp, 10)),
		[]byte{0},
		[]byte(r.Name),
		[]byte{0},
		[]byte(r.Message),
	)
}
