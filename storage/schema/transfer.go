package schema

import (
	"fmt"
)

// Key layout of the transfer journal
//
//	transfer:<ulid>          json encoded model.TransferRecord
//	userop:<userOpHash>      ulid of the record that submitted it
//	counter:transfer:<state> number of records that ended in state
const (
	TransferPrefix = "transfer:"
	UserOpPrefix   = "userop:"
	counterPrefix  = "counter:transfer:"
)

func TransferKey(id string) []byte {
	return []byte(TransferPrefix + id)
}

func UserOpKey(userOpHash string) []byte {
	return []byte(UserOpPrefix + userOpHash)
}

func TransferCounterKey(status string) []byte {
	return []byte(fmt.Sprintf("%s%s", counterPrefix, status))
}
