// Package sqljob implements the concrete SQL-fleet and replica-placement
// job types built on top of internal/job: database and table DDL,
// partition removal, secondary-index management, and the replica
// placement/lookup/cleanup jobs a czar issues against workers.
//
// Request and result bodies are framed with msgpack (vmihailenco/msgpack),
// the same encoding the ambient stack already uses at its one other wire
// boundary. The worker-side decoder is out of scope; only the envelope
// shapes are defined here.
package sqljob

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Opcode identifies which SqlJob/ReplicationJob variant a Request body
// should be interpreted as.
const (
	OpSqlCreateDb              = "SQL_CREATE_DB"
	OpSqlDeleteDb              = "SQL_DELETE_DB"
	OpSqlEnableDb              = "SQL_ENABLE_DB"
	OpSqlDisableDb             = "SQL_DISABLE_DB"
	OpSqlCreateTable           = "SQL_CREATE_TABLE"
	OpSqlDeleteTable           = "SQL_DELETE_TABLE"
	OpSqlRemoveTablePartitions = "SQL_REMOVE_TABLE_PARTITIONS"
	OpSqlDeleteTablePartition  = "SQL_DELETE_TABLE_PARTITION"
	OpSqlCreateIndexes         = "SQL_CREATE_INDEXES"
	OpSqlDropIndexes           = "SQL_DROP_INDEXES"
	OpSqlGetIndexes            = "SQL_GET_INDEXES"
	OpReplicate                = "REPLICATE"
	OpDelete                   = "DELETE"
	OpFind                     = "FIND"
	OpFindAll                  = "FIND_ALL"
	OpEcho                     = "ECHO"
	OpDirectorIndex            = "DIRECTOR_INDEX"
)

func encode(v any) []byte {
	b, err := msgpack.Marshal(v)
	if err != nil {
		// Encoding a plain struct of strings/ints/bools cannot fail; a
		// panic here means a request type was defined wrong.
		panic(fmt.Sprintf("sqljob: encode: %v", err))
	}
	return b
}

func decode(body []byte, v any) error {
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("sqljob: decode: %w", err)
	}
	return nil
}
