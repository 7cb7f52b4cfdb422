// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"sync"

	memdb "github.com/hashicorp/go-memdb"
)

const (
	tableIndex = "index"

	TableContractors = "contractors"
	TableJobs        = "jobs"
	TableAssignments = "assignments"
	TableAudits      = "audit_recommendations"
	TableEventLog    = "event_log"
	TableWeights     = "weights_config"
	TableSkills      = "skill_catalogue"
)

const (
	indexID            = "id"
	indexJob           = "job"
	indexContractor    = "contractor"
	indexConfigVersion = "config_version"
	indexPublish       = "publish"
)

var (
	schemaFactories SchemaFactories
	factoriesLock   sync.Mutex
)

// SchemaFactory is the factory method for returning a table schema
type SchemaFactory func() *memdb.TableSchema
type SchemaFactories []SchemaFactory

// RegisterSchemaFactories is used to register a table schema.
func RegisterSchemaFactories(factories ...SchemaFactory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	schemaFactories = append(schemaFactories, factories...)
}

func GetFactories() SchemaFactories {
	return schemaFactories
}

func init() {
	// Register all schemas
	RegisterSchemaFactories([]SchemaFactory{
		indexTableSchema,
		contractorTableSchema,
		jobTableSchema,
		assignmentTableSchema,
		auditTableSchema,
		eventLogTableSchema,
		weightsTableSchema,
		skillTableSchema,
	}...)
}

// stateStoreSchema is used to return the combined schema for the state store.
func stateStoreSchema() *memdb.DBSchema {
	db := &memdb.DBSchema{
		Tables: make(map[string]*memdb.TableSchema),
	}

	factories := GetFactories()
	for _, fn := range factories {
		schema := fn()
		if _, ok := db.Tables[schema.Name]; ok {
			panic("duplicate table name: " + schema.Name)
		}
		db.Tables[schema.Name] = schema
	}
	return db
}

// indexTableSchema is used for tracking the most recent index used for each
// table, plus the active weights version pointer.
func indexTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableIndex,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field:     "Key",
					Lowercase: true,
				},
			},
		},
	}
}

func contractorTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableContractors,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

func jobTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableJobs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

func assignmentTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAssignments,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexJob: {
				Name:         indexJob,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "JobID",
				},
			},
			indexContractor: {
				Name:         indexContractor,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "ContractorID",
				},
			},
		},
	}
}

func auditTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAudits,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexJob: {
				Name:         indexJob,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "JobID",
				},
			},
			indexConfigVersion: {
				Name:         indexConfigVersion,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.UintFieldIndex{
					Field: "ConfigVersion",
				},
			},
		},
	}
}

func eventLogTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEventLog,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
			indexPublish: {
				Name:         indexPublish,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UintFieldIndex{
					Field: "Index",
				},
			},
		},
	}
}

func weightsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableWeights,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UintFieldIndex{
					Field: "Version",
				},
			},
		},
	}
}

func skillTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableSkills,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field:     "Name",
					Lowercase: true,
				},
			},
		},
	}
}
