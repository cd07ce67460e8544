package sdbql

import (
	"github.com/cuemby/solidb/pkg/sdbql/exec"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/txn"
	"github.com/cuemby/solidb/pkg/types"
)

// Run builds a one-shot Executor for database and evaluates query
// against it. Callers that issue many queries against the same database
// (an HTTP handler, a REPL) should build and reuse an exec.Executor
// directly instead of paying its setup cost per call.
func Run(e *storage.Engine, documents *storage.Documents, txManager *txn.Manager, database, query string, bindVars map[string]types.Value) (*exec.Result, error) {
	ex := &exec.Executor{
		Documents: documents,
		Engine:    e,
		Database:  database,
		Txn:       txManager,
	}
	return ex.Run(query, exec.Options{BindVars: bindVars})
}
