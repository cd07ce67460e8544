/*
Package sdbql implements SoliDB's query language end to end: tokenizing
(pkg/sdbql/lexer), parsing into an AST (pkg/sdbql/ast, pkg/sdbql/parser),
and executing that AST against the storage and index layers
(pkg/sdbql/exec) (spec §4.8).

A query is a pipeline of clauses -- FOR, FILTER, LET, COLLECT, SORT,
LIMIT, a body mutation (UPDATE/INSERT/REMOVE/UPSERT), and RETURN -- over
a stream of variable bindings ("rows"). FOR over a collection name scans
every document in it (no index is consulted); FOR over an array
expression iterates it directly.
Graph traversal (FOR v, e, p IN min..max OUTBOUND|INBOUND|ANY start
edges) and subqueries are additional row sources. Each clause transforms
the full row set in turn rather than streaming one row at a time through
the whole pipeline; this trades some memory for an executor that is far
simpler to reason about and test.

The package exposes one entry point for callers: Run evaluates a query
source against a database and returns its rows. It produces no explain
plan; that needs exec.Executor.Run with Options.Analyze set.
*/
package sdbql
