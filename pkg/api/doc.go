// Package api defines the data types shared by the runbox sandbox, the
// error classifier, the correction loop and the task executor.
//
// The package performs no I/O. All types marshal to the JSON shapes served
// by the HTTP and MCP surfaces.
//
// Core types:
//   - [ExecutionResult]: stdout, stderr and exit code of one sandbox run
//   - [Diagnosis]: classifier output with a remediation suggestion
//   - [ErrorRecord]: one entry of the classifier history
//   - [Task] and [TaskResult]: asynchronous execution bookkeeping
//   - [ExecutionRecord]: entry handed to the execution-history sink
//   - [APIError]: structured error with type, code, param, and message
package api
