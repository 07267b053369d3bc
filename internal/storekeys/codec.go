package storekeys

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// sessionSchemaDoc and runSchemaDoc validate a record before it's encoded
// and written, and again after it's read; a record that fails validation
// becomes an error (the stores report a validation error on write and a
// storage read error on read) rather than a silently corrupted object. They are loose on string formats
// (the Go types already enforce those) and strict on required fields and
// enum values.
const sessionSchemaDoc = `{
  "type": "object",
  "required": ["sessionId", "sandboxId", "createdAt", "lastActivity", "status", "workspacePath"],
  "properties": {
    "sessionId": {"type": "string"},
    "sandboxId": {"type": "string"},
    "createdAt": {"type": "integer"},
    "lastActivity": {"type": "integer"},
    "status": {"enum": ["creating", "active", "idle", "stopped", "error"]},
    "workspacePath": {"type": "string"}
  }
}`

const runSchemaDoc = `{
  "type": "object",
  "required": ["runId", "sessionId", "workflowId", "status", "task", "model", "startedAt"],
  "properties": {
    "runId": {"type": "string"},
    "sessionId": {"type": "string"},
    "workflowId": {"type": "string"},
    "status": {"enum": ["started", "running", "completed", "failed"]},
    "task": {"type": "string"},
    "model": {"type": "string"},
    "startedAt": {"type": "integer"}
  }
}`

const sessionIndexSchemaDoc = `{
  "type": "object",
  "required": ["version", "sessions", "updatedAt"],
  "properties": {
    "version": {"const": 1},
    "sessions": {"type": "object"},
    "updatedAt": {"type": "integer"}
  }
}`

const runIndexSchemaDoc = `{
  "type": "object",
  "required": ["version", "runs", "updatedAt"],
  "properties": {
    "version": {"const": 1},
    "runs": {"type": "object"},
    "updatedAt": {"type": "integer"}
  }
}`

var (
	sessionSchema      = compile("session.json", sessionSchemaDoc)
	runSchema          = compile("run.json", runSchemaDoc)
	sessionIndexSchema = compile("session-index.json", sessionIndexSchemaDoc)
	runIndexSchema     = compile("run-index.json", runIndexSchemaDoc)
)

func compile(name, doc string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader([]byte(doc))); err != nil {
		panic(fmt.Sprintf("storekeys: invalid embedded schema %s: %v", name, err))
	}
	schema, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("storekeys: compiling embedded schema %s: %v", name, err))
	}
	return schema
}

func validate(schema *jsonschema.Schema, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("storekeys: invalid json: %w", err)
	}
	return schema.Validate(v)
}

// EncodeSession marshals and schema-validates a session record before write.
func EncodeSession(v any) ([]byte, error) { return encode(sessionSchema, v) }

// DecodeSession schema-validates and unmarshals a session record after read.
func DecodeSession(body []byte, out any) error { return decode(sessionSchema, body, out) }

// EncodeRun marshals and schema-validates a run record before write.
func EncodeRun(v any) ([]byte, error) { return encode(runSchema, v) }

// DecodeRun schema-validates and unmarshals a run record after read.
func DecodeRun(body []byte, out any) error { return decode(runSchema, body, out) }

// EncodeSessionIndex marshals and schema-validates the session index.
func EncodeSessionIndex(v any) ([]byte, error) { return encode(sessionIndexSchema, v) }

// DecodeSessionIndex schema-validates and unmarshals the session index.
func DecodeSessionIndex(body []byte, out any) error { return decode(sessionIndexSchema, body, out) }

// EncodeRunIndex marshals and schema-validates the run index.
func EncodeRunIndex(v any) ([]byte, error) { return encode(runIndexSchema, v) }

// DecodeRunIndex schema-validates and unmarshals the run index.
func DecodeRunIndex(body []byte, out any) error { return decode(runIndexSchema, body, out) }

func encode(schema *jsonschema.Schema, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := validate(schema, body); err != nil {
		return nil, fmt.Errorf("storekeys: schema validation failed on write: %w", err)
	}
	return body, nil
}

func decode(schema *jsonschema.Schema, body []byte, out any) error {
	if err := validate(schema, body); err != nil {
		return fmt.Errorf("storekeys: schema validation failed on read: %w", err)
	}
	return json.Unmarshal(body, out)
}
