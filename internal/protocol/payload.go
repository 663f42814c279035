// Package protocol defines the function names and JSON payloads exchanged
// between the population host and its observers. Every payload is checked
// against an embedded JSON Schema before it is decoded.
package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Function names registered on the message bus.
const (
	FunctionSpawned    = "PopulationSpawned"
	FunctionRemoved    = "PopulationRemoved"
	FunctionSnapshot   = "PopulationSnapshot"
	FunctionAgentMoved = "AgentMoved"
	FunctionPickup     = "PopulationPickup"
)

const schemaBase = "https://populace.local/schemas/"

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	FunctionSpawned:    "spawned.schema.json",
	FunctionRemoved:    "removed.schema.json",
	FunctionSnapshot:   "snapshot.schema.json",
	FunctionAgentMoved: "agent_moved.schema.json",
	FunctionPickup:     "pickup.schema.json",
}

// Entity describes one spawned object. Rot is a quaternion as w, x, y, z.
type Entity struct {
	ID        string     `json:"id"`
	Candidate string     `json:"candidate"`
	Zone      string     `json:"zone,omitempty"`
	Pos       [3]float64 `json:"pos"`
	Rot       [4]float64 `json:"rot"`
}

// Removed announces an evicted entity.
type Removed struct {
	ID string `json:"id"`
}

// Pickup asks the host to remove an entity an observer's agent picked up.
type Pickup struct {
	ID string `json:"id"`
}

// Snapshot is the full entity list sent to a newly connected observer.
type Snapshot struct {
	Entities []Entity `json:"entities"`
}

// AgentMoved carries an observer's agent position to the host.
type AgentMoved struct {
	Name string     `json:"name,omitempty"`
	Pos  [3]float64 `json:"pos"`
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020

		for _, file := range schemaFiles {
			data, err := schemaFS.ReadFile("schemas/" + file)
			if err != nil {
				schemasErr = fmt.Errorf("reading schema %s: %w", file, err)
				return
			}
			if err := c.AddResource(schemaBase+file, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("adding schema %s: %w", file, err)
				return
			}
		}

		compiled := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for fn, file := range schemaFiles {
			s, err := c.Compile(schemaBase + file)
			if err != nil {
				schemasErr = fmt.Errorf("compiling schema %s: %w", file, err)
				return
			}
			compiled[fn] = s
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// Encode marshals a payload.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return b, nil
}

// Decode validates data against the schema of function and unmarshals it into v.
func Decode(function string, data []byte, v any) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[function]
	if !ok {
		return fmt.Errorf("no schema for function %s", function)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parsing %s payload: %w", function, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s payload: %w", function, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", function, err)
	}
	return nil
}
