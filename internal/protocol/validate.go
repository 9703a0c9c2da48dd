package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// kindSchemas lists the kinds validated beyond the journal base schema.
var kindSchemas = map[Kind]string{
	KindCargo:           "cargo.schema.json",
	KindCargoDepot:      "cargo_depot.schema.json",
	KindMissionAccepted: "mission_accepted.schema.json",
	KindDocked:          "docked.schema.json",
	KindLocation:        "system.schema.json",
	KindJumped:          "system.schema.json",
	KindCarrierJumped:   "system.schema.json",
}

// Validator checks raw journal lines against the embedded schemas before
// they are decoded.
type Validator struct {
	base   *jsonschema.Schema
	byKind map[Kind]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true

	ents, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range ents {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(e.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}

	v := &Validator{byKind: map[Kind]*jsonschema.Schema{}}
	if v.base, err = c.Compile("journal.schema.json"); err != nil {
		return nil, fmt.Errorf("compile journal schema: %w", err)
	}
	compiled := map[string]*jsonschema.Schema{}
	for k, name := range kindSchemas {
		s, ok := compiled[name]
		if !ok {
			if s, err = c.Compile(name); err != nil {
				return nil, fmt.Errorf("compile %s: %w", name, err)
			}
			compiled[name] = s
		}
		v.byKind[k] = s
	}
	return v, nil
}

// Validate checks a raw journal line. Unknown event names pass the base
// schema only; DecodeJournal decides whether they are handled.
func (v *Validator) Validate(line []byte) error {
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return &Error{Code: ErrBadEvent, Message: "invalid json", Cause: err}
	}
	if err := v.base.Validate(doc); err != nil {
		return &Error{Code: ErrSchema, Message: "journal", Cause: err}
	}
	name, _ := doc.(map[string]any)["event"].(string)
	kind, ok := journalKinds[name]
	if !ok {
		return nil
	}
	if s, ok := v.byKind[kind]; ok {
		if err := s.Validate(doc); err != nil {
			return &Error{Code: ErrSchema, Message: string(kind), Cause: err}
		}
	}
	return nil
}
