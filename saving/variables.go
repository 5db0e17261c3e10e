package saving

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hupe1980/symflow/internal/version"
	"github.com/hupe1980/symflow/program"
)

// variablesDoc is the variables-only persistence format: just the trainable
// state of a program, mapped by variable path.
type variablesDoc struct {
	SymflowVersion string                    `json:"symflow_version"`
	Name           string                    `json:"name"`
	Variables      map[string]map[string]any `json:"variables"`
}

// SaveVariables writes only the program's variable state to a JSON file
// (conventionally *.program.variables.json). The program structure is not
// recorded; LoadVariables requires an already-constructed program.
func SaveVariables(p *program.Program, path string) error {
	if err := checkJSONPath(path); err != nil {
		return err
	}

	doc := variablesDoc{
		SymflowVersion: version.Release,
		Name:           p.Name(),
		Variables:      p.GetStateTree(),
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("saving: encode variables of %s: %w", p.Name(), err)
	}

	return writeFile(path, raw)
}

// LoadVariables restores variable state into the program by path. Paths in
// the file that the program does not have are errors; program variables
// absent from the file are left untouched with a warning.
func LoadVariables(p *program.Program, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("saving: read variables file: %w", err)
	}

	var doc variablesDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("saving: parse variables file %s: %w", path, err)
	}

	return p.SetStateTree(doc.Variables)
}
