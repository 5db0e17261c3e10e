// Command symflow is the project tool for the symflow framework: it prints
// the release version and scaffolds new projects.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/symflow/config"
	"github.com/hupe1980/symflow/internal/version"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run holds the CLI logic behind an injectable writer so tests can drive it.
func run(out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("symflow", flag.ContinueOnError)
	flagSet.SetOutput(out)

	flagSet.Usage = func() {
		fmt.Fprint(out, `symflow - programmable language model pipelines.

Usage:
  symflow [options]
  symflow init [DIR]

Commands:
  init    Scaffold a minimal symflow project in DIR (default ".").

Options:
`)
		flagSet.PrintDefaults()
	}

	versionFlag := flagSet.Bool("version", false, "Print the release version and exit.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	if *versionFlag {
		fmt.Fprintf(out, "symflow %s\n", version.Release)
		return nil
	}

	switch flagSet.Arg(0) {
	case "":
		flagSet.Usage()
		return nil
	case "init":
		dir := flagSet.Arg(1)
		if dir == "" {
			dir = "."
		}
		return scaffold(out, dir)
	default:
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}
}

// scaffold writes a runnable starter project: a main.go using the functional
// API against the configured default backend, a data model file, a
// .gitignore and a README stub. Existing files are never overwritten.
func scaffold(out io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	backend := config.Backend()
	if backend != "anthropic" {
		backend = "openai"
	}

	files := []struct {
		name    string
		content string
	}{
		{"main.go", fmt.Sprintf(mainTemplate, backend, backend)},
		{"models.go", modelsTemplate},
		{".gitignore", gitignoreTemplate},
		{"README.md", readmeTemplate},
	}

	for _, file := range files {
		path := filepath.Join(dir, file.name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(file.content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file.name, err)
		}
	}

	fmt.Fprintf(out, "Initialized symflow project in %s\n", dir)

	return nil
}

const mainTemplate = `package main

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/model/%s"
	"github.com/hupe1980/symflow/module"
	"github.com/hupe1980/symflow/program"
)

func main() {
	ctx := context.Background()

	lm := model.NewLanguageModel(%s.NewChatModel())

	generator, err := module.NewGenerator(lm, func(o *module.GeneratorOptions) {
		o.Name = "answer_generator"
		o.DataModel = Answer{}
		o.Instructions = []string{"Answer the question concisely."}
	})
	if err != nil {
		log.Fatal(err)
	}

	input, err := module.NewInput(Query{}, func(o *module.InputOptions) {
		o.Name = "query"
	})
	if err != nil {
		log.Fatal(err)
	}

	output, err := input.Apply(generator)
	if err != nil {
		log.Fatal(err)
	}

	p, err := program.New(
		[]*core.SymbolicDataModel{input},
		[]*core.SymbolicDataModel{output},
		func(o *program.Options) {
			o.Name = "qa"
			o.Description = "Answers questions with a single generator."
		},
	)
	if err != nil {
		log.Fatal(err)
	}

	question, err := core.NewJsonDataModelFrom(Query{Query: "What is the capital of France?"})
	if err != nil {
		log.Fatal(err)
	}

	results, err := p.Call(ctx, question)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(results[0].Pretty())
}
`

const modelsTemplate = `package main

// Query is what the program receives.
type Query struct {
	Query string ` + "`" + `json:"query" description:"The user question"` + "`" + `
}

// Answer is what the program produces.
type Answer struct {
	Answer string ` + "`" + `json:"answer" description:"The concise answer"` + "`" + `
}
`

const gitignoreTemplate = `# Binaries
/bin/

# Checkpoints and training logs
*.program.json
*.program.variables.json
training.csv

# Environment
.env
`

const readmeTemplate = `# My symflow project

A starter program scaffolded by symflow init.

## Run

Export the API key for your model provider, then:

    go run .

## Next steps

- Edit models.go to shape the documents your program exchanges.
- Chain more modules in main.go: generators, decisions, branches, agents.
- Compile and fit the program on paired examples to tune it.
`
