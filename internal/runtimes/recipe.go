package runtimes

import (
	"path/filepath"
	"strings"
)

// EntryPlaceholder is replaced by the entry file in Recipe.Args.
const EntryPlaceholder = "{entry}"

// DescriptorFile is the generated workerd startup descriptor.
const DescriptorFile = "workerd.config.capnp"

// Recipe describes how to start a runtime's server process.
type Recipe struct {
	Kind   Kind
	Binary string
	Args   []string
}

// DefaultRecipe returns the stock launch recipe for k.
// root is the harness root, used to locate the locally installed workerd.
func DefaultRecipe(k Kind, root string) Recipe {
	switch k {
	case Workerd:
		return Recipe{
			Kind:   k,
			Binary: filepath.Join(root, "node_modules", ".bin", "workerd"),
			Args:   []string{"serve", EntryPlaceholder},
		}
	case Deno:
		return Recipe{
			Kind:   k,
			Binary: "deno",
			Args:   []string{"run", "--allow-net", "--allow-read", "--allow-env", EntryPlaceholder},
		}
	case Bun:
		return Recipe{Kind: k, Binary: "bun", Args: []string{EntryPlaceholder}}
	default:
		return Recipe{Kind: k, Binary: "node", Args: []string{EntryPlaceholder}}
	}
}

// Command returns the binary and arguments for running entry.
func (r Recipe) Command(entry string) (string, []string) {
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = strings.ReplaceAll(a, EntryPlaceholder, entry)
	}
	return r.Binary, args
}

// String renders the command line for logs, with the entry placeholder intact.
func (r Recipe) String() string {
	return strings.Join(append([]string{r.Binary}, r.Args...), " ")
}

// EntryFile returns the file a runtime is started with, relative to the
// benchmark directory.
func EntryFile(k Kind) string {
	if k == Workerd {
		return "./" + DescriptorFile
	}
	return "./" + AdapterFile(k)
}

// AdapterFile is the generated per-runtime adapter name ("node.js", ...).
func AdapterFile(k Kind) string {
	return k.String() + ".js"
}

// TemplateFile is the adapter template name for k ("node.template.js", ...).
func TemplateFile(k Kind) string {
	return k.String() + ".template.js"
}
