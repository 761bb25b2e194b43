package definition

import (
	"embed"
	"io/fs"
)

// builtinDefinitions embeds the definitions shipped with the binary.
//
//go:embed builtin/*.yaml
var builtinDefinitions embed.FS

// BuiltinFS returns the builtin directory as a filesystem, with the
// "builtin/" prefix stripped so files can be accessed directly.
func BuiltinFS() (fs.FS, error) {
	return fs.Sub(builtinDefinitions, "builtin")
}
