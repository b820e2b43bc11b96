package mqjs

import (
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// transformSource turns source written for loader into plain JavaScript.
// The output stays global script code: no module wrapper is added, so
// top-level declarations still land on the session's global object.
func transformSource(source string, loader Loader) (string, error) {
	if loader != LoaderTS {
		return source, nil
	}

	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader:     esbuild.LoaderTS,
		Sourcefile: "<input>",
		Target:     esbuild.ES2020,
		Charset:    esbuild.CharsetUTF8,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			if e.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s (%d:%d)", e.Text, e.Location.Line, e.Location.Column))
			} else {
				msgs = append(msgs, e.Text)
			}
		}
		return "", fmt.Errorf("SyntaxError: %s", strings.Join(msgs, "; "))
	}

	return string(result.Code), nil
}
