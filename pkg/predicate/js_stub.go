//go:build !js_eval

package predicate

import "fmt"

const EngineJS = "js"

// NewJS reports ErrNoEvaluator unless the binary was built with js_eval.
func NewJS(...Option) (Evaluator, error) {
	return nil, fmt.Errorf("%w: %s requires the js_eval build tag", ErrNoEvaluator, EngineJS)
}

// JSAvailable reports whether the binary was built with the js_eval tag.
func JSAvailable() bool { return false }
