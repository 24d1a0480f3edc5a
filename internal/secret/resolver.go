package secret

import (
	"fmt"
	"os"
	"strings"
)

// ReferenceResolver resolves one kind of credential reference (env:..., file:...).
type ReferenceResolver interface {
	Supports(reference string) bool
	Resolve(reference string) (string, error)
}

// EnvResolver resolves "env:NAME" references from the process environment.
type EnvResolver struct{}

func (EnvResolver) Supports(reference string) bool {
	return strings.HasPrefix(reference, "env:")
}

func (EnvResolver) Resolve(reference string) (string, error) {
	name := strings.TrimPrefix(reference, "env:")
	if name == "" {
		return "", fmt.Errorf("credential env reference must not be empty")
	}

	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("credential env reference %q is missing or empty", name)
	}

	return value, nil
}

// FileResolver resolves "file:/path" references by reading the file contents.
type FileResolver struct{}

func (FileResolver) Supports(reference string) bool {
	return strings.HasPrefix(reference, "file:")
}

func (FileResolver) Resolve(reference string) (string, error) {
	path := strings.TrimPrefix(reference, "file:")
	if path == "" {
		return "", fmt.Errorf("credential file reference must not be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("credential file reference %q could not be read: %w", path, err)
	}

	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return "", fmt.Errorf("credential file reference %q is empty", path)
	}

	return value, nil
}

// Resolver walks a destination config and replaces credential references
// with resolved secrets. Resolvers are tried in registration order.
type Resolver struct {
	resolvers []ReferenceResolver
}

func NewResolver(resolvers ...ReferenceResolver) *Resolver {
	return &Resolver{resolvers: resolvers}
}

// Default returns a resolver supporting env: and file: references.
func Default() *Resolver {
	return NewResolver(EnvResolver{}, FileResolver{})
}

// ResolveConfig returns a copy of config where every "<field>Ref" entry is
// replaced by "<field>" holding the resolved secret, direct reference-shaped
// values are resolved in place, and nested maps recurse. An unsupported or
// failing reference is a hard error; resolved values are never written back
// to storage.
func (r *Resolver) ResolveConfig(config map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(config))

	for key, value := range config {
		str, isString := value.(string)

		if isString && str != "" && strings.HasSuffix(key, "Ref") {
			target := strings.TrimSuffix(key, "Ref")
			if target == "" {
				continue
			}

			secretValue, err := r.resolveReference(str)
			if err != nil {
				return nil, err
			}
			resolved[target] = secretValue

			continue
		}

		if isString && str != "" && r.isReference(str) {
			secretValue, err := r.resolveReference(str)
			if err != nil {
				return nil, err
			}
			resolved[key] = secretValue

			continue
		}

		if nested, ok := value.(map[string]any); ok {
			nestedResolved, err := r.ResolveConfig(nested)
			if err != nil {
				return nil, err
			}
			resolved[key] = nestedResolved

			continue
		}

		resolved[key] = value
	}

	return resolved, nil
}

func (r *Resolver) isReference(value string) bool {
	for _, resolver := range r.resolvers {
		if resolver.Supports(value) {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveReference(reference string) (string, error) {
	for _, resolver := range r.resolvers {
		if resolver.Supports(reference) {
			return resolver.Resolve(reference)
		}
	}

	return "", fmt.Errorf("unsupported credential reference %q", reference)
}
