// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults supplied with WithDefaults
//  2. A YAML file
//  3. Environment variables (DIRSTORE_ prefix, "__" separates levels)
//  4. Explicit overrides via LoadMap, typically set command-line flags
//
// Values are unmarshaled into structs using koanf tags.
package confloader
