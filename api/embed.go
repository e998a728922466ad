// Package api embeds the OpenAPI document so the server can serve it at
// /openapi.yaml without a filesystem dependency.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.0 YAML document.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
