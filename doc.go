// Package promptreg registers, versions, aliases and loads prompt templates through an
// MLflow-compatible prompt registry. Client is a thin façade over a Store; versions are
// assigned by the registry and immutable, aliases are mutable pointers to one version.
package promptreg
