// Package serializer provides utilities for serializing data to various formats.
//
// The package supports three output formats:
//   - JSON: Machine-readable structured data with proper indentation
//   - YAML: Human-readable configuration format
//   - Table: Column output for values implementing Tabular, flattened
//     FIELD/VALUE pairs for anything else
//
// Usage:
//
//	writer := serializer.NewWriter(serializer.FormatTable, os.Stdout)
//	defer writer.Close()
//	if err := writer.Serialize(ctx, units); err != nil {
//		return err
//	}
//
// Reading JSON or YAML from a local file or an HTTP(S) URL:
//
//	env, err := serializer.FromFile[map[string]string]("vars.yaml")
//
// For HTTP responses:
//
//	serializer.RespondJSON(w, http.StatusOK, data)
//
// RespondJSON buffers the encoded body so an encoding failure never produces
// a partial response.
package serializer
