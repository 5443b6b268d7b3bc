// Package utils holds loose integer conversions shared by the store and index
// adapters. Database drivers and JSON decoders hand back the same column as
// int64, []byte, string or json.Number depending on the backend.
package utils
