// Package utils provides input validation for the task API.
//
// Validation:
//   - Request body size limit
//   - Operation name length and characters
//   - Parameter map size and key length
//
// Example Usage:
//
//	if err := utils.ValidateParameters(req.Parameters); err != nil {
//	    return err
//	}
package utils
