/*
Package analysis maps operation names to inference calls.

# Registry

A Registry holds named operations. Invoke looks the name up, prepares the
input (text or image) from a decoded payload, and runs the operation:

  - unknown names fail with analysis.unknown_operation before any work
  - image operations require bytes that sniff as an image
  - text operations reduce HTML to readable text and require it non-empty
  - missing required parameters, backend errors and backend panics all
    fail with analysis.backend_failure

Results are JSON documents.

# Backends

Operations registered by RegisterDefaults delegate to a Backend. The shipped
RemoteBackend calls an HTTP inference service shaped like the Hugging Face
Inference API, behind a rate limiter and a circuit breaker.
*/
package analysis
