// Package server implements the HTTP API of the build promoter.
//
// Routes:
//   - POST /api/promote/{buildName}/{buildNumber} promotes a staged build
//   - POST /api/builds imports a staged build record
//   - GET /api/builds/{buildName} lists the recorded runs of a build
//   - GET /status and GET /status/{buildName} report promotion history
//   - GET /health
//
// When a secret is configured, POST bodies must carry an HMAC-SHA256
// signature in the X-Promoter-Signature header. Requests are rate limited
// per IP, and only one promotion of a given build runs at a time; a
// concurrent attempt is rejected with 429.
package server
